// cme-overlay - Overlay CME arrivals and DONKI events onto merged SWIS data
//
// Derives drag-based transit, arrival delay, halo/geo-effective flags and
// CME interaction gaps for a merged CACTus/DONKI/OMNI catalog, joins every
// SWIS sample to the nearest CME arrival and to the nearest event of each
// extra DONKI export, and renders the comparison plots.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/cme-overlay ./cmd/cme-overlay

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/KI7MT/ki7mt-swx-lab/internal/cme"
	"github.com/KI7MT/ki7mt-swx-lab/internal/common"
	"github.com/KI7MT/ki7mt-swx-lab/internal/overlay"
	"github.com/KI7MT/ki7mt-swx-lab/internal/swis"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

func main() {
	envFile := flag.String("env", ".env", "Optional dotenv file")
	runFile := flag.String("config", "", "Optional YAML run file (tolerances, drag, extra files)")
	swisPath := flag.String("swis", "", "Merged SWIS CSV (default $KI7MT_DATA_DIR/swis/"+swis.MergedFile+")")
	catalogPath := flag.String("catalog", "", "Merged CME catalog CSV (default $KI7MT_DATA_DIR/cactus/Merged_CACTus_DONKI_OMNI.csv)")
	extraDir := flag.String("extra-dir", "", "Directory of DONKI exports (default $KI7MT_DATA_DIR/donki)")
	outDir := flag.String("out", "", "Output directory (default $KI7MT_DATA_DIR/overlay)")
	cmeTol := flag.Duration("cme-tolerance", 0, "SWIS to CME arrival window (default 2h)")
	eventTol := flag.Duration("event-tolerance", 0, "SWIS to DONKI eventTime window (default 3h)")
	dpi := flag.Int("dpi", 0, "Plot resolution (default 100)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "cme-overlay v%s - CME/DONKI Overlay on SWIS Data\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Outputs:\n")
		fmt.Fprintf(os.Stderr, "  %-30s SWIS samples with the nearest CME\n", overlay.CMEOverlayFile)
		fmt.Fprintf(os.Stderr, "  %-30s SWIS samples with the nearest event\n", "SWIS_OVERLAY_{file}")
		fmt.Fprintf(os.Stderr, "  %-30s catalog with derived columns\n", cme.FinalFile)
		fmt.Fprintf(os.Stderr, "  %-30s comparison plots\n\n", "*.png")
		fmt.Fprintf(os.Stderr, "Precedence: flags, then -config, then defaults.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg, err := common.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg, Version, "cme-overlay")

	start, end, err := common.ParseDateRange(cfg.Start, cfg.End)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	run := overlay.DefaultConfig(start, end)
	run.ExtraDir = cfg.DonkiDir()
	if *runFile != "" {
		if run, err = overlay.LoadRunFile(*runFile, run); err != nil {
			log.Fatalf("Error: %v", err)
		}
	}
	if *extraDir != "" {
		run.ExtraDir = *extraDir
	}
	if *cmeTol > 0 {
		run.CMETolerance = *cmeTol
	}
	if *eventTol > 0 {
		run.EventTolerance = *eventTol
	}
	if *dpi > 0 {
		run.DPI = *dpi
	}
	if err := run.Validate(); err != nil {
		log.Fatalf("Error: %v", err)
	}

	in := overlay.Inputs{
		SwisPath:    *swisPath,
		CatalogPath: *catalogPath,
		OutputDir:   *outDir,
	}
	if in.SwisPath == "" {
		in.SwisPath = filepath.Join(cfg.SwisDir(), swis.MergedFile)
	}
	if in.CatalogPath == "" {
		in.CatalogPath = filepath.Join(cfg.CactusDir(), "Merged_CACTus_DONKI_OMNI.csv")
	}
	if in.OutputDir == "" {
		in.OutputDir = cfg.OverlayDir()
	}

	common.Banner("CME Overlay v%s", Version)
	log.Printf("SWIS:        %s", in.SwisPath)
	log.Printf("Catalog:     %s", in.CatalogPath)
	log.Printf("Extra dir:   %s (%d files)", run.ExtraDir, len(run.ExtraFiles))
	log.Printf("Output:      %s", in.OutputDir)
	log.Printf("Tolerance:   CME %v, events %v", run.CMETolerance, run.EventTolerance)
	log.Printf("Drag:        gamma %g/h over %g km", run.DragGammaPerHour, run.DistanceKm)
	log.Println()

	if err := os.MkdirAll(in.OutputDir, 0755); err != nil {
		log.Fatalf("Error: Cannot create directory: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutdown requested...")
		cancel()
	}()

	startTime := time.Now()

	res, err := overlay.Run(ctx, in, run, logger)
	if err != nil {
		log.Fatalf("Overlay failed: %v", err)
	}
	for _, f := range res.Files {
		logger.Debug("saved", "file", f)
	}

	elapsed := time.Since(startTime)

	log.Println()
	common.Banner("Overlay Summary")
	log.Printf("SWIS samples:   %d (%d matched a CME)", res.Samples, res.CMEMatches)
	log.Printf("CMEs:           %d (%d halo, %d geo-effective, %d interacting)",
		res.Catalog.CMEs, res.Catalog.Halo, res.Catalog.GeoEffect, res.Catalog.Interacting)
	log.Printf("With transit:   %d", res.Catalog.WithTransit)
	log.Printf("Event overlays: %d (%d without eventTime, %d failed)",
		res.EventOverlays, res.EventSkipped, res.EventFailed)
	log.Printf("Files written:  %d", len(res.Files))
	log.Printf("Elapsed:        %v", elapsed.Round(time.Millisecond))
	log.Println("=========================================================")
}
