// swis-merge - Merge Aditya-L1 SWIS L2 BLK and TH2 CDF files
//
// Reads every *L2_BLK*.cdf and *L2_TH2*.cdf file in a directory, attaches
// the nearest TH2 flux spectrum (first, middle and last energy channel) to
// each BLK bulk-moment sample, and writes the merged series as CSV, with
// optional Parquet export and PNG plots.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/swis-merge ./cmd/swis-merge

package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/KI7MT/ki7mt-swx-lab/internal/common"
	"github.com/KI7MT/ki7mt-swx-lab/internal/swis"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

func main() {
	envFile := flag.String("env", ".env", "Optional dotenv file")
	dir := flag.String("dir", "", "Directory of SWIS L2 CDF files (default $KI7MT_DATA_DIR/swis)")
	outDir := flag.String("out", "", "Output directory (default -dir)")
	tolerance := flag.Duration("tolerance", swis.MergeTolerance, "Nearest-match window for TH2 onto BLK")
	parquetOut := flag.Bool("parquet", false, "Also write merged_blk_th2_data.parquet")
	noPlots := flag.Bool("no-plots", false, "Skip PNG plots")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "swis-merge v%s - SWIS L2 BLK/TH2 Merger\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Merges SWIS Level-2 CDF products into one time series.\n\n")
		fmt.Fprintf(os.Stderr, "Input files:\n")
		fmt.Fprintf(os.Stderr, "  *%s*.cdf  bulk proton moments and spacecraft position\n", swis.BLKMarker)
		fmt.Fprintf(os.Stderr, "  *%s*.cdf  integrated flux spectra\n\n", swis.TH2Marker)
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg, err := common.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg, Version, "swis-merge")

	if *dir == "" {
		*dir = cfg.SwisDir()
	}
	if *outDir == "" {
		*outDir = *dir
	}
	if *tolerance <= 0 {
		log.Fatalf("Error: -tolerance must be positive")
	}

	common.Banner("SWIS Merge v%s", Version)
	log.Printf("Input:     %s", *dir)
	log.Printf("Output:    %s", *outDir)
	log.Printf("Tolerance: %v", *tolerance)
	log.Println()

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("Error: Cannot create directory: %v", err)
	}

	startTime := time.Now()

	res, err := swis.LoadDir(*dir, logger)
	if errors.Is(err, swis.ErrNoData) {
		log.Fatalf("Missing BLK or TH2 data in %s (BLK files: %d, TH2 files: %d, failed: %d)",
			*dir, res.BLKFiles, res.TH2Files, res.Failed)
	}
	if err != nil {
		log.Fatalf("Cannot read %s: %v", *dir, err)
	}
	logger.Info("loaded", "blk_files", res.BLKFiles, "blk_samples", res.BLK.Len(),
		"th2_files", res.TH2Files, "th2_samples", res.TH2.Len(), "failed", res.Failed)

	merged := swis.Merge(res.BLK, res.TH2, *tolerance)

	csvPath := filepath.Join(*outDir, swis.MergedFile)
	if err := merged.WriteCSV(csvPath); err != nil {
		log.Fatalf("Write error: %v", err)
	}
	logger.Info("saved", "file", csvPath, "rows", merged.Len())

	if *parquetOut {
		pqPath := filepath.Join(*outDir, "merged_blk_th2_data.parquet")
		if err := merged.WriteParquet(pqPath); err != nil {
			log.Fatalf("Parquet error: %v", err)
		}
		logger.Info("saved", "file", pqPath)
	}

	plots := 0
	if !*noPlots {
		written, err := merged.Plots(*outDir)
		plots = len(written)
		if err != nil {
			logger.Error("plot failed", "err", err)
		}
	}

	elapsed := time.Since(startTime)

	log.Println()
	common.Banner("Merge Summary")
	log.Printf("BLK files:  %d", res.BLKFiles)
	log.Printf("TH2 files:  %d", res.TH2Files)
	log.Printf("Failed:     %d files", res.Failed)
	log.Printf("Rows:       %d (%d with flux)", merged.Len(), merged.Matched())
	log.Printf("Channels:   %v", merged.Channels)
	log.Printf("Plots:      %d", plots)
	log.Printf("Elapsed:    %v", elapsed.Round(time.Millisecond))
	log.Println("=========================================================")
}
