// cactus-parse - Parse the SIDC CACTus CME catalog into CSV
//
// Reads a CACTus cmecat listing (local file or downloaded from the SIDC
// quicklook catalog), drops flow entries, derives the end time and the
// constant-speed arrival at L1, and writes one row per CME.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/cactus-parse ./cmd/cactus-parse

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

	"github.com/KI7MT/ki7mt-swx-lab/internal/cactus"
	"github.com/KI7MT/ki7mt-swx-lab/internal/common"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

const catalogURL = "https://www.sidc.be/cactus/catalog/LASCO/2_5_0/qkl/%04d/%02d/cmecat.txt"

func main() {
	envFile := flag.String("env", ".env", "Optional dotenv file")
	inFile := flag.String("file", "", "Local cmecat file (.gz accepted); downloads -url when empty")
	url := flag.String("url", "", "Catalog URL (default SIDC quicklook for the $SWX_START month)")
	outFile := flag.String("out", "", "Output CSV (default $KI7MT_DATA_DIR/cactus/parsed_cmes.csv)")
	timeout := flag.Duration("timeout", 60*time.Second, "HTTP timeout for the download")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "cactus-parse v%s - CACTus CME Catalog Parser\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Parses a CACTus cmecat listing into a CSV of CMEs.\n\n")
		fmt.Fprintf(os.Stderr, "Output columns:\n")
		fmt.Fprintf(os.Stderr, "  %v\n\n", cactus.Columns)
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg, err := common.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg, Version, "cactus-parse")

	if *outFile == "" {
		*outFile = filepath.Join(cfg.CactusDir(), "parsed_cmes.csv")
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

	common.Banner("CACTus Parse v%s", Version)

	startTime := time.Now()

	if err := os.MkdirAll(filepath.Dir(*outFile), 0755); err != nil {
		log.Fatalf("Error: Cannot create directory: %v", err)
	}

	src := *inFile
	if src == "" {
		if *url == "" {
			start, _, err := common.ParseDateRange(cfg.Start, cfg.End)
			if err != nil {
				log.Fatalf("Error: %v", err)
			}
			*url = fmt.Sprintf(catalogURL, start.Year(), int(start.Month()))
		}
		src = filepath.Join(filepath.Dir(*outFile), "cmecat.txt")
		log.Printf("Downloading %s...", *url)
		n, err := common.Download(ctx, *url, src, *timeout)
		if err != nil {
			log.Fatalf("Download failed: %v", err)
		}
		logger.Info("downloaded", "file", filepath.Base(src), "bytes", n)
	}

	log.Printf("Input:  %s", src)
	log.Printf("Output: %s", *outFile)

	r, err := common.OpenMaybeGzip(src)
	if err != nil {
		log.Fatalf("Cannot open input: %v", err)
	}
	cat, err := cactus.Parse(r)
	r.Close()
	if err != nil {
		log.Fatalf("Parse error: %v", err)
	}
	if len(cat.CMEs) == 0 {
		log.Fatalf("No CME entries in %s", src)
	}

	if err := cat.WriteCSV(*outFile); err != nil {
		log.Fatalf("Write error: %v", err)
	}

	cov := cat.Coverage()
	elapsed := time.Since(startTime)

	log.Println()
	common.Banner("Parse Summary")
	log.Printf("CMEs:       %d (%d halo)", cov.Count, cov.Halo)
	log.Printf("Flows:      %d skipped", cat.Flows)
	log.Printf("Bad lines:  %d skipped", cat.Skipped)
	log.Printf("Window:     %s to %s", cov.First.Format(time.DateTime), cov.Last.Format(time.DateTime))
	log.Printf("Speed:      min %.0f / mean %.0f / max %.0f km/s", cov.MinSpeed, cov.MeanSpeed, cov.MaxSpeed)
	log.Printf("Elapsed:    %v", elapsed.Round(time.Millisecond))
	log.Println("=========================================================")
}
