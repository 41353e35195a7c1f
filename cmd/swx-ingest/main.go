// swx-ingest - Load space-weather lab outputs into ClickHouse
//
// Supports two inputs:
//   - Merged SWIS series (merged_blk_th2_data.csv[.gz] or .parquet) through
//     the native ch-go block protocol
//   - Derived CME catalog (FINAL_CME_FULL_UNION.csv) through clickhouse-go
//     batches
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/swx-ingest ./cmd/swx-ingest

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/KI7MT/ki7mt-swx-lab/internal/cme"
	"github.com/KI7MT/ki7mt-swx-lab/internal/common"
	"github.com/KI7MT/ki7mt-swx-lab/internal/store"
	"github.com/KI7MT/ki7mt-swx-lab/internal/swis"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

// loadSwis reads merged rows from CSV or Parquet.
func loadSwis(path string) ([]swis.Record, []string, error) {
	if strings.HasSuffix(strings.ToLower(path), ".parquet") {
		m, err := swis.ReadParquet(path)
		if err != nil {
			return nil, nil, err
		}
		return m.Records(), m.Channels, nil
	}
	s, err := swis.LoadMerged(path)
	if err != nil {
		return nil, nil, err
	}
	rows, channels := s.Records()
	return rows, channels, nil
}

func main() {
	envFile := flag.String("env", ".env", "Optional dotenv file")
	swisPath := flag.String("swis", "", "Merged SWIS file (.csv, .csv.gz or .parquet)")
	cmePath := flag.String("cme", "", "Derived CME catalog CSV ("+cme.FinalFile+")")
	swisTable := flag.String("swis-table", "swis_merged", "ClickHouse table for SWIS samples")
	cmeTable := flag.String("cme-table", "cme_catalog", "ClickHouse table for the CME catalog")
	batchSize := flag.Int("batch", store.DefaultBatchSize, "Rows per native insert block")
	create := flag.Bool("create", false, "CREATE TABLE IF NOT EXISTS before insert")
	truncate := flag.Bool("truncate", false, "Truncate tables before insert")
	dryRun := flag.Bool("dry-run", false, "Parse inputs and report row counts without connecting")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "swx-ingest v%s - Space Weather Lab ClickHouse Loader\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Loads swis-merge and cme-overlay outputs into ClickHouse.\n\n")
		fmt.Fprintf(os.Stderr, "Supported inputs:\n")
		fmt.Fprintf(os.Stderr, "  - %s (CSV, gzip CSV or Parquet)\n", swis.MergedFile)
		fmt.Fprintf(os.Stderr, "  - %s\n\n", cme.FinalFile)
		flag.PrintDefaults()
	}

	flag.Parse()

	if *swisPath == "" && *cmePath == "" {
		fmt.Fprintf(os.Stderr, "Error: nothing to load, give -swis and/or -cme\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := common.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg, Version, "swx-ingest")

	common.Banner("SWX Ingest v%s", Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutdown requested...")
		cancel()
	}()

	var (
		swisRows    []swis.Record
		channels    []string
		catalogRows []store.CatalogRow
	)

	if *swisPath != "" {
		swisRows, channels, err = loadSwis(*swisPath)
		if err != nil {
			log.Fatalf("[%s] Parse error: %v", filepath.Base(*swisPath), err)
		}
		log.Printf("[%s] Parsed %d samples, %d flux channels", filepath.Base(*swisPath), len(swisRows), len(channels))
	}
	if *cmePath != "" {
		catalog, err := cme.LoadCatalog(*cmePath)
		if err != nil {
			log.Fatalf("[%s] Parse error: %v", filepath.Base(*cmePath), err)
		}
		var skipped int
		catalogRows, skipped = store.CatalogRows(catalog)
		log.Printf("[%s] Parsed %d CMEs (%d without start or arrival skipped)", filepath.Base(*cmePath), len(catalogRows), skipped)
	}

	if *dryRun {
		log.Println("Dry run, nothing inserted")
		return
	}

	stats := common.NewStats(5 * time.Second)
	stats.StartReporter()
	failed := 0

	if *swisPath != "" {
		tableFQN := fmt.Sprintf("%s.%s", cfg.ClickHouseDatabase, *swisTable)
		if err := ingestSwis(ctx, cfg, tableFQN, *create, *truncate, swisRows, channels, filepath.Base(*swisPath), *batchSize, stats); err != nil {
			logger.Error("SWIS load failed", "table", tableFQN, "err", err)
			stats.AddFailed()
			failed++
		}
	}
	if *cmePath != "" && ctx.Err() == nil {
		tableFQN := fmt.Sprintf("%s.%s", cfg.ClickHouseDatabase, *cmeTable)
		if err := ingestCatalog(ctx, cfg, tableFQN, *create, *truncate, catalogRows, stats); err != nil {
			logger.Error("CME catalog load failed", "table", tableFQN, "err", err)
			stats.AddFailed()
			failed++
		}
	}

	stats.StopReporter()

	log.Println()
	common.Banner("Final Statistics")
	log.Printf("Total Records: %d", stats.Rows())
	log.Printf("Failed:        %d", stats.Failed())
	log.Printf("Elapsed:       %v", stats.Elapsed().Round(time.Millisecond))
	log.Printf("Rate:          %.0f records/sec", stats.RowsPerSec())
	log.Println("=========================================================")

	if failed > 0 {
		os.Exit(1)
	}
}

func ingestSwis(ctx context.Context, cfg *common.Config, tableFQN string, create, truncate bool,
	rows []swis.Record, channels []string, source string, batchSize int, stats *common.Stats) error {
	log.Printf("Connecting to ClickHouse at %s (native)...", cfg.ClickHouseAddr())
	conn, err := store.Dial(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	if create {
		if err := store.Exec(ctx, conn, store.SwisDDL(tableFQN)); err != nil {
			return fmt.Errorf("create: %w", err)
		}
	}
	if truncate {
		log.Printf("Truncating table %s...", tableFQN)
		if err := store.Exec(ctx, conn, "TRUNCATE TABLE "+tableFQN); err != nil {
			log.Printf("Truncate warning: %v", err)
		}
	}
	return store.InsertSwis(ctx, conn, tableFQN, rows, channels, source, batchSize, stats)
}

func ingestCatalog(ctx context.Context, cfg *common.Config, tableFQN string, create, truncate bool,
	rows []store.CatalogRow, stats *common.Stats) error {
	log.Printf("Connecting to ClickHouse at %s...", cfg.ClickHouseAddr())
	conn, err := store.OpenConn(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	if create {
		if err := conn.Exec(ctx, store.CatalogDDL(tableFQN)); err != nil {
			return fmt.Errorf("create: %w", err)
		}
	}
	if truncate {
		log.Printf("Truncating table %s...", tableFQN)
		if err := conn.Exec(ctx, "TRUNCATE TABLE "+tableFQN); err != nil {
			log.Printf("Truncate warning: %v", err)
		}
	}
	return store.InsertCatalog(ctx, conn, tableFQN, rows, stats)
}
