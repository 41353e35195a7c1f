// donki-download - Download NASA DONKI space weather event catalogs as CSV
//
// Event types: CME, FLR, SEP, HSS, RBE, IPS, MPC, GST. Each response is
// flattened into one table and written to every destination directory as
// DONKI_{TYPE}_{start}_to_{end}.csv.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/donki-download ./cmd/donki-download

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/KI7MT/ki7mt-swx-lab/internal/common"
	"github.com/KI7MT/ki7mt-swx-lab/internal/donki"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

// destList collects repeated -dest flags
type destList []string

func (d *destList) String() string { return strings.Join(*d, ",") }

func (d *destList) Set(v string) error {
	*d = append(*d, v)
	return nil
}

func main() {
	envFile := flag.String("env", ".env", "Optional dotenv file")
	var dests destList
	flag.Var(&dests, "dest", "Destination directory (repeatable, default $KI7MT_DATA_DIR/donki)")
	start := flag.String("start", "", "Start date YYYY-MM-DD (default $SWX_START)")
	end := flag.String("end", "", "End date YYYY-MM-DD (default $SWX_END)")
	event := flag.String("event", "all", "Event type to download (or 'all')")
	timeout := flag.Duration("timeout", 60*time.Second, "HTTP timeout per request")
	listEvents := flag.Bool("list", false, "List available event types")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "donki-download v%s - NASA DONKI Event Downloader\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Downloads DONKI event catalogs for a date window and writes one CSV per type.\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEvent Types:\n")
		for _, e := range donki.EventTypes {
			fmt.Fprintf(os.Stderr, "  %-5s %s\n", e.Name, e.Desc)
		}
	}

	flag.Parse()

	if *listEvents {
		fmt.Printf("Available DONKI event types:\n\n")
		for _, e := range donki.EventTypes {
			fmt.Printf("  %-5s %s\n", e.Name, e.Desc)
		}
		return
	}

	cfg, err := common.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg, Version, "donki-download")

	if *start == "" {
		*start = cfg.Start
	}
	if *end == "" {
		*end = cfg.End
	}
	startDate, endDate, err := common.ParseDateRange(*start, *end)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if len(dests) == 0 {
		dests = destList{cfg.DonkiDir()}
	}

	if *event != "all" && !knownEvent(*event) {
		log.Fatalf("Error: unknown event type %q (see -list)", *event)
	}

	common.Banner("DONKI Download v%s", Version)
	log.Printf("Window:      %s to %s", startDate.Format(common.DateLayout), endDate.Format(common.DateLayout))
	log.Printf("Destination: %s", dests.String())
	log.Printf("Timeout:     %v", *timeout)
	log.Println()

	for _, dir := range dests {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Error: Cannot create directory: %v", err)
		}
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

	client := donki.NewClient(cfg.DonkiBaseURL, cfg.DonkiAPIKey, *timeout)

	startTime := time.Now()
	fetched, empty, failed, events := 0, 0, 0, 0

	for _, et := range donki.EventTypes {
		if *event != "all" && !strings.EqualFold(*event, et.Name) {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		n, err := client.Export(ctx, et.Name, startDate, endDate, dests)
		switch {
		case errors.Is(err, donki.ErrEmpty):
			logger.Warn("no events", "type", et.Name)
			empty++
		case err != nil:
			logger.Error("download failed", "type", et.Name, "err", err)
			failed++
		default:
			logger.Info("saved", "type", et.Name, "events", n,
				"file", donki.Filename(et.Name, startDate, endDate))
			fetched++
			events += n
		}
	}

	elapsed := time.Since(startTime)

	log.Println()
	common.Banner("Download Summary")
	log.Printf("Downloaded: %d types (%d events)", fetched, events)
	log.Printf("Empty:      %d types", empty)
	log.Printf("Failed:     %d types", failed)
	log.Printf("Elapsed:    %v", elapsed.Round(time.Millisecond))
	log.Println("=========================================================")

	if failed > 0 {
		os.Exit(1)
	}
}

func knownEvent(name string) bool {
	for _, e := range donki.EventTypes {
		if strings.EqualFold(e.Name, name) {
			return true
		}
	}
	return false
}
