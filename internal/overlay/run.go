package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/KI7MT/ki7mt-swx-lab/internal/cme"
	"github.com/KI7MT/ki7mt-swx-lab/internal/swis"
	"github.com/KI7MT/ki7mt-swx-lab/internal/table"
)

// Inputs names the files of one run.
type Inputs struct {
	SwisPath    string
	CatalogPath string
	OutputDir   string
}

// Result summarizes a run.
type Result struct {
	Samples    int
	CMEMatches int
	Catalog    cme.Summary

	EventOverlays int
	EventSkipped  int
	EventFailed   int

	Files []string
}

// Run derives the CME catalog, writes the CME overlay, overlays each extra
// DONKI file that has an eventTime column, renders the figures and finally
// writes the derived catalog. Extra files that cannot be read are logged and
// counted; files without eventTime are skipped. A canceled ctx stops the run
// between output files.
func Run(ctx context.Context, in Inputs, cfg Config, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	series, err := swis.LoadMerged(in.SwisPath)
	if err != nil {
		return nil, fmt.Errorf("load SWIS: %w", err)
	}
	catalog, err := cme.LoadCatalog(in.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load CME catalog: %w", err)
	}
	if err := catalog.Derive(cfg.Params()); err != nil {
		return nil, fmt.Errorf("derive CME columns: %w", err)
	}

	res := &Result{Samples: series.Len(), Catalog: catalog.Summarize()}

	cmeOverlay, err := CME(series, catalog, cfg.CMETolerance)
	if err != nil {
		return nil, fmt.Errorf("CME overlay: %w", err)
	}
	res.CMEMatches = cmeOverlay.Matches()
	path := filepath.Join(in.OutputDir, CMEOverlayFile)
	if err := cmeOverlay.Table.WriteCSV(path); err != nil {
		return nil, err
	}
	res.Files = append(res.Files, path)

	for _, name := range cfg.ExtraFiles {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		files, err := eventOverlay(series, cfg, name, in.OutputDir)
		switch {
		case err != nil:
			logger.Warn("event overlay failed", "file", name, "err", err)
			res.EventFailed++
		case files == nil:
			logger.Debug("no eventTime column", "file", name)
			res.EventSkipped++
		default:
			res.EventOverlays++
			res.Files = append(res.Files, files...)
		}
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	plots, err := saveFigures(in.OutputDir, CMEFigures(series, cmeOverlay, cfg.DPI))
	res.Files = append(res.Files, plots...)
	if err != nil {
		return res, fmt.Errorf("plot: %w", err)
	}

	path = filepath.Join(in.OutputDir, cme.FinalFile)
	if err := catalog.WriteCSV(path); err != nil {
		return res, err
	}
	res.Files = append(res.Files, path)
	return res, nil
}

// eventOverlay returns the files written, or nil when name has no eventTime.
func eventOverlay(series *swis.Series, cfg Config, name, outDir string) ([]string, error) {
	events, err := table.ReadCSV(filepath.Join(cfg.ExtraDir, name))
	if err != nil {
		return nil, err
	}
	o, ok, err := Events(series, events, cfg.EventTolerance)
	if err != nil || !ok {
		return nil, err
	}

	csvPath := filepath.Join(outDir, eventPrefix+name)
	if err := o.Table.WriteCSV(csvPath); err != nil {
		return nil, err
	}

	stem, _, _ := strings.Cut(name, ".")
	pngPath := filepath.Join(outDir, plotPrefix+stem+".png")
	if err := EventFigure(series, o, stem, cfg.DPI).Save(pngPath); err != nil {
		return nil, err
	}
	return []string{csvPath, pngPath}, nil
}
