package overlay

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/ki7mt-swx-lab/internal/cme"
	"github.com/KI7MT/ki7mt-swx-lab/internal/swis"
	"github.com/KI7MT/ki7mt-swx-lab/internal/table"
)

var (
	start = time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC)
)

// hourly SWIS samples on 2024-10-10, written out of order
const mergedCSV = `Time,Density (cmÂ³),Speed (km/s),Temperature (K),X_Pos,Y_Pos,Z_Pos,Flux @ 100.0 eV,Flux @ 2000.0 eV
2024-10-10 03:00:00,5,420,90000,1,1,1,10,
2024-10-10 00:00:00,4,400,100000,1,1,1,1,2
2024-10-10 01:00:00,4.5,410,95000,1,1,1,,
2024-10-10 02:00:00,6,415,99000,1,1,1,3,4
2024-10-10 09:00:00,3,380,80000,1,1,1,5,5
`

const catalogCSV = `Start,Arrival_L1,Speed_x,Speed_y,Halo
2024-10-09 01:36:00,2024-10-10 01:30:00,1000,400,Halo
2024-10-08 00:00:00,2024-10-10 06:00:00,600,400,
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func loadSeries(t *testing.T) *swis.Series {
	t.Helper()
	tbl, err := table.Decode(strings.NewReader(mergedCSV))
	require.NoError(t, err)
	s, err := swis.NewSeries(tbl)
	require.NoError(t, err)
	return s
}

func loadCatalog(t *testing.T) *cme.Catalog {
	t.Helper()
	tbl, err := table.Decode(strings.NewReader(catalogCSV))
	require.NoError(t, err)
	c, err := cme.NewCatalog(tbl)
	require.NoError(t, err)
	require.NoError(t, c.Derive(cme.DefaultParams()))
	return c
}

func TestCMEOverlay(t *testing.T) {
	o, err := CME(loadSeries(t), loadCatalog(t), 2*time.Hour)
	require.NoError(t, err)

	require.Len(t, o.Time, 5)
	assert.Equal(t, "2024-10-10 00:00:00", o.Table.Get(0, "Time"))
	// 00:00 .. 03:00 are within 2 h of the 01:30 arrival, 09:00 is 3 h past 06:00
	assert.Equal(t, []bool{true, true, true, true, false}, o.Matched)
	assert.Equal(t, "2024-10-10 01:30:00", o.Table.Get(3, cme.ColArrival))
	assert.Equal(t, "", o.Table.Get(4, cme.ColArrival))
	assert.Equal(t, 4, o.Matches())

	assert.Equal(t, cme.ColSpeedInit, SpeedColumn(o.Table))
	assert.Equal(t, "True", o.Table.Get(0, cme.ColHaloFlag))
}

func TestEventsOverlay(t *testing.T) {
	events := table.New("activityID", "eventTime")
	require.NoError(t, events.AppendRow("IPS-2", "2024-10-10T08:00Z"))
	require.NoError(t, events.AppendRow("IPS-1", "2024-10-09T23:30Z"))

	o, ok, err := Events(loadSeries(t), events, 3*time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	// 03:00 is 3.5 h after IPS-1 and 5 h before IPS-2
	assert.Equal(t, []string{"IPS-1", "IPS-1", "IPS-1", "", "IPS-2"}, o.Table.Column("activityID"))
	assert.Equal(t, "2024-10-09 23:30:00", o.Table.Get(0, EventTime))

	_, ok, err = Events(loadSeries(t), table.New("activityID"), time.Hour)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestConfigRunFile(t *testing.T) {
	base := DefaultConfig(start, end)
	assert.Equal(t, 2*time.Hour, base.CMETolerance)
	assert.Equal(t, 3*time.Hour, base.EventTolerance)
	require.Len(t, base.ExtraFiles, 9)
	assert.Equal(t, "DONKI_MPC_2024-10-01_to_2024-10-31.csv", base.ExtraFiles[0])
	assert.Equal(t, base.ExtraFiles[0], base.ExtraFiles[8])
	assert.InDelta(t, 0.1/3600, base.Params().Gamma, 1e-15)

	path := writeFile(t, t.TempDir(), "run.yaml", `
cme_tolerance: 90m
interaction_hours: 12
extra_dir: /data/donki
extra_files:
  - DONKI_IPS_2024-10-01_to_2024-10-31.csv
dpi: 150
`)
	cfg, err := LoadRunFile(path, base)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, cfg.CMETolerance)
	assert.Equal(t, 3*time.Hour, cfg.EventTolerance)
	assert.Equal(t, 12.0, cfg.Params().InteractionHours)
	assert.Equal(t, "/data/donki", cfg.ExtraDir)
	assert.Equal(t, []string{"DONKI_IPS_2024-10-01_to_2024-10-31.csv"}, cfg.ExtraFiles)
	assert.Equal(t, 150, cfg.DPI)

	bad := writeFile(t, t.TempDir(), "bad.yaml", "cme_tolerance: soon\n")
	_, err = LoadRunFile(bad, base)
	assert.Error(t, err)

	cfg.EventTolerance = 0
	assert.Error(t, cfg.Validate())
}

func TestRun(t *testing.T) {
	in := t.TempDir()
	extra := t.TempDir()
	out := filepath.Join(t.TempDir(), "CME_FINAL_FULL_UNION_OUTPUT")

	swisPath := writeFile(t, in, swis.MergedFile, mergedCSV)
	catPath := writeFile(t, in, "Merged_CACTus_DONKI_OMNI.csv", catalogCSV)
	writeFile(t, extra, "DONKI_IPS_2024-10-01_to_2024-10-31.csv",
		"activityID,eventTime,location\nIPS-1,2024-10-10T02:10Z,Earth\n")
	writeFile(t, extra, "DONKI_FLR_2024-10-01_to_2024-10-31.csv",
		"flrID,peakTime\nFLR-1,2024-10-10T02:00Z\n")

	cfg := DefaultConfig(start, end)
	cfg.ExtraDir = extra
	cfg.ExtraFiles = []string{
		"DONKI_IPS_2024-10-01_to_2024-10-31.csv",
		"DONKI_FLR_2024-10-01_to_2024-10-31.csv",
		"DONKI_SEP_2024-10-01_to_2024-10-31.csv",
	}
	cfg.DPI = 40

	res, err := Run(context.Background(), Inputs{SwisPath: swisPath, CatalogPath: catPath, OutputDir: out}, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Samples)
	assert.Equal(t, 4, res.CMEMatches)
	assert.Equal(t, 1, res.EventOverlays)
	assert.Equal(t, 1, res.EventSkipped)
	assert.Equal(t, 1, res.EventFailed)
	assert.Equal(t, 2, res.Catalog.CMEs)
	assert.Equal(t, 1, res.Catalog.Halo)

	for _, name := range []string{
		CMEOverlayFile,
		"SWIS_OVERLAY_DONKI_IPS_2024-10-01_to_2024-10-31.csv",
		"PLOT_OVERLAY_DONKI_IPS_2024-10-01_to_2024-10-31.png",
		"Overlay_Density_vs_CME.png",
		"Overlay_Speed_vs_CME.png",
		"Overlay_Temp_vs_CME.png",
		"Overlay_Integrated_Flux_vs_CME.png",
		cme.FinalFile,
	} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	assert.NoFileExists(t, filepath.Join(out, "SWIS_OVERLAY_DONKI_FLR_2024-10-01_to_2024-10-31.csv"))

	final, err := table.ReadCSV(filepath.Join(out, cme.FinalFile))
	require.NoError(t, err)
	assert.Equal(t, "2024-10-08 00:00:00", final.Get(0, cme.ColStart))
	assert.True(t, final.Has(cme.ColInteractionFlag))

	overlay, err := table.ReadCSV(filepath.Join(out, CMEOverlayFile))
	require.NoError(t, err)
	assert.Equal(t, swis.IntegratedFlux, overlay.Columns[9])
	assert.Equal(t, "3", overlay.Get(0, swis.IntegratedFlux))
}

func TestRunCanceled(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	swisPath := writeFile(t, in, swis.MergedFile, mergedCSV)
	catPath := writeFile(t, in, "Merged_CACTus_DONKI_OMNI.csv", catalogCSV)

	cfg := DefaultConfig(start, end)
	cfg.ExtraDir = t.TempDir()
	cfg.DPI = 40

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Run(ctx, Inputs{SwisPath: swisPath, CatalogPath: catPath, OutputDir: out}, cfg, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.EventOverlays+res.EventFailed+res.EventSkipped)
	assert.FileExists(t, filepath.Join(out, CMEOverlayFile))
	assert.NoFileExists(t, filepath.Join(out, cme.FinalFile))
}
