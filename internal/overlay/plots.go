package overlay

import (
	"math"
	"path/filepath"
	"sort"

	"github.com/KI7MT/ki7mt-swx-lab/internal/chart"
	"github.com/KI7MT/ki7mt-swx-lab/internal/cme"
	"github.com/KI7MT/ki7mt-swx-lab/internal/swis"
	"github.com/KI7MT/ki7mt-swx-lab/internal/table"
)

// SpeedColumn picks the CME speed column of an overlay table: Speed, else
// Speed_init, else "".
func SpeedColumn(t *table.Table) string {
	for _, c := range []string{cme.ColSpeed, cme.ColSpeedInit} {
		if t.Has(c) {
			return c
		}
	}
	return ""
}

// values parses a numeric overlay column. A SWIS column renamed by a clash
// with the right-hand table is found under its _x name.
func (o *Overlay) values(col string) []float64 {
	out := make([]float64, len(o.Time))
	cells := o.Table.Column(col)
	if cells == nil {
		cells = o.Table.Column(col + "_x")
	}
	for i := range out {
		out[i] = math.NaN()
		if cells != nil {
			out[i] = table.ParseFloat(cells[i])
		}
	}
	return out
}

// where keeps values at rows for which keep is true, NaN elsewhere.
func where(values []float64, keep func(i int) bool) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.NaN()
		if keep(i) {
			out[i] = v
		}
	}
	return out
}

// CMEFigures builds the density, speed, temperature and flux comparisons.
// Speed and temperature figures are only built when the SWIS series has the
// column.
func CMEFigures(s *swis.Series, o *Overlay, dpi int) map[string]*chart.Figure {
	series := s.Sorted()
	line := func(label, col string, c chart.Series) chart.Series {
		c.Label = label
		c.Times = series.Time
		c.Values = series.Values(col)
		return c
	}

	var cmeSpeed []chart.Series
	var halo []chart.Series
	if col := SpeedColumn(o.Table); col != "" {
		speeds := o.values(col)
		cmeSpeed = []chart.Series{{Label: "CME Speed", Times: o.Time, Values: speeds, Color: chart.Red}}
		if o.Table.Has(cme.ColHaloFlag) {
			flags := o.Table.Column(cme.ColHaloFlag)
			halo = []chart.Series{{
				Label:  "Halo CME",
				Times:  o.Time,
				Values: where(speeds, func(i int) bool { return table.ParseBool(flags[i]) }),
				Color:  chart.Black,
			}}
		}
	}

	figs := map[string]*chart.Figure{
		"Overlay_Density_vs_CME.png": {
			Title:   "SWIS Density vs CME Arrival",
			YLabel:  "Density / Speed",
			Lines:   []chart.Series{line("SWIS Density", swis.Density, chart.Series{Color: chart.Blue})},
			Scatter: cmeSpeed,
			Crosses: halo,
		},
	}
	if s.Table.Has(swis.SpeedSWIS) {
		figs["Overlay_Speed_vs_CME.png"] = &chart.Figure{
			Title:   "SWIS Speed vs CME",
			Lines:   []chart.Series{line("SWIS Speed", swis.SpeedSWIS, chart.Series{Color: chart.Green})},
			Scatter: cmeSpeed,
		}
	}
	if s.Table.Has(swis.TempSWIS) {
		figs["Overlay_Temp_vs_CME.png"] = &chart.Figure{
			Title:   "SWIS Temp vs CME",
			Lines:   []chart.Series{line("SWIS Temperature", swis.TempSWIS, chart.Series{Color: chart.Orange})},
			Scatter: cmeSpeed,
		}
	}
	if s.Table.Has(swis.IntegratedFlux) {
		flux := o.values(swis.IntegratedFlux)
		figs["Overlay_Integrated_Flux_vs_CME.png"] = &chart.Figure{
			Title: "Integrated Flux vs CME",
			Lines: []chart.Series{line("Integrated Flux", swis.IntegratedFlux, chart.Series{Color: chart.Purple})},
			Scatter: []chart.Series{{
				Label:  "CME Arrival",
				Times:  o.Time,
				Values: where(flux, func(i int) bool { return o.Matched[i] }),
				Color:  chart.Red,
			}},
		}
	}

	for _, f := range figs {
		f.DPI = dpi
	}
	return figs
}

// EventFigure plots SWIS density with the samples that matched a DONKI event.
func EventFigure(s *swis.Series, o *Overlay, stem string, dpi int) *chart.Figure {
	series := s.Sorted()
	density := o.values(swis.Density)
	return &chart.Figure{
		Title: "Overlay with " + stem,
		Lines: []chart.Series{{
			Label:  "SWIS Density",
			Times:  series.Time,
			Values: series.Values(swis.Density),
			Color:  chart.Blue,
		}},
		Scatter: []chart.Series{{
			Label:  "Event Overlay",
			Times:  o.Time,
			Values: where(density, func(i int) bool { return o.Matched[i] }),
			Color:  chart.Orange,
		}},
		DPI: dpi,
	}
}

// saveFigures writes figs into dir and returns the paths written.
func saveFigures(dir string, figs map[string]*chart.Figure) ([]string, error) {
	var written []string
	for _, name := range sortedKeys(figs) {
		path := filepath.Join(dir, name)
		if err := figs[name].Save(path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func sortedKeys(m map[string]*chart.Figure) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
