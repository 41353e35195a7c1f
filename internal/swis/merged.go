package swis

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/KI7MT/ki7mt-swx-lab/internal/asof"
	"github.com/KI7MT/ki7mt-swx-lab/internal/table"
)

// Column names after LoadMerged renames them.
const (
	Density        = "Density"
	SpeedSWIS      = "Speed_SWIS"
	TempSWIS       = "Temp_SWIS"
	IntegratedFlux = "Integrated_Flux"
)

var renames = map[string]string{
	ColDensity: Density,
	ColSpeed:   SpeedSWIS,
	ColTemp:    TempSWIS,
}

// Series is a merged SWIS table prepared for overlays: renamed columns,
// parsed times and an Integrated_Flux column.
type Series struct {
	Table *table.Table
	Time  []time.Time
}

// LoadMerged reads a merged CSV (plain or .gz). Column names are trimmed and
// the Latin-1 "Â³" mis-decoding is repaired before renaming. Integrated_Flux
// is the NaN-skipping sum of every column whose name contains "flux" in any
// case, or NaN when no such column exists.
func LoadMerged(path string) (*Series, error) {
	t, err := table.ReadCSV(path)
	if err != nil {
		return nil, err
	}
	return NewSeries(t)
}

// NewSeries prepares an already loaded merged table.
func NewSeries(t *table.Table) (*Series, error) {
	t.MapColumns(func(c string) string {
		return strings.ReplaceAll(strings.TrimSpace(c), "Â³", "³")
	})
	t.Rename(renames)

	if !t.Has(ColTime) {
		return nil, fmt.Errorf("merged table has no %s column", ColTime)
	}
	times := make([]time.Time, t.Len())
	for i, cell := range t.Column(ColTime) {
		times[i] = table.ParseTime(cell)
	}
	if err := t.SetColumn(ColTime, table.FormatTimes(times)); err != nil {
		return nil, err
	}

	var fluxCols []int
	for i, c := range t.Columns {
		if strings.Contains(strings.ToLower(c), "flux") {
			fluxCols = append(fluxCols, i)
		}
	}
	total := make([]string, t.Len())
	for r, row := range t.Rows {
		v := math.NaN()
		if len(fluxCols) > 0 {
			v = 0
			for _, c := range fluxCols {
				if x := table.ParseFloat(row[c]); !math.IsNaN(x) {
					v += x
				}
			}
		}
		total[r] = table.FormatFloat(v)
	}
	if err := t.SetColumn(IntegratedFlux, total); err != nil {
		return nil, err
	}

	return &Series{Table: t, Time: times}, nil
}

// Len returns the number of samples.
func (s *Series) Len() int { return len(s.Time) }

// Values parses a numeric column; a missing column is all NaN.
func (s *Series) Values(col string) []float64 {
	out := make([]float64, s.Len())
	cells := s.Table.Column(col)
	for i := range out {
		if cells == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = table.ParseFloat(cells[i])
	}
	return out
}

// Sorted returns the series ordered by time, rows without a time last.
func (s *Series) Sorted() *Series {
	idx := asof.Order(s.Time)
	return &Series{Table: s.Table.Reorder(idx), Time: asof.Permute(s.Time, idx)}
}

// Records converts the series back to merged rows. Flux channels are the
// columns naming flux other than Integrated_Flux, in table order.
func (s *Series) Records() ([]Record, []string) {
	var channels []string
	for _, c := range s.Table.Columns {
		if c != IntegratedFlux && strings.Contains(strings.ToLower(c), "flux") {
			channels = append(channels, c)
		}
	}

	density := s.Values(Density)
	speed := s.Values(SpeedSWIS)
	temp := s.Values(TempSWIS)
	x, y, z := s.Values(ColX), s.Values(ColY), s.Values(ColZ)
	flux := make([][]float64, len(channels))
	for c, name := range channels {
		flux[c] = s.Values(name)
	}

	out := make([]Record, 0, s.Len())
	for i, t := range s.Time {
		if t.IsZero() {
			continue
		}
		r := Record{
			Timestamp: t.UnixMicro(),
			Density:   density[i],
			Speed:     speed[i],
			Temp:      temp[i],
			XPos:      x[i],
			YPos:      y[i],
			ZPos:      z[i],
			Flux:      make([]float64, len(channels)),
		}
		for c := range channels {
			r.Flux[c] = flux[c][i]
		}
		out = append(out, r)
	}
	return out, channels
}
