package swis

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/KI7MT/ki7mt-swx-lab/internal/chart"
	"github.com/KI7MT/ki7mt-swx-lab/internal/common"
	"github.com/KI7MT/ki7mt-swx-lab/internal/table"
)

// Merged CSV column names.
const (
	ColTime    = "Time"
	ColDensity = "Density (cm³)"
	ColSpeed   = "Speed (km/s)"
	ColTemp    = "Temperature (K)"
	ColX       = "X_Pos"
	ColY       = "Y_Pos"
	ColZ       = "Z_Pos"

	// MergedFile is the default name of the merged CSV.
	MergedFile = "merged_blk_th2_data.csv"
)

// Table renders the merged series: time, moments, position, then one column
// per flux channel.
func (m *Merged) Table() *table.Table {
	cols := append([]string{ColTime, ColDensity, ColSpeed, ColTemp, ColX, ColY, ColZ}, m.Channels...)
	t := table.New(cols...)

	times := table.FormatTimes(m.Time)
	for i := range m.Time {
		row := make([]string, 0, len(cols))
		row = append(row,
			times[i],
			table.FormatFloat(m.Density[i]),
			table.FormatFloat(m.Speed[i]),
			table.FormatFloat(m.Temp[i]),
			table.FormatFloat(m.X[i]),
			table.FormatFloat(m.Y[i]),
			table.FormatFloat(m.Z[i]),
		)
		for _, col := range m.Flux {
			row = append(row, table.FormatFloat(col[i]))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// WriteCSV writes the merged table atomically.
func (m *Merged) WriteCSV(path string) error {
	return m.Table().WriteCSV(path)
}

// Record is one merged sample in the Parquet export. Flux holds the channels
// named in the file's flux_channels metadata, in order.
type Record struct {
	Timestamp int64     `parquet:"timestamp"` // Unix microseconds
	Density   float64   `parquet:"density"`
	Speed     float64   `parquet:"speed"`
	Temp      float64   `parquet:"temperature"`
	XPos      float64   `parquet:"x_pos"`
	YPos      float64   `parquet:"y_pos"`
	ZPos      float64   `parquet:"z_pos"`
	Flux      []float64 `parquet:"flux,list"`
}

// ChannelsKey is the Parquet key-value metadata entry listing flux channels.
const ChannelsKey = "flux_channels"

// Records returns the merged series as Parquet rows.
func (m *Merged) Records() []Record {
	out := make([]Record, m.Len())
	for i, t := range m.Time {
		flux := make([]float64, len(m.Flux))
		for c, col := range m.Flux {
			flux[c] = col[i]
		}
		out[i] = Record{
			Timestamp: t.UnixMicro(),
			Density:   m.Density[i],
			Speed:     m.Speed[i],
			Temp:      m.Temp[i],
			XPos:      m.X[i],
			YPos:      m.Y[i],
			ZPos:      m.Z[i],
			Flux:      flux,
		}
	}
	return out
}

// WriteParquet writes the merged series as a Parquet file.
func (m *Merged) WriteParquet(path string) error {
	rows := m.Records()
	return common.WriteFileAtomic(path, func(w io.Writer) error {
		pw := parquet.NewGenericWriter[Record](w,
			parquet.KeyValueMetadata(ChannelsKey, strings.Join(m.Channels, "\t")),
		)
		if _, err := pw.Write(rows); err != nil {
			pw.Close()
			return fmt.Errorf("parquet write: %w", err)
		}
		return pw.Close()
	})
}

// ReadParquet loads a file written by WriteParquet.
func ReadParquet(path string) (*Merged, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parquet open %s: %w", filepath.Base(path), err)
	}

	m := &Merged{}
	if v, ok := pf.Lookup(ChannelsKey); ok && v != "" {
		m.Channels = strings.Split(v, "\t")
	}
	m.Flux = make([][]float64, len(m.Channels))

	reader := parquet.NewGenericReader[Record](pf)
	defer reader.Close()

	rows := make([]Record, 1024)
	for {
		n, err := reader.Read(rows)
		for _, r := range rows[:n] {
			m.Time = append(m.Time, time.UnixMicro(r.Timestamp).UTC())
			m.Density = append(m.Density, r.Density)
			m.Speed = append(m.Speed, r.Speed)
			m.Temp = append(m.Temp, r.Temp)
			m.X = append(m.X, r.XPos)
			m.Y = append(m.Y, r.YPos)
			m.Z = append(m.Z, r.ZPos)
			if len(r.Flux) != len(m.Channels) {
				return nil, fmt.Errorf("row has %d flux values, file names %d channels", len(r.Flux), len(m.Channels))
			}
			for c, v := range r.Flux {
				m.Flux[c] = append(m.Flux[c], v)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parquet read: %w", err)
		}
	}
	return m, nil
}

// PlotDPI is the resolution of the merge plots.
const PlotDPI = 300

// Plots renders the density, speed, temperature, total flux and position
// figures into dir and returns the written paths.
func (m *Merged) Plots(dir string) ([]string, error) {
	line := func(label string, v []float64) chart.Series {
		return chart.Series{Label: label, Times: m.Time, Values: v}
	}
	figures := []struct {
		file string
		fig  chart.Figure
	}{
		{"plot_density.png", chart.Figure{Title: "Proton Density Over Time", YLabel: "cm³",
			Lines: []chart.Series{line(ColDensity, m.Density)}}},
		{"plot_speed.png", chart.Figure{Title: "Proton Speed Over Time", YLabel: "km/s",
			Lines: []chart.Series{line(ColSpeed, m.Speed)}}},
		{"plot_temperature.png", chart.Figure{Title: "Proton Temperature Over Time", YLabel: "K",
			Lines: []chart.Series{line(ColTemp, m.Temp)}}},
		{"plot_flux_timeseries.png", chart.Figure{Title: "Total Integrated Flux (Time Series)", YLabel: "Flux",
			Lines: []chart.Series{line("Flux_Total", m.FluxTotal())}}},
		{"plot_spacecraft_xyz.png", chart.Figure{Title: "Spacecraft Position (L2_BLK)", YLabel: "Position (km)",
			Lines: []chart.Series{line(ColX, m.X), line(ColY, m.Y), line(ColZ, m.Z)}}},
	}

	var written []string
	for _, f := range figures {
		fig := f.fig
		fig.DPI = PlotDPI
		path := filepath.Join(dir, f.file)
		if err := fig.Save(path); err != nil {
			return written, fmt.Errorf("%s: %w", f.file, err)
		}
		written = append(written, path)
	}
	return written, nil
}
