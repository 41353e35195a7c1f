// Package chart renders time-series PNG figures with gonum/plot.
package chart

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/KI7MT/ki7mt-swx-lab/internal/common"
)

// Named colors used by the overlay figures.
var (
	Blue   = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	Orange = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	Green  = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	Red    = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	Purple = color.RGBA{R: 148, G: 103, B: 189, A: 255}
	Black  = color.RGBA{A: 255}
)

// Default figure geometry.
const (
	DefaultWidth  = 14 * vg.Inch
	DefaultHeight = 6 * vg.Inch
	DefaultDPI    = 100
)

// Series is one named sequence of samples. Color nil picks from the palette.
type Series struct {
	Label  string
	Times  []time.Time
	Values []float64
	Color  color.Color
}

// Figure is a time-series plot: lines, point clouds and cross markers share
// one time axis.
type Figure struct {
	Title  string
	XLabel string
	YLabel string

	Lines   []Series
	Scatter []Series
	Crosses []Series

	Width  vg.Length
	Height vg.Length
	DPI    int
}

// Points returns the finite samples of s as plot coordinates (Unix seconds on
// X). Zero times and non-finite values are dropped.
func (s Series) Points() plotter.XYs {
	n := min(len(s.Times), len(s.Values))
	xys := make(plotter.XYs, 0, n)
	for i := 0; i < n; i++ {
		if xy, ok := s.point(i); ok {
			xys = append(xys, xy)
		}
	}
	return xys
}

// Segments splits s into runs of consecutive finite samples, so a line
// breaks at every missing value instead of bridging the gap.
func (s Series) Segments() []plotter.XYs {
	var (
		out []plotter.XYs
		run plotter.XYs
	)
	n := min(len(s.Times), len(s.Values))
	for i := 0; i < n; i++ {
		xy, ok := s.point(i)
		if !ok {
			if len(run) > 0 {
				out = append(out, run)
				run = nil
			}
			continue
		}
		run = append(run, xy)
	}
	if len(run) > 0 {
		out = append(out, run)
	}
	return out
}

func (s Series) point(i int) (plotter.XY, bool) {
	t, v := s.Times[i], s.Values[i]
	if t.IsZero() || math.IsNaN(v) || math.IsInf(v, 0) {
		return plotter.XY{}, false
	}
	return plotter.XY{X: float64(t.Unix()) + float64(t.Nanosecond())/1e9, Y: v}, true
}

// Plot builds the gonum plot for the figure.
func (f *Figure) Plot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = f.Title
	p.X.Label.Text = f.XLabel
	if p.X.Label.Text == "" {
		p.X.Label.Text = "Time"
	}
	p.Y.Label.Text = f.YLabel
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02\n15:04"}
	p.Legend.Top = true

	grid := plotter.NewGrid()
	grid.Vertical.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	grid.Horizontal.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(grid)

	palette := 0
	pick := func(c color.Color) color.Color {
		if c != nil {
			return c
		}
		palette++
		return plotutil.Color(palette - 1)
	}

	for _, s := range f.Lines {
		segs := s.Segments()
		if len(segs) == 0 {
			continue
		}
		c := pick(s.Color)
		for i, xys := range segs {
			l, err := plotter.NewLine(xys)
			if err != nil {
				return nil, fmt.Errorf("line %q: %w", s.Label, err)
			}
			l.Color = c
			l.Width = vg.Points(1)
			p.Add(l)
			if i == 0 {
				p.Legend.Add(s.Label, l)
			}
		}
	}

	for _, group := range []struct {
		series []Series
		shape  draw.GlyphDrawer
		radius vg.Length
	}{
		{f.Scatter, draw.CircleGlyph{}, vg.Points(2)},
		{f.Crosses, draw.CrossGlyph{}, vg.Points(4)},
	} {
		for _, s := range group.series {
			xys := s.Points()
			if len(xys) == 0 {
				continue
			}
			sc, err := plotter.NewScatter(xys)
			if err != nil {
				return nil, fmt.Errorf("scatter %q: %w", s.Label, err)
			}
			sc.GlyphStyle.Color = pick(s.Color)
			sc.GlyphStyle.Shape = group.shape
			sc.GlyphStyle.Radius = group.radius
			p.Add(sc)
			p.Legend.Add(s.Label, sc)
		}
	}
	return p, nil
}

// Save renders the figure as PNG at path.
func (f *Figure) Save(path string) error {
	p, err := f.Plot()
	if err != nil {
		return err
	}

	w, h, dpi := f.Width, f.Height, f.DPI
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	c := vgimg.PngCanvas{Canvas: vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(dpi))}
	p.Draw(draw.New(c))

	return common.WriteFileAtomic(path, func(out io.Writer) error {
		_, err := c.WriteTo(out)
		return err
	})
}
