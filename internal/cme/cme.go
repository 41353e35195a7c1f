// Package cme derives propagation and interaction columns for a merged CME
// catalog (CACTus, DONKI and OMNI joined upstream).
package cme

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/KI7MT/ki7mt-swx-lab/internal/asof"
	"github.com/KI7MT/ki7mt-swx-lab/internal/table"
)

// Input columns.
const (
	ColStart      = "Start"
	ColArrival    = "Arrival_L1"
	ColDatetime   = "Datetime"
	ColSpeed      = "Speed"
	ColSpeedX     = "Speed_x"
	ColSpeedY     = "Speed_y"
	ColHalo       = "Halo"
	ColAccurate   = "Accurate"
	ColImpactType = "ImpactType"
)

// Derived columns, in the order they are added.
const (
	ColSpeedInit       = "Speed_init"
	ColSpeedSolarWind  = "Speed_solarwind"
	ColTransit         = "Transit_drag_hr"
	ColPredicted       = "Predicted_Arrival"
	ColDelay           = "Delay_hr"
	ColHaloFlag        = "HaloFlag"
	ColGeoEffFlag      = "GeoEffFlag"
	ColNextStart       = "Next_CME_Start"
	ColInteractionGap  = "CME_Interaction_HourGap"
	ColInteractionFlag = "CME_Interaction_Flag"
)

const (
	// DefaultImpactType fills ImpactType when the catalog lacks the column.
	DefaultImpactType = "Unknown"

	// FinalFile is the default name of the derived catalog.
	FinalFile = "FINAL_CME_FULL_UNION.csv"
)

// Params are the drag model and interaction settings.
type Params struct {
	// Gamma is the drag coefficient in 1/s.
	Gamma float64
	// DistanceKm is the Sun to L1 distance.
	DistanceKm float64
	// InteractionHours flags a CME whose successor starts sooner than this
	// after its L1 arrival.
	InteractionHours float64
}

// DefaultParams returns gamma = 0.1/h over 1.5e6 km with a 24 h window.
func DefaultParams() Params {
	return Params{
		Gamma:            0.1 / 3600,
		DistanceKm:       1.5e6,
		InteractionHours: 24,
	}
}

// DragTransitHours is the drag-based transit time
//
//	ln(1 + γD/(v0 - vsw)) / γ / 3600
//
// in hours. It is NaN when a speed is missing or v0 <= vsw.
func DragTransitHours(v0, vsw float64, p Params) float64 {
	if math.IsNaN(v0) || math.IsNaN(vsw) || v0 <= vsw {
		return math.NaN()
	}
	return math.Log(1+p.Gamma*p.DistanceKm/(v0-vsw)) / p.Gamma / 3600
}

// Catalog is a CME table with its parsed time columns.
type Catalog struct {
	Table   *table.Table
	Start   []time.Time
	Arrival []time.Time
}

// LoadCatalog reads a merged catalog CSV (plain or .gz).
func LoadCatalog(path string) (*Catalog, error) {
	t, err := table.ReadCSV(path)
	if err != nil {
		return nil, err
	}
	return NewCatalog(t)
}

// NewCatalog trims column names and parses Start, Arrival_L1 and, when
// present, Datetime. Any zone is dropped.
func NewCatalog(t *table.Table) (*Catalog, error) {
	t.TrimColumns()
	for _, col := range []string{ColStart, ColArrival} {
		if !t.Has(col) {
			return nil, fmt.Errorf("catalog has no %s column", col)
		}
	}

	c := &Catalog{Table: t}
	var err error
	if c.Start, err = normalizeTimes(t, ColStart); err != nil {
		return nil, err
	}
	if c.Arrival, err = normalizeTimes(t, ColArrival); err != nil {
		return nil, err
	}
	if t.Has(ColDatetime) {
		if _, err := normalizeTimes(t, ColDatetime); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func normalizeTimes(t *table.Table, col string) ([]time.Time, error) {
	cells := t.Column(col)
	times := make([]time.Time, len(cells))
	for i, cell := range cells {
		times[i] = table.ParseTime(cell)
	}
	return times, t.SetColumn(col, table.FormatTimes(times))
}

// Len returns the number of CMEs.
func (c *Catalog) Len() int { return len(c.Start) }

func (c *Catalog) floats(col string) []float64 {
	out := make([]float64, c.Len())
	cells := c.Table.Column(col)
	for i := range out {
		if cells == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = table.ParseFloat(cells[i])
	}
	return out
}

// Derive adds the propagation, flag and interaction columns and sorts the
// catalog by Start (rows without a start last).
func (c *Catalog) Derive(p Params) error {
	n := c.Len()
	t := c.Table

	speedCol := ColSpeedX
	if !t.Has(speedCol) {
		speedCol = ColSpeed
	}
	v0 := c.floats(speedCol)
	vsw := c.floats(ColSpeedY)

	transit := make([]float64, n)
	predicted := make([]time.Time, n)
	delay := make([]float64, n)
	for i := range transit {
		transit[i] = DragTransitHours(v0[i], vsw[i], p)
		if !math.IsNaN(transit[i]) && !c.Start[i].IsZero() {
			predicted[i] = c.Start[i].Add(hours(transit[i]))
		}
		delay[i] = hoursBetween(predicted[i], c.Arrival[i])
	}

	halo := make([]string, n)
	geo := make([]string, n)
	haloCells := t.Column(ColHalo)
	accurate := t.Column(ColAccurate)
	for i := range halo {
		halo[i] = table.FormatBool(haloCells != nil && haloCells[i] == "Halo")
		geo[i] = table.FormatBool(accurate != nil && strings.Contains(strings.ToLower(accurate[i]), "true"))
	}

	for _, col := range []struct {
		name   string
		values []string
	}{
		{ColSpeedInit, formatFloats(v0)},
		{ColSpeedSolarWind, formatFloats(vsw)},
		{ColTransit, formatFloats(transit)},
		{ColPredicted, table.FormatTimes(predicted)},
		{ColDelay, formatFloats(delay)},
		{ColHaloFlag, halo},
		{ColGeoEffFlag, geo},
	} {
		if err := t.SetColumn(col.name, col.values); err != nil {
			return err
		}
	}
	if !t.Has(ColImpactType) {
		impact := make([]string, n)
		for i := range impact {
			impact[i] = DefaultImpactType
		}
		if err := t.SetColumn(ColImpactType, impact); err != nil {
			return err
		}
	}

	idx := asof.Order(c.Start)
	c.Table = t.Reorder(idx)
	c.Start = asof.Permute(c.Start, idx)
	c.Arrival = asof.Permute(c.Arrival, idx)

	next := make([]time.Time, n)
	gap := make([]float64, n)
	flag := make([]string, n)
	for i := range next {
		if i+1 < n {
			next[i] = c.Start[i+1]
		}
		gap[i] = hoursBetween(c.Arrival[i], next[i])
		flag[i] = table.FormatBool(gap[i] < p.InteractionHours)
	}
	for _, col := range []struct {
		name   string
		values []string
	}{
		{ColNextStart, table.FormatTimes(next)},
		{ColInteractionGap, formatFloats(gap)},
		{ColInteractionFlag, flag},
	} {
		if err := c.Table.SetColumn(col.name, col.values); err != nil {
			return err
		}
	}
	return nil
}

// ByArrival returns the catalog table and arrival times ordered by
// Arrival_L1, rows without an arrival last.
func (c *Catalog) ByArrival() (*table.Table, []time.Time) {
	idx := asof.Order(c.Arrival)
	return c.Table.Reorder(idx), asof.Permute(c.Arrival, idx)
}

// WriteCSV writes the catalog atomically.
func (c *Catalog) WriteCSV(path string) error {
	return c.Table.WriteCSV(path)
}

// Summary counts the derived flags.
type Summary struct {
	CMEs        int
	Halo        int
	GeoEffect   int
	Interacting int
	WithTransit int
}

// Summarize reports flag counts over a derived catalog.
func (c *Catalog) Summarize() Summary {
	s := Summary{CMEs: c.Len()}
	for r := range c.Table.Rows {
		if table.ParseBool(c.Table.Get(r, ColHaloFlag)) {
			s.Halo++
		}
		if table.ParseBool(c.Table.Get(r, ColGeoEffFlag)) {
			s.GeoEffect++
		}
		if table.ParseBool(c.Table.Get(r, ColInteractionFlag)) {
			s.Interacting++
		}
		if c.Table.Get(r, ColTransit) != "" {
			s.WithTransit++
		}
	}
	return s
}

func hours(h float64) time.Duration {
	return time.Duration(math.Round(h * float64(time.Hour)))
}

// hoursBetween returns b - a in hours, NaN when either time is missing.
func hoursBetween(a, b time.Time) float64 {
	if a.IsZero() || b.IsZero() {
		return math.NaN()
	}
	return b.Sub(a).Hours()
}

func formatFloats(v []float64) []string {
	out := make([]string, len(v))
	for i, x := range v {
		out[i] = table.FormatFloat(x)
	}
	return out
}
