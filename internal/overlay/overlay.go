// Package overlay aligns the merged SWIS series with CME arrivals and DONKI
// events by nearest timestamp, and renders the comparison figures.
package overlay

import (
	"fmt"
	"time"

	"github.com/KI7MT/ki7mt-swx-lab/internal/asof"
	"github.com/KI7MT/ki7mt-swx-lab/internal/cme"
	"github.com/KI7MT/ki7mt-swx-lab/internal/swis"
	"github.com/KI7MT/ki7mt-swx-lab/internal/table"
)

// EventTime is the DONKI column used to place events.
const EventTime = "eventTime"

// Output names.
const (
	CMEOverlayFile = "SWIS_CME_OVERLAY_FULL.csv"
	eventPrefix    = "SWIS_OVERLAY_"
	plotPrefix     = "PLOT_OVERLAY_"
)

// Overlay is the SWIS series (time ordered) with the matched right-hand row
// appended to each sample.
type Overlay struct {
	Table   *table.Table
	Time    []time.Time
	Matched []bool
}

// Matches returns the number of samples with a match.
func (o *Overlay) Matches() int {
	n := 0
	for _, m := range o.Matched {
		if m {
			n++
		}
	}
	return n
}

func join(s *swis.Series, right *table.Table, rightTimes []time.Time, tol time.Duration) (*Overlay, error) {
	left := s.Sorted()
	match := asof.Nearest(left.Time, rightTimes, tol)
	t, err := table.Join(left.Table, right, match)
	if err != nil {
		return nil, err
	}
	matched := make([]bool, len(match))
	for i, k := range match {
		matched[i] = k >= 0
	}
	return &Overlay{Table: t, Time: left.Time, Matched: matched}, nil
}

// CME attaches to every SWIS sample the CME whose L1 arrival is nearest
// within tol.
func CME(s *swis.Series, c *cme.Catalog, tol time.Duration) (*Overlay, error) {
	right, arrivals := c.ByArrival()
	return join(s, right, arrivals, tol)
}

// Events attaches DONKI events by eventTime. ok is false when the table has
// no eventTime column.
func Events(s *swis.Series, events *table.Table, tol time.Duration) (o *Overlay, ok bool, err error) {
	if !events.Has(EventTime) {
		return nil, false, nil
	}

	times := make([]time.Time, events.Len())
	for i, cell := range events.Column(EventTime) {
		times[i] = table.ParseTime(cell)
	}
	if err := events.SetColumn(EventTime, table.FormatTimes(times)); err != nil {
		return nil, true, err
	}

	idx := asof.Order(times)
	o, err = join(s, events.Reorder(idx), asof.Permute(times, idx), tol)
	if err != nil {
		return nil, true, fmt.Errorf("join events: %w", err)
	}
	return o, true, nil
}
