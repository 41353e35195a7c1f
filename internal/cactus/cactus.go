// Package cactus parses the SIDC CACTus CME catalog (cmecat text export).
//
// Catalog lines are pipe separated:
//
//	CME | t0 | dt0 | pa | da | v | dv | minv | maxv | halo?
//
// where the CME field may carry an HTML anchor around the numeric ID.
package cactus

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/KI7MT/ki7mt-swx-lab/internal/table"
)

// SunToL1Km is the Sun to L1 distance used for the ballistic arrival estimate.
const SunToL1Km = 1.5e6

// Columns is the CSV header written by Table.
var Columns = []string{"ID", "Start", "End", "Speed", "PA", "da", "ArrivalTime_L1"}

const startLayout = "2006/01/02 15:04"

var idPattern = regexp.MustCompile(`>(\d+)</a>`)

// CME is one catalog detection.
type CME struct {
	ID    string
	Start time.Time
	End   time.Time
	Speed float64 // km/s
	PA    float64 // principal angle, deg
	DA    float64 // angular width, deg
	// ArrivalL1 is zero when the speed is not positive.
	ArrivalL1 time.Time
}

// Catalog is the parsed catalog plus line accounting.
type Catalog struct {
	CMEs    []CME
	Flows   int
	Skipped int
}

// Parse reads a cmecat listing. Lines with fewer than six fields are ignored,
// flow entries are counted and dropped, and lines that fail to parse are
// counted in Skipped.
func Parse(r io.Reader) (*Catalog, error) {
	c := &Catalog{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), "|")
		if len(parts) < 6 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if strings.Contains(parts[0], "Flow") {
			c.Flows++
			continue
		}

		cme, err := parseLine(parts)
		if err != nil {
			c.Skipped++
			continue
		}
		c.CMEs = append(c.CMEs, cme)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return c, nil
}

func parseLine(parts []string) (CME, error) {
	id := parts[0]
	if m := idPattern.FindStringSubmatch(parts[0]); m != nil {
		id = m[1]
	}

	start, err := time.Parse(startLayout, parts[1])
	if err != nil {
		return CME{}, err
	}
	duration, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return CME{}, err
	}
	speed, err := strconv.ParseFloat(parts[5], 64)
	if err != nil {
		return CME{}, err
	}
	pa, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return CME{}, err
	}
	da, err := strconv.ParseFloat(parts[4], 64)
	if err != nil {
		return CME{}, err
	}

	return CME{
		ID:        id,
		Start:     start,
		End:       start.Add(micros(duration * 3600)),
		Speed:     speed,
		PA:        pa,
		DA:        da,
		ArrivalL1: ArrivalL1(start, speed),
	}, nil
}

// ArrivalL1 returns the constant-speed arrival time at L1, or the zero time
// when the speed is not a positive finite number or the travel time rounds
// to nothing.
func ArrivalL1(start time.Time, speed float64) time.Time {
	if !(speed > 0) || math.IsInf(speed, 1) {
		return time.Time{}
	}
	travel := micros(SunToL1Km / speed)
	if travel <= 0 {
		return time.Time{}
	}
	return start.Add(travel)
}

// micros converts seconds to a Duration rounded to the microsecond.
func micros(sec float64) time.Duration {
	return time.Duration(math.Round(sec*1e6)) * time.Microsecond
}

// Table renders the catalog with the Columns header. Each time column shares
// one precision.
func (c *Catalog) Table() *table.Table {
	n := len(c.CMEs)
	starts := make([]time.Time, n)
	ends := make([]time.Time, n)
	arrivals := make([]time.Time, n)
	for i, cme := range c.CMEs {
		starts[i], ends[i], arrivals[i] = cme.Start, cme.End, cme.ArrivalL1
	}
	startCells := table.FormatTimes(starts)
	endCells := table.FormatTimes(ends)
	arrivalCells := table.FormatTimes(arrivals)

	t := table.New(Columns...)
	for i, cme := range c.CMEs {
		t.Rows = append(t.Rows, []string{
			cme.ID,
			startCells[i],
			endCells[i],
			table.FormatFloat(cme.Speed),
			table.FormatFloat(cme.PA),
			table.FormatFloat(cme.DA),
			arrivalCells[i],
		})
	}
	return t
}

// WriteCSV writes the catalog table atomically.
func (c *Catalog) WriteCSV(path string) error {
	return c.Table().WriteCSV(path)
}

// Coverage summarizes a parsed catalog for the run log.
type Coverage struct {
	Count     int
	First     time.Time
	Last      time.Time
	MinSpeed  float64
	MaxSpeed  float64
	MeanSpeed float64
	Halo      int
}

// Coverage computes catalog statistics. Speeds are NaN for an empty catalog.
func (c *Catalog) Coverage() Coverage {
	cov := Coverage{
		Count:     len(c.CMEs),
		MinSpeed:  math.NaN(),
		MaxSpeed:  math.NaN(),
		MeanSpeed: math.NaN(),
	}
	if len(c.CMEs) == 0 {
		return cov
	}

	speeds := make([]float64, len(c.CMEs))
	for i, cme := range c.CMEs {
		speeds[i] = cme.Speed
		if cme.DA >= 360 {
			cov.Halo++
		}
		if cov.First.IsZero() || cme.Start.Before(cov.First) {
			cov.First = cme.Start
		}
		if cme.Start.After(cov.Last) {
			cov.Last = cme.Start
		}
	}
	cov.MinSpeed = floats.Min(speeds)
	cov.MaxSpeed = floats.Max(speeds)
	cov.MeanSpeed = stat.Mean(speeds, nil)
	return cov
}
