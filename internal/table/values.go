package table

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the timestamp format written to every CSV output.
const TimeLayout = "2006-01-02 15:04:05"

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02",
}

// ParseTime parses the timestamp forms found in DONKI, CACTus and pandas CSV
// output. Any zone is dropped and the wall clock kept, in UTC. Empty or
// unparseable cells return the zero time.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" || s == "NaT" || s == "NaN" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(),
				t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
		}
	}
	return time.Time{}
}

// FormatTime writes t with TimeLayout, adding microseconds only when present.
// Zero times become empty cells.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	if t.Nanosecond() != 0 {
		return t.Format(TimeLayout + ".000000")
	}
	return t.Format(TimeLayout)
}

// FormatTimes formats a whole column with one precision: microseconds on
// every cell when any value has a sub-second part.
func FormatTimes(times []time.Time) []string {
	layout := TimeLayout
	for _, t := range times {
		if t.Nanosecond() != 0 {
			layout = TimeLayout + ".000000"
			break
		}
	}
	out := make([]string, len(times))
	for i, t := range times {
		if !t.IsZero() {
			out[i] = t.Format(layout)
		}
	}
	return out
}

// ParseFloat parses a numeric cell; empty or invalid cells are NaN.
func ParseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// FormatFloat writes v in plain decimal notation, switching to exponent form
// for very large or very small magnitudes. NaN becomes an empty cell.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	if math.IsInf(v, 0) {
		if v > 0 {
			return "inf"
		}
		return "-inf"
	}
	abs := math.Abs(v)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatBool writes booleans the way the analysis notebooks expect them.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// ParseBool accepts True/true/1 as true; anything else is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1":
		return true
	}
	return false
}
