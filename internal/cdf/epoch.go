package cdf

import (
	"math"
	"time"
)

// Milliseconds from 0000-01-01T00:00:00 to the Unix epoch.
const epochUnixMillis = 62167219200000.0

// TT2000 zero (2000-01-01T12:00:00 TT) expressed in UTC, when TAI-UTC was 32s.
var tt2000Base = time.Date(2000, 1, 1, 11, 58, 55, 816000000, time.UTC)

// Fill values defined by the CDF standard.
const (
	EpochFill  = -1e31
	TT2000Fill = math.MinInt64
)

// EpochTime converts a CDF_EPOCH value (ms since year 0) to UTC.
func EpochTime(ms float64) time.Time {
	if math.IsNaN(ms) || ms <= EpochFill || ms <= 0 {
		return time.Time{}
	}
	unix := ms - epochUnixMillis
	sec := math.Floor(unix / 1000)
	nsec := math.Round((unix - sec*1000) * 1e6)
	return time.Unix(int64(sec), int64(nsec)).UTC()
}

// Epoch16Time converts a CDF_EPOCH16 pair (seconds since year 0, picoseconds).
func Epoch16Time(sec, psec float64) time.Time {
	if math.IsNaN(sec) || sec <= EpochFill || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec-epochUnixMillis/1000), int64(psec/1000)).UTC()
}

// leap seconds: date the new TAI-UTC offset took effect.
var leapTable = []struct {
	at  time.Time
	tai int64
}{
	{time.Date(1972, 1, 1, 0, 0, 0, 0, time.UTC), 10},
	{time.Date(1972, 7, 1, 0, 0, 0, 0, time.UTC), 11},
	{time.Date(1973, 1, 1, 0, 0, 0, 0, time.UTC), 12},
	{time.Date(1974, 1, 1, 0, 0, 0, 0, time.UTC), 13},
	{time.Date(1975, 1, 1, 0, 0, 0, 0, time.UTC), 14},
	{time.Date(1976, 1, 1, 0, 0, 0, 0, time.UTC), 15},
	{time.Date(1977, 1, 1, 0, 0, 0, 0, time.UTC), 16},
	{time.Date(1978, 1, 1, 0, 0, 0, 0, time.UTC), 17},
	{time.Date(1979, 1, 1, 0, 0, 0, 0, time.UTC), 18},
	{time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC), 19},
	{time.Date(1981, 7, 1, 0, 0, 0, 0, time.UTC), 20},
	{time.Date(1982, 7, 1, 0, 0, 0, 0, time.UTC), 21},
	{time.Date(1983, 7, 1, 0, 0, 0, 0, time.UTC), 22},
	{time.Date(1985, 7, 1, 0, 0, 0, 0, time.UTC), 23},
	{time.Date(1988, 1, 1, 0, 0, 0, 0, time.UTC), 24},
	{time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), 25},
	{time.Date(1991, 1, 1, 0, 0, 0, 0, time.UTC), 26},
	{time.Date(1992, 7, 1, 0, 0, 0, 0, time.UTC), 27},
	{time.Date(1993, 7, 1, 0, 0, 0, 0, time.UTC), 28},
	{time.Date(1994, 7, 1, 0, 0, 0, 0, time.UTC), 29},
	{time.Date(1996, 1, 1, 0, 0, 0, 0, time.UTC), 30},
	{time.Date(1997, 7, 1, 0, 0, 0, 0, time.UTC), 31},
	{time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), 32},
	{time.Date(2006, 1, 1, 0, 0, 0, 0, time.UTC), 33},
	{time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC), 34},
	{time.Date(2012, 7, 1, 0, 0, 0, 0, time.UTC), 35},
	{time.Date(2015, 7, 1, 0, 0, 0, 0, time.UTC), 36},
	{time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC), 37},
}

// TT2000Time converts CDF_TIME_TT2000 nanoseconds to UTC, removing leap
// seconds. A value inside a leap second maps onto the following midnight.
func TT2000Time(ns int64) time.Time {
	if ns == TT2000Fill {
		return time.Time{}
	}

	// Walk back from the newest offset: the threshold for an entry is the
	// TT2000 value of its effective date.
	for i := len(leapTable) - 1; i >= 0; i-- {
		e := leapTable[i]
		threshold := int64(e.at.Sub(tt2000Base)) + (e.tai-32)*int64(time.Second)
		if ns >= threshold {
			return tt2000Base.Add(time.Duration(ns - (e.tai-32)*int64(time.Second)))
		}
	}
	return tt2000Base.Add(time.Duration(ns - (10-32)*int64(time.Second)))
}

// TT2000FromTime is the inverse of TT2000Time, used when writing fixtures.
func TT2000FromTime(t time.Time) int64 {
	tai := int64(10)
	for i := len(leapTable) - 1; i >= 0; i-- {
		if !t.Before(leapTable[i].at) {
			tai = leapTable[i].tai
			break
		}
	}
	return int64(t.Sub(tt2000Base)) + (tai-32)*int64(time.Second)
}
