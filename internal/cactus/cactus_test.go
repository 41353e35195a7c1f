package cactus

import (
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/ki7mt-swx-lab/internal/table"
)

const listing = `# Catalog of CMEs
#  CME | t0               | dt0| pa | da |   v |  dv | minv| maxv| halo?
<a href="CME0034/CME.html">0034</a>|2024/10/09 01:36| 10|300|360| 1500|  400|  600| 2200|IV
 0035|2024/10/10 04:00|  4|110| 30|  300|   80|  200|  400|
Flow| 2024/10/11 02:00| 12| 90| 20| 250
0036|2024/10/12 bad   |  2| 80| 14|  350
0037|2024/10/13 05:12|  2| 80| 14|    0
short|line
`

func TestParse(t *testing.T) {
	cat, err := Parse(strings.NewReader(listing))
	require.NoError(t, err)

	require.Len(t, cat.CMEs, 3)
	assert.Equal(t, 1, cat.Flows)
	// column header plus the bad timestamp
	assert.Equal(t, 2, cat.Skipped)

	first := cat.CMEs[0]
	assert.Equal(t, "0034", first.ID)
	assert.Equal(t, time.Date(2024, 10, 9, 1, 36, 0, 0, time.UTC), first.Start)
	assert.Equal(t, time.Date(2024, 10, 9, 11, 36, 0, 0, time.UTC), first.End)
	assert.Equal(t, 1500.0, first.Speed)
	assert.Equal(t, 300.0, first.PA)
	assert.Equal(t, 360.0, first.DA)
	// 1.5e6 km at 1500 km/s is 1000 s
	assert.Equal(t, first.Start.Add(1000*time.Second), first.ArrivalL1)

	assert.Equal(t, "0035", cat.CMEs[1].ID)
	assert.True(t, cat.CMEs[2].ArrivalL1.IsZero())
}

func TestArrivalL1(t *testing.T) {
	start := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start.Add(5000*time.Second), ArrivalL1(start, 300))
	assert.True(t, ArrivalL1(start, -5).IsZero())
	assert.True(t, ArrivalL1(start, math.NaN()).IsZero())
	assert.True(t, ArrivalL1(start, math.Inf(1)).IsZero())
	assert.True(t, ArrivalL1(start, 1e300).IsZero())

	// 1.5e6 / 7 s rounds to the microsecond
	assert.Equal(t, start.Add(214285714286*time.Microsecond), ArrivalL1(start, 7))
}

func TestWriteCSV(t *testing.T) {
	cat, err := Parse(strings.NewReader(listing))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "parsed_oct_cmes.csv")
	require.NoError(t, cat.WriteCSV(path))

	tbl, err := table.ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, Columns, tbl.Columns)
	assert.Equal(t, []string{
		"0034", "2024-10-09 01:36:00", "2024-10-09 11:36:00",
		"1500", "300", "360", "2024-10-09 01:52:40",
	}, tbl.Rows[0])
	assert.Equal(t, "", tbl.Get(2, "ArrivalTime_L1"))
}

func TestCoverage(t *testing.T) {
	cat, err := Parse(strings.NewReader(listing))
	require.NoError(t, err)

	cov := cat.Coverage()
	assert.Equal(t, 3, cov.Count)
	assert.Equal(t, 1, cov.Halo)
	assert.Equal(t, 0.0, cov.MinSpeed)
	assert.Equal(t, 1500.0, cov.MaxSpeed)
	assert.Equal(t, 600.0, cov.MeanSpeed)
	assert.Equal(t, time.Date(2024, 10, 13, 5, 12, 0, 0, time.UTC), cov.Last)

	empty := (&Catalog{}).Coverage()
	assert.Equal(t, 0, empty.Count)
	assert.True(t, math.IsNaN(empty.MeanSpeed))
}
