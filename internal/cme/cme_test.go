package cme

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/ki7mt-swx-lab/internal/table"
)

const catalogCSV = `Start,Arrival_L1,Speed_x,Speed_y,Halo,Accurate, Datetime
2024-10-09 01:36:00,2024-10-10 15:00:00,1000,400,Halo,TRUE,2024-10-09T01:36:00Z
2024-10-05 00:00:00+00:00,2024-10-07 00:00:00,300,400,,false,
2024-10-10 10:00:00,,,,Partial,,
`

func loadTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	tbl, err := table.Decode(strings.NewReader(catalogCSV))
	require.NoError(t, err)
	c, err := NewCatalog(tbl)
	require.NoError(t, err)
	return c
}

func TestDragTransitHours(t *testing.T) {
	p := DefaultParams()
	assert.InDelta(t, 0.6714, DragTransitHours(1000, 400, p), 1e-3)
	assert.True(t, math.IsNaN(DragTransitHours(400, 400, p)))
	assert.True(t, math.IsNaN(DragTransitHours(300, 400, p)))
	assert.True(t, math.IsNaN(DragTransitHours(math.NaN(), 400, p)))
	assert.True(t, math.IsNaN(DragTransitHours(900, math.NaN(), p)))

	// a weaker drag lengthens the transit
	weak := p
	weak.Gamma = 0.01 / 3600
	assert.Greater(t, DragTransitHours(1000, 400, weak), DragTransitHours(1000, 400, p))
}

func TestNewCatalogNormalizesTimes(t *testing.T) {
	c := loadTestCatalog(t)
	assert.Equal(t, 3, c.Len())
	assert.True(t, c.Table.Has(ColDatetime))
	assert.Equal(t, "2024-10-05 00:00:00", c.Table.Get(1, ColStart))
	assert.Equal(t, "2024-10-09 01:36:00", c.Table.Get(0, ColDatetime))
	assert.True(t, c.Arrival[2].IsZero())

	tbl := table.New("Start", "Speed")
	_, err := NewCatalog(tbl)
	assert.Error(t, err)
}

func TestDerive(t *testing.T) {
	c := loadTestCatalog(t)
	require.NoError(t, c.Derive(DefaultParams()))

	tbl := c.Table
	// sorted by Start
	assert.Equal(t, []string{"2024-10-05 00:00:00", "2024-10-09 01:36:00", "2024-10-10 10:00:00"}, tbl.Column(ColStart))

	assert.Equal(t, []string{"300", "1000", ""}, tbl.Column(ColSpeedInit))
	assert.Equal(t, []string{"400", "400", ""}, tbl.Column(ColSpeedSolarWind))

	assert.Equal(t, "", tbl.Get(0, ColTransit))
	assert.Equal(t, "", tbl.Get(0, ColPredicted))
	assert.InDelta(t, 0.6714, table.ParseFloat(tbl.Get(1, ColTransit)), 1e-3)
	assert.InDelta(t, 37.4-0.6714, table.ParseFloat(tbl.Get(1, ColDelay)), 1e-3)
	assert.True(t, strings.HasPrefix(tbl.Get(1, ColPredicted), "2024-10-09 02:16:"))

	assert.Equal(t, []string{"False", "True", "False"}, tbl.Column(ColHaloFlag))
	assert.Equal(t, []string{"False", "True", "False"}, tbl.Column(ColGeoEffFlag))
	assert.Equal(t, []string{"Unknown", "Unknown", "Unknown"}, tbl.Column(ColImpactType))

	assert.Equal(t, []string{"2024-10-09 01:36:00", "2024-10-10 10:00:00", ""}, tbl.Column(ColNextStart))
	assert.InDelta(t, 49.6, table.ParseFloat(tbl.Get(0, ColInteractionGap)), 1e-9)
	assert.InDelta(t, -5.0, table.ParseFloat(tbl.Get(1, ColInteractionGap)), 1e-9)
	assert.Equal(t, "", tbl.Get(2, ColInteractionGap))
	assert.Equal(t, []string{"False", "True", "False"}, tbl.Column(ColInteractionFlag))

	assert.Equal(t, Summary{CMEs: 3, Halo: 1, GeoEffect: 1, Interacting: 1, WithTransit: 1}, c.Summarize())
}

func TestDeriveFallsBackToSpeed(t *testing.T) {
	tbl := table.New("Start", "Arrival_L1", "Speed", "ImpactType")
	require.NoError(t, tbl.AppendRow("2024-10-01 00:00:00", "2024-10-03 00:00:00", "800", "Glancing"))
	c, err := NewCatalog(tbl)
	require.NoError(t, err)
	require.NoError(t, c.Derive(DefaultParams()))

	assert.Equal(t, "800", c.Table.Get(0, ColSpeedInit))
	assert.Equal(t, "", c.Table.Get(0, ColSpeedSolarWind))
	assert.Equal(t, "", c.Table.Get(0, ColTransit))
	assert.Equal(t, "Glancing", c.Table.Get(0, ColImpactType))
	assert.Equal(t, "False", c.Table.Get(0, ColHaloFlag))
}

func TestByArrivalAndWrite(t *testing.T) {
	c := loadTestCatalog(t)
	require.NoError(t, c.Derive(DefaultParams()))

	tbl, arrivals := c.ByArrival()
	assert.Equal(t, "2024-10-07 00:00:00", tbl.Get(0, ColArrival))
	assert.True(t, arrivals[2].IsZero())

	path := filepath.Join(t.TempDir(), FinalFile)
	require.NoError(t, c.WriteCSV(path))
	back, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, c.Table.Columns, back.Table.Columns)
	assert.Equal(t, 3, back.Len())
}
