package store

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/ki7mt-swx-lab/internal/cme"
	"github.com/KI7MT/ki7mt-swx-lab/internal/common"
	"github.com/KI7MT/ki7mt-swx-lab/internal/swis"
	"github.com/KI7MT/ki7mt-swx-lab/internal/table"
)

type recorder struct {
	bodies []string
	rows   []int
	err    error
}

func (r *recorder) Do(_ context.Context, q ch.Query) error {
	r.bodies = append(r.bodies, q.Body)
	n := 0
	if len(q.Input) > 0 {
		n = q.Input[0].Data.Rows()
		for _, col := range q.Input {
			if col.Data.Rows() != n {
				return errors.New("ragged block")
			}
		}
	}
	r.rows = append(r.rows, n)
	return r.err
}

var t0 = time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)

func records(n int) []swis.Record {
	out := make([]swis.Record, n)
	for i := range out {
		out[i] = swis.Record{
			Timestamp: t0.Add(time.Duration(i) * time.Minute).UnixMicro(),
			Density:   float64(i),
			Speed:     400,
			Temp:      1e5,
			Flux:      []float64{1, math.NaN(), 3},
		}
	}
	return out
}

var channels = []string{"Flux @ 100.0 eV", "Flux @ 500.0 eV", "Flux @ 2000.0 eV"}

func TestSwisBatchColumns(t *testing.T) {
	b := NewSwisBatch()
	recs := records(2)
	recs[1].Timestamp += 250 // microseconds survive
	for _, r := range recs {
		b.AddRecord(r, channels, "merged.csv")
	}

	require.Equal(t, 2, b.Len())
	assert.True(t, b.Time.Row(1).Equal(t0.Add(time.Minute+250*time.Microsecond)))
	assert.Equal(t, 1.0, b.Density.Row(1))
	assert.Equal(t, channels, b.FluxChannels.Row(0))
	flux := b.Flux.Row(0)
	require.Len(t, flux, 3)
	assert.True(t, math.IsNaN(flux[1]))
	assert.Equal(t, "merged.csv", b.SourceFile.Row(1))

	assert.Len(t, b.Input(), 10)
	b.Reset()
	assert.Equal(t, 0, b.Len())
}

func TestInsertSwisBlocks(t *testing.T) {
	rec := &recorder{}
	stats := common.NewStats(time.Hour)

	err := InsertSwis(context.Background(), rec, "swx.swis_merged", records(5), channels, "merged.csv", 2, stats)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1}, rec.rows)
	assert.Equal(t, uint64(5), stats.Rows())
	assert.True(t, strings.HasPrefix(rec.bodies[0], "INSERT INTO swx.swis_merged (time, density, speed, temperature,"))
	assert.True(t, strings.HasSuffix(rec.bodies[0], "source_file) VALUES"))
}

func TestInsertSwisError(t *testing.T) {
	rec := &recorder{err: errors.New("connection reset")}
	err := InsertSwis(context.Background(), rec, "swx.swis_merged", records(3), channels, "", 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert 3 rows")
	assert.Len(t, rec.rows, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = InsertSwis(ctx, &recorder{}, "t", records(1), channels, "", 0, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecAndDDL(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, Exec(context.Background(), rec, SwisDDL("swx.swis_merged")))
	assert.Contains(t, rec.bodies[0], "CREATE TABLE IF NOT EXISTS swx.swis_merged")
	assert.Equal(t, []int{0}, rec.rows)
	assert.Contains(t, CatalogDDL("swx.cme_catalog"), "interaction_hour_gap Float64")
}

const catalogCSV = `ID,Start,Arrival_L1,Speed_x,Speed_y,Halo,Accurate
A,2024-10-09 01:36:00,2024-10-10 01:30:00,1000,400,Halo,TRUE
B,2024-10-08 00:00:00,2024-10-10 06:00:00,600,400,,
C,,2024-10-12 00:00:00,500,400,,
`

func TestCatalogRows(t *testing.T) {
	tbl, err := table.Decode(strings.NewReader(catalogCSV))
	require.NoError(t, err)
	c, err := cme.NewCatalog(tbl)
	require.NoError(t, err)
	require.NoError(t, c.Derive(cme.DefaultParams()))

	rows, skipped := CatalogRows(c)
	assert.Equal(t, 1, skipped)
	require.Len(t, rows, 2)

	b, a := rows[0], rows[1]
	assert.Equal(t, "B", b.ID)
	assert.Equal(t, "A", a.ID)

	assert.InDelta(t, 0.6714, a.TransitHours, 1e-3)
	require.NotNil(t, a.Predicted)
	assert.True(t, a.Predicted.After(a.Start))
	assert.True(t, a.Halo)
	assert.True(t, a.GeoEffective)
	assert.Equal(t, cme.DefaultImpactType, a.ImpactType)
	assert.Nil(t, a.NextStart)
	assert.True(t, math.IsNaN(a.InteractionGap))
	assert.False(t, a.Interacting)

	require.NotNil(t, b.NextStart)
	assert.True(t, b.NextStart.Equal(a.Start))
	assert.InDelta(t, -28.4, b.InteractionGap, 1e-6)
	assert.True(t, b.Interacting)
	assert.False(t, b.Halo)

	assert.Len(t, a.values(), 14)
}
