package cdf_test

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/ki7mt-swx-lab/internal/cdf"
	"github.com/KI7MT/ki7mt-swx-lab/internal/cdf/cdftest"
)

var t0 = time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)

func minutes(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = t0.Add(time.Duration(i) * time.Minute)
	}
	return out
}

func blkFixture() *cdftest.Builder {
	return cdftest.New().
		TT2000("epoch_for_cdf_mod", minutes(3)).
		Float("proton_density", nil, []float32{4.5, -1e31, 6.25}).
		Double("proton_bulk_speed", nil, []float64{410, 420, 430}).
		Float("integrated_flux_mod", []int{4}, []float32{
			1, 2, 3, 4,
			5, 6, 7, 8,
			9, 10, 11, 12,
		}).
		Double("energy_center_mod", []int{4}, []float64{100, 200, 300, 400}).NonVarying()
}

func TestParseVariables(t *testing.T) {
	data, err := blkFixture().Bytes()
	require.NoError(t, err)

	f, err := cdf.Parse(data)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, "3.9", f.Version())
	assert.Equal(t, []string{
		"epoch_for_cdf_mod", "proton_density", "proton_bulk_speed",
		"integrated_flux_mod", "energy_center_mod",
	}, f.Variables())

	v, err := f.Var("integrated_flux_mod")
	require.NoError(t, err)
	assert.Equal(t, cdf.Float, v.DataType)
	assert.Equal(t, []int{4}, v.Dims)
	assert.Equal(t, 3, v.Recs())
	assert.True(t, v.Z)

	e, err := f.Var("energy_center_mod")
	require.NoError(t, err)
	assert.False(t, e.RecVary)
	assert.Equal(t, 1, e.Recs())

	_, err = f.Var("nope")
	assert.ErrorIs(t, err, cdf.ErrNoVariable)
}

func TestFloat64s(t *testing.T) {
	data, err := blkFixture().Bytes()
	require.NoError(t, err)
	f, err := cdf.Parse(data)
	require.NoError(t, err)

	dens, err := f.Float64s("proton_density")
	require.NoError(t, err)
	assert.Equal(t, 3, dens.Records)
	assert.Equal(t, 4.5, dens.Data[0])
	assert.Less(t, dens.Data[1], -1e30)
	assert.Equal(t, 6.25, dens.Data[2])

	flux, err := f.Float64s("integrated_flux_mod")
	require.NoError(t, err)
	assert.Equal(t, 4, flux.Stride())
	assert.Equal(t, []float64{5, 6, 7, 8}, flux.Record(1))

	energy, err := f.Float64s("energy_center_mod")
	require.NoError(t, err)
	assert.Equal(t, 1, energy.Records)
	assert.Equal(t, []float64{100, 200, 300, 400}, energy.Record(0))
}

func TestTimesTT2000(t *testing.T) {
	data, err := blkFixture().Bytes()
	require.NoError(t, err)
	f, err := cdf.Parse(data)
	require.NoError(t, err)

	times, err := f.Times("epoch_for_cdf_mod")
	require.NoError(t, err)
	assert.Equal(t, minutes(3), times)

	_, err = f.Times("proton_density")
	assert.ErrorIs(t, err, cdf.ErrUnsupported)
}

func TestTimesEpochBigEndian(t *testing.T) {
	b := cdftest.New()
	b.Encoding = cdftest.EncodingNetwork
	b.Epoch("Epoch", minutes(2)).Int2("flag", nil, []int16{-3, 7})

	data, err := b.Bytes()
	require.NoError(t, err)
	f, err := cdf.Parse(data)
	require.NoError(t, err)

	times, err := f.Times("Epoch")
	require.NoError(t, err)
	assert.Equal(t, minutes(2), times)

	flags, err := f.Float64s("flag")
	require.NoError(t, err)
	assert.Equal(t, []float64{-3, 7}, flags.Data)
}

func TestCompressedVariable(t *testing.T) {
	data, err := cdftest.New().
		TT2000("epoch", minutes(4)).
		Double("speed", nil, []float64{400, 401, 402, 403}).Compressed().
		Bytes()
	require.NoError(t, err)

	f, err := cdf.Parse(data)
	require.NoError(t, err)
	vals, err := f.Float64s("speed")
	require.NoError(t, err)
	assert.Equal(t, []float64{400, 401, 402, 403}, vals.Data)
}

func TestCompressedFile(t *testing.T) {
	b := blkFixture()
	b.CompressFile = true
	path := filepath.Join(t.TempDir(), "AL1_ASW91_L2_BLK_20241001_UNP_9999_999999_V02.cdf")
	require.NoError(t, b.WriteFile(path))

	f, err := cdf.Open(path)
	require.NoError(t, err)
	speed, err := f.Float64s("proton_bulk_speed")
	require.NoError(t, err)
	assert.Equal(t, []float64{410, 420, 430}, speed.Data)

	times, err := f.Times("epoch_for_cdf_mod")
	require.NoError(t, err)
	assert.Equal(t, t0, times[0])
}

func TestParseRejects(t *testing.T) {
	_, err := cdf.Parse([]byte("not a cdf at all"))
	assert.ErrorIs(t, err, cdf.ErrNotCDF)

	_, err = cdf.Parse([]byte{0xCD, 0xF2, 0x60, 0x02, 0, 0, 0xFF, 0xFF})
	assert.ErrorIs(t, err, cdf.ErrUnsupported)

	data, err := blkFixture().Bytes()
	require.NoError(t, err)
	_, err = cdf.Parse(data[:400])
	assert.ErrorIs(t, err, cdf.ErrCorrupt)
}

func TestEpochConversions(t *testing.T) {
	assert.Equal(t, time.Date(2000, 1, 1, 11, 58, 55, 816000000, time.UTC), cdf.TT2000Time(0))
	assert.True(t, cdf.TT2000Time(cdf.TT2000Fill).IsZero())

	// first instant after the 2016 leap second
	leap := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(536500869184000000), cdf.TT2000FromTime(leap))
	assert.Equal(t, leap, cdf.TT2000Time(536500869184000000))

	for _, ts := range []time.Time{
		time.Date(1999, 6, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 10, 9, 1, 28, 30, 250000000, time.UTC),
	} {
		assert.Equal(t, ts, cdf.TT2000Time(cdf.TT2000FromTime(ts)))
	}

	assert.Equal(t, time.Unix(0, 0).UTC(), cdf.EpochTime(62167219200000))
	assert.True(t, cdf.EpochTime(cdf.EpochFill).IsZero())
	assert.True(t, cdf.EpochTime(math.NaN()).IsZero())
	assert.Equal(t, time.Unix(1, 500).UTC(), cdf.Epoch16Time(62167219201, 500000))
}

func TestDataTypeNames(t *testing.T) {
	assert.Equal(t, "CDF_TIME_TT2000", cdf.TT2000.String())
	assert.Equal(t, "CDF_TYPE(99)", cdf.DataType(99).String())
	assert.Equal(t, 16, cdf.Epoch16.Size())
}
