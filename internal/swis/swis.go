// Package swis merges Aditya-L1 SWIS Level-2 products.
//
// BLK files carry bulk proton moments and spacecraft position; TH2 files carry
// integrated flux spectra. Both are CDF files keyed by epoch_for_cdf_mod. The
// merged series keeps every BLK sample and attaches the nearest TH2 spectrum
// within a tolerance, reduced to three energy channels.
package swis

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/KI7MT/ki7mt-swx-lab/internal/asof"
	"github.com/KI7MT/ki7mt-swx-lab/internal/cdf"
)

// ErrNoData is returned when a directory lacks usable BLK or TH2 files.
var ErrNoData = errors.New("swis: missing BLK or TH2 data")

// MergeTolerance is the default nearest-match window for TH2 onto BLK.
const MergeTolerance = 60 * time.Second

// FillThreshold: values below it are CDF fill and become NaN.
const FillThreshold = -1e30

// File name markers and variable names.
const (
	BLKMarker = "L2_BLK"
	TH2Marker = "L2_TH2"

	VarEpoch    = "epoch_for_cdf_mod"
	VarDensity  = "proton_density"
	VarSpeed    = "proton_bulk_speed"
	VarThermal  = "proton_thermal"
	VarXPos     = "spacecraft_xpos"
	VarYPos     = "spacecraft_ypos"
	VarZPos     = "spacecraft_zpos"
	VarFlux     = "integrated_flux_mod"
	VarEnergies = "energy_center_mod"
)

// BLK is a bulk-moment time series.
type BLK struct {
	Time    []time.Time
	Density []float64 // cm^-3
	Speed   []float64 // km/s
	Temp    []float64 // K
	X, Y, Z []float64 // km
}

// Len returns the number of samples.
func (b *BLK) Len() int { return len(b.Time) }

// TH2 is a flux time series reduced to named channels. Flux[c][i] is
// channel c at sample i.
type TH2 struct {
	Time     []time.Time
	Channels []string
	Flux     [][]float64
}

// Len returns the number of samples.
func (t *TH2) Len() int { return len(t.Time) }

// Scan lists the BLK and TH2 CDF files of dir in name order.
func Scan(dir string) (blk, th2 []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".cdf") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		switch {
		case strings.Contains(name, BLKMarker):
			blk = append(blk, filepath.Join(dir, name))
		case strings.Contains(name, TH2Marker):
			th2 = append(th2, filepath.Join(dir, name))
		}
	}
	return blk, th2, nil
}

// ReadBLK loads one BLK file. Fill values in density, speed and temperature
// become NaN; positions are kept as stored.
func ReadBLK(path string) (*BLK, error) {
	f, err := cdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	times, err := f.Times(VarEpoch)
	if err != nil {
		return nil, err
	}
	b := &BLK{Time: times}

	for _, v := range []struct {
		name  string
		dst   *[]float64
		clean bool
	}{
		{VarDensity, &b.Density, true},
		{VarSpeed, &b.Speed, true},
		{VarThermal, &b.Temp, true},
		{VarXPos, &b.X, false},
		{VarYPos, &b.Y, false},
		{VarZPos, &b.Z, false},
	} {
		vals, err := scalars(f, v.name, len(times))
		if err != nil {
			return nil, err
		}
		if v.clean {
			cleanFill(vals)
		}
		*v.dst = vals
	}
	return b, nil
}

// ReadTH2 loads one TH2 file keeping the first, middle and last energy
// channels, named "Flux @ {energy} eV". Channel names are unique.
func ReadTH2(path string) (*TH2, error) {
	f, err := cdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	times, err := f.Times(VarEpoch)
	if err != nil {
		return nil, err
	}
	flux, err := f.Float64s(VarFlux)
	if err != nil {
		return nil, err
	}
	energies, err := f.Float64s(VarEnergies)
	if err != nil {
		return nil, err
	}
	if energies.Records == 0 {
		return nil, fmt.Errorf("%s has no records", VarEnergies)
	}
	energy := energies.Record(0)
	if len(energy) == 0 {
		return nil, fmt.Errorf("%s is empty", VarEnergies)
	}
	if flux.Records != len(times) {
		return nil, fmt.Errorf("%s has %d records, %s has %d", VarFlux, flux.Records, VarEpoch, len(times))
	}
	if flux.Stride() < len(energy) {
		return nil, fmt.Errorf("%s has %d channels, %s has %d", VarFlux, flux.Stride(), VarEnergies, len(energy))
	}

	// With fewer than three energies the picks repeat; a repeated name keeps
	// one column holding the last pick.
	t := &TH2{Time: times}
	for _, ch := range []int{0, len(energy) / 2, len(energy) - 1} {
		col := make([]float64, flux.Records)
		for i := range col {
			col[i] = flux.Record(i)[ch]
		}
		cleanFill(col)
		name := ChannelName(energy[ch])
		if k := t.channel(name); k >= 0 {
			t.Flux[k] = col
			continue
		}
		t.Channels = append(t.Channels, name)
		t.Flux = append(t.Flux, col)
	}
	return t, nil
}

// ChannelName returns the merged CSV column for an energy channel.
func ChannelName(energy float64) string {
	return fmt.Sprintf("Flux @ %.1f eV", energy)
}

func scalars(f *cdf.File, name string, n int) ([]float64, error) {
	vals, err := f.Float64s(name)
	if err != nil {
		return nil, err
	}
	if vals.Stride() != 1 || vals.Records != n {
		return nil, fmt.Errorf("%s: expected %d scalar records, got %d x %d", name, n, vals.Records, vals.Stride())
	}
	return vals.Data, nil
}

func cleanFill(vals []float64) {
	for i, v := range vals {
		if v < FillThreshold {
			vals[i] = math.NaN()
		}
	}
}

// LoadResult reports what LoadDir read.
type LoadResult struct {
	BLK      *BLK
	TH2      *TH2
	BLKFiles int
	TH2Files int
	Failed   int
}

// LoadDir reads every BLK and TH2 file in dir. Files that fail to load are
// logged and skipped. ErrNoData is returned when either product is missing.
func LoadDir(dir string, logger *slog.Logger) (*LoadResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	blkPaths, th2Paths, err := Scan(dir)
	if err != nil {
		return nil, err
	}

	res := &LoadResult{BLK: &BLK{}, TH2: &TH2{}}
	for _, p := range blkPaths {
		b, err := ReadBLK(p)
		if err != nil {
			logger.Warn("skipped BLK file", "file", filepath.Base(p), "err", err)
			res.Failed++
			continue
		}
		res.BLK.append(b)
		res.BLKFiles++
	}
	for _, p := range th2Paths {
		t, err := ReadTH2(p)
		if err != nil {
			logger.Warn("skipped TH2 file", "file", filepath.Base(p), "err", err)
			res.Failed++
			continue
		}
		res.TH2.append(t)
		res.TH2Files++
	}

	if res.BLKFiles == 0 || res.TH2Files == 0 {
		return res, ErrNoData
	}
	return res, nil
}

func (b *BLK) append(o *BLK) {
	b.Time = append(b.Time, o.Time...)
	b.Density = append(b.Density, o.Density...)
	b.Speed = append(b.Speed, o.Speed...)
	b.Temp = append(b.Temp, o.Temp...)
	b.X = append(b.X, o.X...)
	b.Y = append(b.Y, o.Y...)
	b.Z = append(b.Z, o.Z...)
}

// append concatenates o, unioning channels; samples lacking a channel get NaN.
func (t *TH2) append(o *TH2) {
	n := t.Len()
	for c, name := range o.Channels {
		k := t.channel(name)
		if k < 0 {
			k = len(t.Channels)
			t.Channels = append(t.Channels, name)
			t.Flux = append(t.Flux, nanSlice(n))
		}
		t.Flux[k] = append(t.Flux[k], o.Flux[c]...)
	}
	t.Time = append(t.Time, o.Time...)
	for k := range t.Flux {
		if missing := t.Len() - len(t.Flux[k]); missing > 0 {
			t.Flux[k] = append(t.Flux[k], nanSlice(missing)...)
		}
	}
}

func (t *TH2) channel(name string) int {
	for i, c := range t.Channels {
		if c == name {
			return i
		}
	}
	return -1
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// sorted drops zero-time samples and orders the rest by time (stable).
func (b *BLK) sorted() *BLK {
	idx := validOrder(b.Time)
	return &BLK{
		Time:    asof.Permute(b.Time, idx),
		Density: pick(b.Density, idx),
		Speed:   pick(b.Speed, idx),
		Temp:    pick(b.Temp, idx),
		X:       pick(b.X, idx),
		Y:       pick(b.Y, idx),
		Z:       pick(b.Z, idx),
	}
}

func (t *TH2) sorted() *TH2 {
	idx := validOrder(t.Time)
	out := &TH2{Time: asof.Permute(t.Time, idx), Channels: t.Channels}
	for _, col := range t.Flux {
		out.Flux = append(out.Flux, pick(col, idx))
	}
	return out
}

func validOrder(times []time.Time) []int {
	idx := asof.Order(times)
	n := len(idx)
	for n > 0 && times[idx[n-1]].IsZero() {
		n--
	}
	return idx[:n]
}

func pick(vals []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, k := range idx {
		out[i] = vals[k]
	}
	return out
}

// Merged is the BLK series with the nearest TH2 channels attached.
type Merged struct {
	BLK
	Channels []string
	Flux     [][]float64
}

// Merge drops samples without a time, sorts both series, and attaches to
// each BLK sample the nearest TH2 sample within tol. Unmatched samples get
// NaN flux.
func Merge(blk *BLK, th2 *TH2, tol time.Duration) *Merged {
	b := blk.sorted()
	t := th2.sorted()

	match := asof.Nearest(b.Time, t.Time, tol)
	m := &Merged{BLK: *b, Channels: t.Channels}
	for _, col := range t.Flux {
		out := make([]float64, len(match))
		for i, k := range match {
			if k < 0 {
				out[i] = math.NaN()
				continue
			}
			out[i] = col[k]
		}
		m.Flux = append(m.Flux, out)
	}
	return m
}

// Matched returns the number of samples that received a TH2 spectrum.
func (m *Merged) Matched() int {
	n := 0
	for i := range m.Time {
		for _, col := range m.Flux {
			if !math.IsNaN(col[i]) {
				n++
				break
			}
		}
	}
	return n
}

// FluxTotal is the per-sample mean over channels, skipping NaN; NaN when
// every channel is missing.
func (m *Merged) FluxTotal() []float64 {
	out := make([]float64, m.Len())
	for i := range out {
		sum, n := 0.0, 0
		for _, col := range m.Flux {
			if v := col[i]; !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(n)
	}
	return out
}
