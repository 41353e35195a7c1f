// Package cdftest builds small CDF v3 files for tests: zVariables only, one
// VVR (or GZIP CVVR) per variable, optional whole-file compression.
package cdftest

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/KI7MT/ki7mt-swx-lab/internal/cdf"
)

// Encodings understood by the reader.
const (
	EncodingNetwork = 1 // big-endian
	EncodingIBMPC   = 6 // little-endian
)

type zvar struct {
	name     string
	dtype    cdf.DataType
	dims     []int
	recs     int
	recVary  bool
	compress bool
	data     []byte
}

// Builder accumulates variables and serializes them.
type Builder struct {
	Encoding     int32
	CompressFile bool

	vars []zvar
}

// New returns a little-endian builder.
func New() *Builder {
	return &Builder{Encoding: EncodingIBMPC}
}

func (b *Builder) order() binary.ByteOrder {
	if b.Encoding == EncodingNetwork {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func recordCount(n int, dims []int) int {
	per := 1
	for _, d := range dims {
		per *= d
	}
	if per == 0 {
		return 0
	}
	return n / per
}

// Double adds a CDF_DOUBLE variable; values are records laid out row-major.
func (b *Builder) Double(name string, dims []int, values []float64) *Builder {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		b.order().PutUint64(buf[8*i:], math.Float64bits(v))
	}
	b.vars = append(b.vars, zvar{name: name, dtype: cdf.Double, dims: dims,
		recs: recordCount(len(values), dims), recVary: true, data: buf})
	return b
}

// Float adds a CDF_FLOAT variable.
func (b *Builder) Float(name string, dims []int, values []float32) *Builder {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		b.order().PutUint32(buf[4*i:], math.Float32bits(v))
	}
	b.vars = append(b.vars, zvar{name: name, dtype: cdf.Float, dims: dims,
		recs: recordCount(len(values), dims), recVary: true, data: buf})
	return b
}

// Int2 adds a CDF_INT2 variable.
func (b *Builder) Int2(name string, dims []int, values []int16) *Builder {
	buf := make([]byte, 2*len(values))
	for i, v := range values {
		b.order().PutUint16(buf[2*i:], uint16(v))
	}
	b.vars = append(b.vars, zvar{name: name, dtype: cdf.Int2, dims: dims,
		recs: recordCount(len(values), dims), recVary: true, data: buf})
	return b
}

// TT2000 adds a CDF_TIME_TT2000 variable; zero times are written as fill.
func (b *Builder) TT2000(name string, times []time.Time) *Builder {
	buf := make([]byte, 8*len(times))
	for i, t := range times {
		v := int64(cdf.TT2000Fill)
		if !t.IsZero() {
			v = cdf.TT2000FromTime(t)
		}
		b.order().PutUint64(buf[8*i:], uint64(v))
	}
	b.vars = append(b.vars, zvar{name: name, dtype: cdf.TT2000,
		recs: len(times), recVary: true, data: buf})
	return b
}

// Epoch adds a CDF_EPOCH variable.
func (b *Builder) Epoch(name string, times []time.Time) *Builder {
	buf := make([]byte, 8*len(times))
	for i, t := range times {
		ms := float64(t.UnixMilli()) + 62167219200000.0
		b.order().PutUint64(buf[8*i:], math.Float64bits(ms))
	}
	b.vars = append(b.vars, zvar{name: name, dtype: cdf.Epoch,
		recs: len(times), recVary: true, data: buf})
	return b
}

// NonVarying marks the most recently added variable as record-invariant.
func (b *Builder) NonVarying() *Builder {
	b.vars[len(b.vars)-1].recVary = false
	return b
}

// Compressed marks the most recently added variable as GZIP compressed.
func (b *Builder) Compressed() *Builder {
	b.vars[len(b.vars)-1].compress = true
	return b
}

// WriteFile serializes the CDF to path.
func (b *Builder) WriteFile(path string) error {
	data, err := b.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

const (
	cdrSize = 312
	gdrSize = 84
	cprSize = 28
)

func vdrSize(v zvar) int64 { return 344 + 8*int64(len(v.dims)) }
func vxrSize() int64       { return 28 + 16 }

// Bytes serializes the CDF.
func (b *Builder) Bytes() ([]byte, error) {
	payloads := make([][]byte, len(b.vars))
	for i, v := range b.vars {
		payloads[i] = v.data
		if v.compress {
			gz, err := gzipBytes(v.data)
			if err != nil {
				return nil, err
			}
			payloads[i] = gz
		}
	}

	// layout pass
	gdrOff := int64(8 + cdrSize)
	off := gdrOff + gdrSize
	vdrOffs := make([]int64, len(b.vars))
	for i, v := range b.vars {
		vdrOffs[i] = off
		off += vdrSize(v)
		if v.compress {
			off += cprSize
		}
		off += vxrSize()
		if v.compress {
			off += 24 + int64(len(payloads[i]))
		} else {
			off += 12 + int64(len(payloads[i]))
		}
	}
	eof := off

	w := &writer{}
	w.u32(0xCDF30001)
	w.u32(0x0000FFFF)

	// CDR
	w.i64(cdrSize)
	w.i32(1)
	w.i64(gdrOff)
	w.i32(3)
	w.i32(9)
	w.i32(b.Encoding)
	w.i32(1 | 2)
	w.i32(0)
	w.i32(0)
	w.i32(0)
	w.i32(2)
	w.i32(-1)
	w.pad(256)

	// GDR
	zHead := int64(0)
	if len(b.vars) > 0 {
		zHead = vdrOffs[0]
	}
	w.i64(gdrSize)
	w.i32(2)
	w.i64(0)
	w.i64(zHead)
	w.i64(0)
	w.i64(eof)
	w.i32(0)
	w.i32(0)
	w.i32(-1)
	w.i32(0)
	w.i32(int32(len(b.vars)))
	w.i64(0)
	w.i32(0)
	w.i32(0)
	w.i32(-1)

	for i, v := range b.vars {
		next := int64(0)
		if i+1 < len(b.vars) {
			next = vdrOffs[i+1]
		}
		vdr := vdrOffs[i]
		cpr := int64(-1)
		vxr := vdr + vdrSize(v)
		if v.compress {
			cpr = vxr
			vxr += cprSize
		}
		block := vxr + vxrSize()

		maxRec := int32(v.recs - 1)
		flags := int32(0)
		if v.recVary {
			flags |= 1
		}
		if v.compress {
			flags |= 4
		}

		// zVDR
		w.i64(vdrSize(v))
		w.i32(8)
		w.i64(next)
		w.i32(int32(v.dtype))
		w.i32(maxRec)
		w.i64(vxr)
		w.i64(vxr)
		w.i32(flags)
		w.i32(0)
		w.i32(0)
		w.i32(-1)
		w.i32(-1)
		w.i32(1)
		w.i32(int32(i))
		w.i64(cpr)
		w.i32(0)
		w.name(v.name)
		w.i32(int32(len(v.dims)))
		for _, d := range v.dims {
			w.i32(int32(d))
		}
		for range v.dims {
			w.i32(-1)
		}

		if v.compress {
			w.i64(cprSize)
			w.i32(11)
			w.i32(5)
			w.i32(0)
			w.i32(1)
			w.i32(6)
		}

		// VXR with a single entry
		w.i64(vxrSize())
		w.i32(6)
		w.i64(0)
		w.i32(1)
		w.i32(1)
		w.i32(0)
		w.i32(maxRec)
		w.i64(block)

		if v.compress {
			w.i64(24 + int64(len(payloads[i])))
			w.i32(13)
			w.i32(0)
			w.i64(int64(len(payloads[i])))
		} else {
			w.i64(12 + int64(len(payloads[i])))
			w.i32(7)
		}
		w.buf.Write(payloads[i])
	}

	out := w.buf.Bytes()
	if !b.CompressFile {
		return out, nil
	}
	return compressFile(out)
}

func compressFile(u []byte) ([]byte, error) {
	gz, err := gzipBytes(u[8:])
	if err != nil {
		return nil, err
	}
	ccrSize := int64(32 + len(gz))

	w := &writer{}
	w.u32(0xCDF30001)
	w.u32(0xCCCC0001)
	w.i64(ccrSize)
	w.i32(10)
	w.i64(8 + ccrSize)
	w.i64(int64(len(u) - 8))
	w.i32(0)
	w.buf.Write(gz)
	w.i64(cprSize)
	w.i32(11)
	w.i32(5)
	w.i32(0)
	w.i32(1)
	w.i32(6)
	return w.buf.Bytes(), nil
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type writer struct {
	buf bytes.Buffer
}

func (w *writer) u32(v uint32) { binary.Write(&w.buf, binary.BigEndian, v) }
func (w *writer) i32(v int32)  { binary.Write(&w.buf, binary.BigEndian, v) }
func (w *writer) i64(v int64)  { binary.Write(&w.buf, binary.BigEndian, v) }
func (w *writer) pad(n int)    { w.buf.Write(make([]byte, n)) }

func (w *writer) name(s string) {
	b := make([]byte, 256)
	copy(b, s)
	w.buf.Write(b)
}
