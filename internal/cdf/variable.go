package cdf

import (
	"fmt"
	"math"
	"time"
)

// DataType is a CDF data type code.
type DataType int32

const (
	Int1    DataType = 1
	Int2    DataType = 2
	Int4    DataType = 4
	Int8    DataType = 8
	Uint1   DataType = 11
	Uint2   DataType = 12
	Uint4   DataType = 14
	Real4   DataType = 21
	Real8   DataType = 22
	Epoch   DataType = 31
	Epoch16 DataType = 32
	TT2000  DataType = 33
	Byte    DataType = 41
	Float   DataType = 44
	Double  DataType = 45
	Char    DataType = 51
	UChar   DataType = 52
)

// Size returns the byte width of one element, 0 for unknown codes.
func (d DataType) Size() int {
	switch d {
	case Int1, Uint1, Byte, Char, UChar:
		return 1
	case Int2, Uint2:
		return 2
	case Int4, Uint4, Real4, Float:
		return 4
	case Int8, Real8, Double, Epoch, TT2000:
		return 8
	case Epoch16:
		return 16
	}
	return 0
}

func (d DataType) String() string {
	switch d {
	case Int1:
		return "CDF_INT1"
	case Int2:
		return "CDF_INT2"
	case Int4:
		return "CDF_INT4"
	case Int8:
		return "CDF_INT8"
	case Uint1:
		return "CDF_UINT1"
	case Uint2:
		return "CDF_UINT2"
	case Uint4:
		return "CDF_UINT4"
	case Real4:
		return "CDF_REAL4"
	case Real8:
		return "CDF_REAL8"
	case Epoch:
		return "CDF_EPOCH"
	case Epoch16:
		return "CDF_EPOCH16"
	case TT2000:
		return "CDF_TIME_TT2000"
	case Byte:
		return "CDF_BYTE"
	case Float:
		return "CDF_FLOAT"
	case Double:
		return "CDF_DOUBLE"
	case Char:
		return "CDF_CHAR"
	case UChar:
		return "CDF_UCHAR"
	}
	return fmt.Sprintf("CDF_TYPE(%d)", int32(d))
}

// Values is a decoded numeric variable: Records rows of Stride values each.
type Values struct {
	Data    []float64
	Records int
	Dims    []int
}

// Stride returns the number of values per record.
func (v Values) Stride() int {
	n := 1
	for _, d := range v.Dims {
		n *= d
	}
	return n
}

// Record returns the values of record i.
func (v Values) Record(i int) []float64 {
	n := v.Stride()
	return v.Data[i*n : (i+1)*n]
}

// Recs returns the number of records stored for v.
func (v *Var) Recs() int {
	n := v.MaxRec + 1
	if n < 0 {
		return 0
	}
	if !v.RecVary && n > 1 {
		return 1
	}
	return n
}

func (v *Var) elems() int {
	n := v.NumElems
	if n < 1 {
		n = 1
	}
	for _, d := range v.Dims {
		n *= d
	}
	return n
}

// Float64s decodes a numeric variable. Records that were never written are
// NaN. Epoch variables decode to their raw numeric value.
func (f *File) Float64s(name string) (Values, error) {
	v, err := f.Var(name)
	if err != nil {
		return Values{}, err
	}
	switch v.DataType {
	case Char, UChar, Epoch16:
		return Values{}, fmt.Errorf("%w: %s is %s", ErrUnsupported, name, v.DataType)
	}

	raw, present, err := f.records(v)
	if err != nil {
		return Values{}, fmt.Errorf("%s: %w", name, err)
	}

	size := v.DataType.Size()
	per := v.elems()
	out := Values{Data: make([]float64, v.Recs()*per), Records: v.Recs(), Dims: v.Dims}
	for rec := 0; rec < out.Records; rec++ {
		for k := 0; k < per; k++ {
			i := rec*per + k
			if !present[rec] {
				out.Data[i] = math.NaN()
				continue
			}
			out.Data[i] = f.decode(v.DataType, raw[i*size:(i+1)*size])
		}
	}
	return out, nil
}

// Times decodes an EPOCH, EPOCH16 or TT2000 variable to UTC. Fill values and
// unwritten records are the zero time.
func (f *File) Times(name string) ([]time.Time, error) {
	v, err := f.Var(name)
	if err != nil {
		return nil, err
	}
	if v.DataType != Epoch && v.DataType != Epoch16 && v.DataType != TT2000 {
		return nil, fmt.Errorf("%w: %s is %s, not an epoch", ErrUnsupported, name, v.DataType)
	}

	raw, present, err := f.records(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	size := v.DataType.Size()
	per := v.elems()
	out := make([]time.Time, v.Recs()*per)
	for i := range out {
		if !present[i/per] {
			continue
		}
		b := raw[i*size : (i+1)*size]
		switch v.DataType {
		case Epoch:
			out[i] = EpochTime(math.Float64frombits(f.order.Uint64(b)))
		case Epoch16:
			out[i] = Epoch16Time(
				math.Float64frombits(f.order.Uint64(b[:8])),
				math.Float64frombits(f.order.Uint64(b[8:])),
			)
		case TT2000:
			out[i] = TT2000Time(int64(f.order.Uint64(b)))
		}
	}
	return out, nil
}

func (f *File) decode(t DataType, b []byte) float64 {
	o := f.order
	switch t {
	case Int1:
		return float64(int8(b[0]))
	case Uint1, Byte:
		return float64(b[0])
	case Int2:
		return float64(int16(o.Uint16(b)))
	case Uint2:
		return float64(o.Uint16(b))
	case Int4:
		return float64(int32(o.Uint32(b)))
	case Uint4:
		return float64(o.Uint32(b))
	case Int8, TT2000:
		return float64(int64(o.Uint64(b)))
	case Real4, Float:
		return float64(math.Float32frombits(o.Uint32(b)))
	case Real8, Double, Epoch:
		return math.Float64frombits(o.Uint64(b))
	}
	return math.NaN()
}

// records returns the raw bytes of every record of v (Recs() * record size)
// and which records were actually stored.
func (f *File) records(v *Var) ([]byte, []bool, error) {
	size := v.DataType.Size()
	if size == 0 {
		return nil, nil, fmt.Errorf("%w: data type %d", ErrUnsupported, int32(v.DataType))
	}

	nrec := v.Recs()
	recSize := int64(size * v.elems())
	buf := make([]byte, int64(nrec)*recSize)
	present := make([]bool, nrec)
	if nrec == 0 || v.vxrHead == 0 {
		return buf, present, nil
	}

	if v.compressed {
		r := reader{data: f.data}
		ctype, err := compressionAt(&r, v.cprOffset)
		if err != nil {
			return nil, nil, err
		}
		if ctype != compressGzip {
			return nil, nil, fmt.Errorf("%w: variable compression type %d", ErrUnsupported, ctype)
		}
	}

	w := vxrWalker{r: reader{data: f.data}, recSize: recSize, buf: buf, present: present}
	if err := w.walk(v.vxrHead, 0); err != nil {
		return nil, nil, err
	}
	return buf, present, nil
}

type vxrWalker struct {
	r       reader
	recSize int64
	buf     []byte
	present []bool
}

const maxVXRDepth = 16

func (w *vxrWalker) walk(off int64, depth int) error {
	if depth > maxVXRDepth {
		return fmt.Errorf("%w: VXR tree too deep", ErrCorrupt)
	}
	r := &w.r

	for off != 0 {
		if r.i32(off+8) != recVXR {
			return fmt.Errorf("%w: expected VXR at %d", ErrCorrupt, off)
		}
		next := r.i64(off + 12)
		n := int64(r.i32(off + 20))
		used := int64(r.i32(off + 24))
		if r.err != nil {
			return r.err
		}
		if used > n || n < 0 {
			return fmt.Errorf("%w: VXR at %d uses %d of %d entries", ErrCorrupt, off, used, n)
		}

		for e := int64(0); e < used; e++ {
			first := int64(r.i32(off + 28 + 4*e))
			last := int64(r.i32(off + 28 + 4*n + 4*e))
			ptr := r.i64(off + 28 + 8*n + 8*e)
			if r.err != nil {
				return r.err
			}
			if first < 0 || last < first {
				return fmt.Errorf("%w: VXR entry %d..%d", ErrCorrupt, first, last)
			}

			var data []byte
			switch r.i32(ptr + 8) {
			case recVXR:
				if err := w.walk(ptr, depth+1); err != nil {
					return err
				}
				continue
			case recVVR:
				data = r.span(ptr+12, (last-first+1)*w.recSize)
			case recCVVR:
				csize := r.i64(ptr + 16)
				packed := r.span(ptr+24, csize)
				if r.err != nil {
					return r.err
				}
				var err error
				if data, err = gunzip(packed, (last-first+1)*w.recSize); err != nil {
					return err
				}
			default:
				return fmt.Errorf("%w: unexpected record at %d", ErrCorrupt, ptr)
			}
			if r.err != nil {
				return r.err
			}
			w.place(first, last, data)
		}
		off = next
	}
	return nil
}

// place copies records first..last into the output, ignoring any beyond MaxRec.
func (w *vxrWalker) place(first, last int64, data []byte) {
	for rec := first; rec <= last && rec < int64(len(w.present)); rec++ {
		src := (rec - first) * w.recSize
		if src+w.recSize > int64(len(data)) {
			return
		}
		copy(w.buf[rec*w.recSize:(rec+1)*w.recSize], data[src:src+w.recSize])
		w.present[rec] = true
	}
}
