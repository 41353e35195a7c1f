// Package cdf reads NASA Common Data Format (CDF) version 3 files.
//
// Only what the SWIS L2 products need is supported: single-file CDFs, plain
// or GZIP compressed (whole file or per variable), row-major layout, numeric
// and epoch variables. Internal records are always big-endian; the data
// encoding of the values themselves comes from the CDR.
//
// Record layouts follow the CDF Internal Format Description, v3.x.
package cdf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var (
	ErrNotCDF      = errors.New("cdf: not a CDF file")
	ErrNoVariable  = errors.New("cdf: no such variable")
	ErrUnsupported = errors.New("cdf: unsupported feature")
	ErrCorrupt     = errors.New("cdf: corrupt file")
)

const (
	magicV3           = 0xCDF30001
	magicUncompressed = 0x0000FFFF
	magicCompressed   = 0xCCCC0001
)

// Internal record types.
const (
	recCDR  = 1
	recGDR  = 2
	recRVDR = 3
	recVXR  = 6
	recVVR  = 7
	recZVDR = 8
	recCCR  = 10
	recCPR  = 11
	recCVVR = 13
)

// Compression types.
const (
	compressNone = 0
	compressGzip = 5
)

// File is an open CDF loaded into memory.
type File struct {
	data  []byte
	order binary.ByteOrder

	version  int32
	release  int32
	rowMajor bool

	rDims []int32
	vars  []*Var
}

// Var describes one variable (r or z).
type Var struct {
	Name     string
	DataType DataType
	// Dims is the shape of one record, varying dimensions only.
	Dims []int
	// NumElems is the string length for CHAR types, 1 otherwise.
	NumElems int
	// MaxRec is the last written record number, -1 when empty.
	MaxRec int
	// RecVary is false for variables with a single shared record.
	RecVary bool
	// Z marks zVariables.
	Z bool

	compressed bool
	vxrHead    int64
	cprOffset  int64
}

// Open reads and indexes the CDF at path.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse indexes an in-memory CDF.
func Parse(data []byte) (*File, error) {
	if len(data) < 8 {
		return nil, ErrNotCDF
	}
	m1 := binary.BigEndian.Uint32(data[0:4])
	m2 := binary.BigEndian.Uint32(data[4:8])

	switch m1 {
	case magicV3:
	case 0xCDF26002, 0x0000FFFF:
		return nil, fmt.Errorf("%w: CDF version 2 file", ErrUnsupported)
	default:
		return nil, ErrNotCDF
	}

	switch m2 {
	case magicUncompressed:
	case magicCompressed:
		var err error
		if data, err = inflateFile(data); err != nil {
			return nil, err
		}
	default:
		return nil, ErrNotCDF
	}

	f := &File{data: data}
	if err := f.readHeaders(); err != nil {
		return nil, err
	}
	return f, nil
}

// Close releases the file contents.
func (f *File) Close() error {
	f.data = nil
	return nil
}

// Version returns the CDF library version that wrote the file.
func (f *File) Version() string {
	return fmt.Sprintf("%d.%d", f.version, f.release)
}

// Variables returns variable names in file order, rVariables first.
func (f *File) Variables() []string {
	names := make([]string, len(f.vars))
	for i, v := range f.vars {
		names[i] = v.Name
	}
	return names
}

// Var returns the named variable.
func (f *File) Var(name string) (*Var, error) {
	for _, v := range f.vars {
		if v.Name == name {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoVariable, name)
}

// inflateFile expands a whole-file compressed CDF (CCR at offset 8) into the
// equivalent uncompressed image so that stored offsets stay valid.
func inflateFile(data []byte) ([]byte, error) {
	r := reader{data: data}
	size := r.i64(8)
	if r.err != nil || r.i32(16) != recCCR {
		return nil, fmt.Errorf("%w: missing CCR", ErrCorrupt)
	}
	cprOffset := r.i64(20)
	usize := r.i64(28)
	if r.err != nil || size < 36 || 8+size > int64(len(data)) {
		return nil, fmt.Errorf("%w: bad CCR size", ErrCorrupt)
	}

	ctype, err := compressionAt(&r, cprOffset)
	if err != nil {
		return nil, err
	}
	if ctype != compressGzip {
		return nil, fmt.Errorf("%w: file compression type %d", ErrUnsupported, ctype)
	}

	body, err := gunzip(data[8+32:8+size], usize)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 8, 8+len(body))
	binary.BigEndian.PutUint32(out[0:4], magicV3)
	binary.BigEndian.PutUint32(out[4:8], magicUncompressed)
	return append(out, body...), nil
}

func compressionAt(r *reader, offset int64) (int32, error) {
	if r.i32(offset+8) != recCPR {
		return 0, fmt.Errorf("%w: missing CPR at %d", ErrCorrupt, offset)
	}
	ctype := r.i32(offset + 12)
	if r.err != nil {
		return 0, r.err
	}
	return ctype, nil
}

func gunzip(b []byte, sizeHint int64) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", ErrCorrupt, err)
	}
	defer zr.Close()

	var buf bytes.Buffer
	if sizeHint > 0 && sizeHint < 1<<31 {
		buf.Grow(int(sizeHint))
	}
	if _, err := io.Copy(&buf, zr); err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", ErrCorrupt, err)
	}
	return buf.Bytes(), nil
}

func (f *File) readHeaders() error {
	r := reader{data: f.data}

	const cdr = 8
	if r.i32(cdr+8) != recCDR {
		return fmt.Errorf("%w: missing CDR", ErrCorrupt)
	}
	gdr := r.i64(cdr + 12)
	f.version = r.i32(cdr + 20)
	f.release = r.i32(cdr + 24)
	encoding := r.i32(cdr + 28)
	flags := r.i32(cdr + 32)
	if r.err != nil {
		return r.err
	}

	order, err := byteOrder(encoding)
	if err != nil {
		return err
	}
	f.order = order
	f.rowMajor = flags&1 == 1

	if r.i32(gdr+8) != recGDR {
		return fmt.Errorf("%w: missing GDR", ErrCorrupt)
	}
	rHead := r.i64(gdr + 12)
	zHead := r.i64(gdr + 20)
	nr := r.i32(gdr + 44)
	rNumDims := r.i32(gdr + 56)
	nz := r.i32(gdr + 60)
	if r.err != nil {
		return r.err
	}
	if rNumDims < 0 || rNumDims > 10 {
		return fmt.Errorf("%w: %d r dimensions", ErrCorrupt, rNumDims)
	}
	for i := int32(0); i < rNumDims; i++ {
		f.rDims = append(f.rDims, r.i32(gdr+84+4*int64(i)))
	}

	if err := f.readVDRs(&r, rHead, int(nr), false); err != nil {
		return err
	}
	if err := f.readVDRs(&r, zHead, int(nz), true); err != nil {
		return err
	}
	return r.err
}

// VDR field offsets relative to the record start.
const (
	vdrNext     = 12
	vdrDataType = 20
	vdrMaxRec   = 24
	vdrVXRHead  = 28
	vdrFlags    = 44
	vdrNumElems = 64
	vdrCPR      = 72
	vdrName     = 84
	vdrTail     = 340
)

func (f *File) readVDRs(r *reader, head int64, count int, z bool) error {
	off := head
	for i := 0; i < count && off != 0; i++ {
		want := int32(recRVDR)
		if z {
			want = recZVDR
		}
		if r.i32(off+8) != want {
			return fmt.Errorf("%w: expected VDR at %d", ErrCorrupt, off)
		}

		v := &Var{
			Name:     r.str(off+vdrName, 256),
			DataType: DataType(r.i32(off + vdrDataType)),
			MaxRec:   int(r.i32(off + vdrMaxRec)),
			NumElems: int(r.i32(off + vdrNumElems)),
			Z:        z,
			vxrHead:  r.i64(off + vdrVXRHead),
		}
		flags := r.i32(off + vdrFlags)
		v.RecVary = flags&1 != 0
		v.compressed = flags&4 != 0
		v.cprOffset = r.i64(off + vdrCPR)

		var sizes []int32
		varysAt := off + vdrTail
		if z {
			n := r.i32(off + vdrTail)
			if n < 0 || n > 10 {
				return fmt.Errorf("%w: %s has %d dimensions", ErrCorrupt, v.Name, n)
			}
			for d := int32(0); d < n; d++ {
				sizes = append(sizes, r.i32(off+vdrTail+4+4*int64(d)))
			}
			varysAt = off + vdrTail + 4 + 4*int64(n)
		} else {
			sizes = f.rDims
		}
		for d, size := range sizes {
			if r.i32(varysAt+4*int64(d)) != 0 {
				v.Dims = append(v.Dims, int(size))
			}
		}
		if r.err != nil {
			return r.err
		}
		if !f.rowMajor && len(v.Dims) > 1 {
			return fmt.Errorf("%w: column-major variable %s", ErrUnsupported, v.Name)
		}

		f.vars = append(f.vars, v)
		off = r.i64(off + vdrNext)
	}
	return nil
}

func byteOrder(encoding int32) (binary.ByteOrder, error) {
	switch encoding {
	case 1, 2, 5, 7, 9, 12, 13, 17, 19:
		return binary.BigEndian, nil
	case 4, 6, 14, 15, 16, 18:
		return binary.LittleEndian, nil
	default:
		return nil, fmt.Errorf("%w: data encoding %d", ErrUnsupported, encoding)
	}
}

// reader does bounds-checked big-endian reads, remembering the first error.
type reader struct {
	data []byte
	err  error
}

func (r *reader) span(off, n int64) []byte {
	if r.err != nil {
		return nil
	}
	if off < 0 || n < 0 || off+n > int64(len(r.data)) {
		r.err = fmt.Errorf("%w: read %d bytes at %d past end", ErrCorrupt, n, off)
		return nil
	}
	return r.data[off : off+n]
}

func (r *reader) i32(off int64) int32 {
	b := r.span(off, 4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *reader) i64(off int64) int64 {
	b := r.span(off, 8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *reader) str(off, n int64) string {
	b := r.span(off, n)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
