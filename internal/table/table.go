// Package table holds loosely typed CSV tables whose schema is only known at
// run time (DONKI exports, merged CME catalogs, overlay outputs).
//
// CSV I/O goes through gota dataframes with every column typed as string and
// no NA markers, so cells are written back exactly as they were read. gota
// renames blank and repeated headers (X0, a_0, a_1); the header row is kept
// as written in the file instead.
package table

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/KI7MT/ki7mt-swx-lab/internal/common"
)

var loadOptions = []dataframe.LoadOption{
	dataframe.DetectTypes(false),
	dataframe.DefaultType(series.String),
	dataframe.NaNValues(nil),
}

// Table is a header plus rows of text cells. Every row has len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// New returns an empty table with the given header.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of column name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Has reports whether the column exists.
func (t *Table) Has(name string) bool { return t.Index(name) >= 0 }

// Get returns the cell at row/name, or "" when the column is absent.
func (t *Table) Get(row int, name string) string {
	i := t.Index(name)
	if i < 0 {
		return ""
	}
	return t.Rows[row][i]
}

// Column returns a copy of one column's cells, or nil when absent.
func (t *Table) Column(name string) []string {
	i := t.Index(name)
	if i < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

// AppendRow adds one row; the cell count must match the header.
func (t *Table) AppendRow(cells ...string) error {
	if len(cells) != len(t.Columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(cells), len(t.Columns))
	}
	t.Rows = append(t.Rows, cells)
	return nil
}

// SetColumn replaces the named column or appends it when absent.
func (t *Table) SetColumn(name string, values []string) error {
	if len(values) != len(t.Rows) {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), len(t.Rows))
	}
	i := t.Index(name)
	if i < 0 {
		t.Columns = append(t.Columns, name)
		for r := range t.Rows {
			t.Rows[r] = append(t.Rows[r], values[r])
		}
		return nil
	}
	for r := range t.Rows {
		t.Rows[r][i] = values[r]
	}
	return nil
}

// Rename applies old->new column renames; unknown names are ignored.
func (t *Table) Rename(names map[string]string) {
	for i, c := range t.Columns {
		if n, ok := names[c]; ok {
			t.Columns[i] = n
		}
	}
}

// MapColumns rewrites every column name through fn.
func (t *Table) MapColumns(fn func(string) string) {
	for i, c := range t.Columns {
		t.Columns[i] = fn(c)
	}
}

// Reorder returns a table whose rows follow idx.
func (t *Table) Reorder(idx []int) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...), Rows: make([][]string, len(idx))}
	for i, k := range idx {
		out.Rows[i] = t.Rows[k]
	}
	return out
}

// Join attaches to each left row the right row selected by match (index into
// right.Rows, or -1 for no match, which yields empty cells). Column names
// present on both sides get _x and _y suffixes.
func Join(left, right *Table, match []int) (*Table, error) {
	if len(match) != len(left.Rows) {
		return nil, fmt.Errorf("join: %d matches for %d left rows", len(match), len(left.Rows))
	}

	seen := make(map[string]bool, len(left.Columns))
	for _, c := range left.Columns {
		seen[c] = true
	}
	dup := make(map[string]bool)
	for _, c := range right.Columns {
		if seen[c] {
			dup[c] = true
		}
	}

	out := &Table{Rows: make([][]string, len(left.Rows))}
	for _, c := range left.Columns {
		if dup[c] {
			c += "_x"
		}
		out.Columns = append(out.Columns, c)
	}
	for _, c := range right.Columns {
		if dup[c] {
			c += "_y"
		}
		out.Columns = append(out.Columns, c)
	}

	blank := make([]string, len(right.Columns))
	for i, row := range left.Rows {
		cells := make([]string, 0, len(out.Columns))
		cells = append(cells, row...)
		if k := match[i]; k >= 0 {
			cells = append(cells, right.Rows[k]...)
		} else {
			cells = append(cells, blank...)
		}
		out.Rows[i] = cells
	}
	return out, nil
}

// Frame converts the table to a string-typed gota DataFrame.
func (t *Table) Frame() dataframe.DataFrame {
	records := make([][]string, 0, len(t.Rows)+1)
	records = append(records, t.Columns)
	records = append(records, t.Rows...)
	return dataframe.LoadRecords(records, loadOptions...)
}

// Decode reads a CSV with a header row.
func Decode(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	df := dataframe.ReadCSV(bytes.NewReader(data), loadOptions...)
	if df.Err != nil {
		// dataframes cannot be empty; a header-only file is still a valid table
		header, herr := csv.NewReader(bytes.NewReader(data)).ReadAll()
		if herr == nil && len(header) == 1 {
			return New(header[0]...), nil
		}
		return nil, df.Err
	}

	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, err
	}
	records := df.Records()
	return &Table{Columns: header, Rows: records[1:]}, nil
}

// Encode writes the table as CSV with a header row.
func (t *Table) Encode(w io.Writer) error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("encode: table has no columns")
	}
	var df dataframe.DataFrame
	if len(t.Rows) > 0 {
		if df = t.Frame(); df.Err != nil {
			return df.Err
		}
	}

	cw := csv.NewWriter(w)
	cw.Write(t.Columns)
	cw.Flush()
	if err := cw.Error(); err != nil || len(t.Rows) == 0 {
		return err
	}
	return df.WriteCSV(w, dataframe.WriteHeader(false))
}

// ReadCSV loads a CSV file; .csv.gz files are decompressed transparently.
func ReadCSV(path string) (*Table, error) {
	rc, err := common.OpenMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	t, err := Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// WriteCSV writes the table atomically to path.
func (t *Table) WriteCSV(path string) error {
	return common.WriteFileAtomic(path, t.Encode)
}

// TrimColumns strips surrounding whitespace from column names.
func (t *Table) TrimColumns() {
	t.MapColumns(strings.TrimSpace)
}
