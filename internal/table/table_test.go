package table

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKeepsCellsAsText(t *testing.T) {
	in := "activityID,speed,note\n2024-10-01-CME-001,0450,\n2024-10-02-CME-002,NaN,halo\n"
	tbl, err := Decode(bytes.NewBufferString(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"activityID", "speed", "note"}, tbl.Columns)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "0450", tbl.Get(0, "speed"))
	assert.Equal(t, "", tbl.Get(0, "note"))
	assert.Equal(t, "halo", tbl.Get(1, "note"))
	assert.Equal(t, "", tbl.Get(1, "missing"))
}

func TestDecodeKeepsMarkersAndHeader(t *testing.T) {
	tbl, err := Decode(bytes.NewBufferString(",x,x\n0,NA,<nil>\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"", "x", "x"}, tbl.Columns)
	assert.Equal(t, [][]string{{"0", "NA", "<nil>"}}, tbl.Rows)

	var buf bytes.Buffer
	require.NoError(t, tbl.Encode(&buf))
	assert.Equal(t, ",x,x\n0,NA,<nil>\n", buf.String())
}

func TestDecodeHeaderOnly(t *testing.T) {
	tbl, err := Decode(bytes.NewBufferString("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.Columns)
	assert.Equal(t, 0, tbl.Len())
}

func TestWriteAndReadCSV(t *testing.T) {
	tbl := New("Time", "Density")
	require.NoError(t, tbl.AppendRow("2024-10-01 00:00:00", "4.5"))
	require.NoError(t, tbl.AppendRow("2024-10-01 00:01:00", ""))
	assert.Error(t, tbl.AppendRow("only-one"))

	path := filepath.Join(t.TempDir(), "out.csv.gz")
	require.NoError(t, tbl.WriteCSV(path))

	back, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Columns, back.Columns)
	assert.Equal(t, tbl.Rows, back.Rows)
}

func TestEncodeEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New("x", "y").Encode(&buf))
	assert.Equal(t, "x,y\n", buf.String())

	assert.Error(t, New().Encode(&buf))
}

func TestSetColumnAndRename(t *testing.T) {
	tbl := New("a")
	require.NoError(t, tbl.AppendRow("1"))
	require.NoError(t, tbl.AppendRow("2"))

	require.NoError(t, tbl.SetColumn("b", []string{"x", "y"}))
	require.NoError(t, tbl.SetColumn("a", []string{"3", "4"}))
	assert.Error(t, tbl.SetColumn("c", []string{"only"}))

	tbl.Rename(map[string]string{"a": "A", "zzz": "never"})
	assert.Equal(t, []string{"A", "b"}, tbl.Columns)
	assert.Equal(t, []string{"3", "4"}, tbl.Column("A"))
	assert.Nil(t, tbl.Column("a"))
}

func TestJoinSuffixesOverlap(t *testing.T) {
	left := New("Time", "Speed")
	left.AppendRow("t1", "400")
	left.AppendRow("t2", "410")
	right := New("eventTime", "Speed")
	right.AppendRow("e1", "900")

	out, err := Join(left, right, []int{-1, 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"Time", "Speed_x", "eventTime", "Speed_y"}, out.Columns)
	assert.Equal(t, []string{"t1", "400", "", ""}, out.Rows[0])
	assert.Equal(t, []string{"t2", "410", "e1", "900"}, out.Rows[1])

	_, err = Join(left, right, []int{0})
	assert.Error(t, err)
}

func TestReorder(t *testing.T) {
	tbl := New("k")
	tbl.AppendRow("a")
	tbl.AppendRow("b")
	tbl.AppendRow("c")
	assert.Equal(t, []string{"c", "a", "b"}, tbl.Reorder([]int{2, 0, 1}).Column("k"))
}

func TestParseTimeDropsZone(t *testing.T) {
	want := time.Date(2024, 10, 9, 1, 28, 0, 0, time.UTC)
	for _, in := range []string{
		"2024-10-09T01:28Z",
		"2024-10-09T01:28:00Z",
		"2024-10-09 01:28:00",
		"2024-10-09 01:28:00+00:00",
		"2024/10/09 01:28",
	} {
		assert.Equal(t, want, ParseTime(in), in)
	}

	local := ParseTime("2024-10-09T01:28:00+05:30")
	assert.Equal(t, want, local)

	assert.True(t, ParseTime("").IsZero())
	assert.True(t, ParseTime("NaT").IsZero())
	assert.True(t, ParseTime("garbage").IsZero())
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "2024-10-09 01:28:00", FormatTime(time.Date(2024, 10, 9, 1, 28, 0, 0, time.UTC)))
	assert.Equal(t, "2024-10-09 01:28:00.500000", FormatTime(time.Date(2024, 10, 9, 1, 28, 0, 5e8, time.UTC)))
	assert.Equal(t, "", FormatTime(time.Time{}))
}

func TestFormatTimesSharesPrecision(t *testing.T) {
	got := FormatTimes([]time.Time{
		time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
		{},
		time.Date(2024, 10, 1, 0, 0, 1, 250000, time.UTC),
	})
	assert.Equal(t, []string{"2024-10-01 00:00:00.000000", "", "2024-10-01 00:00:01.000250"}, got)

	assert.Equal(t, []string{"2024-10-01 00:00:00"},
		FormatTimes([]time.Time{time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)}))
}

func TestFloatCells(t *testing.T) {
	assert.True(t, math.IsNaN(ParseFloat("")))
	assert.True(t, math.IsNaN(ParseFloat("abc")))
	assert.Equal(t, 450.5, ParseFloat(" 450.5 "))

	assert.Equal(t, "", FormatFloat(math.NaN()))
	assert.Equal(t, "1500000", FormatFloat(1.5e6))
	assert.Equal(t, "0.25", FormatFloat(0.25))
	assert.Equal(t, "1e-05", FormatFloat(1e-5))
	assert.Equal(t, "0", FormatFloat(0))
	assert.Equal(t, "inf", FormatFloat(math.Inf(1)))
}

func TestBoolCells(t *testing.T) {
	assert.Equal(t, "True", FormatBool(true))
	assert.Equal(t, "False", FormatBool(false))
	assert.True(t, ParseBool("True"))
	assert.False(t, ParseBool("no"))
}
