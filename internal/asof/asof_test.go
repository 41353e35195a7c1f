package asof

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func TestNearestWithinTolerance(t *testing.T) {
	left := []time.Time{at(0), at(100), at(200), at(1000)}
	right := []time.Time{at(10), at(130), at(500)}

	got := Nearest(left, right, 60*time.Second)
	assert.Equal(t, []int{0, 1, -1, -1}, got)
}

func TestNearestToleranceInclusive(t *testing.T) {
	got := Nearest([]time.Time{at(0)}, []time.Time{at(60)}, 60*time.Second)
	assert.Equal(t, []int{0}, got)
}

func TestNearestTiePrefersBackward(t *testing.T) {
	got := Nearest([]time.Time{at(50)}, []time.Time{at(40), at(60)}, time.Minute)
	assert.Equal(t, []int{0}, got)
}

func TestNearestDuplicateKeys(t *testing.T) {
	right := []time.Time{at(0), at(0), at(100), at(100)}

	// backward: last of the equal run
	assert.Equal(t, []int{1}, Nearest([]time.Time{at(10)}, right, time.Hour))
	// forward: first of the equal run
	assert.Equal(t, []int{2}, Nearest([]time.Time{at(95)}, right, time.Hour))
	// exact hit on duplicates takes the last
	assert.Equal(t, []int{3}, Nearest([]time.Time{at(100)}, right, time.Hour))
}

func TestNearestIgnoresZeroTimes(t *testing.T) {
	right := []time.Time{at(100), {}, at(300)}
	left := []time.Time{{}, at(290), at(900)}

	got := Nearest(left, right, time.Hour)
	assert.Equal(t, []int{-1, 2, 2}, got)
}

func TestNearestEmpty(t *testing.T) {
	assert.Equal(t, []int{-1, -1}, Nearest([]time.Time{at(0), at(1)}, nil, time.Hour))
	assert.Empty(t, Nearest(nil, []time.Time{at(0)}, time.Hour))
}

func TestOrderStableZeroLast(t *testing.T) {
	times := []time.Time{at(30), {}, at(10), at(30), at(20)}
	idx := Order(times)
	assert.Equal(t, []int{2, 4, 0, 3, 1}, idx)
	assert.Equal(t, []time.Time{at(10), at(20), at(30), at(30), {}}, Permute(times, idx))
}
