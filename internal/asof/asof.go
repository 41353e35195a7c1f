// Package asof matches rows of two time-ordered tables by nearest timestamp.
package asof

import (
	"sort"
	"time"
)

// Nearest returns, for every left timestamp, the index of the right timestamp
// closest to it within tol (inclusive), or -1 when nothing is close enough.
//
// Non-zero timestamps on both sides must be sorted ascending; zero timestamps
// may sit anywhere and never match. On a tie the earlier right row wins. When
// several right rows share a key, the backward candidate is the last of them
// and the forward candidate the first.
func Nearest(left, right []time.Time, tol time.Duration) []int {
	keys := make([]int, 0, len(right))
	for k, t := range right {
		if !t.IsZero() {
			keys = append(keys, k)
		}
	}

	out := make([]int, len(left))
	j := 0 // first position in keys with right time > current left time
	for i, t := range left {
		out[i] = -1
		if t.IsZero() {
			continue
		}
		for j < len(keys) && !right[keys[j]].After(t) {
			j++
		}

		best := -1
		var bestDiff time.Duration
		if j > 0 {
			best = keys[j-1]
			bestDiff = t.Sub(right[best])
		}
		if j < len(keys) {
			if diff := right[keys[j]].Sub(t); best < 0 || diff < bestDiff {
				best = keys[j]
				bestDiff = diff
			}
		}

		if best >= 0 && bestDiff <= tol {
			out[i] = best
		}
	}
	return out
}

// Order returns the permutation that stably sorts times ascending, with zero
// times moved to the end.
func Order(times []time.Time) []int {
	idx := make([]int, len(times))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ta, tb := times[idx[a]], times[idx[b]]
		if ta.IsZero() || tb.IsZero() {
			return !ta.IsZero() && tb.IsZero()
		}
		return ta.Before(tb)
	})
	return idx
}

// Permute returns times reordered by idx.
func Permute(times []time.Time, idx []int) []time.Time {
	out := make([]time.Time, len(idx))
	for i, k := range idx {
		out[i] = times[k]
	}
	return out
}
