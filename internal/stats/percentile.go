package stats

import (
	"math"
	"slices"
)

// Percentile returns the linearly interpolated value at rank p (0–100) of
// values. The input slice is not modified. p outside [0, 100] is clamped.
//
// ok is false when values is empty: there is no percentile of nothing, and
// callers should treat that as insufficient data rather than an error.
func Percentile(values []float64, p float64) (v float64, ok bool) {
	if len(values) == 0 {
		return 0, false
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	p = clamp(p, 0, 100)
	k := float64(len(sorted)-1) * (p / 100)
	f := math.Floor(k)
	c := math.Ceil(k)
	if f == c {
		return sorted[int(k)], true
	}

	d0 := sorted[int(f)] * (c - k)
	d1 := sorted[int(c)] * (k - f)
	return d0 + d1, true
}

// clamp restricts v to the range [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
