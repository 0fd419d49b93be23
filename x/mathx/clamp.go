package mathx

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ByteOf rounds v to the nearest integer inside [lo, hi] ∩ [0, 255] and
// narrows it to a register byte. An empty range (lo == hi == 0) means the
// full byte range.
func ByteOf[T constraints.Float](v, lo, hi T) byte {
	if lo == 0 && hi == 0 {
		hi = math.MaxUint8
	}
	lo = Clamp(lo, 0, math.MaxUint8)
	hi = Clamp(hi, 0, math.MaxUint8)
	return byte(Clamp(T(math.Round(float64(v))), lo, hi))
}
