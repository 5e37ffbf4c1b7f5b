package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// Lerp interpolates between a and b; t is not clamped.
func Lerp[T constraints.Float](a, b, t T) T {
	return a + (b-a)*t
}

// InverseLerp returns where v sits between a and b, 0 when a equals b.
func InverseLerp[T constraints.Float](a, b, v T) T {
	if a == b {
		return 0
	}
	return (v - a) / (b - a)
}
