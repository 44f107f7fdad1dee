package core

import "math/rand/v2"

// Rand is the random source threaded through the engine. *rand.Rand from
// math/rand/v2 satisfies it; tests pass a seeded instance to get repeatable
// event draws and action magnitudes.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

// NewRand returns a PCG-backed source seeded from seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// uniformInt draws an integer uniformly from the inclusive range [lo, hi].
// A degenerate range returns lo without consuming randomness.
func uniformInt(r Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.IntN(hi-lo+1)
}

// uniform draws a float uniformly from [lo, hi).
func uniform(r Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}
