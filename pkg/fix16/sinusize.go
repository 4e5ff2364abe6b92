package fix16

import "math"

// Phase-cut drivers have a nonlinear duty-to-power relation: the power
// delivered through a triac fired at phase θ is proportional to the
// integral of the sine squared over the conducting interval. Sinusize
// precompensates the commanded duty so that a uniform sweep of the input
// produces a uniform sweep of delivered power.
//
// The mapping is tabulated once at startup and interpolated linearly.

const sinusizeTableSize = 512

var sinusizeTable [sinusizeTableSize]Fix16

func init() {
	// Firing at phase θ in [0, π] delivers the power fraction
	// P(θ) = 1 - (θ - sin(2θ)/2)/π, falling from 1 to 0. table[i] is the
	// phase shift 1 - θ/π at which P(θ) = i/(N-1), found by bisection.
	for i := 0; i < sinusizeTableSize; i++ {
		target := float64(i) / (sinusizeTableSize - 1)
		lo, hi := 0.0, math.Pi
		for k := 0; k < 60; k++ {
			mid := (lo + hi) / 2
			if 1-(mid-math.Sin(2*mid)/2)/math.Pi > target {
				lo = mid
			} else {
				hi = mid
			}
		}
		sinusizeTable[i] = FromFloat(1 - (lo+hi)/2/math.Pi)
	}
	// Pin the endpoints so Sinusize(0) == 0 and Sinusize(1) == One exactly.
	sinusizeTable[0] = 0
	sinusizeTable[sinusizeTableSize-1] = One
}

// Sinusize maps a desired duty in [0, 1] to the normalized phase shift
// that delivers that fraction of half-wave power. Monotone non-decreasing,
// Sinusize(0) == 0, Sinusize(1) == 1. Inputs outside [0, 1] are clamped.
func Sinusize(x Fix16) Fix16 {
	x = ClampZeroOne(x)

	scaled := int64(x) * (sinusizeTableSize - 1)
	idx := int(scaled >> 16)
	frac := Fix16(scaled & 0xFFFF)

	if idx >= sinusizeTableSize-1 {
		return sinusizeTable[sinusizeTableSize-1]
	}

	a := sinusizeTable[idx]
	b := sinusizeTable[idx+1]
	return a + Mul(b-a, frac)
}
