// Package filter provides the small statistical filters used by the
// sampling pipeline: an outlier-rejecting truncated mean for ADC
// oversample windows and a running median for speed estimation.
package filter

import "github.com/itohio/gomsr/pkg/fix16"

// TruncatedMean computes the mean of src after rejecting samples further
// than w standard deviations from the raw mean. w is a window factor in
// Q16.16, expected in [1, 2]. The result always lies within
// [min(src), max(src)]; if every sample is rejected the unfiltered mean
// is returned. Integer arithmetic only, two passes, no allocation.
func TruncatedMean(src []uint16, w fix16.Fix16) int {
	n := len(src)
	if n == 0 {
		return 0
	}

	var sum, sumSq int64
	for _, v := range src {
		s := int64(v)
		sum += s
		sumSq += s * s
	}

	mean := int((sum + int64(n)/2) / int64(n))
	if n < 2 {
		return mean
	}

	// Sample variance. The subtraction cannot go negative by more than
	// rounding, clamp to keep the threshold sane.
	variance := (sumSq - sum*sum/int64(n)) / int64(n-1)
	if variance < 0 {
		variance = 0
	}

	// w^2 * variance, with the Q16.16 scale shifted back out. Samples are
	// 12-bit so the products stay far from 64-bit overflow.
	w2 := int64(fix16.Mul(w, w))
	threshold := (w2 * variance) >> 16

	var fSum int64
	var fCount int64
	for _, v := range src {
		d := int64(v) - int64(mean)
		if d*d < threshold {
			fSum += int64(v)
			fCount++
		}
	}

	if fCount == 0 {
		return mean
	}
	return int((fSum + fCount/2) / fCount)
}
