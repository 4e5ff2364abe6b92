package filter

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itohio/gomsr/pkg/fix16"
)

var w11 = fix16.FromFloat(1.1)

func TestTruncatedMean_Empty(t *testing.T) {
	assert.Equal(t, 0, TruncatedMean(nil, w11))
}

func TestTruncatedMean_Single(t *testing.T) {
	assert.Equal(t, 42, TruncatedMean([]uint16{42}, w11))
}

func TestTruncatedMean_Constant(t *testing.T) {
	src := []uint16{100, 100, 100, 100, 100, 100, 100, 100}
	assert.Equal(t, 100, TruncatedMean(src, w11))
}

func TestTruncatedMean_RejectsOutlier(t *testing.T) {
	// One spike amid a tight cluster must not drag the mean.
	src := []uint16{1000, 1001, 999, 1000, 1002, 998, 1000, 4000}

	got := TruncatedMean(src, w11)
	assert.InDelta(t, 1000, got, 2)
}

func TestTruncatedMean_WithinMinMax(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for iter := 0; iter < 2000; iter++ {
		n := 1 + rng.Intn(16)
		src := make([]uint16, n)
		lo, hi := uint16(4095), uint16(0)
		for i := range src {
			src[i] = uint16(rng.Intn(4096))
			if src[i] < lo {
				lo = src[i]
			}
			if src[i] > hi {
				hi = src[i]
			}
		}

		w := fix16.FromFloat(1.0 + rng.Float64())
		got := TruncatedMean(src, w)
		assert.GreaterOrEqual(t, got, int(lo), "src=%v", src)
		assert.LessOrEqual(t, got, int(hi), "src=%v", src)
	}
}

func TestTruncatedMean_Deterministic(t *testing.T) {
	src := []uint16{7, 2048, 2049, 2050, 2047, 2046, 2048, 4095}
	first := TruncatedMean(src, w11)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, TruncatedMean(src, w11))
	}
}
