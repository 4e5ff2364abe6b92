package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itohio/gomsr/pkg/fix16"
)

func TestMedian_Empty(t *testing.T) {
	var m Median
	assert.Equal(t, fix16.Fix16(0), m.Result())
	assert.Equal(t, 0, m.Count())
}

func TestMedian_OddCount(t *testing.T) {
	var m Median
	for _, v := range []int{5, 1, 9} {
		m.Add(fix16.FromInt(v))
	}
	assert.Equal(t, fix16.FromInt(5), m.Result())
}

func TestMedian_UnsortedInput(t *testing.T) {
	var m Median
	for _, v := range []int{30, 10, 50, 20, 40} {
		m.Add(fix16.FromInt(v))
	}
	assert.Equal(t, fix16.FromInt(30), m.Result())
}

func TestMedian_IgnoresSpike(t *testing.T) {
	var m Median
	for _, v := range []int{500, 501, 499, 10000, 500} {
		m.Add(fix16.FromInt(v))
	}
	assert.Equal(t, fix16.FromInt(500), m.Result())
}

func TestMedian_WindowOverflow(t *testing.T) {
	var m Median
	// Fill beyond capacity: the oldest samples must fall out.
	for i := 0; i < MedianWindow; i++ {
		m.Add(fix16.FromInt(1))
	}
	for i := 0; i < MedianWindow; i++ {
		m.Add(fix16.FromInt(7))
	}
	assert.Equal(t, MedianWindow, m.Count())
	assert.Equal(t, fix16.FromInt(7), m.Result())
}

func TestMedian_Reset(t *testing.T) {
	var m Median
	m.Add(fix16.FromInt(3))
	m.Add(fix16.FromInt(4))
	m.Reset()

	assert.Equal(t, 0, m.Count())
	assert.Equal(t, fix16.Fix16(0), m.Result())

	m.Add(fix16.FromInt(11))
	assert.Equal(t, fix16.FromInt(11), m.Result())
}
