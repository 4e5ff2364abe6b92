package fix16

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSinusize_Endpoints(t *testing.T) {
	assert.Equal(t, Fix16(0), Sinusize(0))
	assert.Equal(t, One, Sinusize(One))
}

func TestSinusize_Midpoint(t *testing.T) {
	// Half the duty corresponds to firing at the symmetry point.
	assert.InDelta(t, 0.5, Sinusize(FromFloat(0.5)).ToFloat(), 0.01)
}

func TestSinusize_Monotone(t *testing.T) {
	prev := Sinusize(0)
	for i := 1; i <= 1000; i++ {
		x := Fix16(int64(One) * int64(i) / 1000)
		v := Sinusize(x)
		assert.GreaterOrEqual(t, v, prev, "not monotone at step %d", i)
		assert.GreaterOrEqual(t, v, Fix16(0))
		assert.LessOrEqual(t, v, One)
		prev = v
	}
}

func TestSinusize_ClampsOutOfRange(t *testing.T) {
	assert.Equal(t, Fix16(0), Sinusize(FromInt(-3)))
	assert.Equal(t, One, Sinusize(FromInt(3)))
}
