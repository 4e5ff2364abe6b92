package filter

import "github.com/itohio/gomsr/pkg/fix16"

// MedianWindow is the capacity of the running median filter.
const MedianWindow = 32

// Median is a running median over the most recent MedianWindow samples.
// Older samples are overwritten once the window is full. The zero value
// is ready to use; Result on an empty filter returns 0.
type Median struct {
	buf     [MedianWindow]fix16.Fix16
	scratch [MedianWindow]fix16.Fix16
	head    int
	count   int
}

// Add appends a sample, evicting the oldest one when the window is full.
func (m *Median) Add(x fix16.Fix16) {
	m.buf[m.head] = x
	m.head = (m.head + 1) % MedianWindow
	if m.count < MedianWindow {
		m.count++
	}
}

// Count reports how many samples the window currently holds.
func (m *Median) Count() int {
	return m.count
}

// Result returns the median of the buffered samples. With an even count
// the upper middle element is used. Insertion sort on a fixed scratch
// array keeps this allocation-free; the window is small enough that the
// quadratic sort is cheaper than anything fancier.
func (m *Median) Result() fix16.Fix16 {
	if m.count == 0 {
		return 0
	}

	s := m.scratch[:m.count]
	copy(s, m.buf[:m.count])
	for i := 1; i < len(s); i++ {
		v := s[i]
		j := i - 1
		for j >= 0 && s[j] > v {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = v
	}
	return s[m.count/2]
}

// Reset empties the window.
func (m *Median) Reset() {
	m.head = 0
	m.count = 0
}
