// Package device abstracts the source of raw ADC tick frames: a real
// sampling MCU on a serial port, or a mocked mains+motor simulation.
package device

import (
	"github.com/itohio/gomsr/pkg/gate"
	"github.com/itohio/gomsr/pkg/sensors"
)

// Frame carries one tick's worth of raw ADC samples, channel-interleaved
// [voltage, current, knob, vrefin] repeated sensors.Oversample times —
// the same layout the on-device DMA ring uses.
type Frame struct {
	Samples [sensors.FrameSamples]uint16
}

// Device is the source of tick frames (real or mocked).
type Device interface {
	Connect() error
	Close() error
	Frames() <-chan Frame
	IsConnected() bool
}

var _ Device = (*Serial)(nil)
var _ Device = (*Mock)(nil)

// The mock plant consumes the core's gate output directly.
var _ gate.Pin = (*Mock)(nil)
