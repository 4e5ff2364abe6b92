package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/gomsr/pkg/config"
	"github.com/itohio/gomsr/pkg/sensors"
)

// Mock simulates the sampling MCU together with the plant behind it:
// 50 Hz mains, a triac that latches on a gate pulse and unlatches at
// current zero, and a universal motor whose equivalent resistance grows
// with speed. It also implements gate.Pin so the core's gate output can
// be looped straight back into the simulation.
type Mock struct {
	cfg *config.MockConfig

	frames    chan Frame
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool

	// Gate level, written by the core's tick context.
	gateOn atomic.Bool
	// Set on every rising gate edge and consumed by the plant, so a
	// one-tick pulse is never missed between two plant steps.
	gatePulse atomic.Bool

	// Knob position in [0, 1], adjustable at runtime.
	knob atomic.Uint32 // float32 bits

	// Mechanical speed as published to observers.
	speedBits atomic.Uint32 // float32 bits

	// Plant state, touched only by the producer goroutine.
	phase      float32
	speed      float32
	current    float32
	conducting bool
	polarity   float32
	rng        uint32
}

// Fixed front-end constants, matching the sensor normalisation: 12-bit
// ADC against a 3.3 V supply, 201:1 voltage divider, 10 mOhm shunt
// through a gain-50 amplifier.
const (
	mockADCCounts  = 4096
	mockVdda       = 3.3
	mockFullScaleV = mockVdda * 201.0
	mockShuntEff   = 0.5

	// 1.2 V reference against the 3.3 V full scale: 1.2/3.3*4096.
	mockVrefinRaw = uint16(1489)
)

// NewMock creates a mocked device. A nil cfg uses the defaults: a
// small universal motor whose unloaded equivalent resistance tops out
// near 500 Ohm.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mock{
		cfg:    cfg,
		frames: make(chan Frame, DefaultBufferSize),
		ctx:    ctx,
		cancel: cancel,
		rng:    0x1234567,
	}
	m.SetKnob(cfg.Knob)
	return m
}

// Connect starts the simulation.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	m.connected = true

	go m.run()

	return nil
}

// Close stops the simulation.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.cancel()
	m.connected = false

	return nil
}

// Frames returns the channel of simulated tick frames.
func (m *Mock) Frames() <-chan Frame {
	return m.frames
}

// IsConnected reports whether the simulation is running.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Set implements gate.Pin: the core's triac gate drives the simulated
// triac latch. Together with Close this lets a Mock stand in for the
// real gate line.
func (m *Mock) Set(on bool) {
	m.gateOn.Store(on)
	if on {
		m.gatePulse.Store(true)
	}
}

// SetKnob moves the simulated potentiometer.
func (m *Mock) SetKnob(pos float32) {
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	m.knob.Store(math32.Float32bits(pos))
}

// Speed returns the simulated mechanical speed in [0, 1]. Test hook.
func (m *Mock) Speed() float32 {
	return math32.Float32frombits(m.speedBits.Load())
}

// run produces frames in small batches, optionally paced to wall time.
// The frames channel is deliberately shallow so the core's gate
// feedback lags the plant by only a few ticks, as it does on hardware.
func (m *Mock) run() {
	defer close(m.frames)

	const batch = 64
	batchSeconds := float64(batch) / float64(sensors.TickFrequency) * float64(time.Second)
	batchDur := time.Duration(batchSeconds)
	next := time.Now()

	for {
		for i := 0; i < batch; i++ {
			f := m.step()
			select {
			case m.frames <- f:
			case <-m.ctx.Done():
				return
			}
		}

		if m.cfg.Realtime {
			next = next.Add(batchDur)
			if d := time.Until(next); d > 0 {
				select {
				case <-time.After(d):
				case <-m.ctx.Done():
					return
				}
			}
		} else {
			select {
			case <-m.ctx.Done():
				return
			default:
			}
		}
	}
}

// step advances the plant by one tick and encodes the ADC frame.
func (m *Mock) step() Frame {
	const dt = 1.0 / float32(sensors.TickFrequency)

	m.phase += 2 * math32.Pi * m.cfg.MainsFrequency * dt
	if m.phase > 2*math32.Pi {
		m.phase -= 2 * math32.Pi
	}
	vm := m.cfg.MainsAmplitude * math32.Sin(m.phase)

	// Triac latch: a gate pulse arms conduction, current zero drops it.
	if (m.gatePulse.Swap(false) || m.gateOn.Load()) && !m.conducting && math32.Abs(vm) > 1 {
		m.conducting = true
		m.polarity = 1
		if vm < 0 {
			m.polarity = -1
		}
		if m.current <= 0 {
			m.current = 0.01
		}
	}

	rekv := m.cfg.RekvMax * m.speed
	if m.conducting {
		// The winding sees the mains in the polarity it ignited with;
		// after the crossing the drive reverses and the inductance
		// discharges into it.
		vdrive := m.polarity * vm
		di := (vdrive - (m.cfg.Resistance+rekv)*m.current) / m.cfg.Inductance * dt
		m.current += di
		if m.current <= 0 {
			m.current = 0
			m.conducting = false
		}
	} else {
		m.current = 0
	}

	// First-order mechanics: torque from current, viscous load.
	m.speed += (m.cfg.MotorGain*m.current - m.speed) / m.cfg.TimeConstant * dt
	if m.speed < 0 {
		m.speed = 0
	}
	m.speedBits.Store(math32.Float32bits(m.speed))

	// The voltage sense is rectified in hardware: negative half-waves
	// read exactly zero.
	vr := vm
	if vr < 0 {
		vr = 0
	}

	rawV := encodeADC(vr / mockFullScaleV)
	rawI := encodeADC(m.current * mockShuntEff / mockVdda)
	rawK := encodeADC(math32.Float32frombits(m.knob.Load()))

	var f Frame
	for k := 0; k < sensors.Oversample; k++ {
		base := k * sensors.Channels
		f.Samples[base] = m.noisy(rawV)
		f.Samples[base+1] = m.noisy(rawI)
		f.Samples[base+2] = m.noisy(rawK)
		f.Samples[base+3] = mockVrefinRaw
	}
	return f
}

// noisy adds uniform ADC noise, but never disturbs an exact zero: the
// rectifier pins the idle input to ground and the zero-cross detection
// depends on that.
func (m *Mock) noisy(raw uint16) uint16 {
	if m.cfg.NoiseLevel <= 0 || raw == 0 {
		return raw
	}
	// xorshift32
	m.rng ^= m.rng << 13
	m.rng ^= m.rng >> 17
	m.rng ^= m.rng << 5
	n := int(m.rng%uint32(2*m.cfg.NoiseLevel+1)) - m.cfg.NoiseLevel

	v := int(raw) + n
	if v < 1 {
		v = 1
	}
	if v > mockADCCounts-1 {
		v = mockADCCounts - 1
	}
	return uint16(v)
}

func encodeADC(norm float32) uint16 {
	v := int(norm*mockADCCounts + 0.5)
	if v < 0 {
		v = 0
	}
	if v > mockADCCounts-1 {
		v = mockADCCounts - 1
	}
	return uint16(v)
}
