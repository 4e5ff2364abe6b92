package sensors

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gomsr/pkg/eeprom"
)

// Synthetic 50 Hz rectified mains: the positive half-wave is a sine of
// amplitude 311, the negative half-wave reads exactly zero, halfTicks
// ticks each.
const (
	halfTicks = 178
	amplitude = 311.0
)

// Front-end encoding, the inverse of the sensor normalisation: 3.3 V
// supply, 201:1 divider, 10 mOhm shunt with gain 50.
const (
	fullScaleVolts = 3.3 * 201.0
	shuntEffOhms   = 0.5

	// 1.2 V reference against the 3.3 V full scale: 1.2/3.3*4096.
	vrefinRaw = uint16(1489)
)

func rawVolts(v float64) uint16 {
	if v <= 0 {
		return 0
	}
	r := int(v/fullScaleVolts*4096 + 0.5)
	if r > 4095 {
		r = 4095
	}
	return uint16(r)
}

func rawAmps(i float64) uint16 {
	if i <= 0 {
		return 0
	}
	r := int(i*shuntEffOhms/3.3*4096 + 0.5)
	if r > 4095 {
		r = 4095
	}
	return uint16(r)
}

// mainsVolts returns the sensed voltage at tick i.
func mainsVolts(i int) float64 {
	phase := i % (2 * halfTicks)
	if phase >= halfTicks {
		return 0
	}
	return amplitude * math.Sin(math.Pi*(float64(phase)+0.5)/halfTicks)
}

func frame(rawV, rawI, rawK uint16) []uint16 {
	buf := make([]uint16, FrameSamples)
	for k := 0; k < Oversample; k++ {
		base := k * Channels
		buf[base] = rawV
		buf[base+1] = rawI
		buf[base+2] = rawK
		buf[base+3] = vrefinRaw
	}
	return buf
}

func newSensors(t *testing.T) (*Sensors, *eeprom.MemStore) {
	t.Helper()
	store := eeprom.NewMemStore()
	s := &Sensors{}
	s.Configure(store)
	return s, store
}

func tickFrame(s *Sensors, rawV, rawI, rawK uint16) {
	s.LoadRaw(frame(rawV, rawI, rawK), 0)
	s.Tick()
}

func TestNormalisation(t *testing.T) {
	s, _ := newSensors(t)

	for i := 0; i < 100; i++ {
		tickFrame(s, rawVolts(311), rawAmps(2.0), 2048)
	}

	assert.InDelta(t, 311, s.Voltage.ToFloat(), 2.0)
	assert.InDelta(t, 2.0, s.Current.ToFloat(), 0.05)
	assert.InDelta(t, 0.5, s.Knob.ToFloat(), 0.01)
}

func TestNormalisation_ZeroStaysExactlyZero(t *testing.T) {
	s, _ := newSensors(t)

	// The zero-cross detection depends on a pinned zero: no offset may
	// creep in through the conversion chain.
	tickFrame(s, 0, 0, 0)
	assert.Equal(t, int32(0), int32(s.Voltage))
	assert.Equal(t, int32(0), int32(s.Current))
}

func TestKnobSmoothing(t *testing.T) {
	s, _ := newSensors(t)

	tickFrame(s, 0, 0, 4095)
	first := s.Knob.ToFloat()
	assert.InDelta(t, 1.0/16, first, 0.005)

	for i := 0; i < 200; i++ {
		tickFrame(s, 0, 0, 4095)
	}
	assert.InDelta(t, 1.0, s.Knob.ToFloat(), 0.01)
}

func TestZeroCrossAndPeriod(t *testing.T) {
	s, _ := newSensors(t)

	var ups, downs int
	lastUp, lastDown := -1, -1

	for i := 0; i < 5*halfTicks; i++ {
		tickFrame(s, rawVolts(mainsVolts(i)), 0, 0)

		assert.False(t, s.ZeroCrossUp && s.ZeroCrossDown, "both crossings at tick %d", i)
		if s.ZeroCrossUp {
			ups++
			// The up crossing follows the previous down crossing by
			// exactly one zero half-wave.
			if lastDown >= 0 {
				assert.Equal(t, halfTicks, i-lastDown)
				assert.Equal(t, halfTicks, s.PeriodInTicks)
			}
			lastUp = i
		}
		if s.ZeroCrossDown {
			downs++
			if lastUp >= 0 && ups >= 2 {
				assert.Equal(t, halfTicks, i-lastUp)
				assert.Equal(t, halfTicks, s.PeriodInTicks)
			}
			lastDown = i
		}
		if s.ZeroCrossUp || s.ZeroCrossDown {
			// Reset at the crossing, then counted once for this tick.
			assert.Equal(t, 1, s.PhaseCounter, "phase not reset at crossing")
		}
	}

	assert.GreaterOrEqual(t, ups, 2)
	assert.GreaterOrEqual(t, downs, 2)
}

func TestPeriodUnknownDuringFirstHalfWave(t *testing.T) {
	s, _ := newSensors(t)

	for i := 0; i < halfTicks; i++ {
		tickFrame(s, rawVolts(mainsVolts(i)), 0, 0)
		assert.Equal(t, 0, s.PeriodInTicks)
	}
}

func TestPowerIntegration_ResistiveLoad(t *testing.T) {
	s, _ := newSensors(t)

	// Fully conducting resistive load: i = v / 502 Ohm. The current
	// falls to zero together with the voltage, so power publishes on
	// the zero-cross-down tick.
	const load = 502.0

	var published []float64
	for i := 0; i < 8*halfTicks; i++ {
		v := mainsVolts(i)
		tickFrame(s, rawVolts(v), rawAmps(v/load), 0)
		if s.ZeroCrossDown && s.Power > 0 {
			published = append(published, s.Power.ToFloat())
		}
	}

	require.NotEmpty(t, published)

	// Mean of v^2/load over the conducting half divided by the
	// half-period: amplitude^2/2/load, normalised by 2000 W.
	expected := amplitude * amplitude / 2 / load / eeprom.DefaultPowerMax
	assert.InDelta(t, expected, published[len(published)-1], expected*0.1)
}

func TestPowerIntegration_InductiveTail(t *testing.T) {
	s, _ := newSensors(t)

	// Constant current through the positive half that persists 20
	// ticks into the zero half-wave: the replayed voltage must be
	// subtracted from the power sum.
	const tail = 20
	const ampsOn = 1.0

	var lastPower float64
	var vSeen []float64

	for i := 0; i < 8*halfTicks; i++ {
		phase := i % (2 * halfTicks)
		v := mainsVolts(i)

		amps := 0.0
		if phase < halfTicks+tail {
			amps = ampsOn
		}

		tickFrame(s, rawVolts(v), rawAmps(amps), 0)

		if v > 0 {
			vSeen = append(vSeen, s.Voltage.ToFloat())
		}
		if s.Power > 0 {
			lastPower = s.Power.ToFloat()
		}
	}

	require.NotEmpty(t, vSeen)

	// Reconstruct the expectation from the sensed voltages of the last
	// full half-wave: sum of v*i minus the replayed head of the wave.
	last := vSeen[len(vSeen)-halfTicks:]
	var sum float64
	for _, v := range last {
		sum += v * ampsOn
	}
	for k := 0; k < tail; k++ {
		sum -= last[k] * ampsOn
	}
	expected := sum / halfTicks / eeprom.DefaultPowerMax

	assert.InDelta(t, expected, lastPower, expected*0.05)
}

func TestSpeedEstimation_ConstantEquivalentResistance(t *testing.T) {
	store := eeprom.NewMemStore()
	// Kill the inductance correction so the expectation is exact.
	require.NoError(t, store.WriteFloat(eeprom.AddrMotorInductance, 0))
	s := &Sensors{}
	s.Configure(store)

	// Motor at constant speed: total resistance 502 Ohm, of which
	// 2 Ohm is the winding. r_ekv = 500; with factor 1.0 the published
	// speed is r_ekv itself.
	const total = 502.0

	s.InTriacOn = true
	for i := 0; i < 8*halfTicks; i++ {
		v := mainsVolts(i)
		tickFrame(s, rawVolts(v), rawAmps(v/total), 0)
	}

	assert.InDelta(t, 500, s.Speed.ToFloat(), 15)
}

func TestSpeedEstimation_RequiresTriacOn(t *testing.T) {
	s, _ := newSensors(t)

	// Same waveform, but the gate reads off: every sample must be
	// rejected and the published speed stays zero.
	s.InTriacOn = false
	for i := 0; i < 8*halfTicks; i++ {
		v := mainsVolts(i)
		tickFrame(s, rawVolts(v), rawAmps(v/502.0), 0)
	}

	assert.Equal(t, 0.0, s.Speed.ToFloat())
}

func TestVoltageBufferOverCapacity(t *testing.T) {
	s, _ := newSensors(t)

	// A half-period longer than the replay buffer: writes past the
	// buffer are dropped, nothing explodes and power stays finite.
	const longHalf = VoltageBufferSize + 50

	for i := 0; i < 6*longHalf; i++ {
		phase := i % (2 * longHalf)
		v := 0.0
		if phase < longHalf {
			v = amplitude * math.Sin(math.Pi*(float64(phase)+0.5)/longHalf)
		}
		tickFrame(s, rawVolts(v), rawAmps(v/502.0), 0)

		assert.GreaterOrEqual(t, s.Power.ToFloat(), 0.0)
		assert.Less(t, s.Power.ToFloat(), 2.0)
	}
}
