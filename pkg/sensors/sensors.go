// Package sensors turns oversampled ADC readings into physical values and
// derives the per-half-wave quantities the regulator runs on: zero
// crossings, half-period length, consumed power and mechanical speed.
package sensors

import (
	"github.com/itohio/gomsr/pkg/eeprom"
	"github.com/itohio/gomsr/pkg/filter"
	"github.com/itohio/gomsr/pkg/fix16"
)

const (
	// TickFrequency is the rate of the core pipeline, derived from ADC
	// completion.
	TickFrequency = 17857

	// Oversample is the number of ADC conversions per channel folded
	// into one tick.
	Oversample = 8

	// Channels is the number of sampled ADC channels:
	// mains voltage, shunt current, knob, Vrefin.
	Channels = 4

	// FrameSamples is the number of raw samples consumed per tick.
	FrameSamples = Oversample * Channels

	// VoltageBufferSize bounds the recorded positive half-wave used for
	// negative-half-wave extrapolation. A 50 Hz half-period is ~179
	// ticks at TickFrequency; this leaves ~2x headroom.
	VoltageBufferSize = 400
)

// truncWindow is the outlier-rejection window for oversample
// conditioning, in standard deviations.
var truncWindow = fix16.FromFloat(1.1)

// dividerRatio is the mains voltage divider: [2*150k + 1.5k] / 1.5k.
var dividerRatio = fix16.FromFloat(301.5 / 1.5)

// vRefin is the internal ADC reference, 1.2 V.
var vRefin = fix16.FromFloat(1.2)

// Sensors holds the conditioned readings and everything derived from
// them. All public numeric fields are Q16.16.
type Sensors struct {
	// Voltage is the rectified mains voltage in volts. Exactly zero
	// during the negative half-wave: the hardware pins negative input
	// to ground and the normalisation introduces no offset.
	Voltage fix16.Fix16
	// Current is the motor shunt current in amperes. May be non-zero
	// while Voltage == 0 (inductive tail).
	Current fix16.Fix16
	// Knob is the low-pass-smoothed setpoint in [0, 1].
	Knob fix16.Fix16
	// Speed is the normalised mechanical speed, ~[0, 1] after
	// calibration. Published on each zero-cross-down, from samples of
	// the positive half-wave.
	Speed fix16.Fix16
	// Power is the normalised active power, ~[0, 1]. Updated once per
	// half-period.
	Power fix16.Fix16

	// ZeroCrossUp / ZeroCrossDown are true for exactly one tick per
	// crossing.
	ZeroCrossUp   bool
	ZeroCrossDown bool

	// PeriodInTicks is the tick count between the two most recent zero
	// crossings. Zero until a full half-period has been observed.
	PeriodInTicks int
	// PhaseCounter counts ticks since the last zero crossing.
	PhaseCounter int

	// InTriacOn mirrors the triac conduction state produced on the
	// previous tick; set by the orchestrator after the triac driver
	// runs.
	InTriacOn bool

	// Cached configuration, precomputed at Configure.
	shuntResistanceInv fix16.Fix16
	powerMaxInv        fix16.Fix16
	rekvToSpeedFactor  fix16.Fix16
	motorResistance    fix16.Fix16
	motorInductance    fix16.Fix16
	rpmMax             fix16.Fix16

	// Raw oversample windows, one per channel.
	rawVoltage [Oversample]uint16
	rawCurrent [Oversample]uint16
	rawKnob    [Oversample]uint16
	rawVrefin  [Oversample]uint16

	prevVoltage fix16.Fix16
	prevCurrent fix16.Fix16

	onceZeroCrossed   bool
	oncePeriodCounted bool

	// Power integration state.
	pSum                      int64
	powerTickCounter          int
	voltageZeroCrossTickCount int
	voltageBuffer             [VoltageBufferSize]fix16.Fix16

	// Speed estimation state.
	median       filter.Median
	triacOnTicks int
}

// Configure loads motor and scaling parameters from persistent storage
// and precomputes the inverses used on the hot path. Never fails:
// unwritten cells fall back to compiled defaults.
func (s *Sensors) Configure(store eeprom.Store) {
	powerMax := store.ReadFloat(eeprom.AddrPowerMax, eeprom.DefaultPowerMax)
	motorR := store.ReadFloat(eeprom.AddrMotorResistance, eeprom.DefaultMotorResistance)
	motorL := store.ReadFloat(eeprom.AddrMotorInductance, eeprom.DefaultMotorInductance)
	rpmMax := store.ReadFloat(eeprom.AddrRPMMax, eeprom.DefaultRPMMax)
	factor := store.ReadFloat(eeprom.AddrRekvToSpeedFactor, eeprom.DefaultRekvToSpeedFactor)

	// Shunt resistance is configured in mOhm and read through an
	// amplifier with gain 50.
	shunt := store.ReadFloat(eeprom.AddrShuntResistance, eeprom.DefaultShuntResistance) * 50.0 / 1000.0

	s.shuntResistanceInv = fix16.FromFloat(1.0 / float64(shunt))
	s.powerMaxInv = fix16.FromFloat(1.0 / float64(powerMax))
	s.motorResistance = fix16.FromFloat(float64(motorR))
	s.motorInductance = fix16.FromFloat(float64(motorL))
	s.rpmMax = fix16.FromFloat(float64(rpmMax))
	s.rekvToSpeedFactor = fix16.FromFloat(float64(factor))
}

// SetRekvToSpeedFactor overrides the cached speed scaling factor. Used
// by the calibrator, which runs with factor 1.0 and installs the
// measured value on completion.
func (s *Sensors) SetRekvToSpeedFactor(f fix16.Fix16) {
	s.rekvToSpeedFactor = f
}

// RPM converts the normalised speed to mechanical RPM for telemetry.
func (s *Sensors) RPM() int {
	return fix16.Mul(s.Speed, s.rpmMax).ToInt()
}

// LoadRaw copies one tick's worth of samples from the ADC DMA ring
// starting at offset. The ring is channel-interleaved
// [voltage, current, knob, vrefin] repeated Oversample times; the caller
// guarantees the window has been fully written.
func (s *Sensors) LoadRaw(ring []uint16, offset int) {
	for k := 0; k < Oversample; k++ {
		base := offset + k*Channels
		s.rawVoltage[k] = ring[base]
		s.rawCurrent[k] = ring[base+1]
		s.rawKnob[k] = ring[base+2]
		s.rawVrefin[k] = ring[base+3]
	}
}

// Tick runs the full per-tick sensor pipeline. Must be called exactly
// once per tick, after LoadRaw.
func (s *Sensors) Tick() {
	s.condition()
	s.detectZeroCross()
	s.trackPeriod()
	s.powerTick()
	s.speedTick()

	s.prevVoltage = s.Voltage
	s.prevCurrent = s.Current
	s.PhaseCounter++
}

// condition reduces each oversample window to one reading and converts
// to physical units.
func (s *Sensors) condition() {
	// 12-bit means shifted left by 4 align into Q16.16 as [0, 1).
	adcVoltage := fix16.Fix16(filter.TruncatedMean(s.rawVoltage[:], truncWindow) << 4)
	adcCurrent := fix16.Fix16(filter.TruncatedMean(s.rawCurrent[:], truncWindow) << 4)
	adcKnob := fix16.Fix16(filter.TruncatedMean(s.rawKnob[:], truncWindow) << 4)
	adcVrefin := fix16.Fix16(filter.TruncatedMean(s.rawVrefin[:], truncWindow) << 4)

	// Vrefin is the internal 1.2 V reference sampled against the ADC
	// supply, which recovers the actual full-scale voltage.
	vRef := fix16.Div(vRefin, adcVrefin)

	s.Current = fix16.Mul(fix16.Mul(adcCurrent, s.shuntResistanceInv), vRef)
	s.Voltage = fix16.Mul(fix16.Mul(adcVoltage, vRef), dividerRatio)

	// IIR smoother, tau ~ 16 ticks.
	s.Knob = fix16.DivInt(fix16.MulInt(s.Knob, 15)+adcKnob, 16)
}

func (s *Sensors) detectZeroCross() {
	s.ZeroCrossUp = s.prevVoltage == 0 && s.Voltage > 0
	s.ZeroCrossDown = s.prevVoltage > 0 && s.Voltage == 0
}

func (s *Sensors) trackPeriod() {
	if !s.ZeroCrossUp && !s.ZeroCrossDown {
		return
	}
	if s.onceZeroCrossed {
		s.oncePeriodCounted = true
	}
	s.onceZeroCrossed = true
	if s.oncePeriodCounted {
		s.PeriodInTicks = s.PhaseCounter
	}
	s.PhaseCounter = 0
}

// powerTick integrates voltage*current over the half-period. During the
// negative half-wave the sensed voltage reads zero, so the positive
// half-wave is recorded and replayed to account for the energy the
// inductance returns to the supply.
func (s *Sensors) powerTick() {
	if !s.oncePeriodCounted {
		return
	}

	switch {
	case s.Voltage > 0 && s.Current > 0:
		s.pSum += (int64(s.Voltage) * int64(s.Current)) >> 16
		if s.powerTickCounter < VoltageBufferSize {
			s.voltageBuffer[s.powerTickCounter] = s.Voltage
		}
		s.powerTickCounter++

	case s.Voltage == 0:
		if s.ZeroCrossDown {
			s.voltageZeroCrossTickCount = s.powerTickCounter
		}
		if s.Current > 0 {
			// Inductive tail: replay the recorded voltage and
			// subtract the returned energy.
			idx := s.powerTickCounter - s.voltageZeroCrossTickCount
			if idx >= 0 && idx < VoltageBufferSize {
				replayed := s.voltageBuffer[idx]
				s.pSum -= (int64(replayed) * int64(s.Current)) >> 16
			}
			s.powerTickCounter++
		}
	}

	// Shunt current ended: the conduction interval is complete, publish
	// the average power for the half-period.
	if s.prevCurrent > 0 && s.Current == 0 {
		if s.PeriodInTicks > 0 {
			avg := fix16.Fix16(s.pSum / int64(s.PeriodInTicks))
			s.Power = fix16.Mul(avg, s.powerMaxInv)
		}
		s.pSum = 0
		s.powerTickCounter = 0
	}
}

// speedTick estimates speed from back-EMF: the equivalent resistance
// V/I - R - L*(dI/dt)/I is proportional to mechanical speed in a
// universal motor. Samples from the early half-wave are discarded: they
// carry switching noise and current left over from the previous
// half-period.
func (s *Sensors) speedTick() {
	if s.InTriacOn {
		s.triacOnTicks++
	} else {
		s.triacOnTicks = 0
	}

	if s.triacOnTicks > 3 &&
		s.Voltage > 0 && s.Current > 0 &&
		s.PeriodInTicks > 0 && s.PhaseCounter >= s.PeriodInTicks/2 {

		diDt := fix16.MulInt(s.Current-s.prevCurrent, TickFrequency)
		rEkv := fix16.Div(s.Voltage, s.Current) -
			s.motorResistance -
			fix16.Div(fix16.Mul(s.motorInductance, diDt), s.Current)

		s.median.Add(fix16.Div(rEkv, s.rekvToSpeedFactor))
	}

	if s.ZeroCrossDown {
		s.Speed = s.median.Result()
		s.median.Reset()
	}
}
