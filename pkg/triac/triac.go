// Package triac schedules the gate pulse that implements phase-angle
// control: one firing per rectified half-wave, delayed from the zero
// crossing according to the linearised setpoint.
package triac

import (
	"github.com/itohio/gomsr/pkg/fix16"
	"github.com/itohio/gomsr/pkg/gate"
)

// MinIgnitionVoltage is the minimal instantaneous mains voltage for
// guaranteed triac latching, in volts.
const MinIgnitionVoltage = 25

var minIgnition = fix16.FromInt(MinIgnitionVoltage)

// Driver is the per-half-wave firing state machine. Setpoint and
// Voltage are written by the orchestrator before each Tick.
type Driver struct {
	// Setpoint is the commanded duty in [0, 1].
	Setpoint fix16.Fix16
	// Voltage is the current rectified mains voltage from the sensors.
	Voltage fix16.Fix16

	// GateOn is the gate level produced by the last Tick. The sensors
	// are fed Conducting(), not this one-tick pulse.
	GateOn bool

	pin gate.Pin

	phaseCounter   int
	periodInTicks  int
	triacOpenDone  bool
	triacCloseDone bool

	// Ticks after the zero cross at which the voltage first exceeded
	// MinIgnitionVoltage. Firing earlier would not latch the triac.
	// Measured on the positive half-wave, reused on the negative one.
	safeIgnitionThreshold int

	prevVoltage fix16.Fix16

	onceZeroCrossed   bool
	oncePeriodCounted bool
}

// New creates a driver writing to the given gate pin. The gate starts
// released.
func New(pin gate.Pin) *Driver {
	d := &Driver{pin: pin}
	d.setGate(false)
	return d
}

// PeriodInTicks returns the driver's view of the half-period length.
func (d *Driver) PeriodInTicks() int {
	return d.periodInTicks
}

// PhaseCounter returns ticks since the last zero crossing.
func (d *Driver) PhaseCounter() int {
	return d.phaseCounter
}

// Conducting reports whether the triac has been fired in the current
// half-wave. The gate pulse itself is one tick wide; conduction
// continues until the next zero crossing, and that is what the speed
// estimation needs to know.
func (d *Driver) Conducting() bool {
	return d.triacOpenDone
}

// Tick advances the state machine by one tick. Exactly one gate
// assertion interval happens per half-wave, one tick wide, and the gate
// is always deasserted before the next zero crossing.
func (d *Driver) Tick() {
	// Poor man's zero cross check, same predicate as the sensors.
	if (d.prevVoltage == 0 && d.Voltage > 0) ||
		(d.prevVoltage > 0 && d.Voltage == 0) {
		d.rearm()
	}

	if d.Voltage >= minIgnition && d.prevVoltage < minIgnition {
		d.safeIgnitionThreshold = d.phaseCounter
	}

	// Until the half-period length is known only count ticks; the triac
	// must not turn on during the first half-period.
	if !d.oncePeriodCounted {
		d.phaseCounter++
		d.prevVoltage = d.Voltage
		return
	}

	// The gate pulse is one tick wide: opened on the previous tick,
	// released now.
	if d.triacOpenDone && !d.triacCloseDone {
		d.triacCloseDone = true
		d.setGate(false)
	}

	if !d.triacOpenDone && d.phaseCounter >= d.safeIgnitionThreshold {
		// Linearise the setpoint to a phase shift, then mirror it onto
		// the half-wave to get the firing tick.
		normalized := fix16.Sinusize(d.Setpoint)
		fireAt := int((int64(fix16.One-normalized) * int64(d.periodInTicks)) >> 16)

		if d.phaseCounter >= fireAt {
			d.triacOpenDone = true
			d.setGate(true)
		}
	}

	d.phaseCounter++
	d.prevVoltage = d.Voltage
}

// rearm resets the per-half-wave state on a zero crossing. The gate is
// unconditionally released so a crossing right after ignition never
// leaves it asserted into the next half-wave.
func (d *Driver) rearm() {
	if d.onceZeroCrossed {
		d.oncePeriodCounted = true
	}
	d.onceZeroCrossed = true
	if d.oncePeriodCounted {
		d.periodInTicks = d.phaseCounter
	}

	d.phaseCounter = 0
	d.triacOpenDone = false
	d.triacCloseDone = false
	d.setGate(false)
}

func (d *Driver) setGate(on bool) {
	d.GateOn = on
	if d.pin != nil {
		d.pin.Set(on)
	}
}
