// Package control implements the dual PI speed regulator: a
// speed-tracking loop and a power-limit loop, combined by a min
// selector with bumpless handover.
package control

import (
	"github.com/itohio/gomsr/pkg/eeprom"
	"github.com/itohio/gomsr/pkg/fix16"
	"github.com/itohio/gomsr/pkg/sensors"
)

// Controller runs at the tick rate. The integral gain is a time
// constant in seconds: each tick integrates err / (pid_i * F_TICK), so
// the configured pid_i keeps its meaning regardless of the call rate.
type Controller struct {
	// Inputs, written by the orchestrator before each Tick.
	InKnob  fix16.Fix16
	InSpeed fix16.Fix16
	InPower fix16.Fix16

	// OutPower is the commanded triac duty in [0, 1].
	OutPower fix16.Fix16

	// PowerLimit is true while the power loop overrides the speed loop.
	PowerLimit bool

	// Cached configuration.
	deadZoneWidth fix16.Fix16
	knobNormCoeff fix16.Fix16
	outMin        fix16.Fix16
	outMax        fix16.Fix16
	pidP          fix16.Fix16
	pidITicks     int

	// Integrator accumulators carry 16 extra fractional bits: at the
	// tick rate a single increment is far below one Q16.16 LSB and
	// would otherwise truncate away.
	speedIntAcc int64
	powerIntAcc int64
}

// Configure loads gains and limits from persistent storage and
// precomputes the clamp bounds. Never fails.
func (c *Controller) Configure(store eeprom.Store) {
	deadZone := store.ReadFloat(eeprom.AddrDeadZoneWidth, eeprom.DefaultDeadZoneWidth)
	pidP := store.ReadFloat(eeprom.AddrPIDP, eeprom.DefaultPIDP)
	pidI := store.ReadFloat(eeprom.AddrPIDI, eeprom.DefaultPIDI)
	rpmMax := store.ReadFloat(eeprom.AddrRPMMax, eeprom.DefaultRPMMax)
	rpmMaxLimit := store.ReadFloat(eeprom.AddrRPMMaxLimit, eeprom.DefaultRPMMaxLimit)
	rpmMinLimit := store.ReadFloat(eeprom.AddrRPMMinLimit, eeprom.DefaultRPMMinLimit)

	// User-visible speed limits are direct RPM values; the loop works
	// in fractions of the mechanical maximum.
	outMin := float64(rpmMinLimit) / float64(rpmMax)
	outMax := float64(rpmMaxLimit) / float64(rpmMax)

	c.deadZoneWidth = fix16.FromFloat(float64(deadZone))
	c.outMin = fix16.FromFloat(outMin)
	c.outMax = fix16.FromFloat(outMax)
	c.knobNormCoeff = fix16.FromFloat((outMax - outMin) / (1.0 - float64(deadZone)))
	c.pidP = fix16.FromFloat(float64(pidP))

	c.pidITicks = int(float64(pidI)*sensors.TickFrequency + 0.5)
	if c.pidITicks < 1 {
		c.pidITicks = 1
	}
}

// Tick runs one regulator step.
func (c *Controller) Tick() {
	// Deadband and knob normalisation. Inside the deadband the motor
	// must actually stop, so the minimum-RPM clamp does not apply
	// there.
	knobNorm := fix16.Fix16(0)
	lo := fix16.Fix16(0)
	if c.InKnob >= c.deadZoneWidth {
		knobNorm = fix16.Mul(c.InKnob-c.deadZoneWidth, c.knobNormCoeff) + c.outMin
		lo = c.outMin
	}

	// Speed PI. The output is recomputed every tick, but the integrator
	// only accumulates while the speed loop is in charge.
	errSpeed := knobNorm - c.InSpeed
	if !c.PowerLimit {
		c.speedIntAcc = clampAcc(
			c.speedIntAcc+(int64(errSpeed)<<16)/int64(c.pidITicks), lo, c.outMax)
	}
	uSpeed := fix16.Clamp(fix16.Mul(c.pidP, errSpeed)+c.SpeedIntegral(), lo, c.outMax)

	// Power PI, tracking the 100% power target.
	errPower := fix16.One - c.InPower
	c.powerIntAcc = clampAcc(
		c.powerIntAcc+(int64(errPower)<<16)/int64(c.pidITicks), 0, fix16.One)
	uPower := fix16.Clamp(fix16.Mul(c.pidP, errPower)+c.PowerIntegral(), 0, fix16.One)

	// Min selector. When the speed loop takes over, back-calculate its
	// integrator so the next tick reproduces the same output with no
	// discontinuity.
	if uSpeed <= uPower {
		back := fix16.Clamp(uSpeed-fix16.Mul(c.pidP, errSpeed), lo, c.outMax)
		c.speedIntAcc = int64(back) << 16
		c.PowerLimit = false
		c.OutPower = uSpeed
	} else {
		c.PowerLimit = true
		c.OutPower = uPower
	}
}

func clampAcc(acc int64, lo, hi fix16.Fix16) int64 {
	if acc < int64(lo)<<16 {
		return int64(lo) << 16
	}
	if acc > int64(hi)<<16 {
		return int64(hi) << 16
	}
	return acc
}

// SpeedIntegral exposes the speed integrator for invariant tests.
func (c *Controller) SpeedIntegral() fix16.Fix16 {
	return fix16.Fix16(c.speedIntAcc >> 16)
}

// PowerIntegral exposes the power integrator for invariant tests.
func (c *Controller) PowerIntegral() fix16.Fix16 {
	return fix16.Fix16(c.powerIntAcc >> 16)
}

// Bounds returns the output clamp bounds derived from the RPM limits.
func (c *Controller) Bounds() (lo, hi fix16.Fix16) {
	return c.outMin, c.outMax
}
