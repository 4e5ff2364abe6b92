// Package core owns the whole regulator pipeline and sequences it once
// per tick. The tick source (timer interrupt, device frame stream or a
// test loop) calls Tick with the ADC window for that tick; nothing else
// observes the interior state between ticks.
package core

import (
	"github.com/itohio/gomsr/pkg/calibrate"
	"github.com/itohio/gomsr/pkg/control"
	"github.com/itohio/gomsr/pkg/eeprom"
	"github.com/itohio/gomsr/pkg/gate"
	"github.com/itohio/gomsr/pkg/sensors"
	"github.com/itohio/gomsr/pkg/triac"
)

// Core is the single owned value holding sensors, controller, triac
// driver and calibrator. Single execution context, no locking: all
// state changes are published at tick boundaries.
type Core struct {
	Sensors    sensors.Sensors
	Controller control.Controller
	Triac      *triac.Driver

	calibrator  *calibrate.SpeedScale
	calibrating bool
}

// New builds the pipeline around the given gate pin and configures it
// from persistent storage.
func New(pin gate.Pin, store eeprom.Store) *Core {
	c := &Core{}
	c.Triac = triac.New(pin)
	c.Sensors.Configure(store)
	c.Controller.Configure(store)
	c.calibrator = calibrate.New(&c.Sensors, c.Triac, store)
	return c
}

// StartCalibration switches the pipeline into calibration mode: the
// calibrator drives the triac directly and the regulator loop is
// bypassed until the cycle completes.
func (c *Core) StartCalibration() {
	c.calibrating = true
}

// Calibrating reports whether a calibration cycle is in progress.
func (c *Core) Calibrating() bool {
	return c.calibrating
}

// Tick consumes one tick's ADC window from the DMA ring and runs the
// pipeline in its binding order: sensors first, then the controller on
// the freshest readings, then the triac on the newest setpoint. The
// triac conduction state produced this tick feeds the sensors' speed
// estimation on the next tick. Returns true on the tick a calibration cycle
// completes.
func (c *Core) Tick(ring []uint16, offset int) bool {
	c.Sensors.LoadRaw(ring, offset)
	c.Sensors.Tick()

	done := false
	if c.calibrating {
		if c.calibrator.Tick() {
			c.calibrating = false
			done = true
		}
	} else {
		c.Triac.Voltage = c.Sensors.Voltage

		c.Controller.InKnob = c.Sensors.Knob
		c.Controller.InSpeed = c.Sensors.Speed
		c.Controller.InPower = c.Sensors.Power
		c.Controller.Tick()

		c.Triac.Setpoint = c.Controller.OutPower
		c.Triac.Tick()
	}

	c.Sensors.InTriacOn = c.Triac.Conducting()
	return done
}

// Gate exposes the current gate level for telemetry and tests.
func (c *Core) Gate() bool {
	return c.Triac.GateOn
}
