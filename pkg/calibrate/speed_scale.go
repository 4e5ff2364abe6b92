// Package calibrate measures the speed scaling factor: the motor is run
// to its maximum unloaded speed and the equivalent resistance observed
// there becomes the factor that maps r_ekv to a normalised speed of 1.0.
package calibrate

import (
	"log"

	"github.com/itohio/gomsr/pkg/eeprom"
	"github.com/itohio/gomsr/pkg/fix16"
	"github.com/itohio/gomsr/pkg/sensors"
	"github.com/itohio/gomsr/pkg/triac"
)

const (
	motorStartupTicks = 3 * sensors.TickFrequency
	motorMeasureTicks = sensors.TickFrequency / 5
	motorStopTicks    = 1 * sensors.TickFrequency
)

type state int

const (
	stateStart state = iota
	stateMeasure
	stateStop
)

// SpeedScale drives the triac directly while active: the regulator loop
// is bypassed for the duration of the calibration.
type SpeedScale struct {
	sensors *sensors.Sensors
	driver  *triac.Driver
	store   eeprom.Store

	state    state
	ticksCnt int

	// Previous integer speed reading, for the stability check.
	prevSpeed int
}

// New creates a calibrator bound to the shared sensors and triac driver.
func New(sns *sensors.Sensors, drv *triac.Driver, store eeprom.Store) *SpeedScale {
	return &SpeedScale{sensors: sns, driver: drv, store: store}
}

// Tick advances the calibration by one tick and reports true once the
// whole cycle has completed.
func (c *SpeedScale) Tick() bool {
	switch c.state {

	// Gently run the motor to max speed over 3 seconds.
	case stateStart:
		// Measure raw equivalent resistance: with factor 1.0 the speed
		// output IS r_ekv.
		c.sensors.SetRekvToSpeedFactor(fix16.One)
		c.prevSpeed = 0

		setpoint := fix16.Fix16(int64(fix16.One) * int64(c.ticksCnt) / motorStartupTicks)
		c.driveTriac(setpoint)

		c.ticksCnt++
		if c.ticksCnt >= motorStartupTicks {
			c.setState(stateMeasure)
		}

	// Hold max speed and wait until the reading is stable: two
	// consecutive 0.2 s windows within 3%.
	case stateMeasure:
		c.driveTriac(fix16.One)

		c.ticksCnt++
		if c.ticksCnt >= motorMeasureTicks {
			// Integer part only; r_ekv is in the hundreds for small
			// motors, larger error margins make no sense here.
			speed := c.sensors.Speed.ToInt()

			delta := speed - c.prevSpeed
			if delta < 0 {
				delta = -delta
			}

			if speed > 0 && delta*100/speed < 3 {
				// Max speed reached: persist the factor and install it.
				if err := c.store.WriteFloat(
					eeprom.AddrRekvToSpeedFactor,
					float32(c.sensors.Speed.ToFloat())); err != nil {
					log.Printf("calibrate: persist speed factor: %v", err)
				}
				c.sensors.SetRekvToSpeedFactor(c.sensors.Speed)
				c.setState(stateStop)
			} else {
				// Not stable yet, measure again.
				c.prevSpeed = speed
				c.setState(stateMeasure)
			}
		}

	// Motor off, wait 1 second, report done.
	case stateStop:
		c.driveTriac(0)

		c.ticksCnt++
		if c.ticksCnt > motorStopTicks {
			c.setState(stateStart)
			return true
		}
	}

	return false
}

func (c *SpeedScale) driveTriac(setpoint fix16.Fix16) {
	c.driver.Voltage = c.sensors.Voltage
	c.driver.Setpoint = setpoint
	c.driver.Tick()
}

func (c *SpeedScale) setState(s state) {
	c.state = s
	c.ticksCnt = 0
}
