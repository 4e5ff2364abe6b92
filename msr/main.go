// Command msr runs the motor speed regulator core against a frame
// source: the sampling MCU on a serial port, or the built-in
// mains+motor simulation. Mostly useful for bench bring-up and tuning;
// on the device itself the same core runs from the firmware entry
// point.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itohio/gomsr/pkg/config"
	"github.com/itohio/gomsr/pkg/core"
	"github.com/itohio/gomsr/pkg/device"
	"github.com/itohio/gomsr/pkg/eeprom"
	"github.com/itohio/gomsr/pkg/gate"
	"github.com/itohio/gomsr/pkg/sensors"
	"github.com/itohio/gomsr/pkg/telemetry"
)

func main() {
	var (
		portFlag      = flag.String("p", "", "Serial port override (e.g. /dev/ttyACM0)")
		configFlag    = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag      = flag.Bool("mock", false, "Use the simulated plant instead of a serial port")
		knobFlag      = flag.Float64("knob", -1, "Override the simulated knob position [0, 1]")
		calibrateFlag = flag.Bool("calibrate", false, "Run the speed-scale calibration and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *knobFlag >= 0 {
		cfg.Mock.Knob = float32(*knobFlag)
	}

	store, err := eeprom.OpenFile(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to open eeprom store: %v", err)
	}

	// Pick the frame source and the gate sink. In mock mode the gate
	// loops back into the simulated plant.
	var (
		dev device.Device
		pin gate.Pin
	)
	if *mockFlag {
		mock := device.NewMock(&cfg.Mock)
		dev = mock
		pin = mock
	} else {
		dev = device.NewSerial(cfg.Serial.Port, cfg.Serial.BaudRate, 0)
		realPin, err := gate.NewRealPin(cfg.Gate.Pin)
		if err != nil {
			log.Fatalf("Failed to open gate pin: %v", err)
		}
		pin = realPin
		defer realPin.Close()
	}

	var pub telemetry.Publisher
	if cfg.Telemetry.Broker != "" {
		pub, err = telemetry.NewRealPublisher(cfg.Telemetry.Broker)
		if err != nil {
			log.Fatalf("Failed to connect telemetry broker: %v", err)
		}
		defer pub.Close()
	}

	c := core.New(pin, store)
	if *calibrateFlag {
		log.Printf("Starting speed-scale calibration")
		c.StartCalibration()
		publishEvent(pub, telemetry.Event{
			Timestamp: time.Now(),
			Event:     "CALIBRATION_START",
		})
	}

	if err := dev.Connect(); err != nil {
		log.Fatalf("Failed to connect device: %v", err)
	}

	// Close the device on SIGINT/SIGTERM; that ends the frame stream
	// and lets the loop drain out.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down", sig)
		dev.Close()
	}()

	run(c, dev, pub, store, cfg.Telemetry.Interval, *calibrateFlag)
}

// run consumes tick frames until the device closes. Telemetry is
// published off the tick path: a stalled broker drops snapshots
// instead of stalling the regulator.
func run(c *core.Core, dev device.Device, pub telemetry.Publisher, store eeprom.Store, interval time.Duration, exitAfterCalibration bool) {
	statusCh := make(chan telemetry.Status, 8)
	defer close(statusCh)
	go func() {
		for s := range statusCh {
			if pub == nil {
				continue
			}
			if err := pub.PublishStatus(s); err != nil {
				log.Printf("Telemetry publish failed: %v", err)
			}
		}
	}()

	intervalTicks := int(interval.Seconds() * sensors.TickFrequency)
	if intervalTicks < 1 {
		intervalTicks = sensors.TickFrequency
	}

	ticks := 0
	for frame := range dev.Frames() {
		calibrationDone := c.Tick(frame.Samples[:], 0)

		if calibrationDone {
			factor := float64(store.ReadFloat(
				eeprom.AddrRekvToSpeedFactor, eeprom.DefaultRekvToSpeedFactor))
			log.Printf("Calibration complete, speed scale factor %.1f", factor)
			publishEvent(pub, telemetry.Event{
				Timestamp: time.Now(),
				Event:     "CALIBRATION_DONE",
				Factor:    factor,
			})
			if exitAfterCalibration {
				dev.Close()
			}
		}

		ticks++
		if ticks%intervalTicks == 0 {
			s := telemetry.Status{
				Timestamp:   time.Now(),
				Knob:        c.Sensors.Knob.ToFloat(),
				Speed:       c.Sensors.Speed.ToFloat(),
				RPM:         c.Sensors.RPM(),
				Power:       c.Sensors.Power.ToFloat(),
				Setpoint:    c.Controller.OutPower.ToFloat(),
				PowerLimit:  c.Controller.PowerLimit,
				PeriodTicks: c.Sensors.PeriodInTicks,
			}
			select {
			case statusCh <- s:
			default:
				// Broker is behind, drop the snapshot.
			}
		}
	}
}

func publishEvent(pub telemetry.Publisher, e telemetry.Event) {
	if pub == nil {
		return
	}
	if err := pub.PublishEvent(e); err != nil {
		log.Printf("Telemetry event publish failed: %v", err)
	}
}
