//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"

	"github.com/itohio/gomsr/pkg/core"
	"github.com/itohio/gomsr/pkg/eeprom"
	"github.com/itohio/gomsr/pkg/sensors"
)

var (
	adcVoltage machine.ADC
	adcCurrent machine.ADC
	adcKnob    machine.ADC
	adcVrefin  machine.ADC

	// One tick's worth of channel-interleaved samples, the same layout
	// the host-side DMA ring uses.
	ring [sensors.FrameSamples]uint16
)

// gatePin adapts the triac gate line to the core's gate.Pin.
type gatePin struct {
	pin machine.Pin
}

func (g gatePin) Set(on bool) {
	g.pin.Set(on)
}

func (g gatePin) Close() error {
	g.pin.Low()
	return nil
}

func main() {
	PIN_GATE.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_GATE.Low()

	PIN_ADC_VOLTAGE.Configure(machine.PinConfig{Mode: machine.PinInput})
	PIN_ADC_CURRENT.Configure(machine.PinConfig{Mode: machine.PinInput})
	PIN_ADC_KNOB.Configure(machine.PinConfig{Mode: machine.PinInput})
	PIN_ADC_VREFIN.Configure(machine.PinConfig{Mode: machine.PinInput})

	adcVoltage = machine.ADC{Pin: PIN_ADC_VOLTAGE}
	adcCurrent = machine.ADC{Pin: PIN_ADC_CURRENT}
	adcKnob = machine.ADC{Pin: PIN_ADC_KNOB}
	adcVrefin = machine.ADC{Pin: PIN_ADC_VREFIN}

	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}
	adcVoltage.Configure(adcConfig)
	adcCurrent.Configure(adcConfig)
	adcKnob.Configure(adcConfig)
	adcVrefin.Configure(adcConfig)

	// No flash-backed store on this board yet; the core runs on
	// compiled defaults until a calibration run writes through the
	// in-memory store.
	store := eeprom.NewMemStore()
	c := core.New(gatePin{pin: PIN_GATE}, store)

	// The tick rate is governed by conversion time: 32 conversions per
	// tick at the configured sampling settings land close to the
	// nominal 17857 Hz, the same way the original ADC-driven design
	// derived its tick from conversion completion.
	for {
		for k := 0; k < sensors.Oversample; k++ {
			base := k * sensors.Channels
			ring[base] = adcVoltage.Get() >> 4
			ring[base+1] = adcCurrent.Get() >> 4
			ring[base+2] = adcKnob.Get() >> 4
			ring[base+3] = adcVrefin.Get() >> 4
		}
		c.Tick(ring[:], 0)
	}
}
