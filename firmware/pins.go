//go:build tinygo

package main

import "machine"

const (
	// ADC configuration. machine.ADC.Get returns left-justified 16-bit
	// values; the pipeline works on the native 12 bits.
	ADC_REFERENCE_MV = 3300
	ADC_RESOLUTION   = 12

	// Triac gate output.
	PIN_GATE = machine.D7

	// ADC inputs, one per sampled channel.
	PIN_ADC_VOLTAGE = machine.A0 // mains voltage after the 201:1 divider
	PIN_ADC_CURRENT = machine.A1 // shunt amplifier output
	PIN_ADC_KNOB    = machine.A2 // speed potentiometer
	PIN_ADC_VREFIN  = machine.A3 // 1.2 V reference sense
)
