//go:build linux

package gate

import (
	"fmt"
	"log"

	"github.com/warthog618/go-gpiocdev"
)

// RealPin drives an actual GPIO line through the Linux GPIO character
// device.
type RealPin struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

var _ Pin = (*RealPin)(nil)

// NewRealPin requests the gate line as an output, initially low (gate
// released).
func NewRealPin(offset int) (*RealPin, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request gate pin %d: %w", offset, err)
	}

	return &RealPin{chip: chip, line: line}, nil
}

// Set drives or releases the gate. Hardware errors are logged, not
// surfaced: the rearm on the next zero crossing re-establishes a known
// state.
func (p *RealPin) Set(on bool) {
	v := 0
	if on {
		v = 1
	}
	if err := p.line.SetValue(v); err != nil {
		log.Printf("gate: set value: %v", err)
	}
}

// Close releases the gate and the GPIO resources.
func (p *RealPin) Close() error {
	var errs []error

	if p.line != nil {
		if err := p.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("release gate: %w", err))
		}
		if err := p.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
