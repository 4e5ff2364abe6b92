//go:build !linux

package gate

import "errors"

// RealPin is not available on non-Linux platforms.
type RealPin struct{}

// NewRealPin returns an error on non-Linux platforms.
func NewRealPin(offset int) (*RealPin, error) {
	return nil, errors.New("gate: not supported on this platform (requires Linux)")
}

// Set is a no-op on non-Linux platforms.
func (p *RealPin) Set(on bool) {}

// Close is a no-op on non-Linux platforms.
func (p *RealPin) Close() error {
	return nil
}
