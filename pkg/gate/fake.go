package gate

// FakePin is a test double that records gate transitions.
type FakePin struct {
	// State is the current gate level.
	State bool

	// Rises counts LOW->HIGH transitions.
	Rises int

	// Falls counts HIGH->LOW transitions.
	Falls int

	// Closed tracks if Close was called.
	Closed bool
}

var _ Pin = (*FakePin)(nil)

// NewFakePin creates a FakePin with the gate released.
func NewFakePin() *FakePin {
	return &FakePin{}
}

// Set records the new gate level and counts edges.
func (p *FakePin) Set(on bool) {
	if on && !p.State {
		p.Rises++
	}
	if !on && p.State {
		p.Falls++
	}
	p.State = on
}

// Close marks the pin closed and releases the gate.
func (p *FakePin) Close() error {
	p.State = false
	p.Closed = true
	return nil
}
