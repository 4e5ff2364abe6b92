package telemetry

// FakePublisher records published telemetry for test assertions.
type FakePublisher struct {
	// Statuses contains all status snapshots that were published.
	Statuses []Status

	// Events contains all calibration events that were published.
	Events []Event

	// PublishError, if set, will be returned by both publish methods.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool
}

var _ Publisher = (*FakePublisher)(nil)

// NewFakePublisher creates a FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishStatus records the snapshot.
func (f *FakePublisher) PublishStatus(s Status) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Statuses = append(f.Statuses, s)
	return nil
}

// PublishEvent records the event.
func (f *FakePublisher) PublishEvent(e Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Events = append(f.Events, e)
	return nil
}

// Close marks the publisher closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}
