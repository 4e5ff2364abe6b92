// Package telemetry publishes regulator status snapshots over MQTT,
// with abstraction for testing.
package telemetry

import (
	"encoding/json"
	"time"
)

// Topic is the MQTT topic for periodic status snapshots.
const Topic = "tools/regulator/status"

// TopicEvents is the MQTT topic for calibration lifecycle events.
const TopicEvents = "tools/regulator/events"

// Status is one regulator snapshot, taken at tick boundaries.
type Status struct {
	Timestamp   time.Time
	Knob        float64 // smoothed setpoint [0, 1]
	Speed       float64 // normalised speed [0, ~1]
	RPM         int
	Power       float64 // normalised power [0, ~1]
	Setpoint    float64 // commanded triac duty [0, 1]
	PowerLimit  bool
	PeriodTicks int
}

// Event is a calibration lifecycle event.
type Event struct {
	Timestamp time.Time
	Event     string  // "CALIBRATION_START" or "CALIBRATION_DONE"
	Factor    float64 // measured speed scale factor, DONE only
}

// Publisher publishes regulator telemetry.
type Publisher interface {
	// PublishStatus sends a status snapshot. Failures must not crash
	// the regulator loop.
	PublishStatus(s Status) error

	// PublishEvent sends a calibration lifecycle event.
	PublishEvent(e Event) error

	// Close disconnects from the broker.
	Close() error
}

type statusPayload struct {
	Timestamp   string  `json:"timestamp"`
	Knob        float64 `json:"knob"`
	Speed       float64 `json:"speed"`
	RPM         int     `json:"rpm"`
	Power       float64 `json:"power"`
	Setpoint    float64 `json:"setpoint"`
	PowerLimit  bool    `json:"power_limit"`
	PeriodTicks int     `json:"period_ticks"`
}

type eventPayload struct {
	Timestamp string  `json:"timestamp"`
	Event     string  `json:"event"`
	Factor    float64 `json:"factor,omitempty"`
}

// FormatStatus creates the JSON payload for a status snapshot.
func FormatStatus(s Status) ([]byte, error) {
	return json.Marshal(statusPayload{
		Timestamp:   s.Timestamp.UTC().Format(time.RFC3339),
		Knob:        s.Knob,
		Speed:       s.Speed,
		RPM:         s.RPM,
		Power:       s.Power,
		Setpoint:    s.Setpoint,
		PowerLimit:  s.PowerLimit,
		PeriodTicks: s.PeriodTicks,
	})
}

// FormatEvent creates the JSON payload for a calibration event.
func FormatEvent(e Event) ([]byte, error) {
	return json.Marshal(eventPayload{
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		Event:     e.Event,
		Factor:    e.Factor,
	})
}
