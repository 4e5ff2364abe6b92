package telemetry

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
}

var _ Publisher = (*RealPublisher)(nil)

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker string) (*RealPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("gomsr").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealPublisher{client: client}, nil
}

// PublishStatus sends a status snapshot, QoS 0: a dropped snapshot is
// replaced by the next one anyway.
func (p *RealPublisher) PublishStatus(s Status) error {
	payload, err := FormatStatus(s)
	if err != nil {
		return fmt.Errorf("format status: %w", err)
	}

	token := p.client.Publish(Topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	return nil
}

// PublishEvent sends a calibration event, QoS 1: these are rare and
// worth delivering.
func (p *RealPublisher) PublishEvent(e Event) error {
	payload, err := FormatEvent(e)
	if err != nil {
		return fmt.Errorf("format event: %w", err)
	}

	token := p.client.Publish(TopicEvents, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish event timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
