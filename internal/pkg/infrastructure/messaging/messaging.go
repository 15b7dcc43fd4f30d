package messaging

import (
	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/clock"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/persistence"
)

//MessagingContext is an interface that allows mocking of messaging.Context parameters
type MessagingContext interface {
	PublishOnTopic(message messaging.TopicMessage) error
}

//AlertRaised is published on the message bus for every alert
type AlertRaised struct {
	Level     string `json:"level"`
	Source    string `json:"source"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (m *AlertRaised) ContentType() string {
	return "application/json"
}

func (m *AlertRaised) TopicName() string {
	return "greenhouse.alert.raised"
}

//ActuatorChanged is published on the message bus for every actuator transition
type ActuatorChanged struct {
	Device    string `json:"device"`
	Action    string `json:"action"`
	Reason    string `json:"reason"`
	Mode      string `json:"mode"`
	State     string `json:"state"`
	Timestamp string `json:"timestamp"`
}

func (m *ActuatorChanged) ContentType() string {
	return "application/json"
}

func (m *ActuatorChanged) TopicName() string {
	return "greenhouse.actuator.changed"
}

//ReadingNotDurable lets downstream consumers know that a reading only exists in memory
type ReadingNotDurable struct {
	SensorID  string  `json:"sensorId"`
	Type      string  `json:"type"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
}

func (m *ReadingNotDurable) ContentType() string {
	return "application/json"
}

func (m *ReadingNotDurable) TopicName() string {
	return "greenhouse.reading.notdurable"
}

//Publisher forwards alerts and actuator transitions to the message bus
type Publisher struct {
	messenger MessagingContext
	log       logging.Logger
}

func NewPublisher(messenger MessagingContext, log logging.Logger) *Publisher {
	return &Publisher{messenger: messenger, log: log}
}

func (p *Publisher) publish(message messaging.TopicMessage) {
	if err := p.messenger.PublishOnTopic(message); err != nil {
		p.log.Errorf("failed to publish on topic %s: %s", message.TopicName(), err.Error())
	}
}

func (p *Publisher) ReadingAccepted(r domain.Reading, durability persistence.Durability) {
	if durability == persistence.Durable {
		return
	}

	p.publish(&ReadingNotDurable{
		SensorID:  r.SensorID,
		Type:      string(r.Type),
		Value:     r.Value,
		Timestamp: clock.Format(r.Timestamp),
	})
}

func (p *Publisher) AlertRaised(a domain.Alert) {
	p.publish(&AlertRaised{
		Level:     string(a.Level),
		Source:    string(a.Source),
		Message:   a.Message,
		Timestamp: clock.Format(a.Timestamp),
	})
}

func (p *Publisher) ActuatorChanged(_ domain.ActuatorSnapshot, e domain.ActuatorEvent) {
	p.publish(&ActuatorChanged{
		Device:    string(e.Device),
		Action:    string(e.Action),
		Reason:    string(e.Reason),
		Mode:      string(e.Mode),
		State:     string(e.State),
		Timestamp: clock.Format(e.Timestamp),
	})
}
