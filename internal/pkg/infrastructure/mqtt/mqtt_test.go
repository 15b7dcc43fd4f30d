package mqtt

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/config"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/logging"
)

func testConfig() config.MQTT {
	return config.MQTT{
		Broker:        "tcp://localhost:1883",
		ClientID:      "greenhouse-test",
		ReadingsTopic: "greenhouse/readings",
		ActuatorTopic: "greenhouse/actuators",
		QoS:           1,
	}
}

func TestThatReadingPayloadsArePassedToTheIngestFunc(t *testing.T) {
	var received []byte
	ingest := func(payload []byte) error {
		received = payload
		return nil
	}

	b := NewBridge(testConfig(), ingest, nil, logging.NewLogger())
	b.handleReading(nil, &messageMock{topic: "greenhouse/readings", payload: []byte(`{"sensor_id":"s1"}`)})

	if string(received) != `{"sensor_id":"s1"}` {
		t.Errorf("Unexpected payload %s", string(received))
	}
}

func TestThatRejectedReadingsDoNotPanic(t *testing.T) {
	ingest := func([]byte) error { return errors.New("bad reading") }

	b := NewBridge(testConfig(), ingest, nil, logging.NewLogger())
	b.handleReading(nil, &messageMock{topic: "greenhouse/readings", payload: []byte(`{}`)})
}

func TestThatCommandsAreRoutedToTheirDevice(t *testing.T) {
	var device, action string
	control := func(d string, payload []byte) error {
		device, action = d, string(payload)
		return nil
	}

	b := NewBridge(testConfig(), nil, control, logging.NewLogger())
	b.handleCommand(nil, &messageMock{topic: "greenhouse/actuators/heater/set", payload: []byte(`{"action":"on"}`)})

	if device != "heater" || action != `{"action":"on"}` {
		t.Errorf("Unexpected command %s %s", device, action)
	}
}

func TestThatCommandsOnUnexpectedTopicsAreIgnored(t *testing.T) {
	called := false
	control := func(string, []byte) error {
		called = true
		return nil
	}

	b := NewBridge(testConfig(), nil, control, logging.NewLogger())
	b.handleCommand(nil, &messageMock{topic: "greenhouse/actuators/heater/extra/set"})

	if called {
		t.Error("Control should not be called for a nested topic")
	}
}

func TestThatActuatorChangesArePublishedAsRetainedMessages(t *testing.T) {
	b := NewBridge(testConfig(), nil, nil, logging.NewLogger())
	pub := &publisherMock{}
	b.pub = pub

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b.ActuatorChanged(domain.ActuatorSnapshot{Device: domain.Fan, Mode: domain.ModeAuto, State: domain.StateOn, LastChange: &now}, domain.ActuatorEvent{})

	pub.mu.Lock()
	defer pub.mu.Unlock()

	if pub.topic != "greenhouse/actuators/fan" || !pub.retained {
		t.Errorf("Unexpected publication to %s (retained: %v)", pub.topic, pub.retained)
	}

	if !strings.Contains(string(pub.payload), `"state":"on"`) || !strings.Contains(string(pub.payload), `"last_change":"2024-05-01T12:00:00.000Z"`) {
		t.Errorf("Unexpected payload %s", string(pub.payload))
	}
}

type publisherMock struct {
	mu       sync.Mutex
	topic    string
	retained bool
	payload  []byte
}

func (p *publisherMock) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.topic = topic
	p.retained = retained
	p.payload = payload.([]byte)

	return &tokenMock{}
}

type tokenMock struct{}

func (t *tokenMock) Wait() bool                     { return true }
func (t *tokenMock) WaitTimeout(time.Duration) bool { return true }
func (t *tokenMock) Error() error                   { return nil }
func (t *tokenMock) Done() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

type messageMock struct {
	topic   string
	payload []byte
}

func (m *messageMock) Duplicate() bool   { return false }
func (m *messageMock) Qos() byte         { return 1 }
func (m *messageMock) Retained() bool    { return false }
func (m *messageMock) Topic() string     { return m.topic }
func (m *messageMock) MessageID() uint16 { return 1 }
func (m *messageMock) Payload() []byte   { return m.payload }
func (m *messageMock) Ack()              {}
