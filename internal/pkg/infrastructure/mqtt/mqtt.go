package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/config"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/persistence"
)

//IngestFunc handles the raw payload of a message on the readings topic
type IngestFunc func(payload []byte) error

//ControlFunc handles the raw payload of a command sent to a single device
type ControlFunc func(device string, payload []byte) error

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

//Bridge connects the engine to an MQTT broker. It subscribes to sensor readings
//and device commands, and publishes retained actuator states.
type Bridge struct {
	cfg     config.MQTT
	client  mqtt.Client
	pub     publisher
	ingest  IngestFunc
	control ControlFunc
	log     logging.Logger
}

func NewBridge(cfg config.MQTT, ingest IngestFunc, control ControlFunc, log logging.Logger) *Bridge {
	b := &Bridge{
		cfg:     cfg,
		ingest:  ingest,
		control: control,
		log:     log,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.ClientID, uuid.New().String()[:8]))
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("lost connection to mqtt broker: %s", err.Error())
	})

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Infof("connected to mqtt broker %s", cfg.Broker)
		if err := b.subscribe(); err != nil {
			log.Errorf("failed to subscribe: %s", err.Error())
		}
	})

	b.client = mqtt.NewClient(opts)
	b.pub = b.client

	return b
}

//Connect tries to reach the broker a few times with exponential backoff
func (b *Bridge) Connect() error {
	const maxRetries = 5
	var err error

	for i := 0; i < maxRetries; i++ {
		token := b.client.Connect()
		if token.WaitTimeout(5*time.Second) && token.Error() == nil {
			return nil
		}

		err = token.Error()
		backoff := time.Duration(1<<uint(i)) * time.Second
		b.log.Warnf("mqtt connect attempt %d/%d failed: %v, retrying in %s", i+1, maxRetries, err, backoff)
		time.Sleep(backoff)
	}

	return fmt.Errorf("failed to connect to mqtt broker after %d attempts: %v", maxRetries, err)
}

//Disconnect waits at most 250ms for pending work
func (b *Bridge) Disconnect() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}

func (b *Bridge) commandTopic() string {
	return b.cfg.ActuatorTopic + "/+/set"
}

func (b *Bridge) subscribe() error {
	handlers := map[string]mqtt.MessageHandler{
		b.cfg.ReadingsTopic: b.handleReading,
		b.commandTopic():    b.handleCommand,
	}

	for topic, handler := range handlers {
		if token := b.client.Subscribe(topic, b.cfg.QoS, handler); token.Wait() && token.Error() != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
		}
		b.log.Infof("subscribed to mqtt topic %s", topic)
	}

	return nil
}

func (b *Bridge) handleReading(_ mqtt.Client, msg mqtt.Message) {
	err := b.ingest(msg.Payload())
	if errors.Is(err, persistence.ErrNotDurable) {
		b.log.Warnf("reading from mqtt topic %s accepted: %s", msg.Topic(), err.Error())
	} else if err != nil {
		b.log.Warnf("rejected reading from mqtt topic %s: %s", msg.Topic(), err.Error())
	}
}

func (b *Bridge) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	// <actuator_topic>/<device>/set
	rest := strings.TrimPrefix(msg.Topic(), b.cfg.ActuatorTopic+"/")
	device := strings.TrimSuffix(rest, "/set")

	if device == rest || strings.Contains(device, "/") {
		b.log.Warnf("ignoring command on unexpected topic %s", msg.Topic())
		return
	}

	if err := b.control(device, msg.Payload()); err != nil {
		b.log.Warnf("rejected command for %s: %s", device, err.Error())
	}
}

func (b *Bridge) ReadingAccepted(domain.Reading, persistence.Durability) {}

func (b *Bridge) AlertRaised(domain.Alert) {}

//ActuatorChanged publishes the new state of a device as a retained message
func (b *Bridge) ActuatorChanged(s domain.ActuatorSnapshot, _ domain.ActuatorEvent) {
	payload, err := json.Marshal(s)
	if err != nil {
		b.log.Errorf("failed to marshal state of %s: %s", s.Device, err.Error())
		return
	}

	topic := fmt.Sprintf("%s/%s", b.cfg.ActuatorTopic, s.Device)
	token := b.pub.Publish(topic, b.cfg.QoS, true, payload)

	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			b.log.Errorf("failed to publish state of %s: %s", s.Device, token.Error().Error())
		}
	}()
}
