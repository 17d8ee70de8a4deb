package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTOptions configures the MQTT sink.
type MQTTOptions struct {
	Broker      string
	ClientID    string // generated when empty
	TopicPrefix string
	QoS         byte
	Retain      bool
	Timeout     time.Duration
	Logger      io.Writer
}

// publisher is the part of mqtt.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes each reading as JSON to <prefix>/<device>/state.
type MQTT struct {
	client  publisher
	opts    MQTTOptions
	timeout time.Duration
}

// ClientID returns "rdserial-" and a random suffix.
func ClientID() string {
	return "rdserial-" + uuid.NewString()[:8]
}

// NewMQTT connects to the broker.
func NewMQTT(o MQTTOptions) (*MQTT, error) {
	if o.Broker == "" {
		return nil, errors.New("publish: mqtt broker is required")
	}
	if o.ClientID == "" {
		o.ClientID = ClientID()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		if o.Logger != nil {
			fmt.Fprintf(o.Logger, "WARNING: mqtt connection lost: %v\n", err)
		}
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeoutOrDefault(o.Timeout)) {
		client.Disconnect(0)
		return nil, fmt.Errorf("publish: mqtt connect to %s timed out", o.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("publish: mqtt connect to %s: %w", o.Broker, err)
	}
	if o.Logger != nil {
		fmt.Fprintf(o.Logger, "INFO: mqtt connected to %s as %s\n", o.Broker, o.ClientID)
	}
	return newMQTT(client, o), nil
}

func newMQTT(client publisher, o MQTTOptions) *MQTT {
	return &MQTT{client: client, opts: o, timeout: timeoutOrDefault(o.Timeout)}
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}

// Topic returns the state topic for device.
func (m *MQTT) Topic(device string) string {
	return fmt.Sprintf("%s/%s/state", m.opts.TopicPrefix, device)
}

func (m *MQTT) Publish(r Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("publish: encode reading: %w", err)
	}
	token := m.client.Publish(m.Topic(r.Device), m.opts.QoS, m.opts.Retain, payload)
	if !token.WaitTimeout(m.timeout) {
		return errors.New("publish: mqtt publish timeout")
	}
	return token.Error()
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
