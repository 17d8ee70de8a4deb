package publish

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/hootrhino/rdserial"
)

type fakeSource struct {
	samples []rdserial.Sample
}

func (f fakeSource) Samples() []rdserial.Sample { return f.samples }

func (f fakeSource) MarshalJSON() ([]byte, error) {
	return []byte(`{"volts":5.01}`), nil
}

func testReading() Reading {
	src := fakeSource{samples: []rdserial.Sample{
		{Name: "volts", Value: 5.01},
		{Name: "amps", Value: 0.25},
	}}
	return NewReading("dps", time.Unix(1700000000, 0), src)
}

type fakeToken struct {
	err      error
	finished bool
}

func (t *fakeToken) Wait() bool                     { return t.finished }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.finished }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type fakeClient struct {
	token        *fakeToken
	messages     []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func TestReadingJSON(t *testing.T) {
	r := testReading()
	if len(r.ID) != 36 {
		t.Errorf("reading id %q is not a uuid", r.ID)
	}
	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var doc struct {
		ID     string             `json:"id"`
		Device string             `json:"device"`
		Time   time.Time          `json:"time"`
		Data   map[string]float64 `json:"data"`
	}
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if doc.ID != r.ID || doc.Device != "dps" || doc.Data["volts"] != 5.01 || !doc.Time.Equal(r.Time) {
		t.Errorf("unexpected document %s", out)
	}
}

func TestMQTTPublish(t *testing.T) {
	client := &fakeClient{token: &fakeToken{finished: true}}
	sink := newMQTT(client, MQTTOptions{TopicPrefix: "lab", QoS: 1, Retain: true})

	if err := sink.Publish(testReading()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(client.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(client.messages))
	}
	msg := client.messages[0]
	if msg.topic != "lab/dps/state" || msg.qos != 1 || !msg.retain {
		t.Errorf("unexpected message %+v", msg)
	}
	if !strings.Contains(string(msg.payload), `"data":{"volts":5.01}`) {
		t.Errorf("payload = %s", msg.payload)
	}

	if err := sink.Close(); err != nil || !client.disconnected {
		t.Errorf("Close() = %v, disconnected %v", err, client.disconnected)
	}
}

func TestMQTTPublishErrors(t *testing.T) {
	slow := newMQTT(&fakeClient{token: &fakeToken{}}, MQTTOptions{TopicPrefix: "x"})
	if err := slow.Publish(testReading()); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("expected timeout, got %v", err)
	}

	broken := errors.New("not connected")
	failing := newMQTT(&fakeClient{token: &fakeToken{finished: true, err: broken}}, MQTTOptions{TopicPrefix: "x"})
	if err := failing.Publish(testReading()); !errors.Is(err, broken) {
		t.Errorf("expected broker error, got %v", err)
	}
}

func TestNewMQTTRequiresBroker(t *testing.T) {
	if _, err := NewMQTT(MQTTOptions{}); err == nil {
		t.Fatal("expected error without broker")
	}
}

func TestClientID(t *testing.T) {
	a, b := ClientID(), ClientID()
	if !strings.HasPrefix(a, "rdserial-") || len(a) != len("rdserial-")+8 || a == b {
		t.Errorf("ClientID() = %q, %q", a, b)
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	if err := m.Publish(testReading()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	m.ObserveFailure("dps", errors.New("crc mismatch"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, line := range []string{
		`rdserial_field_value{device="dps",field="volts"} 5.01`,
		`rdserial_field_value{device="dps",field="amps"} 0.25`,
		`rdserial_polls_total{device="dps",result="ok"} 1`,
		`rdserial_polls_total{device="dps",result="error"} 1`,
		`rdserial_last_poll_timestamp_seconds{device="dps"} 1.7e+09`,
	} {
		if !strings.Contains(string(body), line) {
			t.Errorf("exposition missing %q:\n%s", line, body)
		}
	}
}

type recordingSink struct {
	readings []Reading
	failures int
	err      error
	closed   bool
}

func (s *recordingSink) Publish(r Reading) error {
	s.readings = append(s.readings, r)
	return s.err
}

func (s *recordingSink) ObserveFailure(string, error) { s.failures++ }

func (s *recordingSink) Close() error {
	s.closed = true
	return s.err
}

type plainSink struct{ published int }

func (s *plainSink) Publish(Reading) error { s.published++; return nil }
func (s *plainSink) Close() error          { return nil }

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingSink{}
	b := &recordingSink{err: boom}
	c := &plainSink{}
	m := Multi{a, b, c}

	err := m.Publish(testReading())
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error, got %v", err)
	}
	if len(a.readings) != 1 || len(b.readings) != 1 || c.published != 1 {
		t.Error("every sink should receive the reading")
	}

	m.ObserveFailure("dps", boom)
	if a.failures != 1 || b.failures != 1 {
		t.Error("failure observers not notified")
	}

	if err := m.Close(); !errors.Is(err, boom) {
		t.Errorf("Close() = %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("sinks not closed")
	}
	if err := (Multi{}).Publish(testReading()); err != nil {
		t.Errorf("empty Multi: %v", err)
	}
}
