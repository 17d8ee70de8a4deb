// Package publish fans poll results out to telemetry sinks.
package publish

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hootrhino/rdserial"
)

// Source is a decoded poll: a DPS/RD device state or a UM frame.
type Source interface {
	json.Marshaler
	Samples() []rdserial.Sample
}

// Reading is one successful poll, ready to publish.
type Reading struct {
	ID      string
	Device  string
	Time    time.Time
	Samples []rdserial.Sample
	source  Source
}

// NewReading snapshots src under a fresh id.
func NewReading(device string, t time.Time, src Source) Reading {
	return Reading{
		ID:      uuid.NewString(),
		Device:  device,
		Time:    t,
		Samples: src.Samples(),
		source:  src,
	}
}

// Source returns the decoded poll behind the reading.
func (r Reading) Source() Source { return r.source }

// MarshalJSON wraps the source document with the reading id and device.
func (r Reading) MarshalJSON() ([]byte, error) {
	var body json.RawMessage = []byte("null")
	if r.source != nil {
		b, err := r.source.MarshalJSON()
		if err != nil {
			return nil, err
		}
		body = b
	}
	return json.Marshal(struct {
		ID     string          `json:"id"`
		Device string          `json:"device"`
		Time   time.Time       `json:"time"`
		Data   json.RawMessage `json:"data"`
	}{r.ID, r.Device, r.Time.UTC(), body})
}

// Sink receives readings.
type Sink interface {
	Publish(r Reading) error
	Close() error
}

// FailureObserver is implemented by sinks that also count failed polls.
type FailureObserver interface {
	ObserveFailure(device string, err error)
}

// Multi publishes to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(r Reading) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) ObserveFailure(device string, err error) {
	for _, s := range m {
		if o, ok := s.(FailureObserver); ok {
			o.ObserveFailure(device, err)
		}
	}
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
