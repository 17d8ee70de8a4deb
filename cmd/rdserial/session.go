// cmd/rdserial/session.go
package main

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/hootrhino/rdserial"
	"github.com/hootrhino/rdserial/internal/config"
	"github.com/hootrhino/rdserial/internal/publish"
)

// session is one connected instrument: it applies the requested
// commands once, then polls.
type session interface {
	Prepare() error
	Poll() (publish.Source, error)
	Print(p *printer, src publish.Source) error
	Close() error
}

// registerTransport is an RTU or MBAP transporter.
type registerTransport interface {
	rdserial.RegisterTransport
	Close() error
}

type supplySession struct {
	transport registerTransport
	family    *rdserial.Family
	unit      uint8
	groups    []int
	batch     *rdserial.CommandBatch
}

func newSupplySession(cfg *config.Config, o *options, conn io.ReadWriteCloser, logger io.Writer) (*supplySession, error) {
	f, err := rdserial.LookupFamily(cfg.Device)
	if err != nil {
		return nil, err
	}
	batch, err := supplyBatch(f, o, cfg.Groups, time.Now())
	if err != nil {
		return nil, err
	}
	batch.SetLogger(logger)
	var t registerTransport
	if cfg.Connection.Framing == config.FramingMBAP {
		t = rdserial.NewMBAPTransporter(conn, logger)
	} else {
		t = rdserial.NewRTUTransporter(conn, rdserial.RTUConfig{BaudRate: cfg.Connection.Baud, Logger: logger})
	}
	return &supplySession{transport: t, family: f, unit: cfg.Unit(), groups: cfg.Groups, batch: batch}, nil
}

func (s *supplySession) Prepare() error {
	if s.batch.Len() == 0 {
		return nil
	}
	return s.batch.Apply(s.transport, s.unit)
}

func (s *supplySession) Poll() (publish.Source, error) {
	return rdserial.ReadDeviceState(s.transport, s.family, s.unit, s.groups, time.Now())
}

func (s *supplySession) Print(p *printer, src publish.Source) error {
	state, ok := src.(*rdserial.DeviceState)
	if !ok {
		return fmt.Errorf("unexpected reading %T", src)
	}
	return p.Supply(state)
}

func (s *supplySession) Close() error { return s.transport.Close() }

type meterSession struct {
	transport *rdserial.UMTransport
	commands  []rdserial.UMCommand
}

func newMeterSession(cfg *config.Config, o *options, conn io.ReadWriteCloser, logger io.Writer) (*meterSession, error) {
	sm, err := rdserial.LookupSubModel(cfg.Device)
	if err != nil {
		return nil, err
	}
	cmds, err := meterCommands(sm, o)
	if err != nil {
		return nil, err
	}
	t := rdserial.NewUMTransport(conn, sm, nil)
	t.SetLogger(logger)
	return &meterSession{transport: t, commands: cmds}, nil
}

func (s *meterSession) Prepare() error {
	for _, c := range s.commands {
		log.Printf("INFO: sending %s", c)
	}
	return s.transport.SendAll(s.commands)
}

func (s *meterSession) Poll() (publish.Source, error) {
	return s.transport.Poll()
}

func (s *meterSession) Print(p *printer, src publish.Source) error {
	frame, ok := src.(*rdserial.FixedFrame)
	if !ok {
		return fmt.Errorf("unexpected reading %T", src)
	}
	return p.Meter(frame)
}

func (s *meterSession) Close() error { return s.transport.Close() }
