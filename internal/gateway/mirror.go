// Package gateway republishes the register image of a polled supply
// through a local Modbus TCP server, so SCADA tools can read it without
// owning the serial line.
package gateway

import (
	"fmt"
	"io"
	"sync"

	modbus_server "github.com/hootrhino/mbserver"
	"github.com/hootrhino/mbserver/store"

	"github.com/hootrhino/rdserial/internal/publish"
)

// imager is implemented by *rdserial.DeviceState.
type imager interface {
	RegisterImage() []uint16
}

type holdingRegisters interface {
	SetHoldingRegisters(values []uint16) error
}

// Mirror serves the last polled holding registers as unit 1.
type Mirror struct {
	mu      sync.Mutex
	regs    holdingRegisters
	stop    func()
	logger  io.Writer
	updates int
}

// NewMirror starts a Modbus TCP server on listen.
func NewMirror(listen string, logger io.Writer) (*Mirror, error) {
	server := modbus_server.NewServer(store.NewInMemoryStore(), 1)
	m := &Mirror{regs: server, stop: func() { server.Stop() }, logger: logger}
	server.SetErrorHandler(func(err error) {
		m.logf("ERROR: modbus gateway: %v", err)
	})
	if err := server.Start(listen); err != nil {
		return nil, fmt.Errorf("gateway: start %s: %w", listen, err)
	}
	m.logf("INFO: modbus gateway listening on %s", listen)
	return m, nil
}

func newMirror(regs holdingRegisters, logger io.Writer) *Mirror {
	return &Mirror{regs: regs, stop: func() {}, logger: logger}
}

func (m *Mirror) logf(format string, args ...any) {
	if m.logger != nil {
		fmt.Fprintf(m.logger, format+"\n", args...)
	}
}

// Update replaces the served holding registers with image.
func (m *Mirror) Update(image []uint16) error {
	if len(image) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.regs.SetHoldingRegisters(image); err != nil {
		return fmt.Errorf("gateway: set holding registers: %w", err)
	}
	m.updates++
	m.logf("DEBUG: modbus gateway mirrored %d registers", len(image))
	return nil
}

// Updates returns how many images have been served.
func (m *Mirror) Updates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

// Publish mirrors readings that carry a register image and ignores the rest.
func (m *Mirror) Publish(r publish.Reading) error {
	src, ok := r.Source().(imager)
	if !ok {
		return nil
	}
	return m.Update(src.RegisterImage())
}

func (m *Mirror) Close() error {
	m.stop()
	return nil
}
