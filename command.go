// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package rdserial

import (
	"fmt"
	"io"
	"time"
)

// CommandBatch gathers field writes across the device map and any number of
// group maps, then issues them as coalesced register runs.
type CommandBatch struct {
	family  *Family
	device  *RegisterMap
	groups  map[int]*RegisterMap
	pending map[uint16]uint16
	logger  io.Writer
}

// NewCommandBatch starts an empty batch for family f.
func NewCommandBatch(f *Family) *CommandBatch {
	return &CommandBatch{
		family:  f,
		device:  NewDeviceMap(f),
		groups:  make(map[int]*RegisterMap),
		pending: make(map[uint16]uint16),
	}
}

// SetLogger sets the writer used for info and debug output.
func (b *CommandBatch) SetLogger(logger io.Writer) {
	b.logger = logger
}

// Set queues a device field write.
func (b *CommandBatch) Set(name string, value any) error {
	addr, raw, err := b.device.EncodeCommand(name, value)
	if err != nil {
		return err
	}
	b.queue(b.device, name, addr, raw, value)
	return nil
}

// SetGroup queues a write to a field of group index.
func (b *CommandBatch) SetGroup(index int, name string, value any) error {
	g, ok := b.groups[index]
	if !ok {
		var err error
		if g, err = NewGroupMap(b.family, index); err != nil {
			return err
		}
		b.groups[index] = g
	}
	addr, raw, err := g.EncodeCommand(name, value)
	if err != nil {
		return err
	}
	b.queue(g, name, addr, raw, value)
	return nil
}

// SetClock queues the date and time registers of families that have a
// clock.
func (b *CommandBatch) SetClock(t time.Time) error {
	if !b.family.HasClock {
		return fmt.Errorf("rdserial: %s has no settable clock", b.family.Name)
	}
	fields := []struct {
		name  string
		value int
	}{
		{"datetime_year", t.Year()},
		{"datetime_month", int(t.Month())},
		{"datetime_day", t.Day()},
		{"datetime_hour", t.Hour()},
		{"datetime_minute", t.Minute()},
		{"datetime_second", t.Second()},
	}
	for _, f := range fields {
		if err := b.Set(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

func (b *CommandBatch) queue(m *RegisterMap, name string, addr, raw uint16, value any) {
	if b.logger != nil {
		f, _ := m.Field(name)
		fmt.Fprintf(b.logger, "INFO: setting %s %q to %v\n", m.Name(), f.Description, value)
		fmt.Fprintf(b.logger, "DEBUG: %s (register 0x%02X): %v (%d)\n", name, addr, value, raw)
	}
	b.pending[addr] = raw
}

// Len returns the number of distinct registers queued.
func (b *CommandBatch) Len() int {
	return len(b.pending)
}

// Plan returns the coalesced runs for the queued writes.
func (b *CommandBatch) Plan() []WriteRun {
	return PlanWrites(b.pending)
}

// Apply writes the queued registers. The first error aborts the batch.
func (b *CommandBatch) Apply(t RegisterTransport, unit uint8) error {
	return ApplyWrites(t, unit, b.Plan(), b.logger)
}
