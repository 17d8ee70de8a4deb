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
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// RegisterMap is an ordered set of fields sharing one address space, with
// the last decoded value of each. It owns no I/O.
type RegisterMap struct {
	name   string
	fields []Field
	values []any
	raws   []uint32
	byName map[string]int
	byAddr map[uint16]int
}

// NewRegisterMap builds a map from a static field table. Duplicate names or
// addresses are a programming error and panic.
func NewRegisterMap(name string, fields []Field) *RegisterMap {
	m := &RegisterMap{
		name:   name,
		fields: make([]Field, len(fields)),
		values: make([]any, len(fields)),
		raws:   make([]uint32, len(fields)),
		byName: make(map[string]int, len(fields)),
		byAddr: make(map[uint16]int, len(fields)),
	}
	copy(m.fields, fields)
	for i, f := range m.fields {
		if _, dup := m.byName[f.Name]; dup {
			panic(fmt.Sprintf("rdserial: duplicate field %q in %s map", f.Name, name))
		}
		if _, dup := m.byAddr[f.Address]; dup {
			panic(fmt.Sprintf("rdserial: duplicate address 0x%02X in %s map", f.Address, name))
		}
		m.byName[f.Name] = i
		m.byAddr[f.Address] = i
		m.values[i], _ = f.Decode(0)
	}
	return m
}

// Name returns the map name used in errors.
func (m *RegisterMap) Name() string { return m.name }

// Fields returns the fields in declaration order.
func (m *RegisterMap) Fields() []Field {
	out := make([]Field, len(m.fields))
	copy(out, m.fields)
	return out
}

// Field looks up a field by name.
func (m *RegisterMap) Field(name string) (Field, bool) {
	i, ok := m.byName[name]
	if !ok {
		return Field{}, false
	}
	return m.fields[i], true
}

// FieldAt is the reverse lookup used to demultiplex a register window.
func (m *RegisterMap) FieldAt(address uint16) (Field, bool) {
	i, ok := m.byAddr[address]
	if !ok {
		return Field{}, false
	}
	return m.fields[i], true
}

// Load decodes every field whose address lies in [offset, offset+len(window)).
// Fields outside the window keep their previous value. Window positions with
// no field are ignored, as are positions past address 0xFFFF. On an invalid enum value the rest of the window is
// still decoded and the first error is returned.
func (m *RegisterMap) Load(window []uint16, offset uint16) error {
	var first error
	for i, raw := range window {
		addr := int(offset) + i
		if addr > math.MaxUint16 {
			break
		}
		idx, ok := m.byAddr[uint16(addr)]
		if !ok {
			continue
		}
		if err := m.store(idx, uint32(raw)); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LoadBytes decodes byte-addressed fields (2 or 4 bytes, big endian) from a
// fixed frame.
func (m *RegisterMap) LoadBytes(buf []byte) error {
	var first error
	for idx, f := range m.fields {
		end := int(f.Address) + f.Width
		if f.Width == 0 || end > len(buf) {
			continue
		}
		var raw uint32
		switch f.Width {
		case 2:
			raw = uint32(binary.BigEndian.Uint16(buf[f.Address:]))
		case 4:
			raw = binary.BigEndian.Uint32(buf[f.Address:])
		default:
			continue
		}
		if err := m.store(idx, raw); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PutBytes writes the raw value of every byte-addressed field into buf.
func (m *RegisterMap) PutBytes(buf []byte) {
	for idx, f := range m.fields {
		if int(f.Address)+f.Width > len(buf) {
			continue
		}
		switch f.Width {
		case 2:
			binary.BigEndian.PutUint16(buf[f.Address:], uint16(m.raws[idx]))
		case 4:
			binary.BigEndian.PutUint32(buf[f.Address:], m.raws[idx])
		}
	}
}

func (m *RegisterMap) store(idx int, raw uint32) error {
	v, err := m.fields[idx].Decode(raw)
	if err != nil {
		return err
	}
	m.values[idx] = v
	m.raws[idx] = raw
	return nil
}

// EncodeCommand returns the register address and raw value that set the
// named field to value.
func (m *RegisterMap) EncodeCommand(name string, value any) (uint16, uint16, error) {
	idx, ok := m.byName[name]
	if !ok {
		return 0, 0, &UnknownFieldError{Map: m.name, Field: name}
	}
	f := m.fields[idx]
	raw, err := f.Encode(value)
	if err != nil {
		return 0, 0, err
	}
	if raw > 0xFFFF {
		return 0, 0, fmt.Errorf("rdserial: field %s: raw value %d exceeds one register", name, raw)
	}
	return f.Address, uint16(raw), nil
}

// Set stores a typed value without touching the device. The value goes
// through the field codec, so it reads back truncated to the field's
// resolution.
func (m *RegisterMap) Set(name string, value any) error {
	idx, ok := m.byName[name]
	if !ok {
		return &UnknownFieldError{Map: m.name, Field: name}
	}
	raw, err := m.fields[idx].Encode(value)
	if err != nil {
		return err
	}
	return m.store(idx, raw)
}

// Value returns the decoded value of the named field.
func (m *RegisterMap) Value(name string) (any, bool) {
	idx, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return m.values[idx], true
}

// Raw returns the raw integer behind the named field.
func (m *RegisterMap) Raw(name string) (uint32, bool) {
	idx, ok := m.byName[name]
	if !ok {
		return 0, false
	}
	return m.raws[idx], true
}

// Float returns a numeric field as float64; bools are 0 or 1.
func (m *RegisterMap) Float(name string) float64 {
	v, _ := m.Value(name)
	return Numeric(v)
}

// Int returns a numeric field truncated to int.
func (m *RegisterMap) Int(name string) int {
	return int(m.Float(name))
}

// Bool reports whether the named field is nonzero.
func (m *RegisterMap) Bool(name string) bool {
	return m.Float(name) != 0
}

// Sample is one named numeric value.
type Sample struct {
	Name  string
	Value float64
}

// Samples flattens the map to numeric values in declaration order,
// prefixing each name. Write-only fields are skipped.
func (m *RegisterMap) Samples(prefix string) []Sample {
	out := make([]Sample, 0, len(m.fields))
	for i, f := range m.fields {
		if f.WriteOnly {
			continue
		}
		out = append(out, Sample{Name: prefix + f.Name, Value: Numeric(m.values[i])})
	}
	return out
}

// MarshalJSON writes fields in declaration order. Enums are written as their
// integer value.
func (m *RegisterMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(f.Name)
		buf.Write(key)
		buf.WriteByte(':')
		v := m.values[i]
		switch x := v.(type) {
		case ProtectionStatus:
			v = int(x)
		case ChargingMode:
			v = int(x)
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
