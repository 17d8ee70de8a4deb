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
	"math"
)

// ScaleKind selects the shared decode/encode routine of a field.
type ScaleKind uint8

const (
	KindInt   ScaleKind = iota // raw integer
	KindFixed                  // fixed point, raw / Scale
	KindBool                   // raw != 0
	KindEnum                   // member of a closed set
)

func (k ScaleKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFixed:
		return "fixed"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	}
	return fmt.Sprintf("ScaleKind(%d)", uint8(k))
}

// EnumKind names the closed set an enum field decodes into.
type EnumKind uint8

const (
	EnumNone EnumKind = iota
	EnumProtection
	EnumChargingMode
)

// ProtectionStatus is the power supply protection register.
type ProtectionStatus uint16

const (
	ProtectionGood ProtectionStatus = iota
	ProtectionOverVoltage
	ProtectionOverCurrent
	ProtectionOverPower
)

func (p ProtectionStatus) String() string {
	switch p {
	case ProtectionGood:
		return "good"
	case ProtectionOverVoltage:
		return "over-voltage"
	case ProtectionOverCurrent:
		return "over-current"
	case ProtectionOverPower:
		return "over-power"
	}
	return fmt.Sprintf("ProtectionStatus(%d)", uint16(p))
}

// ChargingMode is the USB charging protocol detected by a UM meter.
type ChargingMode uint16

const (
	ChargingUnknown ChargingMode = iota
	ChargingQC2
	ChargingQC3
	ChargingApple2_4A
	ChargingApple2_1A
	ChargingApple1_0A
	ChargingApple0_5A
	ChargingDCP1_5A
	ChargingSamsung
)

var chargingModeNames = [...]string{
	"Unknown / Normal",
	"Quick Charge 2.0",
	"Quick Charge 3.0",
	"Apple 2.4A",
	"Apple 2.1A",
	"Apple 1.0A",
	"Apple 0.5A",
	"DCP 1.5A",
	"Samsung",
}

func (c ChargingMode) String() string {
	if int(c) < len(chargingModeNames) {
		return chargingModeNames[c]
	}
	return fmt.Sprintf("ChargingMode(%d)", uint16(c))
}

// Field describes one register (or fixed-offset byte field) of a map.
type Field struct {
	Name        string
	Description string
	Address     uint16 // register number, or byte offset in a fixed frame
	Width       int    // bytes for frame fields; 0 means one register
	Kind        ScaleKind
	Scale       int // divisor for KindFixed
	Enum        EnumKind
	WriteOnly   bool // always decodes to zero
}

func integer(name, desc string, addr uint16) Field {
	return Field{Name: name, Description: desc, Address: addr, Kind: KindInt}
}

func fixed(name, desc string, addr uint16, scale int) Field {
	return Field{Name: name, Description: desc, Address: addr, Kind: KindFixed, Scale: scale}
}

func boolean(name, desc string, addr uint16) Field {
	return Field{Name: name, Description: desc, Address: addr, Kind: KindBool}
}

func enum(name, desc string, addr uint16, kind EnumKind) Field {
	return Field{Name: name, Description: desc, Address: addr, Kind: KindEnum, Enum: kind}
}

func writeOnly(name, desc string, addr uint16) Field {
	return Field{Name: name, Description: desc, Address: addr, Kind: KindInt, WriteOnly: true}
}

// wide sets the byte width of a fixed frame field.
func (f Field) wide(width int) Field {
	f.Width = width
	return f
}

func (f Field) maxRaw() uint64 {
	if f.Width == 4 {
		return math.MaxUint32
	}
	return math.MaxUint16
}

func (f Field) validEnum(raw uint32) bool {
	switch f.Enum {
	case EnumProtection:
		return raw <= uint32(ProtectionOverPower)
	case EnumChargingMode:
		return raw <= uint32(ChargingSamsung)
	}
	return false
}

// Decode converts a raw register value into the field's typed value:
// int, float64, bool, ProtectionStatus or ChargingMode.
func (f Field) Decode(raw uint32) (any, error) {
	if f.WriteOnly {
		return 0, nil
	}
	switch f.Kind {
	case KindInt:
		return int(raw), nil
	case KindFixed:
		return float64(raw) / float64(f.Scale), nil
	case KindBool:
		return raw != 0, nil
	case KindEnum:
		if !f.validEnum(raw) {
			return nil, &DecodeError{Field: f.Name, Raw: raw}
		}
		if f.Enum == EnumProtection {
			return ProtectionStatus(raw), nil
		}
		return ChargingMode(raw), nil
	}
	return nil, fmt.Errorf("rdserial: field %s: unsupported kind %v", f.Name, f.Kind)
}

// Encode converts a typed value into its raw integer. Fixed point values
// are scaled and truncated toward zero, never rounded.
func (f Field) Encode(v any) (uint32, error) {
	x, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("rdserial: field %s: %w", f.Name, err)
	}
	var raw float64
	switch f.Kind {
	case KindFixed:
		raw = math.Trunc(x * float64(f.Scale))
	case KindBool:
		if x != 0 {
			raw = 1
		}
	default:
		raw = math.Trunc(x)
	}
	if raw < 0 || raw > float64(f.maxRaw()) || math.IsNaN(raw) {
		return 0, fmt.Errorf("rdserial: field %s: value %v out of range", f.Name, v)
	}
	if f.Kind == KindEnum && !f.validEnum(uint32(raw)) {
		return 0, &DecodeError{Field: f.Name, Raw: uint32(raw)}
	}
	return uint32(raw), nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case ProtectionStatus:
		return float64(x), nil
	case ChargingMode:
		return float64(x), nil
	}
	return 0, fmt.Errorf("unsupported value type %T", v)
}

// Numeric flattens a decoded value to float64 for metrics.
func Numeric(v any) float64 {
	x, err := toFloat(v)
	if err != nil {
		return math.NaN()
	}
	return x
}
