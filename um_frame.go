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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FrameSize is the length of every UM meter reply.
const FrameSize = 130

// DataGroupCount is the number of accumulator records in a frame.
const DataGroupCount = 10

const dataGroupOffset = 16

// SubModel describes one UM meter variant.
type SubModel struct {
	Name        string
	StartMarker uint16
	EndMarker   uint16
	Multiplier  int // finer resolution of volts and amps
}

var (
	UM24C = SubModel{Name: "UM24C", StartMarker: 0x0963, EndMarker: 0xFFF1, Multiplier: 1}
	UM25C = SubModel{Name: "UM25C", StartMarker: 0x0963, EndMarker: 0xFFF1, Multiplier: 10}
	UM34C = SubModel{Name: "UM34C", StartMarker: 0x0D4C, EndMarker: 0x8068, Multiplier: 1}
)

// LookupSubModel returns the UM variant for a device name such as "um25c".
func LookupSubModel(device string) (SubModel, error) {
	switch strings.ToUpper(device) {
	case UM24C.Name:
		return UM24C, nil
	case UM25C.Name:
		return UM25C, nil
	case UM34C.Name:
		return UM34C, nil
	}
	return SubModel{}, fmt.Errorf("rdserial: unsupported meter %q", device)
}

// fields returns the byte layout of the frame for this sub-model.
func (s SubModel) fields() []Field {
	m := s.Multiplier
	if m <= 0 {
		m = 1
	}
	return []Field{
		integer("start", "Start bytes", 0).wide(2),
		fixed("volts", "Volts", 2, 100*m).wide(2),
		fixed("amps", "Amps", 4, 1000*m).wide(2),
		fixed("watts", "Watts", 6, 1000).wide(4),
		integer("temp_c", "Temperature (Celsius)", 10).wide(2),
		integer("temp_f", "Temperature (Fahrenheit)", 12).wide(2),
		integer("data_group_selected", "Currently selected data group", 14).wide(2),
		fixed("data_line_positive_volts", "Positive data line volts", 96, 100).wide(2),
		fixed("data_line_negative_volts", "Negative data line volts", 98, 100).wide(2),
		enum("charging_mode", "Charging mode", 100, EnumChargingMode).wide(2),
		fixed("record_amphours", "Recorded amp-hours", 102, 1000).wide(4),
		fixed("record_watthours", "Recorded watt-hours", 106, 1000).wide(4),
		fixed("record_threshold", "Recording threshold (Amps)", 110, 100).wide(2),
		integer("record_seconds", "Recorded time (Seconds)", 112).wide(4),
		boolean("recording", "Recording", 116).wide(2),
		integer("screen_timeout", "Screen timeout (Minutes)", 118).wide(2),
		integer("screen_brightness", "Screen brightness", 120).wide(2),
		fixed("resistance", "Resistance (Ohms)", 122, 10).wide(4),
		integer("screen_selected", "Currently selected screen", 126).wide(2),
		integer("end", "End bytes", 128).wide(2),
	}
}

// DataGroup is one accumulator record of a UM meter.
type DataGroup struct {
	AmpHours  float64 `json:"amp_hours"`
	WattHours float64 `json:"watt_hours"`

	raws [2]uint32 // as decoded, reused while the values are unchanged
}

// dataGroupFields returns the amp-hour and watt-hour codecs of group i.
func dataGroupFields(i int) [2]Field {
	pos := uint16(dataGroupOffset + 8*i)
	return [2]Field{
		fixed(fmt.Sprintf("data_group%d_amp_hours", i), "Data group amp-hours", pos, 1000).wide(4),
		fixed(fmt.Sprintf("data_group%d_watt_hours", i), "Data group watt-hours", pos+4, 1000).wide(4),
	}
}

func decodeDataGroup(buf []byte, i int) (DataGroup, error) {
	var g DataGroup
	for n, f := range dataGroupFields(i) {
		raw := binary.BigEndian.Uint32(buf[f.Address:])
		v, err := f.Decode(raw)
		if err != nil {
			return DataGroup{}, err
		}
		g.raws[n] = raw
		if n == 0 {
			g.AmpHours = v.(float64)
		} else {
			g.WattHours = v.(float64)
		}
	}
	return g, nil
}

func (g DataGroup) put(buf []byte, i int) error {
	values := [2]float64{g.AmpHours, g.WattHours}
	for n, f := range dataGroupFields(i) {
		raw := g.raws[n]
		if v, err := f.Decode(raw); err != nil || v.(float64) != values[n] {
			if raw, err = f.Encode(values[n]); err != nil {
				return err
			}
		}
		binary.BigEndian.PutUint32(buf[f.Address:], raw)
	}
	return nil
}

// FixedFrame is a decoded 130-byte UM meter reply.
type FixedFrame struct {
	SubModel       SubModel
	CollectionTime time.Time
	Fields         *RegisterMap
	DataGroups     [DataGroupCount]DataGroup
}

// NewFixedFrame returns a zeroed frame carrying the sub-model markers.
func NewFixedFrame(s SubModel) *FixedFrame {
	f := &FixedFrame{
		SubModel: s,
		Fields:   NewRegisterMap(s.Name, s.fields()),
	}
	_ = f.Fields.Set("start", int(s.StartMarker))
	_ = f.Fields.Set("end", int(s.EndMarker))
	return f
}

// DecodeFrame validates length and markers, then decodes every field and
// data group.
func DecodeFrame(buf []byte, s SubModel) (*FixedFrame, error) {
	if len(buf) != FrameSize {
		return nil, &FrameError{Reason: fmt.Sprintf("length %d, expected %d", len(buf), FrameSize)}
	}
	start := binary.BigEndian.Uint16(buf[0:])
	end := binary.BigEndian.Uint16(buf[FrameSize-2:])
	if start != s.StartMarker || end != s.EndMarker {
		return nil, &FrameError{Reason: fmt.Sprintf("markers 0x%04X/0x%04X, expected 0x%04X/0x%04X for %s",
			start, end, s.StartMarker, s.EndMarker, s.Name)}
	}

	f := NewFixedFrame(s)
	if err := f.Fields.LoadBytes(buf); err != nil {
		return nil, err
	}
	for i := range f.DataGroups {
		g, err := decodeDataGroup(buf, i)
		if err != nil {
			return nil, err
		}
		f.DataGroups[i] = g
	}
	return f, nil
}

// EncodeFrame writes the frame into a fresh 130-byte buffer. Data group
// values are truncated to thousandths like every fixed field; values that
// do not fit four bytes are an error.
func EncodeFrame(f *FixedFrame) ([]byte, error) {
	buf := make([]byte, FrameSize)
	f.Fields.PutBytes(buf)
	binary.BigEndian.PutUint16(buf[0:], f.SubModel.StartMarker)
	binary.BigEndian.PutUint16(buf[FrameSize-2:], f.SubModel.EndMarker)
	for i, g := range f.DataGroups {
		if err := g.put(buf, i); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Bytes is EncodeFrame(f).
func (f *FixedFrame) Bytes() ([]byte, error) {
	return EncodeFrame(f)
}

// Samples flattens the frame for metrics; data groups are named
// data_group<N>_amp_hours and data_group<N>_watt_hours.
func (f *FixedFrame) Samples() []Sample {
	out := f.Fields.Samples("")
	for i, g := range f.DataGroups {
		out = append(out,
			Sample{Name: fmt.Sprintf("data_group%d_amp_hours", i), Value: g.AmpHours},
			Sample{Name: fmt.Sprintf("data_group%d_watt_hours", i), Value: g.WattHours},
		)
	}
	return out
}

// MarshalJSON writes the fields in frame order followed by data_groups and
// collection_time.
func (f *FixedFrame) MarshalJSON() ([]byte, error) {
	fields, err := f.Fields.MarshalJSON()
	if err != nil {
		return nil, err
	}
	groups, err := json.Marshal(f.DataGroups)
	if err != nil {
		return nil, err
	}
	ts := unixSeconds(f.CollectionTime)
	out := make([]byte, 0, len(fields)+len(groups)+64)
	out = append(out, fields[:len(fields)-1]...)
	out = append(out, `,"data_groups":`...)
	out = append(out, groups...)
	out = append(out, `,"collection_time":`...)
	out = strconv.AppendFloat(out, ts, 'f', -1, 64)
	out = append(out, '}')
	return out, nil
}
