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
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

type registerWindow struct {
	offset uint16
	values []uint16
}

// DeviceState is one poll of a DPS/RD supply: the device map, the
// requested group maps, and when they were collected.
type DeviceState struct {
	Family         *Family
	CollectionTime time.Time
	Device         *RegisterMap
	Groups         map[int]*RegisterMap
	windows        []registerWindow
}

// NewDeviceState creates an empty state for family f.
func NewDeviceState(f *Family, collectionTime time.Time) *DeviceState {
	return &DeviceState{
		Family:         f,
		CollectionTime: collectionTime,
		Device:         NewDeviceMap(f),
		Groups:         make(map[int]*RegisterMap),
	}
}

// Load decodes a device register window read at offset.
func (s *DeviceState) Load(window []uint16, offset uint16) error {
	s.keep(window, offset)
	return s.Device.Load(window, offset)
}

// LoadGroup decodes the window read from the start of group index.
func (s *DeviceState) LoadGroup(index int, window []uint16) error {
	g, ok := s.Groups[index]
	if !ok {
		var err error
		if g, err = NewGroupMap(s.Family, index); err != nil {
			return err
		}
		s.Groups[index] = g
	}
	offset := s.Family.GroupStart(index)
	s.keep(window, offset)
	return g.Load(window, offset)
}

func (s *DeviceState) keep(window []uint16, offset uint16) {
	s.windows = append(s.windows, registerWindow{offset: offset, values: append([]uint16(nil), window...)})
}

// ReadDeviceState reads the device window and one window per group.
// The first error aborts the read.
func ReadDeviceState(t RegisterTransport, f *Family, unit uint8, groups []int, now time.Time) (*DeviceState, error) {
	s := NewDeviceState(f, now)
	regs, err := t.ReadRegisters(unit, 0x00, f.DeviceRead)
	if err != nil {
		return nil, err
	}
	if err := s.Load(regs, 0x00); err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g < 0 || g >= GroupCount {
			return nil, fmt.Errorf("rdserial: group index %d out of range 0-%d", g, GroupCount-1)
		}
		regs, err := t.ReadRegisters(unit, f.GroupStart(g), f.GroupRead)
		if err != nil {
			return nil, err
		}
		if err := s.LoadGroup(g, regs); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// GroupIndexes returns the loaded group indexes in ascending order.
func (s *DeviceState) GroupIndexes() []int {
	idx := make([]int, 0, len(s.Groups))
	for i := range s.Groups {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// RegisterImage lays every window read into one slice indexed by register
// address. Unread registers are zero.
func (s *DeviceState) RegisterImage() []uint16 {
	size := 0
	for _, w := range s.windows {
		if end := int(w.offset) + len(w.values); end > size {
			size = end
		}
	}
	image := make([]uint16, size)
	for _, w := range s.windows {
		copy(image[w.offset:], w.values)
	}
	return image
}

// Samples flattens device and group values for metrics. Group values are
// named group<N>_<field>.
func (s *DeviceState) Samples() []Sample {
	out := s.Device.Samples("")
	for _, i := range s.GroupIndexes() {
		out = append(out, s.Groups[i].Samples(fmt.Sprintf("group%d_", i))...)
	}
	return out
}

// MarshalJSON writes the device fields in declaration order followed by
// collection_time (unix seconds) and groups keyed by index.
func (s *DeviceState) MarshalJSON() ([]byte, error) {
	device, err := s.Device.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(device[:len(device)-1])
	if len(device) > 2 {
		buf.WriteByte(',')
	}
	ts := unixSeconds(s.CollectionTime)
	fmt.Fprintf(&buf, `"collection_time":%s,"groups":{`, strconv.FormatFloat(ts, 'f', -1, 64))
	for n, i := range s.GroupIndexes() {
		if n > 0 {
			buf.WriteByte(',')
		}
		g, err := json.Marshal(s.Groups[i])
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, `"%d":`, i)
		buf.Write(g)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// unixSeconds is t as fractional seconds since the epoch.
func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
