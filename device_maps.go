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
	"sort"
	"strings"
)

// GroupCount is the number of preset groups on DPS and RD supplies.
const GroupCount = 10

// Family describes one register-addressed instrument family.
type Family struct {
	Name        string
	Device      []Field // device-global registers
	Group       []Field // addresses are offsets from the group start
	GroupBase   uint16
	GroupStride uint16
	DeviceRead  uint16 // registers read from address 0
	GroupRead   uint16 // registers read per group
	HasClock    bool
}

var dpsFamily = &Family{
	Name: "dps",
	Device: []Field{
		fixed("setting_volts", "Voltage setting", 0x00, 100),
		fixed("setting_amps", "Amperage setting", 0x01, 100),
		fixed("volts", "Output volts", 0x02, 100),
		fixed("amps", "Output amps", 0x03, 100),
		fixed("watts", "Output watts", 0x04, 100),
		fixed("input_volts", "Input volts", 0x05, 100),
		boolean("key_lock", "Key lock", 0x06),
		enum("protection", "Protection status", 0x07, EnumProtection),
		boolean("constant_current", "Constant current mode", 0x08),
		boolean("output_state", "Output state", 0x09),
		integer("brightness", "Brightness level", 0x0a),
		integer("model", "Device model", 0x0b),
		integer("firmware", "Device firmware", 0x0c),
		writeOnly("group_loader", "Group loader", 0x23),
	},
	Group: []Field{
		fixed("setting_volts", "Voltage setting", 0, 100),
		fixed("setting_amps", "Amperage setting", 1, 1000),
		fixed("cutoff_volts", "Volts cutoff", 2, 100),
		fixed("cutoff_amps", "Amps cutoff", 3, 1000),
		fixed("cutoff_watts", "Watts cutoff", 4, 10),
		integer("brightness", "Brightness level", 5),
		boolean("maintain_output", "Maintain output state during group change", 6),
		boolean("poweron_output", "Enable output on power-on", 7),
	},
	GroupBase:   0x50,
	GroupStride: 0x10,
	DeviceRead:  13,
	GroupRead:   8,
}

var rdFamily = &Family{
	Name: "rd",
	Device: []Field{
		integer("model", "Device model", 0x00),
		integer("serial", "Device serial", 0x02),
		integer("firmware", "Device firmware", 0x03),
		integer("fan_temp_c", "Fan start temperature (C)", 0x05),
		integer("fan_temp_f", "Fan start temperature (F)", 0x07),
		fixed("setting_volts", "Voltage setting", 0x08, 100),
		fixed("setting_amps", "Amperage setting", 0x09, 1000),
		fixed("volts", "Output volts", 0x0a, 100),
		fixed("amps", "Output amps", 0x0b, 100),
		fixed("watts", "Output watts", 0x0d, 100),
		fixed("input_volts", "Input volts", 0x0e, 100),
		boolean("key_lock", "Key lock", 0x0f),
		enum("protection", "Protection status", 0x10, EnumProtection),
		boolean("constant_current", "Constant current mode", 0x11),
		boolean("output_state", "Output state", 0x12),
		writeOnly("group_loader", "Group loader", 0x13),
		integer("temp_c", "Temperature (C)", 0x23),
		integer("temp_f", "Temperature (F)", 0x25),
		fixed("cumulative_charge", "Cumulative charge (Ah)", 0x27, 1000),
		fixed("cumulative_energy", "Cumulative energy (Wh)", 0x29, 1000),
		integer("datetime_year", "Year", 0x30),
		integer("datetime_month", "Month", 0x31),
		integer("datetime_day", "Day", 0x32),
		integer("datetime_hour", "Hour", 0x33),
		integer("datetime_minute", "Minute", 0x34),
		integer("datetime_second", "Second", 0x35),
		integer("brightness", "Brightness level", 0x48),
		fixed("ovp", "Over-voltage limit (V)", 0x52, 100),
		fixed("ocp", "Over-current limit (A)", 0x53, 1000),
	},
	Group: []Field{
		fixed("setting_volts", "Voltage setting", 0, 100),
		fixed("setting_amps", "Amperage setting", 1, 1000),
		fixed("cutoff_volts", "Volts cutoff", 2, 100),
		fixed("cutoff_amps", "Amps cutoff", 3, 1000),
	},
	GroupBase:   0x50,
	GroupStride: 0x04,
	DeviceRead:  85,
	GroupRead:   4,
	HasClock:    true,
}

var families = map[string]*Family{
	"dps":    dpsFamily,
	"rd":     rdFamily,
	"rd6006": rdFamily,
}

// LookupFamily returns the register family for a device name.
func LookupFamily(device string) (*Family, error) {
	f, ok := families[strings.ToLower(device)]
	if !ok {
		return nil, fmt.Errorf("rdserial: unsupported register device %q (have %s)", device, strings.Join(FamilyNames(), ", "))
	}
	return f, nil
}

// FamilyNames lists the accepted register device names.
func FamilyNames() []string {
	names := make([]string, 0, len(families))
	for n := range families {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GroupStart is the first register of group index.
func (f *Family) GroupStart(index int) uint16 {
	return f.GroupBase + f.GroupStride*uint16(index)
}

// NewDeviceMap builds the device-global register map.
func NewDeviceMap(f *Family) *RegisterMap {
	return NewRegisterMap(f.Name, f.Device)
}

// NewGroupMap builds the map of preset group index, 0 to 9.
func NewGroupMap(f *Family, index int) (*RegisterMap, error) {
	if index < 0 || index >= GroupCount {
		return nil, fmt.Errorf("rdserial: group index %d out of range 0-%d", index, GroupCount-1)
	}
	start := f.GroupStart(index)
	fields := make([]Field, len(f.Group))
	for i, gf := range f.Group {
		gf.Address = start + gf.Address
		fields[i] = gf
	}
	return NewRegisterMap(fmt.Sprintf("%s group %d", f.Name, index), fields), nil
}
