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

// Fixed UM opcodes.
const (
	OpPoll           byte = 0xF0
	OpNextScreen     byte = 0xF1
	OpRotateScreen   byte = 0xF2
	OpNextDataGroup  byte = 0xF3 // UM24C
	OpPrevScreen     byte = 0xF3 // UM25C, UM34C
	OpClearDataGroup byte = 0xF4

	opSetDataGroup    byte = 0xA0
	opRecordThreshold byte = 0xB0
	opBrightness      byte = 0xD0
	opScreenTimeout   byte = 0xE0
)

// UMCommand is one single-byte instruction to a UM meter.
type UMCommand struct {
	Name   string
	Opcode byte
	only   []string // sub-models accepting it; empty means all
}

func (c UMCommand) String() string {
	return fmt.Sprintf("%s(0x%02X)", c.Name, c.Opcode)
}

// Supports reports whether the sub-model accepts the command.
func (c UMCommand) Supports(s SubModel) bool {
	if len(c.only) == 0 {
		return true
	}
	for _, name := range c.only {
		if name == s.Name {
			return true
		}
	}
	return false
}

func PollCommand() UMCommand       { return UMCommand{Name: "poll", Opcode: OpPoll} }
func NextScreenCommand() UMCommand { return UMCommand{Name: "next_screen", Opcode: OpNextScreen} }
func RotateScreenCommand() UMCommand {
	return UMCommand{Name: "rotate_screen", Opcode: OpRotateScreen}
}
func ClearDataGroupCommand() UMCommand {
	return UMCommand{Name: "clear_data_group", Opcode: OpClearDataGroup}
}

func NextDataGroupCommand() UMCommand {
	return UMCommand{Name: "next_data_group", Opcode: OpNextDataGroup, only: []string{UM24C.Name}}
}

func PreviousScreenCommand() UMCommand {
	return UMCommand{Name: "previous_screen", Opcode: OpPrevScreen, only: []string{UM25C.Name, UM34C.Name}}
}

// SetDataGroupCommand selects data group 0-9.
func SetDataGroupCommand(group int) (UMCommand, error) {
	if group < 0 || group > 9 {
		return UMCommand{}, fmt.Errorf("rdserial: data group %d out of range 0-9", group)
	}
	return UMCommand{
		Name:   "set_data_group",
		Opcode: opSetDataGroup + byte(group),
		only:   []string{UM25C.Name, UM34C.Name},
	}, nil
}

// RecordThresholdCommand sets the recording threshold in amps, 0.00-0.30.
func RecordThresholdCommand(amps float64) (UMCommand, error) {
	if amps < 0 || amps > 0.30 || math.IsNaN(amps) {
		return UMCommand{}, fmt.Errorf("rdserial: record threshold %v out of range 0.00-0.30", amps)
	}
	step := int(math.Round(amps * 100))
	return UMCommand{Name: "record_threshold", Opcode: opRecordThreshold + byte(step)}, nil
}

// ScreenBrightnessCommand sets brightness 0-5.
func ScreenBrightnessCommand(level int) (UMCommand, error) {
	if level < 0 || level > 5 {
		return UMCommand{}, fmt.Errorf("rdserial: screen brightness %d out of range 0-5", level)
	}
	return UMCommand{Name: "screen_brightness", Opcode: opBrightness + byte(level)}, nil
}

// ScreenTimeoutCommand sets the screen timeout in minutes, 0-9.
func ScreenTimeoutCommand(minutes int) (UMCommand, error) {
	if minutes < 0 || minutes > 9 {
		return UMCommand{}, fmt.Errorf("rdserial: screen timeout %d out of range 0-9", minutes)
	}
	return UMCommand{Name: "screen_timeout", Opcode: opScreenTimeout + byte(minutes)}, nil
}
