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
	"fmt"
	"strings"
)

// Function codes used by the DPS/RD register protocol.
const (
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleRegisters = 0x10
)

// MaxWriteRegisters is the largest run accepted by WriteRegisters. Longer
// runs are not answered reliably by the instruments.
const MaxWriteRegisters = 32

// RTUPackager builds request frames and validates replies.
type RTUPackager struct{}

// NewRTUPackager creates a new RTU packager.
func NewRTUPackager() *RTUPackager {
	return &RTUPackager{}
}

// Pack creates an RTU frame with unit ID, PDU, and CRC
func (p *RTUPackager) Pack(unit uint8, pdu []byte) ([]byte, error) {
	if len(pdu) == 0 {
		return nil, fmt.Errorf("PDU cannot be empty")
	}
	if len(pdu) > 253 {
		return nil, fmt.Errorf("PDU too long: %d bytes (max 253)", len(pdu))
	}
	frame := make([]byte, 0, 1+len(pdu)+2)
	frame = append(frame, unit)
	frame = append(frame, pdu...)
	return AppendCRC(frame), nil
}

// PackReadRegisters builds [unit, 0x03, base, count, crc].
func (p *RTUPackager) PackReadRegisters(unit uint8, base, count uint16) ([]byte, error) {
	pdu, err := readRegistersPDU(base, count)
	if err != nil {
		return nil, err
	}
	return p.Pack(unit, pdu)
}

// PackWriteRegister builds [unit, 0x06, register, value, crc].
func (p *RTUPackager) PackWriteRegister(unit uint8, register, value uint16) ([]byte, error) {
	return p.Pack(unit, writeRegisterPDU(register, value))
}

// PackWriteRegisters builds [unit, 0x10, base, count, bytecount, values..., crc].
func (p *RTUPackager) PackWriteRegisters(unit uint8, base uint16, values []uint16) ([]byte, error) {
	pdu, err := writeRegistersPDU(base, values)
	if err != nil {
		return nil, err
	}
	return p.Pack(unit, pdu)
}

// The PDU builders below are shared by the RTU and MBAP framings.

func readRegistersPDU(base, count uint16) ([]byte, error) {
	if count == 0 || count > 125 {
		return nil, fmt.Errorf("invalid register count: %d (must be 1-125)", count)
	}
	pdu := []byte{FuncCodeReadHoldingRegisters, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(pdu[1:], base)
	binary.BigEndian.PutUint16(pdu[3:], count)
	return pdu, nil
}

func writeRegisterPDU(register, value uint16) []byte {
	pdu := []byte{FuncCodeWriteSingleRegister, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(pdu[1:], register)
	binary.BigEndian.PutUint16(pdu[3:], value)
	return pdu
}

func writeRegistersPDU(base uint16, values []uint16) ([]byte, error) {
	if len(values) == 0 || len(values) > MaxWriteRegisters {
		return nil, fmt.Errorf("invalid register count: %d (must be 1-%d)", len(values), MaxWriteRegisters)
	}
	pdu := make([]byte, 6, 6+2*len(values))
	pdu[0] = FuncCodeWriteMultipleRegisters
	binary.BigEndian.PutUint16(pdu[1:], base)
	binary.BigEndian.PutUint16(pdu[3:], uint16(len(values)))
	pdu[5] = byte(2 * len(values))
	for _, v := range values {
		pdu = binary.BigEndian.AppendUint16(pdu, v)
	}
	return pdu, nil
}

// ReadResponseLength is the exact size of a read reply for count registers.
func ReadResponseLength(count uint16) int {
	return 5 + 2*int(count)
}

// UnpackReadResponse validates a 0x03 reply and returns its registers.
func (p *RTUPackager) UnpackReadResponse(unit uint8, count uint16, frame []byte) ([]uint16, error) {
	const op = "read registers"
	if len(frame) != ReadResponseLength(count) {
		return nil, protocolErrorf(op, frame, "response length %d, expected %d", len(frame), ReadResponseLength(count))
	}
	if !VerifyCRC(frame) {
		return nil, protocolErrorf(op, frame, "CRC mismatch: %s", p.crcDetail(frame))
	}
	if frame[0] != unit {
		return nil, protocolErrorf(op, frame, "unit mismatch: expected %d, got %d", unit, frame[0])
	}
	if frame[1] != FuncCodeReadHoldingRegisters {
		return nil, protocolErrorf(op, frame, "unexpected function code 0x%02X", frame[1])
	}
	if int(frame[2]) != 2*int(count) {
		return nil, protocolErrorf(op, frame, "byte count mismatch: expected %d, got %d", 2*int(count), frame[2])
	}
	registers := make([]uint16, count)
	for i := range registers {
		registers[i] = binary.BigEndian.Uint16(frame[3+2*i:])
	}
	return registers, nil
}

// CheckWriteRegisterResponse requires the 0x06 reply to echo the request.
func (p *RTUPackager) CheckWriteRegisterResponse(request, response []byte) error {
	if string(request) != string(response) {
		return protocolErrorf("write register", response, "echo mismatch: sent % X", request)
	}
	return nil
}

// CheckWriteRegistersResponse validates a 0x10 reply against its request.
func (p *RTUPackager) CheckWriteRegistersResponse(request, response []byte) error {
	const op = "write registers"
	if len(response) != 8 {
		return protocolErrorf(op, response, "response length %d, expected 8", len(response))
	}
	if !VerifyCRC(response) {
		return protocolErrorf(op, response, "CRC mismatch: %s", p.crcDetail(response))
	}
	if response[0] != request[0] {
		return protocolErrorf(op, response, "unit mismatch: expected %d, got %d", request[0], response[0])
	}
	if response[1] != FuncCodeWriteMultipleRegisters {
		return protocolErrorf(op, response, "unexpected function code 0x%02X", response[1])
	}
	if base, want := binary.BigEndian.Uint16(response[2:]), binary.BigEndian.Uint16(request[2:]); base != want {
		return protocolErrorf(op, response, "base mismatch: expected %d, got %d", want, base)
	}
	if count, want := binary.BigEndian.Uint16(response[4:]), binary.BigEndian.Uint16(request[4:]); count != want {
		return protocolErrorf(op, response, "count mismatch: expected %d, got %d", want, count)
	}
	return nil
}

func (p *RTUPackager) crcDetail(frame []byte) string {
	dataLen := len(frame) - 2
	calculated := CRC16(frame[:dataLen])
	received := uint16(frame[dataLen]) | uint16(frame[dataLen+1])<<8
	return fmt.Sprintf("calculated=0x%04X, received=0x%04X", calculated, received)
}

// DumpFrame returns a one line annotated hex dump of the frame
func (p *RTUPackager) DumpFrame(frame []byte) string {
	if len(frame) == 0 {
		return "empty frame"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "len=%d unit=%d", len(frame), frame[0])
	if len(frame) >= 2 {
		fmt.Fprintf(&b, " fc=0x%02X", frame[1])
	}
	if len(frame) >= 4 {
		fmt.Fprintf(&b, " crc_ok=%t", VerifyCRC(frame))
	}
	fmt.Fprintf(&b, " [% X]", frame)
	return b.String()
}
