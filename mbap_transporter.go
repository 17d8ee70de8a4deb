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
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

const (
	// MBAPHeaderLength is transaction id, protocol id, length and unit id.
	MBAPHeaderLength = 7
	// MaxPDULength is the largest Modbus PDU.
	MaxPDULength = 253

	mbapProtocolID = 0x0000
	// replies with a stale transaction id are skipped this many times
	mbapMaxStale = 3
)

// MBAPPackager frames PDUs for Modbus TCP gateways placed in front of a
// supply's RS-485 or TTL port.
type MBAPPackager struct{}

// NewMBAPPackager creates a new MBAP packager.
func NewMBAPPackager() *MBAPPackager {
	return &MBAPPackager{}
}

// Pack prefixes pdu with an MBAP header.
func (p *MBAPPackager) Pack(transactionID uint16, unit uint8, pdu []byte) ([]byte, error) {
	if len(pdu) == 0 {
		return nil, fmt.Errorf("PDU cannot be empty")
	}
	if len(pdu) > MaxPDULength {
		return nil, fmt.Errorf("PDU length %d exceeds maximum %d bytes", len(pdu), MaxPDULength)
	}
	frame := make([]byte, MBAPHeaderLength, MBAPHeaderLength+len(pdu))
	binary.BigEndian.PutUint16(frame[0:], transactionID)
	binary.BigEndian.PutUint16(frame[2:], mbapProtocolID)
	binary.BigEndian.PutUint16(frame[4:], uint16(len(pdu)+1))
	frame[6] = unit
	return append(frame, pdu...), nil
}

// Unpack splits a complete MBAP frame.
func (p *MBAPPackager) Unpack(frame []byte) (transactionID uint16, unit uint8, pdu []byte, err error) {
	if len(frame) < MBAPHeaderLength+1 {
		return 0, 0, nil, fmt.Errorf("frame too short: %d bytes", len(frame))
	}
	if id := binary.BigEndian.Uint16(frame[2:]); id != mbapProtocolID {
		return 0, 0, nil, fmt.Errorf("invalid protocol identifier: 0x%04X", id)
	}
	if length := int(binary.BigEndian.Uint16(frame[4:])); length != len(frame)-6 {
		return 0, 0, nil, fmt.Errorf("length field mismatch: header indicates %d, frame carries %d", length, len(frame)-6)
	}
	return binary.BigEndian.Uint16(frame[0:]), frame[6], frame[MBAPHeaderLength:], nil
}

// MBAPTransporter speaks Modbus TCP framing over a byte stream. It
// implements RegisterTransport, so supplies reached through a Modbus TCP
// gateway are polled and commanded exactly like RTU ones.
type MBAPTransporter struct {
	mu            sync.Mutex
	conn          io.ReadWriteCloser
	packager      *MBAPPackager
	logger        io.Writer
	transactionID atomic.Uint32
}

// NewMBAPTransporter creates a transporter bound to conn.
func NewMBAPTransporter(conn io.ReadWriteCloser, logger io.Writer) *MBAPTransporter {
	return &MBAPTransporter{conn: conn, packager: NewMBAPPackager(), logger: logger}
}

func (t *MBAPTransporter) debugf(format string, args ...any) {
	if t.logger != nil {
		fmt.Fprintf(t.logger, "DEBUG: "+format+"\n", args...)
	}
}

func (t *MBAPTransporter) nextTransactionID() uint16 {
	return uint16(t.transactionID.Add(1))
}

// receive reads one complete frame.
func (t *MBAPTransporter) receive(op string) ([]byte, error) {
	header := make([]byte, MBAPHeaderLength)
	n, err := io.ReadFull(t.conn, header)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || (n > 0 && errors.Is(err, os.ErrDeadlineExceeded)) {
			return nil, protocolErrorf(op, header[:n], "short MBAP header: %d of %d bytes", n, MBAPHeaderLength)
		}
		return nil, &ConnectionError{Op: op, Err: err}
	}
	length := int(binary.BigEndian.Uint16(header[4:]))
	if length < 2 || length > MaxPDULength+1 {
		return nil, protocolErrorf(op, header, "invalid length field %d", length)
	}
	frame := make([]byte, MBAPHeaderLength+length-1)
	copy(frame, header)
	if n, err := io.ReadFull(t.conn, frame[MBAPHeaderLength:]); err != nil {
		return nil, protocolErrorf(op, frame[:MBAPHeaderLength+n], "short PDU: %v", err)
	}
	t.debugf("RECV % X", frame)
	return frame, nil
}

// exchange sends pdu and returns the reply PDU carrying the same
// transaction id. Exception replies become ProtocolError.
func (t *MBAPTransporter) exchange(op string, unit uint8, pdu []byte) ([]byte, error) {
	if t.conn == nil {
		return nil, &ConnectionError{Op: op, Err: ErrClosed}
	}
	txID := t.nextTransactionID()
	request, err := t.packager.Pack(txID, unit, pdu)
	if err != nil {
		return nil, fmt.Errorf("rdserial: %s: %w", op, err)
	}
	t.debugf("SEND % X", request)
	if _, err := t.conn.Write(request); err != nil {
		return nil, &ConnectionError{Op: op, Err: err}
	}

	for stale := 0; ; stale++ {
		frame, err := t.receive(op)
		if err != nil {
			return nil, err
		}
		gotID, gotUnit, reply, err := t.packager.Unpack(frame)
		if err != nil {
			return nil, protocolErrorf(op, frame, "%v", err)
		}
		if gotID != txID {
			if stale == mbapMaxStale {
				return nil, protocolErrorf(op, frame, "no reply for transaction 0x%04X", txID)
			}
			t.debugf("skipping reply for transaction 0x%04X, want 0x%04X", gotID, txID)
			continue
		}
		if gotUnit != unit {
			return nil, protocolErrorf(op, frame, "unit mismatch: expected %d, got %d", unit, gotUnit)
		}
		if reply[0] == pdu[0]|0x80 {
			code := byte(0)
			if len(reply) > 1 {
				code = reply[1]
			}
			return nil, protocolErrorf(op, frame, "exception code 0x%02X", code)
		}
		if reply[0] != pdu[0] {
			return nil, protocolErrorf(op, frame, "unexpected function code 0x%02X", reply[0])
		}
		return reply, nil
	}
}

// ReadRegisters reads count holding registers starting at base.
func (t *MBAPTransporter) ReadRegisters(unit uint8, base, count uint16) ([]uint16, error) {
	const op = "read registers"
	pdu, err := readRegistersPDU(base, count)
	if err != nil {
		return nil, fmt.Errorf("rdserial: %s: %w", op, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	reply, err := t.exchange(op, unit, pdu)
	if err != nil {
		return nil, err
	}
	if len(reply) != 2+2*int(count) || int(reply[1]) != 2*int(count) {
		return nil, protocolErrorf(op, reply, "byte count mismatch: expected %d", 2*int(count))
	}
	registers := make([]uint16, count)
	for i := range registers {
		registers[i] = binary.BigEndian.Uint16(reply[2+2*i:])
	}
	return registers, nil
}

// WriteRegister writes one register with function code 0x06. The reply
// must echo the request.
func (t *MBAPTransporter) WriteRegister(unit uint8, register, value uint16) error {
	const op = "write register"
	pdu := writeRegisterPDU(register, value)
	t.mu.Lock()
	defer t.mu.Unlock()
	reply, err := t.exchange(op, unit, pdu)
	if err != nil {
		return err
	}
	if string(reply) != string(pdu) {
		return protocolErrorf(op, reply, "echo mismatch: sent % X", pdu)
	}
	return nil
}

// WriteRegisters writes up to MaxWriteRegisters contiguous registers with
// function code 0x10.
func (t *MBAPTransporter) WriteRegisters(unit uint8, base uint16, values []uint16) error {
	const op = "write registers"
	pdu, err := writeRegistersPDU(base, values)
	if err != nil {
		return fmt.Errorf("rdserial: %s: %w", op, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	reply, err := t.exchange(op, unit, pdu)
	if err != nil {
		return err
	}
	if len(reply) != 5 || string(reply[1:5]) != string(pdu[1:5]) {
		return protocolErrorf(op, reply, "reply does not match base 0x%04X count %d", base, len(values))
	}
	return nil
}

// Close closes the underlying stream.
func (t *MBAPTransporter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// IsConnected returns true if the stream is still open.
func (t *MBAPTransporter) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}
