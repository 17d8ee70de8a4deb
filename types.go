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
	"errors"
	"fmt"
)

// ErrClosed is wrapped by ConnectionError when an operation is attempted on a
// transport whose stream has been closed.
var ErrClosed = errors.New("stream closed")

// ConnectionError reports that the byte stream could not be used: it was
// never opened, was closed, or a read/write on it failed.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rdserial: connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed or unexpected reply: bad CRC, wrong unit
// or function code, wrong byte count, echo mismatch, or a short response.
type ProtocolError struct {
	Op     string
	Reason string
	Frame  []byte
}

func (e *ProtocolError) Error() string {
	if len(e.Frame) == 0 {
		return fmt.Sprintf("rdserial: protocol error during %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("rdserial: protocol error during %s: %s (frame % X)", e.Op, e.Reason, e.Frame)
}

// FrameError reports a fixed frame of the wrong length or with bad markers.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string {
	return "rdserial: invalid frame: " + e.Reason
}

// UnknownFieldError is returned when a command names a field that is not
// part of the active map.
type UnknownFieldError struct {
	Map   string
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("rdserial: unknown field %q in %s map", e.Field, e.Map)
}

// DecodeError is returned when an enumerated register holds a value outside
// its closed set.
type DecodeError struct {
	Field string
	Raw   uint32
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("rdserial: field %s: invalid value %d", e.Field, e.Raw)
}

func protocolErrorf(op string, frame []byte, format string, args ...any) error {
	return &ProtocolError{Op: op, Reason: fmt.Sprintf(format, args...), Frame: frame}
}
