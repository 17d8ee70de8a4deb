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
	"io"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// CommandDelay is the pause a UM meter needs after each command byte.
const CommandDelay = 500 * time.Millisecond

// UMTransport speaks the single-byte command protocol of the UM meters
// over a byte stream such as an RFCOMM socket.
type UMTransport struct {
	mu       sync.Mutex
	conn     io.ReadWriteCloser
	subModel SubModel
	clock    Clock
	logger   io.Writer
	delay    time.Duration
}

// NewUMTransport binds a meter of the given sub-model to conn. A nil clock
// means the wall clock.
func NewUMTransport(conn io.ReadWriteCloser, s SubModel, c Clock) *UMTransport {
	if c == nil {
		c = clock.New()
	}
	return &UMTransport{conn: conn, subModel: s, clock: c, delay: CommandDelay}
}

// SetLogger sets the writer used for debug output.
func (t *UMTransport) SetLogger(logger io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger = logger
}

// SubModel returns the meter variant this transport decodes for.
func (t *UMTransport) SubModel() SubModel { return t.subModel }

func (t *UMTransport) writeRaw(op string, data []byte) error {
	if t.conn == nil {
		return &ConnectionError{Op: op, Err: ErrClosed}
	}
	if t.logger != nil {
		fmt.Fprintf(t.logger, "DEBUG: %s SEND % X\n", op, data)
	}
	n, err := t.conn.Write(data)
	if err != nil {
		return &ConnectionError{Op: op, Err: fmt.Errorf("write failed after %d bytes: %w", n, err)}
	}
	if n != len(data) {
		return &ConnectionError{Op: op, Err: io.ErrShortWrite}
	}
	return nil
}

// Poll requests a status frame and decodes it.
func (t *UMTransport) Poll() (*FixedFrame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writeRaw("poll", []byte{OpPoll}); err != nil {
		return nil, err
	}
	buf := make([]byte, FrameSize)
	n, err := io.ReadFull(t.conn, buf)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || (n > 0 && errors.Is(err, os.ErrDeadlineExceeded)) {
			return nil, &FrameError{Reason: fmt.Sprintf("length %d, expected %d", n, FrameSize)}
		}
		return nil, &ConnectionError{Op: "poll", Err: err}
	}
	if t.logger != nil {
		fmt.Fprintf(t.logger, "DEBUG: poll RECV %d bytes\n", n)
	}
	frame, err := DecodeFrame(buf, t.subModel)
	if err != nil {
		return nil, err
	}
	frame.CollectionTime = t.clock.Now()
	return frame, nil
}

// Send writes one command byte and waits CommandDelay so that the meter is
// ready for the next one.
func (t *UMTransport) Send(cmd UMCommand) error {
	if !cmd.Supports(t.subModel) {
		return fmt.Errorf("rdserial: %s is not supported by %s", cmd.Name, t.subModel.Name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writeRaw(cmd.Name, []byte{cmd.Opcode}); err != nil {
		return err
	}
	t.clock.Sleep(t.delay)
	return nil
}

// SendAll sends commands in order and stops at the first failure.
func (t *UMTransport) SendAll(cmds []UMCommand) error {
	for _, cmd := range cmds {
		if err := t.Send(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying connection.
func (t *UMTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// IsConnected returns true if the connection is still open.
func (t *UMTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}
