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

// Clock is the part of clock.Clock used for frame pacing.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RTUConfig holds configuration parameters for RTU transporter
type RTUConfig struct {
	BaudRate int
	Clock    Clock     // defaults to the wall clock
	Logger   io.Writer // debug output, may be nil
}

// DefaultRTUConfig returns default configuration
func DefaultRTUConfig() RTUConfig {
	return RTUConfig{
		BaudRate: 9600,
	}
}

// SilentInterval returns the 3.5 character quiet time required between
// frames at the given baud rate, with 11 bits per character. Above 19200
// baud the fixed 1.75ms value is used.
func SilentInterval(baudRate int) time.Duration {
	if baudRate > 19200 {
		return 1750 * time.Microsecond
	}
	if baudRate <= 0 {
		baudRate = 9600
	}
	return time.Duration(3.5 * 11 * float64(time.Second) / float64(baudRate))
}

// RTUTransporter is a half-duplex Modbus RTU client over a byte stream.
// It never retries; callers decide on retry policy.
type RTUTransporter struct {
	mu             sync.Mutex
	port           io.ReadWriteCloser
	packager       *RTUPackager
	clock          Clock
	logger         io.Writer
	silentInterval time.Duration
	lastFrameEnd   time.Time
}

// NewRTUTransporter creates a new RTUTransporter bound to port.
func NewRTUTransporter(port io.ReadWriteCloser, config RTUConfig) *RTUTransporter {
	c := config.Clock
	if c == nil {
		c = clock.New()
	}
	return &RTUTransporter{
		port:           port,
		packager:       NewRTUPackager(),
		clock:          c,
		logger:         config.Logger,
		silentInterval: SilentInterval(config.BaudRate),
		lastFrameEnd:   c.Now(),
	}
}

// SetLogger sets the writer used for debug output.
func (t *RTUTransporter) SetLogger(logger io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger = logger
}

// SilentInterval returns the configured inter-frame quiet time.
func (t *RTUTransporter) SilentInterval() time.Duration {
	return t.silentInterval
}

func (t *RTUTransporter) debugf(format string, args ...any) {
	if t.logger != nil {
		fmt.Fprintf(t.logger, "DEBUG: "+format+"\n", args...)
	}
}

// send waits out the silent interval, then writes the whole frame.
func (t *RTUTransporter) send(op string, frame []byte) (int, error) {
	if t.port == nil {
		return 0, &ConnectionError{Op: op, Err: ErrClosed}
	}
	if len(frame) == 0 {
		return 0, nil
	}
	if wait := t.lastFrameEnd.Add(t.silentInterval).Sub(t.clock.Now()); wait > 0 {
		t.debugf("sleeping %v for 3.5 char (%v) quiet period", wait, t.silentInterval)
		t.clock.Sleep(wait)
	}
	t.debugf("SEND %s", t.packager.DumpFrame(frame))
	written := 0
	for written < len(frame) {
		n, err := t.port.Write(frame[written:])
		written += n
		if err != nil {
			t.lastFrameEnd = t.clock.Now()
			return written, &ConnectionError{Op: op, Err: fmt.Errorf("write failed after %d bytes: %w", written, err)}
		}
		if n == 0 {
			t.lastFrameEnd = t.clock.Now()
			return written, &ConnectionError{Op: op, Err: io.ErrShortWrite}
		}
	}
	t.lastFrameEnd = t.clock.Now()
	return written, nil
}

// recv blocks until exactly size bytes have been read.
func (t *RTUTransporter) recv(op string, size int) ([]byte, error) {
	if t.port == nil {
		return nil, &ConnectionError{Op: op, Err: ErrClosed}
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(t.port, buf)
	t.lastFrameEnd = t.clock.Now()
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || (n > 0 && errors.Is(err, os.ErrDeadlineExceeded)) {
			return nil, protocolErrorf(op, buf[:n], "short response: %d of %d bytes", n, size)
		}
		return nil, &ConnectionError{Op: op, Err: err}
	}
	t.debugf("RECV %s", t.packager.DumpFrame(buf))
	return buf, nil
}

func (t *RTUTransporter) exchange(op string, request []byte, responseLen int) ([]byte, error) {
	if _, err := t.send(op, request); err != nil {
		return nil, err
	}
	return t.recv(op, responseLen)
}

// ReadRegisters reads count holding registers starting at base.
func (t *RTUTransporter) ReadRegisters(unit uint8, base, count uint16) ([]uint16, error) {
	request, err := t.packager.PackReadRegisters(unit, base, count)
	if err != nil {
		return nil, fmt.Errorf("rdserial: read registers: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	response, err := t.exchange("read registers", request, ReadResponseLength(count))
	if err != nil {
		return nil, err
	}
	return t.packager.UnpackReadResponse(unit, count, response)
}

// WriteRegister writes one register with function code 0x06. The reply
// must echo the request.
func (t *RTUTransporter) WriteRegister(unit uint8, register, value uint16) error {
	request, err := t.packager.PackWriteRegister(unit, register, value)
	if err != nil {
		return fmt.Errorf("rdserial: write register: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	response, err := t.exchange("write register", request, len(request))
	if err != nil {
		return err
	}
	return t.packager.CheckWriteRegisterResponse(request, response)
}

// WriteRegisters writes up to MaxWriteRegisters contiguous registers with
// function code 0x10. It does not split longer runs.
func (t *RTUTransporter) WriteRegisters(unit uint8, base uint16, values []uint16) error {
	request, err := t.packager.PackWriteRegisters(unit, base, values)
	if err != nil {
		return fmt.Errorf("rdserial: write registers: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	response, err := t.exchange("write registers", request, 8)
	if err != nil {
		return err
	}
	return t.packager.CheckWriteRegistersResponse(request, response)
}

// Close closes the underlying stream
func (t *RTUTransporter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}

	err := t.port.Close()
	t.port = nil
	return err
}

// IsConnected returns true if the port is still open
func (t *RTUTransporter) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}
