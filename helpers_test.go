package rdserial

import (
	"bytes"
	"io"
	"testing"
	"time"
)

// mockConn is a simple in-memory ReadWriteCloser for testing.
type mockConn struct {
	io.Reader
	written bytes.Buffer
	closed  bool
}

func newMockConn(replies ...[]byte) *mockConn {
	return &mockConn{Reader: bytes.NewReader(bytes.Join(replies, nil))}
}

func (m *mockConn) Write(p []byte) (int, error) {
	return m.written.Write(p)
}

func (m *mockConn) Close() error {
	m.closed = true
	return nil
}

// fakeClock records sleeps and only advances when told to.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// assertUint16Equal checks if two slices of uint16 are equal.
func assertUint16Equal(t *testing.T, expected []uint16, actual []uint16) {
	t.Helper()
	if len(expected) != len(actual) {
		t.Errorf("Expected length %d, but got %d", len(expected), len(actual))
		return
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Errorf("Expected %v, but got %v", expected, actual)
			return
		}
	}
}

// readReply builds a valid 0x03 reply carrying registers.
func readReply(unit uint8, registers []uint16) []byte {
	frame := []byte{unit, FuncCodeReadHoldingRegisters, byte(2 * len(registers))}
	for _, r := range registers {
		frame = append(frame, byte(r>>8), byte(r))
	}
	return AppendCRC(frame)
}

// fakeTransport is a RegisterTransport backed by a register array.
type fakeTransport struct {
	registers map[uint16]uint16
	writes    []WriteRun
	reads     [][2]uint16
	failAt    int // fail the n-th write (1-based), 0 never
	err       error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{registers: make(map[uint16]uint16)}
}

func (f *fakeTransport) ReadRegisters(unit uint8, base, count uint16) ([]uint16, error) {
	f.reads = append(f.reads, [2]uint16{base, count})
	if f.err != nil {
		return nil, f.err
	}
	out := make([]uint16, count)
	for i := range out {
		out[i] = f.registers[base+uint16(i)]
	}
	return out, nil
}

func (f *fakeTransport) WriteRegister(unit uint8, register, value uint16) error {
	return f.WriteRegisters(unit, register, []uint16{value})
}

func (f *fakeTransport) WriteRegisters(unit uint8, base uint16, values []uint16) error {
	f.writes = append(f.writes, WriteRun{Start: base, Values: append([]uint16(nil), values...)})
	if f.failAt == len(f.writes) {
		return &ProtocolError{Op: "write registers", Reason: "injected failure"}
	}
	for i, v := range values {
		f.registers[base+uint16(i)] = v
	}
	return nil
}
