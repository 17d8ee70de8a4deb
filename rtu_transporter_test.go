package rdserial

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"
)

func newTestTransporter(conn *mockConn, clk *fakeClock) *RTUTransporter {
	return NewRTUTransporter(conn, RTUConfig{BaudRate: 9600, Clock: clk})
}

func TestRTUTransporter_ReadRegisters(t *testing.T) {
	registers := []uint16{500, 100, 498, 12, 6, 2400, 0, 0, 0, 1, 3, 5005, 14}
	conn := newMockConn(readReply(1, registers))
	tr := newTestTransporter(conn, newFakeClock())

	got, err := tr.ReadRegisters(1, 0x00, 13)
	if err != nil {
		t.Fatalf("ReadRegisters failed: %v", err)
	}
	assertUint16Equal(t, registers, got)

	want := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0D, 0x84, 0x0F}
	if !bytes.Equal(conn.written.Bytes(), want) {
		t.Errorf("request = % X, want % X", conn.written.Bytes(), want)
	}
}

func TestRTUTransporter_ReadRegistersCorruptedByte(t *testing.T) {
	registers := []uint16{500, 100, 498, 12, 6, 2400, 0, 0, 0, 1, 3, 5005, 14}
	reply := readReply(1, registers)

	for i := range reply {
		corrupted := append([]byte(nil), reply...)
		corrupted[i] ^= 0x5A
		tr := newTestTransporter(newMockConn(corrupted), newFakeClock())

		_, err := tr.ReadRegisters(1, 0x00, 13)
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Errorf("byte %d corrupted: expected ProtocolError, got %v", i, err)
		}
	}
}

func TestRTUTransporter_ShortAndMissingReplies(t *testing.T) {
	reply := readReply(1, []uint16{1, 2})

	tr := newTestTransporter(newMockConn(reply[:5]), newFakeClock())
	_, err := tr.ReadRegisters(1, 0, 2)
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Errorf("short reply: expected ProtocolError, got %v", err)
	}

	tr = newTestTransporter(newMockConn(), newFakeClock())
	_, err = tr.ReadRegisters(1, 0, 2)
	var cerr *ConnectionError
	if !errors.As(err, &cerr) {
		t.Errorf("no reply: expected ConnectionError, got %v", err)
	}
}

func TestRTUTransporter_WriteRegister(t *testing.T) {
	echo := []byte{0x01, 0x06, 0x00, 0x01, 0x01, 0xF4}
	echo = AppendCRC(echo)

	tr := newTestTransporter(newMockConn(echo), newFakeClock())
	if err := tr.WriteRegister(1, 0x0001, 500); err != nil {
		t.Fatalf("WriteRegister failed: %v", err)
	}

	bad := append([]byte(nil), echo...)
	bad[5] = 0xF5
	bad = AppendCRC(bad[:6])
	tr = newTestTransporter(newMockConn(bad), newFakeClock())
	var perr *ProtocolError
	if err := tr.WriteRegister(1, 0x0001, 500); !errors.As(err, &perr) {
		t.Errorf("echo mismatch: expected ProtocolError, got %v", err)
	}
}

func TestRTUTransporter_WriteRegisters(t *testing.T) {
	ok := AppendCRC([]byte{0x01, 0x10, 0x00, 0x08, 0x00, 0x02})
	conn := newMockConn(ok)
	tr := newTestTransporter(conn, newFakeClock())
	if err := tr.WriteRegisters(1, 0x0008, []uint16{1250, 1000}); err != nil {
		t.Fatalf("WriteRegisters failed: %v", err)
	}
	sent := conn.written.Bytes()
	if len(sent) != 13 || sent[6] != 4 {
		t.Errorf("unexpected request % X", sent)
	}

	tests := []struct {
		name  string
		reply []byte
	}{
		{"wrong count", AppendCRC([]byte{0x01, 0x10, 0x00, 0x08, 0x00, 0x01})},
		{"wrong base", AppendCRC([]byte{0x01, 0x10, 0x00, 0x09, 0x00, 0x02})},
		{"wrong unit", AppendCRC([]byte{0x02, 0x10, 0x00, 0x08, 0x00, 0x02})},
		{"wrong function", AppendCRC([]byte{0x01, 0x06, 0x00, 0x08, 0x00, 0x02})},
		{"bad crc", []byte{0x01, 0x10, 0x00, 0x08, 0x00, 0x02, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTransporter(newMockConn(tt.reply), newFakeClock())
			err := tr.WriteRegisters(1, 0x0008, []uint16{1250, 1000})
			var perr *ProtocolError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ProtocolError, got %v", err)
			}
		})
	}
}

func TestSilentInterval(t *testing.T) {
	tests := []struct {
		baud int
		want time.Duration
	}{
		{9600, 4010416 * time.Nanosecond},
		{19200, 2005208 * time.Nanosecond},
		{38400, 1750 * time.Microsecond},
		{115200, 1750 * time.Microsecond},
	}
	for _, tt := range tests {
		if got := SilentInterval(tt.baud); got != tt.want {
			t.Errorf("SilentInterval(%d) = %v, want %v", tt.baud, got, tt.want)
		}
	}
}

func TestRTUTransporter_SilentIntervalEnforced(t *testing.T) {
	clk := newFakeClock()
	reply := readReply(1, []uint16{7})
	conn := newMockConn(reply, reply, reply)
	tr := newTestTransporter(conn, clk)
	interval := tr.SilentInterval()

	clk.Advance(10 * time.Millisecond)
	if _, err := tr.ReadRegisters(1, 0, 1); err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	if len(clk.sleeps) != 0 {
		t.Fatalf("first read slept %v, want no sleep", clk.sleeps)
	}

	if _, err := tr.ReadRegisters(1, 0, 1); err != nil {
		t.Fatalf("second read failed: %v", err)
	}
	clk.Advance(time.Millisecond)
	if _, err := tr.ReadRegisters(1, 0, 1); err != nil {
		t.Fatalf("third read failed: %v", err)
	}

	want := []time.Duration{interval, interval - time.Millisecond}
	if len(clk.sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", clk.sleeps, want)
	}
	for i := range want {
		if clk.sleeps[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, clk.sleeps[i], want[i])
		}
	}
}

func TestRTUTransporter_Close(t *testing.T) {
	conn := newMockConn()
	tr := newTestTransporter(conn, newFakeClock())
	if !tr.IsConnected() {
		t.Error("IsConnected should be true after creation")
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !conn.closed || tr.IsConnected() {
		t.Error("transport should be closed")
	}
	_, err := tr.ReadRegisters(1, 0, 1)
	var cerr *ConnectionError
	if !errors.As(err, &cerr) || !errors.Is(err, ErrClosed) {
		t.Errorf("expected ConnectionError wrapping ErrClosed, got %v", err)
	}
}

// deadlineReader returns its data and then a read timeout.
type deadlineReader struct {
	data []byte
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if len(d.data) == 0 {
		return 0, os.ErrDeadlineExceeded
	}
	n := copy(p, d.data)
	d.data = d.data[n:]
	return n, nil
}

func TestRTUTransporterTimeouts(t *testing.T) {
	reply := readReply(1, []uint16{1, 2, 3})

	partial := &mockConn{Reader: &deadlineReader{data: reply[:4]}}
	transport := NewRTUTransporter(partial, RTUConfig{BaudRate: 9600, Clock: newFakeClock()})
	_, err := transport.ReadRegisters(1, 0, 3)
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Errorf("partial reply then timeout: expected ProtocolError, got %v", err)
	}

	silent := &mockConn{Reader: &deadlineReader{}}
	transport = NewRTUTransporter(silent, RTUConfig{BaudRate: 9600, Clock: newFakeClock()})
	_, err = transport.ReadRegisters(1, 0, 3)
	var ce *ConnectionError
	if !errors.As(err, &ce) || !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("no reply: expected ConnectionError wrapping the timeout, got %v", err)
	}
}
