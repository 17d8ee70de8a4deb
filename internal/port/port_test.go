package port

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/hootrhino/rdserial"
)

type recordingSleeper struct {
	sleeps []time.Duration
}

func (r *recordingSleeper) Sleep(d time.Duration) { r.sleeps = append(r.sleeps, d) }

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default backend", Config{Address: "/dev/ttyUSB0", BaudRate: 9600}, false},
		{"tcp needs no baud", Config{Backend: "tcp", Address: "127.0.0.1:4001"}, false},
		{"backend is case insensitive", Config{Backend: "BUGST", Address: "COM3", BaudRate: 9600}, false},
		{"unknown backend", Config{Backend: "usb", Address: "x", BaudRate: 9600}, true},
		{"missing address", Config{BaudRate: 9600}, true},
		{"missing baud", Config{Backend: "tarm", Address: "/dev/ttyS0"}, true},
		{"negative timeout", Config{Address: "/dev/ttyS0", BaudRate: 9600, Timeout: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBackends(t *testing.T) {
	want := []string{"bugst", "goserial", "tarm", "tcp"}
	got := Backends()
	if len(got) != len(want) {
		t.Fatalf("Backends() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Backends() = %v, want %v", got, want)
		}
	}
}

func TestOpenTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		// answer a poll byte with a short greeting
		conn.Write([]byte{buf[0], 0x01, 0x02})
	}()

	sleeper := &recordingSleeper{}
	rwc, err := OpenWithClock(Config{
		Backend:      BackendTCP,
		Address:      ln.Addr().String(),
		Timeout:      2 * time.Second,
		ConnectDelay: 300 * time.Millisecond,
	}, sleeper)
	if err != nil {
		t.Fatalf("OpenWithClock failed: %v", err)
	}
	defer rwc.Close()

	if len(sleeper.sleeps) != 1 || sleeper.sleeps[0] != 300*time.Millisecond {
		t.Errorf("connect delay sleeps = %v", sleeper.sleeps)
	}
	if _, err := rwc.Write([]byte{0xF0}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	reply := make([]byte, 3)
	if _, err := io.ReadFull(rwc, reply); err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}
	if !bytes.Equal(reply, []byte{0xF0, 0x01, 0x02}) {
		t.Errorf("reply = % X", reply)
	}
}

func TestOpenTCPReadTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	rwc, err := OpenWithClock(Config{Backend: BackendTCP, Address: ln.Addr().String(), Timeout: 20 * time.Millisecond}, &recordingSleeper{})
	if err != nil {
		t.Fatalf("OpenWithClock failed: %v", err)
	}
	defer rwc.Close()
	defer func() {
		select {
		case c := <-accepted:
			c.Close()
		default:
		}
	}()

	_, err = rwc.Read(make([]byte, 8))
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestOpenFailureIsConnectionError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = OpenWithClock(Config{Backend: BackendTCP, Address: addr, Timeout: time.Second}, &recordingSleeper{})
	var ce *rdserial.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
}

func TestOpenInvalidConfig(t *testing.T) {
	_, err := Open(Config{Backend: "usb", Address: "x"})
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

type scriptedReader struct {
	reads [][]byte
}

func (s *scriptedReader) Read(p []byte) (int, error) {
	if len(s.reads) == 0 {
		return 0, io.EOF
	}
	next := s.reads[0]
	s.reads = s.reads[1:]
	return copy(p, next), nil
}

func (s *scriptedReader) Write(p []byte) (int, error) { return len(p), nil }
func (s *scriptedReader) Close() error                { return nil }

func TestZeroReadGuard(t *testing.T) {
	g := &zeroReadGuard{ReadWriteCloser: &scriptedReader{reads: [][]byte{{0x01, 0x02}, {}}}}
	buf := make([]byte, 4)
	n, err := io.ReadFull(g, buf)
	if n != 2 || !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("ReadFull = %d, %v; want 2, deadline exceeded", n, err)
	}
	if _, err := g.Read(buf); err != io.EOF {
		t.Errorf("errors from the driver must pass through, got %v", err)
	}
}
