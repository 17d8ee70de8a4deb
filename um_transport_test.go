package rdserial

import (
	"bytes"
	"errors"
	"testing"
)

func TestUMTransportPoll(t *testing.T) {
	conn := newMockConn(sampleFrame(UM34C))
	c := newFakeClock()
	transport := NewUMTransport(conn, UM34C, c)

	f, err := transport.Poll()
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if !bytes.Equal(conn.written.Bytes(), []byte{0xF0}) {
		t.Errorf("wrote % X, want F0", conn.written.Bytes())
	}
	if !f.CollectionTime.Equal(c.Now()) {
		t.Errorf("collection time %v, want %v", f.CollectionTime, c.Now())
	}
	if f.Fields.Float("volts") != 51.23 {
		t.Errorf("volts = %v", f.Fields.Float("volts"))
	}
}

func TestUMTransportPollShortFrame(t *testing.T) {
	conn := newMockConn(sampleFrame(UM24C)[:100])
	transport := NewUMTransport(conn, UM24C, newFakeClock())

	_, err := transport.Poll()
	var fe *FrameError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FrameError, got %v", err)
	}
}

func TestUMTransportPollNoReply(t *testing.T) {
	transport := NewUMTransport(newMockConn(), UM24C, newFakeClock())
	_, err := transport.Poll()
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
}

func TestUMTransportPollWrongMarkers(t *testing.T) {
	transport := NewUMTransport(newMockConn(sampleFrame(UM34C)), UM25C, newFakeClock())
	_, err := transport.Poll()
	var fe *FrameError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FrameError, got %v", err)
	}
}

func TestUMTransportSendPacing(t *testing.T) {
	conn := newMockConn()
	c := newFakeClock()
	transport := NewUMTransport(conn, UM25C, c)

	set, _ := SetDataGroupCommand(3)
	err := transport.SendAll([]UMCommand{NextScreenCommand(), set, ClearDataGroupCommand()})
	if err != nil {
		t.Fatalf("SendAll failed: %v", err)
	}
	if !bytes.Equal(conn.written.Bytes(), []byte{0xF1, 0xA3, 0xF4}) {
		t.Errorf("wrote % X", conn.written.Bytes())
	}
	if len(c.sleeps) != 3 {
		t.Fatalf("expected 3 pauses, got %v", c.sleeps)
	}
	for _, d := range c.sleeps {
		if d != CommandDelay {
			t.Errorf("pause %v, want %v", d, CommandDelay)
		}
	}
}

func TestUMTransportUnsupportedCommand(t *testing.T) {
	conn := newMockConn()
	transport := NewUMTransport(conn, UM24C, newFakeClock())

	err := transport.SendAll([]UMCommand{PreviousScreenCommand(), NextScreenCommand()})
	if err == nil {
		t.Fatal("expected error for previous screen on UM24C")
	}
	if conn.written.Len() != 0 {
		t.Errorf("nothing should be written, got % X", conn.written.Bytes())
	}
}

func TestUMTransportClose(t *testing.T) {
	conn := newMockConn()
	transport := NewUMTransport(conn, UM24C, newFakeClock())
	if !transport.IsConnected() {
		t.Error("IsConnected should be true after creation")
	}
	if err := transport.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !conn.closed || transport.IsConnected() {
		t.Error("transport should be closed")
	}
	err := transport.Send(PollCommand())
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
