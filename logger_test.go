package rdserial

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func newTestLogger(level LogLevel) (*SimpleLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewSimpleLogger(&buf, level, "rdserial")
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	l.SetClock(mock)
	return l, &buf
}

func TestLoggerFormat(t *testing.T) {
	l, buf := newTestLogger(LevelDebug)
	fmt.Fprintf(l, "DEBUG: sleeping %v\n", time.Millisecond)
	l.Write([]byte("plain message"))

	want := "2024-05-01T12:00:00Z [DEBUG] <rdserial> sleeping 1ms\n" +
		"2024-05-01T12:00:00Z [INFO] <rdserial> plain message\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	l, buf := newTestLogger(LevelWarning)
	for _, msg := range []string{
		"DEBUG: filtered",
		"INFO: filtered",
		"[WARNING] shown",
		"warn: shown",
		"ERROR: shown",
	} {
		n, err := l.Write([]byte(msg))
		if err != nil || n != len(msg) {
			t.Fatalf("Write(%q) = %d, %v", msg, n, err)
		}
	}
	if strings.Contains(buf.String(), "filtered") {
		t.Errorf("low level messages leaked: %q", buf.String())
	}
	if got := strings.Count(buf.String(), "shown"); got != 3 {
		t.Errorf("expected 3 messages, got %d: %q", got, buf.String())
	}

	l.SetLevel(LevelNone)
	buf.Reset()
	l.Write([]byte("ERROR: muted"))
	if buf.Len() != 0 {
		t.Errorf("LevelNone should mute everything, got %q", buf.String())
	}
}

func TestLoggerSetLevelFromString(t *testing.T) {
	l, _ := newTestLogger(LevelInfo)
	if err := l.SetLevelFromString("debug"); err != nil {
		t.Fatalf("SetLevelFromString failed: %v", err)
	}
	if l.Level() != LevelDebug || !l.Enabled(LevelDebug) {
		t.Errorf("level = %v", l.Level())
	}
	if err := l.SetLevelFromString("warn"); err != nil || l.Level() != LevelWarning {
		t.Errorf("warn: level = %v, err = %v", l.Level(), err)
	}
	if err := l.SetLevelFromString("INVALID"); err == nil {
		t.Error("expected error for invalid level")
	}
	if l.Level() != LevelWarning {
		t.Error("invalid level must not change the current one")
	}
}

func TestLoggerWithStandardLog(t *testing.T) {
	l, buf := newTestLogger(LevelInfo)
	std := log.New(l, "", 0)
	std.Printf("ERROR: poll failed: %v", "timeout")
	if !strings.HasSuffix(buf.String(), "[ERROR] <rdserial> poll failed: timeout\n") {
		t.Errorf("got %q", buf.String())
	}
}
