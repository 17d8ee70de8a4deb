// Package port opens the byte streams the transports talk over: local
// serial ports through one of several drivers, or a raw TCP stream to a
// serial bridge.
package port

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hootrhino/rdserial"
)

const (
	BackendGoSerial = "goserial"
	BackendBugst    = "bugst"
	BackendTarm     = "tarm"
	BackendTCP      = "tcp"
)

// DefaultConnectDelay gives Bluetooth serial adapters time to settle after
// the stream opens.
const DefaultConnectDelay = 300 * time.Millisecond

// Config selects and parameterises a backend.
type Config struct {
	Backend      string        // goserial (default), bugst, tarm or tcp
	Address      string        // device path, or host:port for tcp
	BaudRate     int           // serial backends only
	Timeout      time.Duration // per-read timeout, 0 blocks
	ConnectDelay time.Duration // pause after a successful open
}

// Sleeper is the part of clock.Clock used for the connect delay.
type Sleeper interface {
	Sleep(d time.Duration)
}

// Opener opens one backend.
type Opener func(cfg Config) (io.ReadWriteCloser, error)

var backends = map[string]Opener{
	BackendGoSerial: openGoSerial,
	BackendBugst:    openBugst,
	BackendTarm:     openTarm,
	BackendTCP:      openTCP,
}

// Backends lists the registered backend names.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks cfg without opening anything.
func Validate(cfg Config) error {
	if _, ok := backends[backendName(cfg)]; !ok {
		return fmt.Errorf("port: unknown backend %q (have %s)", cfg.Backend, strings.Join(Backends(), ", "))
	}
	if cfg.Address == "" {
		return errors.New("port: address is required")
	}
	if backendName(cfg) != BackendTCP && cfg.BaudRate <= 0 {
		return fmt.Errorf("port: invalid baud rate %d", cfg.BaudRate)
	}
	if cfg.Timeout < 0 || cfg.ConnectDelay < 0 {
		return errors.New("port: durations must not be negative")
	}
	return nil
}

func backendName(cfg Config) string {
	if cfg.Backend == "" {
		return BackendGoSerial
	}
	return strings.ToLower(cfg.Backend)
}

// Open opens the configured stream on the wall clock.
func Open(cfg Config) (io.ReadWriteCloser, error) {
	return OpenWithClock(cfg, clock.New())
}

// OpenWithClock opens the configured stream and waits ConnectDelay on c.
// Open failures are *rdserial.ConnectionError.
func OpenWithClock(cfg Config, c Sleeper) (io.ReadWriteCloser, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	open := backends[backendName(cfg)]
	rwc, err := open(cfg)
	if err != nil {
		return nil, &rdserial.ConnectionError{Op: "open " + cfg.Address, Err: err}
	}
	if cfg.ConnectDelay > 0 {
		c.Sleep(cfg.ConnectDelay)
	}
	return &zeroReadGuard{ReadWriteCloser: rwc}, nil
}

// zeroReadGuard turns the (0, nil) reads serial drivers return on timeout
// into os.ErrDeadlineExceeded, so io.ReadFull does not spin.
type zeroReadGuard struct {
	io.ReadWriteCloser
}

func (z *zeroReadGuard) Read(p []byte) (int, error) {
	n, err := z.ReadWriteCloser.Read(p)
	if n == 0 && err == nil && len(p) > 0 {
		return 0, os.ErrDeadlineExceeded
	}
	return n, err
}
