package port

import (
	"io"
	"net"
	"time"
)

// deadlineConn applies the read timeout before every read, the way the
// RTU-over-TCP transporter set deadlines per frame.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func openTCP(cfg Config) (io.ReadWriteCloser, error) {
	dialTimeout := cfg.Timeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	conn, err := net.DialTimeout("tcp", cfg.Address, dialTimeout)
	if err != nil {
		return nil, err
	}
	return &deadlineConn{Conn: conn, timeout: cfg.Timeout}, nil
}
