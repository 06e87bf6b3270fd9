package server

import (
	"net"
	"time"
)

// deadlineConn arms a fresh deadline before every read and write so a stalled
// peer surfaces as an I/O error instead of blocking forever.
type deadlineConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
}

func withDeadlines(conn net.Conn, read, write time.Duration) net.Conn {
	if read <= 0 && write <= 0 {
		return conn
	}
	return &deadlineConn{Conn: conn, read: read, write: write}
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.write > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
