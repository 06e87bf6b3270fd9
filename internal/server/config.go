package server

import (
	"strings"
	"time"

	"github.com/danmuck/zmtpwire/internal/protocol/session"
)

// Config is the transport side of the receiver: where to listen and how long
// each stream operation may block. Zero timeouts disable the deadline.
type Config struct {
	ListenAddr       string
	ReuseAddr        bool
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	// Hello, when set, is sent once right after the greeting, before the first
	// receive. Useful when a ROUTER peer waits to hear first.
	Hello   []byte
	Session session.Config
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:       "127.0.0.1:5555",
		ReuseAddr:        true,
		HandshakeTimeout: 5 * time.Second,
		ReadTimeout:      0,
		WriteTimeout:     15 * time.Second,
		Session:          session.DefaultConfig(),
	}
}

func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = DefaultConfig().ListenAddr
	}
	c.Session = c.Session.WithDefaults()
	return c
}
