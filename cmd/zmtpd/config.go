package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/zmtpwire/internal/protocol"
	"github.com/danmuck/zmtpwire/internal/protocol/frame"
	"github.com/danmuck/zmtpwire/internal/server"
)

type fileConfig struct {
	Listen           string `toml:"listen"`
	Role             string `toml:"role"`
	Identity         string `toml:"identity"`
	Reply            string `toml:"reply"`
	Hello            string `toml:"hello"`
	AdminListen      string `toml:"admin_listen"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	ReadTimeout      string `toml:"read_timeout"`
	WriteTimeout     string `toml:"write_timeout"`
	MaxPayloadBytes  int64  `toml:"max_payload_bytes"`
	ReuseAddr        bool   `toml:"reuse_addr"`
}

// daemonConfig is everything zmtpd needs to run.
type daemonConfig struct {
	Server      server.Config
	Reply       []byte
	AdminListen string
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{Server: server.DefaultConfig()}
}

func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("load zmtpd config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return daemonConfig{}, fmt.Errorf("load zmtpd config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("listen") {
		cfg.Server.ListenAddr = strings.TrimSpace(raw.Listen)
	}

	if meta.IsDefined("role") {
		role, err := protocol.ParseRole(raw.Role)
		if err != nil {
			return daemonConfig{}, fmt.Errorf("parse role: %w", err)
		}
		cfg.Server.Session.Role = role
	}

	if meta.IsDefined("identity") {
		cfg.Server.Session.Identity = []byte(raw.Identity)
	}

	if meta.IsDefined("reply") {
		cfg.Reply = []byte(raw.Reply)
	}

	if meta.IsDefined("hello") {
		cfg.Server.Hello = []byte(raw.Hello)
	}

	if meta.IsDefined("admin_listen") {
		cfg.AdminListen = strings.TrimSpace(raw.AdminListen)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.Server.HandshakeTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.Server.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Server.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return daemonConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		if v < 0 {
			return daemonConfig{}, fmt.Errorf("parse %s: negative duration %s", d.key, v)
		}
		*d.dst = v
	}

	if meta.IsDefined("max_payload_bytes") {
		if raw.MaxPayloadBytes <= 0 {
			return daemonConfig{}, fmt.Errorf("max_payload_bytes must be positive, got %d", raw.MaxPayloadBytes)
		}
		limits := frame.Limits{MaxPayloadBytes: uint64(raw.MaxPayloadBytes)}
		if err := limits.Validate(); err != nil {
			return daemonConfig{}, fmt.Errorf("max_payload_bytes: %w", err)
		}
		cfg.Server.Session.Limits = limits
	}

	if meta.IsDefined("reuse_addr") {
		cfg.Server.ReuseAddr = raw.ReuseAddr
	}

	if err := cfg.Server.Session.Validate(); err != nil {
		return daemonConfig{}, err
	}
	return cfg, nil
}
