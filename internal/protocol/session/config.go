package session

import (
	"fmt"

	"github.com/danmuck/zmtpwire/internal/protocol"
	"github.com/danmuck/zmtpwire/internal/protocol/frame"
	"github.com/danmuck/zmtpwire/internal/protocol/greeting"
	"github.com/rs/zerolog"
)

// Config is the immutable local side of a session.
type Config struct {
	Role     protocol.Role
	Identity []byte
	Limits   frame.Limits
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		Role:   protocol.RolePair,
		Limits: frame.DefaultLimits(),
	}
}

func (c Config) WithDefaults() Config {
	c.Limits = c.Limits.WithDefaults()
	return c
}

func (c Config) Validate() error {
	if !c.Role.Valid() {
		return fmt.Errorf("%w: code %d", protocol.ErrUnknownRole, uint8(c.Role))
	}
	if len(c.Identity) > greeting.MaxIdentityLen {
		return fmt.Errorf("%w: %d bytes", protocol.ErrIdentityTooLong, len(c.Identity))
	}
	return c.Limits.Validate()
}
