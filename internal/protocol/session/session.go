package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/zmtpwire/internal/observability"
	"github.com/danmuck/zmtpwire/internal/protocol"
	"github.com/danmuck/zmtpwire/internal/protocol/greeting"
	"github.com/danmuck/zmtpwire/internal/protocol/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Peer describes the remote side of a READY session.
type Peer struct {
	SessionID string
	Role      protocol.Role
	Identity  []byte
}

// Handler consumes one inbound message. A nil reply sends nothing back.
type Handler interface {
	Handle(ctx context.Context, peer Peer, msg message.Message) (message.Message, error)
}

type HandlerFunc func(ctx context.Context, peer Peer, msg message.Message) (message.Message, error)

func (f HandlerFunc) Handle(ctx context.Context, peer Peer, msg message.Message) (message.Message, error) {
	return f(ctx, peer, msg)
}

// Stats are per-session counters.
type Stats struct {
	Received uint64
	Sent     uint64
	OpenedAt time.Time
}

// Session owns one connection from greeting until close.
type Session struct {
	id        string
	direction string
	cfg       Config
	log       zerolog.Logger

	conn io.ReadWriteCloser
	rd   *bufio.Reader
	wr   *bufio.Writer

	state  atomic.Int32
	remote greeting.Greeting

	received atomic.Uint64
	sent     atomic.Uint64
	openedAt time.Time

	closeOnce sync.Once
	closeErr  error
}

// Accept runs the greeting on a stream handed over by a listener.
func Accept(ctx context.Context, conn io.ReadWriteCloser, cfg Config) (*Session, error) {
	return open(ctx, conn, cfg, "accept")
}

// Connect runs the greeting on a stream the caller dialed.
func Connect(ctx context.Context, conn io.ReadWriteCloser, cfg Config) (*Session, error) {
	return open(ctx, conn, cfg, "connect")
}

func open(ctx context.Context, conn io.ReadWriteCloser, cfg Config, direction string) (*Session, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s := &Session{
		id:        uuid.NewString(),
		direction: direction,
		cfg:       cfg,
		conn:      conn,
		rd:        bufio.NewReader(conn),
		wr:        bufio.NewWriter(conn),
	}
	base := log.Logger
	if cfg.Logger != nil {
		base = *cfg.Logger
	}
	s.log = base.With().
		Str("session_id", s.id).
		Str("direction", direction).
		Stringer("local_role", cfg.Role).
		Logger()
	s.state.Store(int32(StateNew))

	if err := s.handshake(ctx); err != nil {
		observability.RecordHandshake(cfg.Role.String(), "", false)
		s.fail(err)
		return nil, err
	}
	observability.RecordHandshake(cfg.Role.String(), s.remote.Role.String(), true)
	observability.SessionOpened()
	s.openedAt = time.Now()
	s.log = s.log.With().Stringer("remote_role", s.remote.Role).Logger()
	s.log.Debug().
		Hex("remote_identity", s.remote.Identity).
		Msg("session.ready")
	return s, nil
}

func (s *Session) handshake(ctx context.Context) error {
	if !s.transition(StateNew, StateGreeting) {
		return protocol.ErrSessionClosed
	}
	abort := func() { _ = s.conn.Close() }
	stop := context.AfterFunc(ctx, abort)
	remote, err := greeting.Exchange(s.rd, s.conn, abort, s.cfg.Role, s.cfg.Identity)
	if !stop() {
		// ctx fired and the stream is gone regardless of what Exchange saw.
		return fmt.Errorf("%w: %w", protocol.ErrHandshake, ctx.Err())
	}
	if err != nil {
		return err
	}
	s.remote = remote
	if !s.transition(StateGreeting, StateReady) {
		return protocol.ErrSessionClosed
	}
	return nil
}

// transition moves from -> to; it never leaves CLOSED.
func (s *Session) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) LocalRole() protocol.Role {
	return s.cfg.Role
}

// RemoteRole is valid once the session is READY.
func (s *Session) RemoteRole() protocol.Role {
	return s.remote.Role
}

// RemoteIdentity is the identity announced by the peer; empty when anonymous.
func (s *Session) RemoteIdentity() []byte {
	return s.remote.Identity
}

func (s *Session) Peer() Peer {
	return Peer{
		SessionID: s.id,
		Role:      s.remote.Role,
		Identity:  s.remote.Identity,
	}
}

func (s *Session) Stats() Stats {
	return Stats{
		Received: s.received.Load(),
		Sent:     s.sent.Load(),
		OpenedAt: s.openedAt,
	}
}

// Receive blocks for the next message. When the local role expects a
// delimiter from its peer, the delimiter is checked and stripped. Any error
// closes the session; an orderly end of stream returns io.EOF.
func (s *Session) Receive() (message.Message, error) {
	if s.State() != StateReady {
		return nil, protocol.ErrSessionClosed
	}
	msg, err := message.Read(s.rd, s.cfg.Limits)
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.log.Debug().Msg("session.eof")
			_ = s.Close()
			return nil, io.EOF
		}
		s.fail(err)
		return nil, err
	}
	if message.PrefixFor(s.cfg.Role) == message.PrefixDelimiter {
		if msg, err = message.StripDelimiter(msg); err != nil {
			s.fail(err)
			return nil, err
		}
	}
	s.received.Add(1)
	observability.RecordMessage("in", s.remote.Role.String(), len(msg), msg.Size())
	s.log.Trace().Int("parts", len(msg)).Int("bytes", msg.Size()).Msg("session.receive")
	return msg, nil
}

// Send writes msg with the prefix the remote role requires and flushes it.
// Messages rejected before any byte is written leave the session open.
func (s *Session) Send(msg message.Message) error {
	if s.State() != StateReady {
		return protocol.ErrSessionClosed
	}
	if err := message.Validate(msg, s.cfg.Limits); err != nil {
		return err
	}
	if err := message.Write(s.wr, msg, s.remote.Role, s.remote.Identity, s.cfg.Limits); err != nil {
		s.fail(err)
		return err
	}
	if err := s.wr.Flush(); err != nil {
		s.fail(err)
		return err
	}
	s.sent.Add(1)
	observability.RecordMessage("out", s.remote.Role.String(), len(msg), msg.Size())
	s.log.Trace().Int("parts", len(msg)).Int("bytes", msg.Size()).Msg("session.send")
	return nil
}

// Serve alternates Receive, handler delivery and an optional reply until the
// stream ends, ctx is cancelled, or an error occurs. End of stream and
// cancellation return nil.
func (s *Session) Serve(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		msg, err := s.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		reply, err := h.Handle(ctx, s.Peer(), msg)
		if err != nil {
			s.fail(fmt.Errorf("handler: %w", err))
			return err
		}
		if reply == nil {
			continue
		}
		if err := s.Send(reply); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Close moves the session to CLOSED and closes the stream. It is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		prev := State(s.state.Swap(int32(StateClosed)))
		if prev == StateReady {
			observability.SessionClosed()
		}
		s.closeErr = s.conn.Close()
		s.log.Debug().
			Stringer("from", prev).
			Uint64("received", s.received.Load()).
			Uint64("sent", s.sent.Load()).
			Msg("session.closed")
	})
	return s.closeErr
}

// fail records err and closes the session. Errors surfacing after an explicit
// Close are the expected result of the closed stream and are not counted.
func (s *Session) fail(err error) {
	if s.State() == StateClosed {
		return
	}
	kind := protocol.Kind(err)
	observability.RecordSessionError(kind)
	s.log.Warn().Err(err).Str("kind", kind).Stringer("state", s.State()).Msg("session.failed")
	_ = s.Close()
}
