// Package server runs the accept loop: one goroutine and one session per
// inbound connection, with nothing shared between sessions except the
// immutable configuration and the registry used for admin snapshots.
package server

import (
	"context"
	"encoding/hex"
	"errors"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/zmtpwire/internal/observability"
	"github.com/danmuck/zmtpwire/internal/protocol/message"
	"github.com/danmuck/zmtpwire/internal/protocol/session"
	"github.com/rs/zerolog"
)

var ErrNoHandler = errors.New("server: handler required")

// SessionInfo is the admin view of one live session.
type SessionInfo struct {
	ID             string    `json:"id"`
	RemoteAddr     string    `json:"remote_addr"`
	LocalRole      string    `json:"local_role"`
	RemoteRole     string    `json:"remote_role"`
	RemoteIdentity string    `json:"remote_identity"`
	State          string    `json:"state"`
	OpenedAt       time.Time `json:"opened_at"`
	Received       uint64    `json:"received"`
	Sent           uint64    `json:"sent"`
}

type tracked struct {
	sess       *session.Session
	remoteAddr string
}

// Server accepts connections and drives one session per connection.
type Server struct {
	cfg     Config
	handler session.Handler
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]tracked

	active atomic.Int64
	wg     sync.WaitGroup
}

func New(cfg Config, handler session.Handler) (*Server, error) {
	if handler == nil {
		return nil, ErrNoHandler
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		handler:  handler,
		log:      observability.Component("server"),
		sessions: make(map[string]tracked),
	}, nil
}

// Listen opens the TCP listener, setting SO_REUSEADDR when configured.
func (s *Server) Listen(ctx context.Context) (net.Listener, error) {
	lc := net.ListenConfig{}
	if s.cfg.ReuseAddr {
		lc.Control = reuseAddrControl
	}
	return lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.Listen(ctx)
	if err != nil {
		return err
	}
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Stringer("role", s.cfg.Session.Role).
		Msg("server.listening")
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on an existing listener. It returns nil once ctx
// is cancelled and every connection handler has finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-done:
		}
	}()
	defer s.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	active := s.active.Add(1)
	s.log.Debug().Str("remote", remote).Int64("active", active).Msg("server.connected")
	defer func() {
		remaining := s.active.Add(-1)
		s.log.Debug().Str("remote", remote).Int64("active", remaining).Msg("server.disconnected")
	}()

	stream := withDeadlines(conn, s.cfg.ReadTimeout, s.cfg.WriteTimeout)
	hctx := ctx
	if s.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
		defer cancel()
	}
	sess, err := session.Accept(hctx, stream, s.cfg.Session)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", remote).Msg("server.handshake_failed")
		return
	}
	defer sess.Close()

	s.track(sess, remote)
	defer s.untrack(sess)

	s.log.Info().
		Str("remote", remote).
		Str("session_id", sess.ID()).
		Stringer("remote_role", sess.RemoteRole()).
		Str("remote_identity", hex.EncodeToString(sess.RemoteIdentity())).
		Msg("server.session_ready")

	if len(s.cfg.Hello) > 0 {
		if err := sess.Send(message.Bare(s.cfg.Hello)); err != nil {
			s.log.Warn().Err(err).Str("session_id", sess.ID()).Msg("server.hello_failed")
			return
		}
	}
	if err := sess.Serve(ctx, s.handler); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID()).Msg("server.session_failed")
	}
}

func (s *Server) track(sess *session.Session, remoteAddr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID()] = tracked{sess: sess, remoteAddr: remoteAddr}
}

func (s *Server) untrack(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess.ID())
}

// Snapshot lists live sessions ordered by open time.
func (s *Server) Snapshot() []SessionInfo {
	s.mu.Lock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, t := range s.sessions {
		stats := t.sess.Stats()
		out = append(out, SessionInfo{
			ID:             t.sess.ID(),
			RemoteAddr:     t.remoteAddr,
			LocalRole:      t.sess.LocalRole().String(),
			RemoteRole:     t.sess.RemoteRole().String(),
			RemoteIdentity: hex.EncodeToString(t.sess.RemoteIdentity()),
			State:          t.sess.State().String(),
			OpenedAt:       stats.OpenedAt,
			Received:       stats.Received,
			Sent:           stats.Sent,
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// SessionsSnapshot satisfies observability.SessionLister.
func (s *Server) SessionsSnapshot() any {
	return s.Snapshot()
}

// ActiveSessions counts connections currently being handled, including those
// still in the greeting.
func (s *Server) ActiveSessions() int {
	return int(s.active.Load())
}
