package main

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/danmuck/zmtpwire/internal/protocol"
	"github.com/danmuck/zmtpwire/internal/protocol/message"
	"github.com/danmuck/zmtpwire/internal/protocol/session"
	"github.com/danmuck/zmtpwire/internal/server"
	"github.com/danmuck/zmtpwire/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-addr", "10.0.0.1:7000", "-role", "dealer", "-message", "a", "-message", "b"})
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:7000", opts.addr)
	require.Equal(t, protocol.RoleDealer, opts.role)
	require.Equal(t, message.Multipart([]byte("a"), []byte("b")), opts.message)
	require.Equal(t, 0, opts.receive)

	opts, err = parseFlags([]string{"-message", "x"})
	require.NoError(t, err)
	require.Equal(t, protocol.RoleReq, opts.role)
	require.Equal(t, 1, opts.receive)
	require.False(t, opts.message.IsMultipart())
}

func TestParseFlagsErrors(t *testing.T) {
	_, err := parseFlags([]string{"-role", "req"})
	require.Error(t, err)

	_, err = parseFlags([]string{"-role", "broker", "-message", "x"})
	require.ErrorIs(t, err, protocol.ErrUnknownRole)
}

func TestRunAgainstRepServer(t *testing.T) {
	testlog.Start(t)
	cfg := server.DefaultConfig()
	cfg.Session.Role = protocol.RoleRep
	srv, err := server.New(cfg, session.HandlerFunc(func(_ context.Context, _ session.Peer, msg message.Message) (message.Message, error) {
		return message.Bare([]byte("ack")), nil
	}))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	var out bytes.Buffer
	err = run(options{
		addr:    ln.Addr().String(),
		role:    protocol.RoleReq,
		message: message.Bare([]byte("ping")),
		receive: 1,
		timeout: 2 * time.Second,
	}, &out)
	require.NoError(t, err)
	require.Equal(t, "connected to REP ("+ln.Addr().String()+")\n\"ack\"\n", out.String())
}
