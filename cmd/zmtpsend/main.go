package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/danmuck/zmtpwire/internal/logging"
	"github.com/danmuck/zmtpwire/internal/protocol"
	"github.com/danmuck/zmtpwire/internal/protocol/message"
	"github.com/danmuck/zmtpwire/internal/protocol/session"
)

// parts collects repeated -message flags into one multipart message.
type parts [][]byte

func (p *parts) String() string {
	out := make([]string, 0, len(*p))
	for _, part := range *p {
		out = append(out, string(part))
	}
	return strings.Join(out, ",")
}

func (p *parts) Set(v string) error {
	*p = append(*p, []byte(v))
	return nil
}

type options struct {
	addr     string
	role     protocol.Role
	identity []byte
	message  message.Message
	receive  int
	timeout  time.Duration
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "zmtpsend: %v\n", err)
		os.Exit(2)
	}
	logging.ConfigureRuntime()
	if err := run(opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "zmtpsend: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("zmtpsend", flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:5555", "peer address")
	role := fs.String("role", "req", "local socket role")
	identity := fs.String("identity", "", "identity announced in the greeting")
	receive := fs.Int("receive", -1, "messages to wait for after sending (default 1 for REQ, else 0)")
	timeout := fs.Duration("timeout", 10*time.Second, "overall deadline")
	var msg parts
	fs.Var(&msg, "message", "message part; repeat for multipart")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	r, err := protocol.ParseRole(*role)
	if err != nil {
		return options{}, err
	}
	if len(msg) == 0 {
		return options{}, errors.New("at least one -message is required")
	}
	n := *receive
	if n < 0 {
		n = 0
		if r == protocol.RoleReq {
			n = 1
		}
	}
	return options{
		addr:     *addr,
		role:     r,
		identity: []byte(*identity),
		message:  message.Multipart(msg...),
		receive:  n,
		timeout:  *timeout,
	}, nil
}

func run(opts options, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", opts.addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sess, err := session.Connect(ctx, conn, session.Config{Role: opts.role, Identity: opts.identity})
	if err != nil {
		return err
	}
	defer sess.Close()
	fmt.Fprintf(out, "connected to %s (%s)\n", sess.RemoteRole(), opts.addr)

	if err := sess.Send(opts.message); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	for range opts.receive {
		msg, err := sess.Receive()
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		fmt.Fprintln(out, msg)
	}
	return nil
}
