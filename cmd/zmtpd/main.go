package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/zmtpwire/internal/logging"
	"github.com/danmuck/zmtpwire/internal/observability"
	"github.com/danmuck/zmtpwire/internal/protocol/message"
	"github.com/danmuck/zmtpwire/internal/protocol/session"
	"github.com/danmuck/zmtpwire/internal/server"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to zmtpd TOML config")
	flag.Parse()

	logging.ConfigureRuntime()
	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "zmtpd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadDaemonConfig(configPath)
	if err != nil {
		return err
	}
	observability.RegisterMetrics()

	srv, err := server.New(cfg.Server, replyHandler(cfg.Reply))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if cfg.AdminListen != "" {
		admin := &http.Server{
			Addr:              cfg.AdminListen,
			Handler:           observability.NewAdminRouter("zmtpd", srv),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return admin.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

// replyHandler logs every inbound message and answers with reply when one is
// configured.
func replyHandler(reply []byte) session.Handler {
	log := observability.Component("zmtpd")
	return session.HandlerFunc(func(_ context.Context, peer session.Peer, msg message.Message) (message.Message, error) {
		log.Info().
			Str("session_id", peer.SessionID).
			Stringer("remote_role", peer.Role).
			Stringer("message", msg).
			Msg("zmtpd.received")
		if len(reply) == 0 {
			return nil, nil
		}
		return message.Bare(reply), nil
	})
}
