// marketd runs a headless simulation session: zap logging to stderr,
// optional websocket feed and prometheus endpoints, SIGINT-aware.
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

	"go.uber.org/zap"

	"github.com/pchave/agentmarket/internal/config"
	"github.com/pchave/agentmarket/internal/logging"
	"github.com/pchave/agentmarket/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "marketd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to session YAML (defaults apply when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, err := session.New(cfg, log)
	if err != nil {
		return err
	}

	var servers []*http.Server
	if cfg.Feed.Enabled && sess.Feed != nil {
		mux := http.NewServeMux()
		mux.Handle("/ws", sess.Feed.Handler())
		servers = append(servers, serve(cfg.Feed.Addr, mux, "feed", log))
	}
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", sess.Metrics.Handler())
		servers = append(servers, serve(cfg.Metrics.Addr, mux, "metrics", log))
	}

	runErr := sess.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func serve(addr string, handler http.Handler, name string, log *zap.Logger) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		log.Info("http listening", zap.String("server", name), zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.String("server", name), zap.Error(err))
		}
	}()
	return srv
}
