package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/relaycore/relaycore/internal/auth"
	"github.com/relaycore/relaycore/internal/config"
	"github.com/relaycore/relaycore/internal/hub"
	"github.com/relaycore/relaycore/internal/plugin"
	"github.com/relaycore/relaycore/internal/plugin/posts"
	"github.com/relaycore/relaycore/internal/server"
	"github.com/relaycore/relaycore/internal/terminal"
)

const shutdownTimeout = 10 * time.Second

// serveCmd builds the runtime from environment configuration plus flag
// overrides, then runs until SIGINT/SIGTERM or a listener error.
func serveCmd(applyFlags func(*config.Config) error) error {
	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.FromEnv(bootstrap)
	if err != nil {
		return err
	}
	if err := applyFlags(cfg); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	h := hub.New(logger)

	registry := plugin.NewRegistry(logger)
	registry.Register(posts.New(h, logger))

	terminals := terminal.NewManager(terminal.Options{
		DefaultShell: cfg.Terminal.Shell,
		HomeDir:      cfg.Terminal.HomeDir,
		User:         cfg.Terminal.User,
		DefaultCols:  cfg.Terminal.Cols,
		DefaultRows:  cfg.Terminal.Rows,
		DisablePTY:   cfg.Terminal.DisablePTY,
	}, logger)

	resolver := auth.NewHMACResolver([]byte(cfg.AuthSecret))

	srv := server.New(cfg, logger, h, registry, terminals, resolver)

	sweepStop := make(chan struct{})
	go sweepLoop(terminals, cfg.Terminal.IdleTimeout, cfg.Terminal.SweepInterval, logger, sweepStop)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		close(sweepStop)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case sig := <-stop:
		logger.Info("signal received, shutting down", "signal", sig.String())
	}

	close(sweepStop)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// sweepLoop destroys idle terminal sessions on a fixed cadence. The manager
// never schedules its own maintenance, so this loop is the only reaper.
func sweepLoop(terminals *terminal.Manager, maxIdle, interval time.Duration, logger *slog.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := terminals.SweepIdle(maxIdle); n > 0 {
				logger.Info("idle terminal sessions destroyed", "count", n)
			}
		case <-stop:
			return
		}
	}
}

// normalizeAddr accepts both ":8080" and bare "8080" for the listen flag.
func normalizeAddr(addr string) string {
	if addr != "" && !strings.Contains(addr, ":") {
		return ":" + addr
	}
	return addr
}
