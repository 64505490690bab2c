// Package app wires up and runs the application services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skobkin/sysmon-web/internal/accel"
	"github.com/skobkin/sysmon-web/internal/config"
	"github.com/skobkin/sysmon-web/internal/hoststat"
	"github.com/skobkin/sysmon-web/internal/httpserver"
	"github.com/skobkin/sysmon-web/internal/stats"
)

const shutdownTimeout = 10 * time.Second

// Run bootstraps the application lifecycle. It returns when ctx is cancelled
// and the HTTP server has drained, or when the server fails.
func Run(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	appLogger := baseLogger.With("component", "app")

	host := hoststat.NewReader(nil, baseLogger.With("component", "hoststat"))
	if err := host.Refresh(ctx); err != nil {
		appLogger.Warn("initial host refresh failed", "err", err)
	}

	gpu := accel.Open(cfg.GPUBackend, cfg.SysfsRoot, baseLogger.With("component", "accel"))
	if session, ok := gpu.Session(); ok {
		appLogger.Info("GPU monitoring initialized successfully", "backend", session.Backend())
	} else if errors.Is(gpu.Reason(), accel.ErrDisabled) {
		appLogger.Info("GPU monitoring disabled")
	} else {
		appLogger.Warn("GPU monitoring not available", "reason", gpu.Reason())
	}
	defer func() {
		if err := gpu.Close(); err != nil {
			appLogger.Warn("accelerator close", "err", err)
		}
	}()

	collector := stats.NewCollector(host, gpu, baseLogger.With("component", "stats"))
	srv := httpserver.New(cfg, baseLogger.With("component", "http"), collector)

	ln, err := srv.Listen()
	if err != nil {
		return err
	}

	appLogger.Info("starting HTTP server", "listen_addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("shutdown initiated", "reason", context.Cause(gctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	appLogger.Info("shutdown complete")
	return nil
}
