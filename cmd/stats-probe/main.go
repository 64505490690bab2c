package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/skobkin/sysmon-web/internal/accel"
	"github.com/skobkin/sysmon-web/internal/config"
	"github.com/skobkin/sysmon-web/internal/hoststat"
	"github.com/skobkin/sysmon-web/internal/stats"
)

type options struct {
	gpuBackend string
	sysfsRoot  string
	pretty     bool
	verbose    bool
}

// loadOptions applies .env before building the flag set, because flag
// defaults are read from the environment.
func loadOptions(args []string) (options, error) {
	if err := config.LoadDotEnv(); err != nil {
		return options{}, err
	}

	var opts options
	fs := pflag.NewFlagSet("stats-probe", pflag.ContinueOnError)
	fs.StringVar(&opts.gpuBackend, "gpu-backend", envOrDefault("APP_GPU_BACKEND", accel.BackendAuto), "Accelerator backend: auto, nvml, drm or none")
	fs.StringVar(&opts.sysfsRoot, "sysfs", envOrDefault("APP_SYSFS_ROOT", "/sys"), "Path to sysfs root for the drm backend")
	fs.BoolVarP(&opts.pretty, "pretty", "p", false, "Indent JSON output")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func main() {
	opts, err := loadOptions(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats-probe: %v\n", err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gpu := accel.Open(opts.gpuBackend, opts.sysfsRoot, logger.With("component", "accel"))
	defer func() {
		if err := gpu.Close(); err != nil {
			logger.Warn("accelerator close", "err", err)
		}
	}()
	if session, ok := gpu.Session(); ok {
		logger.Info("accelerator session opened", "backend", session.Backend())
	} else {
		logger.Info("no accelerator session", "reason", gpu.Reason())
	}

	host := hoststat.NewReader(nil, logger.With("component", "hoststat"))
	collector := stats.NewCollector(host, gpu, logger.With("component", "stats"))

	snapshot, err := collector.Snapshot(ctx)
	if err != nil {
		logger.Error("snapshot failed", "err", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	if opts.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(snapshot); err != nil {
		fmt.Fprintf(os.Stderr, "encode snapshot: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
