package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = 3000
)

// GPU backend selectors accepted by APP_GPU_BACKEND.
const (
	GPUBackendAuto = "auto"
	GPUBackendNVML = "nvml"
	GPUBackendDRM  = "drm"
	GPUBackendNone = "none"
)

// Config represents runtime configuration sourced from environment variables.
type Config struct {
	Host             string
	Port             uint16
	GPUBackend       string
	SysfsRoot        string
	EnablePrometheus bool
	EnablePprof      bool
	LogLevel         slog.Level
}

// ListenAddr returns the host:port pair the HTTP server binds to.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.FormatUint(uint64(c.Port), 10))
}

// LoadDotEnv reads variables from the given .env files into the process
// environment without overriding values that are already set. Missing files
// are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load parses configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Host:       defaultHost,
		Port:       defaultPort,
		GPUBackend: GPUBackendAuto,
		SysfsRoot:  "/sys",
		LogLevel:   slog.LevelInfo,
	}

	if value := strings.TrimSpace(os.Getenv("HOST")); value != "" {
		cfg.Host = value
	}

	if value := strings.TrimSpace(os.Getenv("PORT")); value != "" {
		port, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return Config{}, fmt.Errorf("PORT must be a valid number: %w", err)
		}
		cfg.Port = uint16(port)
	}

	if value := strings.TrimSpace(os.Getenv("APP_GPU_BACKEND")); value != "" {
		backend, err := parseGPUBackend(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_GPU_BACKEND: %w", err)
		}
		cfg.GPUBackend = backend
	}

	if value := strings.TrimSpace(os.Getenv("APP_SYSFS_ROOT")); value != "" {
		cfg.SysfsRoot = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_ENABLE_PROMETHEUS")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_ENABLE_PROMETHEUS: %w", err)
		}
		cfg.EnablePrometheus = enabled
	}

	if value := strings.TrimSpace(os.Getenv("APP_ENABLE_PPROF")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_ENABLE_PPROF: %w", err)
		}
		cfg.EnablePprof = enabled
	}

	if value := strings.TrimSpace(os.Getenv("APP_LOG_LEVEL")); value != "" {
		level, err := parseLogLevel(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	return cfg, nil
}

func parseGPUBackend(input string) (string, error) {
	switch backend := strings.ToLower(strings.TrimSpace(input)); backend {
	case GPUBackendAuto, GPUBackendNVML, GPUBackendDRM, GPUBackendNone:
		return backend, nil
	default:
		return "", fmt.Errorf("unsupported gpu backend %q", input)
	}
}

func parseLogLevel(input string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", input)
	}
}
