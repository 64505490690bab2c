package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}
}

var allKeys = []string{
	"HOST",
	"PORT",
	"APP_GPU_BACKEND",
	"APP_SYSFS_ROOT",
	"APP_ENABLE_PROMETHEUS",
	"APP_ENABLE_PPROF",
	"APP_LOG_LEVEL",
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, allKeys...)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Host != "127.0.0.1" {
		t.Fatalf("unexpected Host %q", cfg.Host)
	}
	if cfg.Port != 3000 {
		t.Fatalf("unexpected Port %d", cfg.Port)
	}
	if cfg.ListenAddr() != "127.0.0.1:3000" {
		t.Fatalf("unexpected ListenAddr %q", cfg.ListenAddr())
	}
	if cfg.GPUBackend != GPUBackendAuto {
		t.Fatalf("unexpected GPUBackend %q", cfg.GPUBackend)
	}
	if cfg.SysfsRoot != "/sys" {
		t.Fatalf("unexpected SysfsRoot %q", cfg.SysfsRoot)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected LogLevel %v", cfg.LogLevel)
	}
	if cfg.EnablePrometheus || cfg.EnablePprof {
		t.Fatalf("expected optional endpoints disabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "9100")
	t.Setenv("APP_GPU_BACKEND", "DRM")
	t.Setenv("APP_SYSFS_ROOT", "/tmp/sys")
	t.Setenv("APP_ENABLE_PROMETHEUS", "true")
	t.Setenv("APP_ENABLE_PPROF", "1")
	t.Setenv("APP_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Host != "0.0.0.0" {
		t.Fatalf("Host override failed, got %q", cfg.Host)
	}
	if cfg.Port != 9100 {
		t.Fatalf("Port override failed, got %d", cfg.Port)
	}
	if cfg.GPUBackend != GPUBackendDRM {
		t.Fatalf("GPUBackend override failed, got %q", cfg.GPUBackend)
	}
	if cfg.SysfsRoot != "/tmp/sys" {
		t.Fatalf("SysfsRoot override failed, got %q", cfg.SysfsRoot)
	}
	if !cfg.EnablePrometheus {
		t.Fatalf("EnablePrometheus override failed")
	}
	if !cfg.EnablePprof {
		t.Fatalf("EnablePprof override failed")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel override failed, got %v", cfg.LogLevel)
	}
}

func TestListenAddrIPv6(t *testing.T) {
	t.Parallel()

	cfg := Config{Host: "::1", Port: 8080}
	if got := cfg.ListenAddr(); got != "[::1]:8080" {
		t.Fatalf("unexpected ListenAddr %q", got)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	testCases := []struct {
		name string
		key  string
		val  string
	}{
		{"NonNumericPort", "PORT", "http"},
		{"NegativePort", "PORT", "-1"},
		{"PortOutOfRange", "PORT", "70000"},
		{"UnknownGPUBackend", "APP_GPU_BACKEND", "cuda"},
		{"InvalidPrometheusBool", "APP_ENABLE_PROMETHEUS", "maybe"},
		{"InvalidPprofBool", "APP_ENABLE_PPROF", "sometimes"},
		{"InvalidLogLevel", "APP_LOG_LEVEL", "loud"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t, "APP_SYSFS_ROOT", "APP_LOG_LEVEL")
	t.Setenv("HOST", "10.0.0.1")

	path := filepath.Join(t.TempDir(), ".env")
	content := "APP_SYSFS_ROOT=/srv/sys\nAPP_LOG_LEVEL=warn\nHOST=192.168.1.1\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv returned error: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.SysfsRoot != "/srv/sys" {
		t.Fatalf("expected SysfsRoot from .env, got %q", cfg.SysfsRoot)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Fatalf("expected LogLevel from .env, got %v", cfg.LogLevel)
	}
	if cfg.Host != "10.0.0.1" {
		t.Fatalf("process environment must win over .env, got %q", cfg.Host)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	t.Parallel()

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing .env should be ignored, got %v", err)
	}
}
