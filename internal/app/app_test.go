package app

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/skobkin/sysmon-web/internal/config"
)

func TestRunFailsOnOccupiedPort(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfg := config.Config{
		Host:       "127.0.0.1",
		Port:       uint16(ln.Addr().(*net.TCPAddr).Port),
		GPUBackend: config.GPUBackendNone,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := Run(ctx, discardLogger(), cfg); err == nil {
		t.Fatalf("expected bind error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Host:       "127.0.0.1",
		Port:       0,
		GPUBackend: config.GPUBackendNone,
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Run(ctx, discardLogger(), cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop after cancellation")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
