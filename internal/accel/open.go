package accel

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Backend selectors understood by Open.
const (
	BackendAuto = "auto"
	BackendNVML = "nvml"
	BackendDRM  = "drm"
	BackendNone = "none"
)

// Open initialises the requested backend once. Failures yield an absent
// state; callers do not retry.
func Open(backend, sysfsRoot string, logger *slog.Logger) State {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	switch backend {
	case BackendNone:
		return Absent(ErrDisabled)
	case BackendNVML:
		return stateFrom(openNVML(logger))
	case BackendDRM:
		return stateFrom(openDRM(sysfsRoot, logger))
	case BackendAuto, "":
		session, nvmlErr := openNVML(logger)
		if nvmlErr == nil {
			return Present(session)
		}
		logger.Debug("nvml unavailable, trying drm", "err", nvmlErr)

		session, drmErr := openDRM(sysfsRoot, logger)
		if drmErr == nil {
			return Present(session)
		}
		return Absent(errors.Join(
			fmt.Errorf("nvml: %w", nvmlErr),
			fmt.Errorf("drm: %w", drmErr),
		))
	default:
		return Absent(fmt.Errorf("unknown accelerator backend %q", backend))
	}
}

func stateFrom(session Session, err error) State {
	if err != nil {
		return Absent(err)
	}
	return Present(session)
}
