//go:build !linux || !cgo

package accel

import "log/slog"

func openNVML(*slog.Logger) (Session, error) {
	return nil, ErrUnsupported
}
