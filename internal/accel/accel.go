// Package accel reads GPU telemetry through a vendor driver session.
package accel

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDevices reports a working session that enumerates zero devices.
	ErrNoDevices = errors.New("no accelerator devices found")
	// ErrUnsupported reports a backend that is not available in this build.
	ErrUnsupported = errors.New("accelerator backend not supported on this platform")
	// ErrDisabled reports that GPU monitoring was turned off by configuration.
	ErrDisabled = errors.New("accelerator monitoring disabled")
)

// Session is an open handle to a GPU management interface.
type Session interface {
	Backend() string
	DeviceCount() (int, error)
	Device(index int) (Device, error)
	Close() error
}

// Device exposes telemetry of a single accelerator.
type Device interface {
	Name() (string, error)
	MemoryInfo() (Memory, error)
	// Utilization returns the busy percentage in the 0-100 range.
	Utilization() (uint32, error)
	// Temperature returns the core temperature in degrees Celsius.
	Temperature() (uint32, error)
}

// Memory describes device memory in bytes.
type Memory struct {
	Used  uint64
	Total uint64
}

// Usage is a telemetry reading of device slot 0.
type Usage struct {
	Name               string
	Memory             Memory
	UtilizationPercent uint32
	TemperatureC       uint32
}

// State is either a present session or the reason there is none.
// The zero value is absent.
type State struct {
	session Session
	reason  error
}

// Present wraps an initialised session.
func Present(session Session) State {
	if session == nil {
		return Absent(errors.New("nil accelerator session"))
	}
	return State{session: session}
}

// Absent records why no session is available.
func Absent(reason error) State {
	if reason == nil {
		reason = ErrDisabled
	}
	return State{reason: reason}
}

// Session returns the session and true when present.
func (s State) Session() (Session, bool) {
	return s.session, s.session != nil
}

// Reason returns the initialisation failure for an absent state.
func (s State) Reason() error {
	if s.session != nil {
		return nil
	}
	if s.reason == nil {
		return ErrDisabled
	}
	return s.reason
}

// Close releases the session if present.
func (s State) Close() error {
	if s.session == nil {
		return nil
	}
	return s.session.Close()
}

// Query reads telemetry of the first device of the session.
func Query(session Session) (Usage, error) {
	count, err := session.DeviceCount()
	if err != nil {
		return Usage{}, fmt.Errorf("device count: %w", err)
	}
	if count == 0 {
		return Usage{}, ErrNoDevices
	}

	device, err := session.Device(0)
	if err != nil {
		return Usage{}, fmt.Errorf("device 0: %w", err)
	}

	name, err := device.Name()
	if err != nil {
		return Usage{}, fmt.Errorf("device name: %w", err)
	}
	memory, err := device.MemoryInfo()
	if err != nil {
		return Usage{}, fmt.Errorf("memory info: %w", err)
	}
	utilization, err := device.Utilization()
	if err != nil {
		return Usage{}, fmt.Errorf("utilization: %w", err)
	}
	temperature, err := device.Temperature()
	if err != nil {
		return Usage{}, fmt.Errorf("temperature: %w", err)
	}

	return Usage{
		Name:               name,
		Memory:             memory,
		UtilizationPercent: utilization,
		TemperatureC:       temperature,
	}, nil
}
