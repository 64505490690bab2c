package accel

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

type fakeSession struct {
	count    int
	countErr error
	device   *fakeDevice
	devErr   error
	closed   bool
}

func (s *fakeSession) Backend() string { return "fake" }

func (s *fakeSession) DeviceCount() (int, error) { return s.count, s.countErr }

func (s *fakeSession) Device(index int) (Device, error) {
	if s.devErr != nil {
		return nil, s.devErr
	}
	if index != 0 {
		return nil, errors.New("only slot 0 is queried")
	}
	return s.device, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDevice struct {
	name    string
	memory  Memory
	util    uint32
	temp    uint32
	nameErr error
	memErr  error
	utilErr error
	tempErr error
}

func (d *fakeDevice) Name() (string, error)        { return d.name, d.nameErr }
func (d *fakeDevice) MemoryInfo() (Memory, error)  { return d.memory, d.memErr }
func (d *fakeDevice) Utilization() (uint32, error) { return d.util, d.utilErr }
func (d *fakeDevice) Temperature() (uint32, error) { return d.temp, d.tempErr }

func TestQuerySuccess(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		count: 2,
		device: &fakeDevice{
			name:   "NVIDIA GeForce RTX 4090",
			memory: Memory{Used: 2 << 30, Total: 24 << 30},
			util:   37,
			temp:   61,
		},
	}

	usage, err := Query(session)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if usage.Name != "NVIDIA GeForce RTX 4090" {
		t.Fatalf("unexpected name %q", usage.Name)
	}
	if usage.Memory.Used != 2<<30 || usage.Memory.Total != 24<<30 {
		t.Fatalf("unexpected memory %+v", usage.Memory)
	}
	if usage.UtilizationPercent != 37 || usage.TemperatureC != 61 {
		t.Fatalf("unexpected readings %+v", usage)
	}
}

func TestQueryFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	testCases := []struct {
		name    string
		session *fakeSession
		want    error
		context string
	}{
		{"CountError", &fakeSession{countErr: boom}, boom, "device count"},
		{"NoDevices", &fakeSession{count: 0}, ErrNoDevices, ""},
		{"HandleError", &fakeSession{count: 1, devErr: boom}, boom, "device 0"},
		{"NameError", &fakeSession{count: 1, device: &fakeDevice{nameErr: boom}}, boom, "device name"},
		{"MemoryError", &fakeSession{count: 1, device: &fakeDevice{memErr: boom}}, boom, "memory info"},
		{"UtilizationError", &fakeSession{count: 1, device: &fakeDevice{utilErr: boom}}, boom, "utilization"},
		{"TemperatureError", &fakeSession{count: 1, device: &fakeDevice{tempErr: boom}}, boom, "temperature"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Query(tc.session)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if tc.context != "" && !strings.Contains(err.Error(), tc.context) {
				t.Fatalf("expected error to mention %q, got %q", tc.context, err.Error())
			}
		})
	}
}

func TestStatePresentAndAbsent(t *testing.T) {
	t.Parallel()

	var zero State
	if _, ok := zero.Session(); ok {
		t.Fatalf("zero State must be absent")
	}
	if !errors.Is(zero.Reason(), ErrDisabled) {
		t.Fatalf("zero State reason should be ErrDisabled, got %v", zero.Reason())
	}
	if err := zero.Close(); err != nil {
		t.Fatalf("closing absent state returned %v", err)
	}

	reason := errors.New("driver missing")
	absent := Absent(reason)
	if _, ok := absent.Session(); ok {
		t.Fatalf("Absent must not expose a session")
	}
	if !errors.Is(absent.Reason(), reason) {
		t.Fatalf("unexpected reason %v", absent.Reason())
	}

	session := &fakeSession{}
	present := Present(session)
	got, ok := present.Session()
	if !ok || got != session {
		t.Fatalf("Present must expose the wrapped session")
	}
	if present.Reason() != nil {
		t.Fatalf("present state has no reason, got %v", present.Reason())
	}
	if err := present.Close(); err != nil || !session.closed {
		t.Fatalf("Close must close the session (err=%v)", err)
	}

	if _, ok := Present(nil).Session(); ok {
		t.Fatalf("Present(nil) must be absent")
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()

	state := Open(BackendNone, t.TempDir(), nil)
	if _, ok := state.Session(); ok {
		t.Fatalf("none backend must be absent")
	}
	if !errors.Is(state.Reason(), ErrDisabled) {
		t.Fatalf("unexpected reason %v", state.Reason())
	}

	state = Open("quantum", t.TempDir(), nil)
	if _, ok := state.Session(); ok {
		t.Fatalf("unknown backend must be absent")
	}
	if !strings.Contains(state.Reason().Error(), "quantum") {
		t.Fatalf("reason should name the backend, got %v", state.Reason())
	}
}

func TestOpenAutoFallsBackToDRM(t *testing.T) {
	t.Parallel()
	skipIfNVMLAvailable(t)

	root := t.TempDir()
	card := createCard(t, root, "card0")
	writeFile(t, filepath.Join(card, gpuBusyFilename), "12\n")

	state := Open(BackendAuto, root, nil)
	defer state.Close()

	session, ok := state.Session()
	if !ok {
		t.Fatalf("expected drm session, reason: %v", state.Reason())
	}
	if session.Backend() != BackendDRM {
		t.Fatalf("expected %q backend, got %q", BackendDRM, session.Backend())
	}
}

func TestOpenAutoWithoutBackends(t *testing.T) {
	t.Parallel()
	skipIfNVMLAvailable(t)

	state := Open(BackendAuto, t.TempDir(), nil)
	if _, ok := state.Session(); ok {
		t.Fatalf("expected absent state without any device")
	}

	reason := state.Reason()
	if reason == nil {
		t.Fatalf("expected a reason for the absent state")
	}
	for _, want := range []string{"nvml:", "drm:"} {
		if !strings.Contains(reason.Error(), want) {
			t.Fatalf("reason %q does not mention %q", reason, want)
		}
	}
	if !errors.Is(reason, ErrNoDevices) {
		t.Fatalf("reason should wrap ErrNoDevices from drm, got %v", reason)
	}
}

func skipIfNVMLAvailable(t *testing.T) {
	t.Helper()
	session, err := openNVML(discardLogger())
	if err != nil {
		return
	}
	_ = session.Close()
	t.Skip("NVML is available on this host; auto selects it before drm")
}
