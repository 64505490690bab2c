package accel

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	drmClassPath        = "class/drm"
	gpuBusyFilename     = "gpu_busy_percent"
	vramUsedFilename    = "mem_info_vram_used"
	vramTotalFilename   = "mem_info_vram_total"
	productNameFilename = "product_name"
	hwmonTempFilename   = "temp1_input"
)

// drmSession reads amdgpu-style telemetry straight from sysfs. Cards are
// enumerated on every call, in card index order.
type drmSession struct {
	sysfsRoot string
	logger    *slog.Logger
}

type drmCard struct {
	id         string
	index      int
	devicePath string
}

func openDRM(sysfsRoot string, logger *slog.Logger) (Session, error) {
	session := &drmSession{
		sysfsRoot: sysfsRoot,
		logger:    logger.With("backend", BackendDRM),
	}
	cards, err := session.cards()
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, ErrNoDevices
	}
	return session, nil
}

func (s *drmSession) Backend() string {
	return BackendDRM
}

func (s *drmSession) DeviceCount() (int, error) {
	cards, err := s.cards()
	if err != nil {
		return 0, err
	}
	return len(cards), nil
}

func (s *drmSession) Device(index int) (Device, error) {
	cards, err := s.cards()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(cards) {
		return nil, fmt.Errorf("device index %d out of range (%d devices)", index, len(cards))
	}
	card := cards[index]
	return &drmDevice{
		card:      card,
		hwmonPath: detectHwmon(card.devicePath),
	}, nil
}

func (s *drmSession) Close() error {
	return nil
}

// cards lists DRM cards exposing a busy percentage counter. Connector entries
// (card0-DP-1) and cards without telemetry are skipped.
func (s *drmSession) cards() ([]drmCard, error) {
	classDir := filepath.Join(s.sysfsRoot, drmClassPath)
	entries, err := os.ReadDir(classDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read drm class dir: %w", err)
	}

	var cards []drmCard
	for _, entry := range entries {
		name := entry.Name()
		index, ok := parseCardIndex(name)
		if !ok {
			continue
		}
		devicePath := filepath.Join(classDir, name, "device")
		if _, err := os.Stat(filepath.Join(devicePath, gpuBusyFilename)); err != nil {
			s.logger.Debug("skipping card without telemetry", "card", name)
			continue
		}
		cards = append(cards, drmCard{id: name, index: index, devicePath: devicePath})
	}

	sort.Slice(cards, func(i, j int) bool {
		return cards[i].index < cards[j].index
	})
	return cards, nil
}

type drmDevice struct {
	card      drmCard
	hwmonPath string
}

// Name prefers the marketing name exposed by the driver, then the PCI
// database, then the kernel driver name.
func (d *drmDevice) Name() (string, error) {
	if name, err := readTrimmed(filepath.Join(d.card.devicePath, productNameFilename)); err == nil && name != "" {
		return name, nil
	}

	uevent := readUevent(filepath.Join(d.card.devicePath, "uevent"))
	id := pciIDFromUevent(uevent)
	if !id.valid() {
		vendor, _ := readTrimmed(filepath.Join(d.card.devicePath, "vendor"))
		device, _ := readTrimmed(filepath.Join(d.card.devicePath, "device"))
		id.vendor, id.device = hexID(vendor), hexID(device)
	}

	if resolved := lookupPCIName(id); resolved != "" {
		return resolved, nil
	}
	if driver := uevent["DRIVER"]; driver != "" {
		return driver, nil
	}
	return d.card.id, nil
}

func (d *drmDevice) MemoryInfo() (Memory, error) {
	used, err := readUint(filepath.Join(d.card.devicePath, vramUsedFilename))
	if err != nil {
		return Memory{}, fmt.Errorf("vram used: %w", err)
	}
	total, err := readUint(filepath.Join(d.card.devicePath, vramTotalFilename))
	if err != nil {
		return Memory{}, fmt.Errorf("vram total: %w", err)
	}
	return Memory{Used: used, Total: total}, nil
}

func (d *drmDevice) Utilization() (uint32, error) {
	value, err := readFloat(filepath.Join(d.card.devicePath, gpuBusyFilename))
	if err != nil {
		return 0, fmt.Errorf("gpu busy: %w", err)
	}
	if value > 100 {
		// Some kernels report busy % scaled by 100.
		value /= 100
	}
	return uint32(math.Round(math.Max(0, math.Min(100, value)))), nil
}

func (d *drmDevice) Temperature() (uint32, error) {
	if d.hwmonPath == "" {
		return 0, fmt.Errorf("no hwmon sensor for %s", d.card.id)
	}
	millis, err := readFloat(filepath.Join(d.hwmonPath, hwmonTempFilename))
	if err != nil {
		return 0, fmt.Errorf("hwmon temperature: %w", err)
	}
	if millis < 0 {
		return 0, nil
	}
	return uint32(math.Round(millis / 1000)), nil
}

func parseCardIndex(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, "card")
	if !ok || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	index, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return index, true
}

func detectHwmon(devicePath string) string {
	hwmonRoot := filepath.Join(devicePath, "hwmon")
	entries, err := os.ReadDir(hwmonRoot)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() || entry.Type()&os.ModeSymlink != 0 {
			return filepath.Join(hwmonRoot, entry.Name())
		}
	}
	return ""
}

func readUevent(path string) map[string]string {
	values := make(map[string]string)
	file, err := os.Open(path)
	if err != nil {
		return values
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return values
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readUint(path string) (uint64, error) {
	raw, err := readTrimmed(path)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, fmt.Errorf("empty value in %s", path)
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return value, nil
}

func readFloat(path string) (float64, error) {
	raw, err := readTrimmed(path)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, fmt.Errorf("empty value in %s", path)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return value, nil
}
