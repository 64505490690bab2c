//go:build linux && cgo

package accel

import (
	"fmt"
	"log/slog"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

type nvmlSession struct {
	logger *slog.Logger
}

func openNVML(logger *slog.Logger) (Session, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, nvmlError("init", ret)
	}
	if version, ret := nvml.SystemGetDriverVersion(); ret == nvml.SUCCESS {
		logger.Debug("nvml initialised", "driver_version", version)
	}
	return &nvmlSession{logger: logger}, nil
}

func (s *nvmlSession) Backend() string {
	return BackendNVML
}

func (s *nvmlSession) DeviceCount() (int, error) {
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return 0, nvmlError("device count", ret)
	}
	return count, nil
}

func (s *nvmlSession) Device(index int) (Device, error) {
	handle, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return nil, nvmlError(fmt.Sprintf("device handle %d", index), ret)
	}
	return nvmlDevice{handle: handle}, nil
}

func (s *nvmlSession) Close() error {
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return nvmlError("shutdown", ret)
	}
	return nil
}

type nvmlDevice struct {
	handle nvml.Device
}

func (d nvmlDevice) Name() (string, error) {
	name, ret := d.handle.GetName()
	if ret != nvml.SUCCESS {
		return "", nvmlError("name", ret)
	}
	return name, nil
}

func (d nvmlDevice) MemoryInfo() (Memory, error) {
	info, ret := d.handle.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return Memory{}, nvmlError("memory info", ret)
	}
	return Memory{Used: info.Used, Total: info.Total}, nil
}

func (d nvmlDevice) Utilization() (uint32, error) {
	rates, ret := d.handle.GetUtilizationRates()
	if ret != nvml.SUCCESS {
		return 0, nvmlError("utilization rates", ret)
	}
	return rates.Gpu, nil
}

func (d nvmlDevice) Temperature() (uint32, error) {
	temp, ret := d.handle.GetTemperature(nvml.TEMPERATURE_GPU)
	if ret != nvml.SUCCESS {
		return 0, nvmlError("temperature", ret)
	}
	return temp, nil
}

func nvmlError(op string, ret nvml.Return) error {
	return fmt.Errorf("nvml %s: %s", op, nvml.ErrorString(ret))
}
