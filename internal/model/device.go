package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Device names.
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// ErrDeviceUnavailable is returned when the preferred device is not offered by the backend.
var ErrDeviceUnavailable = errors.New("requested device is not available")

// SelectDevice resolves a configured preference against the devices a backend
// offers. "auto" prefers the first accelerator and falls back to cpu; "cuda"
// accepts any cuda:N; an exact name must be present.
func SelectDevice(preference string, available []string) (string, error) {
	preference = strings.ToLower(strings.TrimSpace(preference))
	if preference == "" {
		preference = DeviceAuto
	}

	switch preference {
	case DeviceAuto:
		for _, device := range available {
			if device != DeviceCPU {
				return device, nil
			}
		}

		return DeviceCPU, nil
	case DeviceCUDA:
		for _, device := range available {
			if device == DeviceCUDA || strings.HasPrefix(device, DeviceCUDA+":") {
				return device, nil
			}
		}
	default:
		if slices.Contains(available, preference) || preference == DeviceCPU {
			return preference, nil
		}
	}

	return "", fmt.Errorf("%w: %s (available: %s)", ErrDeviceUnavailable, preference, strings.Join(available, ", "))
}
