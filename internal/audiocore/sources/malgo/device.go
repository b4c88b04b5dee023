// Package malgo provides miniaudio-backed hosts for the audio inputs: a duplex
// Graph the tap input installs its node into, and a capture Renderer the pull
// input renders from.
package malgo

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/framebridge/internal/errors"
)

const componentMalgo = "audiocore.malgo"

// AudioDeviceInfo holds information about an audio device
type AudioDeviceInfo struct {
	Index     int
	Name      string
	ID        string
	IsDefault bool
}

// Config selects a device and the format requested from it
type Config struct {
	Device       string // name, decoded ID or name substring; empty or "default" for the system default
	Channels     int
	SampleRate   int
	PeriodFrames int     // frames per callback, 0 lets the backend decide
	RingSeconds  float64 // Renderer staging capacity
}

// getBackendForPlatform returns the appropriate malgo backend for the current platform
func getBackendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.New(nil).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("error", "unsupported operating system").
			Context("os", runtime.GOOS).
			Build()
	}
}

// initContext creates a miniaudio context for the platform backend
func initContext() (*malgo.AllocatedContext, error) {
	backend, err := getBackendForPlatform()
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	return ctx, nil
}

// EnumerateDevices returns the available capture devices
func EnumerateDevices() ([]AudioDeviceInfo, error) {
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	defer func() { _ = ctx.Uninit() }()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	devices := make([]AudioDeviceInfo, 0, len(infos))
	for i := range infos {
		// Skip the discard/null device
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}

		decodedID, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			decodedID = infos[i].ID.String()
		}

		devices = append(devices, AudioDeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        decodedID,
			IsDefault: infos[i].IsDefault == 1,
		})
	}

	return devices, nil
}

// SelectDevice finds a device matching the given name or ID
func SelectDevice(devices []malgo.DeviceInfo, deviceName string) (*malgo.DeviceInfo, error) {
	if isDefaultDeviceName(deviceName) {
		for i := range devices {
			if devices[i].IsDefault == 1 {
				return &devices[i], nil
			}
		}
		// No default found, use first device
		if len(devices) > 0 {
			return &devices[0], nil
		}
	}

	// Exact name first, then decoded ID, then substring
	for i := range devices {
		if devices[i].Name() == deviceName {
			return &devices[i], nil
		}
	}
	for i := range devices {
		decodedID, err := hexToASCII(devices[i].ID.String())
		if err == nil && decodedID == deviceName {
			return &devices[i], nil
		}
	}
	for i := range devices {
		if strings.Contains(devices[i].Name(), deviceName) {
			return &devices[i], nil
		}
	}

	return nil, errors.New(nil).
		Component(componentMalgo).
		Category(errors.CategoryValidation).
		Context("device_name", deviceName).
		Context("available_devices", len(devices)).
		Context("error", "no matching audio device found").
		Build()
}

// findCaptureDevice resolves name to a capture device of ctx. A nil result
// with no error means the backend default device.
func findCaptureDevice(ctx *malgo.AllocatedContext, name string) (*malgo.DeviceInfo, error) {
	if isDefaultDeviceName(name) {
		return nil, nil
	}

	devices, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}
	return SelectDevice(devices, name)
}

func isDefaultDeviceName(name string) bool {
	return name == "" || name == "default" || name == "sysdefault"
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// isHardwareDevice checks if the device ID indicates a hardware device
func isHardwareDevice(decodedID string) bool {
	// On Linux, hardware devices have IDs in the format ":X,Y"
	if runtime.GOOS == "linux" {
		return strings.Contains(decodedID, ":") && strings.Contains(decodedID, ",")
	}
	return true
}

// GetHardwareDevices filters devices to return only hardware devices
func GetHardwareDevices() ([]AudioDeviceInfo, error) {
	devices, err := EnumerateDevices()
	if err != nil {
		return nil, err
	}
	return filterHardware(devices), nil
}

func filterHardware(devices []AudioDeviceInfo) []AudioDeviceInfo {
	hardware := make([]AudioDeviceInfo, 0, len(devices))
	for _, device := range devices {
		if isHardwareDevice(device.ID) {
			hardware = append(hardware, device)
		}
	}
	return hardware
}
