// Package goble implements the device collaborators on top of github.com/go-ble/ble
// (CoreBluetooth on macOS, HCI sockets on Linux).
package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"

	"github.com/srg/fa15bridge/internal/device"
)

// DeviceFactory creates the platform BLE device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newDevice

var (
	sharedMu  sync.Mutex
	sharedDev ble.Device
)

// sharedDevice returns the process-wide BLE device, creating it on first use.
// HCI backends allow a single owner per adapter, so scanning and connecting share one device.
func sharedDevice() (ble.Device, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedDev != nil {
		return sharedDev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	ble.SetDefaultDevice(dev)
	sharedDev = dev
	return dev, nil
}

// Release stops the shared BLE device. Later calls create a new one.
func Release() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedDev == nil {
		return nil
	}
	err := sharedDev.Stop()
	sharedDev = nil
	return err
}

// NormalizeError maps known go-ble error strings to structured ConnectionError types.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "can't init hci"), containsIgnoreCase(msg, "no devices available"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", device.ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", device.ErrNotInitialized, err)
	default:
		return err
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// advertisement adapts ble.Advertisement to device.Advertisement.
type advertisement struct {
	adv ble.Advertisement
}

func (a advertisement) LocalName() string { return a.adv.LocalName() }
func (a advertisement) RSSI() int         { return a.adv.RSSI() }
func (a advertisement) Addr() string      { return a.adv.Addr().String() }
func (a advertisement) Connectable() bool { return a.adv.Connectable() }

func (a advertisement) Services() []string {
	svcs := a.adv.Services()
	out := make([]string, len(svcs))
	for i, s := range svcs {
		out[i] = device.NormalizeUUID(s.String())
	}
	return out
}

// NewAdvertisement wraps a go-ble advertisement.
func NewAdvertisement(adv ble.Advertisement) device.Advertisement {
	return advertisement{adv: adv}
}

type scanner struct {
	dev ble.Device
}

// NewScanner returns a device.Scanner backed by the shared BLE device.
func NewScanner() (device.Scanner, error) {
	dev, err := sharedDevice()
	if err != nil {
		return nil, err
	}
	return &scanner{dev: dev}, nil
}

func (s *scanner) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	err := s.dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(NewAdvertisement(adv))
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return NormalizeError(err)
}
