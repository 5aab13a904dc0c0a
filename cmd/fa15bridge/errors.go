package main

import (
	"errors"
	"fmt"

	"github.com/srg/fa15bridge/internal/device"
	"github.com/srg/fa15bridge/internal/frame"
	"github.com/srg/fa15bridge/internal/scoring"
	"github.com/srg/fa15bridge/internal/sink"
)

// Command-level errors
var (
	// ErrNoDevice is returned when a scan finds no FA-15 apparatus to bridge.
	ErrNoDevice = errors.New("no FA-15 device found")
)

// FormatUserError turns known errors into a message with a hint on what to do next.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var hint string
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		hint = "Bluetooth appears to be off or unavailable; turn it on and retry"
	case errors.Is(err, device.ErrSessionLost):
		hint = "the apparatus disconnected; check that it is powered and in range"
	case errors.Is(err, device.ErrTimeout):
		hint = "the apparatus did not answer in time; move closer or raise --connect-timeout"
	case errors.Is(err, ErrNoDevice):
		hint = "make sure the apparatus is powered on and advertising, or pass its address explicitly"
	case errors.Is(err, sink.ErrUnsupported):
		hint = "use --sink serial or --sink debug on this platform"
	case errors.Is(err, frame.ErrChecksum), errors.Is(err, frame.ErrHeader), errors.Is(err, frame.ErrLength):
		hint = "pass --raw to send the bytes unchecked"
	case errors.Is(err, scoring.ErrInvalidPayload):
		hint = "check the payload length and values for the characteristic"
	}

	var nf *device.NotFoundError
	if hint == "" && errors.As(err, &nf) {
		hint = "the device does not look like an FA-15"
	}

	if hint == "" {
		return err.Error()
	}
	return fmt.Sprintf("%s (%s)", err, hint)
}
