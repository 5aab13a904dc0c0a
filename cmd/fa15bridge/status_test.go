package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBridgeStatusFollowsStartup(t *testing.T) {
	out := &syncBuffer{}
	s := NewBridgeStatus(out, "AA:BB")
	s.Start()
	assert.True(t, strings.HasPrefix(out.String(), "\r| Bridge AA:BB: [1/3] Connecting, 0s"))

	s.Phase("Subscribing")
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[3/3] Subscribing")
	}, time.Second, 10*time.Millisecond)

	s.Phase("Running")
	got := out.String()
	assert.True(t, strings.HasSuffix(got, eraseLine+"Streaming frames from AA:BB\n"))

	s.Stop()
	s.Phase("Subscribing")
	time.Sleep(2 * statusRefresh)
	assert.Equal(t, got, out.String(), "nothing is drawn after the terminal phase")
}

func TestBridgeStatusFailedOnlyErases(t *testing.T) {
	out := &syncBuffer{}
	s := NewBridgeStatus(out, "AA:BB")
	s.Start()
	s.Phase("Failed")

	assert.True(t, strings.HasSuffix(out.String(), eraseLine))
	assert.NotContains(t, out.String(), "Streaming")
}

func TestStatusLineRendering(t *testing.T) {
	scan := NewScanStatus(&syncBuffer{}, "Scanning for FA-15 devices", 10*time.Second)
	assert.Equal(t, "\r| Scanning for FA-15 devices: Scanning, 6s left\033[K", scan.line(3700*time.Millisecond))
	assert.Equal(t, "\r| Scanning for FA-15 devices: Scanning, 0s left\033[K", scan.line(11*time.Second))

	b := NewBridgeStatus(&syncBuffer{}, "AA")
	b.phase = "Reading device state"
	b.tick = 5
	assert.Equal(t, "\r/ Bridge AA: [2/3] Reading device state, 3s\033[K", b.line(3700*time.Millisecond))

	b.phase = "Reconnecting"
	assert.Equal(t, "\r/ Bridge AA: Reconnecting, 0s\033[K", b.line(0))
}

func TestStatusLineStopWithoutStart(t *testing.T) {
	out := &syncBuffer{}
	s := NewScanStatus(out, "x", time.Second)
	s.Stop()
	s.Start()

	assert.Empty(t, out.String())
}

func TestStatusLineStartTwice(t *testing.T) {
	out := &syncBuffer{}
	s := NewScanStatus(out, "x", time.Second)
	s.Start()
	s.Start()
	s.Stop()

	assert.Equal(t, 1, strings.Count(out.String(), "\r| x: Scanning"))
}
