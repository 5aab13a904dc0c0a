package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/srg/fa15bridge/internal/device"
	"github.com/srg/fa15bridge/internal/device/goble"
	"github.com/srg/fa15bridge/internal/sink"
)

// Platform hooks, replaced in tests.
var (
	newBLEScanner = goble.NewScanner

	connectSession = func(ctx context.Context, opts *device.ConnectOptions, logger *logrus.Logger) (device.Session, error) {
		s, err := goble.Connect(ctx, opts, logger)
		if err != nil {
			// keep the interface nil, not a typed nil *goble.Session
			return nil, err
		}
		return s, nil
	}

	openSink = sink.Open

	listPorts = sink.ListPorts

	releaseBLE = goble.Release
)

// signalContext returns a context cancelled on SIGINT or SIGTERM.
// onSignal, when set, runs once before the cancellation.
func signalContext(parent context.Context, onSignal func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			if onSignal != nil {
				onSignal()
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
