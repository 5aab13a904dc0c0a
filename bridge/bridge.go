package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/fa15bridge/internal/device"
	"github.com/srg/fa15bridge/internal/dispatch"
	"github.com/srg/fa15bridge/internal/frame"
	"github.com/srg/fa15bridge/internal/groutine"
	"github.com/srg/fa15bridge/internal/metrics"
	"github.com/srg/fa15bridge/internal/scoring"
	"github.com/srg/fa15bridge/internal/store"
	"github.com/srg/fa15bridge/internal/transmit"
)

// SessionFactory opens a BLE session. goble.Connect satisfies it through a small adapter.
type SessionFactory func(ctx context.Context, opts *device.ConnectOptions, logger *logrus.Logger) (device.Session, error)

// Bridge is a running FA-15 to serial bridge
type Bridge interface {
	Address() string
	DeviceInfo() dispatch.DeviceInfo
	State() scoring.DeviceState
	Stats() transmit.Stats
	// Done is closed when the session ends: the context was cancelled or the device went away.
	Done() <-chan struct{}
}

// BridgeOptions contains all the configuration for running a bridge
type BridgeOptions struct {
	BleAddress        string
	BleConnectTimeout time.Duration `default:"30s"`
	// BleReadTimeout bounds each initial characteristic read.
	BleReadTimeout time.Duration `default:"5s"`
	Connect        SessionFactory

	// Sink receives the frames. It is owned by the caller.
	Sink          io.Writer
	ScoreEncoding scoring.ScoreEncoding
	Interval      time.Duration `default:"1s"`

	// NotificationBuffer is the capacity of the queue between BLE callbacks and the dispatcher.
	NotificationBuffer int `default:"256"`

	Logger   *logrus.Logger
	Metrics  *metrics.Metrics
	Observer dispatch.Observer
	OnFrame  func(frame.Frame)
}

// ProgressCallback is called when the bridge phase changes
type ProgressCallback func(phase string)

// BridgeCallback is executed with the running bridge
type BridgeCallback[R any] func(Bridge) (R, error)

type bridgeImpl struct {
	address string
	info    dispatch.DeviceInfo
	store   *store.Store
	tx      *transmit.Transmitter
	done    chan struct{}
}

func (b *bridgeImpl) Address() string                 { return b.address }
func (b *bridgeImpl) DeviceInfo() dispatch.DeviceInfo { return b.info }
func (b *bridgeImpl) State() scoring.DeviceState      { return b.store.Read() }
func (b *bridgeImpl) Stats() transmit.Stats           { return b.tx.Stats() }
func (b *bridgeImpl) Done() <-chan struct{}           { return b.done }

// RunDeviceBridge connects to the device, seeds the state from an initial read, subscribes to the scoring
// characteristics and runs the dispatcher and transmitter while callback executes.
// Everything is torn down when callback returns. If the device dropped the session, the returned error
// wraps device.ErrSessionLost.
func RunDeviceBridge[R any](
	ctx context.Context,
	opts *BridgeOptions,
	progressCallback ProgressCallback,
	callback BridgeCallback[R],
) (R, error) {
	var zero R

	if opts == nil {
		return zero, fmt.Errorf("failed to execute bridge: options are required")
	}
	if opts.BleAddress == "" {
		return zero, fmt.Errorf("failed to execute bridge: device address is required")
	}
	if opts.Connect == nil {
		return zero, fmt.Errorf("failed to execute bridge: session factory is required")
	}
	if opts.Sink == nil {
		return zero, fmt.Errorf("failed to execute bridge: output sink is required")
	}
	defaults.SetDefaults(opts)

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	bridgeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	progressCallback("Connecting")

	session, err := opts.Connect(bridgeCtx, &device.ConnectOptions{
		Address:        opts.BleAddress,
		ConnectTimeout: opts.BleConnectTimeout,
	}, logger)
	if err != nil {
		progressCallback("Failed")
		return zero, fmt.Errorf("failed to connect to device %s: %w", opts.BleAddress, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close BLE session")
		}
	}()

	opts.Metrics.SetConnected(true)
	defer opts.Metrics.SetConnected(false)

	st := store.New()
	disp := dispatch.New(scoring.NewDecoder(opts.ScoreEncoding), st, &dispatch.Options{
		Logger:   logger,
		Observer: opts.Observer,
		Metrics:  opts.Metrics,
	})

	progressCallback("Reading device state")

	info := dispatch.CollectDeviceInfo(disp.ReadInitial(session, opts.BleReadTimeout))
	logger.WithFields(logrus.Fields{
		"address": opts.BleAddress,
		"state":   st.Read().String(),
	}).Infof("Connected to %s", info)

	progressCallback("Subscribing")

	notifications := make(chan device.Notification, opts.NotificationBuffer)
	if err := session.Subscribe(exposed(session, scoring.NotifyUUIDs()), enqueue(bridgeCtx, notifications, logger)); err != nil {
		if device.IsConnectionState(err, device.NotConnected) || device.IsConnectionState(err, device.SessionLost) {
			progressCallback("Failed")
			return zero, fmt.Errorf("failed to subscribe: %w", err)
		}
		logger.WithError(err).Warn("Some characteristics could not be subscribed")
	}

	tx := transmit.New(st, opts.Sink, &transmit.Options{
		Interval: opts.Interval,
		Logger:   logger,
		Metrics:  opts.Metrics,
		OnFrame:  opts.OnFrame,
	})

	group := groutine.NewGroup(bridgeCtx, logger)
	group.Go("dispatcher", func(ctx context.Context) error {
		return disp.Run(ctx, notifications)
	})
	group.Go("transmitter", tx.Run)

	b := &bridgeImpl{
		address: opts.BleAddress,
		info:    info,
		store:   st,
		tx:      tx,
		done:    make(chan struct{}),
	}

	var sessionErr error
	monitorDone := make(chan struct{})
	groutine.Go(bridgeCtx, "session-monitor", func(ctx context.Context) {
		defer close(monitorDone)
		defer close(b.done)
		select {
		case <-session.Done():
			sessionErr = session.Err()
			if sessionErr != nil {
				logger.WithError(sessionErr).Warn("BLE session ended")
			}
			cancel()
		case <-ctx.Done():
		}
	})

	progressCallback("Running")

	result, cbErr := callback(b)

	cancel()
	<-monitorDone
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Warn("Bridge worker failed")
	}

	stats := tx.Stats()
	logger.WithFields(logrus.Fields{
		"frames_sent": stats.FramesSent,
		"failures":    stats.Failures,
		"updates":     st.Version(),
	}).Info("Bridge stopped")

	if sessionErr != nil {
		// the apparatus is gone: its last state is not carried past the session
		st.Reset()
	}

	if cbErr != nil {
		return result, cbErr
	}
	if sessionErr != nil {
		return result, fmt.Errorf("bridge session for %s ended: %w", opts.BleAddress, sessionErr)
	}
	return result, nil
}

// Run runs the bridge until ctx is cancelled or the device disconnects.
func Run(ctx context.Context, opts *BridgeOptions, progressCallback ProgressCallback) error {
	_, err := RunDeviceBridge(ctx, opts, progressCallback, func(b Bridge) (struct{}, error) {
		<-b.Done()
		return struct{}{}, nil
	})
	return err
}

// enqueue returns a notification handler that only hands the notification to the dispatcher queue.
// It blocks while the queue is full so that no notification is reordered or lost.
func enqueue(ctx context.Context, ch chan<- device.Notification, logger *logrus.Logger) device.NotificationHandler {
	return func(n device.Notification) {
		select {
		case ch <- n:
			return
		default:
		}
		logger.WithField("capacity", cap(ch)).Warn("Notification queue full, BLE callback waiting")
		select {
		case ch <- n:
		case <-ctx.Done():
		}
	}
}

func exposed(session device.Session, uuids []string) []string {
	out := make([]string, 0, len(uuids))
	for _, u := range uuids {
		if session.Has(u) {
			out = append(out, u)
		}
	}
	return out
}
