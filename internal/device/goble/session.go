package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/fa15bridge/internal/device"
	"github.com/srg/fa15bridge/internal/groutine"
)

// DefaultConnectTimeout is used when ConnectOptions.ConnectTimeout is zero.
const DefaultConnectTimeout = 30 * time.Second

// Session is a go-ble GATT client session. It implements device.Session.
type Session struct {
	client  ble.Client
	address string
	logger  *logrus.Logger

	chars map[string]*ble.Characteristic // keyed by normalized UUID

	mu         sync.Mutex
	subscribed []*ble.Characteristic

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

var _ device.Session = (*Session)(nil)

// Connect dials the peripheral at opts.Address and discovers its GATT profile.
func Connect(ctx context.Context, opts *device.ConnectOptions, logger *logrus.Logger) (*Session, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts == nil || strings.TrimSpace(opts.Address) == "" {
		logger.Error("Connection attempt with empty address")
		return nil, fmt.Errorf("device address is empty")
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	logger.WithFields(logrus.Fields{
		"address": opts.Address,
		"timeout": timeout,
	}).Info("Connecting to BLE device...")

	if _, err := sharedDevice(); err != nil {
		logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.WithField("address", opts.Address).Debug("Dialing BLE device...")
	client, err := ble.Dial(connCtx, ble.NewAddr(opts.Address))
	if err != nil {
		if errors.Is(connCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", device.ErrTimeout, err)
		}
		logger.WithFields(logrus.Fields{
			"address": opts.Address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", opts.Address, NormalizeError(err))
	}

	logger.WithField("address", opts.Address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"address": opts.Address,
			"error":   err,
		}).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	s := newSession(client, opts.Address, profile, logger)

	// CoreBluetooth exposes a Disconnected channel; other backends end the session on Close only.
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "ble-session-monitor", func(context.Context) {
			select {
			case <-dc.Disconnected():
				logger.WithField("address", s.address).Warn("BLE device disconnected")
				s.finish(device.ErrSessionLost)
			case <-s.done:
			}
		})
	} else {
		logger.Debug("Client does not support Disconnected() channel")
	}

	logger.WithFields(logrus.Fields{
		"address":         opts.Address,
		"services":        len(profile.Services),
		"characteristics": len(s.chars),
	}).Info("BLE device connected successfully")
	return s, nil
}

func newSession(client ble.Client, address string, profile *ble.Profile, logger *logrus.Logger) *Session {
	s := &Session{
		client:  client,
		address: address,
		logger:  logger,
		chars:   make(map[string]*ble.Characteristic),
		done:    make(chan struct{}),
	}
	for _, svc := range profile.Services {
		for _, c := range svc.Characteristics {
			uuid := device.NormalizeUUID(c.UUID.String())
			logger.WithFields(logrus.Fields{
				"service_uuid": device.NormalizeUUID(svc.UUID.String()),
				"char_uuid":    uuid,
			}).Debug("Found characteristic UUID")
			s.chars[uuid] = c
		}
	}
	return s
}

func (s *Session) Address() string { return s.address }

func (s *Session) Has(uuid string) bool {
	_, ok := s.chars[device.NormalizeUUID(uuid)]
	return ok
}

func (s *Session) lookup(uuid string) (*ble.Characteristic, error) {
	c, ok := s.chars[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{uuid}}
	}
	return c, nil
}

// Read reads the characteristic value, giving up after timeout.
func (s *Session) Read(uuid string, timeout time.Duration) ([]byte, error) {
	c, err := s.lookup(uuid)
	if err != nil {
		return nil, err
	}
	select {
	case <-s.done:
		return nil, device.ErrNotConnected
	default:
	}

	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		data, err := s.client.ReadCharacteristic(c)
		resultCh <- readResult{data: data, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("failed to read characteristic %s: %w", uuid, NormalizeError(result.err))
		}
		return result.data, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w reading characteristic %s after %v", device.ErrTimeout, uuid, timeout)
	case <-s.done:
		return nil, device.ErrNotConnected
	}
}

// Subscribe enables notify (or indicate) on each characteristic.
func (s *Session) Subscribe(uuids []string, handler device.NotificationHandler) error {
	var errs []error
	for _, uuid := range uuids {
		c, err := s.lookup(uuid)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		indicate := c.Property&ble.CharNotify == 0 && c.Property&ble.CharIndicate != 0
		if c.Property&(ble.CharNotify|ble.CharIndicate) == 0 {
			errs = append(errs, fmt.Errorf("characteristic %s does not support notifications", uuid))
			continue
		}

		normalized := device.NormalizeUUID(uuid)
		err = s.client.Subscribe(c, indicate, func(data []byte) {
			// go-ble reuses the buffer
			handler(device.Notification{
				UUID: normalized,
				Data: append([]byte(nil), data...),
				At:   time.Now(),
			})
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to subscribe to %s: %w", uuid, NormalizeError(err)))
			continue
		}

		s.mu.Lock()
		s.subscribed = append(s.subscribed, c)
		s.mu.Unlock()
		s.logger.WithField("char_uuid", normalized).Debug("Subscribed to characteristic notifications")
	}
	return errors.Join(errs...)
}

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) finish(err error) bool {
	first := false
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
		first = true
	})
	return first
}

// Close unsubscribes and cancels the connection. It is safe to call more than once.
func (s *Session) Close() error {
	lost := !s.finish(nil)

	s.mu.Lock()
	subs := s.subscribed
	s.subscribed = nil
	s.mu.Unlock()

	if len(subs) == 0 && lost {
		// already torn down or dropped by the peer
		return nil
	}

	s.logger.WithField("address", s.address).Info("Disconnecting BLE device...")

	var unsubErrs []string
	for _, c := range subs {
		err1 := NormalizeError(s.client.Unsubscribe(c, false))
		err2 := NormalizeError(s.client.Unsubscribe(c, true))
		if err1 != nil && err2 != nil && !errors.Is(err1, device.ErrNotConnected) {
			unsubErrs = append(unsubErrs, fmt.Sprintf("%s: %v", c.UUID, err1))
		}
	}
	if len(unsubErrs) > 0 {
		s.logger.WithField("errors", strings.Join(unsubErrs, "; ")).Warn("Failed to unsubscribe from some characteristics during disconnect")
	}

	err := NormalizeError(s.client.CancelConnection())
	if err != nil && !errors.Is(err, device.ErrNotConnected) {
		s.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return err
	}
	s.logger.Info("BLE device disconnected successfully")
	return nil
}
