// Package dispatch routes BLE notifications to their decoder and merges the results into the state store.
package dispatch

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/fa15bridge/internal/device"
	"github.com/srg/fa15bridge/internal/groutine"
	"github.com/srg/fa15bridge/internal/metrics"
	"github.com/srg/fa15bridge/internal/scoring"
)

// Event describes the outcome of dispatching one notification.
type Event struct {
	At      time.Time
	UUID    string
	Kind    scoring.Kind // KindUnknown for identifiers outside the vocabulary
	Display string
	Update  scoring.Update // nil unless the update was applied
	Err     error
}

// Known reports whether the notification came from a vocabulary characteristic.
func (e Event) Known() bool {
	return e.Kind != scoring.KindUnknown
}

// Observer receives every dispatched event. It is called on the dispatcher goroutine and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Applier is the write side of the state store.
type Applier interface {
	Apply(scoring.Update)
}

// Options configures a Dispatcher. All fields are optional.
type Options struct {
	Logger   *logrus.Logger
	Observer Observer
	Metrics  *metrics.Metrics
}

// Dispatcher decodes notifications one at a time and applies their updates in arrival order.
type Dispatcher struct {
	decoder  *scoring.Decoder
	store    Applier
	logger   *logrus.Logger
	observer Observer
	metrics  *metrics.Metrics
}

// New creates a dispatcher writing into store.
func New(decoder *scoring.Decoder, store Applier, opts *Options) *Dispatcher {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{
		decoder:  decoder,
		store:    store,
		logger:   logger,
		observer: opts.Observer,
		metrics:  opts.Metrics,
	}
}

// Dispatch handles a single notification. Decode failures leave the store untouched and are reported in Event.Err.
func (d *Dispatcher) Dispatch(n device.Notification) Event {
	ev := Event{At: n.At, UUID: n.UUID}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	kind, ok := scoring.KindForUUID(n.UUID)
	if !ok {
		ev.Display = scoring.RawDisplay(n.Data)
		d.metrics.Unknown()
		d.logger.WithFields(logrus.Fields{
			"uuid":    n.UUID,
			"payload": hex.EncodeToString(n.Data),
		}).Debug("Notification from unknown characteristic")
		d.notify(ev)
		return ev
	}

	ev.Kind = kind
	d.metrics.Notification(kind.String())

	res, err := d.decoder.Decode(kind, n.Data)
	if err != nil {
		ev.Err = err
		ev.Display = scoring.RawDisplay(n.Data)
		d.metrics.DecodeError(kind.String())
		d.logger.WithFields(logrus.Fields{
			"kind":    kind.String(),
			"uuid":    n.UUID,
			"payload": hex.EncodeToString(n.Data),
		}).WithError(err).Warn("Discarding invalid payload")
		d.notify(ev)
		return ev
	}

	ev.Display = res.Display
	if len(res.Update) > 0 {
		d.store.Apply(res.Update)
		ev.Update = res.Update
		d.metrics.UpdateApplied()
	}

	d.logger.WithFields(logrus.Fields{
		"kind":   kind.String(),
		"update": res.Update.String(),
	}).Trace("Notification applied")

	d.notify(ev)
	return ev
}

func (d *Dispatcher) notify(ev Event) {
	if d.observer != nil {
		d.observer.Observe(ev)
	}
}

// Run dispatches notifications from ch until ctx is cancelled or ch is closed.
// A panic while handling one notification is logged and does not stop the loop.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan device.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-ch:
			if !ok {
				d.logger.Debug("Notification channel closed")
				return nil
			}
			d.safeDispatch(ctx, n)
		}
	}
}

func (d *Dispatcher) safeDispatch(ctx context.Context, n device.Notification) {
	defer groutine.Recover(ctx, d.logger, nil)
	d.Dispatch(n)
}

// ReadInitial reads every vocabulary characteristic the session exposes and dispatches the values,
// so the store reflects the device before the first notification arrives.
// Characteristics that fail to read are logged and skipped.
func (d *Dispatcher) ReadInitial(session device.Session, timeout time.Duration) []Event {
	kinds := append(scoring.NotifyKinds(), scoring.DeviceInfoKinds()...)

	events := make([]Event, 0, len(kinds))
	for _, kind := range kinds {
		uuid := kind.UUID()
		if !session.Has(uuid) {
			d.logger.WithField("kind", kind.String()).Debug("Characteristic not exposed by device")
			continue
		}
		data, err := session.Read(uuid, timeout)
		if err != nil {
			d.logger.WithField("kind", kind.String()).WithError(err).Warn("Initial read failed")
			continue
		}
		events = append(events, d.Dispatch(device.Notification{UUID: uuid, Data: data, At: time.Now()}))
	}
	return events
}

// DeviceInfo extracts the model and revision strings from the events returned by ReadInitial.
type DeviceInfo struct {
	Model    string
	Firmware string
	Software string
}

func (i DeviceInfo) String() string {
	model := i.Model
	if model == "" {
		model = "unknown device"
	}
	return fmt.Sprintf("%s (FW: %s SW: %s)", model, orUnknown(i.Firmware), orUnknown(i.Software))
}

// CollectDeviceInfo picks the device information strings out of events.
func CollectDeviceInfo(events []Event) DeviceInfo {
	var info DeviceInfo
	for _, ev := range events {
		if ev.Err != nil {
			continue
		}
		switch ev.Kind {
		case scoring.KindModelNumber:
			info.Model = ev.Display
		case scoring.KindFirmwareRevision:
			info.Firmware = ev.Display
		case scoring.KindSoftwareRevision:
			info.Software = ev.Display
		}
	}
	return info
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
