// Package metrics exposes bridge counters in Prometheus format.
//
// A nil *Metrics is valid and records nothing, so components take it as an optional dependency.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "fa15bridge"

// Metrics holds the bridge collectors and the registry they are registered in.
type Metrics struct {
	registry *prometheus.Registry

	notifications *prometheus.CounterVec
	decodeErrors  *prometheus.CounterVec
	unknown       prometheus.Counter
	updates       prometheus.Counter
	framesSent    prometheus.Counter
	sinkErrors    prometheus.Counter
	stateVersion  prometheus.Gauge
	connected     prometheus.Gauge
}

// New creates the collectors in a private registry together with the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "BLE notifications and reads dispatched, by characteristic.",
		}, []string{"kind"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Payloads rejected by a decoder, by characteristic.",
		}, []string{"kind"}),
		unknown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_characteristic_total",
			Help:      "Notifications from characteristics outside the vocabulary.",
		}),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_updates_total",
			Help:      "State updates applied to the store.",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the output sink.",
		}),
		sinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_write_errors_total",
			Help:      "Failed frame writes.",
		}),
		stateVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state_version",
			Help:      "Number of updates reflected in the last transmitted frame.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ble_connected",
			Help:      "1 while a BLE session is established.",
		}),
	}

	m.registry.MustRegister(
		m.notifications,
		m.decodeErrors,
		m.unknown,
		m.updates,
		m.framesSent,
		m.sinkErrors,
		m.stateVersion,
		m.connected,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Notification(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}

func (m *Metrics) DecodeError(kind string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) Unknown() {
	if m == nil {
		return
	}
	m.unknown.Inc()
}

func (m *Metrics) UpdateApplied() {
	if m == nil {
		return
	}
	m.updates.Inc()
}

// FrameSent records a successful write of a frame built from the given store version.
func (m *Metrics) FrameSent(version uint64) {
	if m == nil {
		return
	}
	m.framesSent.Inc()
	m.stateVersion.Set(float64(version))
}

func (m *Metrics) SinkError() {
	if m == nil {
		return
	}
	m.sinkErrors.Inc()
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Serve runs the metrics HTTP server on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *logrus.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.WithField("addr", addr).Info("Metrics server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Metrics server shutdown failed")
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
