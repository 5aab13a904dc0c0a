package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/fa15bridge/internal/device"
)

// DefaultNameFilter matches the local name FA-15 apparatus advertise with.
const DefaultNameFilter = "FA15"

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

func (t DeviceEventType) String() string {
	if t == EventNew {
		return "new"
	}
	return "updated"
}

// Device is a discovered peripheral.
type Device struct {
	Name        string
	Address     string
	RSSI        int
	Connectable bool
	Services    []string
	LastSeen    time.Time
}

func (d Device) String() string {
	name := d.Name
	if name == "" {
		name = "(unnamed)"
	}
	return fmt.Sprintf("%s [%s] RSSI %d dBm", name, d.Address, d.RSSI)
}

type DeviceEvent struct {
	Type   DeviceEventType
	Device Device
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration `default:"10s"`
	DuplicateFilter bool          `default:"true"`
	// NameFilter is matched case-insensitively against the local name; "*" disables it.
	NameFilter string `default:"FA15"`
	AllowList  []string
	BlockList  []string
	// ServiceFilter keeps only devices advertising at least one of these services (any UUID spelling).
	ServiceFilter []string
	// StopOnFirst ends the scan as soon as one device passes the filters.
	StopOnFirst bool
	// OnEvent is called from the scan callback for every accepted advertisement.
	OnEvent func(DeviceEvent)
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	opts := &ScanOptions{}
	defaults.SetDefaults(opts)
	return opts
}

// Scanner handles FA-15 discovery over a device.Scanner backend
type Scanner struct {
	backend device.Scanner
	devices *hashmap.Map[string, Device]
	logger  *logrus.Logger
	now     func() time.Time
}

// NewScanner creates a new BLE scanner
func NewScanner(backend device.Scanner, logger *logrus.Logger) (*Scanner, error) {
	if backend == nil {
		return nil, fmt.Errorf("scanner backend is nil")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		backend: backend,
		devices: hashmap.New[string, Device](),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Scan performs BLE discovery with provided options and returns matching devices, strongest signal first.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) ([]Device, error) {
	s.devices = hashmap.New[string, Device]()

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}
	if len(opts.ServiceFilter) > 0 {
		services, err := device.ValidateUUID(opts.ServiceFilter...)
		if err != nil {
			return nil, fmt.Errorf("invalid service filter: %w", err)
		}
		normalized := *opts
		normalized.ServiceFilter = services
		opts = &normalized
	}

	s.logger.WithFields(logrus.Fields{
		"duration":       opts.Duration,
		"name_filter":    opts.NameFilter,
		"service_filter": opts.ServiceFilter,
	}).Info("Starting BLE scan...")

	progressCallback("Scanning")

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.Duration > 0 {
		var cancelTimeout context.CancelFunc
		scanCtx, cancelTimeout = context.WithTimeout(scanCtx, opts.Duration)
		defer cancelTimeout()
	}

	err := s.backend.Scan(scanCtx, !opts.DuplicateFilter, func(adv device.Advertisement) {
		if s.handleAdvertisement(adv, opts) && opts.StopOnFirst {
			cancel()
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if ctx.Err() != nil && s.devices.Len() == 0 {
		return nil, ctx.Err()
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")

	progressCallback("Processing results")

	return s.makeDeviceList(), nil
}

// handleAdvertisement updates existing or adds a new device. It reports whether adv was accepted.
func (s *Scanner) handleAdvertisement(adv device.Advertisement, opts *ScanOptions) bool {
	addr := strings.ToLower(adv.Addr())

	_, existing := s.devices.Get(addr)
	if !existing && !shouldIncludeDevice(adv, opts) {
		return false
	}

	dev := Device{
		Name:        adv.LocalName(),
		Address:     adv.Addr(),
		RSSI:        adv.RSSI(),
		Connectable: adv.Connectable(),
		Services:    adv.Services(),
		LastSeen:    s.now(),
	}
	if prev, ok := s.devices.Get(addr); ok && dev.Name == "" {
		// scan responses often omit the name
		dev.Name = prev.Name
	}
	s.devices.Set(addr, dev)

	event := DeviceEvent{Type: EventUpdated, Device: dev}
	if !existing {
		s.logger.WithFields(logrus.Fields{
			"device":  dev.Name,
			"address": dev.Address,
			"rssi":    dev.RSSI,
		}).Info("Discovered new device")
		event.Type = EventNew
	}

	if opts.OnEvent != nil {
		opts.OnEvent(event)
	}
	return true
}

// shouldIncludeDevice applies the block/allow/name filters
func shouldIncludeDevice(adv device.Advertisement, opts *ScanOptions) bool {
	addr := adv.Addr()

	for _, blocked := range opts.BlockList {
		if strings.EqualFold(addr, blocked) {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if strings.EqualFold(addr, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if !advertisesAny(adv, opts.ServiceFilter) {
		return false
	}

	return MatchesName(adv.LocalName(), opts.NameFilter)
}

// advertisesAny reports whether adv lists one of the normalized services. An empty filter matches everything.
func advertisesAny(adv device.Advertisement, services []string) bool {
	if len(services) == 0 {
		return true
	}
	for _, advertised := range adv.Services() {
		normalized := device.NormalizeUUID(advertised)
		for _, want := range services {
			if normalized == want {
				return true
			}
		}
	}
	return false
}

// MatchesName reports whether name contains filter, ignoring case. An empty or "*" filter matches everything.
func MatchesName(name, filter string) bool {
	if filter == "" || filter == "*" {
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(filter))
}

// makeDeviceList returns a snapshot sorted by RSSI (strongest first), then address
func (s *Scanner) makeDeviceList() []Device {
	devs := make([]Device, 0, s.devices.Len())

	s.devices.Range(func(_ string, value Device) bool {
		devs = append(devs, value)
		return true
	})

	sort.Slice(devs, func(i, j int) bool {
		if devs[i].RSSI != devs[j].RSSI {
			return devs[i].RSSI > devs[j].RSSI
		}
		return devs[i].Address < devs[j].Address
	})
	return devs
}
