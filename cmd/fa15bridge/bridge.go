package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/fa15bridge/bridge"
	"github.com/srg/fa15bridge/internal/console"
	"github.com/srg/fa15bridge/internal/groutine"
	"github.com/srg/fa15bridge/internal/metrics"
	"github.com/srg/fa15bridge/internal/sink"
	"github.com/srg/fa15bridge/pkg/config"
	"github.com/srg/fa15bridge/scanner"
)

// bridgeCmd represents the bridge command
var bridgeCmd = &cobra.Command{
	Use:   "bridge [device-address]",
	Short: "Bridge an FA-15 apparatus to a serial output",
	Long: `Connects to an FA-15 apparatus over Bluetooth Low Energy and sends the legacy 10-byte
scoring frame to a serial port, a virtual serial port (PTY) or the console once per interval.

Without a device address the strongest FA-15 found by a scan is used. Without a serial port
the frames are printed as hex (debug output).

Settings are read from --config (YAML) when given; flags override the file.`,
	Example: `  fa15bridge bridge
  fa15bridge bridge AA:BB:CC:DD:EE:FF --port /dev/ttyUSB0
  fa15bridge bridge --sink pty --pty-symlink /tmp/fa15 --score-encoding bcd
  fa15bridge bridge --config fa15bridge.yaml --metrics-addr :9115`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBridge,
}

func init() {
	f := bridgeCmd.Flags()
	f.StringP("config", "c", "", "YAML configuration file")

	f.String("name", scanner.DefaultNameFilter, "Local name filter used when scanning for the device")
	f.Duration("scan-timeout", 10*time.Second, "How long to scan when no address is given")
	f.Bool("first", false, "Use the first device found instead of the strongest")
	f.Duration("connect-timeout", 30*time.Second, "Connection timeout")

	f.String("sink", "debug", "Output (serial, pty, debug); --port alone selects serial")
	f.StringP("port", "p", "", "Serial port to write frames to")
	f.Int("baud", 9600, "Serial baud rate")
	f.String("pty-symlink", "", "Create a symlink to the PTY device (e.g. /tmp/fa15)")
	f.Bool("ascii-hex", false, "Send frames as ASCII hex text instead of binary")

	f.Duration("interval", time.Second, "Frame transmit interval")
	f.String("score-encoding", "raw", "Score byte encoding (raw, bcd)")

	f.BoolP("quiet", "q", false, "Do not print notifications")
	f.Bool("no-color", false, "Disable colored output")
	f.Bool("show-frames", false, "Print every transmitted frame")

	f.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9115)")
}

// loadBridgeConfig reads --config (or the defaults) and applies every flag set on the command line.
func loadBridgeConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	changed := flags.Changed

	if len(args) == 1 {
		cfg.Device.Address = args[0]
	}
	if changed("name") {
		cfg.Device.NameFilter, _ = flags.GetString("name")
	}
	if changed("scan-timeout") {
		cfg.Device.ScanTimeout, _ = flags.GetDuration("scan-timeout")
	}
	if changed("connect-timeout") {
		cfg.Device.ConnectTimeout, _ = flags.GetDuration("connect-timeout")
	}
	if changed("sink") {
		cfg.Output.Sink, _ = flags.GetString("sink")
	}
	if changed("port") {
		cfg.Output.Port, _ = flags.GetString("port")
		if !changed("sink") && cfg.Output.Sink == string(sink.KindDebug) {
			cfg.Output.Sink = string(sink.KindSerial)
		}
	}
	if changed("baud") {
		cfg.Output.BaudRate, _ = flags.GetInt("baud")
	}
	if changed("pty-symlink") {
		cfg.Output.PTYSymlink, _ = flags.GetString("pty-symlink")
	}
	if changed("ascii-hex") {
		cfg.Output.ASCIIHex, _ = flags.GetBool("ascii-hex")
	}
	if changed("interval") {
		cfg.Transmit.Interval, _ = flags.GetDuration("interval")
	}
	if changed("score-encoding") {
		cfg.Transmit.ScoreEncoding, _ = flags.GetString("score-encoding")
	}
	if changed("quiet") {
		cfg.Console.Quiet, _ = flags.GetBool("quiet")
	}
	if changed("no-color") {
		cfg.Console.NoColor, _ = flags.GetBool("no-color")
	}
	if changed("show-frames") {
		cfg.Console.ShowFrames, _ = flags.GetBool("show-frames")
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadBridgeConfig(cmd, args)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, "verbose", cfg.LogLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	out := cmd.OutOrStdout()
	ctx, cancel := signalContext(cmd.Context(), func() {
		logger.Info("Received interrupt signal, shutting down...")
	})
	defer cancel()
	defer func() {
		if err := releaseBLE(); err != nil {
			logger.WithError(err).Debug("Failed to release BLE device")
		}
	}()

	first, _ := cmd.Flags().GetBool("first")
	address, err := resolveAddress(ctx, cmd.ErrOrStderr(), cfg, first, logger)
	if err != nil {
		return err
	}

	output, err := openSink(cfg.SinkOptions(out), logger)
	if err != nil {
		return fmt.Errorf("failed to open %s output: %w", cfg.Output.Sink, err)
	}
	defer func() {
		if err := output.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close output")
		}
	}()
	logger.WithField("sink", cfg.Output.Sink).Infof("Sending frames to %s", output.Name())

	m := metrics.New()
	if p, ok := output.(*sink.PTY); ok {
		logger.WithFields(logrus.Fields{
			"tty":     p.TTYName(),
			"symlink": cfg.Output.PTYSymlink,
		}).Info("Virtual serial port ready")
		fmt.Fprintf(cmd.ErrOrStderr(), "Legacy scoring software can open %s\n", p.TTYName())
		registerPTYMetrics(m, p)
	}
	if cfg.MetricsAddr != "" {
		groutine.Go(ctx, "metrics-server", func(ctx context.Context) {
			if err := m.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.WithError(err).Error("Metrics server failed")
			}
		})
	}

	opts := &bridge.BridgeOptions{
		BleAddress:        address,
		BleConnectTimeout: cfg.Device.ConnectTimeout,
		BleReadTimeout:    cfg.Device.ReadTimeout,
		Connect:           connectSession,
		Sink:              output,
		ScoreEncoding:     cfg.ScoreEncoding(),
		Interval:          cfg.Transmit.Interval,
		Logger:            logger,
		Metrics:           m,
	}

	if !cfg.Console.Quiet {
		collector, err := console.NewCollector(cfg.Console.BufferSize)
		if err != nil {
			return err
		}
		opts.Observer = collector
		registerConsoleMetrics(m, collector)
		if cfg.Console.ShowFrames {
			opts.OnFrame = collector.ObserveFrame
		}

		drainer := console.NewDrainer(ctx, collector, console.NewRenderer(out, cfg.Console.NoColor), console.DefaultDrainInterval, logger)
		defer func() {
			drainer.Cancel()
			drainer.Wait()
		}()
	}

	status := NewBridgeStatus(cmd.ErrOrStderr(), address)
	status.Start()
	defer status.Stop()

	err = bridge.Run(ctx, opts, status.Phase)
	if err != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerPTYMetrics exposes the virtual serial port queue counters next to the bridge metrics.
func registerPTYMetrics(m *metrics.Metrics, p *sink.PTY) {
	m.Registry().MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "fa15bridge",
			Name:      "pty_dropped_bytes_total",
			Help:      "Bytes dropped because nothing read the virtual serial port.",
		}, func() float64 { return float64(p.Stats().DroppedBytes) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "fa15bridge",
			Name:      "pty_queue_bytes",
			Help:      "Bytes waiting in the virtual serial port queue.",
		}, func() float64 { return float64(p.Stats().QueueLen) }),
	)
}

// registerConsoleMetrics exposes how many console records were overwritten before they were shown.
func registerConsoleMetrics(m *metrics.Metrics, c *console.Collector) {
	m.Registry().MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "fa15bridge",
		Name:      "console_records_dropped_total",
		Help:      "Console records overwritten because the console fell behind.",
	}, func() float64 { return float64(c.Metrics().Overwritten) }))
}

// resolveAddress returns the configured address, or scans for the apparatus when there is none.
func resolveAddress(ctx context.Context, progressOut io.Writer, cfg *config.Config, first bool, logger *logrus.Logger) (string, error) {
	if cfg.Device.Address != "" {
		return cfg.Device.Address, nil
	}

	backend, err := newBLEScanner()
	if err != nil {
		return "", fmt.Errorf("failed to create BLE scanner: %w", err)
	}
	s, err := scanner.NewScanner(backend, logger)
	if err != nil {
		return "", err
	}

	status := NewScanStatus(progressOut, "Looking for an FA-15", cfg.Device.ScanTimeout)
	status.Start()
	devices, err := s.Scan(ctx, &scanner.ScanOptions{
		Duration:        cfg.Device.ScanTimeout,
		DuplicateFilter: true,
		NameFilter:      cfg.Device.NameFilter,
		StopOnFirst:     first,
	}, status.Phase)
	status.Stop()

	if err != nil {
		return "", fmt.Errorf("scan failed: %w", err)
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("%w (name filter %q, scanned %s)", ErrNoDevice, cfg.Device.NameFilter, cfg.Device.ScanTimeout)
	}

	logger.WithField("candidates", len(devices)).Infof("Selected %s", devices[0])
	return devices[0].Address, nil
}
