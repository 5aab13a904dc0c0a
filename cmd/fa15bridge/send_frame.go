package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/fa15bridge/internal/frame"
	"github.com/srg/fa15bridge/internal/sink"
)

// DefaultTestFrame is the fixed frame sent by send-frame when none is given.
const DefaultTestFrame = "FF07143102000000004D"

// sendFrameCmd repeatedly writes one fixed frame, to check the receiving equipment and cabling
var sendFrameCmd = &cobra.Command{
	Use:   "send-frame [hex]",
	Short: "Send a fixed test frame repeatedly",
	Long: `Send one fixed 10-byte frame to a serial port at a fixed interval until interrupted.

The frame defaults to ` + DefaultTestFrame + ` and is checked for header and checksum unless --raw
is given. By default it is sent as upper-case ASCII hex text at 38400 baud.`,
	Example: `  fa15bridge send-frame --port /dev/ttyUSB0
  fa15bridge send-frame FF070C2D010402000147 --port COM1 --ascii-hex=false --count 5`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSendFrame,
}

func init() {
	sendFrameCmd.Flags().StringP("port", "p", "", "Serial port to write to")
	sendFrameCmd.Flags().String("sink", "serial", "Output (serial, pty, debug)")
	sendFrameCmd.Flags().Int("baud", 38400, "Baud rate")
	sendFrameCmd.Flags().Duration("interval", time.Second, "Delay between frames")
	sendFrameCmd.Flags().Int("count", 0, "Number of frames to send (0 sends until interrupted)")
	sendFrameCmd.Flags().Bool("ascii-hex", true, "Send the frame as ASCII hex text instead of binary")
	sendFrameCmd.Flags().Bool("raw", false, "Send the bytes without header and checksum validation")
	sendFrameCmd.Flags().String("pty-symlink", "", "Symlink to create for the PTY device")
}

type sendFrameConfig struct {
	payload  []byte
	interval time.Duration
	count    int
	sinkOpts *sink.Options
}

func sendFrameConfigFromFlags(cmd *cobra.Command, args []string) (*sendFrameConfig, error) {
	text := DefaultTestFrame
	if len(args) == 1 {
		text = args[0]
	}

	raw, _ := cmd.Flags().GetBool("raw")
	var payload []byte
	if raw {
		b, err := parseHexBytes(text)
		if err != nil {
			return nil, fmt.Errorf("invalid frame %q: %w", text, err)
		}
		if len(b) == 0 {
			return nil, fmt.Errorf("invalid frame %q: empty", text)
		}
		payload = b
	} else {
		f, err := frame.ParseHex(text)
		if err != nil {
			return nil, fmt.Errorf("invalid frame %q: %w", text, err)
		}
		payload = f.Bytes()
	}

	kindName, _ := cmd.Flags().GetString("sink")
	kind, err := sink.ParseKind(kindName)
	if err != nil {
		return nil, err
	}
	port, _ := cmd.Flags().GetString("port")
	if kind == sink.KindSerial && port == "" {
		return nil, fmt.Errorf("--port is required for the serial sink")
	}

	cfg := &sendFrameConfig{payload: payload}
	cfg.interval, _ = cmd.Flags().GetDuration("interval")
	cfg.count, _ = cmd.Flags().GetInt("count")
	if cfg.interval <= 0 {
		return nil, fmt.Errorf("invalid interval %s: must be positive", cfg.interval)
	}
	if cfg.count < 0 {
		return nil, fmt.Errorf("invalid count %d: must not be negative", cfg.count)
	}

	baud, _ := cmd.Flags().GetInt("baud")
	asciiHex, _ := cmd.Flags().GetBool("ascii-hex")
	symlink, _ := cmd.Flags().GetString("pty-symlink")
	cfg.sinkOpts = &sink.Options{
		Kind:     kind,
		Port:     port,
		BaudRate: baud,
		Symlink:  symlink,
		ASCIIHex: asciiHex,
		Out:      cmd.OutOrStdout(),
	}
	return cfg, nil
}

func runSendFrame(cmd *cobra.Command, args []string) error {
	cfg, err := sendFrameConfigFromFlags(cmd, args)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, "verbose", "info")
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	out, err := openSink(cfg.sinkOpts, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s output: %w", cfg.sinkOpts.Kind, err)
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close output")
		}
	}()

	w := cmd.OutOrStdout()
	text := strings.ToUpper(fmt.Sprintf("%x", cfg.payload))
	fmt.Fprintf(w, "Starting transmission to %s at %d baud.\n", out.Name(), cfg.sinkOpts.BaudRate)

	ctx, cancel := signalContext(cmd.Context(), nil)
	defer cancel()

	sent, err := sendRepeatedly(ctx, out, cfg, logger, func() { fmt.Fprintf(w, "Sent: %s\n", text) })
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(w, "Transmission interrupted by user.")
		err = nil
	}
	logger.WithField("frames_sent", sent).Debug("Transmission finished")
	return err
}

// sendRepeatedly writes cfg.payload immediately and then every cfg.interval until count attempts were
// made or ctx is done. Write failures are logged and do not stop the loop.
func sendRepeatedly(ctx context.Context, out sink.Sink, cfg *sendFrameConfig, logger *logrus.Logger, onSent func()) (int, error) {
	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	sent := 0
	for attempts := 1; ; attempts++ {
		if _, err := out.Write(cfg.payload); err != nil {
			logger.WithError(err).WithField("output", out.Name()).Warn("Failed to send frame")
		} else {
			sent++
			onSent()
		}

		if cfg.count > 0 && attempts >= cfg.count {
			return sent, nil
		}

		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case <-ticker.C:
		}
	}
}
