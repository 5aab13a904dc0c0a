// Package sink provides the outputs a frame stream can be written to:
// a hardware serial port, a virtual serial port (PTY) or a human-readable debug writer.
package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// Kind selects a sink implementation.
type Kind string

const (
	KindSerial Kind = "serial"
	KindPTY    Kind = "pty"
	KindDebug  Kind = "debug"
)

// ParseKind accepts serial, pty or debug (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSerial, KindPTY, KindDebug:
		return k, nil
	default:
		return "", fmt.Errorf("unknown sink %q (must be serial, pty or debug)", s)
	}
}

// ErrUnsupported is returned for sinks not available on this platform.
var ErrUnsupported = errors.New("sink not supported on this platform")

// Sink receives encoded frames. Implementations are safe for concurrent use.
type Sink interface {
	io.WriteCloser
	// Name describes where the frames go, e.g. a device path.
	Name() string
}

// Options configures Open. Zero fields take the defaults in the struct tags.
type Options struct {
	Kind Kind `default:"debug"`

	// serial
	Port     string
	BaudRate int           `default:"9600"`
	DataBits int           `default:"8"`
	StopBits int           `default:"1"`
	Parity   string        `default:"N"`
	Timeout  time.Duration `default:"1s"`

	// pty
	Symlink       string
	PTYBufferSize int `default:"1024"`

	// debug, and serial text mode
	ASCIIHex bool
	Out      io.Writer
}

// Open creates the sink selected by opts.Kind.
func Open(opts *Options, logger *logrus.Logger) (Sink, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)
	if logger == nil {
		logger = logrus.New()
	}

	switch o.Kind {
	case KindSerial:
		s, err := OpenSerial(&SerialOptions{
			Port:     o.Port,
			BaudRate: o.BaudRate,
			DataBits: o.DataBits,
			StopBits: o.StopBits,
			Parity:   o.Parity,
			Timeout:  o.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		if o.ASCIIHex {
			return NewHexText(s), nil
		}
		return s, nil
	case KindPTY:
		p, err := OpenPTY(&PTYOptions{
			BufferSize: o.PTYBufferSize,
			Symlink:    o.Symlink,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case KindDebug:
		out := o.Out
		if out == nil {
			out = os.Stdout
		}
		return NewDebug(out, o.ASCIIHex), nil
	default:
		return nil, fmt.Errorf("unknown sink %q", o.Kind)
	}
}

// PTYStats provides runtime counters for the PTY sink.
type PTYStats struct {
	QueueLen     int
	QueueCap     int
	DroppedBytes uint64
	WrittenBytes uint64
	InputBytes   uint64 // bytes the client wrote to us, discarded
}
