package sink

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// SerialOptions configures a hardware serial port. The defaults match the legacy receiver (9600 8N1).
type SerialOptions struct {
	Port     string
	BaudRate int           `default:"9600"`
	DataBits int           `default:"8"`
	StopBits int           `default:"1"`
	Parity   string        `default:"N"`
	Timeout  time.Duration `default:"1s"`
}

func (o *SerialOptions) config() *serial.Config {
	return &serial.Config{
		Address:  o.Port,
		BaudRate: o.BaudRate,
		DataBits: o.DataBits,
		StopBits: o.StopBits,
		Parity:   o.Parity,
		Timeout:  o.Timeout,
	}
}

func (o *SerialOptions) validate() error {
	if o.Port == "" {
		return fmt.Errorf("serial port is required")
	}
	switch o.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("invalid parity %q (must be N, E or O)", o.Parity)
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return fmt.Errorf("invalid data bits %d (must be 5-8)", o.DataBits)
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return fmt.Errorf("invalid stop bits %d (must be 1 or 2)", o.StopBits)
	}
	if o.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", o.BaudRate)
	}
	return nil
}

// openPort is replaced in tests.
var openPort = func(c *serial.Config) (io.WriteCloser, error) {
	return serial.Open(c)
}

// ErrPortClosed is returned by writes after Close.
var ErrPortClosed = errors.New("serial port closed")

// Serial writes frames to a serial port. After a failed write the port is closed
// and reopened on the next write, so a receiver that was unplugged resumes once it is back.
type Serial struct {
	mu     sync.Mutex
	opts   SerialOptions
	logger *logrus.Logger
	port   io.WriteCloser
	closed bool
}

// OpenSerial opens the port immediately so configuration errors surface before the session starts.
func OpenSerial(opts *SerialOptions, logger *logrus.Logger) (*Serial, error) {
	var o SerialOptions
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)
	if err := o.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	port, err := openPort(o.config())
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", o.Port, err)
	}
	logger.WithFields(logrus.Fields{
		"port": o.Port,
		"baud": o.BaudRate,
	}).Info("Opened serial port")

	return &Serial{opts: o, logger: logger, port: port}, nil
}

func (s *Serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrPortClosed
	}
	if s.port == nil {
		port, err := openPort(s.opts.config())
		if err != nil {
			return 0, fmt.Errorf("reopen serial port %s: %w", s.opts.Port, err)
		}
		s.logger.WithField("port", s.opts.Port).Info("Reopened serial port")
		s.port = port
	}

	n, err := s.port.Write(p)
	if err != nil {
		_ = s.port.Close()
		s.port = nil
		return n, err
	}
	return n, nil
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

func (s *Serial) Name() string { return s.opts.Port }
