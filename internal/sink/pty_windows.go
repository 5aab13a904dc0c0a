//go:build windows

package sink

import "github.com/sirupsen/logrus"

// PTYOptions configures a virtual serial port.
type PTYOptions struct {
	BufferSize    int
	Symlink       string
	Logger        *logrus.Logger
	PollTimeoutMs int
}

// PTY is not available on Windows; use a com0com pair with the serial sink instead.
type PTY struct{}

func OpenPTY(*PTYOptions) (*PTY, error) { return nil, ErrUnsupported }

func (*PTY) Write([]byte) (int, error) { return 0, ErrUnsupported }
func (*PTY) Close() error { return nil }
func (*PTY) Name() string { return "" }
func (*PTY) TTYName() string { return "" }
func (*PTY) Stats() PTYStats { return PTYStats{} }
