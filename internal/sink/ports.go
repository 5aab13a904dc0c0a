package sink

import (
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/goburrow/serial"
)

// PortInfo describes one candidate serial device.
type PortInfo struct {
	Path      string
	Available bool
	Err       error // why the port could not be opened
}

// Status renders Available or In Use.
func (p PortInfo) Status() string {
	if p.Available {
		return "Available"
	}
	return "In Use"
}

// DefaultPortPatterns returns the device globs scanned by ListPorts on this platform.
func DefaultPortPatterns() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/dev/cu.*", "/dev/tty.usbserial*", "/dev/tty.usbmodem*"}
	case "windows":
		return nil
	default:
		return []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyS*", "/dev/ttyAMA*", "/dev/rfcomm*"}
	}
}

// checkPort is replaced in tests.
var checkPort = func(path string) error {
	p, err := serial.Open(&serial.Config{Address: path, BaudRate: 9600, Timeout: 100 * time.Millisecond})
	if err != nil {
		return err
	}
	return p.Close()
}

// ListPorts expands patterns (DefaultPortPatterns when empty) and checks every match by opening it.
func ListPorts(patterns ...string) ([]PortInfo, error) {
	if len(patterns) == 0 {
		patterns = DefaultPortPatterns()
	}

	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)

	ports := make([]PortInfo, 0, len(paths))
	for _, path := range paths {
		err := checkPort(path)
		ports = append(ports, PortInfo{Path: path, Available: err == nil, Err: err})
	}
	return ports, nil
}
