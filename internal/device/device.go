package device

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [charUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
	BluetoothOff     ConnectionState = "bluetooth_off"
	SessionLost      ConnectionState = "session_lost"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}

	// ErrSessionLost is reported when the peripheral drops an established session.
	// It is fatal to the bridge session that owns the connection.
	ErrSessionLost = &ConnectionError{State: SessionLost}
)

// Operation errors
var (
	ErrTimeout     = errors.New("timeout")
	ErrUnsupported = errors.New("unsupported")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// Notification is a single characteristic value delivered by a BLE session,
// either from the initial read or from a push notification.
type Notification struct {
	UUID string // normalized characteristic UUID
	Data []byte
	At   time.Time
}

// NotificationHandler receives notifications. Implementations must not block for long:
// it is called from the BLE stack's callback context.
type NotificationHandler func(Notification)

// Session is a live GATT client session with a peripheral.
type Session interface {
	// Address returns the peer address the session is connected to.
	Address() string

	// Read performs a one-shot read of the characteristic with the given UUID.
	Read(uuid string, timeout time.Duration) ([]byte, error)

	// Has reports whether the peripheral exposes the characteristic.
	Has(uuid string) bool

	// Subscribe enables notifications for each UUID and routes them to handler.
	// UUIDs the peripheral does not expose are reported in the returned error;
	// the remaining ones stay subscribed.
	Subscribe(uuids []string, handler NotificationHandler) error

	// Done is closed when the session ends, either by Close or by the peer.
	Done() <-chan struct{}

	// Err returns the reason Done was closed: nil for Close, ErrSessionLost when the peer dropped.
	Err() error

	Close() error
}

// Advertisement is a received BLE advertisement
type Advertisement interface {
	LocalName() string
	Services() []string
	RSSI() int
	Addr() string
	Connectable() bool
}

// Scanner discovers advertising peripherals
type Scanner interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// ConnectOptions defines BLE connection options
type ConnectOptions struct {
	Address        string
	ConnectTimeout time.Duration
}
