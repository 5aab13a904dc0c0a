package scoring

import (
	"errors"
	"fmt"
)

// ErrInvalidPayload matches every *InvalidPayloadError via errors.Is.
var ErrInvalidPayload = errors.New("invalid payload")

// InvalidPayloadError reports a payload of the wrong length or with an out-of-range value.
type InvalidPayloadError struct {
	Kind     Kind
	Expected int    // expected length; for minimum-length kinds, the minimum
	Actual   int    // received length
	Reason   string // set for out-of-range values
}

func (e *InvalidPayloadError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s payload: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("invalid %s payload: expected %d bytes, got %d", e.Kind, e.Expected, e.Actual)
}

// Is allows errors.Is(err, ErrInvalidPayload)
func (e *InvalidPayloadError) Is(target error) bool {
	return target == ErrInvalidPayload
}

func lengthError(kind Kind, expected int, payload []byte) error {
	return &InvalidPayloadError{Kind: kind, Expected: expected, Actual: len(payload)}
}

func rangeError(kind Kind, payload []byte, format string, args ...any) error {
	return &InvalidPayloadError{
		Kind:     kind,
		Expected: len(payload),
		Actual:   len(payload),
		Reason:   fmt.Sprintf(format, args...),
	}
}
