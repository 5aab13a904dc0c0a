// Package frame encodes the scoring snapshot into the legacy 10-byte serial frame.
//
// Layout is protocol-locked:
//
//	0 header 0xFF
//	1 right score
//	2 left score
//	3 seconds
//	4 minutes (units)
//	5 lamps
//	6 match number and priority
//	7 reserved, always 0x00
//	8 penalty cards
//	9 checksum, sum of bytes 0-8 modulo 256
package frame

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/fa15bridge/internal/scoring"
)

// Size is the fixed frame length in bytes.
const Size = 10

// Header is the first byte of every frame.
const Header byte = 0xFF

const (
	offRightScore = iota + 1
	offLeftScore
	offSeconds
	offMinutes
	offLamps
	offMatchPriority
	offReserved
	offCards
	offChecksum
)

// Frame is one encoded wire frame.
type Frame [Size]byte

var (
	// ErrLength is returned by Parse for input that is not exactly Size bytes.
	ErrLength = errors.New("frame: wrong length")
	// ErrHeader is returned by Parse when byte 0 is not Header.
	ErrHeader = errors.New("frame: bad header")
	// ErrChecksum is returned by Parse when byte 9 does not match the computed checksum.
	ErrChecksum = errors.New("frame: checksum mismatch")
)

// Encode converts a state snapshot into a frame.
// No IO. No side effects.
func Encode(s scoring.DeviceState) Frame {
	var f Frame
	f[0] = Header
	f[offRightScore] = s.RightScore
	f[offLeftScore] = s.LeftScore
	f[offSeconds] = s.Seconds
	f[offMinutes] = s.MinutesUnit
	f[offLamps] = uint8(s.Lamps)
	f[offMatchPriority] = uint8(s.MatchPriority)
	f[offReserved] = 0x00
	f[offCards] = uint8(s.Cards)
	f[offChecksum] = Checksum(f[:offChecksum])
	return f
}

// Checksum returns the sum of b modulo 256.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// Parse validates a received or hand-written frame.
func Parse(b []byte) (Frame, error) {
	var f Frame
	if len(b) != Size {
		return f, fmt.Errorf("%w: expected %d bytes, got %d", ErrLength, Size, len(b))
	}
	copy(f[:], b)
	if f[0] != Header {
		return f, fmt.Errorf("%w: 0x%02X", ErrHeader, f[0])
	}
	if want := Checksum(f[:offChecksum]); f[offChecksum] != want {
		return f, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrChecksum, f[offChecksum], want)
	}
	return f, nil
}

// ParseHex parses a frame written as hex text. Spaces and a 0x prefix are ignored.
func ParseHex(s string) (Frame, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	s = strings.ReplaceAll(s, " ", "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Frame{}, fmt.Errorf("frame: invalid hex: %w", err)
	}
	return Parse(b)
}

// Bytes returns the frame as a slice.
func (f Frame) Bytes() []byte {
	return f[:]
}

// String renders the frame as upper-case hex without separators.
func (f Frame) String() string {
	return strings.ToUpper(hex.EncodeToString(f[:]))
}

// Spaced renders the frame as upper-case hex bytes separated by spaces.
func (f Frame) Spaced() string {
	parts := make([]string, Size)
	for i, b := range f {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// State recovers the snapshot a frame was encoded from.
func (f Frame) State() scoring.DeviceState {
	return scoring.DeviceState{
		RightScore:    f[offRightScore],
		LeftScore:     f[offLeftScore],
		Seconds:       f[offSeconds],
		MinutesUnit:   f[offMinutes],
		Lamps:         scoring.Lamps(f[offLamps]),
		MatchPriority: scoring.MatchPriority(f[offMatchPriority]),
		Cards:         scoring.Cards(f[offCards]),
	}
}
