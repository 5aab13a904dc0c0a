package sink

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Debug prints every frame as a hex line instead of sending it anywhere.
type Debug struct {
	mu       sync.Mutex
	w        io.Writer
	asciiHex bool
}

// NewDebug writes "Debug Output: <hex>" lines to w. With asciiHex the line shows the
// upper-case hex text a text-mode receiver would get.
func NewDebug(w io.Writer, asciiHex bool) *Debug {
	return &Debug{w: w, asciiHex: asciiHex}
}

func (d *Debug) Write(p []byte) (int, error) {
	text := hex.EncodeToString(p)
	if d.asciiHex {
		text = strings.ToUpper(text)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := fmt.Fprintf(d.w, "Debug Output: %s\n", text); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (d *Debug) Close() error { return nil }

func (d *Debug) Name() string { return "debug" }

// HexText sends each write as upper-case ASCII hex text, for receivers that read the frame as a line of text.
type HexText struct {
	Sink
}

// NewHexText wraps s.
func NewHexText(s Sink) *HexText {
	return &HexText{Sink: s}
}

// Write encodes p and reports len(p) bytes written when the whole text was accepted.
func (h *HexText) Write(p []byte) (int, error) {
	text := []byte(strings.ToUpper(hex.EncodeToString(p)))
	n, err := h.Sink.Write(text)
	if err != nil {
		return n / 2, err
	}
	if n != len(text) {
		return n / 2, io.ErrShortWrite
	}
	return len(p), nil
}

func (h *HexText) Name() string { return h.Sink.Name() + " (hex text)" }
