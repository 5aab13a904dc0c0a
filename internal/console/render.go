package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

const timeLayout = "15:04:05.000"

// Renderer formats records as coloured text lines.
type Renderer struct {
	w       io.Writer
	stamp   *color.Color
	label   *color.Color
	unknown *color.Color
	failed  *color.Color
	frame   *color.Color
}

// NewRenderer writes to w. Colours follow color.NoColor unless noColor forces them off.
func NewRenderer(w io.Writer, noColor bool) *Renderer {
	r := &Renderer{
		w:       w,
		stamp:   color.New(color.Faint),
		label:   color.New(color.FgCyan, color.Bold),
		unknown: color.New(color.FgYellow),
		failed:  color.New(color.FgRed),
		frame:   color.New(color.FgGreen),
	}
	if noColor {
		for _, c := range []*color.Color{r.stamp, r.label, r.unknown, r.failed, r.frame} {
			c.DisableColor()
		}
	}
	return r
}

// Render writes one record. Continuation lines of multi-line text are indented under the first.
func (r *Renderer) Render(rec Record) error {
	labelColor := r.label
	switch {
	case rec.Source == SourceFrame:
		labelColor = r.frame
	case rec.Unknown:
		labelColor = r.unknown
	}

	prefix := fmt.Sprintf("%s [%s] ", rec.At.Format(timeLayout), rec.Label)
	text := strings.ReplaceAll(rec.Text, "\n", "\n"+strings.Repeat(" ", len(prefix)))
	if rec.Failed {
		text = r.failed.Sprint(text)
	}

	_, err := fmt.Fprintf(r.w, "%s [%s] %s\n", r.stamp.Sprint(rec.At.Format(timeLayout)), labelColor.Sprint(rec.Label), text)
	return err
}
