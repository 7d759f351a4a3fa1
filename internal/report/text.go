package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	fileStyle    = color.New(color.FgCyan, color.Bold)
	lineStyle    = color.New(color.FgHiBlue, color.Bold)
	kindStyle    = color.New(color.FgYellow, color.Bold)
	messageStyle = color.New(color.FgRed, color.Bold)
	okStyle      = color.New(color.FgGreen, color.Bold)
)

// TextWriter renders diagnostics one per line, optionally colored.
type TextWriter struct {
	out   io.Writer
	color bool
}

type TextOption func(*TextWriter)

// WithColor enables ANSI color codes in the output.
func WithColor() TextOption {
	return func(w *TextWriter) { w.color = true }
}

func NewTextWriter(out io.Writer, opts ...TextOption) *TextWriter {
	w := &TextWriter{out: out}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write emits every diagnostic on its own line. A nil or empty slice
// produces a single summary line so a clean run is visibly clean.
func (w *TextWriter) Write(diags []Diagnostic) error {
	if len(diags) == 0 {
		if w.color {
			_, err := okStyle.Fprintln(w.out, "no open proof obligations")
			return err
		}
		_, err := fmt.Fprintln(w.out, "no open proof obligations")
		return err
	}

	for _, d := range diags {
		var err error
		if w.color {
			_, err = fmt.Fprintf(w.out, "%s:%s: %s: %s\n",
				fileStyle.Sprint(d.File),
				lineStyle.Sprintf("%d:%d", d.Line, d.Column),
				kindStyle.Sprint(string(d.Kind)),
				messageStyle.Sprint(d.Message),
			)
		} else {
			_, err = fmt.Fprintln(w.out, d.String())
		}
		if err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w.out, "%d open proof obligation(s)\n", len(diags))
	return err
}
