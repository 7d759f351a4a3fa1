package report

import (
	"encoding/json"
	"io"
)

// JSONWriter renders diagnostics as a single JSON document, grouped the
// way machine consumers expect: a flat array plus a count.
type JSONWriter struct {
	out io.Writer
}

func NewJSONWriter(out io.Writer) *JSONWriter {
	return &JSONWriter{out: out}
}

type jsonReport struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
	Count       int          `json:"count"`
}

func (w *JSONWriter) Write(diags []Diagnostic) error {
	if diags == nil {
		diags = []Diagnostic{}
	}
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{Diagnostics: diags, Count: len(diags)})
}
