package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{
		File: "a.c", Line: 12, Column: 3,
		Kind:    KindNotNull,
		Message: `"p" may be NULL at this dereference`,
	}
	assert.Equal(t, `a.c:12:3: not-null: "p" may be NULL at this dereference`, d.String())
}

func TestSort(t *testing.T) {
	diags := []Diagnostic{
		{File: "b.c", Line: 1, Column: 1, Seq: 1},
		{File: "a.c", Line: 9, Column: 1, Seq: 2},
		{File: "a.c", Line: 2, Column: 5, Seq: 4},
		{File: "a.c", Line: 2, Column: 5, Seq: 3},
		{File: "a.c", Line: 2, Column: 1, Seq: 5},
	}
	Sort(diags)

	assert.Equal(t, []Diagnostic{
		{File: "a.c", Line: 2, Column: 1, Seq: 5},
		{File: "a.c", Line: 2, Column: 5, Seq: 3},
		{File: "a.c", Line: 2, Column: 5, Seq: 4},
		{File: "a.c", Line: 9, Column: 1, Seq: 2},
		{File: "b.c", Line: 1, Column: 1, Seq: 1},
	}, diags)
}

func TestTextWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewTextWriter(&buf)

	err := w.Write([]Diagnostic{
		{File: "a.c", Line: 3, Column: 7, Kind: KindInBoundsUpper, Message: "index may be out of bounds"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a.c:3:7: index-upper-bound: index may be out of bounds\n1 open proof obligation(s)\n", buf.String())
}

func TestTextWriterCleanRun(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextWriter(&buf).Write(nil))
	assert.Equal(t, "no open proof obligations\n", buf.String())
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)

	err := w.Write([]Diagnostic{
		{File: "a.c", Line: 3, Column: 7, Kind: KindNoOverlap, Value: "q", Message: "regions may overlap"},
	})
	require.NoError(t, err)

	var decoded struct {
		Diagnostics []Diagnostic `json:"diagnostics"`
		Count       int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 1, decoded.Count)
	require.Len(t, decoded.Diagnostics, 1)
	assert.Equal(t, KindNoOverlap, decoded.Diagnostics[0].Kind)
	assert.Equal(t, "q", decoded.Diagnostics[0].Value)
}

func TestJSONWriterEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONWriter(&buf).Write(nil))
	assert.Contains(t, buf.String(), `"diagnostics": []`)
	assert.Contains(t, buf.String(), `"count": 0`)
}
