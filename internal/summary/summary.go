// Package summary holds behavioral contracts for functions whose bodies
// the checker never sees, typically libc. The builtin seed mirrors the
// shipped libc summaries; a YAML overlay can extend or override it.
package summary

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// FieldRange is an inclusive bound on a struct field reachable through a
// summarized return value, e.g. localtime's struct tm members.
type FieldRange struct {
	Min int64 `yaml:"min"`
	Max int64 `yaml:"max"`
}

// Overlap names the argument positions of a copy-like function whose
// source and destination regions must not overlap.
type Overlap struct {
	DstArg int `yaml:"dst"`
	SrcArg int `yaml:"src"`
	LenArg int `yaml:"len"`
}

// Summary is the per-function record of effects relevant to obligations.
type Summary struct {
	// ReturnsNonNull: the return value is guaranteed non-null.
	ReturnsNonNull bool `yaml:"returns_nonnull"`
	// ReturnsNullable: the function may return NULL (allocators, localtime).
	ReturnsNullable bool `yaml:"returns_nullable"`
	// Allocates: the return value is a fresh allocation.
	Allocates bool `yaml:"allocates"`
	// FreesArg: 1-based index of an argument the function deallocates.
	FreesArg int `yaml:"frees_arg"`
	// NonNullArgs: 1-based indices the function dereferences.
	NonNullArgs []int `yaml:"nonnull_args"`
	// Preserves: the function never frees memory reachable from its
	// arguments.
	Preserves bool `yaml:"preserves"`
	// NoOverlap: source/destination regions must be disjoint.
	NoOverlap *Overlap `yaml:"no_overlap"`
	// StaticStorage: the returned pointer aliases static storage rather
	// than a fresh allocation (localtime).
	StaticStorage bool `yaml:"static_storage"`
	// Fields: value ranges of struct fields behind the returned pointer.
	Fields map[string]FieldRange `yaml:"fields"`
}

// NonNullArg reports whether the summary requires the 1-based argument
// to be non-null.
func (s *Summary) NonNullArg(index int) bool {
	for _, i := range s.NonNullArgs {
		if i == index {
			return true
		}
	}
	return false
}

// Table maps external function names to summaries. Built once per run,
// read-only afterwards.
type Table struct {
	entries map[string]*Summary
}

// NewTable returns a table seeded with the builtin libc summaries.
func NewTable() *Table {
	t := &Table{entries: map[string]*Summary{}}
	for name, s := range builtin {
		copied := *s
		t.entries[name] = &copied
	}
	return t
}

// Lookup returns the summary for a function name. The second result is
// false for unknown functions; callers must then assume worst-case
// effects.
func (t *Table) Lookup(name string) (*Summary, bool) {
	s, ok := t.entries[name]
	return s, ok
}

// Names returns the summarized function names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type tableFile struct {
	Functions map[string]*Summary `yaml:"functions"`
}

// LoadFile merges a YAML summary database into the table. File entries
// override builtin ones of the same name.
func (t *Table) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open summary database: %w", err)
	}
	defer f.Close()

	var file tableFile
	if err := yaml.NewDecoder(f).Decode(&file); err != nil {
		return fmt.Errorf("failed to parse summary database %s: %w", path, err)
	}
	for name, s := range file.Functions {
		if s == nil {
			continue
		}
		t.entries[name] = s
	}
	return nil
}

// Dump writes the effective table as YAML, for the summaries subcommand.
func (t *Table) Dump() ([]byte, error) {
	return yaml.Marshal(tableFile{Functions: t.entries})
}
