package chkc_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chkclabs/chkc"
	"github.com/chkclabs/chkc/internal/report"
)

func analyzeFixture(t *testing.T, name string) []report.Diagnostic {
	t.Helper()
	engine, err := chkc.New("", nil)
	require.NoError(t, err)

	diags, err := engine.Run(context.Background(), []string{filepath.Join("testdata", name)})
	require.NoError(t, err)
	return diags
}

func countKinds(diags []report.Diagnostic) map[report.Kind]int {
	out := map[report.Kind]int{}
	for _, d := range diags {
		out[d.Kind]++
	}
	return out
}

func TestFixtures(t *testing.T) {
	cases := []struct {
		file string
		want map[report.Kind]int
	}{
		{
			file: "nonnull.c",
			want: map[report.Kind]int{report.KindNotNull: 3},
		},
		{
			file: "returns_nonnull.c",
			want: map[report.Kind]int{report.KindNotNull: 1},
		},
		{
			file: "access.c",
			want: map[report.Kind]int{
				report.KindNotNull:       2,
				report.KindInBoundsUpper: 1,
			},
		},
		{
			file: "malloc.c",
			want: map[report.Kind]int{
				report.KindNoOverlap:       1,
				report.KindAllocationValid: 2,
			},
		},
		{
			file: "gvar_inequality.c",
			want: map[report.Kind]int{
				report.KindInBoundsLower: 1,
				report.KindInBoundsUpper: 1,
			},
		},
		{
			file: "gvar_nonnull.c",
			want: map[report.Kind]int{report.KindNotNull: 1},
		},
		{
			file: "preserves_memory.c",
			want: map[report.Kind]int{
				report.KindNotNull:         2,
				report.KindAllocationValid: 1,
			},
		},
		{
			file: "preserves_all_memory.c",
			want: map[report.Kind]int{
				report.KindNotNull:         2,
				report.KindAllocationValid: 1,
			},
		},
		{
			file: "localtime.c",
			want: map[report.Kind]int{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.file, func(t *testing.T) {
			diags := analyzeFixture(t, tc.file)
			assert.Equal(t, tc.want, countKinds(diags))
			for _, d := range diags {
				assert.Equal(t, filepath.Join("testdata", tc.file), d.File)
				assert.NotZero(t, d.Line)
				assert.NotEmpty(t, d.Message)
			}
		})
	}
}

func TestFixtureRunsAreDeterministic(t *testing.T) {
	first := analyzeFixture(t, "malloc.c")
	second := analyzeFixture(t, "malloc.c")
	assert.Equal(t, first, second)
}

func TestSummaryOverlayClosesObligations(t *testing.T) {
	overlay := `
functions:
  f_no_attr:
    preserves: true
`
	path := filepath.Join(t.TempDir(), "summaries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(overlay), 0o644))

	engine, err := chkc.New(path, nil)
	require.NoError(t, err)

	diags, err := engine.Run(context.Background(),
		[]string{filepath.Join("testdata", "preserves_memory.c")})
	require.NoError(t, err)
	assert.Empty(t, diags, "a summary stands in for the missing attribute")
}

func TestCollectFiles(t *testing.T) {
	files, err := chkc.CollectFiles([]string{"testdata"})
	require.NoError(t, err)
	assert.Len(t, files, 9)
	for _, f := range files {
		assert.Equal(t, ".c", filepath.Ext(f))
	}

	_, err = chkc.CollectFiles([]string{"testdata/does_not_exist.c"})
	assert.Error(t, err)
}

func TestProcessPathsRejectsEmptyInput(t *testing.T) {
	engine, err := chkc.New("", nil)
	require.NoError(t, err)

	_, err = chkc.ProcessPaths(context.Background(), engine, []string{t.TempDir()})
	assert.Error(t, err)
}
