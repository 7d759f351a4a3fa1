package obligation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chkclabs/chkc/internal/annotation"
	"github.com/chkclabs/chkc/internal/cparse"
	"github.com/chkclabs/chkc/internal/report"
	"github.com/chkclabs/chkc/internal/summary"
)

// generate parses src and returns the obligations of the named function.
func generate(t *testing.T, src, fn string) []*Obligation {
	t.Helper()
	unit, err := cparse.ParseSource(context.Background(), "test.c", []byte(src))
	require.NoError(t, err)
	t.Cleanup(unit.Close)

	model, err := annotation.Load([]*cparse.Unit{unit})
	require.NoError(t, err)

	gen := NewGenerator(unit, model, summary.NewTable(), nil)
	for _, fd := range unit.ScanTopLevel().Functions {
		if fd.Name == fn && fd.HasBody {
			return gen.Function(fd)
		}
	}
	t.Fatalf("function %q not found", fn)
	return nil
}

func kinds(obs []*Obligation) []report.Kind {
	out := make([]report.Kind, len(obs))
	for i, o := range obs {
		out[i] = o.Kind
	}
	return out
}

func TestUnknownCalleeAssumesWorstCase(t *testing.T) {
	obs := generate(t, `
void f(int *p, int len);

void t() {
  int buffer[8];
  f(buffer, 8);
}
`, "t")

	require.Len(t, obs, 1)
	assert.Equal(t, report.KindNotNull, obs[0].Kind)
	assert.True(t, obs[0].WorstCase)
	assert.Equal(t, "f", obs[0].Callee)
	assert.Equal(t, OriginArray, obs[0].Facts.Origin.Kind)
}

func TestAnnotatedCalleeEmitsPerAttribute(t *testing.T) {
	obs := generate(t, `
void f(int *p) __attribute__ ((__nonnull__ (1)));
void *malloc(int len);

void t() {
  int buffer[8];
  f(buffer);
  int *p = malloc(8);
  f(p);
}
`, "t")

	require.Equal(t, []report.Kind{report.KindNotNull, report.KindNotNull}, kinds(obs))
	assert.False(t, obs[0].WorstCase)
	assert.Equal(t, OriginArray, obs[0].Facts.Origin.Kind)
	assert.Equal(t, OriginCall, obs[1].Facts.Origin.Kind)
	assert.Equal(t, "malloc", obs[1].Facts.Origin.Callee)
}

func TestNullGuardSetsFact(t *testing.T) {
	obs := generate(t, `
void f(int *p) __attribute__ ((__nonnull__ (1)));
void *malloc(int len);

void t() {
  int *p = malloc(8);
  if (p) {
    f(p);
  }
  f(p);
}
`, "t")

	// the second call also re-checks the allocation: the first call took p
	// and nothing says it preserved it
	require.Equal(t, []report.Kind{
		report.KindNotNull, report.KindNotNull, report.KindAllocationValid,
	}, kinds(obs))
	assert.True(t, obs[0].Facts.GuardedNonNull)
	assert.False(t, obs[1].Facts.GuardedNonNull)
}

func TestGuardWithReturn(t *testing.T) {
	obs := generate(t, `
void f(int *p) __attribute__ ((__nonnull__ (1)));
void *malloc(int len);

void t() {
  int *p = malloc(8);
  if (!p) return;
  f(p);
}
`, "t")

	require.Len(t, obs, 1)
	assert.True(t, obs[0].Facts.GuardedNonNull)
}

func TestNestedReturnDoesNotCountAsGuard(t *testing.T) {
	obs := generate(t, `
void f(int *p) __attribute__ ((__nonnull__ (1)));
void *malloc(int len);

void t(int cond) {
  int *p = malloc(8);
  if (!p) {
    if (cond) {
      return;
    }
  }
  f(p);
}
`, "t")

	require.Len(t, obs, 1)
	assert.False(t, obs[0].Facts.GuardedNonNull)
}

func TestSubscriptEmitsBothBoundHalves(t *testing.T) {
	obs := generate(t, `
void t(int i) {
  int buffer[10];
  buffer[i] = 0;
  buffer[3] = 0;
}
`, "t")

	require.Equal(t, []report.Kind{
		report.KindInBoundsLower, report.KindInBoundsUpper,
		report.KindInBoundsLower, report.KindInBoundsUpper,
	}, kinds(obs))

	assert.Equal(t, int64(10), obs[0].ArraySize)
	assert.Nil(t, obs[0].ConstIndex)
	assert.Equal(t, "i", obs[0].Index)

	require.NotNil(t, obs[2].ConstIndex)
	assert.Equal(t, int64(3), *obs[2].ConstIndex)
}

func TestIndexGuardsAreRecorded(t *testing.T) {
	obs := generate(t, `
void t(int i) {
  int buffer[10];
  if (i >= 0 && i < 10) {
    buffer[i] = 0;
  }
}
`, "t")

	require.Len(t, obs, 2)
	lower, upper := obs[0], obs[1]
	assert.True(t, lower.Facts.IndexLowerGuard)
	require.NotNil(t, upper.Facts.IndexUpperGuard)
	assert.Equal(t, int64(9), *upper.Facts.IndexUpperGuard)
}

func TestGlobalIndexIsFlagged(t *testing.T) {
	obs := generate(t, `
int g;
int buffer[12];

void t() {
  buffer[g] = 0;
}
`, "t")

	require.Len(t, obs, 2)
	assert.True(t, obs[0].IndexIsGlobal)
	assert.Equal(t, "g", obs[0].Index)
	assert.Equal(t, int64(12), obs[0].ArraySize)
}

func TestFreeEmitsLifetimeObligations(t *testing.T) {
	obs := generate(t, `
void *malloc(int len);

void t() {
  void *p = malloc(4);
  free(p);
  free(p);
}
`, "t")

	require.Equal(t, []report.Kind{
		report.KindAllocationValid, report.KindNoDoubleFree,
		report.KindAllocationValid, report.KindNoDoubleFree,
	}, kinds(obs))

	assert.False(t, obs[0].Facts.Freed)
	assert.False(t, obs[1].Facts.Freed)
	assert.True(t, obs[2].Facts.Freed, "second free sees the value already freed")
	assert.True(t, obs[3].Facts.Freed)
	assert.Equal(t, "malloc", obs[0].Facts.Origin.Callee)
}

func TestInterveningCallIsRecorded(t *testing.T) {
	obs := generate(t, `
int keep(void *p) __attribute__ ((__chkc_preserves_all_memory__));
void *malloc(int len);

void t() {
  void *p = malloc(4);
  keep(p);
  keep(p);
}
`, "t")

	require.Len(t, obs, 1)
	assert.Equal(t, report.KindAllocationValid, obs[0].Kind)
	require.Len(t, obs[0].Facts.Interveners, 1)
	assert.Equal(t, Intervener{Callee: "keep", ArgIndex: 1}, obs[0].Facts.Interveners[0])
}

func TestBranchEffectsAreAbsorbed(t *testing.T) {
	obs := generate(t, `
void *malloc(int len);

void t(int cond) {
  void *p = malloc(4);
  if (cond) {
    free(p);
  }
  free(p);
}
`, "t")

	// two frees, each with both lifetime obligations
	require.Len(t, obs, 4)
	assert.True(t, obs[2].Facts.Freed, "free inside a branch counts afterwards")
}

func TestOverlapObligationCarriesBothOrigins(t *testing.T) {
	obs := generate(t, `
void *malloc(int len);
void *memcpy(void *dst, const void *src, int len);

void t() {
  char *p = (char *) malloc(10);
  char *q = (char *) malloc(10);
  if (p && q) {
    memcpy(q, p, 10);
  }
}
`, "t")

	var overlap *Obligation
	for _, o := range obs {
		if o.Kind == report.KindNoOverlap {
			overlap = o
		}
	}
	require.NotNil(t, overlap)
	assert.Equal(t, "memcpy", overlap.Callee)
	assert.Equal(t, OriginCall, overlap.Facts.Origin.Kind)
	assert.Equal(t, OriginCall, overlap.Facts.OtherOrigin.Kind)
	assert.NotEqual(t, overlap.Facts.Origin.Seq, overlap.Facts.OtherOrigin.Seq,
		"two allocations are distinct regions")
}

func TestDereferenceEmitsNotNull(t *testing.T) {
	obs := generate(t, `
void *malloc(int len);

void t(int *p) {
  int x = *p;
}
`, "t")

	require.Len(t, obs, 1)
	assert.Equal(t, report.KindNotNull, obs[0].Kind)
	assert.Equal(t, "p", obs[0].Value)
	assert.Equal(t, OriginParam, obs[0].Facts.Origin.Kind)
}

func TestAccessSpecEmitsSizeObligation(t *testing.T) {
	obs := generate(t, `
void f(int *p, int len) __attribute__((__access__ (read_only, 1, 2)));

void t() {
  int buffer[12];
  f(buffer, 12);
  f(buffer, 20);
}
`, "t")

	// each call: not-null on the buffer plus the size bound
	require.Equal(t, []report.Kind{
		report.KindNotNull, report.KindInBoundsUpper,
		report.KindNotNull, report.KindInBoundsUpper,
	}, kinds(obs))

	require.NotNil(t, obs[1].SizeValue)
	assert.Equal(t, int64(12), *obs[1].SizeValue)
	assert.Equal(t, int64(12), obs[1].ArraySize)
	require.NotNil(t, obs[3].SizeValue)
	assert.Equal(t, int64(20), *obs[3].SizeValue)
}
