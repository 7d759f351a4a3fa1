package discharge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chkclabs/chkc/internal/annotation"
	"github.com/chkclabs/chkc/internal/cparse"
	"github.com/chkclabs/chkc/internal/obligation"
	"github.com/chkclabs/chkc/internal/report"
	"github.com/chkclabs/chkc/internal/summary"
)

// analyze runs generation and discharge for one function and returns the
// obligations with their final statuses.
func analyze(t *testing.T, src, fn string) []*obligation.Obligation {
	t.Helper()
	unit, err := cparse.ParseSource(context.Background(), "test.c", []byte(src))
	require.NoError(t, err)
	t.Cleanup(unit.Close)

	model, err := annotation.Load([]*cparse.Unit{unit})
	require.NoError(t, err)

	table := summary.NewTable()
	gen := obligation.NewGenerator(unit, model, table, nil)

	var obs []*obligation.Obligation
	for _, fd := range unit.ScanTopLevel().Functions {
		if fd.Name == fn && fd.HasBody {
			obs = gen.Function(fd)
		}
	}
	require.NotNil(t, obs, "function %q produced no obligations", fn)

	New(model, table).Run(obs)
	return obs
}

func open(obs []*obligation.Obligation) []*obligation.Obligation {
	var out []*obligation.Obligation
	for _, o := range obs {
		if o.Status == obligation.Open {
			out = append(out, o)
		}
	}
	return out
}

func TestWorstCaseIsNeverDischarged(t *testing.T) {
	obs := analyze(t, `
void f(int *p);

void t() {
  int buffer[8];
  if (buffer) {
    f(buffer);
  }
}
`, "t")

	require.Len(t, obs, 1)
	assert.Equal(t, obligation.Open, obs[0].Status)
	assert.True(t, obs[0].WorstCase)
}

func TestNotNullLocalDominance(t *testing.T) {
	obs := analyze(t, `
void f(int *p) __attribute__ ((__nonnull__ (1)));
void *malloc(int len);

void t() {
  int *p = malloc(8);
  if (p != 0) {
    f(p);
  }
}
`, "t")

	require.Len(t, obs, 1)
	assert.Equal(t, obligation.Discharged, obs[0].Status)
	assert.Equal(t, RuleLocalDominance, obs[0].Rule)
}

func TestNotNullDeclaredType(t *testing.T) {
	obs := analyze(t, `
void f(int *p) __attribute__ ((__nonnull__ (1)));

void t() {
  int buffer[8];
  int x;
  f(buffer);
  f(&x);
}
`, "t")

	require.Len(t, obs, 2)
	for _, o := range obs {
		assert.Equal(t, obligation.Discharged, o.Status)
		assert.Equal(t, RuleDeclaredType, o.Rule)
	}
}

func TestNotNullCalleeAttribute(t *testing.T) {
	obs := analyze(t, `
char *f_attr() __attribute__ ((__returns_nonnull__));
int atoi(char *p);

void t() {
  char *p = f_attr();
  atoi(p);
}
`, "t")

	require.Len(t, obs, 1)
	assert.Equal(t, obligation.Discharged, obs[0].Status)
	assert.Equal(t, RuleCalleeAttribute, obs[0].Rule)
}

func TestNotNullStaysOpenForNullableAllocator(t *testing.T) {
	obs := analyze(t, `
void f(int *p) __attribute__ ((__nonnull__ (1)));
void *malloc(int len);

void t() {
  int *p = malloc(8);
  f(p);
}
`, "t")

	require.Len(t, obs, 1)
	assert.Equal(t, obligation.Open, obs[0].Status)
}

func TestNotNullGlobalAttribute(t *testing.T) {
	obs := analyze(t, `
extern int *g_attr __attribute__ ((__chkc_not_null__));
extern int *g_plain;
void f(int *p) __attribute__ ((__nonnull__ (1)));

void t() {
  f(g_attr);
  f(g_plain);
}
`, "t")

	require.Len(t, obs, 2)
	assert.Equal(t, obligation.Discharged, obs[0].Status)
	assert.Equal(t, RuleGlobalRange, obs[0].Rule)
	assert.Equal(t, obligation.Open, obs[1].Status)
}

func TestBoundsConstantIndex(t *testing.T) {
	obs := analyze(t, `
void t() {
  int buffer[10];
  buffer[3] = 0;
  buffer[10] = 0;
}
`, "t")

	require.Len(t, obs, 4)
	assert.Equal(t, RuleDeclaredType, obs[0].Rule) // 3 >= 0
	assert.Equal(t, RuleDeclaredType, obs[1].Rule) // 3 < 10
	assert.Equal(t, RuleDeclaredType, obs[2].Rule) // 10 >= 0
	assert.Equal(t, obligation.Open, obs[3].Status, "10 is one past the end")
}

func TestBoundsGuardDominance(t *testing.T) {
	obs := analyze(t, `
void t(int i) {
  int buffer[10];
  if (i >= 0 && i < 10) {
    buffer[i] = 0;
  }
}
`, "t")

	require.Len(t, obs, 2)
	assert.Equal(t, RuleLocalDominance, obs[0].Rule)
	assert.Equal(t, RuleLocalDominance, obs[1].Rule)
}

func TestBoundsGuardTooWeak(t *testing.T) {
	obs := analyze(t, `
void t(int i) {
  int buffer[10];
  if (i >= 0 && i < 20) {
    buffer[i] = 0;
  }
}
`, "t")

	require.Len(t, obs, 2)
	assert.Equal(t, obligation.Discharged, obs[0].Status)
	assert.Equal(t, obligation.Open, obs[1].Status, "i < 20 does not cover a 10-element buffer")
}

func TestBoundsGlobalRange(t *testing.T) {
	obs := analyze(t, `
#define BUFSIZE 12

int g_attr __attribute__ ((__chkc_lt__ (BUFSIZE))) __attribute__ ((__chkc_ge__ (0)));
int buffer[BUFSIZE];

void t() {
  buffer[g_attr] = 0;
}
`, "t")

	require.Len(t, obs, 2)
	assert.Equal(t, RuleGlobalRange, obs[0].Rule)
	assert.Equal(t, RuleGlobalRange, obs[1].Rule)
}

func TestOneSidedRangeLeavesOtherHalfOpen(t *testing.T) {
	obs := analyze(t, `
int g __attribute__ ((__chkc_ge__ (0)));
int buffer[12];

void t() {
  buffer[g] = 0;
}
`, "t")

	require.Len(t, obs, 2)
	assert.Equal(t, RuleGlobalRange, obs[0].Rule, "lower half closes against chkc_ge")
	assert.Equal(t, obligation.Open, obs[1].Status, "upper half has no covering bound")
	assert.Equal(t, report.KindInBoundsUpper, obs[1].Kind)
}

func TestAllocationValidFreshAllocation(t *testing.T) {
	obs := analyze(t, `
void *malloc(int len);

void t() {
  void *p = malloc(4);
  free(p);
}
`, "t")

	require.Len(t, obs, 2)
	assert.Equal(t, RuleCalleeAttribute, obs[0].Rule, "fresh allocation is a valid free base")
	assert.Equal(t, RuleLocalDominance, obs[1].Rule, "no prior free")
}

func TestDoubleFreeStaysOpen(t *testing.T) {
	obs := analyze(t, `
void *malloc(int len);

void t() {
  void *p = malloc(4);
  free(p);
  free(p);
}
`, "t")

	require.Len(t, obs, 4)
	assert.Equal(t, obligation.Discharged, obs[0].Status)
	assert.Equal(t, obligation.Discharged, obs[1].Status)
	assert.Equal(t, obligation.Open, obs[2].Status, "freed memory is not a valid base")
	assert.Equal(t, obligation.Open, obs[3].Status, "second free is a double free")
}

func TestPreservesMemoryDischarge(t *testing.T) {
	obs := analyze(t, `
int keep(void *p) __attribute__ ((__chkc_preserves_memory__ (1)));
void *malloc(int len);

void t() {
  void *p = malloc(4);
  keep(p);
  keep(p);
}
`, "t")

	require.Len(t, obs, 1)
	assert.Equal(t, obligation.Discharged, obs[0].Status)
	assert.Equal(t, RulePreserves, obs[0].Rule)
}

func TestUnknownIntervenerBlocksPreserves(t *testing.T) {
	obs := analyze(t, `
int touch(void *p);
void *malloc(int len);

void t() {
  void *p = malloc(4);
  touch(p);
  free(p);
}
`, "t")

	// worst-case not-null at the unknown call, then the two free obligations
	require.Len(t, obs, 3)
	assert.Equal(t, report.KindAllocationValid, obs[1].Kind)
	assert.Equal(t, obligation.Open, obs[1].Status, "touch may have freed p")
	assert.Equal(t, obligation.Open, obs[2].Status, "touch may have freed p first")
}

func TestOverlapDischargedForDistinctAllocations(t *testing.T) {
	obs := analyze(t, `
void *alloc(int len) __attribute__ ((__malloc__));
void *memcpy(void *dst, const void *src, int len);

void t() {
  char *p = (char *) alloc(10);
  char *q = (char *) alloc(10);
  if (p && q) {
    memcpy(q, p, 10);
  }
}
`, "t")

	var overlap *obligation.Obligation
	for _, o := range obs {
		if o.Kind == report.KindNoOverlap {
			overlap = o
		}
	}
	require.NotNil(t, overlap)
	assert.Equal(t, obligation.Discharged, overlap.Status)
	assert.Equal(t, RuleCalleeAttribute, overlap.Rule)
}

func TestOverlapOpenForUnknownProvenance(t *testing.T) {
	obs := analyze(t, `
void *f(int len);
void *memcpy(void *dst, const void *src, int len);

void t() {
  char *p = (char *) f(10);
  char *q = (char *) f(10);
  if (p && q) {
    memcpy(q, p, 10);
  }
}
`, "t")

	var overlap *obligation.Obligation
	for _, o := range obs {
		if o.Kind == report.KindNoOverlap {
			overlap = o
		}
	}
	require.NotNil(t, overlap)
	assert.Equal(t, obligation.Open, overlap.Status)
}

func TestSummaryFieldRange(t *testing.T) {
	obs := analyze(t, `
typedef long int time_t;
extern time_t time(time_t *timer);
extern struct tm *localtime(const time_t *timer);

void t() {
  time_t b;
  char wide[61];
  char narrow[10];
  struct tm *x;

  b = time(0);
  x = localtime(&b);
  if (x) {
    wide[x->tm_sec] = 0;
    narrow[x->tm_sec] = 0;
  }
}
`, "t")

	remaining := open(obs)
	require.Len(t, remaining, 1)
	assert.Equal(t, report.KindInBoundsUpper, remaining[0].Kind)
	assert.Equal(t, "narrow", remaining[0].Value)

	var discharged int
	for _, o := range obs {
		if o.Rule == RuleSummaryRange {
			discharged++
		}
	}
	assert.Equal(t, 3, discharged, "both lower halves and the wide upper half")
}

func TestDiagnosticsOnlyCoverOpenObligations(t *testing.T) {
	obs := analyze(t, `
void f(int *p) __attribute__ ((__nonnull__ (1)));
void *malloc(int len);

void t() {
  int buffer[8];
  f(buffer);
  int *p = malloc(8);
  f(p);
}
`, "t")

	diags := Diagnostics(obs)
	require.Len(t, diags, 1)
	assert.Equal(t, report.KindNotNull, diags[0].Kind)
	assert.Equal(t, "p", diags[0].Value)
	assert.Contains(t, diags[0].Message, `"f"`)
}
