package judge

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/asfrgrtgd/intcode-judge/internal/storage"
)

type fakeLookup struct {
	problem Problem
	err     error
}

func (f fakeLookup) Find(ctx context.Context, id int64) (Problem, error) {
	return f.problem, f.err
}

type recordingSink struct {
	calls []SubmissionResult
}

func (s *recordingSink) Save(ctx context.Context, req SubmissionRequest, result SubmissionResult) (int64, error) {
	s.calls = append(s.calls, result)
	return int64(len(s.calls)), nil
}

func newOrchestrator(t *testing.T, problem Problem, sink SubmissionSink) *Orchestrator {
	t.Helper()
	store := storage.New(t.TempDir(), 200<<20)
	return New(fakeLookup{problem: problem}, sink, store, t.TempDir(),
		15*time.Second, 2*time.Second, 20000, 16<<20, 256)
}

func mustSaveCase(t *testing.T, store *storage.Store, problemKey string, caseNo int, in, out string, isSample bool) TestCase {
	t.Helper()
	meta, err := store.SaveSingle(problemKey, caseNo, strings.NewReader(in), strings.NewReader(out))
	require.NoError(t, err)
	return TestCase{ID: int64(caseNo), CaseNo: caseNo, InPath: meta.InPath, OutPath: meta.OutPath, IsSample: isSample}
}

func TestJudgeACTwoCases(t *testing.T) {
	store := storage.New(t.TempDir(), 200<<20)
	c1 := mustSaveCase(t, store, "two-sum", 1, "4\n2 7 11 15\n9\n", "0 1\n", false)
	c2 := mustSaveCase(t, store, "two-sum", 2, "3\n3 2 4\n6\n", "1 2\n", false)

	problem := Problem{ID: 1, Slug: "two-sum", TestCases: []TestCase{c1, c2}}
	sink := &recordingSink{}
	o := New(fakeLookup{problem: problem}, sink, store, t.TempDir(), 15*time.Second, 2*time.Second, 20000, 16<<20, 256)

	source := `#include <cstdio>
int main(){int n;scanf("%d",&n);int a[100];for(int i=0;i<n;i++)scanf("%d",&a[i]);int t;scanf("%d",&t);
for(int i=0;i<n;i++)for(int j=i+1;j<n;j++)if(a[i]+a[j]==t){printf("%d %d\n",i,j);return 0;}return 0;}`

	result, err := o.Judge(context.Background(), SubmissionRequest{
		ProblemID: 1, Language: "cpp17", Code: source, Mode: ModeSubmit,
	})
	require.NoError(t, err)
	require.Equal(t, VerdictAC, result.OverallStatus)
	require.Len(t, result.Cases, 2)
	require.Equal(t, VerdictAC, result.Cases[0].Status)
	require.Equal(t, VerdictAC, result.Cases[1].Status)
	require.EqualValues(t, 1, result.SubmissionID)
	require.Len(t, sink.calls, 1)
}

func TestJudgeWARunsAllCases(t *testing.T) {
	store := storage.New(t.TempDir(), 200<<20)
	c1 := mustSaveCase(t, store, "two-sum", 1, "ignored\n", "0 1\n", false)
	c2 := mustSaveCase(t, store, "two-sum", 2, "ignored\n", "1 2\n", false)

	problem := Problem{ID: 1, Slug: "two-sum", TestCases: []TestCase{c1, c2}}
	o := New(fakeLookup{problem: problem}, nil, store, t.TempDir(), 15*time.Second, 2*time.Second, 20000, 16<<20, 256)

	source := `print("1 0")`
	result, err := o.Judge(context.Background(), SubmissionRequest{
		ProblemID: 1, Language: "python3", Code: source, Mode: ModeSubmit,
	})
	require.NoError(t, err)
	require.Equal(t, VerdictWA, result.OverallStatus)
	require.Len(t, result.Cases, 2)
	require.Equal(t, VerdictWA, result.Cases[0].Status)
	require.Contains(t, result.Cases[0].Error, "offset")
	require.Equal(t, VerdictWA, result.Cases[1].Status)
}

func TestJudgeCompileError(t *testing.T) {
	o := newOrchestrator(t, Problem{ID: 1}, nil)
	result, err := o.Judge(context.Background(), SubmissionRequest{
		ProblemID: 1, Language: "cpp17", Code: "int main( {", Mode: ModeSubmit,
	})
	require.NoError(t, err)
	require.Equal(t, VerdictCE, result.OverallStatus)
	require.NotEmpty(t, result.CompileError)
	require.Empty(t, result.Cases)
}

func TestJudgeCustomMode(t *testing.T) {
	o := newOrchestrator(t, Problem{ID: 1}, nil)
	result, err := o.Judge(context.Background(), SubmissionRequest{
		ProblemID: 1, Language: "python3", Code: "print(input())", Mode: ModeCustom, CustomInput: "hello\n",
	})
	require.NoError(t, err)
	require.Equal(t, VerdictCustom, result.OverallStatus)
	require.Len(t, result.Cases, 1)
	require.Equal(t, VerdictOK, result.Cases[0].Status)
	require.True(t, strings.HasPrefix(result.Cases[0].FullOutput, "hello"))
}

func TestJudgeProblemNotFound(t *testing.T) {
	store := storage.New(t.TempDir(), 200<<20)
	o := New(fakeLookup{err: ErrProblemNotFound}, nil, store, t.TempDir(), 15*time.Second, 2*time.Second, 20000, 16<<20, 256)
	result, err := o.Judge(context.Background(), SubmissionRequest{ProblemID: 99, Language: "python3", Mode: ModeSubmit})
	require.NoError(t, err)
	require.Equal(t, VerdictNotFound, result.OverallStatus)
}

func TestJudgeSPJAcceptsSymmetricIndices(t *testing.T) {
	store := storage.New(t.TempDir(), 200<<20)
	c1 := mustSaveCase(t, store, "two-sum", 1, "4\n2 7 11 15\n9\n", "0 1\n", false)

	checkerSrc := `def check(input_text, user_output):
    return set(user_output.split()) == {"0", "1"}
`
	problem := Problem{ID: 1, Slug: "two-sum", IsSPJ: true, CheckerSource: checkerSrc, TestCases: []TestCase{c1}}
	o := New(fakeLookup{problem: problem}, nil, store, t.TempDir(), 15*time.Second, 2*time.Second, 20000, 16<<20, 256)

	result, err := o.Judge(context.Background(), SubmissionRequest{
		ProblemID: 1, Language: "python3", Code: `print("1 0")`, Mode: ModeSubmit,
	})
	require.NoError(t, err)
	require.Equal(t, VerdictAC, result.OverallStatus)
}

func TestJudgeGradedCasePopulatesInputPreview(t *testing.T) {
	store := storage.New(t.TempDir(), 200<<20)
	c1 := mustSaveCase(t, store, "echo", 1, "4\n2 7 11 15\n9\n", "4\n2 7 11 15\n9\n", false)
	problem := Problem{ID: 1, Slug: "echo", TestCases: []TestCase{c1}}
	o := New(fakeLookup{problem: problem}, nil, store, t.TempDir(), 15*time.Second, 2*time.Second, 20000, 16<<20, 256)

	result, err := o.Judge(context.Background(), SubmissionRequest{
		ProblemID: 1, Language: "python3", Code: "import sys; sys.stdout.write(sys.stdin.read())", Mode: ModeSubmit,
	})
	require.NoError(t, err)
	require.Len(t, result.Cases, 1)
	require.Equal(t, VerdictAC, result.Cases[0].Status)
	require.Equal(t, "4\n2 7 11 15\n9\n", result.Cases[0].InputPreview)
}

func TestJudgeEpsCheckerToleratesFloatError(t *testing.T) {
	store := storage.New(t.TempDir(), 200<<20)
	c1 := mustSaveCase(t, store, "div", 1, "1 3\n", "0.3333\n", false)

	problem := Problem{ID: 1, Slug: "div", CheckerType: CheckerEps, CheckerEps: 0.001, TestCases: []TestCase{c1}}
	o := New(fakeLookup{problem: problem}, nil, store, t.TempDir(), 15*time.Second, 2*time.Second, 20000, 16<<20, 256)

	result, err := o.Judge(context.Background(), SubmissionRequest{
		ProblemID: 1, Language: "python3", Code: `a, b = map(int, input().split()); print(a / b)`, Mode: ModeSubmit,
	})
	require.NoError(t, err)
	require.Equal(t, VerdictAC, result.OverallStatus)
}

func TestJudgeEpsCheckerRejectsOutsideTolerance(t *testing.T) {
	store := storage.New(t.TempDir(), 200<<20)
	c1 := mustSaveCase(t, store, "div", 1, "1 3\n", "0.3333\n", false)

	problem := Problem{ID: 1, Slug: "div", CheckerType: CheckerEps, CheckerEps: 0.0001, TestCases: []TestCase{c1}}
	o := New(fakeLookup{problem: problem}, nil, store, t.TempDir(), 15*time.Second, 2*time.Second, 20000, 16<<20, 256)

	result, err := o.Judge(context.Background(), SubmissionRequest{
		ProblemID: 1, Language: "python3", Code: `print(1)`, Mode: ModeSubmit,
	})
	require.NoError(t, err)
	require.Equal(t, VerdictWA, result.OverallStatus)
}

func TestJudgeRunSampleOnlySamples(t *testing.T) {
	store := storage.New(t.TempDir(), 200<<20)
	sample := mustSaveCase(t, store, "p", 1, "1\n", "1\n", true)
	secret := mustSaveCase(t, store, "p", 2, "2\n", "2\n", false)

	problem := Problem{ID: 1, TestCases: []TestCase{sample, secret}}
	o := New(fakeLookup{problem: problem}, nil, store, t.TempDir(), 15*time.Second, 2*time.Second, 20000, 16<<20, 256)

	result, err := o.Judge(context.Background(), SubmissionRequest{
		ProblemID: 1, Language: "python3", Code: "print(input())", Mode: ModeRunSample,
	})
	require.NoError(t, err)
	require.Len(t, result.Cases, 1)
}

func TestJudgeMissingTestdata(t *testing.T) {
	problem := Problem{ID: 1, TestCases: []TestCase{{ID: 1, CaseNo: 1, InPath: "nope/1.in", OutPath: "nope/1.out"}}}
	o := newOrchestrator(t, problem, nil)
	result, err := o.Judge(context.Background(), SubmissionRequest{
		ProblemID: 1, Language: "python3", Code: "print(1)", Mode: ModeSubmit,
	})
	require.NoError(t, err)
	require.Equal(t, VerdictRE, result.OverallStatus)
	require.Equal(t, "missing testdata", result.Cases[0].Error)
}
