// Package judge implements the per-submission orchestrator: compile, run
// every selected case, compare or check, aggregate a verdict, and persist.
package judge

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/asfrgrtgd/intcode-judge/internal/checker"
	"github.com/asfrgrtgd/intcode-judge/internal/compare"
	"github.com/asfrgrtgd/intcode-judge/internal/langadapter"
	"github.com/asfrgrtgd/intcode-judge/internal/sandbox"
	"github.com/asfrgrtgd/intcode-judge/internal/storage"
)

const previewLimit = 200
const customFullOutputLimit = 1024

// ProblemLookup resolves a problem and its cases for judging.
type ProblemLookup interface {
	Find(ctx context.Context, problemID int64) (Problem, error)
}

// SubmissionSink persists a judged Submission. Only called when
// SubmissionRequest.Mode == ModeSubmit.
type SubmissionSink interface {
	Save(ctx context.Context, req SubmissionRequest, result SubmissionResult) (int64, error)
}

// Orchestrator drives the compile -> run -> compare/check -> aggregate ->
// persist pipeline for one SubmissionRequest at a time.
type Orchestrator struct {
	problems ProblemLookup
	sink     SubmissionSink
	store    *storage.Store
	workDir  string

	defaultCompileTimeout time.Duration
	defaultCaseTimeout    time.Duration
	defaultOutputLimit    int
	defaultMaxOutputBytes int64
	defaultMemoryLimitMB  int
}

// New constructs an Orchestrator. The timeouts and limits come from config;
// the case timeout and the memory limit are overridden per-problem when the
// problem carries its own limits, the others always apply as given.
func New(problems ProblemLookup, sink SubmissionSink, store *storage.Store, workDir string,
	compileTimeout, caseTimeout time.Duration, outputLimit int, maxOutputBytes int64, memoryLimitMB int) *Orchestrator {
	return &Orchestrator{
		problems:              problems,
		sink:                  sink,
		store:                 store,
		workDir:               workDir,
		defaultCompileTimeout: compileTimeout,
		defaultCaseTimeout:    caseTimeout,
		defaultOutputLimit:    outputLimit,
		defaultMaxOutputBytes: maxOutputBytes,
		defaultMemoryLimitMB:  memoryLimitMB,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Judge runs the full pipeline for req and returns the aggregated result.
func (o *Orchestrator) Judge(ctx context.Context, req SubmissionRequest) (SubmissionResult, error) {
	problem, err := o.problems.Find(ctx, req.ProblemID)
	if err != nil {
		return SubmissionResult{OverallStatus: VerdictNotFound}, nil
	}

	if err := os.MkdirAll(o.workDir, 0o755); err != nil {
		return SubmissionResult{}, fmt.Errorf("%w: %v", ErrScratchDirFailed, err)
	}
	scratchDir, err := os.MkdirTemp(o.workDir, "sub_")
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("%w: %v", ErrScratchDirFailed, err)
	}
	defer os.RemoveAll(scratchDir)

	adapter, err := langadapter.For(req.Language)
	if err != nil {
		return SubmissionResult{OverallStatus: VerdictCE, CompileError: err.Error()}, nil
	}

	compileTimeout := o.defaultCompileTimeout
	compiled, err := adapter.Compile(ctx, req.Code, scratchDir, compileTimeout)
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("compile: %w", err)
	}
	if compiled.CompileErr != "" {
		log.Printf("judge compile lang=%s problem=%d status=CE", req.Language, req.ProblemID)
		return SubmissionResult{OverallStatus: VerdictCE, CompileError: compiled.CompileErr}, nil
	}
	log.Printf("judge compile lang=%s problem=%d status=OK", req.Language, req.ProblemID)

	memMB := problem.MemoryLimitMB
	if memMB <= 0 {
		memMB = o.defaultMemoryLimitMB
	}
	caseTimeout := o.defaultCaseTimeout
	if problem.TimeLimitMs > 0 {
		caseTimeout = time.Duration(problem.TimeLimitMs) * time.Millisecond
	}

	if req.Mode == ModeCustom {
		result := o.judgeCustom(ctx, compiled.RunArgs, req.CustomInput, caseTimeout, memMB)
		return result, nil
	}

	cases := selectCases(problem.TestCases, req.Mode)
	if len(cases) == 0 {
		return SubmissionResult{}, ErrNoTestCases
	}

	caseResults := make([]CaseResult, 0, len(cases))
	var maxRuntime int64
	var runtimeError string

	for _, tc := range cases {
		cr := o.judgeOneCase(ctx, problem, compiled.RunArgs, tc, scratchDir, caseTimeout, memMB)
		caseResults = append(caseResults, cr)
		if cr.RuntimeMs > maxRuntime {
			maxRuntime = cr.RuntimeMs
		}
		if cr.Status != VerdictAC && cr.Status != VerdictWA && runtimeError == "" {
			runtimeError = string(cr.Status) + ": " + cr.Error
		}
	}

	overall := aggregateStatus(caseResults)
	result := SubmissionResult{
		OverallStatus: overall,
		RuntimeMs:     maxRuntime,
		RuntimeError:  runtimeError,
		Cases:         caseResults,
	}

	if req.Mode == ModeSubmit && o.sink != nil {
		id, err := o.sink.Save(ctx, req, result)
		if err != nil {
			log.Printf("failed to persist submission result: %v", err)
		} else {
			result.SubmissionID = id
		}
	}

	return result, nil
}

func selectCases(all []TestCase, mode Mode) []TestCase {
	var out []TestCase
	for _, tc := range all {
		if mode == ModeRunSample && !tc.IsSample {
			continue
		}
		out = append(out, tc)
	}
	return out
}

func (o *Orchestrator) judgeCustom(ctx context.Context, runArgs []string, customInput string, timeout time.Duration, memMB int) SubmissionResult {
	start := time.Now()
	res, err := sandbox.Run(ctx, runArgs, customInput, sandbox.Limits{
		Timeout:     timeout,
		MemoryMB:    memMB,
		OutputLimit: o.defaultOutputLimit,
	})
	runtimeMs := time.Since(start).Milliseconds()
	if err != nil {
		return SubmissionResult{
			OverallStatus: VerdictCustom,
			RuntimeMs:     runtimeMs,
			Cases: []CaseResult{{
				Status: VerdictRE, Error: err.Error(), RuntimeMs: runtimeMs,
			}},
		}
	}

	status := classifySandboxStatus(res.Status, res.Stderr)
	cr := CaseResult{
		Status:       status,
		InputPreview: truncate(customInput, previewLimit),
		RuntimeMs:    runtimeMs,
		FullOutput:   truncate(res.Stdout, customFullOutputLimit),
	}
	if status != VerdictOK {
		cr.Error = res.Stderr
	}
	return SubmissionResult{OverallStatus: VerdictCustom, RuntimeMs: runtimeMs, Cases: []CaseResult{cr}}
}

func (o *Orchestrator) judgeOneCase(ctx context.Context, problem Problem, runArgs []string, tc TestCase, scratchDir string, timeout time.Duration, memMB int) CaseResult {
	inAbs, err := o.store.Resolve(tc.InPath)
	if err != nil {
		return CaseResult{CaseID: tc.ID, Status: VerdictRE, Error: "missing testdata"}
	}
	outAbs, err := o.store.Resolve(tc.OutPath)
	if err != nil {
		return CaseResult{CaseID: tc.ID, Status: VerdictRE, Error: "missing testdata"}
	}
	if _, err := os.Stat(inAbs); err != nil {
		return CaseResult{CaseID: tc.ID, Status: VerdictRE, Error: "missing testdata"}
	}
	if _, err := os.Stat(outAbs); err != nil {
		return CaseResult{CaseID: tc.ID, Status: VerdictRE, Error: "missing testdata"}
	}

	caseStdout := filepath.Join(scratchDir, fmt.Sprintf("case_%d.out", tc.CaseNo))
	defer os.Remove(caseStdout)

	start := time.Now()
	res, err := sandbox.RunStream(ctx, runArgs, inAbs, caseStdout, sandbox.Limits{
		Timeout:  timeout,
		MemoryMB: memMB,
	})
	runtimeMs := time.Since(start).Milliseconds()
	if err != nil {
		return CaseResult{CaseID: tc.ID, Status: VerdictRE, Error: err.Error(), RuntimeMs: runtimeMs}
	}

	status := classifySandboxStatus(res.Status, res.Stderr)

	if status == VerdictOK {
		if st, statErr := os.Stat(caseStdout); statErr == nil && st.Size() > o.defaultMaxOutputBytes {
			status = VerdictOLE
		}
	}

	inputPreview, _ := os.ReadFile(inAbs)
	cr := CaseResult{CaseID: tc.ID, Status: status, RuntimeMs: runtimeMs, InputPreview: truncate(string(inputPreview), previewLimit)}
	if status != VerdictOK {
		cr.Error = res.Stderr
		return cr
	}

	if problem.IsSPJ {
		outputText, _ := os.ReadFile(caseStdout)
		checkRes, checkErr := checker.RunSPJ(ctx, problem.CheckerSource, string(inputPreview), string(outputText))
		if checkErr != nil {
			cr.Status = VerdictWA
			cr.Error = checkErr.Error()
			return cr
		}
		if !checkRes.Pass {
			cr.Status = VerdictWA
			cr.Error = checkRes.Error
			return cr
		}
		cr.Status = VerdictAC
		return cr
	}

	if problem.CheckerType == CheckerEps {
		expectedText, err := os.ReadFile(outAbs)
		if err != nil {
			cr.Status = VerdictRE
			cr.Error = err.Error()
			return cr
		}
		actualText, err := os.ReadFile(caseStdout)
		if err != nil {
			cr.Status = VerdictRE
			cr.Error = err.Error()
			return cr
		}
		cr.ExpectedPreview = truncate(string(expectedText), previewLimit)
		cr.OutputPreview = truncate(string(actualText), previewLimit)
		if !checker.Eps(string(actualText), string(expectedText), problem.CheckerEps) {
			cr.Status = VerdictWA
			return cr
		}
		cr.Status = VerdictAC
		return cr
	}

	equal, diag, cmpErr := compare.Files(outAbs, caseStdout)
	cr.ExpectedPreview = diag.ExpectedPreview
	cr.OutputPreview = diag.ActualPreview
	if cmpErr != nil {
		cr.Status = VerdictRE
		cr.Error = cmpErr.Error()
		return cr
	}
	if !equal {
		cr.Status = VerdictWA
		if diag.MismatchPos != nil {
			cr.Error = fmt.Sprintf("mismatch at offset %d", *diag.MismatchPos)
		}
		return cr
	}
	cr.Status = VerdictAC
	return cr
}

func classifySandboxStatus(status sandbox.Status, stderr string) Verdict {
	switch status {
	case sandbox.StatusOK:
		return VerdictOK
	case sandbox.StatusTLE:
		return VerdictTLE
	case sandbox.StatusRE:
		if sandbox.HasMemorySignature(stderr) {
			return VerdictMLE
		}
		return VerdictRE
	default:
		return VerdictRE
	}
}

func aggregateStatus(cases []CaseResult) Verdict {
	priority := []Verdict{VerdictRE, VerdictMLE, VerdictOLE, VerdictTLE, VerdictWA}
	present := map[Verdict]bool{}
	for _, c := range cases {
		present[c.Status] = true
	}
	for _, p := range priority {
		if present[p] {
			return p
		}
	}
	return VerdictAC
}
