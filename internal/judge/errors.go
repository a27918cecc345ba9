package judge

import "errors"

// Sentinel errors of the orchestrator and its problem lookup. Judge returns
// ErrScratchDirFailed and ErrNoTestCases as errors that end the submission;
// a failed problem lookup (ErrProblemNotFound) yields a NOT_FOUND result.
// Per-case failures, such as missing testdata or a run that cannot start,
// become an RE CaseResult and the remaining cases still run.
var (
	ErrProblemNotFound  = errors.New("problem not found")
	ErrMissingTestdata  = errors.New("missing testdata")
	ErrNoTestCases      = errors.New("problem has no testcases for requested mode")
	ErrScratchDirFailed = errors.New("failed to create scratch directory")
)
