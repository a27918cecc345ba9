package judge

// Verdict is one of the fixed set of observable verdict codes.
type Verdict string

const (
	VerdictAC       Verdict = "AC"
	VerdictWA       Verdict = "WA"
	VerdictTLE      Verdict = "TLE"
	VerdictMLE      Verdict = "MLE"
	VerdictRE       Verdict = "RE"
	VerdictOLE      Verdict = "OLE"
	VerdictCE       Verdict = "CE"
	VerdictCustom   Verdict = "CUSTOM"
	VerdictNotFound Verdict = "NOT_FOUND"
	VerdictOK       Verdict = "OK"
)

// Difficulty enumerates problem difficulty.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// CheckerType selects the comparison strategy for a problem's cases.
type CheckerType string

const (
	CheckerExact CheckerType = "exact"
	CheckerEps   CheckerType = "eps"
	CheckerSPJ   CheckerType = "spj"
)

// Mode selects which cases a SubmissionRequest judges and whether a
// Submission row is persisted.
type Mode string

const (
	ModeSubmit    Mode = "submit"
	ModeRunSample Mode = "run_sample"
	ModeCustom    Mode = "custom"
)

// TestCase is one (input, expected output) pair belonging to a Problem.
type TestCase struct {
	ID           int64
	ProblemID    int64
	CaseNo       int
	InPath       string // relative to storage root
	OutPath      string
	InSizeBytes  int64
	OutSizeBytes int64
	InSHA256     string
	OutSHA256    string
	IsSample     bool
	ScoreWeight  int
}

// Problem is consumed by the orchestrator, not owned by it.
type Problem struct {
	ID            int64
	Slug          string
	Difficulty    Difficulty
	Tags          []string
	IsSPJ         bool
	CheckerSource string
	CheckerType   CheckerType
	CheckerEps    float64
	TimeLimitMs   int
	MemoryLimitMB int
	TestCases     []TestCase
}

// SubmissionRequest is the input to the orchestrator. SubmissionID, when
// nonzero, identifies a Submission row already created by the caller
// (e.g. the queue consumer) that Save should attach results to instead of
// inserting a new one.
type SubmissionRequest struct {
	ProblemID    int64
	Language     string
	Code         string
	Mode         Mode
	CustomInput  string
	SubmitterID  int64
	SubmissionID int64
}

// CaseResult is the outcome of judging one case.
type CaseResult struct {
	CaseID          int64
	Status          Verdict
	InputPreview    string
	ExpectedPreview string
	OutputPreview   string
	RuntimeMs       int64
	Error           string
	FullOutput      string // only for mode=custom or short outputs
}

// SubmissionResult is the outcome of judging one SubmissionRequest.
type SubmissionResult struct {
	OverallStatus Verdict
	RuntimeMs     int64
	CompileError  string
	RuntimeError  string
	Cases         []CaseResult
	SubmissionID  int64 // set only when persisted (mode=submit)
}
