package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asfrgrtgd/intcode-judge/internal/judge"
)

// ProblemMeta is a list-page projection.
type ProblemMeta struct {
	ID         int64
	Slug       string
	Title      string
	Difficulty string
	Tags       []string
}

// ProblemDetail is a detail-page projection including checker config.
type ProblemDetail struct {
	ProblemMeta
	Statement     string
	IsSPJ         bool
	CheckerSource string
	CheckerType   string
	CheckerEps    float64
	TimeLimitMs   int
	MemoryLimitMB int
}

// TestcaseInput is the admin-facing shape for creating/replacing a case;
// file contents are written through internal/storage before the row is
// persisted, so this struct carries only the resulting metadata.
type TestcaseInput struct {
	CaseNo       int
	InPath       string
	OutPath      string
	InSizeBytes  int64
	OutSizeBytes int64
	InSHA256     string
	OutSHA256    string
	IsSample     bool
	ScoreWeight  int
}

// ProblemCreateInput is the admin-facing shape for problem creation.
type ProblemCreateInput struct {
	Slug          string
	Title         string
	Statement     string
	Difficulty    string
	Tags          []string
	IsSPJ         bool
	CheckerSource string
	CheckerType   string
	CheckerEps    float64
	TimeLimitMs   int
	MemoryLimitMB int
	Testcases     []TestcaseInput
}

// ProblemRepository persists problems, their testcase metadata, and serves
// the judge.ProblemLookup contract.
type ProblemRepository interface {
	judge.ProblemLookup

	Exists(ctx context.Context, problemID int64) (bool, error)
	ExistsAndPublic(ctx context.Context, problemID int64) (bool, error)
	ListPublic(ctx context.Context, page, perPage int) ([]ProblemMeta, int, error)
	AdminList(ctx context.Context, page, perPage int) ([]ProblemMeta, int, error)
	FindDetail(ctx context.Context, problemID int64) (ProblemDetail, error)
	CreateWithTestcases(ctx context.Context, input ProblemCreateInput) (int64, error)
	ReplaceTestcase(ctx context.Context, problemID int64, tc TestcaseInput) error
	DeleteTestcase(ctx context.Context, problemID int64, caseNo int) (removed TestcaseInput, err error)
	ListTestcases(ctx context.Context, problemID int64) ([]TestcaseInput, error)
	UpdateProblem(ctx context.Context, problemID int64, input ProblemUpdateInput) error
}

// ProblemUpdateInput carries partial-update fields for PATCH /problems/:id;
// nil fields are left unchanged.
type ProblemUpdateInput struct {
	Title         *string
	Statement     *string
	TimeLimitMs   *int
	MemoryLimitMB *int
	IsPublic      *bool
	CheckerType   *string
	CheckerEps    *float64
}

// PgProblemRepository implements ProblemRepository over pgxpool.
type PgProblemRepository struct {
	db *pgxpool.Pool
}

func NewPgProblemRepository(db *pgxpool.Pool) *PgProblemRepository {
	return &PgProblemRepository{db: db}
}

// Find satisfies judge.ProblemLookup: load a problem plus its ordered
// testcases, ascending by (case_no, id) per the orchestrator's ordering
// guarantee.
func (r *PgProblemRepository) Find(ctx context.Context, problemID int64) (judge.Problem, error) {
	const q = `SELECT id, slug, is_spj, checker_source, checker_type, checker_eps, time_limit_ms, memory_limit_mb
		FROM problems WHERE id=$1`
	var p judge.Problem
	var checkerSource, checkerType sql.NullString
	if err := r.db.QueryRow(ctx, q, problemID).Scan(
		&p.ID, &p.Slug, &p.IsSPJ, &checkerSource, &checkerType, &p.CheckerEps, &p.TimeLimitMs, &p.MemoryLimitMB,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return judge.Problem{}, judge.ErrProblemNotFound
		}
		return judge.Problem{}, err
	}
	if checkerSource.Valid {
		p.CheckerSource = checkerSource.String
	}
	if checkerType.Valid {
		p.CheckerType = judge.CheckerType(checkerType.String)
	} else {
		p.CheckerType = judge.CheckerExact
	}

	rows, err := r.db.Query(ctx, `SELECT id, case_no, in_path, out_path, in_size_bytes, out_size_bytes,
		in_sha256, out_sha256, is_sample, score_weight
		FROM testcases WHERE problem_id=$1 ORDER BY case_no ASC, id ASC`, problemID)
	if err != nil {
		return judge.Problem{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var tc judge.TestCase
		tc.ProblemID = problemID
		if err := rows.Scan(&tc.ID, &tc.CaseNo, &tc.InPath, &tc.OutPath, &tc.InSizeBytes, &tc.OutSizeBytes,
			&tc.InSHA256, &tc.OutSHA256, &tc.IsSample, &tc.ScoreWeight); err != nil {
			return judge.Problem{}, err
		}
		p.TestCases = append(p.TestCases, tc)
	}
	if err := rows.Err(); err != nil {
		return judge.Problem{}, err
	}
	return p, nil
}

func (r *PgProblemRepository) ExistsAndPublic(ctx context.Context, problemID int64) (bool, error) {
	const q = `SELECT 1 FROM problems WHERE id=$1 AND visibility='public'`
	var one int
	if err := r.db.QueryRow(ctx, q, problemID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *PgProblemRepository) ListPublic(ctx context.Context, page, perPage int) ([]ProblemMeta, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM problems WHERE visibility='public'`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, slug, title, difficulty, tags FROM problems
		WHERE visibility='public' ORDER BY id LIMIT $1 OFFSET $2`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]ProblemMeta, 0, perPage)
	for rows.Next() {
		var m ProblemMeta
		var tags string
		if err := rows.Scan(&m.ID, &m.Slug, &m.Title, &m.Difficulty, &tags); err != nil {
			return nil, 0, err
		}
		m.Tags = splitTags(tags)
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *PgProblemRepository) FindDetail(ctx context.Context, problemID int64) (ProblemDetail, error) {
	const q = `SELECT id, slug, title, difficulty, tags, statement, is_spj, checker_source, checker_type,
		checker_eps, time_limit_ms, memory_limit_mb FROM problems WHERE id=$1`
	var d ProblemDetail
	var tags string
	var checkerSource, checkerType sql.NullString
	if err := r.db.QueryRow(ctx, q, problemID).Scan(
		&d.ID, &d.Slug, &d.Title, &d.Difficulty, &tags, &d.Statement, &d.IsSPJ,
		&checkerSource, &checkerType, &d.CheckerEps, &d.TimeLimitMs, &d.MemoryLimitMB,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProblemDetail{}, judge.ErrProblemNotFound
		}
		return ProblemDetail{}, err
	}
	d.Tags = splitTags(tags)
	if checkerSource.Valid {
		d.CheckerSource = checkerSource.String
	}
	if checkerType.Valid {
		d.CheckerType = checkerType.String
	} else {
		d.CheckerType = string(judge.CheckerExact)
	}
	return d, nil
}

// CreateWithTestcases inserts a problem and its testcase metadata rows in
// one transaction. Testcase file content must already be written to disk
// (via internal/storage) before this call; TestcaseInput carries only the
// resulting paths/sizes/hashes.
func (r *PgProblemRepository) CreateWithTestcases(ctx context.Context, input ProblemCreateInput) (int64, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertProblem = `INSERT INTO problems
		(slug, title, statement, difficulty, tags, is_spj, checker_source, checker_type, checker_eps,
		 time_limit_ms, memory_limit_mb, visibility)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,'public') RETURNING id`
	var problemID int64
	if err := tx.QueryRow(ctx, insertProblem,
		input.Slug, input.Title, input.Statement, input.Difficulty, strings.Join(input.Tags, ","),
		input.IsSPJ, input.CheckerSource, input.CheckerType, input.CheckerEps,
		input.TimeLimitMs, input.MemoryLimitMB,
	).Scan(&problemID); err != nil {
		return 0, err
	}

	const insertCase = `INSERT INTO testcases
		(problem_id, case_no, in_path, out_path, in_size_bytes, out_size_bytes, in_sha256, out_sha256, is_sample, score_weight)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	for _, tc := range input.Testcases {
		weight := tc.ScoreWeight
		if weight <= 0 {
			weight = 1
		}
		if _, err := tx.Exec(ctx, insertCase, problemID, tc.CaseNo, tc.InPath, tc.OutPath,
			tc.InSizeBytes, tc.OutSizeBytes, tc.InSHA256, tc.OutSHA256, tc.IsSample, weight); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return problemID, nil
}

// ReplaceTestcase upserts one case's metadata row by (problem_id, case_no).
func (r *PgProblemRepository) ReplaceTestcase(ctx context.Context, problemID int64, tc TestcaseInput) error {
	weight := tc.ScoreWeight
	if weight <= 0 {
		weight = 1
	}
	const q = `INSERT INTO testcases
		(problem_id, case_no, in_path, out_path, in_size_bytes, out_size_bytes, in_sha256, out_sha256, is_sample, score_weight)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (problem_id, case_no) DO UPDATE SET
			in_path=EXCLUDED.in_path, out_path=EXCLUDED.out_path,
			in_size_bytes=EXCLUDED.in_size_bytes, out_size_bytes=EXCLUDED.out_size_bytes,
			in_sha256=EXCLUDED.in_sha256, out_sha256=EXCLUDED.out_sha256,
			is_sample=EXCLUDED.is_sample, score_weight=EXCLUDED.score_weight`
	_, err := r.db.Exec(ctx, q, problemID, tc.CaseNo, tc.InPath, tc.OutPath,
		tc.InSizeBytes, tc.OutSizeBytes, tc.InSHA256, tc.OutSHA256, tc.IsSample, weight)
	return err
}

// DeleteTestcase removes a case's metadata row and returns its prior paths
// so the caller can best-effort delete the on-disk files via
// internal/storage.
func (r *PgProblemRepository) DeleteTestcase(ctx context.Context, problemID int64, caseNo int) (TestcaseInput, error) {
	const q = `DELETE FROM testcases WHERE problem_id=$1 AND case_no=$2 RETURNING in_path, out_path`
	var removed TestcaseInput
	removed.CaseNo = caseNo
	if err := r.db.QueryRow(ctx, q, problemID, caseNo).Scan(&removed.InPath, &removed.OutPath); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TestcaseInput{}, fmt.Errorf("testcase not found")
		}
		return TestcaseInput{}, err
	}
	return removed, nil
}

func (r *PgProblemRepository) Exists(ctx context.Context, problemID int64) (bool, error) {
	const q = `SELECT 1 FROM problems WHERE id=$1`
	var one int
	if err := r.db.QueryRow(ctx, q, problemID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *PgProblemRepository) AdminList(ctx context.Context, page, perPage int) ([]ProblemMeta, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM problems`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, slug, title, difficulty, tags FROM problems
		ORDER BY id LIMIT $1 OFFSET $2`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]ProblemMeta, 0, perPage)
	for rows.Next() {
		var m ProblemMeta
		var tags string
		if err := rows.Scan(&m.ID, &m.Slug, &m.Title, &m.Difficulty, &tags); err != nil {
			return nil, 0, err
		}
		m.Tags = splitTags(tags)
		items = append(items, m)
	}
	return items, total, rows.Err()
}

// ListTestcases returns every case's metadata for problemID, ordered by
// case_no, used to rebuild a downloadable archive.
func (r *PgProblemRepository) ListTestcases(ctx context.Context, problemID int64) ([]TestcaseInput, error) {
	rows, err := r.db.Query(ctx, `SELECT case_no, in_path, out_path, in_size_bytes, out_size_bytes,
		in_sha256, out_sha256, is_sample, score_weight FROM testcases WHERE problem_id=$1 ORDER BY case_no ASC`, problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TestcaseInput
	for rows.Next() {
		var tc TestcaseInput
		if err := rows.Scan(&tc.CaseNo, &tc.InPath, &tc.OutPath, &tc.InSizeBytes, &tc.OutSizeBytes,
			&tc.InSHA256, &tc.OutSHA256, &tc.IsSample, &tc.ScoreWeight); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// UpdateProblem applies a partial update; nil fields keep their current value.
func (r *PgProblemRepository) UpdateProblem(ctx context.Context, problemID int64, input ProblemUpdateInput) error {
	if input.CheckerType != nil {
		t := strings.ToLower(strings.TrimSpace(*input.CheckerType))
		if t != "exact" && t != "eps" && t != "spj" {
			return fmt.Errorf("invalid checker type %q", t)
		}
	}
	const q = `UPDATE problems SET
		title = COALESCE($2, title),
		statement = COALESCE($3, statement),
		time_limit_ms = COALESCE($4, time_limit_ms),
		memory_limit_mb = COALESCE($5, memory_limit_mb),
		visibility = CASE WHEN $6::bool IS NULL THEN visibility WHEN $6 THEN 'public' ELSE 'private' END,
		checker_type = COALESCE($7, checker_type),
		checker_eps = COALESCE($8, checker_eps)
		WHERE id=$1`
	_, err := r.db.Exec(ctx, q, problemID, input.Title, input.Statement, input.TimeLimitMs,
		input.MemoryLimitMB, input.IsPublic, input.CheckerType, input.CheckerEps)
	return err
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

