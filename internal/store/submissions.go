package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asfrgrtgd/intcode-judge/internal/judge"
)

// ErrSubmissionNotPending is returned by AcquirePending when the row is no
// longer in the pending state (already claimed by another worker).
var ErrSubmissionNotPending = errors.New("submission not pending")

// Submission is the durable row created when a SubmissionRequest arrives
// with Mode == submit.
type Submission struct {
	ID         int64
	UserID     int64
	ProblemID  int64
	Language   string
	Code       string
	Status     string
	CreatedAt  time.Time
}

// SubmissionListItem is a flattened view for list endpoints.
type SubmissionListItem struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
	ProblemID   int64     `json:"problem_id"`
	ProblemSlug string    `json:"problem_slug"`
	Language    string    `json:"language"`
	Verdict     string    `json:"verdict"`
	RuntimeMs   int64     `json:"runtime_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// SubmissionDetail is the full view served by GET /submissions/:id.
type SubmissionDetail struct {
	ID           int64
	UserID       int64
	Username     string
	ProblemID    int64
	ProblemTitle string
	Language     string
	Status       string
	Verdict      string
	RuntimeMs    int64
	ErrorMessage string
	CaseDetails  string
	Code         string
	CreatedAt    time.Time
}

// SubmissionRepository persists submissions and satisfies the judge
// package's SubmissionSink contract.
type SubmissionRepository interface {
	judge.SubmissionSink

	Enqueue(ctx context.Context, userID, problemID int64, language, code string) (int64, error)
	AcquirePending(ctx context.Context, id int64) (*Submission, error)
	ResetPending(ctx context.Context, id int64) error
	IncrementRetry(ctx context.Context, id int64) (int, error)
	MarkFailed(ctx context.Context, id int64, reason string) error
	ListByUser(ctx context.Context, userID int64, page, perPage int) ([]SubmissionListItem, int, error)
	ListByProblem(ctx context.Context, problemID int64, page, perPage int) ([]SubmissionListItem, int, error)
	FindDetail(ctx context.Context, id int64) (*SubmissionDetail, error)
	CountByUser(ctx context.Context, userID int64) (int, error)
	CountSolvedProblemsByUser(ctx context.Context, userID int64) (int, error)
}

// PgSubmissionRepository implements SubmissionRepository over pgxpool.
type PgSubmissionRepository struct {
	db *pgxpool.Pool
}

func NewPgSubmissionRepository(db *pgxpool.Pool) *PgSubmissionRepository {
	return &PgSubmissionRepository{db: db}
}

func (r *PgSubmissionRepository) Enqueue(ctx context.Context, userID, problemID int64, language, code string) (int64, error) {
	const q = `INSERT INTO submissions (user_id, problem_id, language, code, status)
		VALUES ($1,$2,$3,$4,'pending') RETURNING id`
	var id int64
	if err := r.db.QueryRow(ctx, q, userID, problemID, language, code).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// AcquirePending locks a pending submission row and transitions it to
// running atomically, per the orchestrator's at-most-once claim contract.
func (r *PgSubmissionRepository) AcquirePending(ctx context.Context, id int64) (*Submission, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const sel = `SELECT id, user_id, problem_id, language, code, status, created_at FROM submissions WHERE id=$1 FOR UPDATE`
	var s Submission
	if err := tx.QueryRow(ctx, sel, id).Scan(&s.ID, &s.UserID, &s.ProblemID, &s.Language, &s.Code, &s.Status, &s.CreatedAt); err != nil {
		return nil, err
	}
	if s.Status != "pending" {
		return nil, ErrSubmissionNotPending
	}

	if _, err := tx.Exec(ctx, `UPDATE submissions SET status='running', updated_at=NOW() WHERE id=$1`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.Status = "running"
	return &s, nil
}

// ResetPending returns a claimed submission to the pending state so a
// requeued job will be accepted by a future AcquirePending call.
func (r *PgSubmissionRepository) ResetPending(ctx context.Context, id int64) error {
	const q = `UPDATE submissions SET status='pending', updated_at=NOW() WHERE id=$1`
	_, err := r.db.Exec(ctx, q, id)
	return err
}

func (r *PgSubmissionRepository) IncrementRetry(ctx context.Context, id int64) (int, error) {
	const q = `UPDATE submissions SET retry_count = retry_count + 1, updated_at=NOW() WHERE id=$1 RETURNING retry_count`
	var count int
	if err := r.db.QueryRow(ctx, q, id).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PgSubmissionRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	const q = `UPDATE submissions SET status='failed', updated_at=NOW() WHERE id=$1`
	_, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	const resultQ = `INSERT INTO submission_results (submission_id, verdict, error_message, updated_at)
		VALUES ($1,'RE',$2,NOW())
		ON CONFLICT (submission_id) DO UPDATE SET verdict='RE', error_message=EXCLUDED.error_message, updated_at=NOW()`
	_, err = r.db.Exec(ctx, resultQ, id, reason)
	return err
}

// Save implements judge.SubmissionSink: persist the aggregated verdict and
// per-case diagnostics for submission req against result, transactionally.
func (r *PgSubmissionRepository) Save(ctx context.Context, req judge.SubmissionRequest, result judge.SubmissionResult) (int64, error) {
	// The submission row already exists: created by Enqueue before the
	// worker dequeued it, and AcquirePending transitioned it to running.
	id := req.SubmissionID
	if id == 0 {
		return 0, fmt.Errorf("save: submission request has no submission id")
	}

	detailsJSON, err := json.Marshal(result.Cases)
	if err != nil {
		return 0, fmt.Errorf("marshal case details: %w", err)
	}

	score := 0
	if result.OverallStatus == judge.VerdictAC {
		score = 100
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	status := "succeeded"
	if result.OverallStatus != judge.VerdictAC {
		status = "failed"
	}
	if _, err := tx.Exec(ctx, `UPDATE submissions SET status=$1, updated_at=NOW() WHERE id=$2`, status, id); err != nil {
		return 0, err
	}

	const q = `INSERT INTO submission_results
		(submission_id, verdict, score, runtime_ms, compile_error, error_message, case_details, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
		ON CONFLICT (submission_id) DO UPDATE SET
			verdict=EXCLUDED.verdict, score=EXCLUDED.score, runtime_ms=EXCLUDED.runtime_ms,
			compile_error=EXCLUDED.compile_error, error_message=EXCLUDED.error_message,
			case_details=EXCLUDED.case_details, updated_at=NOW()`
	if _, err := tx.Exec(ctx, q, id, string(result.OverallStatus), score, result.RuntimeMs,
		nullIfEmpty(result.CompileError), nullIfEmpty(result.RuntimeError), string(detailsJSON)); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *PgSubmissionRepository) ListByUser(ctx context.Context, userID int64, page, perPage int) ([]SubmissionListItem, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM submissions WHERE user_id=$1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT s.id, s.user_id, u.username, s.problem_id, p.slug, s.language,
		       COALESCE(sr.verdict,''), COALESCE(sr.runtime_ms,0), s.created_at
		FROM submissions s
		JOIN users u ON u.id = s.user_id
		JOIN problems p ON p.id = s.problem_id
		LEFT JOIN submission_results sr ON sr.submission_id = s.id
		WHERE s.user_id=$1
		ORDER BY s.created_at DESC
		LIMIT $2 OFFSET $3`, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]SubmissionListItem, 0, perPage)
	for rows.Next() {
		var v SubmissionListItem
		if err := rows.Scan(&v.ID, &v.UserID, &v.Username, &v.ProblemID, &v.ProblemSlug, &v.Language,
			&v.Verdict, &v.RuntimeMs, &v.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func (r *PgSubmissionRepository) ListByProblem(ctx context.Context, problemID int64, page, perPage int) ([]SubmissionListItem, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM submissions WHERE problem_id=$1`, problemID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT s.id, s.user_id, u.username, s.problem_id, p.slug, s.language,
		       COALESCE(sr.verdict,''), COALESCE(sr.runtime_ms,0), s.created_at
		FROM submissions s
		JOIN users u ON u.id = s.user_id
		JOIN problems p ON p.id = s.problem_id
		LEFT JOIN submission_results sr ON sr.submission_id = s.id
		WHERE s.problem_id=$1
		ORDER BY s.created_at DESC
		LIMIT $2 OFFSET $3`, problemID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]SubmissionListItem, 0, perPage)
	for rows.Next() {
		var v SubmissionListItem
		if err := rows.Scan(&v.ID, &v.UserID, &v.Username, &v.ProblemID, &v.ProblemSlug, &v.Language,
			&v.Verdict, &v.RuntimeMs, &v.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

// FindDetail loads one submission joined with its user, problem, and
// result row for the submission detail endpoint.
func (r *PgSubmissionRepository) FindDetail(ctx context.Context, id int64) (*SubmissionDetail, error) {
	const q = `
		SELECT s.id, s.user_id, u.username, s.problem_id, p.title, s.language, s.status,
		       COALESCE(sr.verdict,''), COALESCE(sr.runtime_ms,0), COALESCE(sr.error_message,''),
		       COALESCE(sr.case_details,''), s.code, s.created_at
		FROM submissions s
		JOIN users u ON u.id = s.user_id
		JOIN problems p ON p.id = s.problem_id
		LEFT JOIN submission_results sr ON sr.submission_id = s.id
		WHERE s.id=$1`
	var d SubmissionDetail
	if err := r.db.QueryRow(ctx, q, id).Scan(&d.ID, &d.UserID, &d.Username, &d.ProblemID, &d.ProblemTitle,
		&d.Language, &d.Status, &d.Verdict, &d.RuntimeMs, &d.ErrorMessage, &d.CaseDetails, &d.Code, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PgSubmissionRepository) CountByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM submissions WHERE user_id=$1`, userID).Scan(&count)
	return count, err
}

func (r *PgSubmissionRepository) CountSolvedProblemsByUser(ctx context.Context, userID int64) (int, error) {
	const q = `SELECT COUNT(DISTINCT s.problem_id) FROM submissions s
		JOIN submission_results sr ON sr.submission_id = s.id
		WHERE s.user_id=$1 AND sr.verdict='AC'`
	var count int
	err := r.db.QueryRow(ctx, q, userID).Scan(&count)
	return count, err
}

func nullIfEmpty(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
