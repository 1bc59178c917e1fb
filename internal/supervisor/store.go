// Package supervisor owns job lifecycle: it records launches in
// job_history, spawns one worker process per job, enforces the single
// running job per scope rule and the wall-clock budget, and reconciles
// workers that die without reporting.
package supervisor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"claimsync/internal/database"
	"claimsync/internal/domain"
	"claimsync/internal/entity"
)

// JobStore is the job_history persistence contract. The supervisor is the
// only writer of non-terminal states; workers write their own terminal
// state, so terminal updates are conditional on the row still running.
type JobStore interface {
	// Create inserts a running job. A second running job for the same
	// (job_type, scope_key) violates the partial unique index and comes
	// back as a conflict error.
	Create(ctx context.Context, job *entity.Job) error

	// SetPID records the spawned worker's process id.
	SetPID(ctx context.Context, jobID string, pid int) error

	// Get returns the job row, or nil when absent.
	Get(ctx context.Context, jobID string) (*entity.Job, error)

	// List returns jobs newest first, optionally filtered by type.
	List(ctx context.Context, jobType entity.JobType, limit int) ([]*entity.Job, error)

	// ListRunning returns all jobs still marked running.
	ListRunning(ctx context.Context) ([]*entity.Job, error)

	// MarkTerminal moves a running job to a terminal status. It is a
	// no-op returning false when the worker already wrote its own
	// terminal state.
	MarkTerminal(ctx context.Context, jobID string, status entity.JobStatus, errorMessage string) (bool, error)

	// Finish is the worker-side terminal write: status plus the result
	// bag. Also conditional on the row still running, so a supervisor
	// budget kill that lands first wins.
	Finish(ctx context.Context, job *entity.Job) (bool, error)

	// SweepStale fails every running job at startup. Running rows from a
	// previous supervisor process have no live worker behind them.
	SweepStale(ctx context.Context, reason string) (int, error)
}

// PostgreSQL unique_violation error code.
const uniqueViolation = "23505"

// Store implements JobStore on the Database port.
type Store struct {
	db database.Database
	qb squirrel.StatementBuilderType
}

// NewStore creates the job_history store.
func NewStore(db database.Database) *Store {
	return &Store{
		db: db,
		qb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (s *Store) Create(ctx context.Context, job *entity.Job) error {
	query := s.qb.
		Insert("job_history").
		Columns(
			"id", "job_type", "subtype", "scope_key", "status", "pid",
			"trigger_source", "params", "result", "started_at",
		).
		Values(
			job.ID, job.JobType, job.Subtype, job.ScopeKey, job.Status, job.PID,
			job.TriggerSource, job.Params, job.Result, job.StartedAt,
		)

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.Execute(ctx, sqlQuery, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domain.E(domain.KindConflict, "supervisor.Create",
				fmt.Sprintf("a %s job is already running for scope %s", job.JobType, job.ScopeKey), err)
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *Store) SetPID(ctx context.Context, jobID string, pid int) error {
	query := s.qb.
		Update("job_history").
		Set("pid", pid).
		Where(squirrel.Eq{"id": jobID})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := s.db.Execute(ctx, sqlQuery, args...); err != nil {
		return fmt.Errorf("set pid: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, jobID string) (*entity.Job, error) {
	query := s.qb.
		Select("*").
		From("job_history").
		Where(squirrel.Eq{"id": jobID})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var job entity.Job
	err = s.db.Get(ctx, &job, sqlQuery, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

func (s *Store) List(ctx context.Context, jobType entity.JobType, limit int) ([]*entity.Job, error) {
	query := s.qb.
		Select("*").
		From("job_history").
		OrderBy("started_at DESC")
	if jobType != "" {
		query = query.Where(squirrel.Eq{"job_type": jobType})
	}
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var jobs []entity.Job
	if err := s.db.Select(ctx, &jobs, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]*entity.Job, len(jobs))
	for i := range jobs {
		out[i] = &jobs[i]
	}
	return out, nil
}

func (s *Store) ListRunning(ctx context.Context) ([]*entity.Job, error) {
	query := s.qb.
		Select("*").
		From("job_history").
		Where(squirrel.Eq{"status": entity.JobStatusRunning}).
		OrderBy("started_at ASC")

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var jobs []entity.Job
	if err := s.db.Select(ctx, &jobs, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}
	out := make([]*entity.Job, len(jobs))
	for i := range jobs {
		out[i] = &jobs[i]
	}
	return out, nil
}

// MarkTerminal transitions running → terminal. The WHERE status = 'running'
// guard makes the worker's own terminal write win any race with the
// supervisor's reconciliation.
func (s *Store) MarkTerminal(ctx context.Context, jobID string, status entity.JobStatus, errorMessage string) (bool, error) {
	now := time.Now().UTC()
	query := s.qb.
		Update("job_history").
		Set("status", status).
		Set("finished_at", now).
		Set("duration_ms", squirrel.Expr(
			"(EXTRACT(EPOCH FROM (? - started_at)) * 1000)::bigint", now)).
		Where(squirrel.Eq{"id": jobID, "status": entity.JobStatusRunning})
	if errorMessage != "" {
		query = query.Set("error_message", errorMessage)
	}

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}

	result, err := s.db.Execute(ctx, sqlQuery, args...)
	if err != nil {
		return false, fmt.Errorf("mark terminal: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (s *Store) Finish(ctx context.Context, job *entity.Job) (bool, error) {
	now := time.Now().UTC()
	job.FinishedAt = &now
	job.DurationMS = now.Sub(job.StartedAt).Milliseconds()

	query := s.qb.
		Update("job_history").
		Set("status", job.Status).
		Set("result", job.Result).
		Set("error_message", job.ErrorMessage).
		Set("finished_at", job.FinishedAt).
		Set("duration_ms", job.DurationMS).
		Where(squirrel.Eq{"id": job.ID, "status": entity.JobStatusRunning})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}

	result, err := s.db.Execute(ctx, sqlQuery, args...)
	if err != nil {
		return false, fmt.Errorf("finish job: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (s *Store) SweepStale(ctx context.Context, reason string) (int, error) {
	now := time.Now().UTC()
	query := s.qb.
		Update("job_history").
		Set("status", entity.JobStatusFailed).
		Set("error_message", reason).
		Set("finished_at", now).
		Set("duration_ms", squirrel.Expr(
			"(EXTRACT(EPOCH FROM (? - started_at)) * 1000)::bigint", now)).
		Where(squirrel.Eq{"status": entity.JobStatusRunning})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	result, err := s.db.Execute(ctx, sqlQuery, args...)
	if err != nil {
		return 0, fmt.Errorf("sweep stale jobs: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}
