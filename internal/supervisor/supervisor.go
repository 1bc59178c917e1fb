package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"claimsync/internal/config"
	"claimsync/internal/domain"
	"claimsync/internal/entity"
	"claimsync/internal/observability"
)

// tracked is the supervisor's in-memory view of one spawned worker.
type tracked struct {
	jobID    string
	pid      int
	deadline time.Time
}

// Supervisor launches and watches worker processes. It persists every
// launch before spawning, enforces one running job per scope through the
// store's unique index, and reconciles workers that die silently.
type Supervisor struct {
	cfg     config.SupervisorConfig
	store   JobStore
	proc    ProcessManager
	logger  observability.Logger
	metrics observability.Metrics

	mu      sync.Mutex
	workers map[string]*tracked
}

// New creates a Supervisor.
func New(
	cfg config.SupervisorConfig,
	store JobStore,
	proc ProcessManager,
	logger observability.Logger,
	metrics observability.Metrics,
) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		store:   store,
		proc:    proc,
		logger:  logger,
		metrics: metrics,
		workers: make(map[string]*tracked),
	}
}

// Startup reconciles job_history with reality: any row still running
// belongs to a previous supervisor process and has no live worker, so it
// is failed. Call once before accepting triggers.
func (s *Supervisor) Startup(ctx context.Context) error {
	orphans, err := s.store.ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("list running jobs: %w", err)
	}
	for _, job := range orphans {
		s.logger.Warn(ctx, "orphaned job from previous run", observability.Fields{
			"job_id":    job.ID,
			"scope_key": job.ScopeKey,
			"pid":       job.PID,
		})
	}

	swept, err := s.store.SweepStale(ctx, "orphaned by supervisor restart")
	if err != nil {
		return fmt.Errorf("startup sweep: %w", err)
	}
	if swept > 0 {
		s.logger.Warn(ctx, "failed orphaned jobs from previous run", observability.Fields{
			"count": swept,
		})
	}
	return nil
}

// Launch records and spawns a job. Returns a conflict error when a job of
// the same type is already running for the scope; the caller reports that
// to the trigger source instead of queueing.
func (s *Supervisor) Launch(
	ctx context.Context,
	jobType entity.JobType,
	subtype entity.JobSubtype,
	scopeKey string,
	source entity.TriggerSource,
	params entity.JSONMap,
) (*entity.Job, error) {
	job := entity.NewJob(jobType, subtype, scopeKey, source, params)

	if err := s.store.Create(ctx, job); err != nil {
		if domain.IsKind(err, domain.KindConflict) {
			s.metrics.RecordError("launch", "conflict")
		}
		return nil, err
	}

	pid, err := s.proc.Start(job.ID)
	if err != nil {
		if _, markErr := s.store.MarkTerminal(ctx, job.ID, entity.JobStatusFailed,
			fmt.Sprintf("worker spawn failed: %v", err)); markErr != nil {
			s.logger.Error(ctx, "failed to record spawn failure", markErr, observability.Fields{
				"job_id": job.ID,
			})
		}
		s.metrics.RecordError("launch", "spawn")
		return nil, fmt.Errorf("launch %s: %w", job.ID, err)
	}

	job.PID = pid
	if err := s.store.SetPID(ctx, job.ID, pid); err != nil {
		s.logger.Error(ctx, "failed to persist worker pid", err, observability.Fields{
			"job_id": job.ID,
			"pid":    pid,
		})
	}

	s.mu.Lock()
	s.workers[job.ID] = &tracked{
		jobID:    job.ID,
		pid:      pid,
		deadline: time.Now().Add(s.cfg.WorkerBudget),
	}
	s.mu.Unlock()

	s.metrics.RecordSuccess("launch")
	s.logger.Info(ctx, "job launched", observability.Fields{
		"job_id":    job.ID,
		"job_type":  string(jobType),
		"scope_key": scopeKey,
		"pid":       pid,
		"source":    string(source),
	})
	return job, nil
}

// Run is the supervision loop. It polls worker liveness at the configured
// interval until ctx is cancelled, then interrupts every remaining worker.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll checks every tracked worker: dead workers are reconciled against
// job_history, live workers past their budget are killed.
func (s *Supervisor) poll(ctx context.Context) {
	s.mu.Lock()
	snapshot := make([]*tracked, 0, len(s.workers))
	for _, w := range s.workers {
		snapshot = append(snapshot, w)
	}
	s.mu.Unlock()

	now := time.Now()
	for _, w := range snapshot {
		switch {
		case !s.proc.Alive(w.pid):
			s.reconcile(ctx, w)
		case now.After(w.deadline):
			s.enforceBudget(ctx, w)
		}
	}
}

// reconcile handles a worker that is gone. Normally the worker wrote its
// terminal state before exiting; when it did not (crash, OOM kill), the
// job is failed here so no row stays running forever.
func (s *Supervisor) reconcile(ctx context.Context, w *tracked) {
	marked, err := s.store.MarkTerminal(ctx, w.jobID, entity.JobStatusFailed,
		"worker exited without reporting a result")
	if err != nil {
		s.logger.Error(ctx, "failed to reconcile dead worker", err, observability.Fields{
			"job_id": w.jobID,
			"pid":    w.pid,
		})
		return
	}
	if marked {
		s.metrics.RecordError("job", "worker_died")
		s.logger.Error(ctx, "worker died without reporting", nil, observability.Fields{
			"job_id": w.jobID,
			"pid":    w.pid,
		})
	}
	s.forget(w.jobID)
}

// enforceBudget kills a worker that exceeded the wall-clock budget and
// fails its job with a timeout message.
func (s *Supervisor) enforceBudget(ctx context.Context, w *tracked) {
	s.logger.Warn(ctx, "worker exceeded budget, killing", observability.Fields{
		"job_id": w.jobID,
		"pid":    w.pid,
		"budget": s.cfg.WorkerBudget.String(),
	})
	if err := s.proc.Kill(w.pid); err != nil {
		s.logger.Error(ctx, "failed to kill worker", err, observability.Fields{
			"job_id": w.jobID,
			"pid":    w.pid,
		})
	}
	if _, err := s.store.MarkTerminal(ctx, w.jobID, entity.JobStatusFailed,
		fmt.Sprintf("killed after exceeding %s budget", s.cfg.WorkerBudget)); err != nil {
		s.logger.Error(ctx, "failed to record budget kill", err, observability.Fields{
			"job_id": w.jobID,
		})
		return
	}
	s.metrics.RecordError("job", "timeout")
	s.forget(w.jobID)
}

// Cancel requests cooperative cancellation. The worker traps the signal,
// stops at its next checkpoint and writes the cancelled status itself; a
// worker that is already gone gets the status written here.
func (s *Supervisor) Cancel(ctx context.Context, jobID string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return domain.E(domain.KindConsistency, "supervisor.Cancel",
			fmt.Sprintf("unknown job %s", jobID), nil)
	}
	if job.Status.Terminal() {
		return domain.E(domain.KindConflict, "supervisor.Cancel",
			fmt.Sprintf("job %s already %s", jobID, job.Status), nil)
	}

	if s.proc.Alive(job.PID) {
		if err := s.proc.Interrupt(job.PID); err != nil {
			return fmt.Errorf("interrupt worker %d: %w", job.PID, err)
		}
		s.logger.Info(ctx, "cancellation requested", observability.Fields{
			"job_id": jobID,
			"pid":    job.PID,
		})
		return nil
	}

	if _, err := s.store.MarkTerminal(ctx, jobID, entity.JobStatusCancelled, "cancelled"); err != nil {
		return err
	}
	s.forget(jobID)
	return nil
}

// Job returns one job row for the status API.
func (s *Supervisor) Job(ctx context.Context, jobID string) (*entity.Job, error) {
	return s.store.Get(ctx, jobID)
}

// Jobs lists recent jobs for the status API.
func (s *Supervisor) Jobs(ctx context.Context, jobType entity.JobType, limit int) ([]*entity.Job, error) {
	return s.store.List(ctx, jobType, limit)
}

func (s *Supervisor) forget(jobID string) {
	s.mu.Lock()
	delete(s.workers, jobID)
	s.mu.Unlock()
}

// shutdown interrupts every remaining worker so they can stop at a
// checkpoint and report cancelled before the supervisor exits.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workers {
		_ = s.proc.Interrupt(w.pid)
	}
}
