// The worker runs exactly one job per process. The supervisor spawns it
// with the job id as its only argument; the worker reads its task from
// job_history, executes the pipeline and writes its own terminal state
// before exiting. Process isolation means a crash here can never take the
// supervisor down with it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"claimsync/internal/config"
	"claimsync/internal/database"
	"claimsync/internal/database/postgres"
	"claimsync/internal/entity"
	"claimsync/internal/fetch"
	"claimsync/internal/ledger"
	"claimsync/internal/loader"
	"claimsync/internal/observability"
	obslog "claimsync/internal/observability/logger"
	"claimsync/internal/portal"
	"claimsync/internal/runner"
	"claimsync/internal/spreadsheet"
	"claimsync/internal/storage"
	"claimsync/internal/supervisor"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s <job-id>", os.Args[0])
	}
	jobID := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	provider := observability.NewProvider(&observability.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
		AdditionalFields: observability.Fields{
			"version": cfg.Version,
			"job_id":  jobID,
		},
	})
	logger := provider.Logger("worker")

	db, err := postgres.New(&cfg.Database,
		provider.Logger("database"), provider.Metrics("database"))
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	store := supervisor.NewStore(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job, err := store.Get(ctx, jobID)
	if err != nil {
		log.Fatalf("job lookup failed: %v", err)
	}
	if job == nil {
		log.Fatalf("unknown job %s", jobID)
	}
	if job.Status.Terminal() {
		logger.Warn(ctx, "job already terminal, nothing to do", observability.Fields{
			"status": string(job.Status),
		})
		return
	}

	summary, runErr := execute(obslog.WithJobID(ctx, jobID), cfg, db, provider, job)
	finalize(context.Background(), store, logger, job, summary, runErr)
}

// execute builds the pipeline for the job's type and runs it.
func execute(
	ctx context.Context,
	cfg *config.Config,
	db database.Database,
	provider observability.Provider,
	job *entity.Job,
) (*runner.Summary, error) {
	ldg := ledger.NewRepository(db,
		provider.Logger("ledger"), provider.Metrics("ledger"))

	archiver, err := storage.New(cfg.Archive,
		provider.Logger("archive"), provider.Metrics("archive"))
	if err != nil {
		return &runner.Summary{}, fmt.Errorf("archive setup: %w", err)
	}

	// A disabled archive comes back as nil; the runner treats that as
	// "no archive".
	var archivePort runner.Archiver
	if archiver != nil {
		archivePort = archiver
	}

	run := runner.New(
		cfg,
		ldg,
		portal.NewClient(cfg.Portal, provider.Logger("portal"), provider.Metrics("portal")),
		fetch.New(cfg.Fetch, provider.Logger("fetch"), provider.Metrics("fetch")),
		spreadsheet.NewParser(provider.Logger("parser"), provider.Metrics("parser")),
		loader.New(db, provider.Logger("loader"), provider.Metrics("loader")),
		archivePort,
		provider.Logger("runner"),
		provider.Metrics("runner"),
	)

	downloadType := paramString(job.Params, "download_type")
	if downloadType == "" {
		return &runner.Summary{}, fmt.Errorf("job %s has no download_type", job.ID)
	}

	switch job.JobType {
	case entity.JobTypeDownload:
		period := entity.Period{
			Year:  paramInt(job.Params, "year"),
			Month: paramInt(job.Params, "month"),
		}
		scheme := entity.Scheme(paramString(job.Params, "scheme"))
		return run.RunDownload(ctx, downloadType, period, scheme)
	case entity.JobTypeImport:
		return run.RunImport(ctx, downloadType, paramStrings(job.Params, "files"))
	default:
		return &runner.Summary{}, fmt.Errorf("unknown job type %q", job.JobType)
	}
}

// finalize writes the terminal state. Uses a fresh context because the run
// context may already be cancelled.
func finalize(
	ctx context.Context,
	store supervisor.JobStore,
	logger observability.Logger,
	job *entity.Job,
	summary *runner.Summary,
	runErr error,
) {
	var message string
	switch {
	case errors.Is(runErr, context.Canceled):
		job.Status = entity.JobStatusCancelled
		message = stopMessage(job.JobType, summary, runErr)
	case runErr != nil:
		job.Status = entity.JobStatusFailed
		msg := runErr.Error()
		job.ErrorMessage = &msg
		message = stopMessage(job.JobType, summary, runErr)
	default:
		job.Status = entity.JobStatusCompleted
		message = stopMessage(job.JobType, summary, nil)
	}
	job.Result = summary.AsMap(message)

	applied, err := store.Finish(ctx, job)
	if err != nil {
		log.Fatalf("terminal write failed: %v", err)
	}
	if !applied {
		logger.Warn(ctx, "terminal state already written by supervisor", observability.Fields{
			"status": string(job.Status),
		})
		return
	}

	logger.Info(ctx, "job finished", observability.Fields{
		"status":  string(job.Status),
		"message": message,
	})
}

func stopMessage(jobType entity.JobType, summary *runner.Summary, aborted error) string {
	if jobType == entity.JobTypeDownload {
		return summary.DownloadMessage(aborted)
	}
	return summary.ImportMessage(aborted)
}

// Params round-trip through JSONB, so numbers come back as float64 and
// arrays as []interface{}.

func paramString(params entity.JSONMap, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func paramInt(params entity.JSONMap, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func paramStrings(params entity.JSONMap, key string) []string {
	raw, ok := params[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
