package runner

import (
	"context"
	"path/filepath"
	"time"

	"claimsync/internal/config"
	"claimsync/internal/entity"
	"claimsync/internal/ledger"
	"claimsync/internal/observability"
	"claimsync/internal/portal"
)

// Runner executes one job's pipeline inside a worker process.
type Runner struct {
	cfg     *config.Config
	ledger  ledger.Ledger
	portal  PortalClient
	fetcher Fetcher
	parser  Parser
	loader  RowLoader
	archive Archiver // nil when archiving is disabled
	logger  observability.Logger
	metrics observability.Metrics
}

// New creates a Runner. archive may be nil.
func New(
	cfg *config.Config,
	ldg ledger.Ledger,
	portalClient PortalClient,
	fetcher Fetcher,
	parser Parser,
	rowLoader RowLoader,
	archive Archiver,
	logger observability.Logger,
	metrics observability.Metrics,
) *Runner {
	return &Runner{
		cfg:     cfg,
		ledger:  ldg,
		portal:  portalClient,
		fetcher: fetcher,
		parser:  parser,
		loader:  rowLoader,
		archive: archive,
		logger:  logger,
		metrics: metrics,
	}
}

// downloadDir is the per-download-type artifact directory.
func (r *Runner) downloadDir(downloadType string) string {
	return filepath.Join(r.cfg.Download.Dir, downloadType)
}

// RunDownload executes a download job for one scope: authenticate,
// discover, then fetch everything the ledger does not already hold as a
// success. Artifact-level failures abort that artifact only. Cancellation
// is observed between artifacts; the in-flight record is left failed.
func (r *Runner) RunDownload(ctx context.Context, downloadType string, period entity.Period, scheme entity.Scheme) (*Summary, error) {
	summary := &Summary{}
	destDir := r.downloadDir(downloadType)

	// Reconcile file_present with the directory first, so artifacts whose
	// local files vanished are fetched again instead of skipped.
	if cleared, err := r.ledger.SweepMissingFiles(ctx, downloadType, destDir); err != nil {
		r.logger.Warn(ctx, "missing-file sweep failed", observability.Fields{
			"download_type": downloadType,
			"error":         err.Error(),
		})
	} else if cleared > 0 {
		r.logger.Warn(ctx, "artifacts vanished from disk, will re-fetch", observability.Fields{
			"download_type": downloadType,
			"count":         cleared,
		})
	}

	session, err := r.portal.Authenticate(ctx, portal.Credentials{
		Username: r.cfg.Portal.Username,
		Password: r.cfg.Portal.Password,
	})
	if err != nil {
		return summary, err
	}

	links, err := r.portal.Discover(ctx, session, period, scheme)
	if err != nil {
		return summary, err
	}
	summary.Total = len(links)

	for _, link := range links {
		// Cooperative cancellation checkpoint between artifacts.
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		existing, err := r.ledger.Get(ctx, downloadType, link.Filename)
		if err != nil {
			return summary, err
		}
		if existing != nil && existing.Status == entity.DownloadStatusSuccess && existing.FilePresent {
			summary.Skipped++
			r.logger.Debug(ctx, "artifact already downloaded, skipping", observability.Fields{
				"filename": link.Filename,
			})
			continue
		}

		if err := r.fetchOne(ctx, session, downloadType, link, existing, period, scheme, destDir); err != nil {
			summary.Failed++
			r.logger.Error(ctx, "artifact download failed", err, observability.Fields{
				"filename": link.Filename,
			})
			continue
		}
		summary.Downloaded++
	}

	return summary, nil
}

// fetchOne runs the per-artifact lifecycle: pending/downloading record,
// stream, then success or failed. A pre-existing failed record is retried
// with its retry counter incremented.
func (r *Runner) fetchOne(
	ctx context.Context,
	session *portal.Session,
	downloadType string,
	link portal.ArtifactLink,
	existing *entity.DownloadRecord,
	period entity.Period,
	scheme entity.Scheme,
	destDir string,
) error {
	rec := existing
	if rec == nil {
		rec = entity.NewDownloadRecord(downloadType, link.Filename, period, scheme)
	} else {
		rec.RetryCount++
	}

	now := time.Now().UTC()
	rec.Status = entity.DownloadStatusDownloading
	rec.LastAttemptAt = &now
	rec.SourceURL = link.URL
	if link.DeclaredType != "" {
		rec.PatientType = link.DeclaredType
	}
	if len(link.Params) > 0 {
		params := entity.JSONMap{}
		for k := range link.Params {
			params[k] = link.Params.Get(k)
		}
		rec.Params = params
	}
	if _, err := r.ledger.RecordDownload(ctx, rec); err != nil {
		return err
	}

	result, fetchErr := r.fetcher.Fetch(ctx, session, link, destDir)
	if fetchErr != nil {
		rec.Status = entity.DownloadStatusFailed
		if _, err := r.ledger.RecordDownload(ctx, rec); err != nil {
			r.logger.Error(ctx, "failed to persist failed status", err, observability.Fields{
				"filename": link.Filename,
			})
		}
		return fetchErr
	}

	rec.Status = entity.DownloadStatusSuccess
	rec.FileSize = result.Size
	rec.Checksum = result.Checksum
	rec.FilePresent = true
	if _, err := r.ledger.RecordDownload(ctx, rec); err != nil {
		return err
	}

	if r.archive != nil {
		key := filepath.Join(downloadType, link.Filename)
		if archived, err := r.archive.Exists(ctx, key); err == nil && archived {
			return nil
		}
		if err := r.archive.Archive(ctx, result.Path, key); err != nil {
			// Archive replication is best effort; the artifact and its
			// ledger record are already durable.
			r.logger.Warn(ctx, "artifact archive failed", observability.Fields{
				"filename": link.Filename,
				"error":    err.Error(),
			})
		}
	}
	return nil
}

// Statistics exposes scope statistics to the supervisor API.
func (r *Runner) Statistics(ctx context.Context, filter ledger.StatFilter) (*ledger.Stats, error) {
	return r.ledger.Statistics(ctx, filter)
}
