package runner

import (
	"context"
	"path/filepath"
	"time"

	"claimsync/internal/domain"
	"claimsync/internal/entity"
	"claimsync/internal/observability"
)

// RunImport executes an import job. With explicit filenames it imports
// exactly those, skipping any already marked imported; otherwise it drains
// everything the ledger lists as downloaded-but-unimported for the download
// type. A file that fails to parse or load is counted and skipped; only
// ledger-level failures abort the whole job.
func (r *Runner) RunImport(ctx context.Context, downloadType string, filenames []string) (*Summary, error) {
	summary := &Summary{}

	explicit := len(filenames) > 0
	if !explicit {
		records, err := r.ledger.ListUnimported(ctx, downloadType, 0)
		if err != nil {
			return summary, err
		}
		for _, rec := range records {
			filenames = append(filenames, rec.Filename)
		}
	}
	summary.Total = len(filenames)

	dir := r.downloadDir(downloadType)

	for _, filename := range filenames {
		// Cooperative cancellation checkpoint between files.
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if explicit {
			// Requested by name; refuse files the pipeline never downloaded.
			known, err := r.ledger.Exists(ctx, downloadType, filename)
			if err != nil {
				return summary, err
			}
			if !known {
				summary.Failed++
				r.logger.Error(ctx, "requested file has no download record", nil, observability.Fields{
					"filename": filename,
				})
				continue
			}

			// Re-requesting an already imported file is a no-op. The claim
			// rows are upserted on their natural key, so there is nothing a
			// second pass could add.
			dl, err := r.ledger.Get(ctx, downloadType, filename)
			if err != nil {
				return summary, err
			}
			if dl != nil && dl.Imported {
				summary.Skipped++
				r.logger.Info(ctx, "file already imported, skipping", observability.Fields{
					"filename": filename,
				})
				continue
			}
		}

		outcome, err := r.importOne(ctx, downloadType, filename, filepath.Join(dir, filename))
		if err != nil {
			return summary, err
		}
		switch outcome {
		case importOutcomeImported:
			summary.Imported++
		case importOutcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	return summary, nil
}

type importOutcome int

const (
	importOutcomeFailed importOutcome = iota
	importOutcomeImported
	importOutcomeSkipped
)

// importOne runs the parse-load-mark lifecycle for a single artifact.
// A non-nil error means a ledger failure that should abort the job.
func (r *Runner) importOne(ctx context.Context, downloadType, filename, path string) (importOutcome, error) {
	start := time.Now()
	r.metrics.StartOperation("import")
	defer r.metrics.EndOperation("import")

	doc, err := r.parser.Parse(ctx, path)
	if err != nil {
		r.metrics.RecordError("import", string(domain.KindOf(err)))
		r.logger.Error(ctx, "spreadsheet rejected", err, observability.Fields{
			"filename": filename,
		})
		return importOutcomeFailed, nil
	}

	record := entity.NewImportedFile(doc.Filename, string(doc.Category), doc.Period)
	if dl, err := r.ledger.Get(ctx, downloadType, filename); err == nil && dl != nil {
		record.Checksum = dl.Checksum
	}

	id, err := r.ledger.BeginImport(ctx, record)
	if err != nil {
		return importOutcomeFailed, err
	}
	record.ID = id

	result, loadErr := r.loader.Load(ctx, doc, id)
	if loadErr != nil {
		msg := loadErr.Error()
		now := time.Now().UTC()
		record.ErrorMessage = &msg
		record.Status = entity.ImportStatusFailed
		record.FinishedAt = &now
		if err := r.ledger.FinishImport(ctx, record); err != nil {
			return importOutcomeFailed, err
		}
		r.metrics.RecordError("import", string(domain.KindOf(loadErr)))
		r.logger.Error(ctx, "spreadsheet load failed", loadErr, observability.Fields{
			"filename": filename,
			"category": string(doc.Category),
		})
		return importOutcomeFailed, nil
	}

	record.TotalRows = result.Total
	record.SuccessRows = result.Success
	record.FailedRows = result.Failed
	record.WarningRows = len(result.Warnings)
	record.Finalize()
	if err := r.ledger.FinishImport(ctx, record); err != nil {
		if domain.IsKind(err, domain.KindConflict) {
			// A concurrent job completed this file first. Its record is
			// authoritative; the rows are already in place.
			r.logger.Warn(ctx, "import already completed by another job", observability.Fields{
				"filename": filename,
				"category": string(doc.Category),
			})
			return importOutcomeSkipped, nil
		}
		return importOutcomeFailed, err
	}

	if record.Status == entity.ImportStatusFailed {
		r.logger.Error(ctx, "no rows imported", nil, observability.Fields{
			"filename":   filename,
			"total_rows": result.Total,
		})
		return importOutcomeFailed, nil
	}

	if err := r.ledger.MarkImported(ctx, downloadType, filename, id, result.Table); err != nil {
		return importOutcomeFailed, err
	}

	r.metrics.RecordSuccess("import")
	r.metrics.RecordDuration("import", time.Since(start).Seconds())
	r.logger.Info(ctx, "spreadsheet imported", observability.Fields{
		"filename":     filename,
		"category":     string(doc.Category),
		"table":        result.Table,
		"success_rows": result.Success,
		"failed_rows":  result.Failed,
		"status":       string(record.Status),
	})
	return importOutcomeImported, nil
}
