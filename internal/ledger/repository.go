package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"claimsync/internal/database"
	"claimsync/internal/domain"
	"claimsync/internal/entity"
	"claimsync/internal/observability"
)

// PostgreSQL unique_violation error code.
const uniqueViolation = "23505"

// Repository implements Ledger on the Database port using squirrel-built
// SQL. All writes go through single statements or transactions, so they are
// durable before the caller sees success.
type Repository struct {
	db      database.Database
	logger  observability.Logger
	metrics observability.Metrics
	qb      squirrel.StatementBuilderType
}

// NewRepository creates the ledger repository.
func NewRepository(db database.Database, logger observability.Logger, metrics observability.Metrics) *Repository {
	return &Repository{
		db:      db,
		logger:  logger,
		metrics: metrics,
		qb:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *Repository) Exists(ctx context.Context, downloadType, filename string) (bool, error) {
	query := r.qb.
		Select("1").
		From("download_history").
		Where(squirrel.Eq{"download_type": downloadType, "filename": filename}).
		Limit(1)

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	err = r.db.Get(ctx, &one, sqlQuery, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("existence check: %w", err)
	}
	return true, nil
}

func (r *Repository) Get(ctx context.Context, downloadType, filename string) (*entity.DownloadRecord, error) {
	query := r.qb.
		Select("*").
		From("download_history").
		Where(squirrel.Eq{"download_type": downloadType, "filename": filename})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rec entity.DownloadRecord
	err = r.db.Get(ctx, &rec, sqlQuery, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get download record: %w", err)
	}
	return &rec, nil
}

// RecordDownload upserts on the (download_type, filename) identity. The
// conflict branch updates lifecycle fields only; creation metadata keeps its
// original values.
func (r *Repository) RecordDownload(ctx context.Context, rec *entity.DownloadRecord) (int64, error) {
	rec.UpdatedAt = time.Now().UTC()

	query := r.qb.
		Insert("download_history").
		Columns(
			"download_type", "filename", "scheme", "fiscal_year", "fiscal_month",
			"patient_type", "doc_no", "file_size", "checksum", "source_url",
			"params", "status", "retry_count", "last_attempt_at", "file_present",
			"created_at", "updated_at",
		).
		Values(
			rec.DownloadType, rec.Filename, rec.Scheme, rec.FiscalYear, rec.FiscalMonth,
			rec.PatientType, rec.DocNo, rec.FileSize, rec.Checksum, rec.SourceURL,
			rec.Params, rec.Status, rec.RetryCount, rec.LastAttemptAt, rec.FilePresent,
			rec.CreatedAt, rec.UpdatedAt,
		).
		Suffix(`ON CONFLICT (download_type, filename) DO UPDATE SET
			status = EXCLUDED.status,
			retry_count = EXCLUDED.retry_count,
			last_attempt_at = EXCLUDED.last_attempt_at,
			file_size = EXCLUDED.file_size,
			checksum = EXCLUDED.checksum,
			source_url = EXCLUDED.source_url,
			params = EXCLUDED.params,
			file_present = EXCLUDED.file_present,
			updated_at = EXCLUDED.updated_at
			RETURNING id`)

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build upsert: %w", err)
	}

	var id int64
	if err := r.db.Get(ctx, &id, sqlQuery, args...); err != nil {
		r.metrics.RecordError("ledger_record_download", "database")
		return 0, fmt.Errorf("record download: %w", err)
	}

	rec.ID = id
	r.metrics.RecordSuccess("ledger_record_download")
	r.logger.Debug(ctx, "download record upserted", observability.Fields{
		"download_type": rec.DownloadType,
		"filename":      rec.Filename,
		"status":        rec.Status,
		"retry_count":   rec.RetryCount,
	})
	return id, nil
}

func (r *Repository) BeginImport(ctx context.Context, f *entity.ImportedFile) (int64, error) {
	query := r.qb.
		Insert("imported_files").
		Columns(
			"filename", "category", "fiscal_year", "fiscal_month", "checksum",
			"total_rows", "success_rows", "failed_rows", "warning_rows",
			"status", "started_at",
		).
		Values(
			f.Filename, f.Category, f.FiscalYear, f.FiscalMonth, f.Checksum,
			f.TotalRows, f.SuccessRows, f.FailedRows, f.WarningRows,
			f.Status, f.StartedAt,
		).
		Suffix("RETURNING id")

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	if err := r.db.Get(ctx, &id, sqlQuery, args...); err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	f.ID = id
	return id, nil
}

// FinishImport writes the terminal counters and status. Finishing to a
// completed status first demotes any earlier completed row for the same
// (filename, category) to superseded, so re-importing a file overwrites
// its history instead of colliding with the one-completed-row index.
func (r *Repository) FinishImport(ctx context.Context, f *entity.ImportedFile) error {
	query := r.qb.
		Update("imported_files").
		Set("total_rows", f.TotalRows).
		Set("success_rows", f.SuccessRows).
		Set("failed_rows", f.FailedRows).
		Set("warning_rows", f.WarningRows).
		Set("status", f.Status).
		Set("error_message", f.ErrorMessage).
		Set("finished_at", f.FinishedAt).
		Where(squirrel.Eq{"id": f.ID})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	err = r.db.Transaction(ctx, func(tx database.Transaction) error {
		if f.Status.Completed() {
			demote := r.qb.
				Update("imported_files").
				Set("status", entity.ImportStatusSuperseded).
				Where(squirrel.Eq{
					"filename": f.Filename,
					"category": f.Category,
					"status":   []entity.ImportStatus{entity.ImportStatusSuccess, entity.ImportStatusPartial},
				}).
				Where(squirrel.NotEq{"id": f.ID})

			demoteSQL, demoteArgs, err := demote.ToSql()
			if err != nil {
				return fmt.Errorf("build supersede: %w", err)
			}
			if _, err := tx.Execute(ctx, demoteSQL, demoteArgs...); err != nil {
				return fmt.Errorf("supersede prior import: %w", err)
			}
		}

		result, err := tx.Execute(ctx, sqlQuery, args...)
		if err != nil {
			return fmt.Errorf("finish import: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return domain.E(domain.KindConsistency, "ledger.FinishImport",
				fmt.Sprintf("imported_files row %d vanished", f.ID), nil)
		}
		return nil
	})
	if err != nil {
		// A unique violation here means another job completed the same
		// file between our demote and our update.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domain.E(domain.KindConflict, "ledger.FinishImport",
				fmt.Sprintf("a completed import already exists for %s/%s", f.Filename, f.Category), err)
		}
		return err
	}
	return nil
}

// MarkImported links the download record to the imported file. The link is
// polymorphic: table names where the rows landed.
func (r *Repository) MarkImported(ctx context.Context, downloadType, filename string, importedFileID int64, table string) error {
	query := r.qb.
		Update("download_history").
		Set("imported", true).
		Set("imported_at", time.Now().UTC()).
		Set("imported_file_id", importedFileID).
		Set("imported_table", table).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"download_type": downloadType, "filename": filename})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.db.Execute(ctx, sqlQuery, args...)
	if err != nil {
		return fmt.Errorf("mark imported: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// Importing a file with no download record means the ledger and
		// the filesystem disagree about history.
		return domain.E(domain.KindConsistency, "ledger.MarkImported",
			fmt.Sprintf("no download record for %s/%s", downloadType, filename), nil)
	}
	return nil
}

func (r *Repository) ListUnimported(ctx context.Context, downloadType string, limit int) ([]*entity.DownloadRecord, error) {
	query := r.qb.
		Select("*").
		From("download_history").
		Where(squirrel.Eq{
			"download_type": downloadType,
			"status":        entity.DownloadStatusSuccess,
			"imported":      false,
		}).
		Where(squirrel.Eq{"file_present": true}).
		OrderBy("created_at ASC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var records []entity.DownloadRecord
	if err := r.db.Select(ctx, &records, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("list unimported: %w", err)
	}

	out := make([]*entity.DownloadRecord, len(records))
	for i := range records {
		out[i] = &records[i]
	}
	return out, nil
}

// Statistics aggregates in the database with FILTER clauses; the record set
// itself is never transferred.
func (r *Repository) Statistics(ctx context.Context, filter StatFilter) (*Stats, error) {
	query := r.qb.
		Select(
			"COUNT(*) AS total",
			"COUNT(*) FILTER (WHERE status = 'pending') AS pending",
			"COUNT(*) FILTER (WHERE status = 'downloading') AS downloading",
			"COUNT(*) FILTER (WHERE status = 'success') AS success",
			"COUNT(*) FILTER (WHERE status = 'failed') AS failed",
			"COUNT(*) FILTER (WHERE imported) AS imported",
		).
		From("download_history")

	if filter.DownloadType != "" {
		query = query.Where(squirrel.Eq{"download_type": filter.DownloadType})
	}
	if filter.Year != 0 {
		query = query.Where(squirrel.Eq{"fiscal_year": filter.Year})
	}
	if filter.Month != 0 {
		query = query.Where(squirrel.Eq{"fiscal_month": filter.Month})
	}
	if filter.Scheme != "" {
		query = query.Where(squirrel.Eq{"scheme": filter.Scheme})
	}

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var stats Stats
	if err := r.db.Get(ctx, &stats, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}
	return &stats, nil
}

// SweepMissingFiles reconciles the file_present flag against the artifact
// directory. Only filenames are loaded, not full records.
func (r *Repository) SweepMissingFiles(ctx context.Context, downloadType, dir string) (int, error) {
	query := r.qb.
		Select("filename").
		From("download_history").
		Where(squirrel.Eq{"download_type": downloadType, "file_present": true})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var filenames []string
	if err := r.db.Select(ctx, &filenames, sqlQuery, args...); err != nil {
		return 0, fmt.Errorf("list present files: %w", err)
	}

	var missing []string
	for _, name := range filenames {
		if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	update := r.qb.
		Update("download_history").
		Set("file_present", false).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"download_type": downloadType, "filename": missing})

	sqlQuery, args, err = update.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}
	if _, err := r.db.Execute(ctx, sqlQuery, args...); err != nil {
		return 0, fmt.Errorf("clear file_present: %w", err)
	}

	r.logger.Warn(ctx, "artifacts missing on disk, file_present cleared", observability.Fields{
		"download_type": downloadType,
		"count":         len(missing),
	})
	return len(missing), nil
}
