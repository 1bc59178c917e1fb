// Package loader maps parsed spreadsheet rows to the claim tables and
// upserts them in batches. Re-importing a file is idempotent: rows are
// identified by their natural key and updated in place, never duplicated.
package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"claimsync/internal/database"
	"claimsync/internal/observability"
	"claimsync/internal/spreadsheet"
)

// batchSize is how many rows go into one multi-row upsert statement.
const batchSize = 500

// Result summarizes one load.
type Result struct {
	Table    string
	Total    int
	Success  int
	Failed   int
	Warnings []RowWarning
}

// Loader writes claim rows. Only storage-level failures abort a load; a
// malformed row is counted and skipped.
type Loader struct {
	db      database.Database
	logger  observability.Logger
	metrics observability.Metrics
	qb      squirrel.StatementBuilderType
}

// New creates a Loader.
func New(db database.Database, logger observability.Logger, metrics observability.Metrics) *Loader {
	return &Loader{
		db:      db,
		logger:  logger,
		metrics: metrics,
		qb:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Load converts and upserts every row of doc. Row conversion failures are
// counted; date and amount conversion problems degrade to warnings with
// the field left NULL/zero, and a repeated claim number within a batch is
// a warning with the last occurrence winning. Returns the aggregate
// result, or an error only when the database itself fails.
func (l *Loader) Load(ctx context.Context, doc *spreadsheet.Document, importedFileID int64) (*Result, error) {
	l.metrics.StartOperation("load")
	defer l.metrics.EndOperation("load")
	start := time.Now()
	defer func() {
		l.metrics.RecordDuration("load", time.Since(start).Seconds())
	}()

	result := &Result{
		Table: TargetTable(doc.Category),
		Total: len(doc.Rows),
	}

	var (
		batch     []*ClaimRow
		batchRows []int                 // spreadsheet row of each batch entry
		seen      = map[string]int{}    // claim number -> index in batch
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := l.upsertBatch(ctx, doc.Category, batch); err != nil {
			return err
		}
		result.Success += len(batch)
		batch = batch[:0]
		batchRows = batchRows[:0]
		clear(seen)
		return nil
	}

	for i, raw := range doc.Rows {
		row, warnings, err := mapRow(doc, i+1, raw, importedFileID)
		if err != nil {
			result.Failed++
			l.logger.Warn(ctx, "row skipped", observability.Fields{
				"filename": doc.Filename,
				"row":      i + 1,
				"reason":   err.Error(),
			})
			continue
		}
		for _, w := range warnings {
			l.logger.Warn(ctx, "row field unparsable, loaded as null", observability.Fields{
				"filename": doc.Filename,
				"row":      w.Row,
				"field":    w.Field,
				"reason":   w.Message,
			})
		}
		result.Warnings = append(result.Warnings, warnings...)

		// A single multi-row upsert cannot update the same target row
		// twice, so a claim number repeated within a batch keeps only
		// its last occurrence.
		if prev, ok := seen[row.ClaimNo]; ok {
			result.Warnings = append(result.Warnings, RowWarning{
				Row:     batchRows[prev],
				Field:   spreadsheet.FieldClaimNo,
				Message: fmt.Sprintf("duplicate claim number %s, superseded by row %d", row.ClaimNo, i+1),
			})
			l.logger.Warn(ctx, "duplicate claim number, last row wins", observability.Fields{
				"filename": doc.Filename,
				"claim_no": row.ClaimNo,
				"row":      batchRows[prev],
			})
			batch[prev] = row
			batchRows[prev] = i + 1
			continue
		}

		seen[row.ClaimNo] = len(batch)
		batch = append(batch, row)
		batchRows = append(batchRows, i+1)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	l.metrics.RecordSuccess("load")
	l.logger.Info(ctx, "spreadsheet loaded", observability.Fields{
		"filename": doc.Filename,
		"table":    result.Table,
		"total":    result.Total,
		"success":  result.Success,
		"failed":   result.Failed,
		"warnings": len(result.Warnings),
	})
	return result, nil
}

// upsertBatch writes one multi-row INSERT ... ON CONFLICT statement inside
// a transaction. The conflict target is the natural key, so a re-import
// updates the previously loaded rows in place.
func (l *Loader) upsertBatch(ctx context.Context, category spreadsheet.Category, rows []*ClaimRow) error {
	table := TargetTable(category)
	refCol := patientRefColumn(category)
	now := time.Now().UTC()

	query := l.qb.
		Insert(table).
		Columns(
			"claim_no", "category", refCol, "citizen_id", "patient_name",
			"service_date", "claimed_amount", "paid_amount", "scheme",
			"rep_no", "remark", "imported_file_id", "created_at", "updated_at",
		)

	for _, row := range rows {
		query = query.Values(
			row.ClaimNo, row.Category, row.PatientRef, row.CitizenID, row.PatientName,
			row.ServiceDate, row.ClaimedAmount, row.PaidAmount, row.Scheme,
			row.RepNo, row.Remark, row.ImportedFileID, now, now,
		)
	}

	query = query.Suffix(fmt.Sprintf(`ON CONFLICT (claim_no, category) DO UPDATE SET
		%s = EXCLUDED.%s,
		citizen_id = EXCLUDED.citizen_id,
		patient_name = EXCLUDED.patient_name,
		service_date = EXCLUDED.service_date,
		claimed_amount = EXCLUDED.claimed_amount,
		paid_amount = EXCLUDED.paid_amount,
		scheme = EXCLUDED.scheme,
		rep_no = EXCLUDED.rep_no,
		remark = EXCLUDED.remark,
		imported_file_id = EXCLUDED.imported_file_id,
		updated_at = EXCLUDED.updated_at`, refCol, refCol))

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build batch upsert: %w", err)
	}

	err = l.db.Transaction(ctx, func(tx database.Transaction) error {
		_, execErr := tx.Execute(ctx, sqlQuery, args...)
		return execErr
	})
	if err != nil {
		l.metrics.RecordError("load", "database")
		return fmt.Errorf("upsert batch of %d into %s: %w", len(rows), table, err)
	}
	return nil
}
