package entity

import "time"

// ImportStatus is the lifecycle state of an ImportedFile.
type ImportStatus string

const (
	ImportStatusRunning ImportStatus = "running"
	ImportStatusSuccess ImportStatus = "success"
	ImportStatusPartial ImportStatus = "partial"
	ImportStatusFailed  ImportStatus = "failed"

	// ImportStatusSuperseded marks a completed row whose file was imported
	// again later; the newer row is the authoritative one.
	ImportStatusSuperseded ImportStatus = "superseded"
)

// Completed reports whether the status means rows were loaded.
func (s ImportStatus) Completed() bool {
	return s == ImportStatusSuccess || s == ImportStatusPartial
}

// ImportedFile is one row of imported_files: a spreadsheet whose contents
// were loaded (or attempted). At most one success|partial row exists per
// (Filename, Category); the schema enforces this with a partial unique
// index.
type ImportedFile struct {
	ID           int64        `db:"id"`
	Filename     string       `db:"filename"`
	Category     string       `db:"category"`
	FiscalYear   int          `db:"fiscal_year"`
	FiscalMonth  int          `db:"fiscal_month"`
	Checksum     string       `db:"checksum"`
	TotalRows    int          `db:"total_rows"`
	SuccessRows  int          `db:"success_rows"`
	FailedRows   int          `db:"failed_rows"`
	WarningRows  int          `db:"warning_rows"`
	Status       ImportStatus `db:"status"`
	ErrorMessage *string      `db:"error_message"`
	StartedAt    time.Time    `db:"started_at"`
	FinishedAt   *time.Time   `db:"finished_at"`
}

// NewImportedFile creates a running record at the moment parsing begins.
func NewImportedFile(filename, category string, period Period) *ImportedFile {
	return &ImportedFile{
		Filename:    filename,
		Category:    category,
		FiscalYear:  period.Year,
		FiscalMonth: period.Month,
		Status:      ImportStatusRunning,
		StartedAt:   time.Now().UTC(),
	}
}

// Finalize sets the terminal status from the row counters: success when
// nothing failed, failed when nothing succeeded, partial otherwise.
func (f *ImportedFile) Finalize() {
	now := time.Now().UTC()
	f.FinishedAt = &now
	switch {
	case f.FailedRows == 0:
		f.Status = ImportStatusSuccess
	case f.SuccessRows == 0:
		f.Status = ImportStatusFailed
	default:
		f.Status = ImportStatusPartial
	}
}
