// Package ledger owns the download and import history: the persisted record
// of every artifact ever retrieved and every spreadsheet ever loaded. It is
// the only component that mutates download_history and imported_files.
package ledger

import (
	"context"

	"claimsync/internal/entity"
)

// StatFilter narrows Statistics to a scope. Zero values mean "any".
type StatFilter struct {
	DownloadType string
	Year         int
	Month        int
	Scheme       string
}

// Stats are aggregate counts for a scope, computed by a single query so
// large histories never load into memory.
type Stats struct {
	Total       int64 `db:"total"`
	Pending     int64 `db:"pending"`
	Downloading int64 `db:"downloading"`
	Success     int64 `db:"success"`
	Failed      int64 `db:"failed"`
	Imported    int64 `db:"imported"`
}

// Ledger is the history/dedup contract consumed by the runner.
type Ledger interface {
	// Exists is the O(1) dedup check keyed on (download_type, filename),
	// used to skip artifacts before spending a network round trip.
	Exists(ctx context.Context, downloadType, filename string) (bool, error)

	// Get returns the record for a key, or nil when absent.
	Get(ctx context.Context, downloadType, filename string) (*entity.DownloadRecord, error)

	// RecordDownload upserts keyed on (download_type, filename). A second
	// call for the same key updates status, retry and integrity fields
	// instead of creating a duplicate. Returns the row id.
	RecordDownload(ctx context.Context, rec *entity.DownloadRecord) (int64, error)

	// BeginImport creates a running imported_files row when parsing
	// starts. Returns its id.
	BeginImport(ctx context.Context, f *entity.ImportedFile) (int64, error)

	// FinishImport persists the row counters and terminal status.
	FinishImport(ctx context.Context, f *entity.ImportedFile) error

	// MarkImported links a DownloadRecord to an ImportedFile and the
	// table its rows landed in.
	MarkImported(ctx context.Context, downloadType, filename string, importedFileID int64, table string) error

	// ListUnimported returns successful downloads not yet imported,
	// oldest first.
	ListUnimported(ctx context.Context, downloadType string, limit int) ([]*entity.DownloadRecord, error)

	// Statistics returns aggregate counts for a scope via a single
	// filtered query.
	Statistics(ctx context.Context, filter StatFilter) (*Stats, error)

	// SweepMissingFiles clears file_present for records whose on-disk
	// artifact vanished from dir. Returns how many were cleared.
	SweepMissingFiles(ctx context.Context, downloadType, dir string) (int, error)
}
