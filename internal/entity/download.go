// Package entity defines the persisted records owned by the ledger and the
// supervisor. Structs carry db tags for sqlx scanning; nullable columns are
// pointers.
package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// DownloadStatus is the lifecycle state of a DownloadRecord.
type DownloadStatus string

const (
	DownloadStatusPending     DownloadStatus = "pending"
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusSuccess     DownloadStatus = "success"
	DownloadStatusFailed      DownloadStatus = "failed"
)

// Period is a fiscal period as published by the portal. Year is the
// Buddhist-era fiscal year the portal uses in its listings.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Scheme is the insurance-category classifier attached to artifacts and
// rows (UCS, OFC, SSS, LGO).
type Scheme string

const (
	SchemeUCS Scheme = "UCS"
	SchemeOFC Scheme = "OFC"
	SchemeSSS Scheme = "SSS"
	SchemeLGO Scheme = "LGO"
)

// ScopeKey identifies the unit of dedup and concurrency control:
// download_type x period x scheme.
func ScopeKey(downloadType string, period Period, scheme Scheme) string {
	return fmt.Sprintf("%s|%s|%s", downloadType, period, scheme)
}

// DownloadRecord is one row of download_history: a single retrieved (or
// to-be-retrieved) artifact. Identity is (DownloadType, Filename).
type DownloadRecord struct {
	ID            int64          `db:"id"`
	DownloadType  string         `db:"download_type"`
	Filename      string         `db:"filename"`
	Scheme        string         `db:"scheme"`
	FiscalYear    int            `db:"fiscal_year"`
	FiscalMonth   int            `db:"fiscal_month"`
	PatientType   string         `db:"patient_type"`
	DocNo         string         `db:"doc_no"`
	FileSize      int64          `db:"file_size"`
	Checksum      string         `db:"checksum"`
	SourceURL     string         `db:"source_url"`
	Params        JSONMap        `db:"params"`
	Status        DownloadStatus `db:"status"`
	RetryCount    int            `db:"retry_count"`
	LastAttemptAt *time.Time     `db:"last_attempt_at"`
	FilePresent   bool           `db:"file_present"`

	// Import linkage. The link is polymorphic: ImportedTable names the
	// table the rows landed in, so the ledger assumes no single import
	// target schema.
	Imported       bool       `db:"imported"`
	ImportedAt     *time.Time `db:"imported_at"`
	ImportedFileID *int64     `db:"imported_file_id"`
	ImportedTable  *string    `db:"imported_table"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// NewDownloadRecord creates a pending record for a scheduled fetch.
func NewDownloadRecord(downloadType, filename string, period Period, scheme Scheme) *DownloadRecord {
	now := time.Now().UTC()
	return &DownloadRecord{
		DownloadType: downloadType,
		Filename:     filename,
		Scheme:       string(scheme),
		FiscalYear:   period.Year,
		FiscalMonth:  period.Month,
		Params:       JSONMap{},
		Status:       DownloadStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// JSONMap is an opaque key-value bag persisted as JSONB.
type JSONMap map[string]interface{}

// Value implements driver.Valuer.
func (m JSONMap) Value() (interface{}, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = JSONMap{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", src)
	}
}
