// Package trigger accepts job requests from the outside world, over HTTP
// and over RabbitMQ, validates them and hands them to the supervisor. It
// never executes pipeline work itself.
package trigger

import (
	"context"
	"fmt"
	"strings"

	"claimsync/internal/entity"
	"claimsync/internal/ledger"
)

// Launcher is the supervisor surface the trigger adapters drive.
type Launcher interface {
	Launch(ctx context.Context, jobType entity.JobType, subtype entity.JobSubtype,
		scopeKey string, source entity.TriggerSource, params entity.JSONMap) (*entity.Job, error)
	Cancel(ctx context.Context, jobID string) error
	Job(ctx context.Context, jobID string) (*entity.Job, error)
	Jobs(ctx context.Context, jobType entity.JobType, limit int) ([]*entity.Job, error)
}

// StatsReader exposes ledger statistics to the status API.
type StatsReader interface {
	Statistics(ctx context.Context, filter ledger.StatFilter) (*ledger.Stats, error)
}

// Request is the trigger payload shared by the HTTP and queue adapters.
// Year is the Buddhist-era fiscal year exactly as the portal publishes it.
type Request struct {
	JobType      string   `json:"job_type"`
	DownloadType string   `json:"download_type"`
	Year         int      `json:"year"`
	Month        int      `json:"month"`
	Scheme       string   `json:"scheme"`
	// Files restricts an import job to specific artifacts. Empty means
	// "everything downloaded but not yet imported".
	Files []string `json:"files,omitempty"`
}

var validSchemes = map[string]entity.Scheme{
	"UCS": entity.SchemeUCS,
	"OFC": entity.SchemeOFC,
	"SSS": entity.SchemeSSS,
	"LGO": entity.SchemeLGO,
}

// Validate checks the request shape before anything touches the database.
func (r *Request) Validate() error {
	switch entity.JobType(r.JobType) {
	case entity.JobTypeDownload:
		if r.Year == 0 || r.Month < 1 || r.Month > 12 {
			return fmt.Errorf("download job requires year and month 1-12, got %d-%d", r.Year, r.Month)
		}
		if _, ok := validSchemes[strings.ToUpper(r.Scheme)]; !ok {
			return fmt.Errorf("unknown scheme %q", r.Scheme)
		}
	case entity.JobTypeImport:
		// Import scope is the download type; period and scheme are
		// recovered from each spreadsheet.
	default:
		return fmt.Errorf("unknown job_type %q", r.JobType)
	}
	if r.DownloadType == "" {
		return fmt.Errorf("download_type is required")
	}
	return nil
}

// Type returns the parsed job type. Call Validate first.
func (r *Request) Type() entity.JobType {
	return entity.JobType(r.JobType)
}

// Subtype shapes the job from the request: explicit files make a single
// import, everything else is bulk.
func (r *Request) Subtype() entity.JobSubtype {
	if len(r.Files) > 0 {
		return entity.JobSubtypeSingle
	}
	return entity.JobSubtypeBulk
}

// ScopeKey is the concurrency-control key. Download jobs are scoped to
// type x period x scheme; import jobs to the download type, because they
// drain its whole backlog.
func (r *Request) ScopeKey() string {
	if r.Type() == entity.JobTypeDownload {
		period := entity.Period{Year: r.Year, Month: r.Month}
		return entity.ScopeKey(r.DownloadType, period, entity.Scheme(strings.ToUpper(r.Scheme)))
	}
	return r.DownloadType
}

// Params is the bag persisted on the job row; the worker reads its task
// back from here.
func (r *Request) Params() entity.JSONMap {
	params := entity.JSONMap{
		"download_type": r.DownloadType,
	}
	if r.Type() == entity.JobTypeDownload {
		params["year"] = r.Year
		params["month"] = r.Month
		params["scheme"] = strings.ToUpper(r.Scheme)
	}
	if len(r.Files) > 0 {
		files := make([]interface{}, len(r.Files))
		for i, f := range r.Files {
			files[i] = f
		}
		params["files"] = files
	}
	return params
}
