package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType distinguishes download jobs from import jobs.
type JobType string

const (
	JobTypeDownload JobType = "download"
	JobTypeImport   JobType = "import"
)

// JobSubtype describes how the job was shaped.
type JobSubtype string

const (
	JobSubtypeSingle    JobSubtype = "single"
	JobSubtypeBulk      JobSubtype = "bulk"
	JobSubtypeScheduled JobSubtype = "scheduled"
)

// JobStatus is the lifecycle state of a Job. Terminal states are final;
// the supervisor never moves a job out of them.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// TriggerSource records what asked for the job.
type TriggerSource string

const (
	TriggerManual   TriggerSource = "manual"
	TriggerSchedule TriggerSource = "schedule"
	TriggerAPI      TriggerSource = "api"
)

// Job is one row of job_history: a single orchestration attempt,
// independent of which artifacts it touches.
type Job struct {
	ID            string        `db:"id"`
	JobType       JobType       `db:"job_type"`
	Subtype       JobSubtype    `db:"subtype"`
	ScopeKey      string        `db:"scope_key"`
	Status        JobStatus     `db:"status"`
	PID           int           `db:"pid"`
	TriggerSource TriggerSource `db:"trigger_source"`
	Params        JSONMap       `db:"params"`
	Result        JSONMap       `db:"result"`
	ErrorMessage  *string       `db:"error_message"`
	StartedAt     time.Time     `db:"started_at"`
	FinishedAt    *time.Time    `db:"finished_at"`
	DurationMS    int64         `db:"duration_ms"`
}

// NewJobID builds a time-based unique job identifier:
// <type>-<timestamp>-<uuid fragment>. The timestamp prefix keeps ids
// sortable in listings.
func NewJobID(jobType JobType) string {
	return fmt.Sprintf("%s-%s-%s",
		jobType,
		time.Now().UTC().Format("20060102-150405"),
		uuid.NewString()[:8],
	)
}

// NewJob creates a running job at launch time.
func NewJob(jobType JobType, subtype JobSubtype, scopeKey string, source TriggerSource, params JSONMap) *Job {
	if params == nil {
		params = JSONMap{}
	}
	return &Job{
		ID:            NewJobID(jobType),
		JobType:       jobType,
		Subtype:       subtype,
		ScopeKey:      scopeKey,
		Status:        JobStatusRunning,
		TriggerSource: source,
		Params:        params,
		Result:        JSONMap{},
		StartedAt:     time.Now().UTC(),
	}
}
