// Package types defines the observability contracts shared by every
// claimsync component. Components depend on these interfaces only; concrete
// sinks (JSON stdout for Loki ingestion, Prometheus collectors) live in
// sibling packages and are wired by the provider.
package types

import (
	"context"
	"io"
)

// Fields represents structured logging fields as key-value pairs.
// Values must be JSON-serializable. Common fields include "job_id",
// "filename", "scheme", "period" and "error_type".
type Fields map[string]interface{}

// Logger is the structured logging contract. Implementations emit one JSON
// line per entry so the external log collaborator can ship them to Loki
// without reparsing. All methods are context-aware for correlation.
type Logger interface {
	// Debug logs detailed troubleshooting information, normally filtered
	// out in production.
	Debug(ctx context.Context, msg string, fields Fields)

	// Info logs general operational events that require no action.
	Info(ctx context.Context, msg string, fields Fields)

	// Warn logs potentially harmful situations that do not stop the
	// current operation (for example a row-level import warning).
	Warn(ctx context.Context, msg string, fields Fields)

	// Error logs a failure together with the causing error.
	Error(ctx context.Context, msg string, err error, fields Fields)

	// WithFields returns a Logger that includes the given fields in every
	// subsequent entry. Used to scope a logger to a job or artifact.
	WithFields(fields Fields) Logger
}

// Metrics is the metrics collection contract. Implementations expose
// Prometheus-compatible series; names follow Prometheus conventions with
// the service name as prefix.
type Metrics interface {
	// RecordSuccess increments the success counter for an operation type
	// such as "download", "discover" or "load".
	RecordSuccess(operationType string)

	// RecordError increments the error counter for an operation and a
	// coarse error category ("timeout", "auth", "schema_mismatch", ...).
	RecordError(operationType string, errorType string)

	// RecordDuration records an operation duration in seconds.
	RecordDuration(operation string, duration float64)

	// RecordFileSize records the size in bytes of a handled artifact,
	// labelled by file type.
	RecordFileSize(fileType string, bytes int64)

	// StartOperation increments the in-progress gauge for an operation.
	// Pair with EndOperation, usually via defer.
	StartOperation(operation string)

	// EndOperation decrements the in-progress gauge for an operation.
	EndOperation(operation string)
}

// Config holds the provider-level observability configuration.
type Config struct {
	// ServiceName identifies this service in logs and metric prefixes.
	ServiceName string

	// Environment is the deployment environment ("local", "staging",
	// "production").
	Environment string

	// LogLevel is the minimum level emitted: "debug", "info", "warn",
	// "error".
	LogLevel string

	// LogOutput is where log lines are written. Defaults to os.Stdout.
	LogOutput io.Writer

	// AdditionalFields are included in every log entry from every
	// component logger (version, host role, ...).
	AdditionalFields Fields
}

// Provider hands out component-scoped Logger and Metrics instances.
// Repeated calls for the same component return the same instance.
type Provider interface {
	Logger(component string) Logger
	Metrics(component string) Metrics

	// Close flushes and releases sink resources at shutdown.
	Close() error
}
