// Package logger provides the JSON structured logger used by all claimsync
// components. Output is one JSON object per line with a consistent field
// layout so the external log collaborator can ship entries to Loki without
// reparsing.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"claimsync/internal/observability/types"
)

// LogLevel represents the severity of a log message. Higher values are more
// severe.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// ParseLevel converts a string level to a LogLevel. Unrecognised values
// default to InfoLevel.
func ParseLevel(level string) LogLevel {
	switch level {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// String returns the serialized form of the level.
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

// ctxKey is the private type for context correlation keys.
type ctxKey string

// Context keys whose values, when present, are copied into every log entry.
const (
	CtxJobID    ctxKey = "job_id"
	CtxArtifact ctxKey = "artifact"
)

// WithJobID returns a context carrying the job identifier for log
// correlation across the worker call tree.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, CtxJobID, jobID)
}

// WithArtifact returns a context carrying the artifact filename currently
// being processed.
func WithArtifact(ctx context.Context, filename string) context.Context {
	return context.WithValue(ctx, CtxArtifact, filename)
}

// JSONLogger implements types.Logger with line-delimited JSON output.
// Entries carry timestamp, level, service, environment, hostname and message
// plus any persistent and call-specific fields. Safe for concurrent use.
type JSONLogger struct {
	mu               sync.RWMutex
	output           io.Writer
	serviceName      string
	environment      string
	hostname         string
	minLevel         LogLevel
	persistentFields types.Fields
}

// New creates a JSONLogger. The hostname is detected once at construction.
// A nil output defaults to os.Stdout.
func New(serviceName, environment, logLevel string, output io.Writer, additionalFields types.Fields) *JSONLogger {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	if output == nil {
		output = os.Stdout
	}

	return &JSONLogger{
		output:           output,
		serviceName:      serviceName,
		environment:      environment,
		hostname:         hostname,
		minLevel:         ParseLevel(logLevel),
		persistentFields: additionalFields,
	}
}

func (l *JSONLogger) Debug(ctx context.Context, msg string, fields types.Fields) {
	if l.minLevel > DebugLevel {
		return
	}
	l.log(ctx, DebugLevel, msg, nil, fields)
}

func (l *JSONLogger) Info(ctx context.Context, msg string, fields types.Fields) {
	if l.minLevel > InfoLevel {
		return
	}
	l.log(ctx, InfoLevel, msg, nil, fields)
}

func (l *JSONLogger) Warn(ctx context.Context, msg string, fields types.Fields) {
	if l.minLevel > WarnLevel {
		return
	}
	l.log(ctx, WarnLevel, msg, nil, fields)
}

func (l *JSONLogger) Error(ctx context.Context, msg string, err error, fields types.Fields) {
	if l.minLevel > ErrorLevel {
		return
	}
	l.log(ctx, ErrorLevel, msg, err, fields)
}

// WithFields returns a logger that includes the given fields in every entry,
// merged over the parent's persistent fields.
func (l *JSONLogger) WithFields(fields types.Fields) types.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	merged := make(types.Fields, len(l.persistentFields)+len(fields))
	for k, v := range l.persistentFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return &JSONLogger{
		output:           l.output,
		serviceName:      l.serviceName,
		environment:      l.environment,
		hostname:         l.hostname,
		minLevel:         l.minLevel,
		persistentFields: merged,
	}
}

func (l *JSONLogger) log(ctx context.Context, level LogLevel, msg string, err error, fields types.Fields) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry := make(types.Fields)

	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["service"] = l.serviceName
	entry["env"] = l.environment
	entry["hostname"] = l.hostname
	entry["message"] = msg

	if jobID, ok := ctx.Value(CtxJobID).(string); ok {
		entry["job_id"] = jobID
	}
	if artifact, ok := ctx.Value(CtxArtifact).(string); ok {
		entry["artifact"] = artifact
	}

	if err != nil {
		entry["error"] = err.Error()
		entry["error_type"] = fmt.Sprintf("%T", err)
	}

	for k, v := range l.persistentFields {
		entry[k] = v
	}
	for k, v := range fields {
		entry[k] = v
	}

	if jsonBytes, marshalErr := json.Marshal(entry); marshalErr == nil {
		l.output.Write(jsonBytes)
		l.output.Write([]byte("\n"))
	}
}
