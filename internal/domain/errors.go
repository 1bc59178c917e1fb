// Package domain holds the typed error model shared by the pipeline.
// Every failure crossing a component boundary carries a Kind so callers can
// decide between retrying, skipping and aborting without string matching.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindAuth: portal rejected the credentials or returned the login page
	// again. Fatal for the current job, never retried automatically.
	KindAuth Kind = "auth"

	// KindDiscovery: the listing markup could not be interpreted. Fatal
	// for the current artifact set; surfaced, never treated as an empty
	// period.
	KindDiscovery Kind = "discovery"

	// KindSchemaMismatch: a spreadsheet's headers or mandatory columns do
	// not match the expected vocabulary. Fatal for that file.
	KindSchemaMismatch Kind = "schema_mismatch"

	// KindNetwork: transient transport failure (reset, timeout, 5xx).
	// Retried up to the configured bound.
	KindNetwork Kind = "network"

	// KindFetch: artifact retrieval failed for a non-transient reason
	// (404, 401, integrity check).
	KindFetch Kind = "fetch"

	// KindConflict: another job already owns the scope. Rejected
	// immediately; the caller may retry later.
	KindConflict Kind = "conflict"

	// KindConsistency: a ledger write would violate an invariant. Always
	// fatal; indicates a bug or storage corruption.
	KindConsistency Kind = "consistency"

	// KindParse: the file could not be read as a spreadsheet at all
	// (corrupt or unsupported format).
	KindParse Kind = "parse"
)

// Error is the typed error carried across component boundaries.
type Error struct {
	Kind      Kind
	Op        string
	Message   string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs an Error. Retryability follows the kind unless overridden
// with Retryable.
func E(kind Kind, op, message string, err error) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		Message:   message,
		Err:       err,
		Retryable: kind == KindNetwork,
	}
}

// Retryable marks the error as retryable regardless of kind.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// KindOf extracts the Kind from err, unwrapping as needed. Untyped errors
// report an empty Kind.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether err may be retried. Untyped errors are
// conservatively non-retryable.
func IsRetryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}
