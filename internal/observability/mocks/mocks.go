// Package mocks provides testify mocks for the observability ports, plus a
// no-op pair for tests that do not assert on logging.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"claimsync/internal/observability/types"
)

// MockLogger is a testify mock of the Logger port.
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(ctx context.Context, msg string, fields types.Fields) {
	m.Called(ctx, msg, fields)
}

func (m *MockLogger) Info(ctx context.Context, msg string, fields types.Fields) {
	m.Called(ctx, msg, fields)
}

func (m *MockLogger) Warn(ctx context.Context, msg string, fields types.Fields) {
	m.Called(ctx, msg, fields)
}

func (m *MockLogger) Error(ctx context.Context, msg string, err error, fields types.Fields) {
	m.Called(ctx, msg, err, fields)
}

func (m *MockLogger) WithFields(fields types.Fields) types.Logger {
	args := m.Called(fields)
	if l, ok := args.Get(0).(types.Logger); ok {
		return l
	}
	return m
}

// MockMetrics is a testify mock of the Metrics port.
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordSuccess(operationType string) {
	m.Called(operationType)
}

func (m *MockMetrics) RecordError(operationType string, errorType string) {
	m.Called(operationType, errorType)
}

func (m *MockMetrics) RecordDuration(operation string, duration float64) {
	m.Called(operation, duration)
}

func (m *MockMetrics) RecordFileSize(fileType string, bytes int64) {
	m.Called(fileType, bytes)
}

func (m *MockMetrics) StartOperation(operation string) {
	m.Called(operation)
}

func (m *MockMetrics) EndOperation(operation string) {
	m.Called(operation)
}

// NopLogger discards everything. Useful where log assertions would only add
// noise to a test.
type NopLogger struct{}

func (NopLogger) Debug(context.Context, string, types.Fields)        {}
func (NopLogger) Info(context.Context, string, types.Fields)         {}
func (NopLogger) Warn(context.Context, string, types.Fields)         {}
func (NopLogger) Error(context.Context, string, error, types.Fields) {}
func (n NopLogger) WithFields(types.Fields) types.Logger             { return n }

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordSuccess(string)          {}
func (NopMetrics) RecordError(string, string)    {}
func (NopMetrics) RecordDuration(string, float64) {}
func (NopMetrics) RecordFileSize(string, int64)  {}
func (NopMetrics) StartOperation(string)         {}
func (NopMetrics) EndOperation(string)           {}
