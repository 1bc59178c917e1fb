// Package mocks provides a testify mock of the Ledger contract.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"claimsync/internal/entity"
	"claimsync/internal/ledger"
)

// MockLedger is a testify mock of ledger.Ledger.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Exists(ctx context.Context, downloadType, filename string) (bool, error) {
	args := m.Called(ctx, downloadType, filename)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) Get(ctx context.Context, downloadType, filename string) (*entity.DownloadRecord, error) {
	args := m.Called(ctx, downloadType, filename)
	if rec, ok := args.Get(0).(*entity.DownloadRecord); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedger) RecordDownload(ctx context.Context, rec *entity.DownloadRecord) (int64, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) BeginImport(ctx context.Context, f *entity.ImportedFile) (int64, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) FinishImport(ctx context.Context, f *entity.ImportedFile) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *MockLedger) MarkImported(ctx context.Context, downloadType, filename string, importedFileID int64, table string) error {
	args := m.Called(ctx, downloadType, filename, importedFileID, table)
	return args.Error(0)
}

func (m *MockLedger) ListUnimported(ctx context.Context, downloadType string, limit int) ([]*entity.DownloadRecord, error) {
	args := m.Called(ctx, downloadType, limit)
	if recs, ok := args.Get(0).([]*entity.DownloadRecord); ok {
		return recs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedger) Statistics(ctx context.Context, filter ledger.StatFilter) (*ledger.Stats, error) {
	args := m.Called(ctx, filter)
	if stats, ok := args.Get(0).(*ledger.Stats); ok {
		return stats, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedger) SweepMissingFiles(ctx context.Context, downloadType, dir string) (int, error) {
	args := m.Called(ctx, downloadType, dir)
	return args.Int(0), args.Error(1)
}
