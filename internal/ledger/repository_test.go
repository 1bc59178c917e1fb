package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimsync/internal/database/databasetest"
	"claimsync/internal/domain"
	"claimsync/internal/entity"
	"claimsync/internal/observability/mocks"
)

func newTestRepository(db *databasetest.RecordingDB) *Repository {
	return NewRepository(db, mocks.NopLogger{}, mocks.NopMetrics{})
}

func TestRepositoryExists(t *testing.T) {
	ctx := context.Background()

	t.Run("absent record reports false", func(t *testing.T) {
		db := &databasetest.RecordingDB{}
		ok, err := newTestRepository(db).Exists(ctx, "settlement", "a.xlsx")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("present record reports true", func(t *testing.T) {
		db := &databasetest.RecordingDB{
			GetFunc: func(dest interface{}, query string, args ...interface{}) error {
				*(dest.(*int)) = 1
				return nil
			},
		}
		ok, err := newTestRepository(db).Exists(ctx, "settlement", "a.xlsx")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestRepositoryGet(t *testing.T) {
	ctx := context.Background()

	t.Run("absent record is nil, not an error", func(t *testing.T) {
		db := &databasetest.RecordingDB{}
		rec, err := newTestRepository(db).Get(ctx, "settlement", "a.xlsx")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("found record is returned", func(t *testing.T) {
		db := &databasetest.RecordingDB{
			GetFunc: func(dest interface{}, query string, args ...interface{}) error {
				rec := dest.(*entity.DownloadRecord)
				rec.ID = 42
				rec.Filename = "a.xlsx"
				rec.Status = entity.DownloadStatusFailed
				rec.RetryCount = 2
				return nil
			},
		}
		rec, err := newTestRepository(db).Get(ctx, "settlement", "a.xlsx")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, int64(42), rec.ID)
		assert.Equal(t, entity.DownloadStatusFailed, rec.Status)
	})
}

func TestRepositoryRecordDownload(t *testing.T) {
	ctx := context.Background()

	t.Run("statement upserts on the dedup key", func(t *testing.T) {
		var captured string
		db := &databasetest.RecordingDB{
			GetFunc: func(dest interface{}, query string, args ...interface{}) error {
				captured = query
				*(dest.(*int64)) = 9
				return nil
			},
		}

		rec := entity.NewDownloadRecord("settlement", "eRep_OPD_UCS_256810.xlsx",
			entity.Period{Year: 2568, Month: 10}, entity.SchemeUCS)
		id, err := newTestRepository(db).RecordDownload(ctx, rec)
		require.NoError(t, err)

		assert.Equal(t, int64(9), id)
		assert.Equal(t, int64(9), rec.ID)
		assert.Contains(t, captured, "INSERT INTO download_history")
		assert.Contains(t, captured, "ON CONFLICT (download_type, filename) DO UPDATE SET")
		assert.Contains(t, captured, "RETURNING id")
	})
}

func TestRepositoryFinishImport(t *testing.T) {
	ctx := context.Background()

	completedFile := func() *entity.ImportedFile {
		f := entity.NewImportedFile("a.xlsx", "OPD", entity.Period{Year: 2568, Month: 10})
		f.ID = 5
		f.TotalRows = 3
		f.SuccessRows = 3
		f.Finalize()
		return f
	}

	t.Run("vanished row is a consistency error", func(t *testing.T) {
		db := &databasetest.RecordingDB{
			ExecFunc: func(query string, args ...interface{}) (sql.Result, error) {
				return databasetest.Result{Rows: 0}, nil
			},
		}
		err := newTestRepository(db).FinishImport(ctx, completedFile())
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindConsistency))
	})

	t.Run("completed status demotes the prior completed row first", func(t *testing.T) {
		db := &databasetest.RecordingDB{}
		err := newTestRepository(db).FinishImport(ctx, completedFile())
		require.NoError(t, err)

		require.Len(t, db.Executed, 2)
		demote := db.Executed[0]
		assert.Contains(t, demote.Query, "UPDATE imported_files")
		assert.Contains(t, demote.Query, "id <>")
		assert.Contains(t, demote.Args, entity.ImportStatusSuperseded)
		assert.Contains(t, demote.Args, "a.xlsx")
		assert.Contains(t, db.Executed[1].Query, "finished_at")
	})

	t.Run("failed status leaves prior completed rows alone", func(t *testing.T) {
		db := &databasetest.RecordingDB{}
		f := entity.NewImportedFile("a.xlsx", "OPD", entity.Period{Year: 2568, Month: 10})
		f.ID = 5
		f.TotalRows = 3
		f.FailedRows = 3
		f.Finalize()

		err := newTestRepository(db).FinishImport(ctx, f)
		require.NoError(t, err)

		require.Len(t, db.Executed, 1)
		assert.Contains(t, db.Executed[0].Query, "finished_at")
	})

	t.Run("unique violation surfaces as a typed conflict", func(t *testing.T) {
		db := &databasetest.RecordingDB{
			ExecFunc: func(query string, args ...interface{}) (sql.Result, error) {
				if strings.Contains(query, "finished_at") {
					return nil, &pq.Error{Code: "23505", Constraint: "uq_imported_files_completed"}
				}
				return databasetest.Result{Rows: 1}, nil
			},
		}
		err := newTestRepository(db).FinishImport(ctx, completedFile())
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindConflict))
	})
}

func TestRepositoryMarkImported(t *testing.T) {
	ctx := context.Background()

	t.Run("missing download record is a consistency error", func(t *testing.T) {
		db := &databasetest.RecordingDB{
			ExecFunc: func(query string, args ...interface{}) (sql.Result, error) {
				return databasetest.Result{Rows: 0}, nil
			},
		}
		err := newTestRepository(db).MarkImported(ctx, "settlement", "ghost.xlsx", 3, "claims_opd")
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindConsistency))
	})

	t.Run("link fields are written", func(t *testing.T) {
		db := &databasetest.RecordingDB{}
		err := newTestRepository(db).MarkImported(ctx, "settlement", "a.xlsx", 3, "claims_opd")
		require.NoError(t, err)

		require.Len(t, db.Executed, 1)
		assert.Contains(t, db.Executed[0].Query, "UPDATE download_history")
		assert.Contains(t, db.Executed[0].Query, "imported_file_id")
		assert.Contains(t, db.Executed[0].Query, "imported_table")
	})
}

func TestRepositorySweepMissingFiles(t *testing.T) {
	ctx := context.Background()

	t.Run("clears file_present for vanished artifacts only", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "present.xlsx"), []byte("x"), 0o644))

		db := &databasetest.RecordingDB{
			SelectFunc: func(dest interface{}, query string, args ...interface{}) error {
				*(dest.(*[]string)) = []string{"present.xlsx", "vanished.xlsx"}
				return nil
			},
		}

		cleared, err := newTestRepository(db).SweepMissingFiles(ctx, "settlement", dir)
		require.NoError(t, err)
		assert.Equal(t, 1, cleared)

		require.Len(t, db.Executed, 1)
		assert.Contains(t, db.Executed[0].Query, "file_present")
		assert.Contains(t, db.Executed[0].Args, "vanished.xlsx")
		assert.NotContains(t, db.Executed[0].Args, "present.xlsx")
	})
}
