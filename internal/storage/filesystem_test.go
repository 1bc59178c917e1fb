package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimsync/internal/config"
	"claimsync/internal/observability/mocks"
)

func newTestFilesystem(t *testing.T) (*Filesystem, string) {
	t.Helper()
	base := t.TempDir()
	fs, err := newFilesystem(base, mocks.NopLogger{}, mocks.NopMetrics{})
	require.NoError(t, err)
	return fs, base
}

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eRep_OPD_UCS_256810.xlsx")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFilesystemArchive(t *testing.T) {
	ctx := context.Background()

	t.Run("copies the artifact under the key", func(t *testing.T) {
		fs, base := newTestFilesystem(t)
		src := writeArtifact(t, "workbook bytes")

		require.NoError(t, fs.Archive(ctx, src, "settlement/eRep_OPD_UCS_256810.xlsx"))

		got, err := os.ReadFile(filepath.Join(base, "settlement", "eRep_OPD_UCS_256810.xlsx"))
		require.NoError(t, err)
		assert.Equal(t, "workbook bytes", string(got))

		// No temp file left behind.
		entries, err := os.ReadDir(filepath.Join(base, "settlement"))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("re-archiving replaces the previous object", func(t *testing.T) {
		fs, base := newTestFilesystem(t)

		first := writeArtifact(t, "first")
		require.NoError(t, fs.Archive(ctx, first, "settlement/f.xlsx"))
		second := writeArtifact(t, "second version")
		require.NoError(t, fs.Archive(ctx, second, "settlement/f.xlsx"))

		got, err := os.ReadFile(filepath.Join(base, "settlement", "f.xlsx"))
		require.NoError(t, err)
		assert.Equal(t, "second version", string(got))
	})

	t.Run("missing source artifact", func(t *testing.T) {
		fs, _ := newTestFilesystem(t)
		err := fs.Archive(ctx, "/nonexistent/file.xlsx", "settlement/f.xlsx")
		assert.Error(t, err)
	})

	t.Run("leading slash and traversal are contained", func(t *testing.T) {
		fs, base := newTestFilesystem(t)
		src := writeArtifact(t, "data")

		require.NoError(t, fs.Archive(ctx, src, "/settlement/../f.xlsx"))

		_, err := os.Stat(filepath.Join(base, "f.xlsx"))
		assert.NoError(t, err)
	})
}

func TestFilesystemExists(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestFilesystem(t)

	ok, err := fs.Exists(ctx, "settlement/f.xlsx")
	require.NoError(t, err)
	assert.False(t, ok)

	src := writeArtifact(t, "data")
	require.NoError(t, fs.Archive(ctx, src, "settlement/f.xlsx"))

	ok, err = fs.Exists(ctx, "settlement/f.xlsx")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew(t *testing.T) {
	t.Run("empty adapter disables archiving", func(t *testing.T) {
		archiver, err := New(config.ArchiveConfig{}, mocks.NopLogger{}, mocks.NopMetrics{})
		require.NoError(t, err)
		assert.Nil(t, archiver)
	})

	t.Run("filesystem adapter", func(t *testing.T) {
		cfg := config.ArchiveConfig{Adapter: "filesystem", BucketOrPath: t.TempDir()}
		archiver, err := New(cfg, mocks.NopLogger{}, mocks.NopMetrics{})
		require.NoError(t, err)
		assert.IsType(t, &Filesystem{}, archiver)
	})

	t.Run("unknown adapter", func(t *testing.T) {
		_, err := New(config.ArchiveConfig{Adapter: "ftp"}, mocks.NopLogger{}, mocks.NopMetrics{})
		assert.Error(t, err)
	})
}
