package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg, _ := parse()
	cfg.Portal.BaseURL = "https://eclaim.example.go.th"
	cfg.Portal.Username = "hospital9"
	cfg.Portal.Password = "secret"
	return cfg
}

func TestParseDefaults(t *testing.T) {
	cfg, err := parse()
	require.NoError(t, err)

	assert.Equal(t, "claimsync", cfg.ServiceName)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, 2.0, cfg.Fetch.BackoffMultiplier)
	assert.Equal(t, 30*time.Minute, cfg.Supervisor.WorkerBudget)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.False(t, cfg.Queue.Enabled)
	assert.Empty(t, cfg.Archive.Adapter)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("DB_PORT", "5433")
	t.Setenv("FETCH_MAX_RETRIES", "5")
	t.Setenv("SUPERVISOR_WORKER_BUDGET", "1h")
	t.Setenv("ARCHIVE_ADAPTER", "s3")
	t.Setenv("QUEUE_ENABLED", "true")

	cfg, err := parse()
	require.NoError(t, err)

	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, 5, cfg.Fetch.MaxRetries)
	assert.Equal(t, time.Hour, cfg.Supervisor.WorkerBudget)
	assert.Equal(t, "s3", cfg.Archive.Adapter)
	assert.True(t, cfg.Queue.Enabled)
}

func TestValidate(t *testing.T) {
	t.Run("complete configuration passes", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing portal credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.Portal.Password = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PORTAL_USERNAME and PORTAL_PASSWORD")
	})

	t.Run("all problems reported at once", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Host = ""
		cfg.Portal.BaseURL = ""
		cfg.Download.Dir = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DB_HOST")
		assert.Contains(t, err.Error(), "PORTAL_BASE_URL")
		assert.Contains(t, err.Error(), "DOWNLOAD_DIR")
	})

	t.Run("unknown archive adapter", func(t *testing.T) {
		cfg := validConfig()
		cfg.Archive.Adapter = "ftp"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ARCHIVE_ADAPTER")
	})

	t.Run("s3 adapter requires a bucket", func(t *testing.T) {
		cfg := validConfig()
		cfg.Archive.Adapter = "s3"
		cfg.Archive.BucketOrPath = ""
		assert.Error(t, cfg.Validate())

		cfg.Archive.BucketOrPath = "claimsync-archive"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("queue url required when enabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Queue.Enabled = true
		cfg.Queue.URL = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RABBITMQ_URL")
	})
}
