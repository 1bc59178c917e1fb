package config

import (
	"fmt"
	"strings"
)

// Validate checks that the configuration is internally consistent and that
// required values are present. Returns a single error listing every
// problem so operators fix them in one pass.
func (c *Config) Validate() error {
	var problems []string

	if c.Database.Host == "" {
		problems = append(problems, "DB_HOST is required")
	}
	if c.Database.Database == "" {
		problems = append(problems, "DB_NAME is required")
	}

	if c.Portal.BaseURL == "" {
		problems = append(problems, "PORTAL_BASE_URL is required")
	}
	if c.Portal.Username == "" || c.Portal.Password == "" {
		problems = append(problems, "PORTAL_USERNAME and PORTAL_PASSWORD are required")
	}

	if c.Fetch.MaxRetries < 0 {
		problems = append(problems, "FETCH_MAX_RETRIES must not be negative")
	}
	if c.Fetch.BackoffMultiplier < 1 {
		problems = append(problems, "FETCH_BACKOFF_MULTIPLIER must be >= 1")
	}

	if c.Download.Dir == "" {
		problems = append(problems, "DOWNLOAD_DIR is required")
	}

	if c.Supervisor.PollInterval <= 0 {
		problems = append(problems, "SUPERVISOR_POLL_INTERVAL must be positive")
	}
	if c.Supervisor.WorkerBudget <= 0 {
		problems = append(problems, "SUPERVISOR_WORKER_BUDGET must be positive")
	}

	switch c.Archive.Adapter {
	case "", "filesystem":
	case "s3":
		if c.Archive.BucketOrPath == "" {
			problems = append(problems, "ARCHIVE_BUCKET_OR_PATH is required for the s3 adapter")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown ARCHIVE_ADAPTER %q", c.Archive.Adapter))
	}

	if c.Queue.Enabled && c.Queue.URL == "" {
		problems = append(problems, "RABBITMQ_URL is required when QUEUE_ENABLED is set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
