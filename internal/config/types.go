package config

import "time"

// Config holds all resolved claimsync configuration. The core never reads
// raw settings files; everything arrives through the environment (optionally
// seeded from .env files in local development).
type Config struct {
	// Core settings
	Environment string
	ServiceName string
	LogLevel    string
	Version     string

	Database   DatabaseConfig
	Portal     PortalConfig
	Fetch      FetchConfig
	Download   DownloadConfig
	Supervisor SupervisorConfig
	HTTP       HTTPConfig
	Archive    ArchiveConfig
	Queue      QueueConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// PortalConfig holds settings for the external claims portal. Credentials
// are resolved by the configuration collaborator and injected here.
type PortalConfig struct {
	BaseURL   string
	LoginPath string
	ListPath  string
	Username  string
	Password  string
	Timeout   time.Duration
	UserAgent string
}

// FetchConfig bounds artifact retrieval retries.
type FetchConfig struct {
	Timeout           time.Duration
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DownloadConfig locates the shared artifact directory. Each download type
// gets its own subdirectory beneath Dir.
type DownloadConfig struct {
	Dir string
}

// SupervisorConfig bounds worker supervision.
type SupervisorConfig struct {
	// PollInterval is how often worker liveness is checked.
	PollInterval time.Duration
	// WorkerBudget is the wall-clock limit per worker before it is
	// force-terminated and the job marked failed with a timeout error.
	WorkerBudget time.Duration
	// WorkerBinary is the path of the worker executable. Empty means
	// "the cmd/worker binary next to the supervisor binary".
	WorkerBinary string
}

// HTTPConfig holds the supervisor's API listener settings.
type HTTPConfig struct {
	Addr    string
	Timeout time.Duration
}

// ArchiveConfig selects where completed artifacts are mirrored.
type ArchiveConfig struct {
	// Adapter is "filesystem" or "s3". Empty disables archiving.
	Adapter      string
	BucketOrPath string
	S3           S3Config
}

// S3Config holds S3 (or S3-compatible) settings for the archive adapter.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// QueueConfig holds the scheduler-trigger queue settings.
type QueueConfig struct {
	// Enabled turns the RabbitMQ trigger consumer on.
	Enabled bool
	URL     string
	Queue   string
}
