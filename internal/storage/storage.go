// Package storage mirrors completed artifacts to an archive target. The
// local download directory stays the working copy; the archive is the
// durable one, on the local filesystem or in an S3-compatible bucket.
package storage

import (
	"context"
	"fmt"

	"claimsync/internal/config"
	"claimsync/internal/observability"
)

// Archiver replicates one artifact under a key. Keys use forward slashes
// regardless of adapter.
type Archiver interface {
	// Archive copies the file at localPath to the archive under key,
	// replacing any previous object.
	Archive(ctx context.Context, localPath, key string) error

	// Exists reports whether the archive already holds key.
	Exists(ctx context.Context, key string) (bool, error)
}

// New creates the configured archive adapter. Returns nil when archiving
// is disabled; callers treat a nil Archiver as "no archive".
func New(cfg config.ArchiveConfig, logger observability.Logger, metrics observability.Metrics) (Archiver, error) {
	switch cfg.Adapter {
	case "":
		return nil, nil
	case "filesystem":
		logger.Info(context.Background(), "using filesystem archive", observability.Fields{
			"path": cfg.BucketOrPath,
		})
		return newFilesystem(cfg.BucketOrPath, logger, metrics)
	case "s3":
		logger.Info(context.Background(), "using s3 archive", observability.Fields{
			"bucket": cfg.BucketOrPath,
			"region": cfg.S3.Region,
		})
		return newS3(cfg, logger, metrics)
	default:
		return nil, fmt.Errorf("unsupported archive adapter: %s", cfg.Adapter)
	}
}
