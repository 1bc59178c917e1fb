// Package runner composes the worker-side pipeline: authenticated
// discovery and fetch for download jobs, parse and load for import jobs.
// Dependencies enter through narrow ports so tests can substitute mocks.
package runner

import (
	"context"

	"claimsync/internal/entity"
	"claimsync/internal/fetch"
	"claimsync/internal/loader"
	"claimsync/internal/portal"
	"claimsync/internal/spreadsheet"
)

// PortalClient is the authenticated portal protocol.
type PortalClient interface {
	Authenticate(ctx context.Context, creds portal.Credentials) (*portal.Session, error)
	Discover(ctx context.Context, session *portal.Session, period entity.Period, scheme entity.Scheme) ([]portal.ArtifactLink, error)
}

// Fetcher streams one artifact to disk.
type Fetcher interface {
	Fetch(ctx context.Context, session *portal.Session, link portal.ArtifactLink, destDir string) (*fetch.Result, error)
}

// Parser classifies and extracts a settlement spreadsheet.
type Parser interface {
	Parse(ctx context.Context, path string) (*spreadsheet.Document, error)
}

// RowLoader upserts parsed rows into the claim tables.
type RowLoader interface {
	Load(ctx context.Context, doc *spreadsheet.Document, importedFileID int64) (*loader.Result, error)
}

// Archiver mirrors a completed artifact to the configured archive target.
// May be nil when archiving is disabled.
type Archiver interface {
	Archive(ctx context.Context, localPath, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
