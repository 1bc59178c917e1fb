// Package fetch streams portal artifacts to disk. Bytes go to a temp path
// first and are renamed into place only after the stream completes and the
// integrity check passes, so a partial download is never visible under the
// final filename.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"claimsync/internal/config"
	"claimsync/internal/domain"
	"claimsync/internal/observability"
	obslog "claimsync/internal/observability/logger"
	"claimsync/internal/portal"
)

// Result describes a completed fetch.
type Result struct {
	Path     string
	Size     int64
	Checksum string
	Attempts int
}

// Fetcher retrieves single artifacts with bounded retries and exponential
// backoff. Transient failures (transport errors, 5xx) are retried;
// 4xx fails immediately.
type Fetcher struct {
	cfg     config.FetchConfig
	logger  observability.Logger
	metrics observability.Metrics
}

// New creates a Fetcher.
func New(cfg config.FetchConfig, logger observability.Logger, metrics observability.Metrics) *Fetcher {
	return &Fetcher{cfg: cfg, logger: logger, metrics: metrics}
}

// Fetch downloads link into destDir under its exact source-assigned
// filename. The content hash is recorded for dedup-by-content alongside the
// authoritative dedup-by-filename.
func (f *Fetcher) Fetch(ctx context.Context, session *portal.Session, link portal.ArtifactLink, destDir string) (*Result, error) {
	ctx = obslog.WithArtifact(ctx, link.Filename)
	f.metrics.StartOperation("fetch")
	defer f.metrics.EndOperation("fetch")
	start := time.Now()
	defer func() {
		f.metrics.RecordDuration("fetch", time.Since(start).Seconds())
	}()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}

	var lastErr error
	backoff := f.cfg.InitialBackoff

	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			f.logger.Warn(ctx, "retrying fetch", observability.Fields{
				"filename": link.Filename,
				"attempt":  attempt,
				"backoff":  backoff.String(),
			})
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff = time.Duration(float64(backoff) * f.cfg.BackoffMultiplier)
			if backoff > f.cfg.MaxBackoff {
				backoff = f.cfg.MaxBackoff
			}
		}

		result, err := f.attempt(ctx, session, link, destDir)
		if err == nil {
			result.Attempts = attempt + 1
			f.metrics.RecordSuccess("fetch")
			f.metrics.RecordFileSize(fileType(link.Filename), result.Size)
			f.logger.Info(ctx, "artifact fetched", observability.Fields{
				"filename": link.Filename,
				"size":     result.Size,
				"checksum": result.Checksum,
				"attempts": result.Attempts,
			})
			return result, nil
		}

		lastErr = err
		if !domain.IsRetryable(err) {
			f.metrics.RecordError("fetch", string(domain.KindOf(err)))
			return nil, err
		}
		f.metrics.RecordError("fetch", "network")
	}

	return nil, domain.E(domain.KindFetch, "fetch.Fetch",
		fmt.Sprintf("giving up on %s after %d attempts", link.Filename, f.cfg.MaxRetries+1), lastErr)
}

// attempt performs one streaming download round trip.
func (f *Fetcher) attempt(ctx context.Context, session *portal.Session, link portal.ArtifactLink, destDir string) (*Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	var req *http.Request
	var err error
	if len(link.Params) > 0 {
		req, err = http.NewRequestWithContext(reqCtx, http.MethodPost, link.URL, strings.NewReader(link.Params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(reqCtx, http.MethodGet, link.URL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}

	resp, err := session.Do(req)
	if err != nil {
		return nil, domain.E(domain.KindNetwork, "fetch.attempt", "download request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, domain.E(domain.KindNetwork, "fetch.attempt",
			fmt.Sprintf("portal returned status %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return nil, domain.E(domain.KindFetch, "fetch.attempt",
			fmt.Sprintf("portal returned status %d", resp.StatusCode), nil)
	}

	finalPath := filepath.Join(destDir, link.Filename)
	tmpPath := filepath.Join(destDir, fmt.Sprintf(".%s.part-%s", link.Filename, uuid.NewString()[:8]))

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	// The temp file is removed on every failure path; only the final
	// rename makes the artifact visible.
	defer os.Remove(tmpPath)
	defer tmp.Close()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	if err != nil {
		return nil, domain.E(domain.KindNetwork, "fetch.attempt", "streaming artifact body", err)
	}

	if resp.ContentLength >= 0 && size != resp.ContentLength {
		return nil, domain.E(domain.KindNetwork, "fetch.attempt",
			fmt.Sprintf("short read: got %d of %d bytes", size, resp.ContentLength), nil)
	}
	if size == 0 {
		return nil, domain.E(domain.KindFetch, "fetch.attempt", "portal served an empty artifact", nil)
	}

	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return nil, fmt.Errorf("rename into place: %w", err)
	}

	return &Result{
		Path:     finalPath,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func fileType(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return "unknown"
	}
	return ext
}
