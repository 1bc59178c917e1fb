package trigger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimsync/internal/config"
	"claimsync/internal/domain"
	"claimsync/internal/entity"
	"claimsync/internal/ledger"
	"claimsync/internal/observability/mocks"
)

// fakeLauncher scripts supervisor responses for handler tests.
type fakeLauncher struct {
	launchErr  error
	launched   *entity.Job
	cancelErr  error
	cancelled  []string
	jobs       map[string]*entity.Job
	listResult []*entity.Job

	gotScopeKey string
	gotParams   entity.JSONMap
}

func (f *fakeLauncher) Launch(_ context.Context, jobType entity.JobType, subtype entity.JobSubtype,
	scopeKey string, source entity.TriggerSource, params entity.JSONMap) (*entity.Job, error) {
	f.gotScopeKey = scopeKey
	f.gotParams = params
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	f.launched = entity.NewJob(jobType, subtype, scopeKey, source, params)
	return f.launched, nil
}

func (f *fakeLauncher) Cancel(_ context.Context, jobID string) error {
	f.cancelled = append(f.cancelled, jobID)
	return f.cancelErr
}

func (f *fakeLauncher) Job(_ context.Context, jobID string) (*entity.Job, error) {
	return f.jobs[jobID], nil
}

func (f *fakeLauncher) Jobs(_ context.Context, _ entity.JobType, _ int) ([]*entity.Job, error) {
	return f.listResult, nil
}

type fakeStats struct {
	gotFilter ledger.StatFilter
	stats     *ledger.Stats
}

func (f *fakeStats) Statistics(_ context.Context, filter ledger.StatFilter) (*ledger.Stats, error) {
	f.gotFilter = filter
	if f.stats != nil {
		return f.stats, nil
	}
	return &ledger.Stats{}, nil
}

func newTestServer(launcher Launcher, stats StatsReader) *Server {
	return NewServer(launcher, stats, config.HTTPConfig{Addr: ":0"},
		mocks.NopLogger{}, mocks.NopMetrics{})
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestLaunchEndpoint(t *testing.T) {
	t.Run("valid request is accepted", func(t *testing.T) {
		launcher := &fakeLauncher{}
		srv := newTestServer(launcher, &fakeStats{})

		payload := `{"job_type":"download","download_type":"settlement","year":2568,"month":10,"scheme":"UCS"}`
		req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(payload))
		rec := httptest.NewRecorder()
		srv.handleJobs(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "settlement|2568-10|UCS", launcher.gotScopeKey)

		body := decodeBody(t, rec)
		assert.Equal(t, launcher.launched.ID, body["id"])
		assert.Equal(t, "running", body["status"])
		assert.NotContains(t, body, "result", "running jobs have no result yet")
	})

	t.Run("malformed JSON", func(t *testing.T) {
		srv := newTestServer(&fakeLauncher{}, &fakeStats{})
		req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader("{nope"))
		rec := httptest.NewRecorder()
		srv.handleJobs(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid request shape", func(t *testing.T) {
		srv := newTestServer(&fakeLauncher{}, &fakeStats{})
		payload := `{"job_type":"download","download_type":"settlement","year":2568,"month":10,"scheme":"BOGUS"}`
		req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(payload))
		rec := httptest.NewRecorder()
		srv.handleJobs(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeBody(t, rec)["error"], "scheme")
	})

	t.Run("scope conflict maps to 409", func(t *testing.T) {
		launcher := &fakeLauncher{
			launchErr: domain.E(domain.KindConflict, "supervisor.Create", "scope busy", nil),
		}
		srv := newTestServer(launcher, &fakeStats{})
		payload := `{"job_type":"import","download_type":"settlement"}`
		req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(payload))
		rec := httptest.NewRecorder()
		srv.handleJobs(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("other launch failures map to 500", func(t *testing.T) {
		launcher := &fakeLauncher{
			launchErr: domain.E(domain.KindConsistency, "supervisor", "db gone", nil),
		}
		srv := newTestServer(launcher, &fakeStats{})
		payload := `{"job_type":"import","download_type":"settlement"}`
		req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(payload))
		rec := httptest.NewRecorder()
		srv.handleJobs(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestJobStatusEndpoint(t *testing.T) {
	t.Run("terminal job exposes its result", func(t *testing.T) {
		job := entity.NewJob(entity.JobTypeDownload, entity.JobSubtypeBulk,
			"settlement|2568-10|UCS", entity.TriggerAPI, nil)
		job.Status = entity.JobStatusCompleted
		job.Result = entity.JSONMap{"downloaded": 4}

		launcher := &fakeLauncher{jobs: map[string]*entity.Job{job.ID: job}}
		srv := newTestServer(launcher, &fakeStats{})

		req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID, nil)
		rec := httptest.NewRecorder()
		srv.handleJobByID(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "completed", body["status"])
		result, ok := body["result"].(map[string]interface{})
		require.True(t, ok)
		assert.EqualValues(t, 4, result["downloaded"])
	})

	t.Run("unknown job is 404", func(t *testing.T) {
		srv := newTestServer(&fakeLauncher{jobs: map[string]*entity.Job{}}, &fakeStats{})
		req := httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil)
		rec := httptest.NewRecorder()
		srv.handleJobByID(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("listing wraps jobs", func(t *testing.T) {
		launcher := &fakeLauncher{listResult: []*entity.Job{
			entity.NewJob(entity.JobTypeDownload, entity.JobSubtypeBulk, "a", entity.TriggerAPI, nil),
			entity.NewJob(entity.JobTypeImport, entity.JobSubtypeBulk, "b", entity.TriggerSchedule, nil),
		}}
		srv := newTestServer(launcher, &fakeStats{})

		req := httptest.NewRequest(http.MethodGet, "/api/jobs?limit=10", nil)
		rec := httptest.NewRecorder()
		srv.handleJobs(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		jobs, ok := body["jobs"].([]interface{})
		require.True(t, ok)
		assert.Len(t, jobs, 2)
	})
}

func TestCancelEndpoint(t *testing.T) {
	t.Run("cancellation accepted", func(t *testing.T) {
		launcher := &fakeLauncher{}
		srv := newTestServer(launcher, &fakeStats{})

		req := httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/cancel", nil)
		rec := httptest.NewRecorder()
		srv.handleJobByID(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, []string{"job-1"}, launcher.cancelled)
	})

	t.Run("unknown job is 404", func(t *testing.T) {
		launcher := &fakeLauncher{
			cancelErr: domain.E(domain.KindConsistency, "supervisor.Cancel", "unknown job", nil),
		}
		srv := newTestServer(launcher, &fakeStats{})

		req := httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/cancel", nil)
		rec := httptest.NewRecorder()
		srv.handleJobByID(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("already finished job is 409", func(t *testing.T) {
		launcher := &fakeLauncher{
			cancelErr: domain.E(domain.KindConflict, "supervisor.Cancel", "already completed", nil),
		}
		srv := newTestServer(launcher, &fakeStats{})

		req := httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/cancel", nil)
		rec := httptest.NewRecorder()
		srv.handleJobByID(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("cancel requires POST", func(t *testing.T) {
		srv := newTestServer(&fakeLauncher{}, &fakeStats{})
		req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1/cancel", nil)
		rec := httptest.NewRecorder()
		srv.handleJobByID(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestStatisticsEndpoint(t *testing.T) {
	stats := &fakeStats{stats: &ledger.Stats{Total: 12, Success: 10, Imported: 7}}
	srv := newTestServer(&fakeLauncher{}, stats)

	req := httptest.NewRequest(http.MethodGet,
		"/api/statistics?download_type=settlement&scheme=ucs&year=2568&month=10", nil)
	rec := httptest.NewRecorder()
	srv.handleStatistics(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "settlement", stats.gotFilter.DownloadType)
	assert.Equal(t, "UCS", stats.gotFilter.Scheme)
	assert.Equal(t, 2568, stats.gotFilter.Year)
	assert.Equal(t, 10, stats.gotFilter.Month)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&fakeLauncher{}, &fakeStats{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}
