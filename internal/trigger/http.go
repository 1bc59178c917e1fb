package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"claimsync/internal/config"
	"claimsync/internal/domain"
	"claimsync/internal/entity"
	"claimsync/internal/ledger"
	"claimsync/internal/observability"
)

// Server is the supervisor's HTTP API: job launch, status, cancellation,
// ledger statistics, health and Prometheus metrics.
type Server struct {
	launcher Launcher
	stats    StatsReader
	config   config.HTTPConfig
	logger   observability.Logger
	metrics  observability.Metrics
	server   *http.Server
}

// NewServer creates the API server.
func NewServer(
	launcher Launcher,
	stats StatsReader,
	cfg config.HTTPConfig,
	logger observability.Logger,
	metrics observability.Metrics,
) *Server {
	return &Server{
		launcher: launcher,
		stats:    stats,
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Start begins serving. Blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/api/jobs/", s.handleJobByID)
	mux.HandleFunc("/api/statistics", s.handleStatistics)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         s.config.Addr,
		Handler:      mux,
		ReadTimeout:  s.config.Timeout,
		WriteTimeout: s.config.Timeout,
	}

	s.logger.Info(context.Background(), "API server starting", observability.Fields{
		"address": s.config.Addr,
	})

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info(ctx, "API server shutting down", nil)
	return s.server.Shutdown(ctx)
}

// handleJobs serves POST /api/jobs (launch) and GET /api/jobs (list).
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.launchJob(w, r)
	case http.MethodGet:
		s.listJobs(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) launchJob(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.metrics.StartOperation("api_launch")
	defer s.metrics.EndOperation("api_launch")

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.RecordError("api_launch", "bad_request")
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON payload: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		s.metrics.RecordError("api_launch", "bad_request")
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.launcher.Launch(r.Context(), req.Type(), req.Subtype(),
		req.ScopeKey(), entity.TriggerAPI, req.Params())
	if err != nil {
		if domain.IsKind(err, domain.KindConflict) {
			s.metrics.RecordError("api_launch", "conflict")
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error(r.Context(), "job launch failed", err, observability.Fields{
			"scope_key": req.ScopeKey(),
		})
		s.metrics.RecordError("api_launch", "internal")
		s.writeError(w, http.StatusInternalServerError, "launch failed")
		return
	}

	s.metrics.RecordSuccess("api_launch")
	s.metrics.RecordDuration("api_launch", time.Since(start).Seconds())
	s.writeJSON(w, http.StatusAccepted, jobView(job))
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobType := entity.JobType(r.URL.Query().Get("type"))
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	jobs, err := s.launcher.Jobs(r.Context(), jobType, limit)
	if err != nil {
		s.logger.Error(r.Context(), "job listing failed", err, nil)
		s.writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}

	views := make([]map[string]interface{}, len(jobs))
	for i, job := range jobs {
		views[i] = jobView(job)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": views})
}

// handleJobByID serves GET /api/jobs/{id} and POST /api/jobs/{id}/cancel.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if rest == "" {
		s.writeError(w, http.StatusNotFound, "job id required")
		return
	}

	if jobID, ok := strings.CutSuffix(rest, "/cancel"); ok {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.cancelJob(w, r, jobID)
		return
	}

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	job, err := s.launcher.Job(r.Context(), rest)
	if err != nil {
		s.logger.Error(r.Context(), "job lookup failed", err, observability.Fields{"job_id": rest})
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown job %s", rest))
		return
	}
	s.writeJSON(w, http.StatusOK, jobView(job))
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	err := s.launcher.Cancel(r.Context(), jobID)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, map[string]interface{}{"job_id": jobID, "cancelling": true})
	case domain.IsKind(err, domain.KindConsistency):
		s.writeError(w, http.StatusNotFound, err.Error())
	case domain.IsKind(err, domain.KindConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error(r.Context(), "job cancel failed", err, observability.Fields{"job_id": jobID})
		s.writeError(w, http.StatusInternalServerError, "cancel failed")
	}
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filter := ledger.StatFilter{
		DownloadType: r.URL.Query().Get("download_type"),
		Scheme:       strings.ToUpper(r.URL.Query().Get("scheme")),
	}
	if raw := r.URL.Query().Get("year"); raw != "" {
		filter.Year, _ = strconv.Atoi(raw)
	}
	if raw := r.URL.Query().Get("month"); raw != "" {
		filter.Month, _ = strconv.Atoi(raw)
	}

	stats, err := s.stats.Statistics(r.Context(), filter)
	if err != nil {
		s.logger.Error(r.Context(), "statistics query failed", err, nil)
		s.writeError(w, http.StatusInternalServerError, "statistics failed")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error(context.Background(), "response encoding failed", err, nil)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// jobView shapes a Job for API responses.
func jobView(job *entity.Job) map[string]interface{} {
	view := map[string]interface{}{
		"id":             job.ID,
		"job_type":       job.JobType,
		"subtype":        job.Subtype,
		"scope_key":      job.ScopeKey,
		"status":         job.Status,
		"trigger_source": job.TriggerSource,
		"params":         job.Params,
		"started_at":     job.StartedAt,
	}
	if job.Status.Terminal() {
		view["result"] = job.Result
		view["finished_at"] = job.FinishedAt
		view["duration_ms"] = job.DurationMS
		if job.ErrorMessage != nil {
			view["error"] = *job.ErrorMessage
		}
	}
	return view
}
