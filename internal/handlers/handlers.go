// Package handlers provides the HTTP handlers of the sync status surface.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/reportsync/common/httputil"
	"github.com/telhawk-systems/reportsync/common/logging"
	"github.com/telhawk-systems/reportsync/internal/auth"
	"github.com/telhawk-systems/reportsync/internal/models"
	"github.com/telhawk-systems/reportsync/internal/repository"
	"github.com/telhawk-systems/reportsync/internal/scheduler"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
	readyTimeout     = 5 * time.Second
)

// SyncScheduler is the part of the scheduler the API drives.
type SyncScheduler interface {
	Trigger() error
	Running() bool
	Last() (*models.RunSummary, bool)
}

// RunLog reads persisted run summaries.
type RunLog interface {
	LatestRun(ctx context.Context) (*models.RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RunSummary, error)
}

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the status API.
type Handler struct {
	sched    SyncScheduler
	runs     RunLog
	verifier *auth.TokenVerifier
	checks   map[string]Pinger
	logger   *logging.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(sched SyncScheduler, runs RunLog, verifier *auth.TokenVerifier, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		sched:    sched,
		runs:     runs,
		verifier: verifier,
		checks:   map[string]Pinger{},
		logger:   logger,
	}
}

// WithReadinessCheck adds a dependency to /readyz.
func (h *Handler) WithReadinessCheck(name string, p Pinger) *Handler {
	h.checks[name] = p
	return h
}

// StatusResponse is the body of GET /api/v1/sync/status.
type StatusResponse struct {
	Running bool               `json:"running"`
	LastRun *models.RunSummary `json:"last_run"`
}

// HealthResponse is the body of the probe endpoints.
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Service: "reportsync"})
}

// ReadyCheck handles GET /readyz
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{Status: "ready", Service: "reportsync", Checks: map[string]string{}}
	status := http.StatusOK
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "readiness check failed", slog.String("check", name), logging.Error(err))
			resp.Checks[name] = err.Error()
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	httputil.WriteJSON(w, status, resp)
}

// Status handles GET /api/v1/sync/status. Before the first run of this
// process it falls back to the run log.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}

	resp := StatusResponse{Running: h.sched.Running()}
	if last, ok := h.sched.Last(); ok {
		resp.LastRun = last
	} else if h.runs != nil {
		last, err := h.runs.LatestRun(r.Context())
		switch {
		case err == nil:
			resp.LastRun = last
		case errors.Is(err, repository.ErrRunNotFound):
		default:
			h.logger.ErrorContext(r.Context(), "failed to load latest run", logging.Error(err))
			httputil.WriteError(w, http.StatusInternalServerError, "failed to load run log")
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Runs handles GET /api/v1/sync/runs?limit=N
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if h.runs == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "run log not configured")
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list runs", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load run log")
		return
	}
	if runs == nil {
		runs = []*models.RunSummary{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// Trigger handles POST /api/v1/sync/trigger
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}

	subject, err := h.authenticate(r)
	if err != nil {
		h.logger.WarnContext(r.Context(), "rejected trigger request", logging.Error(err))
		w.Header().Set("WWW-Authenticate", `Bearer realm="reportsync"`)
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.sched.Trigger(); err != nil {
		if errors.Is(err, scheduler.ErrRunInProgress) {
			httputil.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.InfoContext(r.Context(), "sync run triggered", slog.String("subject", subject))
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) authenticate(r *http.Request) (string, error) {
	if h.verifier == nil || !h.verifier.Enabled() {
		return "", auth.ErrNoSecret
	}
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return "", errors.New("missing bearer token")
	}
	claims, err := h.verifier.Validate(strings.TrimSpace(authz[len("Bearer "):]))
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
