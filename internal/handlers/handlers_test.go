package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/reportsync/common/logging"
	"github.com/telhawk-systems/reportsync/internal/auth"
	"github.com/telhawk-systems/reportsync/internal/models"
	"github.com/telhawk-systems/reportsync/internal/repository"
	"github.com/telhawk-systems/reportsync/internal/scheduler"
)

const testSecret = "handler-test-secret"

type fakeScheduler struct {
	running  bool
	last     *models.RunSummary
	err      error
	triggers int
}

func (f *fakeScheduler) Trigger() error {
	if f.err != nil {
		return f.err
	}
	f.triggers++
	return nil
}

func (f *fakeScheduler) Running() bool { return f.running }

func (f *fakeScheduler) Last() (*models.RunSummary, bool) { return f.last, f.last != nil }

type fakeRunLog struct {
	latest *models.RunSummary
	runs   []*models.RunSummary
	err    error
	limit  int
}

func (f *fakeRunLog) LatestRun(context.Context) (*models.RunSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.latest == nil {
		return nil, repository.ErrRunNotFound
	}
	return f.latest, nil
}

func (f *fakeRunLog) ListRuns(_ context.Context, limit int) ([]*models.RunSummary, error) {
	f.limit = limit
	return f.runs, f.err
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestHandler(sched *fakeScheduler, runs *fakeRunLog) *Handler {
	return NewHandler(sched, runs, auth.NewTokenVerifier(testSecret), logging.Discard())
}

func bearer(t *testing.T, secret string) string {
	t.Helper()
	token, err := auth.NewTokenVerifier(secret).Issue("ops", time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestStatus_FromScheduler(t *testing.T) {
	sched := &fakeScheduler{running: true, last: &models.RunSummary{RunID: "run-1", Status: models.StatusPartial}}
	h := newTestHandler(sched, &fakeRunLog{})

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Running)
	require.NotNil(t, resp.LastRun)
	assert.Equal(t, "run-1", resp.LastRun.RunID)
	assert.Equal(t, models.StatusPartial, resp.LastRun.Status)
}

func TestStatus_FallsBackToRunLog(t *testing.T) {
	runs := &fakeRunLog{latest: &models.RunSummary{RunID: "persisted", Status: models.StatusSuccess}}
	h := newTestHandler(&fakeScheduler{}, runs)

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil))

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.LastRun)
	assert.Equal(t, "persisted", resp.LastRun.RunID)
}

func TestStatus_NoRunsYet(t *testing.T) {
	h := newTestHandler(&fakeScheduler{}, &fakeRunLog{})

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"running":false,"last_run":null}`, rec.Body.String())
}

func TestStatus_RunLogError(t *testing.T) {
	h := newTestHandler(&fakeScheduler{}, &fakeRunLog{err: errors.New("pool closed")})

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatus_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(&fakeScheduler{}, &fakeRunLog{})

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}

func TestRuns(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantLimit int
	}{
		{"default limit", "", http.StatusOK, defaultRunsLimit},
		{"explicit limit", "?limit=5", http.StatusOK, 5},
		{"capped limit", "?limit=1000", http.StatusOK, maxRunsLimit},
		{"zero", "?limit=0", http.StatusBadRequest, 0},
		{"not a number", "?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := &fakeRunLog{runs: []*models.RunSummary{{RunID: "a"}, {RunID: "b"}}}
			h := newTestHandler(&fakeScheduler{}, runs)

			rec := httptest.NewRecorder()
			h.Runs(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync/runs"+tt.query, nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantLimit, runs.limit)
		})
	}
}

func TestRuns_EmptyLog(t *testing.T) {
	h := newTestHandler(&fakeScheduler{}, &fakeRunLog{})

	rec := httptest.NewRecorder()
	h.Runs(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync/runs", nil))
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}

func TestTrigger(t *testing.T) {
	tests := []struct {
		name          string
		authz         string
		schedErr      error
		wantCode      int
		wantTriggered int
	}{
		{"accepted", bearer(t, testSecret), nil, http.StatusAccepted, 1},
		{"run in flight", bearer(t, testSecret), scheduler.ErrRunInProgress, http.StatusConflict, 0},
		{"scheduler error", bearer(t, testSecret), errors.New("boom"), http.StatusInternalServerError, 0},
		{"missing token", "", nil, http.StatusUnauthorized, 0},
		{"basic auth", "Basic b3BzOm9wcw==", nil, http.StatusUnauthorized, 0},
		{"wrong secret", bearer(t, "not-the-secret"), nil, http.StatusUnauthorized, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := &fakeScheduler{err: tt.schedErr}
			h := newTestHandler(sched, &fakeRunLog{})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/trigger", nil)
			if tt.authz != "" {
				req.Header.Set("Authorization", tt.authz)
			}
			rec := httptest.NewRecorder()
			h.Trigger(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantTriggered, sched.triggers)
		})
	}
}

func TestTrigger_DisabledWithoutSecret(t *testing.T) {
	sched := &fakeScheduler{}
	h := NewHandler(sched, &fakeRunLog{}, auth.NewTokenVerifier(""), logging.Discard())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/trigger", nil)
	req.Header.Set("Authorization", bearer(t, testSecret))
	rec := httptest.NewRecorder()
	h.Trigger(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, sched.triggers)
}

func TestTrigger_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(&fakeScheduler{}, &fakeRunLog{})

	rec := httptest.NewRecorder()
	h.Trigger(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync/trigger", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestReadyCheck(t *testing.T) {
	h := newTestHandler(&fakeScheduler{}, &fakeRunLog{}).
		WithReadinessCheck("postgres", pingFunc(func(context.Context) error { return nil })).
		WithReadinessCheck("redis", pingFunc(func(context.Context) error { return errors.New("connection refused") }))

	rec := httptest.NewRecorder()
	h.ReadyCheck(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "ok", resp.Checks["postgres"])
	assert.Equal(t, "connection refused", resp.Checks["redis"])
}

func TestHealthCheck(t *testing.T) {
	h := newTestHandler(&fakeScheduler{}, &fakeRunLog{})

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"reportsync"}`, rec.Body.String())
}
