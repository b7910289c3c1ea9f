package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/dispatch"
	"github.com/sevigo/integrator/internal/factory"
	"github.com/sevigo/integrator/internal/lifecycle"
	"github.com/sevigo/integrator/internal/schedule"
	"github.com/sevigo/integrator/internal/storage"
)

var apiInstant = time.Date(2024, 5, 13, 9, 0, 0, 0, time.UTC)

type apiJobStore struct {
	storage.JobStore
	jobs map[string]*core.Job
}

func (s *apiJobStore) GetJob(_ context.Context, id string) (*core.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return j, nil
}

type apiRunStore struct {
	storage.RunStore
	mu   sync.Mutex
	runs map[string]*core.Run
}

func (s *apiRunStore) CreateRun(_ context.Context, r *core.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.runs[r.ID] = &cp
	return nil
}

func (s *apiRunStore) SaveRun(_ context.Context, r *core.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.runs[r.ID] = &cp
	return nil
}

func (s *apiRunStore) GetRun(_ context.Context, id string) (*core.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *apiRunStore) SetDispatchID(_ context.Context, runID, dispatchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[runID]; ok && dispatchID != "" {
		r.DispatchID = &dispatchID
	}
	return nil
}

type apiDispatcher struct {
	mu         sync.Mutex
	dispatched []string
}

func (d *apiDispatcher) Dispatch(_ context.Context, r *core.Run, _ core.TimeLimits) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, r.ID)
	return "", nil
}

func (d *apiDispatcher) Stop() {}

type apiHarness struct {
	router     http.Handler
	jobs       *apiJobStore
	runs       *apiRunStore
	dispatcher *apiDispatcher
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	clock := &core.FixedClock{Instant: apiInstant}

	jobs := &apiJobStore{jobs: map[string]*core.Job{}}
	runs := &apiRunStore{runs: map[string]*core.Run{}}
	dispatcher := &apiDispatcher{}

	evaluator := schedule.New(runs, jobs, clock, logger)
	f := factory.New(runs, evaluator, nil, clock, "2018-01-01", logger)
	manager := lifecycle.NewManager(runs, jobs, &lifecycle.LogNotifier{Logger: logger}, clock, logger)
	submitter := dispatch.NewSubmitter(dispatcher, runs, manager, logger)

	return &apiHarness{
		router:     NewRouter(jobs, runs, f, submitter, manager, logger),
		jobs:       jobs,
		runs:       runs,
		dispatcher: dispatcher,
	}
}

func (h *apiHarness) addJob(id string, enabled bool, caps ...core.Capability) *core.Job {
	job := &core.Job{
		ID:          id,
		ConnectorID: "conn_api",
		AccountID:   "acct_1",
		Username:    "user",
		Password:    "secret",
		Enabled:     true,
		Connector: &core.Connector{
			ID:           "conn_api",
			Name:         "API Test",
			AdapterCode:  "apitest",
			Type:         core.ConnectorVendor,
			Capabilities: core.CapabilityList(caps),
			Enabled:      enabled,
		},
	}
	h.jobs.jobs[id] = job
	return job
}

func (h *apiHarness) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader("{}"))
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateRunEndpoint(t *testing.T) {
	h := newAPIHarness(t)
	h.addJob("job_api1", true, core.CapWebLogin, core.CapInvoiceDownload)

	rec := h.request(t, http.MethodPost, "/api/v1/jobs/job_api1/runs",
		`{"capability": "internal.web_login"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		DryRun bool   `json:"dry_run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run", core.IDPrefix(resp.ID))
	assert.True(t, resp.DryRun, "web login probes are always dry runs")
	assert.Equal(t, string(core.RunScheduled), resp.Status)
	assert.Equal(t, []string{resp.ID}, h.dispatcher.dispatched)
}

func TestCreateRunUnsupportedCapability(t *testing.T) {
	h := newAPIHarness(t)
	h.addJob("job_api1", true, core.CapInvoiceDownload)

	rec := h.request(t, http.MethodPost, "/api/v1/jobs/job_api1/runs",
		`{"capability": "payment.export_info"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateRunDisabledConnector(t *testing.T) {
	h := newAPIHarness(t)
	h.addJob("job_api1", false, core.CapWebLogin)

	rec := h.request(t, http.MethodPost, "/api/v1/jobs/job_api1/runs",
		`{"capability": "internal.web_login"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateRunInvalidVia(t *testing.T) {
	h := newAPIHarness(t)
	h.addJob("job_api1", true, core.CapWebLogin)

	rec := h.request(t, http.MethodPost, "/api/v1/jobs/job_api1/runs",
		`{"capability": "internal.web_login", "created_via": "cron"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRunJobNotFound(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(t, http.MethodPost, "/api/v1/jobs/job_missing/runs",
		`{"capability": "internal.web_login"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunEndpoint(t *testing.T) {
	h := newAPIHarness(t)
	h.runs.runs["run_x"] = &core.Run{
		ID:         "run_x",
		JobID:      "job_api1",
		Capability: core.CapInvoiceDownload,
		Status:     core.RunStarted,
		CreatedAt:  apiInstant,
	}

	rec := h.request(t, http.MethodGet, "/api/v1/runs/run_x", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"started"`)

	rec = h.request(t, http.MethodGet, "/api/v1/runs/run_missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelRunEndpoint(t *testing.T) {
	h := newAPIHarness(t)
	h.runs.runs["run_x"] = &core.Run{
		ID:         "run_x",
		JobID:      "job_api1",
		Capability: core.CapInvoiceDownload,
		Status:     core.RunScheduled,
		CreatedAt:  apiInstant,
	}

	rec := h.request(t, http.MethodPost, "/api/v1/runs/run_x/cancel",
		`{"actor": "ops", "text": "wrong window"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := h.runs.GetRun(context.Background(), "run_x")
	require.NoError(t, err)
	assert.Equal(t, core.RunCanceled, stored.Status)
	require.NotNil(t, stored.CancelReason)
	assert.Equal(t, core.CancelStaff, *stored.CancelReason)

	// A second cancel hits the already-canceled guard.
	rec = h.request(t, http.MethodPost, "/api/v1/runs/run_x/cancel", `{"actor": "ops"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelRunViaCustomer(t *testing.T) {
	h := newAPIHarness(t)
	h.runs.runs["run_x"] = &core.Run{
		ID:         "run_x",
		JobID:      "job_api1",
		Capability: core.CapInvoiceDownload,
		Status:     core.RunScheduled,
		CreatedAt:  apiInstant,
	}

	rec := h.request(t, http.MethodPost, "/api/v1/runs/run_x/cancel",
		`{"via": "customer"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := h.runs.GetRun(context.Background(), "run_x")
	require.NoError(t, err)
	require.NotNil(t, stored.CancelReason)
	assert.Equal(t, core.CancelCustomer, *stored.CancelReason)
}

func TestResetRunEndpoint(t *testing.T) {
	h := newAPIHarness(t)
	end := apiInstant.Add(-time.Hour)
	reason := core.CancelStartedTimedOut
	h.runs.runs["run_x"] = &core.Run{
		ID:           "run_x",
		JobID:        "job_api1",
		Capability:   core.CapInvoiceDownload,
		Status:       core.RunCanceled,
		CancelReason: &reason,
		ExecutionEnd: &end,
		CreatedAt:    apiInstant.Add(-2 * time.Hour),
	}

	rec := h.request(t, http.MethodPost, "/api/v1/runs/run_x/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := h.runs.GetRun(context.Background(), "run_x")
	require.NoError(t, err)
	assert.Equal(t, core.RunCreated, stored.Status)
	assert.Nil(t, stored.CancelReason)
	assert.Nil(t, stored.ExecutionEnd)
}

func TestHealthEndpoint(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.request(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRouterRejectsUnknownRoute(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.request(t, http.MethodGet, fmt.Sprintf("/api/v1/%s", "nope"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
