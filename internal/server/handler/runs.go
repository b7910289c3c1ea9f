// Package handler provides the HTTP handlers of the operations API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/dispatch"
	"github.com/sevigo/integrator/internal/factory"
	"github.com/sevigo/integrator/internal/lifecycle"
	"github.com/sevigo/integrator/internal/storage"
)

// RunHandler exposes Run creation and lifecycle operations.
type RunHandler struct {
	jobs      storage.JobStore
	runs      storage.RunStore
	factory   *factory.Factory
	submitter *dispatch.Submitter
	manager   *lifecycle.Manager
	logger    *slog.Logger
}

// NewRunHandler creates a RunHandler.
func NewRunHandler(jobs storage.JobStore, runs storage.RunStore, f *factory.Factory,
	submitter *dispatch.Submitter, manager *lifecycle.Manager, logger *slog.Logger) *RunHandler {
	return &RunHandler{
		jobs:      jobs,
		runs:      runs,
		factory:   f,
		submitter: submitter,
		manager:   manager,
		logger:    logger,
	}
}

// createRunRequest is the trigger-run payload.
type createRunRequest struct {
	Capability       string `json:"capability"`
	CreatedVia       string `json:"created_via"`
	DryRun           bool   `json:"dry_run"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	SuppressInvoices bool   `json:"suppress_invoices"`
}

type cancelRunRequest struct {
	Actor string `json:"actor"`
	Text  string `json:"text"`
	Via   string `json:"via"`
}

type runResponse struct {
	ID             string          `json:"id"`
	JobID          string          `json:"job_id"`
	Capability     core.Capability `json:"capability"`
	CreatedVia     core.CreatedVia `json:"created_via"`
	IsManual       bool            `json:"is_manual"`
	DryRun         bool            `json:"dry_run"`
	Status         core.RunStatus  `json:"status"`
	DispatchID     *string         `json:"dispatch_id,omitempty"`
	IssueID        *string         `json:"issue_id,omitempty"`
	CancelReason   *string         `json:"cancel_reason,omitempty"`
	ExecutionStart *time.Time      `json:"execution_start,omitempty"`
	ExecutionEnd   *time.Time      `json:"execution_end,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func toRunResponse(r *core.Run) runResponse {
	resp := runResponse{
		ID:             r.ID,
		JobID:          r.JobID,
		Capability:     r.Capability,
		CreatedVia:     r.CreatedVia,
		IsManual:       r.IsManual,
		DryRun:         r.DryRun,
		Status:         r.Status,
		DispatchID:     r.DispatchID,
		IssueID:        r.IssueID,
		ExecutionStart: r.ExecutionStart,
		ExecutionEnd:   r.ExecutionEnd,
		CreatedAt:      r.CreatedAt,
	}
	if r.CancelReason != nil {
		reason := string(*r.CancelReason)
		resp.CancelReason = &reason
	}
	return resp
}

// Create triggers a Run for a job. Customer and admin requests bypass
// the scheduling policy; a "scheduled" origin goes through it and may
// legitimately produce no Run.
func (h *RunHandler) Create(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	via := core.CreatedVia(req.CreatedVia)
	if via == "" {
		via = core.ViaAdmin
	}
	if via != core.ViaAdmin && via != core.ViaCustomer && via != core.ViaScheduled {
		http.Error(w, "invalid created_via", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		h.respondError(w, err, "job "+jobID)
		return
	}

	run, err := h.factory.CreateRun(r.Context(), job, core.Capability(req.Capability), via, factory.Options{
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		SuppressInvoices: req.SuppressInvoices,
		DryRun:           req.DryRun,
	})
	if err != nil {
		h.respondError(w, err, "run creation for job "+jobID)
		return
	}
	if run == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.submitter.ExecuteAsync(r.Context(), run, job); err != nil {
		h.logger.Error("failed to submit run", "run_id", run.ID, "error", err)
		http.Error(w, "run created but not dispatched", http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusCreated, toRunResponse(run))
}

// Get returns the current state of a Run.
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := h.runs.GetRun(r.Context(), runID)
	if err != nil {
		h.respondError(w, err, "run "+runID)
		return
	}
	h.respondJSON(w, http.StatusOK, toRunResponse(run))
}

// Cancel cancels a Run on operator or customer request.
func (h *RunHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	var req cancelRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	reason := core.CancelStaff
	if req.Via == "customer" {
		reason = core.CancelCustomer
	}

	run, err := h.runs.GetRun(r.Context(), runID)
	if err != nil {
		h.respondError(w, err, "run "+runID)
		return
	}
	if err := h.manager.Cancel(r.Context(), run, reason, req.Text, req.Actor); err != nil {
		h.respondError(w, err, "cancel of run "+runID)
		return
	}
	h.respondJSON(w, http.StatusOK, toRunResponse(run))
}

// Reset returns a Run to created, clearing its outcome. Admin only.
func (h *RunHandler) Reset(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := h.runs.GetRun(r.Context(), runID)
	if err != nil {
		h.respondError(w, err, "run "+runID)
		return
	}
	if err := h.manager.Reset(r.Context(), run); err != nil {
		h.respondError(w, err, "reset of run "+runID)
		return
	}
	h.respondJSON(w, http.StatusOK, toRunResponse(run))
}

func (h *RunHandler) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *RunHandler) respondError(w http.ResponseWriter, err error, subject string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		http.Error(w, subject+" not found", http.StatusNotFound)
	case errors.Is(err, core.ErrInvalidStatus):
		http.Error(w, subject+": "+err.Error(), http.StatusConflict)
	case errors.Is(err, core.ErrConnectorDisabled), errors.Is(err, core.ErrUnsupportedCapability):
		http.Error(w, subject+": "+err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("request failed", "subject", subject, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
