package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/lifecycle"
	"github.com/sevigo/integrator/internal/storage"
)

// Submitter moves created Runs onto the execution substrate.
type Submitter struct {
	dispatcher core.Dispatcher
	runs       storage.RunStore
	manager    *lifecycle.Manager
	logger     *slog.Logger
}

// NewSubmitter creates a Submitter over the configured backend.
func NewSubmitter(dispatcher core.Dispatcher, runs storage.RunStore, manager *lifecycle.Manager, logger *slog.Logger) *Submitter {
	return &Submitter{dispatcher: dispatcher, runs: runs, manager: manager, logger: logger}
}

// ExecuteAsync schedules the Run and hands it to the backend. Manual
// Runs are scheduled but not dispatched: they wait for a human operator.
// The substrate id, when the backend produces one, is recorded on the Run.
func (s *Submitter) ExecuteAsync(ctx context.Context, run *core.Run, job *core.Job) error {
	if err := s.manager.Schedule(ctx, run); err != nil {
		return fmt.Errorf("failed to schedule run %s: %w", run.ID, err)
	}

	if run.IsManual {
		s.logger.Info("manual run awaits operator", "run_id", run.ID, "job_id", run.JobID)
		return nil
	}

	limits := DefaultTimeLimits
	if job != nil {
		if tl, ok := job.TaskTimeLimits(); ok {
			limits = tl
		}
	}

	dispatchID, err := s.dispatcher.Dispatch(ctx, run, limits)
	if err != nil {
		return fmt.Errorf("failed to dispatch run %s: %w", run.ID, err)
	}
	if dispatchID != "" {
		if err := s.runs.SetDispatchID(ctx, run.ID, dispatchID); err != nil {
			return fmt.Errorf("failed to record dispatch id for run %s: %w", run.ID, err)
		}
		run.DispatchID = &dispatchID
	}
	return nil
}
