// Package dispatch submits runnable Runs to an execution substrate. Two
// backends exist: an in-process worker pool and an external batch queue.
// The lifecycle manager never learns which one is active.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sevigo/integrator/internal/core"
)

// DefaultTimeLimits apply when neither job nor connector configures
// execution limits.
var DefaultTimeLimits = core.TimeLimits{TimeLimit: 3600, SoftTimeLimit: 3300}

type poolItem struct {
	runID  string
	limits core.TimeLimits
}

// pool implements core.Dispatcher with a bounded queue of Run ids
// consumed by worker goroutines.
type pool struct {
	executor   core.RunExecutor
	jobQueue   chan poolItem
	maxWorkers int
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewPool initializes the in-process worker pool backend.
// If maxWorkers is 0 or negative, it defaults to 1.
func NewPool(executor core.RunExecutor, maxWorkers, queueCapacity int, logger *slog.Logger) core.Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = 100
	}
	p := &pool{
		executor:   executor,
		maxWorkers: maxWorkers,
		jobQueue:   make(chan poolItem, queueCapacity),
		logger:     logger,
	}
	p.startWorkers()
	return p
}

// startWorkers launches maxWorkers goroutines to process runs from the queue.
func (p *pool) startWorkers() {
	for i := range p.maxWorkers {
		p.wg.Add(1)
		go p.startWorker(i)
	}
}

// startWorker processes runs from the queue until it's closed.
func (p *pool) startWorker(workerID int) {
	defer p.wg.Done()
	p.logger.Info("starting run worker", "id", workerID)

	for item := range p.jobQueue {
		p.processRun(workerID, item)
	}

	p.logger.Info("shutting down run worker", "id", workerID)
}

// processRun executes one Run under its hard time limit. The soft limit
// is advisory; the adapter shell checks the context at its suspension
// points and exits cleanly.
func (p *pool) processRun(workerID int, item poolItem) {
	p.logger.Info("worker processing run", "worker_id", workerID, "run_id", item.runID)

	limits := item.limits
	if limits.TimeLimit <= 0 {
		limits = DefaultTimeLimits
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(limits.TimeLimit)*time.Second)
	defer cancel()

	if err := p.executor.Execute(ctx, item.runID); err != nil {
		p.logger.Error("run execution failed", "run_id", item.runID, "error", err)
	}
}

// Dispatch queues a Run for processing by a worker. Submission is
// fire-and-forget; the pool backend produces no substrate id.
func (p *pool) Dispatch(_ context.Context, run *core.Run, limits core.TimeLimits) (string, error) {
	p.logger.Info("queuing run", "run_id", run.ID, "capability", run.Capability)

	select {
	case p.jobQueue <- poolItem{runID: run.ID, limits: limits}:
		return "", nil
	default:
		return "", fmt.Errorf("run queue is full, cannot accept run %s", run.ID)
	}
}

// Stop gracefully shuts down the pool, waiting for in-flight runs.
func (p *pool) Stop() {
	p.logger.Info("stopping dispatcher and waiting for runs to finish")
	close(p.jobQueue)
	p.wg.Wait()
	p.logger.Info("all runs have finished")
}
