// Package engine executes Runs: it loads the adapter for the run's
// connector, drives the capability flow through an Env facade, and
// translates adapter failures into recorded Run outcomes. It also owns
// the DiscoveredFile save pipeline, the post-run file actions and the
// CheckRun export ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sevigo/integrator/internal/adapters"
	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/lifecycle"
	"github.com/sevigo/integrator/internal/piq"
	"github.com/sevigo/integrator/internal/storage"
)

// Deps collects the engine's collaborators.
type Deps struct {
	Jobs      storage.JobStore
	Runs      storage.RunStore
	Files     storage.FileStore
	Checks    storage.CheckRunStore
	Entities  storage.EntityStore
	Blobs     core.BlobStore
	Extractor core.TextExtractor
	Core      piq.CoreClient
	Lifecycle *lifecycle.Manager
	Registry  *adapters.Registry
	Clock     core.Clock
	Logger    *slog.Logger

	// WorkDir is the root for per-run scratch directories.
	WorkDir string
	// UnknownLocationID is used when file location resolution fails.
	UnknownLocationID string
	// PaymentsEDIURL enables the payments_edi_upload action when set.
	PaymentsEDIURL string
}

// Engine implements core.RunExecutor.
type Engine struct {
	deps Deps
}

// New creates an Engine.
func New(deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{deps: deps}
}

// Execute carries out one Run end to end: start, adapter flow, post-run
// steps, terminal outcome. The returned error is non-nil only for
// failures the engine could not classify; recorded business failures
// return nil so dispatch backends do not retry them.
func (e *Engine) Execute(ctx context.Context, runID string) error {
	r, err := e.deps.Runs.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if r.Status.Terminal() {
		return fmt.Errorf("run %s is already terminal (%s): %w", r.ID, r.Status, core.ErrInvalidStatus)
	}
	job, err := e.deps.Jobs.GetJob(ctx, r.JobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s for run %s: %w", r.JobID, r.ID, err)
	}

	logger := e.deps.Logger.With("run_id", r.ID, "job_id", job.ID, "capability", r.Capability)

	adapter, err := e.deps.Registry.Resolve(job.Connector.AdapterCode)
	if err != nil {
		failErr := core.WrapError(core.CodeUnsupportedOperation, err,
			"no adapter for connector %s", job.Connector.AdapterCode)
		return e.deps.Lifecycle.RecordFailure(ctx, r, failErr)
	}

	flow := adapter.Login
	if !r.DryRun {
		flow = adapter.FlowFor(r.Capability)
	}
	if flow == nil {
		failErr := core.NewError(core.CodeUnsupportedOperation,
			"adapter %s does not implement %s", adapter.Code, r.Capability)
		return e.deps.Lifecycle.RecordFailure(ctx, r, failErr)
	}

	if err := e.deps.Lifecycle.Start(ctx, r); err != nil {
		return fmt.Errorf("failed to start run %s: %w", r.ID, err)
	}

	workDir := filepath.Join(e.deps.WorkDir, r.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return e.deps.Lifecycle.RecordFailure(ctx, r,
			fmt.Errorf("failed to create work dir for run %s: %w", r.ID, err))
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("failed to remove run work dir", "dir", workDir, "error", err)
		}
	}()

	env := &runEnv{engine: e, run: r, job: job, logger: logger, workDir: workDir}

	logger.Info("executing run", "adapter", adapter.Code, "dry_run", r.DryRun)
	flowErr := flow(ctx, env)
	if flowErr != nil {
		return e.recordFlowFailure(ctx, r, logger, flowErr)
	}

	var post []error
	if !r.DryRun {
		if r.Capability == core.CapPaymentExportInfo || r.Capability == core.CapPaymentPay {
			if err := e.AcknowledgeExports(ctx, r.ID, env.pendingAck); err != nil {
				post = append(post, err)
			}
		}
		if err := e.ProcessFiles(ctx, r, job); err != nil {
			post = append(post, err)
		}
	}
	if len(post) > 0 {
		err := errors.Join(post...)
		logger.Warn("run finished with post-processing failures", "error", err)
		return e.deps.Lifecycle.RecordPartialSuccess(ctx, r)
	}
	return e.deps.Lifecycle.RecordSuccess(ctx, r)
}

// recordFlowFailure finalises a failed Run. Typed domain errors and
// untyped errors with a matching action-required rule are recorded and
// considered handled; everything else propagates after recording so the
// dispatch backend sees a generic failure.
func (e *Engine) recordFlowFailure(ctx context.Context, r *core.Run, logger *slog.Logger, cause error) error {
	if recordErr := e.deps.Lifecycle.RecordFailure(ctx, r, cause); recordErr != nil {
		return errors.Join(cause, recordErr)
	}
	code := core.CodeOf(cause)
	if code == "" {
		logger.Error("run failed with unclassified error", "error", cause)
		return cause
	}
	rule, err := e.deps.Runs.GetIssueRule(ctx, code)
	if err != nil || rule == nil {
		logger.Error("run failed with unruled error code", "code", code, "error", cause)
		return cause
	}
	logger.Warn("run failed", "code", code, "action_required", rule.ActionRequired, "error", cause)
	return nil
}

// runEnv is the per-run adapters.Env implementation.
type runEnv struct {
	engine  *Engine
	run     *core.Run
	job     *core.Job
	logger  *slog.Logger
	workDir string

	// pendingAck collects prior CheckRuns whose export succeeded but
	// whose acknowledgement is still outstanding, surfaced as conflicts
	// while this Run opened its own entries. The post-run
	// acknowledgement sweep retries them.
	pendingAck []*core.CheckRun
}

func (v *runEnv) Run() *core.Run        { return v.run }
func (v *runEnv) Job() *core.Job       { return v.job }
func (v *runEnv) Logger() *slog.Logger { return v.logger }
func (v *runEnv) WorkDir() string      { return v.workDir }

func (v *runEnv) Credentials() (string, string, string) {
	loginURL := ""
	if v.job.LoginURL != nil {
		loginURL = *v.job.LoginURL
	}
	return v.job.Username, v.job.Password, loginURL
}

func (v *runEnv) SaveFile(ctx context.Context, d adapters.Discovery) (*core.DiscoveredFile, error) {
	f := v.engine.BuildUnique(v.run, v.job, d)
	computeTextHash := v.job.Prop(core.PropComputeTextHash, true)
	if err := v.engine.SaveContent(ctx, f, d.LocalPath, computeTextHash); err != nil {
		return nil, err
	}
	return f, nil
}

func (v *runEnv) OpenCheckRun(ctx context.Context, paymentID string) (*core.CheckRun, error) {
	c, err := v.engine.OpenCheckRun(ctx, v.run, v.job, paymentID)
	if err != nil {
		var conflict *core.CheckRunConflict
		if errors.As(err, &conflict) && conflict.Kind == core.ConflictPendingAck {
			v.pendingAck = append(v.pendingAck, conflict.Prior)
		}
		return nil, err
	}
	return c, nil
}

func (v *runEnv) RecordExportSuccess(ctx context.Context, c *core.CheckRun) error {
	return v.engine.RecordExportSuccess(ctx, c)
}

func (v *runEnv) RecordExportFailure(ctx context.Context, c *core.CheckRun, cause error) error {
	return v.engine.RecordExportFailure(ctx, c, cause)
}

func (v *runEnv) RecordEntity(ctx context.Context, entityType core.EntityType, sourceID string, payload any) error {
	return v.engine.RecordEntity(ctx, v.run, entityType, sourceID, payload)
}

func (v *runEnv) ResolveMapping(ctx context.Context, entity core.EntityType, text string) (*core.PIQMapping, error) {
	return v.engine.deps.Jobs.GetMapping(ctx, v.job.ID, entity, text)
}

func (v *runEnv) Core() piq.CoreClient { return v.engine.deps.Core }
