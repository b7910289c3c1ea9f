// Package adapters holds the uniform interface between the orchestration
// core and per-connector portal integrations. Adapters are function-valued
// records selected by adapter_code; the capability code chooses which
// entry point runs. No inheritance, no class hierarchies.
package adapters

import (
	"context"
	"log/slog"

	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/piq"
)

// Discovery describes one file an adapter observed on the remote portal.
type Discovery struct {
	ReferenceCode    string
	OriginalFilename string
	OriginalURL      string
	FileFormat       core.FileFormat
	DocumentType     core.DocumentType
	DocumentProps    core.PropMap
	// LocalPath points at the downloaded copy in the run's work
	// directory; empty when the file was observed but not downloaded.
	LocalPath string
}

// Env is everything an adapter may touch during a Run. The engine
// implements it; adapters never see stores or the database.
type Env interface {
	Run() *core.Run
	Job() *core.Job
	Logger() *slog.Logger

	// Credentials returns username, password and the effective login URL.
	Credentials() (username, password, loginURL string)

	// SaveFile pushes one discovery through the dedup pipeline. A
	// duplicate returns core.ErrAlreadyExists; adapters usually skip it.
	SaveFile(ctx context.Context, d Discovery) (*core.DiscoveredFile, error)

	// OpenCheckRun opens a ledger entry for a payment export attempt.
	// The ledger's conflict protocol surfaces as *core.CheckRunConflict.
	OpenCheckRun(ctx context.Context, paymentID string) (*core.CheckRun, error)
	RecordExportSuccess(ctx context.Context, c *core.CheckRun) error
	RecordExportFailure(ctx context.Context, c *core.CheckRun, cause error) error

	// RecordEntity stores one master-data observation; duplicates within
	// the Run return core.ErrAlreadyExists.
	RecordEntity(ctx context.Context, entityType core.EntityType, sourceID string, payload any) error

	// ResolveMapping translates a downstream name for this job, or
	// returns core.ErrNotFound.
	ResolveMapping(ctx context.Context, entity core.EntityType, text string) (*core.PIQMapping, error)

	// Core exposes the downstream core client for accounting adapters.
	Core() piq.CoreClient

	// WorkDir is the run-scoped scratch directory for downloads.
	WorkDir() string
}

// Adapter binds an adapter_code to its capability entry points. Nil
// entry points mean the connector does not implement that flow.
type Adapter struct {
	Code string

	// Browser-session flags consulted when wiring a driving session.
	UsesProxy    bool
	IsAngular    bool
	CreateDriver bool

	Login             func(ctx context.Context, env Env) error
	DownloadDocuments func(ctx context.Context, env Env) error
	UpdatePayments    func(ctx context.Context, env Env) error
	Sync              func(ctx context.Context, env Env) error
	ImportPayments    func(ctx context.Context, env Env) error
}

// FlowFor returns the entry point for a capability, or nil when the
// adapter does not implement it.
func (a *Adapter) FlowFor(cap core.Capability) func(context.Context, Env) error {
	switch cap {
	case core.CapWebLogin:
		return a.Login
	case core.CapInvoiceDownload:
		return a.DownloadDocuments
	case core.CapPaymentExportInfo, core.CapPaymentPay:
		return a.UpdatePayments
	case core.CapAccountingImportAll, core.CapBankAccountImport, core.CapGLImport, core.CapVendorImport:
		return a.Sync
	case core.CapPaymentImportInfo:
		return a.ImportPayments
	default:
		return nil
	}
}
