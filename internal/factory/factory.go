// Package factory materializes Runs per capability, applying the
// scheduling preconditions and building the capability-specific request
// parameters.
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/piq"
	"github.com/sevigo/integrator/internal/schedule"
	"github.com/sevigo/integrator/internal/storage"
)

// Options carry optional builder inputs supplied by admin or customer
// requests. Zero values fall back to configured defaults.
type Options struct {
	StartDate        string
	EndDate          string
	SuppressInvoices bool
	DryRun           bool
	// RawParams passes request parameters through unchanged, used by
	// the web-login builder.
	RawParams json.RawMessage
}

// Factory builds and persists Runs.
type Factory struct {
	runs      storage.RunStore
	evaluator *schedule.Evaluator
	piq       piq.CoreClient
	clock     core.Clock
	logger    *slog.Logger

	// earliestStart is the default start_date for invoice downloads.
	earliestStart string
}

// New creates a Factory.
func New(runs storage.RunStore, evaluator *schedule.Evaluator, piqClient piq.CoreClient, clock core.Clock, earliestStart string, logger *slog.Logger) *Factory {
	return &Factory{
		runs:          runs,
		evaluator:     evaluator,
		piq:           piqClient,
		clock:         clock,
		logger:        logger,
		earliestStart: earliestStart,
	}
}

// CreateRun builds a Run for (job, capability). It returns (nil, nil)
// when the scheduling policy rejects creation; that is the common case,
// not an error.
func (f *Factory) CreateRun(ctx context.Context, job *core.Job, cap core.Capability, via core.CreatedVia, opts Options) (*core.Run, error) {
	if job.Connector == nil {
		return nil, fmt.Errorf("job %s has no connector loaded", job.ID)
	}
	if !job.Connector.Enabled {
		return nil, fmt.Errorf("connector %s: %w", job.Connector.ID, core.ErrConnectorDisabled)
	}
	if cap != core.CapWebLogin && !job.Connector.SupportsAny(cap) {
		return nil, fmt.Errorf("connector %s does not advertise %s: %w", job.Connector.ID, cap, core.ErrUnsupportedCapability)
	}

	switch cap {
	case core.CapWebLogin:
		return f.buildWebLogin(ctx, job, via, opts)
	case core.CapInvoiceDownload:
		return f.buildInvoiceDownload(ctx, job, via, opts)
	case core.CapPaymentExportInfo:
		return f.buildPaymentExport(ctx, job, via, opts)
	case core.CapAccountingImportAll, core.CapBankAccountImport, core.CapGLImport, core.CapVendorImport:
		return f.buildAccountingImport(ctx, job, cap, via)
	case core.CapPaymentImportInfo:
		return f.buildPaymentImport(ctx, job, via)
	default:
		return nil, fmt.Errorf("no builder for capability %q: %w", cap, core.ErrUnsupportedCapability)
	}
}

func (f *Factory) newRun(job *core.Job, cap core.Capability, via core.CreatedVia) *core.Run {
	now := f.clock.Now()
	return &core.Run{
		ID:         core.NewID(core.PrefixRun),
		JobID:      job.ID,
		Capability: cap,
		CreatedVia: via,
		Status:     core.RunCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// buildWebLogin always creates: login probes are cheap and explicitly
// requested. dry_run is forced so no adapter flow past login executes.
func (f *Factory) buildWebLogin(ctx context.Context, job *core.Job, via core.CreatedVia, opts Options) (*core.Run, error) {
	r := f.newRun(job, core.CapWebLogin, via)
	r.DryRun = true
	if len(opts.RawParams) > 0 {
		r.Params = opts.RawParams
	} else {
		r.Params = json.RawMessage(`{}`)
	}
	if err := f.runs.CreateRun(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (f *Factory) buildInvoiceDownload(ctx context.Context, job *core.Job, via core.CreatedVia, opts Options) (*core.Run, error) {
	ok, err := f.evaluator.ShouldCreate(ctx, job, core.CapInvoiceDownload, via)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	start := opts.StartDate
	if start == "" {
		start = f.earliestStart
	}
	end := opts.EndDate
	if end == "" {
		end = f.clock.Today().Format("2006-01-02")
	}
	params := core.InvoiceDownloadParams{
		Version:          1,
		StartDate:        start,
		EndDate:          end,
		SuppressInvoices: opts.SuppressInvoices,
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	r := f.newRun(job, core.CapInvoiceDownload, via)
	r.IsManual = job.IsManual()
	r.DryRun = opts.DryRun
	r.Params = raw
	if err := f.runs.CreateRun(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (f *Factory) buildPaymentExport(ctx context.Context, job *core.Job, via core.CreatedVia, opts Options) (*core.Run, error) {
	ok, err := f.evaluator.ShouldCreate(ctx, job, core.CapPaymentExportInfo, via)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if len(job.CompanyIDs) == 0 {
		return nil, fmt.Errorf("job %s has no companies configured for payment export", job.ID)
	}

	accounting := make(map[string]core.PaymentToExport)
	for _, companyID := range job.CompanyIDs {
		plan, err := f.piq.BillpayExportDryRun(ctx, "", companyID)
		if err != nil {
			return nil, fmt.Errorf("billpay dry-run for company %s failed: %w", companyID, err)
		}
		for _, cheque := range plan.Cheques {
			accounting[cheque.PaymentID] = toExportShape(cheque)
		}
	}
	if len(accounting) == 0 {
		f.logger.Info("no exportable payments, skipping run", "job_id", job.ID)
		return nil, nil
	}

	raw, err := json.Marshal(core.PaymentExportParams{Version: 2, Accounting: accounting})
	if err != nil {
		return nil, err
	}

	r := f.newRun(job, core.CapPaymentExportInfo, via)
	r.DryRun = opts.DryRun
	r.Params = raw
	if err := f.runs.CreateRun(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// toExportShape converts a planned cheque into the version-2 parameter
// shape, dropping invoices without an invoice number.
func toExportShape(c piq.PlannedCheque) core.PaymentToExport {
	out := core.PaymentToExport{
		ChequerunID:   c.ChequerunID,
		BankAccount:   c.BankAccount,
		VendorID:      c.VendorID,
		VendorName:    c.VendorName,
		LocationID:    c.LocationID,
		PaymentDate:   c.PaymentDate,
		PaymentNumber: c.PaymentNumber,
		PaymentTotal:  c.PaymentTotal,
	}
	for _, inv := range c.Invoices {
		if inv.InvoiceNumber == "" {
			continue
		}
		out.Invoices = append(out.Invoices, core.InvoiceToExport{
			InvoiceNumber: inv.InvoiceNumber,
			InvoiceDate:   inv.InvoiceDate,
			InvoiceAmount: inv.InvoiceAmount,
			LocationID:    inv.LocationID,
		})
	}
	return out
}

func (f *Factory) buildAccountingImport(ctx context.Context, job *core.Job, cap core.Capability, via core.CreatedVia) (*core.Run, error) {
	ok, err := f.evaluator.ShouldCreate(ctx, job, core.CapAccountingImportAll, via)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	entities := importEntities(job.Connector, cap)
	if len(entities) == 0 {
		return nil, fmt.Errorf("connector %s supports no import entities for %s: %w",
			job.Connector.ID, cap, core.ErrUnsupportedCapability)
	}
	raw, err := json.Marshal(core.AccountingImportParams{Version: 1, ImportEntities: entities})
	if err != nil {
		return nil, err
	}

	r := f.newRun(job, cap, via)
	r.Params = raw
	if err := f.runs.CreateRun(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// importEntities maps the connector's advertised sync capabilities to
// the entity-type codes the adapter should import.
func importEntities(conn *core.Connector, cap core.Capability) []string {
	have := core.ExpandAll(conn.Capabilities)
	wanted := cap.Expand()
	var out []string
	for _, w := range wanted {
		supported := false
		for _, h := range have {
			if h == w {
				supported = true
				break
			}
		}
		if !supported {
			continue
		}
		switch w {
		case core.CapBankAccountImport:
			out = append(out, string(core.EntityBankAccount))
		case core.CapGLImport:
			out = append(out, string(core.EntityGLAccount))
		case core.CapVendorImport:
			out = append(out, string(core.EntityVendor))
		}
	}
	return out
}

func (f *Factory) buildPaymentImport(ctx context.Context, job *core.Job, via core.CreatedVia) (*core.Run, error) {
	ok, err := f.evaluator.ShouldCreate(ctx, job, core.CapPaymentImportInfo, via)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	raw, err := json.Marshal(core.PaymentImportParams{
		Version:        1,
		ImportPayments: true,
		ImportEntities: []string{string(core.EntityPayment)},
	})
	if err != nil {
		return nil, err
	}

	r := f.newRun(job, core.CapPaymentImportInfo, via)
	r.Params = raw
	if err := f.runs.CreateRun(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}
