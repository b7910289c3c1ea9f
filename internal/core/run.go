package core

import (
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunCreated            RunStatus = "created"
	RunScheduled          RunStatus = "scheduled"
	RunStarted            RunStatus = "started"
	RunSucceeded          RunStatus = "succeeded"
	RunFailed             RunStatus = "failed"
	RunCanceled           RunStatus = "canceled"
	RunPartiallySucceeded RunStatus = "partially_succeeded"
)

// Terminal reports whether the status admits no further transition.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunSucceeded, RunFailed, RunCanceled, RunPartiallySucceeded:
		return true
	}
	return false
}

// CreatedVia records who asked for the Run.
type CreatedVia string

const (
	ViaScheduled CreatedVia = "scheduled"
	ViaCustomer  CreatedVia = "customer"
	ViaAdmin     CreatedVia = "admin"
)

// Bypass reports whether scheduling policy is skipped for this origin.
// Customer and admin requests always go through.
func (v CreatedVia) Bypass() bool { return v == ViaCustomer || v == ViaAdmin }

// CancelReason tags why a Run was canceled.
type CancelReason string

const (
	CancelScheduledTimedOut CancelReason = "scheduled-timed-out"
	CancelScheduledMultiple CancelReason = "scheduled-multiple"
	CancelStartedTimedOut   CancelReason = "started-timed-out"
	CancelStaff             CancelReason = "staff-canceled"
	CancelCustomer          CancelReason = "customer-canceled"
)

// Run is one execution attempt of one capability for one job.
type Run struct {
	ID            string          `db:"id"`
	JobID         string          `db:"job_id"`
	Capability    Capability      `db:"capability"`
	CreatedVia    CreatedVia      `db:"created_via"`
	IsManual      bool            `db:"is_manual"`
	DryRun        bool            `db:"dry_run"`
	Params        json.RawMessage `db:"request_parameters"`
	Status        RunStatus       `db:"status"`
	DispatchID    *string         `db:"dispatch_id"`
	IssueID       *string         `db:"issue_id"`
	CancelReason  *CancelReason   `db:"cancel_reason"`
	CancelActor   *string         `db:"cancel_actor"`
	CancelText    *string         `db:"cancel_text"`
	ExecutionStart *time.Time     `db:"execution_start"`
	ExecutionEnd  *time.Time      `db:"execution_end"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// Finished reports whether the Run reached a terminal state.
func (r *Run) Finished() bool { return r.Status.Terminal() }

// InvoiceDownloadParams is the request-parameters document for
// invoice.download Runs.
type InvoiceDownloadParams struct {
	Version          int    `json:"version"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	SuppressInvoices bool   `json:"suppress_invoices"`
}

// PaymentExportParams is the version-2 parameter shape for
// payment.export_info Runs. Keys of Accounting are external payment ids.
type PaymentExportParams struct {
	Version    int                       `json:"version"`
	Accounting map[string]PaymentToExport `json:"accounting"`
}

// PaymentToExport describes one payment the adapter should enter into
// the remote accounting system.
type PaymentToExport struct {
	ChequerunID   string            `json:"chequerun_id"`
	BankAccount   string            `json:"bank_account"`
	VendorID      string            `json:"vendor_id"`
	VendorName    string            `json:"vendor_name"`
	LocationID    string            `json:"location_id"`
	PaymentDate   string            `json:"payment_date"`
	PaymentNumber string            `json:"payment_number"`
	PaymentTotal  string            `json:"payment_total"`
	Invoices      []InvoiceToExport `json:"invoices"`
}

// InvoiceToExport is one invoice line on an exported payment.
type InvoiceToExport struct {
	InvoiceNumber string `json:"invoice_number"`
	InvoiceDate   string `json:"invoice_date"`
	InvoiceAmount string `json:"invoice_amount"`
	LocationID    string `json:"location_id"`
}

// AccountingImportParams is the parameter shape for accounting sync Runs.
type AccountingImportParams struct {
	Version        int      `json:"version"`
	ImportEntities []string `json:"import_entities"`
}

// PaymentImportParams is the parameter shape for payment.import_info Runs.
type PaymentImportParams struct {
	Version        int      `json:"version"`
	ImportPayments bool     `json:"import_payments"`
	ImportEntities []string `json:"import_entities"`
}
