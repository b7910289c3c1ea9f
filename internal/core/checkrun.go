package core

import (
	"time"
)

// CheckRun is the export-ledger entry for one business payment attempted
// through an accounting connector. (run_id, payment_id) is unique.
type CheckRun struct {
	ID             string    `db:"id"`
	RunID          string    `db:"run_id"`
	ConnectorID    string    `db:"connector_id"`
	PaymentID      string    `db:"payment_id"`
	ExportSuccess  TriState  `db:"export_success"`
	Acknowledged   TriState  `db:"acknowledged"`
	Disabled       bool      `db:"disabled"`
	ManualExporter *string   `db:"manual_exporter"`
	IssueID        *string   `db:"issue_id"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Settled reports whether the export went through and the downstream
// core has acknowledged it; such payments are never re-attempted.
func (c *CheckRun) Settled() bool {
	return c.ExportSuccess.IsTrue() && c.Acknowledged.IsTrue()
}

// CheckRunConflict is returned by the ledger when a prior attempt for
// the same (connector, payment) blocks or alters a new one.
type CheckRunConflict struct {
	Kind  ConflictKind
	Prior *CheckRun
}

// ConflictKind classifies a CheckRun creation conflict.
type ConflictKind string

const (
	// ConflictAcknowledged means the payment was exported and acknowledged.
	ConflictAcknowledged ConflictKind = "already_exists_and_acknowledged"
	// ConflictDisabled means a prior attempt was flagged to skip retries.
	ConflictDisabled ConflictKind = "disabled"
	// ConflictPendingAck means the export succeeded but the downstream
	// acknowledgement is still outstanding; only the ack is retried.
	ConflictPendingAck ConflictKind = "already_exists_pending_ack"
)

func (e *CheckRunConflict) Error() string {
	return "checkrun conflict: " + string(e.Kind) + " (payment " + e.Prior.PaymentID + ")"
}
