// Package core defines the domain types of the integrator: connectors, jobs,
// runs and the records a run produces, plus the small set of ports
// (clock, dispatcher, blob store, notifier) the surrounding packages
// implement. Nothing in this package touches the database or the network.
package core

import (
	"errors"
	"fmt"
)

// ErrorCode is the closed taxonomy of failure codes recorded on Issues.
type ErrorCode string

const (
	CodeAccountDisabledWeb       ErrorCode = "intgrt.account_disabled.web"
	CodeAuthenticationFailedWeb  ErrorCode = "intgrt.auth_failed.web"
	CodeAccountMFAEnabledWeb     ErrorCode = "intgrt.account_mfa_enabled.web"
	CodeExternalUnavailable      ErrorCode = "intgrt.external.upstream_unavailable"
	CodeUnsupportedOperation     ErrorCode = "intgrt.common.unsupported_operation"
	CodePEBankAccNotFound        ErrorCode = "intgrt.payment_export.bank_account_not_found"
	CodePEBankAccSelectionFailed ErrorCode = "intgrt.payment_export.bank_account_selection_failed"
	CodePEVendorNotFound         ErrorCode = "intgrt.payment_export.vendor_not_found"
	CodePEVendorSelectionFailed  ErrorCode = "intgrt.payment_export.vendor_selection_failed"
	CodePELocationNotFound       ErrorCode = "intgrt.payment_export.location_not_found"
	CodePELocationSelectFailed   ErrorCode = "intgrt.payment_export.location_selection_failed"
	CodePEInvoiceNotFound        ErrorCode = "intgrt.payment_export.invoice_not_found"
	CodePEInvoiceSelectFailed    ErrorCode = "intgrt.payment_export.invoice_selection_failed"
	CodePEInvoiceNotApproved     ErrorCode = "intgrt.payment_export.invoice_not_approved"
	CodePEAmountMismatch         ErrorCode = "intgrt.payment_export.validation.amount_mismatch"
	CodePEDuplicateTxnFound      ErrorCode = "intgrt.payment_export.duplicate_txn_found"
	CodePEPaymentConflict        ErrorCode = "intgrt.payment_export.payment_conflict"
	CodePEPaymentAmountNegative  ErrorCode = "intgrt.payment_export.payment_amount_negative"
	CodePECheckRunAlreadyExists  ErrorCode = "intgrt.payment_export.checkrun_already_exists"
	CodeUnexpected               ErrorCode = "intgrt.unexpected"
)

// Error is a typed domain failure carrying one of the closed error codes.
// The adapter shell converts these into Issues attached to the failing
// Run or CheckRun.
type Error struct {
	Code    ErrorCode
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a typed domain error.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a code to an underlying error.
func WrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// CodeOf extracts the domain error code from err, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// Sentinel errors shared across packages.
var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a uniqueness fence blocks an insert.
	ErrAlreadyExists = errors.New("already exists")
	// ErrConnectorDisabled blocks Run creation for disabled connectors.
	ErrConnectorDisabled = errors.New("connector is not enabled")
	// ErrUnsupportedCapability is returned for capabilities a connector
	// does not advertise or the factory has no builder for.
	ErrUnsupportedCapability = errors.New("unsupported capability")
	// ErrInvalidStatus is returned when a lifecycle operation is not
	// permitted in the run's current status.
	ErrInvalidStatus = errors.New("invalid status for operation")
	// ErrSkipProcessing tells the file post-processing step to leave a
	// file alone without marking it failed.
	ErrSkipProcessing = errors.New("skip processing")
)
