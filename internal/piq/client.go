// Package piq talks to the downstream core service that owns invoices,
// vendors and payments. The orchestrator only issues requests and records
// what it sent; all business decisions about content stay downstream.
package piq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sevigo/integrator/internal/core"
)

// CoreClient defines the operations the orchestrator needs from the
// downstream core service.
//
//go:generate mockgen -destination=../../mocks/mock_core_client.go -package=mocks . CoreClient
type CoreClient interface {
	// SignUploadURL asks for a presigned URL to upload a file under the
	// given name.
	SignUploadURL(ctx context.Context, runID, filename string) (*SignedUpload, error)
	// CreateInvoice registers an uploaded file as an invoice container.
	// A duplicate (HTTP 409) is not an error; Duplicate is set instead.
	CreateInvoice(ctx context.Context, runID string, req *CreateInvoiceRequest) (*CreateInvoiceResponse, error)
	// BulkCreateVendors pushes vendor master data observed during a sync.
	BulkCreateVendors(ctx context.Context, runID string, vendors []Vendor) error
	// UpsertBankAccounts pushes bank-account master data.
	UpsertBankAccounts(ctx context.Context, runID string, accounts []BankAccount) error
	// BillpayExportDryRun asks which payments would be exported for a
	// location, without exporting anything.
	BillpayExportDryRun(ctx context.Context, runID, restaurantID string) (*BillpayExportPlan, error)
	// AcknowledgeExport reports exported payment ids back. The returned
	// flag is true when the downstream body acknowledged the cheques.
	AcknowledgeExport(ctx context.Context, runID string, paymentIDs []string) (bool, error)
	// PostChequeError reports a payment-level failure code downstream.
	PostChequeError(ctx context.Context, runID, paymentID string, code core.ErrorCode, message string) error
}

// SignedUpload is the response of the signed-URL endpoint.
type SignedUpload struct {
	URL      string `json:"url"`
	UploadID string `json:"upload_id"`
}

// CreateInvoiceRequest registers an uploaded document.
type CreateInvoiceRequest struct {
	UploadID     string         `json:"upload_id"`
	Filename     string         `json:"filename"`
	RestaurantID string         `json:"restaurant,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`
}

// CreateInvoiceResponse carries the container id assigned downstream.
type CreateInvoiceResponse struct {
	ContainerID string `json:"id"`
	Duplicate   bool   `json:"-"`
}

// Vendor is the master-data shape for bulk vendor create.
type Vendor struct {
	SourceID string `json:"source_id"`
	Name     string `json:"name"`
	Code     string `json:"code,omitempty"`
}

// BankAccount is the master-data shape for bank-account upsert.
type BankAccount struct {
	SourceID string `json:"source_id"`
	Name     string `json:"name"`
	Number   string `json:"number,omitempty"`
}

// BillpayExportPlan is the dry-run response listing exportable payments.
type BillpayExportPlan struct {
	Cheques []PlannedCheque `json:"cheques"`
}

// PlannedCheque is one payment the downstream core wants exported.
type PlannedCheque struct {
	PaymentID     string           `json:"payment_id"`
	ChequerunID   string           `json:"chequerun_id"`
	BankAccount   string           `json:"bank_account"`
	VendorID      string           `json:"vendor_id"`
	VendorName    string           `json:"vendor_name"`
	LocationID    string           `json:"location_id"`
	PaymentDate   string           `json:"payment_date"`
	PaymentNumber string           `json:"payment_number"`
	PaymentTotal  string           `json:"payment_total"`
	Invoices      []PlannedInvoice `json:"invoices"`
}

// PlannedInvoice is one invoice line on a planned cheque.
type PlannedInvoice struct {
	InvoiceNumber string `json:"invoice_number"`
	InvoiceDate   string `json:"invoice_date"`
	InvoiceAmount string `json:"invoice_amount"`
	LocationID    string `json:"location_id"`
}

// RequestRecorder captures each request issued downstream for audit.
// The storage.EntityStore backs it in production.
type RequestRecorder interface {
	RecordExportRequest(ctx context.Context, r *core.ExportRequest) error
}

type httpClient struct {
	base     *url.URL
	token    string
	http     *http.Client
	recorder RequestRecorder
	logger   *slog.Logger
}

// NewClient builds the production CoreClient. recorder may be nil when
// request auditing is not wanted (the CLI one-shots).
func NewClient(baseURL, token string, recorder RequestRecorder, logger *slog.Logger) (CoreClient, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid core base URL: %w", err)
	}
	return &httpClient{
		base:     base,
		token:    token,
		http:     &http.Client{Timeout: 60 * time.Second},
		recorder: recorder,
		logger:   logger,
	}, nil
}

// do issues one request, records it, and translates transport-level
// failures into the domain taxonomy: 5xx means the upstream is
// unavailable, 4xx means our credentials or request were rejected.
func (c *httpClient) do(ctx context.Context, runID, method, path string, body any, allow ...int) (int, []byte, error) {
	var reqBytes []byte
	var reader io.Reader
	if body != nil {
		var err error
		reqBytes, err = json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(reqBytes)
	}

	u := *c.base
	u.Path, _ = url.JoinPath(c.base.Path, path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, core.WrapError(core.CodeExternalUnavailable, err, "core request %s %s failed", method, path)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}

	c.record(ctx, runID, method, path, reqBytes, resp.StatusCode, respBytes)

	for _, code := range allow {
		if resp.StatusCode == code {
			return resp.StatusCode, respBytes, nil
		}
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, respBytes, nil
	case resp.StatusCode >= 500:
		return resp.StatusCode, respBytes, core.NewError(core.CodeExternalUnavailable,
			"core returned %d for %s %s", resp.StatusCode, method, path)
	default:
		return resp.StatusCode, respBytes, core.NewError(core.CodeAuthenticationFailedWeb,
			"core rejected %s %s with %d", method, path, resp.StatusCode)
	}
}

func (c *httpClient) record(ctx context.Context, runID, method, path string, reqBody []byte, status int, respBody []byte) {
	if c.recorder == nil || runID == "" {
		return
	}
	rec := &core.ExportRequest{
		ID:           core.NewID(core.PrefixExportRequest),
		RunID:        runID,
		Method:       method,
		Path:         path,
		RequestBody:  jsonOrNull(reqBody),
		StatusCode:   status,
		ResponseBody: jsonOrNull(respBody),
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.recorder.RecordExportRequest(ctx, rec); err != nil {
		c.logger.Warn("failed to record export request", "run_id", runID, "path", path, "error", err)
	}
}

// jsonOrNull keeps only valid JSON bodies; anything else is dropped so
// the JSONB columns stay clean.
func jsonOrNull(b []byte) json.RawMessage {
	if json.Valid(b) {
		return b
	}
	return nil
}

func (c *httpClient) SignUploadURL(ctx context.Context, runID, filename string) (*SignedUpload, error) {
	path := "/invoice/s3sign/?filename=" + url.QueryEscape(filename)
	_, body, err := c.do(ctx, runID, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out SignedUpload
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode signed upload response: %w", err)
	}
	return &out, nil
}

func (c *httpClient) CreateInvoice(ctx context.Context, runID string, req *CreateInvoiceRequest) (*CreateInvoiceResponse, error) {
	// 409 means the invoice container already exists downstream.
	status, body, err := c.do(ctx, runID, http.MethodPost, "/invoice/", req, http.StatusConflict)
	if err != nil {
		return nil, err
	}
	if status == http.StatusConflict {
		return &CreateInvoiceResponse{Duplicate: true}, nil
	}
	var out CreateInvoiceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode invoice response: %w", err)
	}
	return &out, nil
}

func (c *httpClient) BulkCreateVendors(ctx context.Context, runID string, vendors []Vendor) error {
	_, _, err := c.do(ctx, runID, http.MethodPost, "/vendor/bulk/", map[string]any{"vendors": vendors})
	return err
}

func (c *httpClient) UpsertBankAccounts(ctx context.Context, runID string, accounts []BankAccount) error {
	_, _, err := c.do(ctx, runID, http.MethodPost, "/bank_account/", map[string]any{"bank_accounts": accounts})
	return err
}

func (c *httpClient) BillpayExportDryRun(ctx context.Context, runID, restaurantID string) (*BillpayExportPlan, error) {
	req := map[string]any{
		"dry_run":       true,
		"restaurant":    restaurantID,
		"skip_canceled": true,
		"skip_flagged":  true,
	}
	_, body, err := c.do(ctx, runID, http.MethodPost, "/billpay/export/", req)
	if err != nil {
		return nil, err
	}
	var out BillpayExportPlan
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode billpay dry-run response: %w", err)
	}
	return &out, nil
}

func (c *httpClient) AcknowledgeExport(ctx context.Context, runID string, paymentIDs []string) (bool, error) {
	_, body, err := c.do(ctx, runID, http.MethodPost, "/billpay/export/", map[string]any{"cheques": paymentIDs})
	if err != nil {
		return false, err
	}
	// A truthy response body acknowledges the cheques.
	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return false, nil
	}
	switch v := out.(type) {
	case bool:
		return v, nil
	case map[string]any:
		return len(v) > 0, nil
	case []any:
		return len(v) > 0, nil
	default:
		return v != nil, nil
	}
}

func (c *httpClient) PostChequeError(ctx context.Context, runID, paymentID string, code core.ErrorCode, message string) error {
	req := map[string]any{
		"payment_id": paymentID,
		"code":       string(code),
		"message":    message,
	}
	_, _, err := c.do(ctx, runID, http.MethodPost, "/billpay/cheque_error/", req)
	return err
}
