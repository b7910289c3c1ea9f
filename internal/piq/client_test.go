package piq

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/integrator/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) CoreClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client, err := NewClient(srv.URL, "test-token", nil, logger)
	require.NoError(t, err)
	return client
}

func TestCreateInvoice_DuplicateIsNotAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoice/", r.URL.Path)
		assert.Equal(t, "Token test-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusConflict)
	})

	resp, err := client.CreateInvoice(context.Background(), "run_1", &CreateInvoiceRequest{
		UploadID: "up_1",
		Filename: "invoice.pdf",
	})
	require.NoError(t, err)
	assert.True(t, resp.Duplicate)
	assert.Empty(t, resp.ContainerID)
}

func TestCreateInvoice_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req CreateInvoiceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "up_1", req.UploadID)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "cont_42"})
	})

	resp, err := client.CreateInvoice(context.Background(), "run_1", &CreateInvoiceRequest{UploadID: "up_1"})
	require.NoError(t, err)
	assert.False(t, resp.Duplicate)
	assert.Equal(t, "cont_42", resp.ContainerID)
}

func TestErrorTranslation(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode core.ErrorCode
	}{
		{"Server error is upstream unavailable", http.StatusBadGateway, core.CodeExternalUnavailable},
		{"Client error is auth failed", http.StatusForbidden, core.CodeAuthenticationFailedWeb},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := client.SignUploadURL(context.Background(), "run_1", "a.pdf")
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, core.CodeOf(err))
		})
	}
}

func TestBillpayExportDryRun(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, true, req["dry_run"])
		assert.Equal(t, true, req["skip_canceled"])
		assert.Equal(t, true, req["skip_flagged"])
		assert.Equal(t, "loc_9", req["restaurant"])
		_ = json.NewEncoder(w).Encode(BillpayExportPlan{Cheques: []PlannedCheque{
			{PaymentID: "pay_1", PaymentTotal: "120.00"},
		}})
	})

	plan, err := client.BillpayExportDryRun(context.Background(), "run_1", "loc_9")
	require.NoError(t, err)
	require.Len(t, plan.Cheques, 1)
	assert.Equal(t, "pay_1", plan.Cheques[0].PaymentID)
}

func TestAcknowledgeExport_TruthyBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"Object body", `{"ok": true}`, true},
		{"Empty object", `{}`, false},
		{"True literal", `true`, true},
		{"Null body", `null`, false},
		{"Non-JSON body", `OK`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			got, err := client.AcknowledgeExport(context.Background(), "run_1", []string{"pay_1"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
