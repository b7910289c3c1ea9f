package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sevigo/integrator/internal/core"
)

// manualAdapter backs connectors whose runs a human operator executes.
// Dispatch never invokes it; the flows exist so an accidental invocation
// fails loudly instead of pretending to work.
var manualAdapter = &Adapter{
	Code: core.AdapterCodeManual,
	Login: func(_ context.Context, env Env) error {
		return core.NewError(core.CodeUnsupportedOperation,
			"manual connector run %s must be executed by an operator", env.Run().ID)
	},
}

// mockAdapter is the development and test connector: it fabricates one
// deterministic invoice per download and walks the full payment export
// protocol, so the whole pipeline can be exercised without a portal.
var mockAdapter = &Adapter{
	Code:         "mock",
	CreateDriver: false,

	Login: func(_ context.Context, env Env) error {
		username, password, _ := env.Credentials()
		if username == "" || password == "" {
			return core.NewError(core.CodeAuthenticationFailedWeb, "mock portal rejects empty credentials")
		}
		return nil
	},

	DownloadDocuments: func(ctx context.Context, env Env) error {
		run := env.Run()
		path := filepath.Join(env.WorkDir(), "mock-invoice.json")
		content := fmt.Sprintf(`{"invoice_number":"MOCK-1","job":%q}`, run.JobID)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
		_, err := env.SaveFile(ctx, Discovery{
			ReferenceCode:    "MOCK-1",
			OriginalFilename: "mock-invoice.json",
			OriginalURL:      "https://mock.portal/invoices/MOCK-1",
			FileFormat:       core.FormatJSON,
			DocumentType:     core.DocInvoice,
			DocumentProps:    core.PropMap{"invoice_number": "MOCK-1"},
			LocalPath:        path,
		})
		if err != nil && !errors.Is(err, core.ErrAlreadyExists) {
			return err
		}
		return nil
	},

	UpdatePayments: func(ctx context.Context, env Env) error {
		var params core.PaymentExportParams
		if err := unmarshalParams(env.Run(), &params); err != nil {
			return err
		}
		for paymentID := range params.Accounting {
			chk, err := env.OpenCheckRun(ctx, paymentID)
			if err != nil {
				continue
			}
			if err := env.RecordExportSuccess(ctx, chk); err != nil {
				return err
			}
		}
		return nil
	},

	Sync: func(ctx context.Context, env Env) error {
		err := env.RecordEntity(ctx, core.EntityVendor, "mock-vendor-1", map[string]string{"name": "Mock Vendor"})
		if err != nil && !errors.Is(err, core.ErrAlreadyExists) {
			return err
		}
		return nil
	},
}

func unmarshalParams(run *core.Run, dst any) error {
	if len(run.Params) == 0 {
		return fmt.Errorf("run %s carries no request parameters", run.ID)
	}
	return json.Unmarshal(run.Params, dst)
}
