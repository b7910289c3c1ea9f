package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/piq"
)

// uploadClient carries signed-URL uploads and EDI hand-offs. The
// downstream core API itself goes through piq.CoreClient.
var uploadClient = &http.Client{Timeout: 2 * time.Minute}

const uploadAttempts = 3

// ProcessFiles runs the post-processing action for every DiscoveredFile
// of a finished Run. Per-job actions override connector defaults.
// ErrSkipProcessing leaves a file alone; any other failure marks the
// file failed and all such failures aggregate into one run-level error.
func (e *Engine) ProcessFiles(ctx context.Context, r *core.Run, job *core.Job) error {
	files, err := e.deps.Files.ListByRun(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("failed to list files of run %s: %w", r.ID, err)
	}

	var failed []error
	for _, f := range files {
		if f.Deleted || !f.Downloaded.IsTrue() {
			continue
		}
		action, err := e.deps.Jobs.ResolveFileAction(ctx, job.ConnectorID, job.ID, f.DocumentType)
		if err != nil {
			failed = append(failed, fmt.Errorf("failed to resolve action for file %s: %w", f.ID, err))
			continue
		}
		if err := e.applyAction(ctx, f, job, action); err != nil {
			if errors.Is(err, core.ErrSkipProcessing) {
				e.deps.Logger.Info("file skipped by action",
					"file_id", f.ID, "action", action)
				continue
			}
			e.deps.Logger.Warn("file action failed",
				"file_id", f.ID, "action", action, "error", err)
			f.ProcessingFailed = true
			f.UpdatedAt = e.deps.Clock.Now()
			if saveErr := e.deps.Files.UpdateFile(ctx, f); saveErr != nil {
				failed = append(failed, saveErr)
			}
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("post-processing failed for run %s: %w", r.ID, errors.Join(failed...))
	}
	return nil
}

func (e *Engine) applyAction(ctx context.Context, f *core.DiscoveredFile, job *core.Job, action core.FileAction) error {
	switch action {
	case core.ActionNone:
		return nil
	case core.ActionPiqUpload:
		return e.uploadToPIQ(ctx, f, job, nil)
	case core.ActionPiqEDIUpload:
		parser := job.PropString(core.PropEDIParser, "")
		if parser == "" {
			return core.ErrSkipProcessing
		}
		return e.uploadToPIQ(ctx, f, job, map[string]any{"parser": parser})
	case core.ActionPaymentsEDIUpld:
		return e.postPaymentsEDI(ctx, f)
	default:
		return fmt.Errorf("unknown file action %q for file %s", action, f.ID)
	}
}

// uploadToPIQ pushes the file's blob through the signed-URL flow and
// registers it as an invoice container. A 409 on registration means
// the container already exists and is not a failure.
func (e *Engine) uploadToPIQ(ctx context.Context, f *core.DiscoveredFile, job *core.Job, props map[string]any) error {
	body, err := e.readBlob(ctx, f)
	if err != nil {
		return err
	}

	signed, err := e.deps.Core.SignUploadURL(ctx, f.RunID, f.OriginalFilename)
	if err != nil {
		return fmt.Errorf("failed to sign upload for file %s: %w", f.ID, err)
	}
	if err := e.putWithRetry(ctx, signed.URL, body); err != nil {
		return fmt.Errorf("failed to upload file %s: %w", f.ID, err)
	}

	resp, err := e.deps.Core.CreateInvoice(ctx, f.RunID, &piq.CreateInvoiceRequest{
		UploadID:     signed.UploadID,
		Filename:     f.OriginalFilename,
		RestaurantID: e.resolveLocation(ctx, f, job),
		Properties:   props,
	})
	if err != nil {
		return fmt.Errorf("failed to register file %s as invoice: %w", f.ID, err)
	}
	if resp.Duplicate {
		e.deps.Logger.Info("invoice container already exists downstream", "file_id", f.ID)
	}

	f.UploadID = &signed.UploadID
	if resp.ContainerID != "" {
		f.ContainerID = &resp.ContainerID
	}
	f.UpdatedAt = e.deps.Clock.Now()
	return e.deps.Files.UpdateFile(ctx, f)
}

// postPaymentsEDI hands the file's metadata to the payments EDI
// pipeline. Skipped when no endpoint is configured.
func (e *Engine) postPaymentsEDI(ctx context.Context, f *core.DiscoveredFile) error {
	if e.deps.PaymentsEDIURL == "" {
		return core.ErrSkipProcessing
	}
	payload, err := json.Marshal(map[string]any{
		"file_id":       f.ID,
		"run_id":        f.RunID,
		"filename":      f.OriginalFilename,
		"content_ref":   f.ContentRef,
		"document_type": f.DocumentType,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.deps.PaymentsEDIURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := uploadClient.Do(req)
	if err != nil {
		return fmt.Errorf("payments EDI hand-off failed for file %s: %w", f.ID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("payments EDI hand-off for file %s returned %d", f.ID, resp.StatusCode)
	}
	return nil
}

func (e *Engine) readBlob(ctx context.Context, f *core.DiscoveredFile) ([]byte, error) {
	rc, err := e.deps.Blobs.Get(ctx, f.BlobKey())
	if err != nil {
		return nil, fmt.Errorf("failed to open content of file %s: %w", f.ID, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read content of file %s: %w", f.ID, err)
	}
	return body, nil
}

func (e *Engine) putWithRetry(ctx context.Context, url string, body []byte) error {
	var lastErr error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		resp, err := uploadClient.Do(req)
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("upload returned %d", resp.StatusCode)
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return lastErr
}

// resolveLocation maps the file's location text to a downstream id
// through the job's mapping table, falling back to the configured
// unknown-location id.
func (e *Engine) resolveLocation(ctx context.Context, f *core.DiscoveredFile, job *core.Job) string {
	text := f.DocumentProps.String("location", "")
	if text == "" {
		return e.deps.UnknownLocationID
	}
	m, err := e.deps.Jobs.GetMapping(ctx, job.ID, core.EntityLocation, text)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			e.deps.Logger.Warn("location mapping lookup failed",
				"file_id", f.ID, "location", text, "error", err)
		}
		return e.deps.UnknownLocationID
	}
	if m.Override != nil && *m.Override != "" {
		return *m.Override
	}
	if m.InternalID != nil && *m.InternalID != "" {
		return *m.InternalID
	}
	return e.deps.UnknownLocationID
}
