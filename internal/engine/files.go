package engine

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sevigo/integrator/internal/adapters"
	"github.com/sevigo/integrator/internal/core"
)

// Empty-page output of the text extractor: one or two form feeds and
// nothing else. Such PDFs hash to the empty string so scanned blanks
// dedupe against each other.
var emptyPageSentinels = [][]byte{
	{0x0C, 0x0C},
	{0x0C, 0x0C, 0x0C, 0x0C},
}

// BuildUnique returns an unsaved DiscoveredFile bound to the Run. The
// caller persists it through SaveContent.
func (e *Engine) BuildUnique(r *core.Run, job *core.Job, d adapters.Discovery) *core.DiscoveredFile {
	now := e.deps.Clock.Now()
	return &core.DiscoveredFile{
		ID:               core.NewID(core.PrefixFile),
		RunID:            r.ID,
		ConnectorID:      job.ConnectorID,
		ReferenceCode:    d.ReferenceCode,
		OriginalFilename: d.OriginalFilename,
		OriginalURL:      d.OriginalURL,
		FileFormat:       d.FileFormat,
		DocumentType:     d.DocumentType,
		DocumentProps:    d.DocumentProps,
		Downloaded:       core.TriUnknown,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// SaveContent hashes the downloaded file, persists the row and copies
// the content into the blob store. A hash collision with an existing
// row surfaces as core.ErrAlreadyExists and leaves no trace. An empty
// localPath records an observed-only file keyed by its remote identity.
func (e *Engine) SaveContent(ctx context.Context, f *core.DiscoveredFile, localPath string, computeTextHash bool) error {
	if localPath == "" {
		f.Downloaded = core.TriFalse
		f.ContentHash = sha1hex([]byte(f.ConnectorID + "|" + f.ReferenceCode + "|" + f.OriginalFilename))
		return e.deps.Files.CreateFile(ctx, f)
	}

	raw, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read %s for file %s: %w", localPath, f.ID, err)
	}

	hashed := raw
	if f.FileFormat == core.FormatJSON {
		if canonical, err := canonicalJSON(raw); err != nil {
			e.deps.Logger.Warn("file is not valid JSON, hashing raw bytes",
				"file_id", f.ID, "error", err)
		} else {
			hashed = canonical
		}
	}
	f.ContentHash = sha1hex(hashed)

	if computeTextHash && f.FileFormat == core.FormatPDF && e.deps.Extractor != nil {
		e.attachTextHash(ctx, f, localPath)
	}

	now := e.deps.Clock.Now()
	f.Downloaded = core.TriTrue
	f.DownloadedAt = &now
	if err := e.deps.Files.CreateFile(ctx, f); err != nil {
		return err
	}

	if err := e.storeBlob(ctx, f, raw); err != nil {
		return err
	}
	return nil
}

// attachTextHash sets extracted_text_hash from the extractor output.
// Extraction failures are logged and never propagated.
func (e *Engine) attachTextHash(ctx context.Context, f *core.DiscoveredFile, localPath string) {
	text, err := e.deps.Extractor.Extract(ctx, localPath)
	if err != nil {
		e.deps.Logger.Warn("text extraction failed", "file_id", f.ID, "error", err)
		return
	}
	hash := ""
	if !isEmptyPage(text) {
		hash = sha1hex(text)
	}
	f.ExtractedTextHash = &hash
}

func (e *Engine) storeBlob(ctx context.Context, f *core.DiscoveredFile, raw []byte) error {
	key := f.BlobKey()
	if err := e.deps.Blobs.Put(ctx, key, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to store content of file %s: %w", f.ID, err)
	}
	f.ContentRef = &key
	f.UpdatedAt = e.deps.Clock.Now()
	return e.deps.Files.UpdateFile(ctx, f)
}

// RecordEntity stores one master-data observation for the Run.
func (e *Engine) RecordEntity(ctx context.Context, r *core.Run, entityType core.EntityType, sourceID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s entity %s: %w", entityType, sourceID, err)
	}
	return e.deps.Entities.CreateEntity(ctx, &core.DiscoveredEntity{
		ID:             core.NewID(core.PrefixEntity),
		RunID:          r.ID,
		EntityType:     entityType,
		SourceEntityID: sourceID,
		Payload:        body,
		CreatedAt:      e.deps.Clock.Now(),
	})
}

func isEmptyPage(text []byte) bool {
	for _, s := range emptyPageSentinels {
		if bytes.Equal(text, s) {
			return true
		}
	}
	return false
}

// canonicalJSON re-serialises a JSON document with stable key ordering.
// Generated documents carry a volatile meta block (execution id,
// timestamps); it is dropped so re-downloads of the same payload hash
// identically.
func canonicalJSON(raw []byte) ([]byte, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if obj, ok := doc.(map[string]any); ok && hasGeneratorExecutionID(obj) {
		delete(obj, "meta")
	}
	return json.Marshal(doc)
}

func hasGeneratorExecutionID(obj map[string]any) bool {
	meta, ok := obj["meta"].(map[string]any)
	if !ok {
		return false
	}
	generator, ok := meta["generator"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = generator["execution_id"]
	return ok
}

func sha1hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}
