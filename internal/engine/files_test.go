package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/integrator/internal/adapters"
	"github.com/sevigo/integrator/internal/core"
)

func writeTempFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func discovery(name string, format core.FileFormat) adapters.Discovery {
	return adapters.Discovery{
		ReferenceCode:    "REF-" + name,
		OriginalFilename: name,
		FileFormat:       format,
		DocumentType:     core.DocInvoice,
	}
}

func saveDiscovery(t *testing.T, h *harness, job *core.Job, run *core.Run, d adapters.Discovery, content []byte) (*core.DiscoveredFile, error) {
	t.Helper()
	if content != nil {
		d.LocalPath = writeTempFile(t, t.TempDir(), d.OriginalFilename, content)
	}
	f := h.engine.BuildUnique(run, job, d)
	err := h.engine.SaveContent(context.Background(), f, d.LocalPath, d.FileFormat == core.FormatPDF)
	return f, err
}

func TestSaveContentStoresRowAndBlob(t *testing.T) {
	h := newHarness(t, nil)
	job := testJob("testconn")
	run := testRun(core.CapInvoiceDownload)

	f, err := saveDiscovery(t, h, job, run, discovery("inv.csv", core.FormatCSV), []byte("a,b\n1,2\n"))
	require.NoError(t, err)

	assert.Len(t, f.ContentHash, 40)
	assert.True(t, f.Downloaded.IsTrue())
	require.NotNil(t, f.ContentRef)
	assert.Equal(t, f.BlobKey(), *f.ContentRef)
	assert.Contains(t, h.blobs.blobs, f.BlobKey())
}

func TestSaveContentDuplicateHashIsAlreadyExists(t *testing.T) {
	h := newHarness(t, nil)
	job := testJob("testconn")
	run := testRun(core.CapInvoiceDownload)
	content := []byte("identical bytes")

	_, err := saveDiscovery(t, h, job, run, discovery("first.csv", core.FormatCSV), content)
	require.NoError(t, err)

	_, err = saveDiscovery(t, h, job, run, discovery("second.csv", core.FormatCSV), content)
	require.ErrorIs(t, err, core.ErrAlreadyExists)
}

func TestSaveContentJSONCanonicalisation(t *testing.T) {
	h := newHarness(t, nil)
	job := testJob("testconn")
	run := testRun(core.CapInvoiceDownload)

	// Same payload, different key order and a different generated meta
	// block: the second download must collide with the first.
	first := []byte(`{"invoice":{"number":"42","total":"10.00"},"meta":{"generator":{"execution_id":"aaa","at":"2024-01-01"}}}`)
	second := []byte(`{"meta":{"generator":{"at":"2024-02-02","execution_id":"bbb"}},"invoice":{"total":"10.00","number":"42"}}`)

	_, err := saveDiscovery(t, h, job, run, discovery("a.json", core.FormatJSON), first)
	require.NoError(t, err)

	_, err = saveDiscovery(t, h, job, run, discovery("b.json", core.FormatJSON), second)
	require.ErrorIs(t, err, core.ErrAlreadyExists)
}

func TestSaveContentJSONMetaKeptWithoutExecutionID(t *testing.T) {
	h := newHarness(t, nil)
	job := testJob("testconn")
	run := testRun(core.CapInvoiceDownload)

	// meta without generator.execution_id is payload, not noise.
	first := []byte(`{"invoice":"42","meta":{"note":"x"}}`)
	second := []byte(`{"invoice":"42","meta":{"note":"y"}}`)

	_, err := saveDiscovery(t, h, job, run, discovery("a.json", core.FormatJSON), first)
	require.NoError(t, err)

	_, err = saveDiscovery(t, h, job, run, discovery("b.json", core.FormatJSON), second)
	require.NoError(t, err, "different meta payloads must not collide")
}

func TestSaveContentInvalidJSONHashesRawBytes(t *testing.T) {
	h := newHarness(t, nil)
	job := testJob("testconn")
	run := testRun(core.CapInvoiceDownload)

	f, err := saveDiscovery(t, h, job, run, discovery("broken.json", core.FormatJSON), []byte("{not json"))
	require.NoError(t, err)
	assert.Equal(t, sha1hex([]byte("{not json")), f.ContentHash)
}

func TestSaveContentPDFTextHash(t *testing.T) {
	tests := []struct {
		name     string
		text     []byte
		wantHash string
	}{
		{"regular text", []byte("Invoice 42 total 10.00"), sha1hex([]byte("Invoice 42 total 10.00"))},
		{"empty page sentinel", []byte{0x0C, 0x0C}, ""},
		{"double empty page sentinel", []byte{0x0C, 0x0C, 0x0C, 0x0C}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.engine.deps.Extractor = &fakeExtractor{text: tt.text}
			job := testJob("testconn")
			run := testRun(core.CapInvoiceDownload)

			f, err := saveDiscovery(t, h, job, run, discovery(tt.name+".pdf", core.FormatPDF), []byte("%PDF "+tt.name))
			require.NoError(t, err)
			require.NotNil(t, f.ExtractedTextHash)
			assert.Equal(t, tt.wantHash, *f.ExtractedTextHash)
		})
	}
}

func TestSaveContentExtractionFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.deps.Extractor = &fakeExtractor{err: os.ErrPermission}
	job := testJob("testconn")
	run := testRun(core.CapInvoiceDownload)

	f, err := saveDiscovery(t, h, job, run, discovery("inv.pdf", core.FormatPDF), []byte("%PDF broken"))
	require.NoError(t, err)
	assert.Nil(t, f.ExtractedTextHash)
}

func TestSaveContentObservedOnlyFile(t *testing.T) {
	h := newHarness(t, nil)
	job := testJob("testconn")
	run := testRun(core.CapInvoiceDownload)

	f, err := saveDiscovery(t, h, job, run, discovery("seen.pdf", core.FormatPDF), nil)
	require.NoError(t, err)
	assert.True(t, f.Downloaded.IsFalse())
	assert.NotEmpty(t, f.ContentHash)
	assert.Empty(t, h.blobs.blobs)

	// The same remote file observed again dedupes on its identity.
	_, err = saveDiscovery(t, h, job, run, discovery("seen.pdf", core.FormatPDF), nil)
	require.ErrorIs(t, err, core.ErrAlreadyExists)
}

func TestRecordEntityDeduplicatesWithinRun(t *testing.T) {
	h := newHarness(t, nil)
	run := testRun(core.CapAccountingImportAll)

	payload := map[string]string{"name": "ACME Corp"}
	require.NoError(t, h.engine.RecordEntity(context.Background(), run, core.EntityVendor, "v-1", payload))
	err := h.engine.RecordEntity(context.Background(), run, core.EntityVendor, "v-1", payload)
	require.ErrorIs(t, err, core.ErrAlreadyExists)

	require.Len(t, h.entities.entities, 1)
	assert.JSONEq(t, `{"name":"ACME Corp"}`, string(h.entities.entities[0].Payload))
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	a, err := canonicalJSON([]byte(`{"b":2,"a":1}`))
	require.NoError(t, err)
	b, err := canonicalJSON([]byte(`{"a":1,"b":2}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
