package engine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/piq"
	"github.com/sevigo/integrator/mocks"
)

func TestProcessFilesStandardUpload(t *testing.T) {
	ctrl := gomock.NewController(t)
	coreClient := mocks.NewMockCoreClient(ctrl)
	h := newHarness(t, coreClient)
	job := testJob("testconn")
	run := testRun(core.CapInvoiceDownload)
	h.jobs.actions[core.DocInvoice] = core.ActionPiqUpload
	internalID := "loc_internal_9"
	h.jobs.mappings["Store 9"] = &core.PIQMapping{
		JobID: job.ID, Entity: core.EntityLocation, MappingText: "Store 9", InternalID: &internalID,
	}

	var uploaded []byte
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		uploaded, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	d := discovery("inv.csv", core.FormatCSV)
	d.DocumentProps = core.PropMap{"location": "Store 9"}
	content := []byte("a,b\n1,2\n")
	f, err := saveDiscovery(t, h, job, run, d, content)
	require.NoError(t, err)

	coreClient.EXPECT().
		SignUploadURL(gomock.Any(), run.ID, "inv.csv").
		Return(&piq.SignedUpload{URL: upstream.URL, UploadID: "up_1"}, nil)
	coreClient.EXPECT().
		CreateInvoice(gomock.Any(), run.ID, gomock.AssignableToTypeOf(&piq.CreateInvoiceRequest{})).
		DoAndReturn(func(_ context.Context, _ string, req *piq.CreateInvoiceRequest) (*piq.CreateInvoiceResponse, error) {
			assert.Equal(t, "up_1", req.UploadID)
			assert.Equal(t, internalID, req.RestaurantID)
			return &piq.CreateInvoiceResponse{ContainerID: "cont_1"}, nil
		})

	require.NoError(t, h.engine.ProcessFiles(context.Background(), run, job))

	assert.Equal(t, content, uploaded)
	saved := h.files.byID[f.ID]
	require.NotNil(t, saved.UploadID)
	assert.Equal(t, "up_1", *saved.UploadID)
	require.NotNil(t, saved.ContainerID)
	assert.Equal(t, "cont_1", *saved.ContainerID)
	assert.False(t, saved.ProcessingFailed)
}

func TestProcessFilesDuplicateContainerIsNotAFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	coreClient := mocks.NewMockCoreClient(ctrl)
	h := newHarness(t, coreClient)
	job := testJob("testconn")
	run := testRun(core.CapInvoiceDownload)
	h.jobs.actions[core.DocInvoice] = core.ActionPiqUpload
	h.engine.deps.UnknownLocationID = "loc_unknown"

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	f, err := saveDiscovery(t, h, job, run, discovery("inv.csv", core.FormatCSV), []byte("x"))
	require.NoError(t, err)

	coreClient.EXPECT().
		SignUploadURL(gomock.Any(), run.ID, "inv.csv").
		Return(&piq.SignedUpload{URL: upstream.URL, UploadID: "up_1"}, nil)
	coreClient.EXPECT().
		CreateInvoice(gomock.Any(), run.ID, gomock.AssignableToTypeOf(&piq.CreateInvoiceRequest{})).
		DoAndReturn(func(_ context.Context, _ string, req *piq.CreateInvoiceRequest) (*piq.CreateInvoiceResponse, error) {
			assert.Equal(t, "loc_unknown", req.RestaurantID, "unmapped location falls back")
			return &piq.CreateInvoiceResponse{Duplicate: true}, nil
		})

	require.NoError(t, h.engine.ProcessFiles(context.Background(), run, job))
	assert.False(t, h.files.byID[f.ID].ProcessingFailed)
}

func TestProcessFilesEDIUploadWithoutParserIsSkipped(t *testing.T) {
	h := newHarness(t, nil)
	job := testJob("testconn")
	run := testRun(core.CapInvoiceDownload)
	h.jobs.actions[core.DocInvoice] = core.ActionPiqEDIUpload

	f, err := saveDiscovery(t, h, job, run, discovery("inv.csv", core.FormatCSV), []byte("x"))
	require.NoError(t, err)

	require.NoError(t, h.engine.ProcessFiles(context.Background(), run, job))
	assert.False(t, h.files.byID[f.ID].ProcessingFailed, "skipped files are not failures")
}

func TestProcessFilesPaymentsEDIHandOff(t *testing.T) {
	h := newHarness(t, nil)
	job := testJob("testconn")
	run := testRun(core.CapPaymentImportInfo)
	h.jobs.actions[core.DocPaymentRemit] = core.ActionPaymentsEDIUpld

	var posted []byte
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		posted, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer upstream.Close()
	h.engine.deps.PaymentsEDIURL = upstream.URL

	d := discovery("remit.edi", core.FormatCSV)
	d.DocumentType = core.DocPaymentRemit
	f, err := saveDiscovery(t, h, job, run, d, []byte("ISA*00*"))
	require.NoError(t, err)

	require.NoError(t, h.engine.ProcessFiles(context.Background(), run, job))
	assert.Contains(t, string(posted), f.ID)
}

func TestProcessFilesFailureMarksFileAndAggregates(t *testing.T) {
	ctrl := gomock.NewController(t)
	coreClient := mocks.NewMockCoreClient(ctrl)
	h := newHarness(t, coreClient)
	job := testJob("testconn")
	run := testRun(core.CapInvoiceDownload)
	h.jobs.actions[core.DocInvoice] = core.ActionPiqUpload

	f, err := saveDiscovery(t, h, job, run, discovery("inv.csv", core.FormatCSV), []byte("x"))
	require.NoError(t, err)

	coreClient.EXPECT().
		SignUploadURL(gomock.Any(), run.ID, "inv.csv").
		Return(nil, core.NewError(core.CodeExternalUnavailable, "core is down"))

	err = h.engine.ProcessFiles(context.Background(), run, job)
	require.Error(t, err)
	assert.True(t, h.files.byID[f.ID].ProcessingFailed)
}
