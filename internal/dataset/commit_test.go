package dataset_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataset-attach/agent/internal/dataset"
	"github.com/dataset-attach/agent/internal/models"
	"github.com/dataset-attach/agent/internal/notify"
)

func TestCommit_RequiresMetadata(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.m.BeginUpload(context.Background(), csvHandle("sales.csv"), true))
	uploadsBefore := e.fb.CallCount("/upload_dataframe")

	cases := []models.DatasetDescription{
		{Name: "", Description: "has description"},
		{Name: "Sales", Description: ""},
		{Name: "Sales", Description: "   "},
		{Name: "Sales", Description: models.GeneratingDescription},
	}
	for _, d := range cases {
		err := e.m.Commit(context.Background(), d)
		assert.ErrorIs(t, err, dataset.ErrMissingMetadata)
	}

	assert.Equal(t, uploadsBefore, e.fb.CallCount("/upload_dataframe"),
		"refused commits must not reach the network")
	snap := e.m.State()
	require.NotNil(t, snap.Notification)
	assert.Equal(t, notify.KindMissingMetadata, snap.Notification.Kind)
	assert.True(t, snap.Notification.Blocking)
}

func TestCommit_CSV(t *testing.T) {
	e := newEnv(t)
	e.m.BannerDelay = 30 * time.Millisecond
	require.NoError(t, e.m.BeginUpload(context.Background(), csvHandle("sales.csv"), true))

	err := e.m.Commit(context.Background(), models.DatasetDescription{
		Name: "Sales", Description: "Q1 sales by region",
	})
	require.NoError(t, err)

	rec := e.fb.LastUpload()
	require.NotNil(t, rec)
	assert.Equal(t, "/upload_dataframe", rec.Endpoint)
	assert.Equal(t, "Sales", rec.Name)
	assert.Equal(t, "Q1 sales by region", rec.Description)

	snap := e.m.State()
	require.NotNil(t, snap.Upload)
	assert.Equal(t, models.UploadStatusSuccess, snap.Upload.Status)
	assert.Nil(t, snap.Preview, "the preview dialog closes on commit")
	assert.Equal(t, "Sales", snap.Description.Name)
	assert.True(t, snap.SuccessBanner)

	stored, err := e.records.Load()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "sales.csv", stored.Name)
	assert.Equal(t, "text/csv", stored.DeclaredType)

	waitFor(t, time.Second, func() bool {
		return !e.m.State().SuccessBanner
	}, "the success banner expires")
}

func TestCommit_SpreadsheetRecordsTabularIdentity(t *testing.T) {
	e := newEnv(t)
	e.fb.Sheets = []string{"Sheet1", "Sheet2"}
	require.NoError(t, e.m.BeginUpload(context.Background(), xlsxHandle("book.xlsx"), true))
	require.NoError(t, e.m.ConfirmSheet(context.Background(), "Sheet2"))

	err := e.m.Commit(context.Background(), models.DatasetDescription{
		Name: "Book", Description: "Monthly figures",
	})
	require.NoError(t, err)

	rec := e.fb.LastUpload()
	require.NotNil(t, rec)
	assert.Equal(t, "/upload_excel", rec.Endpoint)
	assert.Equal(t, "Sheet2", rec.SheetName)

	stored, err := e.records.Load()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "book.csv", stored.Name, "the committed sheet lives on as tabular data")
	assert.Equal(t, "text/csv", stored.DeclaredType)
	assert.True(t, stored.IsSpreadsheet)
	assert.Equal(t, "Sheet2", stored.SelectedSheet)
}

func TestCommit_StaleHandle(t *testing.T) {
	e := newEnv(t)
	// A restored placeholder has no file bytes to re-upload.
	savedRecord(t, e, "sales.csv")
	e.fb.SetCustom(true, "sales.csv", "old description")
	require.NoError(t, e.m.Reconcile(context.Background(), "sess-2"))

	uploadsBefore := e.fb.CallCount("/upload_dataframe") + e.fb.CallCount("/upload_excel")
	err := e.m.Commit(context.Background(), models.DatasetDescription{
		Name: "Sales", Description: "new description",
	})
	assert.ErrorIs(t, err, dataset.ErrStaleHandle)

	after := e.fb.CallCount("/upload_dataframe") + e.fb.CallCount("/upload_excel")
	assert.Equal(t, uploadsBefore, after, "stale handles never reach an upload endpoint")

	snap := e.m.State()
	require.NotNil(t, snap.Notification)
	assert.Equal(t, notify.KindStaleHandle, snap.Notification.Kind)
	assert.True(t, snap.Notification.Blocking)
}

func TestCommit_DefaultDatasetUpdatesInPlace(t *testing.T) {
	e := newEnv(t)
	e.m.BannerDelay = time.Hour

	err := e.m.Commit(context.Background(), models.DatasetDescription{
		Name: "Housing", Description: "Boston housing, cleaned",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, e.fb.CallCount("/update-session-dataset"))
	assert.Zero(t, e.fb.CallCount("/upload_dataframe"))

	snap := e.m.State()
	assert.True(t, snap.SuccessBanner)
	assert.Equal(t, "Boston housing, cleaned", snap.Description.Description)
}

func TestCommit_UploadFailureIsBlocking(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.m.BeginUpload(context.Background(), csvHandle("sales.csv"), true))
	e.fb.FailWith("/upload_dataframe", http.StatusInternalServerError,
		map[string]interface{}{"detail": "storage full"})

	err := e.m.Commit(context.Background(), models.DatasetDescription{
		Name: "Sales", Description: "Q1 sales",
	})
	require.Error(t, err)

	snap := e.m.State()
	require.NotNil(t, snap.Notification)
	assert.Equal(t, notify.KindCommitFailed, snap.Notification.Kind)
	assert.True(t, snap.Notification.Blocking)
	assert.False(t, snap.SuccessBanner)

	stored, err := e.records.Load()
	require.NoError(t, err)
	assert.Nil(t, stored, "a failed commit must not persist a record")
}

func TestPreviewDefault(t *testing.T) {
	e := newEnv(t)

	preview, err := e.m.PreviewDefault(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Housing", preview.Name)
	assert.Equal(t, []string{"crim", "zn"}, preview.Headers)

	snap := e.m.State()
	require.NotNil(t, snap.Preview)
	assert.Equal(t, "sess-default", snap.SessionID)
	assert.Equal(t, "Housing", snap.Description.Name)
}

func TestPreviewDefault_FailureLeavesStateAlone(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.m.BeginUpload(context.Background(), csvHandle("sales.csv"), true))
	before := e.m.State()

	e.fb.FailWith("/default-dataset", http.StatusInternalServerError,
		map[string]interface{}{"error": "unavailable"})
	_, err := e.m.PreviewDefault(context.Background())
	require.Error(t, err)

	snap := e.m.State()
	require.NotNil(t, snap.Upload)
	assert.Equal(t, before.Upload.Name, snap.Upload.Name)
	assert.Equal(t, before.Description, snap.Description)
}

func TestUploadDiagnostics(t *testing.T) {
	e := newEnv(t)
	e.fb.UploadStats = []map[string]interface{}{
		{"upload_id": "u-9", "status": "processed", "row_count": 120},
	}

	stats, err := e.m.UploadDiagnostics(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "u-9", stats[0].UploadID)
	assert.Equal(t, 120, stats[0].RowCount)
}
