package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dataset-attach/agent/internal/backend"
	"github.com/dataset-attach/agent/internal/dataset"
	"github.com/dataset-attach/agent/internal/notify"
	"github.com/dataset-attach/agent/internal/record"
	"github.com/dataset-attach/agent/internal/testutil"
)

func newTestHandler(t *testing.T) (*Handler, *testutil.FakeBackend) {
	t.Helper()

	fb := testutil.NewFakeBackend()
	t.Cleanup(fb.Close)

	client, err := backend.New(backend.Options{BaseURL: fb.URL(), Timeout: 5 * time.Second})
	require.NoError(t, err)
	records, err := record.NewStore(t.TempDir())
	require.NoError(t, err)

	notifier := notify.NewNotifier()
	notifier.SetDismissAfter(time.Hour)
	manager := dataset.NewManager(client, records, notifier, nil)
	manager.AutoDescribeDelay = time.Hour
	manager.SetSessionID("sess-1")
	t.Cleanup(manager.Close)

	return NewHandler(manager, notifier, "test"), fb
}

func multipartFile(t *testing.T, fieldValues map[string]string, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for k, v := range fieldValues {
		writer.WriteField(k, v)
	}
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	part.Write(content)
	writer.Close()
	return body, writer.FormDataContentType()
}

func TestHandleHealth(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if assert.NoError(t, h.HandleHealth(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	}
}

func TestHandleSelectFile(t *testing.T) {
	e := echo.New()
	h, fb := newTestHandler(t)

	body, contentType := multipartFile(t, map[string]string{"isNewDataset": "true"},
		"sales.csv", []byte("a,b\n1,2\n"))
	req := httptest.NewRequest(http.MethodPost, "/api/dataset/select", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if assert.NoError(t, h.HandleSelectFile(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"success"`)
		assert.Contains(t, rec.Body.String(), `"sales.csv"`)
	}
	assert.Equal(t, 1, fb.CallCount("/upload_dataframe"))
}

func TestHandleSelectFile_MissingPart(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/dataset/select", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.HandleSelectFile(c)
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestHandleSelectFile_UnsupportedFormat(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	body, contentType := multipartFile(t, nil, "report.pdf", []byte("%PDF"))
	req := httptest.NewRequest(http.MethodPost, "/api/dataset/select", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.HandleSelectFile(c)
	require.Error(t, err)

	ErrorHandler(err, c)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNSUPPORTED_FORMAT")
	assert.Contains(t, rec.Body.String(), "report.pdf", "response names the rejected file")
}

func TestHandleConfirmSheet(t *testing.T) {
	e := echo.New()
	h, fb := newTestHandler(t)
	fb.Sheets = []string{"Sheet1", "Sheet2"}

	body, contentType := multipartFile(t, nil, "book.xlsx", []byte("wb"))
	req := httptest.NewRequest(http.MethodPost, "/api/dataset/select", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	require.NoError(t, h.HandleSelectFile(e.NewContext(req, rec)))
	assert.Contains(t, rec.Body.String(), `"awaiting_sheet"`)

	req = httptest.NewRequest(http.MethodPost, "/api/dataset/sheet",
		bytes.NewBufferString(`{"sheetName":"Sheet2"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if assert.NoError(t, h.HandleConfirmSheet(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"selectedSheet":"Sheet2"`)
	}
}

func TestHandleConfirmSheet_NoUpload(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/dataset/sheet",
		bytes.NewBufferString(`{"sheetName":"Sheet1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.HandleConfirmSheet(c)
	require.Error(t, err)

	ErrorHandler(err, c)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_UPLOAD_STATE")
}

func TestHandleCommit(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	body, contentType := multipartFile(t, nil, "sales.csv", []byte("a,b\n1,2\n"))
	req := httptest.NewRequest(http.MethodPost, "/api/dataset/select", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	require.NoError(t, h.HandleSelectFile(e.NewContext(req, httptest.NewRecorder())))

	req = httptest.NewRequest(http.MethodPost, "/api/dataset/commit",
		bytes.NewBufferString(`{"name":"Sales","description":"Q1 sales"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if assert.NoError(t, h.HandleCommit(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"successBanner":true`)
	}
}

func TestHandleCommit_MissingMetadata(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/dataset/commit",
		bytes.NewBufferString(`{"name":"","description":""}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.HandleCommit(c)
	require.Error(t, err)

	ErrorHandler(err, c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSetAndGenerateDescription(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/dataset/description",
		bytes.NewBufferString(`{"name":"Sales","description":"my words"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h.HandleSetDescription(e.NewContext(req, rec)))
	assert.Contains(t, rec.Body.String(), `"my words"`)

	req = httptest.NewRequest(http.MethodPost, "/api/dataset/description/generate", nil)
	rec = httptest.NewRecorder()
	require.NoError(t, h.HandleGenerateDescription(e.NewContext(req, rec)))
	assert.Contains(t, rec.Body.String(), "Auto-generated description")
}

func TestHandleSessionChanged(t *testing.T) {
	e := echo.New()
	h, fb := newTestHandler(t)
	fb.SetCustom(true, "Mystery", "")

	req := httptest.NewRequest(http.MethodPost, "/api/session/changed",
		bytes.NewBufferString(`{"sessionId":"sess-2"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if assert.NoError(t, h.HandleSessionChanged(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"unknown_custom"`)
	}
}

func TestHandleResolveMismatch(t *testing.T) {
	e := echo.New()
	h, fb := newTestHandler(t)
	fb.SetCustom(true, "Mystery", "")

	req := httptest.NewRequest(http.MethodPost, "/api/session/changed",
		bytes.NewBufferString(`{"sessionId":"sess-2"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	require.NoError(t, h.HandleSessionChanged(e.NewContext(req, httptest.NewRecorder())))

	req = httptest.NewRequest(http.MethodPost, "/api/dataset/resolve",
		bytes.NewBufferString(`{"keepCustom":false}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if assert.NoError(t, h.HandleResolveMismatch(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), `"mismatch"`)
	}
}

func TestHandleGetStateMsgpack(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/dataset/state/msgpack", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, h.HandleGetStateMsgpack(c))
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

	var snap dataset.Snapshot
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "sess-1", snap.SessionID)
}

func TestHandlePreviewDefault(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/dataset/default/preview", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if assert.NoError(t, h.HandlePreviewDefault(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"Housing"`)
	}
}

func TestHandleDismissNotice(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)
	h.notifier.Publish(notify.KindInvalidFormat, "bad file", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/notice/dismiss", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, h.HandleDismissNotice(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, h.notifier.Current())
}

func TestErrorHandler_UpstreamFailure(t *testing.T) {
	e := echo.New()
	h, fb := newTestHandler(t)
	fb.FailWith("/default-dataset", http.StatusInternalServerError,
		map[string]interface{}{"detail": "unavailable"})

	req := httptest.NewRequest(http.MethodGet, "/api/dataset/default/preview", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.HandlePreviewDefault(c)
	require.Error(t, err)

	ErrorHandler(err, c)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "BACKEND_ERROR")
}
