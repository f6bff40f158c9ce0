// Package testutil provides a scripted in-process stand-in for the remote
// analytics backend, used by client and state-machine tests.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// UploadRecord captures one upload accepted by the fake backend.
type UploadRecord struct {
	Endpoint    string
	FileName    string
	Size        int64
	Name        string
	Description string
	SheetName   string
	SessionID   string
}

// Failure scripts a non-2xx response for one endpoint path.
type Failure struct {
	Status int
	Body   interface{} // marshalled as the JSON response body
}

// FakeBackend implements the analytics API surface over httptest. State is
// per-instance; tests configure responses through exported fields and
// inspect traffic through the request log.
type FakeBackend struct {
	mu     sync.Mutex
	server *httptest.Server

	// Scripted state.
	Sheets          []string
	NextSessionID   string
	NextUploadID    string
	PreviewHeaders  []string
	PreviewRows     [][]string
	DefaultName     string
	DefaultDesc     string
	DefaultHeaders  []string
	DefaultRows     [][]string
	DefaultSession  string
	GeneratedDesc   string
	DescribeDelay   time.Duration // artificial latency on description generation
	UploadStats     []map[string]interface{}
	ForcedInfo      map[string]interface{} // overrides session-info when set
	failures        map[string]Failure

	// Observed traffic.
	requests []string
	Uploads  []UploadRecord

	// Mutable backend-side session state.
	isCustom    bool
	datasetName string
	datasetDesc string
}

// NewFakeBackend starts the fake with sensible defaults.
func NewFakeBackend() *FakeBackend {
	fb := &FakeBackend{
		Sheets:         []string{"Sheet1"},
		NextSessionID:  "sess-fresh",
		NextUploadID:   "upload-1",
		PreviewHeaders: []string{"a", "b"},
		PreviewRows:    [][]string{{"1", "2"}},
		DefaultName:    "Housing",
		DefaultDesc:    "Boston housing dataset",
		DefaultHeaders: []string{"crim", "zn"},
		DefaultRows:    [][]string{{"0.1", "18"}},
		DefaultSession: "sess-default",
		GeneratedDesc:  "Auto-generated description",
		failures:       make(map[string]Failure),
	}

	e := echo.New()
	e.GET("/health", fb.handleHealth)
	e.POST("/reset-session", fb.handleReset)
	e.POST("/excel-sheets", fb.handleExcelSheets)
	e.POST("/upload_dataframe", fb.handleUpload("/upload_dataframe"))
	e.POST("/upload_excel", fb.handleUpload("/upload_excel"))
	e.POST("/preview-csv", fb.handlePreview)
	e.GET("/session-info", fb.handleSessionInfo)
	e.GET("/default-dataset", fb.handleDefaultDataset)
	e.POST("/create-dataset-description", fb.handleCreateDescription)
	e.POST("/update-session-dataset", fb.handleUpdateSession)
	e.GET("/dataset-uploads", fb.handleUploadStats)

	fb.server = httptest.NewServer(e)
	return fb
}

// URL returns the fake's base URL.
func (fb *FakeBackend) URL() string {
	return fb.server.URL
}

// Close shuts the fake down.
func (fb *FakeBackend) Close() {
	fb.server.Close()
}

// FailWith scripts path to answer with the given status and body until
// cleared.
func (fb *FakeBackend) FailWith(path string, status int, body interface{}) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.failures[path] = Failure{Status: status, Body: body}
}

// ClearFailure removes a scripted failure.
func (fb *FakeBackend) ClearFailure(path string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	delete(fb.failures, path)
}

// SetCustom sets the backend-side session dataset state directly.
func (fb *FakeBackend) SetCustom(isCustom bool, name, description string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.isCustom = isCustom
	fb.datasetName = name
	fb.datasetDesc = description
}

// CallCount returns how many requests hit the given path.
func (fb *FakeBackend) CallCount(path string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	count := 0
	for _, p := range fb.requests {
		if p == path {
			count++
		}
	}
	return count
}

// Requests returns the ordered request paths seen so far.
func (fb *FakeBackend) Requests() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.requests...)
}

// LastUpload returns the most recent accepted upload, or nil.
func (fb *FakeBackend) LastUpload() *UploadRecord {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.Uploads) == 0 {
		return nil
	}
	rec := fb.Uploads[len(fb.Uploads)-1]
	return &rec
}

func (fb *FakeBackend) record(c echo.Context) (Failure, bool) {
	path := c.Request().URL.Path
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.requests = append(fb.requests, path)
	failure, failed := fb.failures[path]
	return failure, failed
}

func (fb *FakeBackend) handleHealth(c echo.Context) error {
	if failure, failed := fb.record(c); failed {
		return c.JSON(failure.Status, failure.Body)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (fb *FakeBackend) handleReset(c echo.Context) error {
	if failure, failed := fb.record(c); failed {
		return c.JSON(failure.Status, failure.Body)
	}
	fb.mu.Lock()
	fb.isCustom = false
	fb.datasetName = ""
	fb.datasetDesc = ""
	fb.mu.Unlock()
	return c.NoContent(http.StatusOK)
}

func (fb *FakeBackend) handleExcelSheets(c echo.Context) error {
	if failure, failed := fb.record(c); failed {
		return c.JSON(failure.Status, failure.Body)
	}
	fb.mu.Lock()
	sheets := append([]string(nil), fb.Sheets...)
	fb.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]interface{}{"sheets": sheets})
}

func (fb *FakeBackend) handleUpload(endpoint string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if failure, failed := fb.record(c); failed {
			return c.JSON(failure.Status, failure.Body)
		}

		rec := UploadRecord{
			Endpoint:    endpoint,
			Name:        c.FormValue("name"),
			Description: c.FormValue("description"),
			SheetName:   c.FormValue("sheet_name"),
			SessionID:   c.Request().Header.Get("X-Session-ID"),
		}
		if fh, err := c.FormFile("file"); err == nil {
			rec.FileName = fh.Filename
			if src, err := fh.Open(); err == nil {
				n, _ := io.Copy(io.Discard, src)
				rec.Size = n
				src.Close()
			}
		}

		fb.mu.Lock()
		fb.Uploads = append(fb.Uploads, rec)
		fb.isCustom = true
		fb.datasetName = rec.Name
		fb.datasetDesc = rec.Description
		sessionID := fb.NextSessionID
		uploadID := fb.NextUploadID
		fb.mu.Unlock()

		return c.JSON(http.StatusOK, map[string]string{
			"session_id":        sessionID,
			"dataset_upload_id": uploadID,
		})
	}
}

func (fb *FakeBackend) handlePreview(c echo.Context) error {
	if failure, failed := fb.record(c); failed {
		return c.JSON(failure.Status, failure.Body)
	}
	fb.mu.Lock()
	resp := map[string]interface{}{
		"headers":     fb.PreviewHeaders,
		"rows":        fb.PreviewRows,
		"name":        fb.datasetName,
		"description": fb.datasetDesc,
	}
	fb.mu.Unlock()
	return c.JSON(http.StatusOK, resp)
}

func (fb *FakeBackend) handleSessionInfo(c echo.Context) error {
	if failure, failed := fb.record(c); failed {
		return c.JSON(failure.Status, failure.Body)
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.ForcedInfo != nil {
		return c.JSON(http.StatusOK, fb.ForcedInfo)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"is_custom_dataset":   fb.isCustom,
		"dataset_name":        fb.datasetName,
		"dataset_description": fb.datasetDesc,
	})
}

func (fb *FakeBackend) handleDefaultDataset(c echo.Context) error {
	if failure, failed := fb.record(c); failed {
		return c.JSON(failure.Status, failure.Body)
	}
	fb.mu.Lock()
	resp := map[string]interface{}{
		"headers":     fb.DefaultHeaders,
		"rows":        fb.DefaultRows,
		"name":        fb.DefaultName,
		"description": fb.DefaultDesc,
		"session_id":  fb.DefaultSession,
	}
	fb.mu.Unlock()
	return c.JSON(http.StatusOK, resp)
}

func (fb *FakeBackend) handleCreateDescription(c echo.Context) error {
	failure, failed := fb.record(c)
	fb.mu.Lock()
	desc := fb.GeneratedDesc
	delay := fb.DescribeDelay
	fb.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if failed {
		return c.JSON(failure.Status, failure.Body)
	}
	return c.JSON(http.StatusOK, map[string]string{"description": desc})
}

func (fb *FakeBackend) handleUpdateSession(c echo.Context) error {
	if failure, failed := fb.record(c); failed {
		return c.JSON(failure.Status, failure.Body)
	}
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid body"})
	}
	fb.mu.Lock()
	fb.datasetName = body.Name
	fb.datasetDesc = body.Description
	fb.mu.Unlock()
	return c.NoContent(http.StatusOK)
}

func (fb *FakeBackend) handleUploadStats(c echo.Context) error {
	if failure, failed := fb.record(c); failed {
		return c.JSON(failure.Status, failure.Body)
	}
	fb.mu.Lock()
	limit := len(fb.UploadStats)
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n < limit {
			limit = n
		}
	}
	stats := fb.UploadStats[:limit]
	fb.mu.Unlock()
	return c.JSON(http.StatusOK, stats)
}
