package devbackend

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const defaultPreviewRows = 10

// defaultDatasetCSV is the canned dataset served when no custom upload is
// active, a small cut of the Boston housing data.
const defaultDatasetCSV = `crim,zn,indus,nox,rm,age,medv
0.00632,18,2.31,0.538,6.575,65.2,24
0.02731,0,7.07,0.469,6.421,78.9,21.6
0.02729,0,7.07,0.469,7.185,61.1,34.7
0.03237,0,2.18,0.458,6.998,45.8,33.4
0.06905,0,2.18,0.458,7.147,54.2,36.2
`

const (
	defaultDatasetName = "Housing"
	defaultDatasetDesc = "Boston housing dataset with per-town demographic and pricing attributes"
)

// session is the backend-side state for one conversation.
type session struct {
	ID          string
	IsCustom    bool
	Name        string
	Description string
	Uploads     []map[string]interface{}
	LastSeen    time.Time
}

// Server implements the analytics API the agent consumes.
type Server struct {
	mu       sync.Mutex
	store    Tabular
	sessions map[string]*session
	version  string
}

// NewServer creates a Server on the given table store.
func NewServer(store Tabular, version string) *Server {
	return &Server{
		store:    store,
		sessions: make(map[string]*session),
		version:  version,
	}
}

// RegisterRoutes registers all backend routes with the Echo instance.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.handleHealth)
	e.POST("/reset-session", s.handleResetSession)
	e.POST("/excel-sheets", s.handleExcelSheets)
	e.POST("/upload_dataframe", s.handleUploadDataframe)
	e.POST("/upload_excel", s.handleUploadExcel)
	e.POST("/preview-csv", s.handlePreviewCSV)
	e.GET("/session-info", s.handleSessionInfo)
	e.GET("/default-dataset", s.handleDefaultDataset)
	e.POST("/create-dataset-description", s.handleCreateDescription)
	e.POST("/update-session-dataset", s.handleUpdateSessionDataset)
	e.GET("/dataset-uploads", s.handleUploadStats)
}

// CleanupLoop drops sessions idle longer than ttl. Runs until stop closes.
func (s *Server) CleanupLoop(interval, ttl time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.cleanup(ttl)
		}
	}
}

func (s *Server) cleanup(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)
	s.mu.Lock()
	var stale []string
	for id, sess := range s.sessions {
		if sess.LastSeen.Before(cutoff) {
			stale = append(stale, id)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.store.Drop(id)
		fmt.Printf("[DevBackend] Dropped idle session %s\n", id)
	}
}

// resolveSession returns the session for the request header, creating it
// if needed.
func (s *Server) resolveSession(c echo.Context) *session {
	id := c.Request().Header.Get("X-Session-ID")
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{ID: id}
		s.sessions[id] = sess
	}
	sess.LastSeen = time.Now()
	return sess
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleResetSession(c echo.Context) error {
	sess := s.resolveSession(c)

	s.store.Drop(sess.ID)
	s.mu.Lock()
	sess.IsCustom = false
	sess.Name = ""
	sess.Description = ""
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]string{"session_id": sess.ID})
}

func (s *Server) handleExcelSheets(c echo.Context) error {
	data, _, err := readFilePart(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": err.Error()})
	}

	sheets, err := SheetNames(data)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sheets": sheets})
}

func (s *Server) handleUploadDataframe(c echo.Context) error {
	return s.handleUpload(c, false)
}

func (s *Server) handleUploadExcel(c echo.Context) error {
	return s.handleUpload(c, true)
}

func (s *Server) handleUpload(c echo.Context, excel bool) error {
	sess := s.resolveSession(c)

	data, fileName, err := readFilePart(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": err.Error()})
	}

	name := c.FormValue("name")
	description := c.FormValue("description")
	if name == "" {
		name = fileName
	}

	csvData := data
	if excel {
		sheet := c.FormValue("sheet_name")
		if sheet == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"detail": "sheet_name is required"})
		}
		csvData, err = SheetToCSV(data, sheet)
		if err != nil {
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		}
	}

	start := time.Now()
	rowCount, columnCount, err := s.store.LoadCSV(sess.ID, csvData)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
	}

	uploadID := uuid.NewString()
	s.mu.Lock()
	sess.IsCustom = true
	sess.Name = name
	sess.Description = description
	sess.Uploads = append(sess.Uploads, map[string]interface{}{
		"upload_id":          uploadID,
		"file_name":          fileName,
		"status":             "processed",
		"file_size":          len(data),
		"row_count":          rowCount,
		"column_count":       columnCount,
		"processing_time_ms": time.Since(start).Milliseconds(),
	})
	s.mu.Unlock()

	fmt.Printf("[DevBackend] Upload %s: %s (%d rows) session %s\n", uploadID, fileName, rowCount, sess.ID)

	return c.JSON(http.StatusOK, map[string]string{
		"session_id":        sess.ID,
		"dataset_upload_id": uploadID,
	})
}

func (s *Server) handlePreviewCSV(c echo.Context) error {
	sess := s.resolveSession(c)

	headers, rows, err := s.store.Preview(sess.ID, defaultPreviewRows)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": err.Error()})
	}

	s.mu.Lock()
	name, description := sess.Name, sess.Description
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]interface{}{
		"headers":     headers,
		"rows":        rows,
		"name":        name,
		"description": description,
	})
}

func (s *Server) handleSessionInfo(c echo.Context) error {
	sess := s.resolveSession(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"is_custom_dataset":   sess.IsCustom,
		"dataset_name":        sess.Name,
		"dataset_description": sess.Description,
	})
}

func (s *Server) handleDefaultDataset(c echo.Context) error {
	// The default dataset always comes with a fresh session.
	id := uuid.NewString()
	if _, _, err := s.store.LoadCSV(id, []byte(defaultDatasetCSV)); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": err.Error()})
	}
	headers, rows, err := s.store.Preview(id, defaultPreviewRows)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": err.Error()})
	}

	s.mu.Lock()
	s.sessions[id] = &session{
		ID:          id,
		Name:        defaultDatasetName,
		Description: defaultDatasetDesc,
		LastSeen:    time.Now(),
	}
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]interface{}{
		"headers":     headers,
		"rows":        rows,
		"name":        defaultDatasetName,
		"description": defaultDatasetDesc,
		"session_id":  id,
	})
}

func (s *Server) handleCreateDescription(c echo.Context) error {
	sess := s.resolveSession(c)

	var req struct {
		ExistingDescription string `json:"existingDescription"`
	}
	c.Bind(&req)

	headers, rows, err := s.store.Preview(sess.ID, defaultPreviewRows)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "no dataset loaded for this session"})
	}

	description := describeColumns(headers, len(rows))
	if req.ExistingDescription != "" {
		description = req.ExistingDescription + " " + description
	}

	return c.JSON(http.StatusOK, map[string]string{"description": description})
}

func (s *Server) handleUpdateSessionDataset(c echo.Context) error {
	sess := s.resolveSession(c)

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid body"})
	}

	s.mu.Lock()
	sess.Name = req.Name
	sess.Description = req.Description
	s.mu.Unlock()
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleUploadStats(c echo.Context) error {
	sess := s.resolveSession(c)

	s.mu.Lock()
	uploads := append([]map[string]interface{}(nil), sess.Uploads...)
	s.mu.Unlock()

	// Newest first.
	for i, j := 0, len(uploads)-1; i < j; i, j = i+1, j-1 {
		uploads[i], uploads[j] = uploads[j], uploads[i]
	}
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < len(uploads) {
			uploads = uploads[:n]
		}
	}
	return c.JSON(http.StatusOK, uploads)
}

// describeColumns builds a deterministic description from the table shape.
func describeColumns(headers []string, sampleRows int) string {
	cols := strings.Join(headers, ", ")
	return fmt.Sprintf("Tabular dataset with %d columns (%s), sampled %d rows.",
		len(headers), cols, sampleRows)
}

func readFilePart(c echo.Context) ([]byte, string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("a file part is required")
	}
	src, err := fh.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file part")
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file part")
	}
	return data, fh.Filename, nil
}
