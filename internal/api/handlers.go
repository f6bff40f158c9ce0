package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dataset-attach/agent/internal/dataset"
	"github.com/dataset-attach/agent/internal/models"
	"github.com/dataset-attach/agent/internal/notify"
)

// Handler handles API requests from the chat UI.
type Handler struct {
	manager  *dataset.Manager
	notifier *notify.Notifier
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(manager *dataset.Manager, notifier *notify.Notifier, version string) *Handler {
	return &Handler{manager: manager, notifier: notifier, version: version}
}

// HandleHealth returns agent health status.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// HandleGetState returns the full UI-facing state snapshot.
func (h *Handler) HandleGetState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.State())
}

// HandleGetStateMsgpack returns the state snapshot in MessagePack format
// for UIs that poll frequently.
func (h *Handler) HandleGetStateMsgpack(c echo.Context) error {
	data, err := msgpack.Marshal(h.manager.State())
	if err != nil {
		return NewInternalError("failed to encode state", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleSelectFile accepts a dataset file as multipart form data and runs
// the upload pipeline. The "isNewDataset" field distinguishes a fresh
// dataset from re-selecting the one already attached.
func (h *Handler) HandleSelectFile(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("a file part is required", err)
	}

	src, err := fh.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	data, err := io.ReadAll(src)
	src.Close()
	if err != nil {
		return NewInternalError("failed to read uploaded file", err)
	}

	isNew := c.FormValue("isNewDataset") != "false"

	modifiedAt := time.Now()
	if v := c.FormValue("modifiedAt"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			modifiedAt = time.UnixMilli(ms)
		}
	}

	file := dataset.FileHandle{
		Name:         fh.Filename,
		DeclaredType: fh.Header.Get("Content-Type"),
		ModifiedAt:   modifiedAt,
		Data:         data,
	}

	fmt.Printf("[API] SelectFile: %s (%d bytes, new=%v)\n", fh.Filename, len(data), isNew)

	if err := h.manager.BeginUpload(c.Request().Context(), file, isNew); err != nil {
		if errors.Is(err, dataset.ErrInvalidFormat) {
			return NewUnsupportedFormatError(fh.Filename)
		}
		return err
	}
	return c.JSON(http.StatusOK, h.manager.State())
}

// HandleConfirmSheet resumes a suspended spreadsheet upload.
func (h *Handler) HandleConfirmSheet(c echo.Context) error {
	var req struct {
		SheetName string `json:"sheetName"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.SheetName == "" {
		return NewBadRequestError("sheetName is required", nil)
	}

	if err := h.manager.ConfirmSheet(c.Request().Context(), req.SheetName); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.manager.State())
}

// HandleCommit finalizes the previewed dataset under its final metadata.
func (h *Handler) HandleCommit(c echo.Context) error {
	d, err := bindDescription(c)
	if err != nil {
		return err
	}
	if err := h.manager.Commit(c.Request().Context(), d); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.manager.State())
}

// HandleSetDescription applies a user edit to the dataset name/description.
func (h *Handler) HandleSetDescription(c echo.Context) error {
	d, err := bindDescription(c)
	if err != nil {
		return err
	}
	h.manager.SetDescription(d.Name, d.Description)
	return c.JSON(http.StatusOK, h.manager.Description())
}

// HandleGenerateDescription triggers description generation explicitly.
func (h *Handler) HandleGenerateDescription(c echo.Context) error {
	if err := h.manager.Generate(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.manager.Description())
}

// HandleResolveMismatch settles a pending local/server disagreement.
func (h *Handler) HandleResolveMismatch(c echo.Context) error {
	var req struct {
		KeepCustom bool `json:"keepCustom"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if err := h.manager.Resolve(c.Request().Context(), req.KeepCustom); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.manager.State())
}

// HandleClear discards the attached dataset and its persisted record.
func (h *Handler) HandleClear(c echo.Context) error {
	if err := h.manager.Clear(); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.manager.State())
}

// HandlePreviewDefault opens a preview of the backend's default dataset.
func (h *Handler) HandlePreviewDefault(c echo.Context) error {
	preview, err := h.manager.PreviewDefault(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, preview)
}

// HandleSessionChanged reconciles local state against a new session
// identity reported by the chat UI.
func (h *Handler) HandleSessionChanged(c echo.Context) error {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.SessionID == "" {
		return NewBadRequestError("sessionId is required", nil)
	}

	fmt.Printf("[API] Session changed to %s, reconciling\n", req.SessionID)
	if err := h.manager.Reconcile(c.Request().Context(), req.SessionID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.manager.State())
}

// HandleSessionRefresh re-runs reconciliation for the current session.
// The UI calls this on external signals such as a subscription change.
func (h *Handler) HandleSessionRefresh(c echo.Context) error {
	sessionID := h.manager.SessionID()
	if sessionID == "" {
		return NewConflictError("NO_SESSION", "no session is active")
	}
	if err := h.manager.Reconcile(c.Request().Context(), sessionID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.manager.State())
}

// HandleDismissNotice dismisses the current notification without running
// its timeout side effects.
func (h *Handler) HandleDismissNotice(c echo.Context) error {
	h.notifier.Dismiss()
	return c.NoContent(http.StatusNoContent)
}

// HandleDiagnostics returns the latest backend-side upload statistics.
func (h *Handler) HandleDiagnostics(c echo.Context) error {
	stats, err := h.manager.UploadDiagnostics(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func bindDescription(c echo.Context) (models.DatasetDescription, error) {
	var d models.DatasetDescription
	if err := c.Bind(&d); err != nil {
		return d, NewBadRequestError("invalid request body", err)
	}
	return d, nil
}
