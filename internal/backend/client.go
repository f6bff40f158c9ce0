// Package backend is the HTTP client for the remote analytics API. Session
// identity travels in a header on every call except the default-dataset
// fetch, which may establish a session of its own.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/mitchellh/mapstructure"

	"github.com/dataset-attach/agent/internal/models"
)

// DefaultSessionHeader carries the session identity on API calls.
const DefaultSessionHeader = "X-Session-ID"

// Options configures a Client.
type Options struct {
	BaseURL       string
	SessionHeader string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Client talks to the analytics backend.
type Client struct {
	baseURL       string
	sessionHeader string
	httpClient    *http.Client
}

// FilePayload is a file to send as a multipart part.
type FilePayload struct {
	Name string
	Data []byte
}

// UploadResult is the backend's acceptance of an upload. The returned
// session id may differ from the one the upload was issued under; callers
// must prefer the fresher one.
type UploadResult struct {
	SessionID       string `json:"session_id"`
	DatasetUploadID string `json:"dataset_upload_id"`
}

// DefaultDataset is the canonical built-in dataset plus the session id the
// fetch was served under.
type DefaultDataset struct {
	Headers     []string   `json:"headers"`
	Rows        [][]string `json:"rows"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	SessionID   string     `json:"session_id"`
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("baseURL required")
	}

	header := opts.SessionHeader
	if header == "" {
		header = DefaultSessionHeader
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:       baseURL,
		sessionHeader: header,
		httpClient:    hc,
	}, nil
}

// WaitReachable probes the backend's health endpoint with exponential
// backoff until it responds or maxElapsed passes.
func (c *Client) WaitReachable(ctx context.Context, maxElapsed time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed

	probe := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("backend not ready: %s", resp.Status)
		}
		return nil
	}

	return backoff.Retry(probe, backoff.WithContext(bo, ctx))
}

// ResetSession clears the server-side dataset state for a session. Idempotent.
func (c *Client) ResetSession(ctx context.Context, sessionID string) error {
	return c.postJSON(ctx, sessionID, "/reset-session", nil, nil)
}

// ExcelSheets asks the backend to enumerate the sheet names of a spreadsheet.
func (c *Client) ExcelSheets(ctx context.Context, sessionID string, file FilePayload) ([]string, error) {
	var out struct {
		Sheets []string `json:"sheets"`
	}
	fields := map[string]string{}
	if err := c.postMultipart(ctx, sessionID, "/excel-sheets", file, fields, &out); err != nil {
		return nil, err
	}
	return out.Sheets, nil
}

// UploadDataframe uploads a CSV with its name and description.
func (c *Client) UploadDataframe(ctx context.Context, sessionID string, file FilePayload, name, description string) (*UploadResult, error) {
	fields := map[string]string{"name": name, "description": description}
	var out UploadResult
	if err := c.postMultipart(ctx, sessionID, "/upload_dataframe", file, fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadExcel uploads one sheet of a spreadsheet.
func (c *Client) UploadExcel(ctx context.Context, sessionID string, file FilePayload, name, description, sheetName string) (*UploadResult, error) {
	fields := map[string]string{"name": name, "description": description, "sheet_name": sheetName}
	var out UploadResult
	if err := c.postMultipart(ctx, sessionID, "/upload_excel", file, fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PreviewCSV fetches the header row and sample rows of the session's
// active dataset.
func (c *Client) PreviewCSV(ctx context.Context, sessionID string) (*models.FilePreview, error) {
	var out models.FilePreview
	if err := c.postJSON(ctx, sessionID, "/preview-csv", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SessionInfo fetches the backend's authoritative dataset state for a session.
func (c *Client) SessionInfo(ctx context.Context, sessionID string) (*models.SessionInfo, error) {
	var out models.SessionInfo
	if err := c.getJSON(ctx, sessionID, "/session-info", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDefaultDataset fetches the canonical default dataset. No session header
// is sent; the response carries the session id it was served under.
func (c *Client) GetDefaultDataset(ctx context.Context) (*DefaultDataset, error) {
	var out DefaultDataset
	if err := c.getJSON(ctx, "", "/default-dataset", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDescription asks the backend to generate a dataset description.
func (c *Client) CreateDescription(ctx context.Context, sessionID, existingDescription string) (string, error) {
	body := map[string]string{
		"sessionId":           sessionID,
		"existingDescription": existingDescription,
	}
	var out struct {
		Description string `json:"description"`
	}
	if err := c.postJSON(ctx, sessionID, "/create-dataset-description", body, &out); err != nil {
		return "", err
	}
	return out.Description, nil
}

// UpdateSessionDataset sets just the name/description of the session's
// active dataset without re-uploading content. Used for the default dataset.
func (c *Client) UpdateSessionDataset(ctx context.Context, sessionID, name, description string) error {
	body := map[string]string{"name": name, "description": description}
	return c.postJSON(ctx, sessionID, "/update-session-dataset", body, nil)
}

// ListUploads fetches the most recent upload diagnostics records. The
// response rows arrive as loose JSON objects and are decoded through
// mapstructure so unknown fields never break the poll.
func (c *Client) ListUploads(ctx context.Context, sessionID string, limit int) ([]models.UploadStat, error) {
	path := "/dataset-uploads?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()

	var raw []map[string]interface{}
	if err := c.getJSON(ctx, sessionID, path, &raw); err != nil {
		return nil, err
	}

	stats := make([]models.UploadStat, 0, len(raw))
	for _, row := range raw {
		var stat models.UploadStat
		cfg := &mapstructure.DecoderConfig{
			Result:           &stat,
			WeaklyTypedInput: true,
		}
		dec, err := mapstructure.NewDecoder(cfg)
		if err != nil {
			return nil, fmt.Errorf("building upload-stat decoder: %w", err)
		}
		if err := dec.Decode(row); err != nil {
			return nil, fmt.Errorf("decoding upload-stat record: %w", err)
		}
		stats = append(stats, stat)
	}
	return stats, nil
}

func (c *Client) getJSON(ctx context.Context, sessionID, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, sessionID, out)
}

func (c *Client) postJSON(ctx context.Context, sessionID, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, sessionID, out)
}

func (c *Client) postMultipart(ctx context.Context, sessionID, path string, file FilePayload, fields map[string]string, out interface{}) error {
	buf := new(bytes.Buffer)
	writer := multipart.NewWriter(buf)

	part, err := writer.CreateFormFile("file", file.Name)
	if err != nil {
		return fmt.Errorf("creating multipart file: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return fmt.Errorf("writing multipart file: %w", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("writing multipart field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req, sessionID, out)
}

func (c *Client) do(req *http.Request, sessionID string, out interface{}) error {
	if sessionID != "" {
		req.Header.Set(c.sessionHeader, sessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", req.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", req.URL.Path, err)
	}
	return nil
}
