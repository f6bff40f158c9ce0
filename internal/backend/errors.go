package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from the analytics backend. Detail keeps
// the raw decoded shape (string, list or map) so the notifier can flatten it.
type APIError struct {
	StatusCode int
	Message    string
	Detail     interface{}
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("backend error: status=%d message=%s", e.StatusCode, msg)
}

// AsAPIError unwraps err to an *APIError if one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// parseAPIError decodes the common backend error envelopes:
// {"detail": ...}, {"error": "..."} and {"message": "..."}. The detail value
// may itself be a string, a list of objects, or an object map.
func parseAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Body:       strings.TrimSpace(string(raw)),
	}

	var env map[string]interface{}
	if err := json.Unmarshal(raw, &env); err != nil {
		apiErr.Message = apiErr.Body
		return apiErr
	}

	if detail, ok := env["detail"]; ok {
		apiErr.Detail = detail
		if s, ok := detail.(string); ok {
			apiErr.Message = s
		} else {
			apiErr.Message = http.StatusText(status)
		}
		return apiErr
	}

	for _, key := range []string{"error", "message"} {
		if s, ok := env[key].(string); ok && strings.TrimSpace(s) != "" {
			apiErr.Message = strings.TrimSpace(s)
			return apiErr
		}
	}

	apiErr.Message = apiErr.Body
	return apiErr
}
