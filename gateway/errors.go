package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fusionworks/go-blog-client/internal/utils"
	"github.com/pkg/errors"
)

// APIError is a non-success response from the backend, with the
// server-provided message extracted when one was present.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// errorBody is the backend's error envelope. Older revisions used "error"
// instead of "message", so both are tried.
type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Err     string `json:"error"`
}

func newAPIError(status int, body []byte) *APIError {
	var wire errorBody
	_ = json.Unmarshal(body, &wire)

	return &APIError{
		Status:  status,
		Code:    wire.Code,
		Message: utils.FirstNonEmpty(wire.Message, wire.Err, http.StatusText(status), "an error occurred"),
	}
}

// StatusOf returns the HTTP status carried by err, or 0 when err is not an
// APIError.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// serverError marks a retryable 5xx response inside the backoff loop so the
// final status can still be surfaced once attempts run out.
type serverError struct {
	status int
	body   []byte
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server returned %d", e.status)
}
