package grist

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gristips/gristips/internal/repeat"
)

// APIError is returned for a response with a non-2xx status.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	// Message is the error reported by Grist, or the status text when the
	// body has none.
	Message string

	retryAfter time.Duration
}

var (
	_ repeat.KindError       = (*APIError)(nil)
	_ repeat.RetryAfterError = (*APIError)(nil)
)

func (e *APIError) Error() string {
	return fmt.Sprintf("grist: %s %q responded %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *APIError) Kind() repeat.ErrorKind {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return repeat.KindRateLimited
	case e.StatusCode >= 500:
		return repeat.KindServer
	case e.StatusCode >= 400:
		return repeat.KindClient
	default:
		return repeat.KindUnknown
	}
}

// RetryAfter is the delay from the Retry-After header of the response, in
// seconds. It is 0 when the header is missing or is an HTTP date.
func (e *APIError) RetryAfter() time.Duration {
	return e.retryAfter
}

// Unauthorized reports whether Grist rejected the API key.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func newAPIError(method, path string, resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}

	var errBody struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errBody); err == nil && errBody.Error != "" {
		apiErr.Message = errBody.Error
	}

	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
		apiErr.retryAfter = time.Duration(seconds) * time.Second
	}

	return apiErr
}

// decodeError is returned when a successful response has a body that is not
// the expected JSON. Sending the request again would get the same body.
type decodeError struct {
	path string
	body string
	err  error
}

var _ repeat.KindError = (*decodeError)(nil)

func (e *decodeError) Error() string {
	return fmt.Sprintf("grist: parsing json response of %q: %v. partial text: %q", e.path, e.err, e.body)
}

func (e *decodeError) Unwrap() error {
	return e.err
}

func (e *decodeError) Kind() repeat.ErrorKind {
	return repeat.KindValidation
}
