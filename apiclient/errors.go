package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	cerrors "github.com/jrsteele09/go-auth-console/internal/errors"
)

var (
	// ErrUnauthorized matches any *APIError with status 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden matches any *APIError with status 403.
	ErrForbidden = cerrors.ErrForbidden
	// ErrNotFound matches any *APIError with status 404.
	ErrNotFound = cerrors.ErrNotFound
	// ErrNetwork wraps transport failures, timeouts included.
	ErrNetwork = errors.New("network error")
	// ErrSessionExpired is returned when a 401 could not be recovered by refreshing.
	ErrSessionExpired = cerrors.ErrSessionExpired
	// ErrNoRefreshToken is returned by refresh attempts when nothing is stored to refresh with.
	ErrNoRefreshToken = cerrors.ErrNoRefreshToken
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Detail)
}

// Is lets callers test the status class with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// Message is the text shown to a user for this error.
func (e *APIError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return http.StatusText(e.Status)
}

// validationIssue is one entry of a 422 detail list.
type validationIssue struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// ParseError builds an APIError from a response body. The backend reports failures as
// {"detail": "..."} or, for validation failures, {"detail": [{"loc": [...], "msg": "..."}]}.
func ParseError(method, path string, status int, body []byte) *APIError {
	apiErr := &APIError{Method: method, Path: path, Status: status}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		apiErr.Detail = strings.TrimSpace(string(body))
		if len(apiErr.Detail) > 200 {
			apiErr.Detail = apiErr.Detail[:200]
		}
		return apiErr
	}

	var detail string
	if err := json.Unmarshal(envelope.Detail, &detail); err == nil {
		apiErr.Detail = detail
		return apiErr
	}

	var issues []validationIssue
	if err := json.Unmarshal(envelope.Detail, &issues); err == nil {
		msgs := make([]string, 0, len(issues))
		for _, issue := range issues {
			if len(issue.Loc) > 0 {
				msgs = append(msgs, fmt.Sprintf("%v: %s", issue.Loc[len(issue.Loc)-1], issue.Msg))
			} else {
				msgs = append(msgs, issue.Msg)
			}
		}
		apiErr.Detail = strings.Join(msgs, "; ")
		return apiErr
	}

	apiErr.Detail = string(envelope.Detail)
	return apiErr
}

// UserMessage extracts something presentable from any error returned by this package.
func UserMessage(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSessionExpired):
		return "Your session has expired. Please sign in again."
	case errors.As(err, &apiErr):
		return apiErr.Message()
	case errors.Is(err, ErrNetwork):
		return "The server could not be reached. Please try again."
	}
	return err.Error()
}
