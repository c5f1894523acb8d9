package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// genericUploadMessage is shown when nothing better can be extracted.
const genericUploadMessage = "Upload failed. Please try again."

// APIError is a non-2xx HTTP response. Its Error text is the raw response
// body so callers that only surface err.Error() show what the server said.
type APIError struct {
	StatusCode int
	Body       string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return http.StatusText(e.StatusCode)
}

// checkResponse converts a non-2xx response into an *APIError carrying the
// body text and, when the body is a structured error, its request id.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}

	var structured struct {
		RequestID string `json:"request_id"`
	}
	if json.Unmarshal(body, &structured) == nil {
		apiErr.RequestID = structured.RequestID
	}
	return apiErr
}

// ErrorInfo is the user-facing shape of an upload or action failure: a
// message to render plus an optional request id for support correlation.
type ErrorInfo struct {
	Text      string
	RequestID string
}

// UploadErrorMessage turns an upload error into a user-facing message and
// optional request id. Structured bodies look like
// {"error": ..., "detail": ..., "request_id": ...}; the backend's "error"
// field (the raw exception from a 500) wins over "detail", which may be a
// string or an array of {"msg": ...} validation entries.
func UploadErrorMessage(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{Text: genericUploadMessage}
	}
	msg := err.Error()

	var parsed struct {
		Error     string          `json:"error"`
		Detail    json.RawMessage `json:"detail"`
		RequestID string          `json:"request_id"`
	}
	if jsonErr := json.Unmarshal([]byte(msg), &parsed); jsonErr != nil {
		if msg == "" {
			return ErrorInfo{Text: genericUploadMessage}
		}
		return ErrorInfo{Text: msg}
	}

	if strings.TrimSpace(parsed.Error) != "" {
		return ErrorInfo{Text: parsed.Error, RequestID: parsed.RequestID}
	}
	return ErrorInfo{Text: detailText(parsed.Detail, msg), RequestID: parsed.RequestID}
}

func detailText(detail json.RawMessage, fallback string) string {
	if len(detail) == 0 {
		return fallback
	}
	var s string
	if json.Unmarshal(detail, &s) == nil {
		return s
	}
	var entries []map[string]interface{}
	if json.Unmarshal(detail, &entries) == nil {
		parts := make([]string, 0, len(entries))
		for _, entry := range entries {
			if m, ok := entry["msg"].(string); ok && m != "" {
				parts = append(parts, m)
			} else {
				parts = append(parts, fmt.Sprintf("%v", entry))
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ". ")
		}
	}
	return fallback
}

// StatusErrorMessage maps a failure by HTTP status when the error is a
// structured *APIError. Call sites using the raw-Error path go through
// UploadErrorMessage instead; both shapes must be supported.
func StatusErrorMessage(err error) ErrorInfo {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return UploadErrorMessage(err)
	}

	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return ErrorInfo{
			Text:      "Too many requests. Please wait a moment and try again.",
			RequestID: apiErr.RequestID,
		}
	case apiErr.StatusCode == http.StatusBadRequest:
		lower := strings.ToLower(apiErr.Body)
		if strings.Contains(lower, "too many files") {
			return ErrorInfo{Text: "Too many files. Upload fewer files at once.", RequestID: apiErr.RequestID}
		}
		if strings.Contains(lower, "too large") {
			return ErrorInfo{Text: "One or more files are too large.", RequestID: apiErr.RequestID}
		}
		return UploadErrorMessage(apiErr)
	case apiErr.StatusCode >= 500:
		return ErrorInfo{
			Text:      "Something went wrong on our side. Please try again.",
			RequestID: apiErr.RequestID,
		}
	default:
		return UploadErrorMessage(apiErr)
	}
}
