package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestUploadErrorMessage_StructuredError(t *testing.T) {
	info := UploadErrorMessage(errors.New(`{"error":"boom","request_id":"r1"}`))
	if info.Text != "boom" {
		t.Errorf("Expected text boom, got %q", info.Text)
	}
	if info.RequestID != "r1" {
		t.Errorf("Expected request id r1, got %q", info.RequestID)
	}
}

func TestUploadErrorMessage_PlainText(t *testing.T) {
	info := UploadErrorMessage(errors.New("plain text"))
	if info.Text != "plain text" || info.RequestID != "" {
		t.Errorf("Unexpected info: %+v", info)
	}
}

func TestUploadErrorMessage_NilError(t *testing.T) {
	info := UploadErrorMessage(nil)
	if info.Text != genericUploadMessage || info.RequestID != "" {
		t.Errorf("Unexpected info: %+v", info)
	}
}

func TestUploadErrorMessage_DetailString(t *testing.T) {
	info := UploadErrorMessage(errors.New(`{"detail":"File type not supported","request_id":"r2"}`))
	if info.Text != "File type not supported" || info.RequestID != "r2" {
		t.Errorf("Unexpected info: %+v", info)
	}
}

func TestUploadErrorMessage_DetailArray(t *testing.T) {
	info := UploadErrorMessage(errors.New(`{"detail":[{"msg":"scale must be 2 or 4"},{"msg":"quality out of range"}]}`))
	if info.Text != "scale must be 2 or 4. quality out of range" {
		t.Errorf("Unexpected joined detail: %q", info.Text)
	}
}

func TestUploadErrorMessage_ErrorFieldWinsOverDetail(t *testing.T) {
	info := UploadErrorMessage(errors.New(`{"error":"exception text","detail":"validation text"}`))
	if info.Text != "exception text" {
		t.Errorf("Expected error field to win, got %q", info.Text)
	}
}

func TestStatusErrorMessage_RateLimited(t *testing.T) {
	err := &APIError{StatusCode: http.StatusTooManyRequests, Body: "slow down"}
	info := StatusErrorMessage(err)
	if info.Text != "Too many requests. Please wait a moment and try again." {
		t.Errorf("Unexpected 429 message: %q", info.Text)
	}
}

func TestStatusErrorMessage_BadRequestPatterns(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"detail":"Too many files: max 10"}`, "Too many files. Upload fewer files at once."},
		{`{"detail":"File too large: 60MB"}`, "One or more files are too large."},
	}
	for _, tc := range cases {
		info := StatusErrorMessage(&APIError{StatusCode: http.StatusBadRequest, Body: tc.body})
		if info.Text != tc.want {
			t.Errorf("Body %q: expected %q, got %q", tc.body, tc.want, info.Text)
		}
	}
}

func TestStatusErrorMessage_ServerError(t *testing.T) {
	err := &APIError{StatusCode: http.StatusInternalServerError, Body: "stack trace", RequestID: "r7"}
	info := StatusErrorMessage(err)
	if info.Text != "Something went wrong on our side. Please try again." {
		t.Errorf("Unexpected 500 message: %q", info.Text)
	}
	if info.RequestID != "r7" {
		t.Errorf("Expected request id r7, got %q", info.RequestID)
	}
}

func TestStatusErrorMessage_WrappedAPIError(t *testing.T) {
	wrapped := fmt.Errorf("upload failed: %w", &APIError{StatusCode: http.StatusTooManyRequests})
	info := StatusErrorMessage(wrapped)
	if info.Text != "Too many requests. Please wait a moment and try again." {
		t.Errorf("Expected errors.As to unwrap, got %q", info.Text)
	}
}

func TestStatusErrorMessage_PlainErrorFallsBack(t *testing.T) {
	info := StatusErrorMessage(errors.New("connection refused"))
	if info.Text != "connection refused" {
		t.Errorf("Expected plain-error fallback, got %q", info.Text)
	}
}
