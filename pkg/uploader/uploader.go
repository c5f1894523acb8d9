// Package uploader translates page-level form state into one upload call with
// a simplified progress and error contract.
package uploader

import (
	"context"

	"github.com/pixeljobs/pixeljobs/pkg/api"
	"github.com/pixeljobs/pixeljobs/pkg/models"
)

// UploadClient is the slice of the API client the orchestrator needs.
type UploadClient interface {
	UploadJobs(ctx context.Context, files []api.File, opts models.UploadOptions, onProgress func(int)) ([]string, error)
}

// Error is a shaped upload failure: a user-facing message plus the request id
// for support correlation when the backend provided one.
type Error struct {
	Text      string
	RequestID string
	Err       error
}

func (e *Error) Error() string { return e.Text }

func (e *Error) Unwrap() error { return e.Err }

// Uploader performs multipart job submissions. It validates nothing itself;
// pages validate required fields and ranges before calling.
type Uploader struct {
	client UploadClient
}

// New creates an Uploader on top of the given client.
func New(client UploadClient) *Uploader {
	return &Uploader{client: client}
}

// Upload submits files with the given options. onProgress receives a
// monotonic 0-100 percentage and is guaranteed a final 100 on success.
// Failures come back as *Error with the message already shaped for display.
func (u *Uploader) Upload(ctx context.Context, files []api.File, opts models.UploadOptions, onProgress func(int)) ([]string, error) {
	ids, err := u.client.UploadJobs(ctx, files, opts, monotonic(onProgress))
	if err != nil {
		info := api.StatusErrorMessage(err)
		return nil, &Error{Text: info.Text, RequestID: info.RequestID, Err: err}
	}
	return ids, nil
}

// monotonic wraps a progress callback so the reported percentage never
// regresses, whatever the underlying transport reports.
func monotonic(onProgress func(int)) func(int) {
	if onProgress == nil {
		return nil
	}
	last := -1
	return func(pct int) {
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		if pct > last {
			last = pct
			onProgress(pct)
		}
	}
}
