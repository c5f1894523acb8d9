package cmd

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pixeljobs/pixeljobs/internal/devserver"
	"github.com/pixeljobs/pixeljobs/pkg/api"
	"github.com/pixeljobs/pixeljobs/pkg/models"
)

func newDevClient(t *testing.T) (*api.Client, *devserver.Handler) {
	t.Helper()
	handler := devserver.NewHandler()
	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)
	return api.New(server.URL), handler
}

func submitJob(t *testing.T, client *api.Client, name string) string {
	t.Helper()
	content := "image bytes for " + name
	ids, err := client.UploadJobs(context.Background(), []api.File{
		{Name: name, Size: int64(len(content)), Reader: strings.NewReader(content)},
	}, models.UploadOptions{Scale: 4, Method: "real_esrgan"}, nil)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("Expected 1 job id, got %v", ids)
	}
	return ids[0]
}

func fetchJob(t *testing.T, client *api.Client, id string) models.Job {
	t.Helper()
	jobs, err := client.GetJobs(context.Background(), []string{id})
	if err != nil {
		t.Fatalf("GetJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("Expected 1 job for id %s, got %d", id, len(jobs))
	}
	return jobs[0]
}

func TestCancelJob_QueuedJob(t *testing.T) {
	client, _ := newDevClient(t)
	id := submitJob(t, client, "cat.png")

	job, err := cancelJob(context.Background(), client, id)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if job.Status != models.JobStatusCancelled {
		t.Errorf("Expected cancelled, got %s", job.Status)
	}
	if got := fetchJob(t, client, id); got.Status != models.JobStatusCancelled {
		t.Errorf("Expected server to report cancelled, got %s", got.Status)
	}
}

func TestCancelJob_CompletedJobRejectedWithoutServerCall(t *testing.T) {
	client, handler := newDevClient(t)
	id := submitJob(t, client, "cat.png")
	for i := 0; i < 5; i++ {
		handler.Step()
	}
	if got := fetchJob(t, client, id); got.Status != models.JobStatusCompleted {
		t.Fatalf("Expected completed after stepping, got %s", got.Status)
	}

	_, err := cancelJob(context.Background(), client, id)
	if err == nil {
		t.Fatal("Expected cancelling a completed job to fail")
	}
	// Gated locally: the message names the job and its status rather than
	// relaying a server conflict body.
	if !strings.Contains(err.Error(), id) || !strings.Contains(err.Error(), "cannot be cancelled") {
		t.Errorf("Unexpected error: %v", err)
	}
	if got := fetchJob(t, client, id); got.Status != models.JobStatusCompleted {
		t.Errorf("Expected job to stay completed, got %s", got.Status)
	}
}

func TestCancelJob_UnknownJob(t *testing.T) {
	client, _ := newDevClient(t)

	_, err := cancelJob(context.Background(), client, "no-such-id")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected a not-found error, got %v", err)
	}
}

func TestRetryJob_FailedJobGetsFreshAttempt(t *testing.T) {
	client, handler := newDevClient(t)
	id := submitJob(t, client, "fail-cat.png")
	for i := 0; i < 5; i++ {
		handler.Step()
	}
	if got := fetchJob(t, client, id); got.Status != models.JobStatusFailed {
		t.Fatalf("Expected failed after stepping, got %s", got.Status)
	}

	fresh, err := retryJob(context.Background(), client, id)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if fresh.ID == id {
		t.Error("Expected a fresh job id, got the original")
	}
	if fresh.Status != models.JobStatusQueued {
		t.Errorf("Expected the fresh attempt to be queued, got %s", fresh.Status)
	}
	// The failed record survives alongside the new attempt.
	if got := fetchJob(t, client, id); got.Status != models.JobStatusFailed {
		t.Errorf("Expected original to stay failed, got %s", got.Status)
	}
}

func TestRetryJob_ActiveJobRejected(t *testing.T) {
	client, _ := newDevClient(t)
	id := submitJob(t, client, "cat.png")

	_, err := retryJob(context.Background(), client, id)
	if err == nil || !strings.Contains(err.Error(), "only failed jobs can be retried") {
		t.Errorf("Expected the retry gate to reject a queued job, got %v", err)
	}
}

func TestExpiryText(t *testing.T) {
	completed := func(expiresAt string) models.Job {
		return models.Job{Status: models.JobStatusCompleted, ExpiresAt: expiresAt}
	}

	if got := expiryText(models.Job{Status: models.JobStatusProcessing}); got != "-" {
		t.Errorf("Expected '-' for a job with nothing to download, got %q", got)
	}
	if got := expiryText(completed("")); got != "-" {
		t.Errorf("Expected '-' without an expiry, got %q", got)
	}
	if got := expiryText(completed("not-a-timestamp")); got != "-" {
		t.Errorf("Expected '-' for an unparseable expiry, got %q", got)
	}
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	if got := expiryText(completed(past)); got != "expired" {
		t.Errorf("Expected 'expired' for a past expiry, got %q", got)
	}
	soon := time.Now().Add(30 * time.Second).UTC().Format(time.RFC3339)
	if got := expiryText(completed(soon)); got != "<1m" {
		t.Errorf("Expected '<1m' just before expiry, got %q", got)
	}
	later := time.Now().Add(90*time.Minute + 30*time.Second).UTC().Format(time.RFC3339)
	if got := expiryText(completed(later)); got != "1h30m" && got != "1h31m" {
		t.Errorf("Expected a rounded countdown, got %q", got)
	}
}
