package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pixeljobs/pixeljobs/pkg/models"
)

func TestNormalizeJob_Defaults(t *testing.T) {
	job := NormalizeJob(map[string]interface{}{})

	if job.ID != "" {
		t.Errorf("Expected empty id, got %q", job.ID)
	}
	if job.Scale != 4 {
		t.Errorf("Expected default scale 4, got %d", job.Scale)
	}
	if job.Method != "real_esrgan" {
		t.Errorf("Expected default method real_esrgan, got %q", job.Method)
	}
	if job.ResultURL != "" || job.ErrorMessage != "" {
		t.Errorf("Expected optional fields empty, got result_url=%q error=%q", job.ResultURL, job.ErrorMessage)
	}
	if job.Progress != 0 {
		t.Errorf("Expected progress 0, got %d", job.Progress)
	}
}

func TestNormalizeJob_FullPayload(t *testing.T) {
	raw := map[string]interface{}{
		"id":                "abc-123",
		"status":            "completed",
		"original_filename": "test.png",
		"result_key":        "results/abc",
		"result_url":        "http://api/jobs/abc/download",
		"progress":          float64(100),
		"scale":             float64(2),
		"method":            "swinir",
		"created_at":        "2025-01-01T00:00:00",
		"started_at":        "2025-01-01T00:01:00",
	}
	job := NormalizeJob(raw)

	if job.ID != "abc-123" || job.Status != models.JobStatusCompleted {
		t.Errorf("Unexpected id/status: %q %q", job.ID, job.Status)
	}
	if job.Scale != 2 || job.Method != "swinir" {
		t.Errorf("Expected scale 2 method swinir, got %d %q", job.Scale, job.Method)
	}
	if job.ResultKey != "results/abc" || job.ResultURL != "http://api/jobs/abc/download" {
		t.Errorf("Unexpected result fields: %q %q", job.ResultKey, job.ResultURL)
	}
	if job.StartedAt != "2025-01-01T00:01:00" {
		t.Errorf("Unexpected started_at: %q", job.StartedAt)
	}
}

func TestNormalizeJob_IgnoresWrongTypes(t *testing.T) {
	job := NormalizeJob(map[string]interface{}{
		"id":    float64(7),
		"scale": "big",
	})
	if job.ID != "" {
		t.Errorf("Expected non-string id to be dropped, got %q", job.ID)
	}
	if job.Scale != 4 {
		t.Errorf("Expected non-numeric scale to default to 4, got %d", job.Scale)
	}
}

func TestGetJobs_EmptyIDsSkipsNetwork(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	jobs, err := New(server.URL).GetJobs(context.Background(), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("Expected empty result, got %d jobs", len(jobs))
	}
	if requests != 0 {
		t.Errorf("Expected no network request for empty id list, got %d", requests)
	}
}

func TestGetJobs_BatchedRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "a,b" {
			t.Errorf("Expected ids=a,b in one request, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"a","status":"completed"},{"id":"b","status":"processing","progress":40}]`))
	}))
	defer server.Close()

	jobs, err := New(server.URL).GetJobs(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != "a" || jobs[1].Progress != 40 {
		t.Errorf("Unexpected jobs: %+v", jobs)
	}
}

func TestUploadJobs_FormFieldsAndProgress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("Failed to parse multipart form: %v", err)
		}
		if got := r.FormValue("scale"); got != "2" {
			t.Errorf("Expected scale=2, got %q", got)
		}
		if got := r.FormValue("method"); got != "real_esrgan" {
			t.Errorf("Expected method=real_esrgan, got %q", got)
		}
		if got := r.FormValue("denoise_first"); got != "true" {
			t.Errorf("Expected denoise_first=true, got %q", got)
		}
		if got := r.FormValue("face_enhance"); got != "false" {
			t.Errorf("Expected face_enhance=false, got %q", got)
		}
		if got := r.FormValue("options"); got != `{"crop":"10,10,50,50"}` {
			t.Errorf("Unexpected options field: %q", got)
		}
		if got := len(r.MultipartForm.File["files"]); got != 2 {
			t.Errorf("Expected 2 file parts, got %d", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"job_ids":["j1","j2"]}`))
	}))
	defer server.Close()

	var reported []int
	files := []File{
		{Name: "one.png", Size: 5, Reader: strings.NewReader("aaaaa")},
		{Name: "two.png", Size: 5, Reader: strings.NewReader("bbbbb")},
	}
	opts := models.UploadOptions{
		Scale:        2,
		Method:       "real_esrgan",
		DenoiseFirst: true,
		Options:      map[string]interface{}{"crop": "10,10,50,50"},
	}
	ids, err := New(server.URL).UploadJobs(context.Background(), files, opts, func(pct int) {
		reported = append(reported, pct)
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "j1" {
		t.Errorf("Unexpected job ids: %v", ids)
	}

	if len(reported) == 0 {
		t.Fatal("Expected progress callbacks")
	}
	last := 0
	for _, pct := range reported {
		if pct <= last {
			t.Errorf("Progress regressed or repeated: %v", reported)
			break
		}
		last = pct
	}
	if reported[len(reported)-1] != 100 {
		t.Errorf("Expected final progress 100, got %d", reported[len(reported)-1])
	}
}

func TestUploadJobs_NonOKRaisesBodyText(t *testing.T) {
	body := `{"detail":"Too many files","request_id":"r9"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(body))
	}))
	defer server.Close()

	_, err := New(server.URL).UploadJobs(context.Background(), nil, models.UploadOptions{Scale: 4, Method: "real_esrgan"}, nil)
	if err == nil {
		t.Fatal("Expected error on 400 response")
	}
	if err.Error() != body {
		t.Errorf("Expected error text to be the raw body, got %q", err.Error())
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.RequestID != "r9" {
		t.Errorf("Unexpected APIError: %+v", apiErr)
	}
}

func TestCancelJob_PostsToActionPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/jobs/j1/cancel" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"j1","status":"cancelled"}`))
	}))
	defer server.Close()

	job, err := New(server.URL).CancelJob(context.Background(), "j1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if job.Status != models.JobStatusCancelled {
		t.Errorf("Expected cancelled status, got %q", job.Status)
	}
}

func TestGetQueueStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/jobs/queue-stats" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"queued":3,"processing":1}`))
	}))
	defer server.Close()

	stats, err := New(server.URL).GetQueueStats(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if stats.Queued != 3 || stats.Processing != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestCheckHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	client := New(server.URL)
	if !client.CheckHealth(context.Background()) {
		t.Error("Expected healthy API to report true")
	}

	server.Close()
	if client.CheckHealth(context.Background()) {
		t.Error("Expected unreachable API to report false, not error")
	}
}

func TestURLBuilders(t *testing.T) {
	client := New("http://api.example/")
	if got := client.DownloadURL("j1"); got != "http://api.example/api/jobs/j1/download" {
		t.Errorf("Unexpected download URL: %q", got)
	}
	if got := client.BatchDownloadURL([]string{"a", "b"}); got != "http://api.example/api/jobs/batch-download?ids=a%2Cb" {
		t.Errorf("Unexpected batch download URL: %q", got)
	}
}
