package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pixeljobs/pixeljobs/pkg/models"
)

// DefaultRecentLimit bounds unfiltered recent-job fetches.
const DefaultRecentLimit = 50

// Client manages communication with the job-processing API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client. baseURL is the API origin, e.g.
// "http://localhost:8000"; trailing slashes are stripped.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewWithHTTPClient creates a client with a caller-supplied http.Client.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
	}
}

// SetAPIKey sets the bearer token sent with every request.
func (c *Client) SetAPIKey(apiKey string) {
	c.apiKey = apiKey
}

// BaseURL returns the configured API origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// File is one upload part: a name, its content and the content length.
// Size must be accurate for upload progress to be meaningful.
type File struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// Open builds a File from a path. The caller must call Close.
func Open(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return File{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return File{Name: filepath.Base(path), Size: info.Size(), Reader: f}, nil
}

// Close closes the underlying reader if it is closable.
func (f File) Close() error {
	if closer, ok := f.Reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// UploadJobs submits files for processing and returns the created job ids.
// Progress is reported through onProgress as a monotonic 0-100 percentage of
// request bytes written; 100 is always reported once the request resolves.
func (c *Client) UploadJobs(ctx context.Context, files []File, opts models.UploadOptions, onProgress func(percent int)) ([]string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if err := writeUploadFields(form, opts); err != nil {
		return nil, err
	}
	for _, f := range files {
		part, err := form.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	body := newProgressReader(&buf, int64(buf.Len()), onProgress)
	req, err := c.newRequest(ctx, "POST", "/api/jobs/upload", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.ContentLength = body.total

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload jobs: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	body.finish()

	var result struct {
		JobIDs []string `json:"job_ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	return result.JobIDs, nil
}

func writeUploadFields(form *multipart.Writer, opts models.UploadOptions) error {
	fields := map[string]string{
		"scale":         strconv.Itoa(opts.Scale),
		"method":        opts.Method,
		"denoise_first": strconv.FormatBool(opts.DenoiseFirst),
		"face_enhance":  strconv.FormatBool(opts.FaceEnhance),
	}
	if opts.TargetFormat != "" {
		fields["target_format"] = opts.TargetFormat
	}
	if opts.Quality > 0 {
		fields["quality"] = strconv.Itoa(opts.Quality)
	}
	if len(opts.Options) > 0 {
		encoded, err := json.Marshal(opts.Options)
		if err != nil {
			return fmt.Errorf("failed to encode options: %w", err)
		}
		fields["options"] = string(encoded)
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", key, err)
		}
	}
	return nil
}

// GetJobs fetches the current records for the given ids in one batched
// request. An empty id list resolves immediately without a network call.
func (c *Client) GetJobs(ctx context.Context, ids []string) ([]models.Job, error) {
	if len(ids) == 0 {
		return []models.Job{}, nil
	}
	path := "/api/jobs?ids=" + url.QueryEscape(strings.Join(ids, ","))
	return c.fetchJobList(ctx, path)
}

// GetRecentJobs fetches the most recent jobs without an id filter.
func (c *Client) GetRecentJobs(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return c.fetchJobList(ctx, fmt.Sprintf("/api/jobs?limit=%d", limit))
}

func (c *Client) fetchJobList(ctx context.Context, path string) ([]models.Job, error) {
	req, err := c.newRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jobs: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var raw []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode job list: %w", err)
	}
	jobs := make([]models.Job, 0, len(raw))
	for _, r := range raw {
		jobs = append(jobs, NormalizeJob(r))
	}
	return jobs, nil
}

// CancelJob asks the server to cancel a queued or processing job and returns
// the job's updated record.
func (c *Client) CancelJob(ctx context.Context, jobID string) (models.Job, error) {
	return c.jobAction(ctx, jobID, "cancel")
}

// RetryJob creates a fresh attempt for a failed job. The returned Job is a
// new record with a new id; the original failed job is left as is.
func (c *Client) RetryJob(ctx context.Context, jobID string) (models.Job, error) {
	return c.jobAction(ctx, jobID, "retry")
}

func (c *Client) jobAction(ctx context.Context, jobID, action string) (models.Job, error) {
	req, err := c.newRequest(ctx, "POST", fmt.Sprintf("/api/jobs/%s/%s", url.PathEscape(jobID), action), nil)
	if err != nil {
		return models.Job{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Job{}, fmt.Errorf("failed to %s job: %w", action, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return models.Job{}, err
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return models.Job{}, fmt.Errorf("failed to decode job: %w", err)
	}
	return NormalizeJob(raw), nil
}

// GetQueueStats fetches the advisory queue depth counters.
func (c *Client) GetQueueStats(ctx context.Context) (models.QueueStats, error) {
	req, err := c.newRequest(ctx, "GET", "/api/jobs/queue-stats", nil)
	if err != nil {
		return models.QueueStats{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.QueueStats{}, fmt.Errorf("failed to fetch queue stats: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return models.QueueStats{}, err
	}

	var stats models.QueueStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return models.QueueStats{}, fmt.Errorf("failed to decode queue stats: %w", err)
	}
	return stats, nil
}

// CheckHealth probes the API health endpoint. Any failure maps to false;
// it never returns an error since the probe is advisory only.
func (c *Client) CheckHealth(ctx context.Context) bool {
	req, err := c.newRequest(ctx, "GET", "/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// DownloadURL returns the direct result download URL for a job. These URLs
// are handed to the browser or shell, never fetched by the client itself.
func (c *Client) DownloadURL(jobID string) string {
	return fmt.Sprintf("%s/api/jobs/%s/download", c.baseURL, url.PathEscape(jobID))
}

// OriginalURL returns the direct URL of the uploaded original.
func (c *Client) OriginalURL(jobID string) string {
	return fmt.Sprintf("%s/api/jobs/%s/original", c.baseURL, url.PathEscape(jobID))
}

// ThumbnailURL returns the direct thumbnail URL for a job.
func (c *Client) ThumbnailURL(jobID string) string {
	return fmt.Sprintf("%s/api/jobs/%s/thumbnail", c.baseURL, url.PathEscape(jobID))
}

// BatchDownloadURL returns the direct URL of the zipped batch download.
func (c *Client) BatchDownloadURL(ids []string) string {
	return fmt.Sprintf("%s/api/jobs/batch-download?ids=%s", c.baseURL, url.QueryEscape(strings.Join(ids, ",")))
}

// NormalizeJob maps a loosely-typed server payload into a full Job record,
// substituting safe defaults for anything missing. The wire format is treated
// as untrusted and possibly partial; this never fails.
func NormalizeJob(raw map[string]interface{}) models.Job {
	job := models.Job{
		ID:               rawString(raw, "id"),
		Status:           models.JobStatus(rawString(raw, "status")),
		OriginalFilename: rawString(raw, "original_filename"),
		OriginalKey:      rawString(raw, "original_key"),
		ResultKey:        rawString(raw, "result_key"),
		ResultURL:        rawString(raw, "result_url"),
		OriginalURL:      rawString(raw, "original_url"),
		ThumbnailURL:     rawString(raw, "thumbnail_url"),
		Progress:         rawInt(raw, "progress", 0),
		Scale:            rawInt(raw, "scale", 4),
		Method:           rawString(raw, "method"),
		CreatedAt:        rawString(raw, "created_at"),
		ExpiresAt:        rawString(raw, "expires_at"),
		StartedAt:        rawString(raw, "started_at"),
		FinishedAt:       rawString(raw, "finished_at"),
		ErrorMessage:     rawString(raw, "error_message"),
		StatusDetail:     rawString(raw, "status_detail"),
	}
	if job.Method == "" {
		job.Method = "real_esrgan"
	}
	return job
}

func rawString(raw map[string]interface{}, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func rawInt(raw map[string]interface{}, key string, fallback int) int {
	switch v := raw[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return fallback
}

// progressReader reports monotonic percent-complete as the transport consumes
// the request body.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	lastPct  int
	callback func(int)
}

func newProgressReader(r io.Reader, total int64, callback func(int)) *progressReader {
	return &progressReader{r: r, total: total, callback: callback}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)
	if p.callback != nil && p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct > p.lastPct {
			p.lastPct = pct
			p.callback(pct)
		}
	}
	return n, err
}

// finish guarantees the 0-100 contract: 100 is reported exactly once the
// request has fully resolved, even if the transport buffered the body.
func (p *progressReader) finish() {
	if p.callback != nil && p.lastPct < 100 {
		p.lastPct = 100
		p.callback(100)
	}
}
