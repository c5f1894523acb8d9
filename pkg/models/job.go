package models

// JobStatus represents the lifecycle state of a job as reported by the API.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether the status is one the server will never advance past.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job is the unit of work tracked by the client. A Job is only ever replaced
// wholesale from a server response; the client never patches individual fields,
// so status and result fields stay mutually consistent.
type Job struct {
	ID               string    `json:"id"`
	Status           JobStatus `json:"status"`
	OriginalFilename string    `json:"original_filename"`
	OriginalKey      string    `json:"original_key,omitempty"`
	ResultKey        string    `json:"result_key,omitempty"`
	ResultURL        string    `json:"result_url,omitempty"`
	OriginalURL      string    `json:"original_url,omitempty"`
	ThumbnailURL     string    `json:"thumbnail_url,omitempty"`
	Progress         int       `json:"progress,omitempty"` // 0-100, meaningful while processing
	Scale            int       `json:"scale"`
	Method           string    `json:"method"`
	CreatedAt        string    `json:"created_at"` // ISO-8601; display only, never parsed for logic
	ExpiresAt        string    `json:"expires_at,omitempty"`
	StartedAt        string    `json:"started_at,omitempty"`
	FinishedAt       string    `json:"finished_at,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	StatusDetail     string    `json:"status_detail,omitempty"`
}

// AllTerminal reports whether every job in the slice reached a terminal status.
// An empty slice counts as terminal: there is nothing left to poll for.
func AllTerminal(jobs []Job) bool {
	for _, j := range jobs {
		if !j.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// UploadOptions carries the method-independent upload form fields plus a
// free-form option bag for method-specific parameters (crop rectangle,
// watermark text, ...). The bag is sent as a single JSON-encoded form field.
type UploadOptions struct {
	Scale        int
	Method       string
	DenoiseFirst bool
	FaceEnhance  bool
	TargetFormat string
	Quality      int
	Options      map[string]interface{}
}

// QueueStats is the advisory queue depth snapshot used for "X in queue" banners.
type QueueStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
}
