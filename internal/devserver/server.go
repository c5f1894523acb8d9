// Package devserver provides an in-memory stand-in for the job-processing
// API, used for local development and integration tests. Jobs advance through
// their lifecycle on a tick so poll loops have something to observe.
package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const progressStep = 25

// record is the server-side job state. Field names follow the wire format.
type record struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	OriginalFilename string `json:"original_filename"`
	OriginalKey      string `json:"original_key"`
	ResultKey        string `json:"result_key,omitempty"`
	ResultURL        string `json:"result_url,omitempty"`
	Progress         int    `json:"progress"`
	Scale            int    `json:"scale"`
	Method           string `json:"method"`
	CreatedAt        string `json:"created_at"`
	StartedAt        string `json:"started_at,omitempty"`
	FinishedAt       string `json:"finished_at,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`

	seq int
}

// Handler implements the job API against an in-memory store.
type Handler struct {
	mu      sync.Mutex
	jobs    map[string]*record
	nextSeq int
}

// NewHandler creates an empty Handler.
func NewHandler() *Handler {
	return &Handler{jobs: make(map[string]*record)}
}

// RegisterRoutes registers all API routes. Specific routes go before
// parameterized ones.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/jobs/upload", h.UploadJobs).Methods("POST")
	r.HandleFunc("/api/jobs/queue-stats", h.QueueStats).Methods("GET")
	r.HandleFunc("/api/jobs/batch-download", h.BatchDownload).Methods("GET")
	r.HandleFunc("/api/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/api/jobs/{id}/cancel", h.CancelJob).Methods("POST")
	r.HandleFunc("/api/jobs/{id}/retry", h.RetryJob).Methods("POST")
	r.HandleFunc("/api/jobs/{id}/download", h.Download).Methods("GET")
	r.HandleFunc("/api/jobs/{id}/original", h.Original).Methods("GET")
	r.HandleFunc("/api/jobs/{id}/thumbnail", h.Thumbnail).Methods("GET")
	r.HandleFunc("/api/health", h.Health).Methods("GET")
}

// Router returns a ready-to-serve router with all routes registered.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// UploadJobs accepts a multipart submission and creates one queued job per
// file part. Files whose name starts with "fail" will fail when processed,
// which keeps failure paths testable.
func (h *Handler) UploadJobs(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(256 << 20); err != nil {
		http.Error(w, `{"error":"invalid multipart body"}`, http.StatusBadRequest)
		return
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		http.Error(w, `{"error":"no files provided"}`, http.StatusBadRequest)
		return
	}

	scale := 4
	if v, err := strconv.Atoi(r.FormValue("scale")); err == nil && v > 0 {
		scale = v
	}
	method := r.FormValue("method")
	if method == "" {
		method = "real_esrgan"
	}

	h.mu.Lock()
	var ids []string
	for _, fh := range r.MultipartForm.File["files"] {
		rec := &record{
			ID:               uuid.New().String(),
			Status:           "queued",
			OriginalFilename: fh.Filename,
			OriginalKey:      "originals/" + fh.Filename,
			Scale:            scale,
			Method:           method,
			CreatedAt:        time.Now().UTC().Format(time.RFC3339),
			seq:              h.nextSeq,
		}
		h.nextSeq++
		h.jobs[rec.ID] = rec
		ids = append(ids, rec.ID)
	}
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"job_ids": ids})
}

// ListJobs returns jobs filtered by ?ids=a,b or, without a filter, the most
// recent ?limit=N jobs newest first.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	var out []*record
	if rawIDs := r.URL.Query().Get("ids"); rawIDs != "" {
		for _, id := range strings.Split(rawIDs, ",") {
			if rec, ok := h.jobs[id]; ok {
				copied := *rec
				out = append(out, &copied)
			}
		}
	} else {
		for _, rec := range h.jobs {
			copied := *rec
			out = append(out, &copied)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].seq > out[j].seq })
		limit := 50
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
			limit = v
		}
		if len(out) > limit {
			out = out[:limit]
		}
	}
	h.mu.Unlock()

	if out == nil {
		out = []*record{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// CancelJob cancels a queued or processing job. Anything else is a conflict.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	h.mu.Lock()
	rec, ok := h.jobs[jobID]
	if !ok {
		h.mu.Unlock()
		http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
		return
	}
	if rec.Status != "queued" && rec.Status != "processing" {
		status := rec.Status
		h.mu.Unlock()
		http.Error(w, fmt.Sprintf(`{"error":"job is %s and cannot be cancelled"}`, status), http.StatusConflict)
		return
	}
	rec.Status = "cancelled"
	rec.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	copied := *rec
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&copied)
}

// RetryJob creates a fresh queued job for a failed one. The failed record
// stays untouched.
func (h *Handler) RetryJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	h.mu.Lock()
	rec, ok := h.jobs[jobID]
	if !ok {
		h.mu.Unlock()
		http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
		return
	}
	if rec.Status != "failed" {
		status := rec.Status
		h.mu.Unlock()
		http.Error(w, fmt.Sprintf(`{"error":"job is %s; only failed jobs can be retried"}`, status), http.StatusConflict)
		return
	}
	fresh := &record{
		ID:               uuid.New().String(),
		Status:           "queued",
		OriginalFilename: rec.OriginalFilename,
		OriginalKey:      rec.OriginalKey,
		Scale:            rec.Scale,
		Method:           rec.Method,
		CreatedAt:        time.Now().UTC().Format(time.RFC3339),
		seq:              h.nextSeq,
	}
	h.nextSeq++
	h.jobs[fresh.ID] = fresh
	copied := *fresh
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&copied)
}

// QueueStats returns current queue depth counters.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	queued, processing := 0, 0
	for _, rec := range h.jobs {
		switch rec.Status {
		case "queued":
			queued++
		case "processing":
			processing++
		}
	}
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"queued": queued, "processing": processing})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Download serves a placeholder result for a completed job.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	h.serveArtifact(w, r, "result", true)
}

// Original serves a placeholder of the uploaded original.
func (h *Handler) Original(w http.ResponseWriter, r *http.Request) {
	h.serveArtifact(w, r, "original", false)
}

// Thumbnail serves a placeholder thumbnail.
func (h *Handler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	h.serveArtifact(w, r, "thumbnail", false)
}

func (h *Handler) serveArtifact(w http.ResponseWriter, r *http.Request, kind string, completedOnly bool) {
	jobID := mux.Vars(r)["id"]

	h.mu.Lock()
	rec, ok := h.jobs[jobID]
	var status, filename string
	if ok {
		status, filename = rec.Status, rec.OriginalFilename
	}
	h.mu.Unlock()

	if !ok {
		http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
		return
	}
	if completedOnly && status != "completed" {
		http.Error(w, `{"error":"job has no result yet"}`, http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	fmt.Fprintf(w, "%s of %s", kind, filename)
}

// BatchDownload serves a placeholder archive for ?ids=a,b.
func (h *Handler) BatchDownload(w http.ResponseWriter, r *http.Request) {
	rawIDs := r.URL.Query().Get("ids")
	if rawIDs == "" {
		http.Error(w, `{"error":"ids parameter is required"}`, http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	fmt.Fprintf(w, "archive of %s", rawIDs)
}

// Step advances every active job one lifecycle tick: queued jobs start
// processing, processing jobs gain progress and finish at 100. Jobs whose
// filename starts with "fail" fail instead of completing.
func (h *Handler) Step() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, rec := range h.jobs {
		switch rec.Status {
		case "queued":
			rec.Status = "processing"
			rec.Progress = 0
			rec.StartedAt = now
		case "processing":
			rec.Progress += progressStep
			if rec.Progress < 100 {
				continue
			}
			rec.Progress = 100
			rec.FinishedAt = now
			if strings.HasPrefix(rec.OriginalFilename, "fail") {
				rec.Status = "failed"
				rec.ErrorMessage = "processing failed"
			} else {
				rec.Status = "completed"
				rec.ResultKey = "results/" + rec.OriginalFilename
				rec.ResultURL = "/api/jobs/" + rec.ID + "/download"
			}
		}
	}
}

// Run advances the lifecycle on the given interval until stop is closed.
func (h *Handler) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.Step()
		}
	}
}
