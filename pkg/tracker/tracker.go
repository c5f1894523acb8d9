// Package tracker manages the client-side job list: the ordered tracked id
// set, cancel/retry actions, and queued/processing -> completed notification
// transitions.
package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/pixeljobs/pixeljobs/pkg/models"
)

// ActionClient is the slice of the API client the tracker needs.
type ActionClient interface {
	CancelJob(ctx context.Context, jobID string) (models.Job, error)
	RetryJob(ctx context.Context, jobID string) (models.Job, error)
}

// Notifier is told when a tracked job completes. Implementations own
// permission gating and delivery (desktop notification, log line, ...).
type Notifier interface {
	JobCompleted(job models.Job)
}

// NopNotifier discards completion notifications.
type NopNotifier struct{}

func (NopNotifier) JobCompleted(models.Job) {}

// Tracker holds the ordered tracked id set and the current job list. The list
// is only ever replaced wholesale from server responses fed through Apply, or
// by action results (cancel replaces one record in place, retry prepends a
// new one).
type Tracker struct {
	client   ActionClient
	notifier Notifier
	// refetch asks the owning poller for an off-interval fetch so action
	// results reconcile sooner than the next tick. Optional.
	refetch func()

	mu       sync.Mutex
	ids      []string
	jobs     []models.Job
	prev     map[string]models.JobStatus
	notified map[string]bool
}

// Config configures a Tracker.
type Config struct {
	IDs      []string
	Notifier Notifier
	Refetch  func()
}

// New creates a Tracker for the given client and initial id set.
func New(client ActionClient, cfg Config) *Tracker {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Tracker{
		client:   client,
		notifier: notifier,
		refetch:  cfg.Refetch,
		ids:      append([]string(nil), cfg.IDs...),
		prev:     make(map[string]models.JobStatus),
		notified: make(map[string]bool),
	}
}

// IDs returns the tracked id set in order. Hand this to the poller.
func (t *Tracker) IDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.ids...)
}

// Jobs returns the current job list.
func (t *Tracker) Jobs() []models.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Job(nil), t.jobs...)
}

// Apply replaces the job list with a freshly polled one and fires a
// completion notification for every job whose previous status was queued or
// processing and is now completed. Notifications are tagged by job id so a
// job completes loudly exactly once, however many polls repeat the status.
func (t *Tracker) Apply(jobs []models.Job) {
	t.mu.Lock()
	t.jobs = append([]models.Job(nil), jobs...)

	var completed []models.Job
	next := make(map[string]models.JobStatus, len(jobs))
	for _, job := range jobs {
		next[job.ID] = job.Status
		if job.Status != models.JobStatusCompleted || t.notified[job.ID] {
			continue
		}
		prev, seen := t.prev[job.ID]
		if seen && prev != models.JobStatusQueued && prev != models.JobStatusProcessing {
			continue
		}
		if !seen {
			// First observation already completed: no transition to announce.
			t.notified[job.ID] = true
			continue
		}
		t.notified[job.ID] = true
		completed = append(completed, job)
	}
	t.prev = next
	t.mu.Unlock()

	for _, job := range completed {
		t.notifier.JobCompleted(job)
	}
}

// Cancel cancels a queued or processing job. On success the server's updated
// record replaces the job in place and a refetch is requested to reconcile
// the rest sooner. The local status is never flipped optimistically; failure
// leaves the row untouched for the caller to re-enable its control.
func (t *Tracker) Cancel(ctx context.Context, jobID string) (models.Job, error) {
	t.mu.Lock()
	job, ok := t.findLocked(jobID)
	t.mu.Unlock()
	if !ok {
		return models.Job{}, fmt.Errorf("job %s is not tracked", jobID)
	}
	if job.Status != models.JobStatusQueued && job.Status != models.JobStatusProcessing {
		return models.Job{}, fmt.Errorf("job %s is %s and cannot be cancelled", jobID, job.Status)
	}

	updated, err := t.client.CancelJob(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}

	t.mu.Lock()
	for i := range t.jobs {
		if t.jobs[i].ID == jobID {
			t.jobs[i] = updated
			break
		}
	}
	t.prev[updated.ID] = updated.Status
	refetch := t.refetch
	t.mu.Unlock()

	if refetch != nil {
		refetch()
	}
	return updated, nil
}

// Retry creates a fresh attempt for a failed job. The new Job is prepended to
// the list and its id to the tracked set so future polls include it; the
// original failed row is kept unchanged.
func (t *Tracker) Retry(ctx context.Context, jobID string) (models.Job, error) {
	t.mu.Lock()
	job, ok := t.findLocked(jobID)
	t.mu.Unlock()
	if !ok {
		return models.Job{}, fmt.Errorf("job %s is not tracked", jobID)
	}
	if job.Status != models.JobStatusFailed {
		return models.Job{}, fmt.Errorf("job %s is %s; only failed jobs can be retried", jobID, job.Status)
	}

	fresh, err := t.client.RetryJob(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}

	t.mu.Lock()
	t.jobs = append([]models.Job{fresh}, t.jobs...)
	t.ids = append([]string{fresh.ID}, t.ids...)
	t.prev[fresh.ID] = fresh.Status
	refetch := t.refetch
	t.mu.Unlock()

	if refetch != nil {
		refetch()
	}
	return fresh, nil
}

// BatchDownloadable reports whether the batch download affordance applies:
// more than one job in the current set is completed.
func (t *Tracker) BatchDownloadable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	completed := 0
	for _, job := range t.jobs {
		if job.Status == models.JobStatusCompleted {
			completed++
		}
	}
	return completed > 1
}

// CompletedIDs returns the ids of completed jobs, in list order.
func (t *Tracker) CompletedIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for _, job := range t.jobs {
		if job.Status == models.JobStatusCompleted {
			ids = append(ids, job.ID)
		}
	}
	return ids
}

func (t *Tracker) findLocked(jobID string) (models.Job, bool) {
	for _, job := range t.jobs {
		if job.ID == jobID {
			return job, true
		}
	}
	return models.Job{}, false
}
