// Package poller implements the interval polling engines that keep job state
// fresh: a by-id poller that stops once every tracked job is terminal, and a
// recent-jobs poller that never stops and seeds from the shared cache.
//
// Both are explicit state machines (Idle/Polling/Paused/Settled) owning their
// timer, started and stopped by visibility changes and id-set changes.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/pixeljobs/pixeljobs/pkg/models"
)

// DefaultInterval matches the 2.5s poll cadence of the web client.
const DefaultInterval = 2500 * time.Millisecond

// State is the lifecycle state of a poller instance.
type State int

const (
	StateIdle    State = iota // no ids to poll, or not started
	StatePolling              // timer active
	StatePaused               // hidden; timer cleared, resumes on visible
	StateSettled              // every tracked job terminal; timer cleared
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StatePaused:
		return "paused"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// JobSource fetches current job records by id.
type JobSource interface {
	GetJobs(ctx context.Context, ids []string) ([]models.Job, error)
}

// Config configures a by-id Poller.
type Config struct {
	// IDs is the initial tracked id set. Order is preserved.
	IDs []string
	// Interval between polls; DefaultInterval when zero.
	Interval time.Duration
	// OnJobs receives the full job slice on every successful fetch. The
	// caller's list is replaced wholesale, never patched.
	OnJobs func(jobs []models.Job)
	// OnError receives the failure message on a failed fetch. The last
	// successfully fetched state stays visible; nothing is cleared.
	OnError func(msg string)
	// OnSettled fires after every attempt, success or failure, so callers
	// can tell "still loading" from "fetched at least once".
	OnSettled func()
}

// Poller repeatedly fetches an explicit set of job ids on a fixed interval.
// It stops automatically once every tracked job reaches a terminal status and
// pauses while marked hidden. In-flight requests are never cancelled, but each
// fetch carries a sequence number and a response older than the newest applied
// one is discarded, so a slow poll cannot overwrite fresher state.
type Poller struct {
	source    JobSource
	interval  time.Duration
	onJobs    func([]models.Job)
	onError   func(string)
	onSettled func()

	mu       sync.Mutex
	ctx      context.Context
	started  bool
	visible  bool
	state    State
	ids      []string
	stopTick chan struct{}
	nextSeq  uint64 // sequence assigned to the next fetch, starts at 1
	applied  uint64 // sequence of the newest applied response
	barrier  uint64 // responses with seq below this predate an id-set change
}

// New creates a Poller. Call Start to begin polling.
func New(source JobSource, cfg Config) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		source:    source,
		interval:  interval,
		onJobs:    cfg.OnJobs,
		onError:   cfg.OnError,
		onSettled: cfg.OnSettled,
		ids:       append([]string(nil), cfg.IDs...),
		state:     StateIdle,
		nextSeq:   1,
	}
}

// Start begins polling: an immediate fetch, then one per interval. It is a
// no-op when the id set is empty until SetIDs provides one.
func (p *Poller) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.visible = true
	p.ctx = ctx
	if len(p.ids) == 0 {
		p.state = StateIdle
		p.mu.Unlock()
		return
	}
	p.startTickerLocked()
	p.mu.Unlock()

	go p.fetch()
}

// Stop tears down the timer. In-flight requests resolve but are ignored.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
	p.started = false
	p.state = StateIdle
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Refetch triggers one fetch outside the interval, e.g. right after a cancel
// or retry action to reconcile sooner than the next tick.
func (p *Poller) Refetch() {
	go p.fetch()
}

// SetIDs replaces the tracked id set. A different set (or order) tears down
// the current cycle and establishes a fresh one; responses still in flight
// for the old set are discarded. Identical ids are a no-op.
func (p *Poller) SetIDs(ids []string) {
	p.mu.Lock()
	if sameIDs(p.ids, ids) {
		p.mu.Unlock()
		return
	}
	p.ids = append([]string(nil), ids...)
	p.barrier = p.nextSeq
	p.stopTickerLocked()

	if !p.started || len(p.ids) == 0 {
		p.state = StateIdle
		p.mu.Unlock()
		return
	}
	if !p.visible {
		p.state = StatePaused
		p.mu.Unlock()
		return
	}
	p.startTickerLocked()
	p.mu.Unlock()

	go p.fetch()
}

// SetVisible pauses polling while hidden and resumes it when visible again.
// Becoming visible triggers an immediate fetch and restarts the interval even
// when the last fetch saw all jobs terminal; the next fetch simply re-clears
// it, matching the original behavior.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	if p.visible == visible {
		p.mu.Unlock()
		return
	}
	p.visible = visible

	if !visible {
		if p.state == StatePolling {
			p.stopTickerLocked()
			p.state = StatePaused
		}
		p.mu.Unlock()
		return
	}

	if !p.started || len(p.ids) == 0 {
		p.mu.Unlock()
		return
	}
	p.startTickerLocked()
	p.mu.Unlock()

	go p.fetch()
}

// startTickerLocked replaces any running timer with a fresh one. Caller holds mu.
func (p *Poller) startTickerLocked() {
	p.stopTickerLocked()
	p.state = StatePolling
	stop := make(chan struct{})
	p.stopTick = stop
	ctx := p.ctx

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.fetch()
			}
		}
	}()
}

// stopTickerLocked clears the running timer, if any. Caller holds mu.
func (p *Poller) stopTickerLocked() {
	if p.stopTick != nil {
		close(p.stopTick)
		p.stopTick = nil
	}
}

func (p *Poller) fetch() {
	p.mu.Lock()
	if !p.started || len(p.ids) == 0 {
		p.mu.Unlock()
		return
	}
	seq := p.nextSeq
	p.nextSeq++
	ids := append([]string(nil), p.ids...)
	ctx := p.ctx
	p.mu.Unlock()

	jobs, err := p.source.GetJobs(ctx, ids)

	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	stale := seq < p.barrier || seq <= p.applied
	if !stale {
		if err != nil {
			if p.onError != nil {
				p.onError(err.Error())
			}
		} else {
			p.applied = seq
			if p.onJobs != nil {
				p.onJobs(jobs)
			}
			if models.AllTerminal(jobs) {
				p.stopTickerLocked()
				p.state = StateSettled
			}
		}
	}
	p.mu.Unlock()

	if p.onSettled != nil {
		p.onSettled()
	}
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
