package poller

import (
	"context"
	"sync"
	"time"

	"github.com/pixeljobs/pixeljobs/pkg/jobcache"
	"github.com/pixeljobs/pixeljobs/pkg/models"
)

// RecentSource fetches the most recent jobs without an id filter.
type RecentSource interface {
	GetRecentJobs(ctx context.Context, limit int) ([]models.Job, error)
}

// RecentConfig configures a RecentPoller.
type RecentConfig struct {
	// Limit bounds each fetch; api.DefaultRecentLimit applies when zero.
	Limit int
	// Interval between polls; DefaultInterval when zero.
	Interval time.Duration
	// Cache seeds the first paint and is updated after every successful
	// fetch. jobcache.Shared when nil.
	Cache *jobcache.Cache
	// OnJobs receives the full job slice: once synchronously from the cache
	// on Start (if filled), then on every successful fetch.
	OnJobs func(jobs []models.Job)
	// OnError receives the failure message on a failed fetch. The last
	// applied list stays; this is observation only, nothing is cleared.
	OnError func(msg string)
}

// RecentPoller polls the open-ended recent-jobs list. It follows the same
// interval and visibility discipline as Poller but never settles: the recent
// set has no terminal condition. Fetch failures never surface as state; this
// view is advisory and a stale list is an acceptable degradation. OnError
// still reports them so watchers can count or log failures.
type RecentPoller struct {
	source   RecentSource
	limit    int
	interval time.Duration
	cache    *jobcache.Cache
	onJobs   func([]models.Job)
	onError  func(string)

	mu       sync.Mutex
	ctx      context.Context
	started  bool
	visible  bool
	state    State
	stopTick chan struct{}
	nextSeq  uint64
	applied  uint64
}

// NewRecent creates a RecentPoller. Call Start to begin polling.
func NewRecent(source RecentSource, cfg RecentConfig) *RecentPoller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	cache := cfg.Cache
	if cache == nil {
		cache = jobcache.Shared
	}
	return &RecentPoller{
		source:   source,
		limit:    cfg.Limit,
		interval: interval,
		cache:    cache,
		onJobs:   cfg.OnJobs,
		onError:  cfg.OnError,
		state:    StateIdle,
		nextSeq:  1,
	}
}

// Start paints synchronously from the cache (when filled) so there is no
// empty-state flash, then begins fetching: once immediately, then on the
// interval.
func (p *RecentPoller) Start(ctx context.Context) {
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

	if cached, ok := p.cache.Get(); ok && p.onJobs != nil {
		p.onJobs(cached)
	}
	p.startTickerLocked()
	p.mu.Unlock()

	go p.fetch()
}

// Stop tears down the timer.
func (p *RecentPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
	p.started = false
	p.state = StateIdle
}

// State returns the current lifecycle state.
func (p *RecentPoller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Refetch triggers one fetch outside the interval.
func (p *RecentPoller) Refetch() {
	go p.fetch()
}

// SetVisible pauses polling while hidden; visible again triggers an immediate
// fetch and restarts the interval.
func (p *RecentPoller) SetVisible(visible bool) {
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

	if !p.started {
		p.mu.Unlock()
		return
	}
	p.startTickerLocked()
	p.mu.Unlock()

	go p.fetch()
}

func (p *RecentPoller) startTickerLocked() {
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

func (p *RecentPoller) stopTickerLocked() {
	if p.stopTick != nil {
		close(p.stopTick)
		p.stopTick = nil
	}
}

func (p *RecentPoller) fetch() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	seq := p.nextSeq
	p.nextSeq++
	ctx := p.ctx
	p.mu.Unlock()

	jobs, err := p.source.GetRecentJobs(ctx, p.limit)
	if err != nil {
		// Advisory view: stale data beats an error state.
		if p.onError != nil {
			p.onError(err.Error())
		}
		return
	}

	p.mu.Lock()
	if !p.started || seq <= p.applied {
		p.mu.Unlock()
		return
	}
	p.applied = seq
	p.cache.Put(jobs)
	if p.onJobs != nil {
		p.onJobs(jobs)
	}
	p.mu.Unlock()
}
