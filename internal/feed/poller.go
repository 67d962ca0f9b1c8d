// Package feed keeps a client-side mirror of the monitor's detection feed.
//
// A Poller fetches the newest-first collection on a fixed interval and
// exposes the last applied result as a Snapshot. At most one fetch is in
// flight: starting a cycle cancels the previous one, and a response is only
// applied when it belongs to the newest cycle. Failures keep the previous
// data and flip the status to StatusError until the next success.
package feed

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/pothole-monitor/internal/domain"
	"github.com/jonboulle/clockwork"
)

// DefaultInterval is the polling period when none is configured.
const DefaultInterval = time.Second

// Status is the connection state shown next to the feed.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusLive       Status = "live"
	StatusError      Status = "error"
)

// Fetcher retrieves one page of the feed.
type Fetcher interface {
	Fetch(ctx context.Context) (domain.FeedPage, error)
}

// Snapshot is a copy of the poller state.
type Snapshot struct {
	Status     Status
	Detections []domain.Detection
	LastUpdate string
	Err        string
}

func (s Snapshot) clone() Snapshot {
	s.Detections = slices.Clone(s.Detections)
	return s
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the polling period.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock sets the clock used for ticks and fallback timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(p *Poller) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// OnChange registers a listener called with every applied snapshot. Calls
// are serialized. The listener must not call Close.
func OnChange(fn func(Snapshot)) Option {
	return func(p *Poller) { p.onChange = fn }
}

// Poller mirrors the feed by polling a Fetcher.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	onChange func(Snapshot)

	mu     sync.Mutex
	state  Snapshot
	gen    uint64
	cancel context.CancelFunc
	closed bool
	done   chan struct{}

	// notifyMu serializes apply+listener so Close can wait out a call in progress.
	notifyMu sync.Mutex
}

// NewPoller creates a poller in the connecting state with no data.
func NewPoller(fetcher Fetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		interval: DefaultInterval,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		state: Snapshot{
			Status:     StatusConnecting,
			Detections: []domain.Detection{},
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls immediately and then on every tick until ctx ends or Close is
// called. The poller is closed when Run returns.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.Close()

	p.logger.Info("feed poller started", "interval", p.interval)
	p.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("feed poller stopping", "reason", ctx.Err())
			return
		case <-p.done:
			return
		case <-ticker.Chan():
			p.Poll(ctx)
		}
	}
}

// Poll starts one fetch cycle, superseding any request still in flight. The
// returned channel is closed once this cycle's result has been applied or
// discarded. On a closed poller Poll does nothing and the channel is already
// closed.
func (p *Poller) Poll(ctx context.Context) <-chan struct{} {
	finished := make(chan struct{})

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		close(finished)
		return finished
	}
	if p.cancel != nil {
		p.cancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	p.gen++
	gen := p.gen
	p.cancel = cancel
	p.mu.Unlock()

	go func() {
		defer close(finished)
		defer cancel()
		page, err := p.fetcher.Fetch(reqCtx)
		p.apply(gen, page, err)
	}()
	return finished
}

func (p *Poller) apply(gen uint64, page domain.FeedPage, err error) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	if p.closed || gen != p.gen {
		p.mu.Unlock()
		p.logger.Debug("discarding stale feed response", "generation", gen)
		return
	}

	if err != nil {
		p.state.Status = StatusError
		p.state.Err = err.Error()
		p.logger.Warn("feed fetch failed", "error", err)
	} else {
		p.state.Status = StatusLive
		p.state.Err = ""
		p.state.Detections = slices.Clone(page.Detections)
		if p.state.Detections == nil {
			p.state.Detections = []domain.Detection{}
		}
		if page.LastUpdate != nil {
			p.state.LastUpdate = *page.LastUpdate
		} else {
			p.state.LastUpdate = domain.FormatTimestamp(p.clock.Now())
		}
	}
	snap := p.state.clone()
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange(snap)
	}
}

// Snapshot returns a copy of the current state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// Close cancels the in-flight request and stops polling. Once Close returns
// the state no longer changes and the listener is not called again. Close is
// idempotent.
func (p *Poller) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	close(p.done)
	p.mu.Unlock()

	// Wait for a listener call that passed the closed check before we set it.
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
}
