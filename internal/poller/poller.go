// Package poller implements the fixed-interval pull loops that keep the
// client's query cache fresh. A poller issues a fetch on every tick whether
// or not the previous one has completed; results are ordered through the
// cache's sequence numbers instead of by waiting.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/opsdesk/teamchat/internal/client"
	"github.com/opsdesk/teamchat/internal/querycache"
)

const (
	// MessageInterval is the refetch period of the message poller.
	MessageInterval = 2000 * time.Millisecond

	// TypingInterval is the refetch period of the presence poller.
	TypingInterval = 1000 * time.Millisecond
)

// FetchFunc performs one request. The context is cancelled when the poller
// stops; implementations may ignore that, their result is dropped anyway.
type FetchFunc func(ctx context.Context) (any, error)

// Config controls a single poller.
type Config struct {
	Name     string        // used in logs
	Key      string        // query cache key
	Interval time.Duration // time between fetches
}

// MessageConfig returns the configuration of the chat message poller.
func MessageConfig() Config {
	return Config{Name: "messages", Key: querycache.KeyMessages, Interval: MessageInterval}
}

// TypingConfig returns the configuration of the typing indicator poller.
func TypingConfig() Config {
	return Config{Name: "typing", Key: querycache.KeyTyping, Interval: TypingInterval}
}

// Stats are cumulative counters for one poller.
type Stats struct {
	Issued    uint64
	Applied   uint64
	Discarded uint64
	Failed    uint64
}

// Option customises a Poller.
type Option func(*Poller)

// WithClock replaces the real clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithErrorHandler is called for fetch errors other than ErrUnauthorized.
func WithErrorHandler(fn func(error)) Option {
	return func(p *Poller) { p.onError = fn }
}

// WithUnauthorizedHandler is called when a fetch fails with
// client.ErrUnauthorized.
func WithUnauthorizedHandler(fn func(error)) Option {
	return func(p *Poller) { p.onUnauthorized = fn }
}

// Poller repeatedly runs a FetchFunc and applies its results to a cache.
type Poller struct {
	cfg   Config
	fetch FetchFunc
	cache *querycache.Cache
	clock clockwork.Clock

	onError        func(error)
	onUnauthorized func(error)

	mu      sync.Mutex
	running bool
	gen     uint64
	cancel  context.CancelFunc
	done    chan struct{}
	refresh chan struct{}

	issued    atomic.Uint64
	applied   atomic.Uint64
	discarded atomic.Uint64
	failed    atomic.Uint64
}

// New creates a stopped poller.
func New(cfg Config, fetch FetchFunc, cache *querycache.Cache, opts ...Option) *Poller {
	p := &Poller{
		cfg:   cfg,
		fetch: fetch,
		cache: cache,
		clock: clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start begins polling: one fetch immediately, then one per interval. The
// ticker is armed before Start returns. Calling Start on a running poller is
// a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.gen++
	gen := p.gen
	p.cancel = cancel
	p.done = make(chan struct{})
	p.refresh = make(chan struct{}, 1)
	ticker := p.clock.NewTicker(p.cfg.Interval)
	done, refresh := p.done, p.refresh
	p.mu.Unlock()

	log.Debug().Str("component", "poller").Str("poller", p.cfg.Name).
		Dur("interval", p.cfg.Interval).Msg("started")

	p.issue(ctx, gen)
	go p.loop(ctx, gen, ticker, done, refresh)
}

// Stop halts the poller. When Stop returns the ticker is stopped, the loop
// goroutine has exited, and no fetch issued before the call can write to
// the cache any more.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.gen++
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	<-done
	log.Debug().Str("component", "poller").Str("poller", p.cfg.Name).Msg("stopped")
}

// Running reports whether the poller is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Refresh asks for a fetch outside the regular schedule. Requests made while
// one is already pending are coalesced.
func (p *Poller) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Mutate applies an optimistic change to the cached value. Responses to
// fetches issued before the mutation are discarded when they complete, so
// the change survives until a newer fetch replaces it. A stopped poller
// refuses mutations.
func (p *Poller) Mutate(fn func(old any) any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return false
	}
	return p.cache.Update(p.cfg.Key, p.cache.NextSeq(), fn)
}

// MutateIn is Mutate restricted to the cache epoch read before the change
// was requested. It is refused once the cache has been cleared since.
func (p *Poller) MutateIn(epoch uint64, fn func(old any) any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return false
	}
	return p.cache.UpdateIn(epoch, p.cfg.Key, p.cache.NextSeq(), fn)
}

// Stats returns a snapshot of the poller's counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Issued:    p.issued.Load(),
		Applied:   p.applied.Load(),
		Discarded: p.discarded.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Poller) loop(ctx context.Context, gen uint64, ticker clockwork.Ticker, done chan struct{}, refresh <-chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.issue(ctx, gen)
		case <-refresh:
			p.issue(ctx, gen)
		}
	}
}

// issue starts one fetch without waiting for earlier ones.
func (p *Poller) issue(ctx context.Context, gen uint64) {
	p.mu.Lock()
	if !p.running || p.gen != gen {
		p.mu.Unlock()
		return
	}
	seq := p.cache.NextSeq()
	p.mu.Unlock()

	p.issued.Add(1)
	go func() {
		v, err := p.fetch(ctx)
		p.complete(gen, seq, v, err)
	}()
}

func (p *Poller) complete(gen, seq uint64, v any, err error) {
	p.mu.Lock()
	if !p.running || p.gen != gen {
		p.mu.Unlock()
		p.discarded.Add(1)
		return
	}
	if err != nil {
		p.mu.Unlock()
		p.failed.Add(1)
		p.handleError(err)
		return
	}
	ok := p.cache.Apply(p.cfg.Key, seq, v)
	p.mu.Unlock()

	if ok {
		p.applied.Add(1)
	} else {
		p.discarded.Add(1)
	}
}

func (p *Poller) handleError(err error) {
	if errors.Is(err, client.ErrUnauthorized) {
		log.Warn().Str("component", "poller").Str("poller", p.cfg.Name).Err(err).Msg("fetch unauthorized")
		if p.onUnauthorized != nil {
			p.onUnauthorized(err)
		}
		return
	}
	log.Debug().Str("component", "poller").Str("poller", p.cfg.Name).Err(err).Msg("fetch failed")
	if p.onError != nil {
		p.onError(err)
	}
}
