// Package conversation is the client-side model of the chat screen. A View
// ties the session gate to the two pollers and the typing debouncer, keeps
// the composer draft, and exposes the merged, sorted state a renderer needs.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/opsdesk/teamchat/internal/chat"
	"github.com/opsdesk/teamchat/internal/client"
	"github.com/opsdesk/teamchat/internal/poller"
	"github.com/opsdesk/teamchat/internal/querycache"
	"github.com/opsdesk/teamchat/internal/session"
	"github.com/opsdesk/teamchat/internal/typing"
)

var (
	// ErrEmptyMessage is returned by Send when the trimmed draft is empty.
	ErrEmptyMessage = errors.New("conversation: empty message")

	// ErrNoSession is returned by Send while logged out.
	ErrNoSession = errors.New("conversation: no active session")
)

// API is the subset of the REST client the view calls.
type API interface {
	ListMessages(ctx context.Context) ([]chat.Message, error)
	ListTyping(ctx context.Context) ([]chat.TypingIndicator, error)
	SendMessage(ctx context.Context, body string) (*chat.Message, error)
	SetTyping(ctx context.Context, isTyping bool) error
}

// Config holds the view's timing parameters.
type Config struct {
	MessageInterval time.Duration // message poller period
	TypingInterval  time.Duration // presence poller period
	TypingTimeout   time.Duration // quiet period before typing=false
	TypingExpiry    time.Duration // typing cache entries older than this are hidden
	SignalQueue     int           // buffered typing signals
	SignalTimeout   time.Duration // per SetTyping request
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		MessageInterval: poller.MessageInterval,
		TypingInterval:  poller.TypingInterval,
		TypingTimeout:   typing.DefaultTimeout,
		TypingExpiry:    3 * time.Second,
		SignalQueue:     16,
		SignalTimeout:   5 * time.Second,
	}
}

// Option customises a View.
type Option func(*View)

// WithClock drives pollers, the debouncer and typing expiry from c.
func WithClock(c clockwork.Clock) Option {
	return func(v *View) { v.clock = c }
}

// View is one mounted conversation screen.
type View struct {
	api   API
	gate  *session.Gate
	cfg   Config
	clock clockwork.Clock

	messages  *poller.Poller
	presence  *poller.Poller
	debouncer *typing.Debouncer

	// life serialises Mount, Unmount and session transitions so pollers
	// only ever run while mounted.
	life sync.Mutex

	mu          sync.Mutex
	mounted     bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	draft       string
	notice      string

	sigMu   sync.Mutex
	signals chan bool
}

// New creates an unmounted view.
func New(api API, gate *session.Gate, cfg Config, opts ...Option) *View {
	def := DefaultConfig()
	if cfg.MessageInterval <= 0 {
		cfg.MessageInterval = def.MessageInterval
	}
	if cfg.TypingInterval <= 0 {
		cfg.TypingInterval = def.TypingInterval
	}
	if cfg.TypingExpiry <= 0 {
		cfg.TypingExpiry = def.TypingExpiry
	}
	if cfg.SignalQueue <= 0 {
		cfg.SignalQueue = def.SignalQueue
	}
	if cfg.SignalTimeout <= 0 {
		cfg.SignalTimeout = def.SignalTimeout
	}

	v := &View{
		api:   api,
		gate:  gate,
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(v)
	}

	// Fetches issued after logout never reach the API.
	guard := func(fetch poller.FetchFunc) poller.FetchFunc {
		return func(ctx context.Context) (any, error) {
			if !gate.Active() {
				return nil, ErrNoSession
			}
			return fetch(ctx)
		}
	}

	pollerOpts := []poller.Option{
		poller.WithClock(v.clock),
		poller.WithUnauthorizedHandler(gate.Invalidate),
	}
	v.messages = poller.New(
		poller.Config{Name: "messages", Key: querycache.KeyMessages, Interval: cfg.MessageInterval},
		guard(func(ctx context.Context) (any, error) { return api.ListMessages(ctx) }),
		gate.Cache(), pollerOpts...,
	)
	v.presence = poller.New(
		poller.Config{Name: "typing", Key: querycache.KeyTyping, Interval: cfg.TypingInterval},
		guard(func(ctx context.Context) (any, error) { return api.ListTyping(ctx) }),
		gate.Cache(), pollerOpts...,
	)
	v.debouncer = typing.New(v.clock, cfg.TypingTimeout, v.enqueueSignal)
	return v
}

// Mount activates the view. Pollers run whenever a session is present,
// starting immediately if one already is.
func (v *View) Mount(ctx context.Context) {
	v.life.Lock()
	defer v.life.Unlock()

	v.mu.Lock()
	if v.mounted {
		v.mu.Unlock()
		return
	}
	v.mounted = true
	v.ctx, v.cancel = context.WithCancel(ctx)

	signals := make(chan bool, v.cfg.SignalQueue)
	v.sigMu.Lock()
	v.signals = signals
	v.sigMu.Unlock()
	go v.signalWorker(signals)

	v.unsubscribe = v.gate.Subscribe(v.onSession)
	v.mu.Unlock()

	if v.gate.Active() {
		v.activateLocked()
	}
}

// Unmount stops both pollers and the debouncer before returning. A final
// typing=false is queued when the user was typing; its delivery is best
// effort.
func (v *View) Unmount() {
	v.life.Lock()
	defer v.life.Unlock()

	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return
	}
	v.mounted = false
	unsubscribe, cancel := v.unsubscribe, v.cancel
	v.unsubscribe, v.cancel = nil, nil
	v.mu.Unlock()

	unsubscribe()
	v.messages.Stop()
	v.presence.Stop()
	v.debouncer.Close()
	cancel()

	v.sigMu.Lock()
	close(v.signals)
	v.signals = nil
	v.sigMu.Unlock()
}

// Enabled reports whether the view is mounted and a session is present.
func (v *View) Enabled() bool {
	v.mu.Lock()
	mounted := v.mounted
	v.mu.Unlock()
	return mounted && v.gate.Active()
}

// CurrentUser returns the gate's session.
func (v *View) CurrentUser() *session.Session {
	return v.gate.CurrentUser()
}

// SetDraft records a keystroke in the composer.
func (v *View) SetDraft(content string) {
	v.mu.Lock()
	v.draft = content
	v.mu.Unlock()

	if v.Enabled() {
		v.debouncer.Keystroke(content)
	}
}

// Draft returns the composer content.
func (v *View) Draft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.draft
}

// Notice returns the last user-visible error, or "".
func (v *View) Notice() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.notice
}

// Send posts the trimmed draft. Empty drafts and a missing session are
// rejected without a network call. The typing state is cleared before the
// request is made. On failure the draft is kept. When the session changes
// while the request is in flight the message is not merged into the cache.
func (v *View) Send(ctx context.Context) (*chat.Message, error) {
	draft := v.Draft()
	body := strings.TrimSpace(draft)
	if body == "" {
		return nil, ErrEmptyMessage
	}
	// The epoch is read before the session check so a logout in between is
	// caught by the cache.
	epoch := v.gate.Cache().Epoch()
	if v.gate.CurrentUser() == nil {
		return nil, ErrNoSession
	}
	if err := chat.ValidateMessage(body); err != nil {
		v.setNotice(err.Error())
		return nil, fmt.Errorf("conversation: send: %w", err)
	}

	v.debouncer.Sent()

	m, err := v.api.SendMessage(ctx, body)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			v.gate.Invalidate(err)
		}
		v.setNotice("Failed to send message")
		log.Warn().Str("component", "conversation").Err(err).Msg("send failed")
		return nil, fmt.Errorf("conversation: send: %w", err)
	}

	v.mu.Lock()
	if v.draft == draft {
		v.draft = ""
	}
	v.notice = ""
	v.mu.Unlock()

	v.messages.MutateIn(epoch, func(old any) any {
		msgs, _ := old.([]chat.Message)
		if chat.ContainsMessage(msgs, m.ID) {
			return msgs
		}
		next := make([]chat.Message, 0, len(msgs)+1)
		next = append(next, msgs...)
		return append(next, *m)
	})
	v.messages.Refresh()
	return m, nil
}

// Messages returns the cached messages in ascending created_at order.
func (v *View) Messages() []chat.Message {
	msgs, _ := querycache.Lookup[[]chat.Message](v.gate.Cache(), querycache.KeyMessages)
	return chat.SortedCopy(msgs)
}

// Typing returns the other users currently typing. A typing cache entry that
// has not been refreshed within TypingExpiry is treated as empty.
func (v *View) Typing() []chat.TypingIndicator {
	e, ok := v.gate.Cache().Get(querycache.KeyTyping)
	if !ok || v.clock.Since(e.UpdatedAt) > v.cfg.TypingExpiry {
		return nil
	}
	all, _ := e.Value.([]chat.TypingIndicator)

	var self string
	if u := v.gate.CurrentUser(); u != nil {
		self = u.ID
	}
	out := make([]chat.TypingIndicator, 0, len(all))
	for _, ind := range all {
		if ind.IsTyping && ind.AuthorID != self {
			out = append(out, ind)
		}
	}
	return chat.LatestTyping(out)
}

// IsOwn reports whether m was written by the local user.
func (v *View) IsOwn(m chat.Message) bool {
	u := v.gate.CurrentUser()
	return u != nil && m.AuthorID == u.ID
}

// PollerStats returns the message and presence poller counters.
func (v *View) PollerStats() (messages, presence poller.Stats) {
	return v.messages.Stats(), v.presence.Stats()
}

func (v *View) onSession(s *session.Session) {
	if s == nil {
		v.deactivate()
		return
	}
	v.activate()
}

func (v *View) activate() {
	v.life.Lock()
	defer v.life.Unlock()
	v.activateLocked()
}

func (v *View) activateLocked() {
	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return
	}
	ctx := v.ctx
	v.notice = ""
	v.mu.Unlock()

	v.messages.Start(ctx)
	v.presence.Start(ctx)
}

func (v *View) deactivate() {
	v.life.Lock()
	defer v.life.Unlock()

	v.messages.Stop()
	v.presence.Stop()
	v.debouncer.Reset()
}

func (v *View) setNotice(s string) {
	v.mu.Lock()
	v.notice = s
	v.mu.Unlock()
}

// enqueueSignal is the debouncer's SignalFunc. It never blocks.
func (v *View) enqueueSignal(isTyping bool) {
	v.sigMu.Lock()
	defer v.sigMu.Unlock()
	if v.signals == nil {
		return
	}
	select {
	case v.signals <- isTyping:
	default:
		log.Warn().Str("component", "conversation").Bool("is_typing", isTyping).Msg("typing signal dropped")
	}
}

// signalWorker delivers typing signals in order, one request at a time.
func (v *View) signalWorker(signals <-chan bool) {
	for isTyping := range signals {
		if !v.gate.Active() {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), v.cfg.SignalTimeout)
		err := v.api.SetTyping(ctx, isTyping)
		cancel()
		if err == nil {
			v.presence.Refresh()
			continue
		}
		if errors.Is(err, client.ErrUnauthorized) {
			v.gate.Invalidate(err)
			continue
		}
		log.Debug().Str("component", "conversation").Bool("is_typing", isTyping).Err(err).Msg("set typing failed")
	}
}
