// Package stream turns polling queries into long-lived event streams.
//
// Each connected client gets its own Session. Sessions never share mutable
// state; every session polls its Source independently and diffs the
// results against the IDs it has already delivered.
package stream

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	"github.com/botwire/botwire/internal/core"
)

// State is the lifecycle position of a session.
type State int32

const (
	StateInitializing State = iota
	StateStreaming
	StateBackingOff
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateStreaming:
		return "streaming"
	case StateBackingOff:
		return "backing_off"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Reason explains why a session terminated.
type Reason string

const (
	ReasonClosed         Reason = "closed"
	ReasonExpired        Reason = "expired"
	ReasonErrors         Reason = "errors"
	ReasonSnapshotFailed Reason = "snapshot_failed"
	ReasonWriteFailed    Reason = "write_failed"
)

// Source is the storage collaborator polled by a session.
type Source interface {
	// FetchSnapshot returns up to limit of the latest items in
	// chronological order.
	FetchSnapshot(ctx context.Context, resourceID string, limit int) ([]core.Item, error)
	// FetchRecent returns up to limit of the latest items, newest first.
	FetchRecent(ctx context.Context, resourceID string, limit int) ([]core.Item, error)
}

// TypingSource lists who is typing in a conversation.
type TypingSource interface {
	List(ctx context.Context, conversationID string) ([]string, error)
}

// Logger is the subset of the structured logger used by sessions.
type Logger interface {
	Warn(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
}

// Config holds the session timing and sizing policy.
type Config struct {
	PollInterval         time.Duration
	MaxPollInterval      time.Duration
	MaxLifetime          time.Duration
	MaxConsecutiveErrors int
	SnapshotLimit        int
	RecentLimit          int
	QueryTimeout         time.Duration
}

// DefaultConfig returns the standard policy: poll every 3s, back off up to
// 30s, give up after 5 consecutive failures and force a reconnect after
// 5 minutes.
func DefaultConfig() Config {
	return Config{
		PollInterval:         3 * time.Second,
		MaxPollInterval:      30 * time.Second,
		MaxLifetime:          5 * time.Minute,
		MaxConsecutiveErrors: 5,
		SnapshotLimit:        50,
		RecentLimit:          50,
		QueryTimeout:         10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxPollInterval < c.PollInterval {
		c.MaxPollInterval = max(d.MaxPollInterval, c.PollInterval)
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = d.MaxLifetime
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = d.MaxConsecutiveErrors
	}
	if c.SnapshotLimit <= 0 {
		c.SnapshotLimit = d.SnapshotLimit
	}
	if c.RecentLimit <= 0 {
		c.RecentLimit = d.RecentLimit
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = d.QueryTimeout
	}
	return c
}

// Backoff returns the poll interval after the given number of consecutive
// failures: PollInterval doubled per failure after the first, capped at
// MaxPollInterval.
func (c Config) Backoff(consecutiveErrors int) time.Duration {
	interval := c.PollInterval
	for i := 1; i < consecutiveErrors; i++ {
		interval *= 2
		if interval >= c.MaxPollInterval {
			return c.MaxPollInterval
		}
	}
	return min(interval, c.MaxPollInterval)
}

// Resource identifies what a session streams.
type Resource struct {
	Kind core.ResourceKind
	ID   string
}

// Options configures a Session.
type Options struct {
	Resource Resource
	Source   Source
	// Typing enables the secondary typing poll. Nil for the feed.
	Typing TypingSource
	Sink   Sink
	Config Config
	Clock  quartz.Clock
	Logger Logger
	// OnEvent is invoked after each event is written.
	OnEvent func(EventType)
}

// Session is one client's stream. Run drives it; Close cancels it.
type Session struct {
	resource Resource
	source   Source
	typing   TypingSource
	sink     Sink
	cfg      Config
	clock    quartz.Clock
	logger   Logger
	onEvent  func(EventType)

	// Owned by the Run goroutine.
	known             map[string]struct{}
	interval          time.Duration
	consecutiveErrors int
	lastTyping        []string

	state     atomic.Int32
	closed    atomic.Bool
	closing   chan struct{}
	closeOnce sync.Once
	openedAt  time.Time
}

// NewSession creates a session in the INITIALIZING state.
func NewSession(opts Options) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	var logger Logger = zap.NewNop()
	if opts.Logger != nil {
		logger = opts.Logger
	}
	cfg := opts.Config.withDefaults()

	return &Session{
		resource: opts.Resource,
		source:   opts.Source,
		typing:   opts.Typing,
		sink:     opts.Sink,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		onEvent:  opts.OnEvent,
		known:    make(map[string]struct{}),
		interval: cfg.PollInterval,
		closing:  make(chan struct{}),
		openedAt: clock.Now(),
	}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// OpenedAt is the session creation time.
func (s *Session) OpenedAt() time.Time {
	return s.openedAt
}

// Close marks the session closed. A poll already in flight completes but
// its result is discarded, and nothing further is scheduled.
func (s *Session) Close() {
	s.closed.Store(true)
	s.closeOnce.Do(func() { close(s.closing) })
}

// Run streams until the session terminates and returns the reason.
// Cancelling ctx is equivalent to Close.
func (s *Session) Run(ctx context.Context) Reason {
	defer s.setState(StateTerminated)

	expiry := s.clock.NewTimer(s.cfg.MaxLifetime, "stream", "expiry")
	defer expiry.Stop()

	if reason, ok := s.initialize(ctx); !ok {
		return reason
	}

	poll := s.clock.NewTimer(s.interval, "stream", "poll")
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return ReasonClosed
		case <-s.closing:
			return ReasonClosed
		case <-expiry.C:
			s.logger.Debug("Stream lifetime reached", s.fields()...)
			if err := s.emit(Event{Type: EventReconnect}); err != nil {
				return ReasonWriteFailed
			}
			return ReasonExpired
		case <-poll.C:
			if s.closed.Load() {
				return ReasonClosed
			}
			reason, done := s.tick(ctx)
			if done {
				return reason
			}
			poll.Reset(s.interval, "stream", "poll")
		}
	}
}

func (s *Session) initialize(ctx context.Context) (Reason, bool) {
	s.setState(StateInitializing)

	snapshot, err := s.query(ctx, func(qctx context.Context) ([]core.Item, error) {
		return s.source.FetchSnapshot(qctx, s.resource.ID, s.cfg.SnapshotLimit)
	})
	if s.closed.Load() || ctx.Err() != nil {
		s.Close()
		return ReasonClosed, false
	}
	if err != nil {
		s.logger.Warn("Stream snapshot failed", append(s.fields(), zap.Error(err))...)
		_ = s.emit(Event{Type: EventError, Message: "failed to load initial snapshot"})
		return ReasonSnapshotFailed, false
	}

	for _, item := range snapshot {
		s.known[item.ID] = struct{}{}
	}
	if err := s.emit(Event{Type: EventInit, Messages: snapshot}); err != nil {
		return ReasonWriteFailed, false
	}
	if s.typing != nil {
		s.lastTyping = []string{}
	}

	s.setState(StateStreaming)
	return "", true
}

// tick performs one poll. It returns done when the session must stop.
func (s *Session) tick(ctx context.Context) (Reason, bool) {
	recent, err := s.query(ctx, func(qctx context.Context) ([]core.Item, error) {
		return s.source.FetchRecent(qctx, s.resource.ID, s.cfg.RecentLimit)
	})
	if s.closed.Load() || ctx.Err() != nil {
		s.Close()
		return ReasonClosed, true
	}

	if err != nil {
		return s.backoff(err)
	}

	fresh := s.diff(recent)
	if len(recent) >= s.cfg.RecentLimit && len(fresh) == len(recent) {
		// Nothing in the window was seen before, so items older than it
		// may have arrived since the last poll and will not be delivered.
		s.logger.Debug("Stream poll window saturated, older items may be skipped",
			append(s.fields(), zap.Int("window", s.cfg.RecentLimit))...)
	}
	if len(fresh) > 0 {
		if err := s.deliver(fresh); err != nil {
			return ReasonWriteFailed, true
		}
	}
	if s.typing != nil {
		if err := s.pollTyping(ctx); err != nil {
			return ReasonWriteFailed, true
		}
	}
	if err := s.sink.Heartbeat(); err != nil {
		return ReasonWriteFailed, true
	}

	if s.consecutiveErrors > 0 {
		s.logger.Debug("Stream recovered", append(s.fields(), zap.Int("after_errors", s.consecutiveErrors))...)
	}
	s.consecutiveErrors = 0
	s.interval = s.cfg.PollInterval
	s.setState(StateStreaming)
	return "", false
}

func (s *Session) backoff(err error) (Reason, bool) {
	s.setState(StateBackingOff)
	s.consecutiveErrors++

	if s.consecutiveErrors >= s.cfg.MaxConsecutiveErrors {
		s.logger.Warn("Stream giving up after consecutive poll failures",
			append(s.fields(), zap.Int("errors", s.consecutiveErrors), zap.Error(err))...)
		_ = s.emit(Event{Type: EventError, Message: "stream unavailable, please reconnect"})
		return ReasonErrors, true
	}

	s.interval = s.cfg.Backoff(s.consecutiveErrors)
	s.logger.Warn("Stream poll failed, backing off",
		append(s.fields(),
			zap.Int("errors", s.consecutiveErrors),
			zap.Duration("next_poll", s.interval),
			zap.Error(err))...)

	if err := s.sink.Heartbeat(); err != nil {
		return ReasonWriteFailed, true
	}
	return "", false
}

// diff returns unseen items oldest first and records their IDs.
func (s *Session) diff(recent []core.Item) []core.Item {
	var fresh []core.Item
	for i := len(recent) - 1; i >= 0; i-- {
		item := recent[i]
		if _, seen := s.known[item.ID]; seen {
			continue
		}
		s.known[item.ID] = struct{}{}
		fresh = append(fresh, item)
	}
	slices.SortStableFunc(fresh, func(a, b core.Item) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return fresh
}

func (s *Session) deliver(items []core.Item) error {
	if s.resource.Kind == core.ResourceFeed {
		for _, item := range items {
			if err := s.emit(Event{Type: EventUpdate, Messages: []core.Item{item}}); err != nil {
				return err
			}
		}
		return nil
	}
	return s.emit(Event{Type: EventMessages, Messages: items})
}

// pollTyping emits a typing event when the set of typing users changes.
// Lookup failures are logged and skipped; they never count toward backoff.
func (s *Session) pollTyping(ctx context.Context) error {
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.QueryTimeout)
	users, err := s.typing.List(qctx, s.resource.ID)
	cancel()
	if err != nil {
		s.logger.Debug("Typing poll failed", append(s.fields(), zap.Error(err))...)
		return nil
	}
	if s.closed.Load() {
		return nil
	}

	users = slices.Clone(users)
	slices.Sort(users)
	if slices.Equal(users, s.lastTyping) {
		return nil
	}
	if users == nil {
		users = []string{}
	}
	s.lastTyping = users
	return s.emit(Event{Type: EventTyping, Users: users})
}

// query runs fn without inheriting cancellation so an in-flight query is
// never interrupted; the caller discards the result if the session closed.
func (s *Session) query(ctx context.Context, fn func(context.Context) ([]core.Item, error)) ([]core.Item, error) {
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.QueryTimeout)
	defer cancel()
	return fn(qctx)
}

func (s *Session) emit(event Event) error {
	if err := s.sink.Send(event); err != nil {
		s.logger.Debug("Stream write failed", append(s.fields(), zap.String("event", string(event.Type)), zap.Error(err))...)
		return err
	}
	if s.onEvent != nil {
		s.onEvent(event.Type)
	}
	return nil
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

func (s *Session) fields() []zap.Field {
	return []zap.Field{
		zap.String("resource", string(s.resource.Kind)),
		zap.String("resource_id", s.resource.ID),
	}
}
