package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/quartz"

	"github.com/botwire/botwire/internal/core"
)

// Recorder receives session lifecycle signals, typically for metrics.
type Recorder interface {
	SessionOpened(kind core.ResourceKind, active int)
	SessionClosed(kind core.ResourceKind, reason Reason, active int)
	EventSent(kind core.ResourceKind, event EventType)
}

type nopRecorder struct{}

func (nopRecorder) SessionOpened(core.ResourceKind, int)         {}
func (nopRecorder) SessionClosed(core.ResourceKind, Reason, int) {}
func (nopRecorder) EventSent(core.ResourceKind, EventType)       {}

// Sources binds each resource kind to its collaborator.
type Sources struct {
	Feed          Source
	Conversations Source
	Typing        TypingSource
}

// Hub creates one Session per connecting client and keeps a live count per
// resource kind. It does not fan out data between sessions.
type Hub struct {
	sources  Sources
	cfg      Config
	clock    quartz.Clock
	logger   Logger
	recorder Recorder

	mu     sync.Mutex
	active map[core.ResourceKind]int
}

// HubOption configures a Hub.
type HubOption func(*Hub)

func WithClock(clock quartz.Clock) HubOption {
	return func(h *Hub) { h.clock = clock }
}

func WithLogger(logger Logger) HubOption {
	return func(h *Hub) { h.logger = logger }
}

func WithRecorder(recorder Recorder) HubOption {
	return func(h *Hub) {
		if recorder != nil {
			h.recorder = recorder
		}
	}
}

// NewHub creates a hub.
func NewHub(sources Sources, cfg Config, opts ...HubOption) *Hub {
	h := &Hub{
		sources:  sources,
		cfg:      cfg.withDefaults(),
		recorder: nopRecorder{},
		active:   make(map[core.ResourceKind]int),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Config returns the effective session policy.
func (h *Hub) Config() Config {
	return h.cfg
}

// Serve runs a session for resource on sink until it terminates.
func (h *Hub) Serve(ctx context.Context, resource Resource, sink Sink) (Reason, error) {
	opts := Options{
		Resource: resource,
		Sink:     sink,
		Config:   h.cfg,
		Clock:    h.clock,
		Logger:   h.logger,
		OnEvent: func(event EventType) {
			h.recorder.EventSent(resource.Kind, event)
		},
	}
	switch resource.Kind {
	case core.ResourceFeed:
		opts.Source = h.sources.Feed
	case core.ResourceDM, core.ResourceRoom:
		opts.Source = h.sources.Conversations
		opts.Typing = h.sources.Typing
	default:
		return "", fmt.Errorf("unknown resource kind %q", resource.Kind)
	}
	if opts.Source == nil {
		return "", fmt.Errorf("no source configured for %s", resource.Kind)
	}

	session := NewSession(opts)
	h.recorder.SessionOpened(resource.Kind, h.add(resource.Kind, 1))
	reason := session.Run(ctx)
	h.recorder.SessionClosed(resource.Kind, reason, h.add(resource.Kind, -1))
	return reason, nil
}

// Active returns the number of live sessions of kind.
func (h *Hub) Active(kind core.ResourceKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active[kind]
}

// Total returns the number of live sessions across all kinds.
func (h *Hub) Total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, n := range h.active {
		total += n
	}
	return total
}

func (h *Hub) add(kind core.ResourceKind, delta int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active[kind] += delta
	return h.active[kind]
}
