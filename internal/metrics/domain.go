package metrics

import (
	"github.com/botwire/botwire/internal/core"
	"github.com/botwire/botwire/internal/core/ledger"
	"github.com/botwire/botwire/internal/core/stream"
)

const (
	StreamActiveSessions    = "stream_active_sessions"
	StreamEventsTotal       = "stream_events_total"
	StreamTerminationsTotal = "stream_terminations_total"
	RateLimitDecisionsTotal = "rate_limit_decisions_total"
	TokenDebitsTotal        = "token_debits_total"
	TypingPingsTotal        = "typing_pings_total"
)

// StreamRecorder publishes hub session accounting.
type StreamRecorder struct{}

var _ stream.Recorder = StreamRecorder{}

func (StreamRecorder) SessionOpened(kind core.ResourceKind, active int) {
	gauge(StreamActiveSessions, float64(active), map[string]string{"resource": string(kind)})
}

func (StreamRecorder) SessionClosed(kind core.ResourceKind, reason stream.Reason, active int) {
	gauge(StreamActiveSessions, float64(active), map[string]string{"resource": string(kind)})
	counter(StreamTerminationsTotal, map[string]string{"resource": string(kind), "reason": string(reason)})
}

func (StreamRecorder) EventSent(kind core.ResourceKind, event stream.EventType) {
	counter(StreamEventsTotal, map[string]string{"resource": string(kind), "type": string(event)})
}

// RecordRateLimitDecision counts an admission check; result is "allowed" or
// "rejected".
func RecordRateLimitDecision(profile string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	counter(RateLimitDecisionsTotal, map[string]string{"profile": profile, "result": result})
}

// ObserveDebit is a ledger.Observer.
func ObserveDebit(class ledger.MessageClass, result string) {
	counter(TokenDebitsTotal, map[string]string{"class": string(class), "result": result})
}

var _ ledger.Observer = ObserveDebit

// RecordTypingPing counts typing mutations and reads by action.
func RecordTypingPing(action string) {
	counter(TypingPingsTotal, map[string]string{"action": action})
}
