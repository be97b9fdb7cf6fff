// Package dispatch contains the channel dispatch core: the inbound filter
// chain, the context composer, and the bounded worker pool that feeds the
// handling pipeline.
package dispatch

import (
	"log/slog"
	"time"

	"chatgate/internal/cache"
	"chatgate/internal/domain"
	"chatgate/internal/metrics"
)

// Drop reasons reported by filters. Used for logging and metric labels.
const (
	DropDuplicate  = "duplicate"
	DropStale      = "stale"
	DropSelfEcho   = "self_echo"
	DropCapability = "capability"
)

// FilterFunc inspects one inbound message and either lets it pass or drops
// it with a reason. A drop is final; the message is never retried.
type FilterFunc func(msg *domain.InboundMessage) (drop bool, reason string)

// Chain is an ordered list of filters applied before composition. The first
// filter that drops short-circuits the rest.
type Chain struct {
	filters []FilterFunc
	logger  *slog.Logger
}

// NewChain composes filters in the given order.
func NewChain(logger *slog.Logger, filters ...FilterFunc) *Chain {
	return &Chain{filters: filters, logger: logger}
}

// Accept runs the chain and reports whether the message may proceed to the
// composer. Drops are invisible to the platform user: no reply, no error.
func (c *Chain) Accept(msg *domain.InboundMessage) bool {
	for _, f := range c.filters {
		if drop, reason := f(msg); drop {
			c.logger.Debug("message dropped",
				"id", msg.ID,
				"reason", reason,
				"sender", msg.SenderID,
				"group", msg.IsGroup,
			)
			metrics.DroppedFor(reason).Inc()
			return false
		}
	}
	return true
}

// Duplicate drops messages whose id is already live in the dedup cache. The
// cache's atomic insert-if-absent makes the check race-free under
// concurrent deliveries of the same id.
func Duplicate(seen *cache.Expiring) FilterFunc {
	return func(msg *domain.InboundMessage) (bool, string) {
		if !seen.PutIfAbsent(msg.ID) {
			return true, DropDuplicate
		}
		return false, ""
	}
}

// Staleness drops messages older than window. Only active when the session
// resume mode is enabled, where a reconnect replays recent history.
func Staleness(enabled bool, window time.Duration, now func() time.Time) FilterFunc {
	if now == nil {
		now = time.Now
	}
	return func(msg *domain.InboundMessage) (bool, string) {
		if !enabled {
			return false, ""
		}
		if msg.CreateTime.Before(now().Add(-window)) {
			return true, DropStale
		}
		return false, ""
	}
}

// SelfEcho drops the bot's own single-chat messages. Group self-messages
// pass: the bot may need to observe its own group posts.
func SelfEcho() FilterFunc {
	return func(msg *domain.InboundMessage) (bool, string) {
		if msg.IsSelf && !msg.IsGroup {
			return true, DropSelfEcho
		}
		return false, ""
	}
}

// CapabilityToggles holds the optional-capability switches, independent for
// single and group chats.
type CapabilityToggles struct {
	SpeechRecognition      bool
	GroupSpeechRecognition bool
}

// Capability drops message types whose required capability is disabled.
func Capability(t CapabilityToggles) FilterFunc {
	return func(msg *domain.InboundMessage) (bool, string) {
		if msg.Type != domain.MessageVoice {
			return false, ""
		}
		if msg.IsGroup && !t.GroupSpeechRecognition {
			return true, DropCapability
		}
		if !msg.IsGroup && !t.SpeechRecognition {
			return true, DropCapability
		}
		return false, ""
	}
}
