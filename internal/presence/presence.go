package presence

import (
	"context"
	"time"

	"github.com/c-pro/geche"
)

const DefaultTypingTTL = 5 * time.Second

// Tracker derives typing indicators from transport events. At most one
// user is shown typing per conversation: a newer event overwrites an
// older one. Entries expire after the TTL, so a lost stopped-typing
// event cannot leave the indicator stuck.
type Tracker struct {
	typing geche.Geche[string, string]
}

func NewTracker(ctx context.Context, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &Tracker{
		typing: geche.NewMapTTLCache[string, string](ctx, ttl, time.Second),
	}
}

func (t *Tracker) SetTyping(conversationID, userID string, isTyping bool) {
	if isTyping {
		t.typing.Set(conversationID, userID)
		return
	}

	// A stop signal only clears the indicator if it comes from the user
	// currently shown as typing.
	if current, err := t.typing.Get(conversationID); err == nil && current == userID {
		_ = t.typing.Del(conversationID)
	}
}

// Typing returns the user currently typing in the conversation, if any.
func (t *Tracker) Typing(conversationID string) (string, bool) {
	userID, err := t.typing.Get(conversationID)
	if err != nil {
		return "", false
	}
	return userID, true
}

// Clear drops the indicator, used when switching conversations.
func (t *Tracker) Clear(conversationID string) {
	_ = t.typing.Del(conversationID)
}
