package chat

import (
	"sort"
	"sync"

	"workchat/internal/models"
)

// Fallback matching window for inbound echoes that carry no correlation
// identifier: same sender and content within this many milliseconds of
// the optimistic entry count as the same logical send.
const echoWindowMillis = 5000

// Timeline holds the single ordered, duplicate-free message list for one
// conversation. It merges three sources: the fetched history baseline,
// locally created optimistic entries, and transport-delivered events.
// Order is non-decreasing timestamp with insertion order as tie-break;
// growth is by ordered insert, never a wholesale re-sort.
type Timeline struct {
	ConversationID string

	mux      sync.RWMutex
	messages []models.Message
	seen     map[string]bool // server-assigned IDs already present
	pending  map[string]bool // client correlation IDs awaiting confirmation
}

func NewTimeline(conversationID string) *Timeline {
	return &Timeline{
		ConversationID: conversationID,
		seen:           make(map[string]bool),
		pending:        make(map[string]bool),
	}
}

// Reset replaces the timeline with a history snapshot. The snapshot is
// normalized to the ordering invariant once; everything after grows
// append-only.
func (t *Timeline) Reset(history []models.Message) {
	t.mux.Lock()
	defer t.mux.Unlock()

	t.messages = make([]models.Message, len(history))
	copy(t.messages, history)
	sort.SliceStable(t.messages, func(i, j int) bool {
		return t.messages[i].Timestamp < t.messages[j].Timestamp
	})

	t.seen = make(map[string]bool, len(history))
	t.pending = make(map[string]bool)
	for i := range t.messages {
		if t.messages[i].ID != "" {
			t.seen[t.messages[i].ID] = true
		}
	}
}

// AppendLocal adds an optimistic entry. The entry's ClientID is
// exclusively owned by it until Confirm or Fail supersedes it.
func (t *Timeline) AppendLocal(msg models.Message) {
	t.mux.Lock()
	defer t.mux.Unlock()

	msg.Delivery = models.DeliveryPending
	t.insert(msg)
	if msg.ClientID != "" {
		t.pending[msg.ClientID] = true
	}
}

// Confirm resolves the pending entry owning clientID with its
// server-confirmed identity. The entry keeps its rendered position;
// only identity, timestamp and delivery state are superseded.
func (t *Timeline) Confirm(clientID string, confirmed models.Message) bool {
	t.mux.Lock()
	defer t.mux.Unlock()

	if !t.pending[clientID] {
		return false
	}

	return t.confirmLocked(clientID, confirmed)
}

// Fail marks the pending entry owning clientID as failed. Failed is
// terminal; a retry is a new send with a new correlation ID.
func (t *Timeline) Fail(clientID string) bool {
	t.mux.Lock()
	defer t.mux.Unlock()

	if !t.pending[clientID] {
		return false
	}

	for i := range t.messages {
		if t.messages[i].ClientID == clientID && t.messages[i].Delivery == models.DeliveryPending {
			t.messages[i].Delivery = models.DeliveryFailed
			delete(t.pending, clientID)
			return true
		}
	}

	return false
}

// Ingest merges a transport-delivered message. Returns true when the
// message was appended as a new entry, false when it reconciled with an
// existing one: a known server ID is dropped, a matching correlation ID
// confirms the optimistic entry in place, and an own echo without IDs
// falls back to sender+content+timestamp matching.
func (t *Timeline) Ingest(msg models.Message) bool {
	t.mux.Lock()
	defer t.mux.Unlock()

	if msg.ID != "" && t.seen[msg.ID] {
		return false
	}

	if msg.ClientID != "" && t.pending[msg.ClientID] {
		t.confirmLocked(msg.ClientID, msg)
		return false
	}

	if msg.IsOwn {
		if clientID, ok := t.matchEcho(msg); ok {
			t.confirmLocked(clientID, msg)
			return false
		}
	}

	msg.Delivery = models.DeliveryConfirmed
	t.insert(msg)
	if msg.ID != "" {
		t.seen[msg.ID] = true
	}
	return true
}

// Messages returns a copy of the ordered timeline.
func (t *Timeline) Messages() []models.Message {
	t.mux.RLock()
	defer t.mux.RUnlock()

	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Timeline) Len() int {
	t.mux.RLock()
	defer t.mux.RUnlock()
	return len(t.messages)
}

// insert places msg before the first entry with a strictly greater
// timestamp, so equal timestamps keep insertion order.
func (t *Timeline) insert(msg models.Message) {
	i := sort.Search(len(t.messages), func(i int) bool {
		return t.messages[i].Timestamp > msg.Timestamp
	})
	t.messages = append(t.messages, models.Message{})
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = msg
}

func (t *Timeline) confirmLocked(clientID string, confirmed models.Message) bool {
	for i := range t.messages {
		if t.messages[i].ClientID != clientID || t.messages[i].Delivery != models.DeliveryPending {
			continue
		}
		if confirmed.ID != "" {
			t.messages[i].ID = confirmed.ID
			t.seen[confirmed.ID] = true
		}
		if confirmed.Timestamp != 0 {
			t.messages[i].Timestamp = confirmed.Timestamp
		}
		t.messages[i].Delivery = models.DeliveryConfirmed
		delete(t.pending, clientID)
		return true
	}
	return false
}

func (t *Timeline) matchEcho(msg models.Message) (string, bool) {
	for i := range t.messages {
		m := &t.messages[i]
		if m.Delivery != models.DeliveryPending || m.SenderID != msg.SenderID || m.Content != msg.Content {
			continue
		}
		delta := msg.Timestamp - m.Timestamp
		if delta < 0 {
			delta = -delta
		}
		if delta <= echoWindowMillis {
			return m.ClientID, true
		}
	}
	return "", false
}
