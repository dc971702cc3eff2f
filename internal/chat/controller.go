package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"workchat/internal/api"
	"workchat/internal/content"
	"workchat/internal/models"
	"workchat/internal/presence"
	"workchat/internal/transport"

	"github.com/google/uuid"
)

// Gateway is the slice of the API client the controller depends on.
type Gateway interface {
	Conversations(ctx context.Context) api.Result[[]models.Conversation]
	Messages(ctx context.Context, conversationID string) api.Result[[]models.Message]
	SendMessage(ctx context.Context, conversationID, content, clientID string) api.Result[models.Message]
	Users(ctx context.Context) api.Result[[]models.User]
	CreateConversation(ctx context.Context, participantID string) api.Result[models.Conversation]
}

// Socket is the slice of the transport client the controller depends on.
type Socket interface {
	On(kind transport.EventKind, h transport.Handler) transport.Subscription
	Off(sub transport.Subscription)
	JoinConversation(conversationID string)
	LeaveConversation(conversationID string)
	SendMessage(conversationID, content, clientID string)
}

// Cache persists the last known snapshots so the client can render
// state before the first fetch completes and after a failed one.
type Cache interface {
	SaveConversations(conversations []models.Conversation) error
	CachedConversations() ([]models.Conversation, error)
	SaveMessages(conversationID string, messages []models.Message) error
	CachedMessages(conversationID string) ([]models.Message, error)
}

type Config struct {
	User     models.User
	Gateway  Gateway
	Socket   Socket
	Presence *presence.Tracker
	Cache    Cache  // optional
	OnUpdate func() // optional repaint hook, invoked outside locks
}

// Controller owns the conversation list, the per-conversation timelines
// and the selection state, and reconciles the three message sources
// (history fetches, optimistic sends, transport events) into them.
type Controller struct {
	user     models.User
	gw       Gateway
	socket   Socket
	presence *presence.Tracker
	cache    Cache
	onUpdate func()

	mu            sync.Mutex
	conversations []models.Conversation
	selectedID    string
	timelines     map[string]*Timeline
	fetchGen      uint64
	subs          []transport.Subscription
}

func NewController(cfg Config) *Controller {
	return &Controller{
		user:      cfg.User,
		gw:        cfg.Gateway,
		socket:    cfg.Socket,
		presence:  cfg.Presence,
		cache:     cfg.Cache,
		onUpdate:  cfg.OnUpdate,
		timelines: make(map[string]*Timeline),
	}
}

// Start subscribes to transport events and loads the conversation
// snapshot, falling back to the cached list when the fetch fails.
// The first conversation, if any, is selected.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	c.subs = append(c.subs,
		c.socket.On(transport.EventNewMessage, c.handleNewMessage),
		c.socket.On(transport.EventUserTyping, c.handleUserTyping),
		c.socket.On(transport.EventDisconnect, c.handleDisconnect),
	)
	c.mu.Unlock()

	conversations := c.fetchConversations(ctx)

	c.mu.Lock()
	c.conversations = conversations
	var first string
	if len(conversations) > 0 {
		first = conversations[0].ID
	}
	c.mu.Unlock()
	c.update()

	if first != "" {
		return c.Select(ctx, first)
	}
	return nil
}

// Stop removes the transport subscriptions and leaves the selected
// conversation.
func (c *Controller) Stop() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	selected := c.selectedID
	c.mu.Unlock()

	for _, sub := range subs {
		c.socket.Off(sub)
	}
	if selected != "" {
		c.socket.LeaveConversation(selected)
	}
}

func (c *Controller) User() models.User {
	return c.user
}

func (c *Controller) Conversations() []models.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Conversation, len(c.conversations))
	copy(out, c.conversations)
	return out
}

func (c *Controller) Selected() (models.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, conv := range c.conversations {
		if conv.ID == c.selectedID {
			return conv, true
		}
	}
	return models.Conversation{}, false
}

// Messages returns the ordered timeline of the selected conversation.
func (c *Controller) Messages() []models.Message {
	c.mu.Lock()
	tl, ok := c.timelines[c.selectedID]
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return tl.Messages()
}

// TypingUser returns the ID of the user currently typing in the
// selected conversation, if any.
func (c *Controller) TypingUser() (string, bool) {
	c.mu.Lock()
	selected := c.selectedID
	c.mu.Unlock()

	if selected == "" {
		return "", false
	}
	return c.presence.Typing(selected)
}

// Select switches the view to a conversation and loads its history.
// Each switch advances a generation counter; a history fetch that
// resolves after the user has moved on is discarded instead of
// overwriting the newer view.
func (c *Controller) Select(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	if !c.hasConversationLocked(conversationID) {
		c.mu.Unlock()
		return fmt.Errorf("conversation %s: %w", conversationID, models.ErrNotFound)
	}
	prev := c.selectedID
	c.selectedID = conversationID
	c.fetchGen++
	gen := c.fetchGen
	c.markReadLocked(conversationID)
	c.mu.Unlock()

	if prev != "" && prev != conversationID {
		c.socket.LeaveConversation(prev)
		c.presence.Clear(prev)
	}
	c.socket.JoinConversation(conversationID)
	c.update()

	result := c.gw.Messages(ctx, conversationID)

	c.mu.Lock()
	if gen != c.fetchGen {
		// The user switched away while the fetch was in flight.
		c.mu.Unlock()
		return nil
	}
	tl := c.ensureTimelineLocked(conversationID)
	c.mu.Unlock()

	if result.Success {
		history := result.Data
		for i := range history {
			history[i].IsOwn = history[i].SenderID == c.user.ID
			if history[i].Delivery == "" {
				history[i].Delivery = models.DeliveryConfirmed
			}
		}
		tl.Reset(history)
		if c.cache != nil {
			if err := c.cache.SaveMessages(conversationID, history); err != nil {
				slog.Warn("failed to cache messages", "conversation", conversationID, "error", err)
			}
		}
	} else if c.cache != nil && tl.Len() == 0 {
		if cached, err := c.cache.CachedMessages(conversationID); err == nil && len(cached) > 0 {
			tl.Reset(cached)
		}
	}

	c.update()
	return nil
}

// Send appends an optimistic entry immediately, then performs the
// authoritative send. On success the entry is confirmed and the payload
// is emitted on the socket channel for other participants; on failure
// the entry is marked failed.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = content.Sanitize(strings.TrimSpace(text))
	if text == "" {
		return nil
	}

	c.mu.Lock()
	conversationID := c.selectedID
	if conversationID == "" {
		c.mu.Unlock()
		return fmt.Errorf("no conversation selected")
	}
	clientID := uuid.NewString()
	msg := models.Message{
		ID:             "temp-" + clientID,
		ClientID:       clientID,
		ConversationID: conversationID,
		SenderID:       c.user.ID,
		SenderName:     c.user.Username,
		Content:        text,
		Timestamp:      time.Now().UnixMilli(),
		IsOwn:          true,
	}
	tl := c.ensureTimelineLocked(conversationID)
	c.bumpConversationLocked(conversationID, text, msg.Timestamp, true)
	c.mu.Unlock()

	tl.AppendLocal(msg)
	c.update()

	result := c.gw.SendMessage(ctx, conversationID, text, clientID)
	if result.Success {
		tl.Confirm(clientID, result.Data)
		c.socket.SendMessage(conversationID, text, clientID)
	} else {
		tl.Fail(clientID)
		slog.Warn("message send rejected", "conversation", conversationID, "reason", result.Message)
	}

	c.update()
	return nil
}

// DiscoverUsers lists accounts available for starting a conversation.
func (c *Controller) DiscoverUsers(ctx context.Context) api.Result[[]models.User] {
	return c.gw.Users(ctx)
}

// StartConversation creates (or finds) a conversation with the given
// participant and selects it.
func (c *Controller) StartConversation(ctx context.Context, participantID string) error {
	result := c.gw.CreateConversation(ctx, participantID)
	if !result.Success {
		return fmt.Errorf("%s", result.Message)
	}

	conv := result.Data
	c.mu.Lock()
	if !c.hasConversationLocked(conv.ID) {
		c.conversations = append(c.conversations, conv)
	}
	c.saveConversationsLocked()
	c.mu.Unlock()
	c.update()

	return c.Select(ctx, conv.ID)
}

func (c *Controller) fetchConversations(ctx context.Context) []models.Conversation {
	result := c.gw.Conversations(ctx)
	if result.Success {
		if c.cache != nil {
			if err := c.cache.SaveConversations(result.Data); err != nil {
				slog.Warn("failed to cache conversations", "error", err)
			}
		}
		return result.Data
	}

	slog.Warn("conversation fetch failed", "reason", result.Message)
	if c.cache != nil {
		if cached, err := c.cache.CachedConversations(); err == nil {
			return cached
		}
	}
	return nil
}

func (c *Controller) handleNewMessage(data json.RawMessage) {
	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("malformed new_message event", "error", err)
		return
	}
	if msg.ConversationID == "" {
		return
	}

	msg.IsOwn = msg.SenderID == c.user.ID
	msg.Content = content.Sanitize(msg.Content)

	c.mu.Lock()
	tl := c.ensureTimelineLocked(msg.ConversationID)
	c.mu.Unlock()

	appended := tl.Ingest(msg)

	c.mu.Lock()
	if appended {
		c.bumpConversationLocked(msg.ConversationID, msg.Content, msg.Timestamp, msg.IsOwn)
	}
	c.mu.Unlock()
	c.update()
}

func (c *Controller) handleUserTyping(data json.RawMessage) {
	var payload models.TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Warn("malformed user_typing event", "error", err)
		return
	}
	if payload.UserID == c.user.ID {
		return
	}

	conversationID := payload.ConversationID
	if conversationID == "" {
		c.mu.Lock()
		conversationID = c.selectedID
		c.mu.Unlock()
	}
	if conversationID == "" {
		return
	}

	c.presence.SetTyping(conversationID, payload.UserID, payload.IsTyping)
	c.update()
}

func (c *Controller) handleDisconnect(json.RawMessage) {
	c.mu.Lock()
	selected := c.selectedID
	c.mu.Unlock()

	if selected != "" {
		c.presence.Clear(selected)
	}
	c.update()
}

func (c *Controller) ensureTimelineLocked(conversationID string) *Timeline {
	tl, ok := c.timelines[conversationID]
	if !ok {
		tl = NewTimeline(conversationID)
		c.timelines[conversationID] = tl
	}
	return tl
}

func (c *Controller) hasConversationLocked(conversationID string) bool {
	for _, conv := range c.conversations {
		if conv.ID == conversationID {
			return true
		}
	}
	return false
}

// bumpConversationLocked refreshes a conversation's preview after a new
// message; inbound messages for a non-selected conversation raise its
// unread count.
func (c *Controller) bumpConversationLocked(conversationID, preview string, timestamp int64, own bool) {
	for i := range c.conversations {
		if c.conversations[i].ID != conversationID {
			continue
		}
		c.conversations[i].LastMessage = preview
		c.conversations[i].Timestamp = timestamp
		if !own && c.selectedID != conversationID {
			c.conversations[i].Unread++
		}
		c.saveConversationsLocked()
		return
	}
}

func (c *Controller) markReadLocked(conversationID string) {
	for i := range c.conversations {
		if c.conversations[i].ID == conversationID {
			c.conversations[i].Unread = 0
			return
		}
	}
}

func (c *Controller) saveConversationsLocked() {
	if c.cache == nil {
		return
	}
	snapshot := make([]models.Conversation, len(c.conversations))
	copy(snapshot, c.conversations)
	if err := c.cache.SaveConversations(snapshot); err != nil {
		slog.Warn("failed to cache conversations", "error", err)
	}
}

func (c *Controller) update() {
	if c.onUpdate != nil {
		c.onUpdate()
	}
}
