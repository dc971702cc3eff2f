package models

import "errors"

var (
	ErrNotFound = errors.New("not found")
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleDesigner Role = "designer"
	RoleMerchant Role = "merchant"
	RoleAdmin    Role = "admin"
)

// User represents an account in the system. Its source of truth is the
// remote auth service; the client only keeps a read model.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	IsOnline bool   `json:"isOnline,omitempty"`
	LastSeen string `json:"lastSeen,omitempty"`
}

// Conversation represents a chat with a counterpart as rendered in the
// conversation list. It is created by a snapshot fetch or a successful
// discovery action and is never deleted locally.
type Conversation struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        Role   `json:"role"`
	LastMessage string `json:"lastMessage"`
	Timestamp   int64  `json:"timestamp"` // Unix timestamp (milliseconds)
	Unread      int    `json:"unread"`
	Online      bool   `json:"online"`
}

type DeliveryState string

const (
	// DeliveryPending marks an optimistic entry not yet acknowledged
	// by the server. Confirmed and Failed are terminal.
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

// Message represents one entry in a conversation timeline. ID is
// server-assigned; ClientID is the locally generated correlation
// identifier carried through the send round-trip.
type Message struct {
	ID             string        `json:"id"`
	ClientID       string        `json:"clientId,omitempty"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	SenderName     string        `json:"senderName"`
	Content        string        `json:"content"`
	Timestamp      int64         `json:"timestamp"` // Unix timestamp (milliseconds)
	IsOwn          bool          `json:"isOwn,omitempty"`
	Delivery       DeliveryState `json:"delivery,omitempty"`
}

// SendPayload is emitted on the socket channel for an outbound send.
type SendPayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	ClientID       string `json:"clientId,omitempty"`
}

// TypingPayload is carried by user_typing events in both directions.
type TypingPayload struct {
	ConversationID string `json:"conversationId,omitempty"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}
