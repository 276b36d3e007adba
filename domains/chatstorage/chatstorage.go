package chatstorage

import (
	"context"
	"time"
)

type SessionStatus string

const (
	StatusConnecting   SessionStatus = "connecting"
	StatusConnected    SessionStatus = "connected"
	StatusDisconnected SessionStatus = "disconnected"
)

type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

// Session is one linked WhatsApp device owned by a user.
type Session struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	Status      SessionStatus `json:"status"`
	PhoneNumber string        `json:"phone_number,omitempty"`
	QRCode      string        `json:"qr_code,omitempty"` // base64 PNG data URI while pairing, empty once linked
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Conversation is a chat thread between a session and one contact.
type Conversation struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	ContactName     string    `json:"contact_name"`
	ContactNumber   string    `json:"contact_number"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Message is a single stored chat message.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Content        string        `json:"content"`
	FromMe         bool          `json:"from_me"`
	Status         MessageStatus `json:"status"`
	Timestamp      time.Time     `json:"timestamp"`
}

// AutomationRule is a keyword-triggered canned response. A rule with an
// empty SessionID applies to every session of its owner.
type AutomationRule struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id,omitempty"`
	Keyword   string    `json:"keyword"`
	Response  string    `json:"response"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionPatch carries partial session updates. Nil fields are left as is.
type SessionPatch struct {
	Status      *SessionStatus
	PhoneNumber *string
	QRCode      *string
}

// ConversationPatch carries partial conversation updates.
type ConversationPatch struct {
	ContactName     *string
	LastMessage     *string
	LastMessageTime *time.Time
	UnreadCount     *int
}

// IChatStorageRepository persists sessions, conversations, messages and
// automation rules.
type IChatStorageRepository interface {
	Init() error

	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	GetSessionsByUser(ctx context.Context, userID string) ([]*Session, error)
	GetActiveSessions(ctx context.Context) ([]*Session, error)
	UpdateSession(ctx context.Context, sessionID string, patch SessionPatch) error
	DeleteSession(ctx context.Context, sessionID string) error

	CreateConversation(ctx context.Context, conversation *Conversation) error
	GetConversationsBySession(ctx context.Context, sessionID string) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, conversationID string, patch ConversationPatch) error

	AppendMessage(ctx context.Context, message *Message) error
	GetMessagesByConversation(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	CreateRule(ctx context.Context, rule *AutomationRule) error
	GetActiveRulesByUser(ctx context.Context, userID string) ([]*AutomationRule, error)
}
