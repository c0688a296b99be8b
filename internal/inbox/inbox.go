package inbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("inbox: conversation not found")
	ErrBadFilter = errors.New("inbox: filter must be all, unread, or read")
)

// Filter names for List.
const (
	FilterAll    = "all"
	FilterUnread = "unread"
	FilterRead   = "read"
)

// Preview is the most recent message of a conversation, either direction.
type Preview struct {
	Content   string    `json:"content"`
	Direction string    `json:"direction"`
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation is one active subscriber with at least one message.
type Conversation struct {
	SubscriberID   uuid.UUID  `json:"subscriberId"`
	PhoneNumber    string     `json:"phoneNumber"`
	FormattedPhone string     `json:"formattedPhone"`
	HasUnread      bool       `json:"hasUnread"`
	LastReadAt     *time.Time `json:"lastReadAt,omitempty"`
	Preview        Preview    `json:"preview"`
}

// Stats backs the inbox badge.
type Stats struct {
	UnreadCount        int `json:"unreadCount"`
	TotalConversations int `json:"totalConversations"`
}
