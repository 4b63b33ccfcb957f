package domain

import (
	"errors"
	"time"
)

var (
	ErrEmptyContent      = errors.New("message content or file is required")
	ErrEmptyReactionType = errors.New("reaction type is required")
	ErrUnknownAction     = errors.New("unknown reaction action")
)

// Message is a persisted chat message as returned by the message store.
type Message struct {
	ID         MessageID `json:"id"`
	GroupID    RoomID    `json:"group_id"`
	UserID     UserID    `json:"user_id"`
	Content    string    `json:"content"`
	FileURL    string    `json:"file_url,omitempty"`
	FileName   string    `json:"file_name,omitempty"`
	FileSize   int64     `json:"file_size,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	SenderName string    `json:"username,omitempty"`
	GroupName  string    `json:"group_name,omitempty"`
}

// NewMessage is the input of a message persist call.
type NewMessage struct {
	GroupID  RoomID
	UserID   UserID
	Content  string
	FileURL  string
	FileName string
	FileSize int64
}

func (m NewMessage) Validate() error {
	if m.Content == "" && m.FileURL == "" {
		return ErrEmptyContent
	}
	return nil
}

type ReactionAction string

const (
	ReactionAdd    ReactionAction = "add"
	ReactionRemove ReactionAction = "remove"
)

func ParseReactionAction(s string) (ReactionAction, error) {
	switch ReactionAction(s) {
	case ReactionAdd, ReactionRemove:
		return ReactionAction(s), nil
	}
	return "", ErrUnknownAction
}

// Reaction is a persisted reaction record.
type Reaction struct {
	ID           int64     `json:"id"`
	MessageID    MessageID `json:"message_id"`
	UserID       UserID    `json:"user_id"`
	ReactionType string    `json:"reaction_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// Notification is what a push provider delivers to a set of device tokens.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// DeliveryReport summarizes a multicast push delivery.
type DeliveryReport struct {
	SuccessCount int
	FailureCount int
	Failed       []FailedToken
}

type FailedToken struct {
	Token  string
	Reason string
}
