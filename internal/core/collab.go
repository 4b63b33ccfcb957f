package core

//go:generate mockgen -destination=mocks/mock_collab.go -package=mocks . Verifier,PresenceStore,MessageStore,Pusher

import (
	"context"

	"github.com/dkeye/groupchat/internal/domain"
)

// Verifier resolves a credential token into a user identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (domain.UserID, error)
}

// PresenceStore holds the authoritative presence record.
type PresenceStore interface {
	SetPresence(ctx context.Context, uid domain.UserID, status domain.PresenceStatus) (domain.Presence, error)
	GetPresence(ctx context.Context, uid domain.UserID) (domain.Presence, error)
}

// MessageStore is the system of record for messages, reads, reactions and
// device push tokens.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg domain.NewMessage) (domain.Message, error)
	// GroupMessages returns a page of history, oldest first.
	GroupMessages(ctx context.Context, room domain.RoomID, limit, offset int) ([]domain.Message, error)
	// GroupPresence lists every member of the group with its durable presence.
	GroupPresence(ctx context.Context, room domain.RoomID) ([]domain.MemberPresence, error)
	MarkRead(ctx context.Context, id domain.MessageID, uid domain.UserID) (int, error)
	AddReaction(ctx context.Context, id domain.MessageID, uid domain.UserID, kind string) (domain.Reaction, error)
	RemoveReaction(ctx context.Context, id domain.MessageID, uid domain.UserID, kind string) (domain.Reaction, error)
	SavePushToken(ctx context.Context, uid domain.UserID, token string) error
	// GroupPushTokens returns push tokens of every member of the group except one user.
	GroupPushTokens(ctx context.Context, room domain.RoomID, except domain.UserID) ([]string, error)
}

// Pusher delivers one notification to a set of device tokens.
type Pusher interface {
	Deliver(ctx context.Context, tokens []string, n domain.Notification) (domain.DeliveryReport, error)
}
