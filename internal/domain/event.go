package domain

import "time"

// EventType names a realtime channel event, inbound or outbound.
type EventType string

// Inbound events.
const (
	InAuthenticate    EventType = "authenticate"
	InJoinRoom        EventType = "join_room"
	InJoinGroup       EventType = "join_group" // legacy name of join_room
	InLeaveRoom       EventType = "leave_room"
	InSendMessage     EventType = "send_message"
	InTyping          EventType = "typing"
	InStopTyping      EventType = "stop_typing"
	InMessageRead     EventType = "message_read"
	InMessageReaction EventType = "message_reaction"
	InSendPushToken   EventType = "send_push_token"
	InPing            EventType = "ping"
)

// Outbound events.
const (
	OutAuthenticated  EventType = "authenticated"
	OutPresenceUpdate EventType = "presence_update"
	OutNewMessage     EventType = "new_message"
	OutUserTyping     EventType = "user_typing"
	OutUserStopTyping EventType = "user_stop_typing"
	OutReadReceipt    EventType = "message_read_receipt"
	OutReactionUpdate EventType = "reaction_update"
	OutPong           EventType = "pong"
	OutError          EventType = "error"
)

// Event is one outbound realtime event: a tag plus its payload.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

type AuthenticatedPayload struct {
	Success bool   `json:"success"`
	UserID  UserID `json:"userId,omitempty"`
}

type PresencePayload struct {
	UserID UserID         `json:"userId"`
	Status PresenceStatus `json:"status"`
}

type TypingPayload struct {
	UserID UserID `json:"userId"`
}

type ReadReceiptPayload struct {
	MessageID MessageRef `json:"messageId"`
	UserID    UserID     `json:"userId"`
	ReadAt    time.Time  `json:"readAt"`
}

type ReactionPayload struct {
	MessageID    MessageRef     `json:"messageId"`
	ReactionType string         `json:"reactionType"`
	Action       ReactionAction `json:"action"`
	UserID       UserID         `json:"userId"`
	Timestamp    time.Time      `json:"timestamp"`
}

type ErrorPayload struct {
	Error string    `json:"error"`
	Event EventType `json:"event,omitempty"`
}

func PresenceChange(uid UserID, status PresenceStatus) Event {
	return Event{Type: OutPresenceUpdate, Data: PresencePayload{UserID: uid, Status: status}}
}
