package orch

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/dkeye/groupchat/internal/core"
	"github.com/dkeye/groupchat/internal/domain"
	"github.com/rs/zerolog/log"
)

func requireUser(sess *core.Session) (domain.UserID, error) {
	uid, ok := sess.User()
	if !ok {
		return "", core.ErrUnauthorized
	}
	return uid, nil
}

// Join is idempotent: a second join of the same room changes nothing.
func (o *Orchestrator) Join(sess *core.Session, room domain.RoomID) error {
	if _, err := requireUser(sess); err != nil {
		return err
	}
	if room == "" {
		return core.ErrBadPayload
	}
	_, err := o.Rooms.Join(sess, room)
	return err
}

func (o *Orchestrator) Leave(sess *core.Session, room domain.RoomID) error {
	if _, err := requireUser(sess); err != nil {
		return err
	}
	if room == "" {
		return core.ErrBadPayload
	}
	o.Rooms.Leave(sess, room)
	return nil
}

// SendMessage fans out a message the client already persisted over REST.
// The sender receives its own copy back.
func (o *Orchestrator) SendMessage(sess *core.Session, room domain.RoomID, msg json.RawMessage) error {
	if _, err := requireUser(sess); err != nil {
		return err
	}
	msg = bytes.TrimSpace(msg)
	if room == "" || len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return core.ErrBadPayload
	}
	_, err := o.Bus.ToRoom(room, domain.Event{Type: domain.OutNewMessage, Data: msg}, "")
	return err
}

// Typing announces typing start/stop to everyone in room but the sender.
// Over-limit typing events are dropped silently.
func (o *Orchestrator) Typing(sess *core.Session, room domain.RoomID, started bool) error {
	uid, err := requireUser(sess)
	if err != nil {
		return err
	}
	if room == "" {
		return core.ErrBadPayload
	}
	if started && !o.TypingLimit.Allow(uid) {
		log.Debug().Str("module", "orch").Str("user", string(uid)).Msg("typing rate limited")
		return nil
	}
	t := domain.OutUserTyping
	if !started {
		t = domain.OutUserStopTyping
	}
	_, err = o.Bus.ToRoom(room, domain.Event{Type: t, Data: domain.TypingPayload{UserID: uid}}, sess.ID())
	return err
}

// MarkRead and React echo the message id in the form the client sent it.
func (o *Orchestrator) MarkRead(sess *core.Session, room domain.RoomID, id domain.MessageRef) error {
	uid, err := requireUser(sess)
	if err != nil {
		return err
	}
	if room == "" || id.IsZero() {
		return core.ErrBadPayload
	}
	ev := domain.Event{Type: domain.OutReadReceipt, Data: domain.ReadReceiptPayload{
		MessageID: id,
		UserID:    uid,
		ReadAt:    o.now(),
	}}
	_, err = o.Bus.ToRoom(room, ev, "")
	return err
}

func (o *Orchestrator) React(sess *core.Session, room domain.RoomID, id domain.MessageRef, kind string, action domain.ReactionAction) error {
	uid, err := requireUser(sess)
	if err != nil {
		return err
	}
	if room == "" || id.IsZero() || kind == "" {
		return core.ErrBadPayload
	}
	if _, err := domain.ParseReactionAction(string(action)); err != nil {
		return core.ErrBadPayload
	}
	ev := domain.Event{Type: domain.OutReactionUpdate, Data: domain.ReactionPayload{
		MessageID:    id,
		ReactionType: kind,
		Action:       action,
		UserID:       uid,
		Timestamp:    o.now(),
	}}
	_, err = o.Bus.ToRoom(room, ev, "")
	return err
}

// SavePushToken stores a device token for the session's user.
func (o *Orchestrator) SavePushToken(ctx context.Context, sess *core.Session, token string) error {
	uid, err := requireUser(sess)
	if err != nil {
		return err
	}
	if token == "" {
		return core.ErrBadPayload
	}
	if o.Store == nil {
		log.Warn().Str("module", "orch").Str("user", string(uid)).Msg("push token dropped: no message store")
		return core.ErrUnavailable
	}
	if err := o.Store.SavePushToken(ctx, uid, token); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("save push token")
		return err
	}
	log.Info().Str("module", "orch").Str("user", string(uid)).Msg("push token saved")
	return nil
}
