package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/groupchat/internal/app"
	"github.com/dkeye/groupchat/internal/core"
	"github.com/dkeye/groupchat/internal/domain"
	"github.com/rs/zerolog/log"
)

// Orchestrator applies the session lifecycle: every realtime operation
// enters here and is checked against the session state first.
type Orchestrator struct {
	Registry    *app.Registry
	Rooms       *app.RoomTracker
	Bus         *app.Broadcaster
	Presence    *app.PresencePropagator
	Auth        core.Verifier
	Store       core.MessageStore
	TypingLimit *app.RateLimiter
	Now         func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Connect tracks a new Unauthenticated session. cancel tears down the
// connection-scoped context when the session is kicked.
func (o *Orchestrator) Connect(sess *core.Session, cancel context.CancelFunc) {
	o.Registry.Bind(sess, cancel)
	log.Info().Str("module", "orch").Str("sid", string(sess.ID())).Msg("connected")
}

// Authenticate verifies token and, on success, binds the identity,
// registers the session and announces the user online. On failure the
// session stays Unauthenticated and only receives a failed ack.
func (o *Orchestrator) Authenticate(ctx context.Context, sess *core.Session, token string) (domain.UserID, error) {
	if sess.State() == core.Closed {
		return "", core.ErrSessionClosed
	}
	if token == "" {
		o.ack(sess, false, "")
		return "", fmt.Errorf("%w: empty token", core.ErrAuth)
	}
	uid, err := o.Auth.Verify(ctx, token)
	if err != nil {
		o.ack(sess, false, "")
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sess.ID())).Msg("authentication failed")
		return "", fmt.Errorf("%w: %v", core.ErrAuth, err)
	}

	fresh, err := sess.Authenticate(uid)
	if err != nil {
		if !errors.Is(err, core.ErrSessionClosed) {
			o.ack(sess, false, "")
		}
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sess.ID())).Str("user", string(uid)).Msg("authenticate rejected")
		return "", err
	}
	if !fresh {
		o.ack(sess, true, uid)
		return uid, nil
	}

	o.Registry.Register(uid, sess)
	o.ack(sess, true, uid)
	o.Presence.MarkOnline(ctx, uid)
	log.Info().Str("module", "orch").Str("sid", string(sess.ID())).Str("user", string(uid)).Msg("authenticated")
	return uid, nil
}

func (o *Orchestrator) ack(sess *core.Session, ok bool, uid domain.UserID) {
	ev := domain.Event{Type: domain.OutAuthenticated, Data: domain.AuthenticatedPayload{Success: ok, UserID: uid}}
	if err := o.Bus.Send(sess, ev); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sess.ID())).Msg("send ack")
	}
}

// Disconnect moves the session to Closed from any state. The user goes
// offline only when this was their last registered connection.
func (o *Orchestrator) Disconnect(ctx context.Context, sess *core.Session) {
	uid, wasAuthenticated := sess.Close()
	o.Rooms.LeaveAll(sess)
	o.Registry.Unbind(sess.ID())
	log.Info().Str("module", "orch").Str("sid", string(sess.ID())).Bool("authenticated", wasAuthenticated).Msg("disconnected")
	if !wasAuthenticated {
		return
	}
	if last := o.Registry.Unregister(uid, sess); !last {
		return
	}
	o.TypingLimit.Forget(uid)
	o.Presence.MarkOffline(ctx, uid)
}

// Fail reports a rejected operation to the offending session only.
func (o *Orchestrator) Fail(sess *core.Session, event domain.EventType, err error) {
	ev := domain.Event{Type: domain.OutError, Data: domain.ErrorPayload{Error: errorCode(err), Event: event}}
	if sendErr := o.Bus.Send(sess, ev); sendErr != nil {
		log.Debug().Err(sendErr).Str("module", "orch").Str("sid", string(sess.ID())).Msg("send error event")
	}
}

func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, core.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, core.ErrBadPayload):
		return "bad_payload"
	case errors.Is(err, core.ErrAuth):
		return "auth_failed"
	case errors.Is(err, core.ErrAlreadyAuthenticated):
		return "already_authenticated"
	case errors.Is(err, core.ErrSessionClosed):
		return "closed"
	case errors.Is(err, core.ErrUnavailable):
		return "unavailable"
	}
	return "internal"
}
