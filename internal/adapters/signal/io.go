package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/groupchat/internal/core"
	"github.com/dkeye/groupchat/internal/domain"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

// readPump is the single event stream of one connection: inbound events
// are handled one at a time, in arrival order, and the disconnect
// transition runs after the last of them.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sess *core.Session, c *WsSignalConn) {
	sid := sess.ID()
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.Disconnect(context.WithoutCancel(ctx), sess)
		cancel()
		c.Close()
	}()

	pongWait := ctl.opts.pongWait()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		ctl.handleSignal(ctx, sess, data)
	}
}

type envelope struct {
	Type domain.EventType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

// handleSignal never lets one bad event take the connection or the
// process down: malformed frames are logged and answered with an error.
func (ctl *SignalWSController) handleSignal(ctx context.Context, sess *core.Session, data []byte) {
	var env envelope
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("module", "signal").Str("sid", string(sess.ID())).Str("type", string(env.Type)).Msg("handler panic")
		}
	}()
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Msg("bad json")
		ctl.Orch.Fail(sess, "", core.ErrBadPayload)
		return
	}

	var err error
	switch env.Type {
	case domain.InAuthenticate:
		err = ctl.handleAuthenticate(ctx, sess, env.Data)
	case domain.InJoinRoom, domain.InJoinGroup:
		err = ctl.handleJoin(sess, env.Data)
	case domain.InLeaveRoom:
		err = ctl.handleLeave(sess, env.Data)
	case domain.InSendMessage:
		err = ctl.handleSendMessage(sess, env.Data)
	case domain.InTyping:
		err = ctl.handleTyping(sess, env.Data, true)
	case domain.InStopTyping:
		err = ctl.handleTyping(sess, env.Data, false)
	case domain.InMessageRead:
		err = ctl.handleRead(sess, env.Data)
	case domain.InMessageReaction:
		err = ctl.handleReaction(sess, env.Data)
	case domain.InSendPushToken:
		err = ctl.handlePushToken(ctx, sess, env.Data)
	case domain.InPing:
		ctl.handlePing(sess)
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
		err = core.ErrBadPayload
	}
	if err == nil {
		return
	}
	// a failed authenticate was already answered with authenticated{success:false}
	if errors.Is(err, core.ErrAuth) || errors.Is(err, core.ErrAlreadyAuthenticated) {
		return
	}
	log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Str("type", string(env.Type)).Msg("event rejected")
	ctl.Orch.Fail(sess, env.Type, err)
}

// decode unmarshals an event payload, mapping any failure to ErrBadPayload.
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return core.ErrBadPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Join(core.ErrBadPayload, err)
	}
	return nil
}
