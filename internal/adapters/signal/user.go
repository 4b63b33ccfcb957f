package signal

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/dkeye/groupchat/internal/core"
)

// decodeToken accepts a bare JSON string or {"token": "..."}.
func decodeToken(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var p struct {
			Token string `json:"token"`
		}
		if err := decode(data, &p); err != nil {
			return "", err
		}
		return p.Token, nil
	}
	var token string
	if err := decode(data, &token); err != nil {
		return "", err
	}
	return token, nil
}

func (ctl *SignalWSController) handleAuthenticate(ctx context.Context, sess *core.Session, data json.RawMessage) error {
	token, err := decodeToken(data)
	if err != nil {
		// still answer the attempt so the client can retry
		token = ""
	}
	_, err = ctl.Orch.Authenticate(ctx, sess, token)
	return err
}

// handlePushToken accepts {"pushToken": {"data": "..."}} as sent by Expo
// clients, or {"pushToken": "..."}.
func (ctl *SignalWSController) handlePushToken(ctx context.Context, sess *core.Session, data json.RawMessage) error {
	var p struct {
		PushToken json.RawMessage `json:"pushToken"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	raw := bytes.TrimSpace(p.PushToken)
	var token string
	if len(raw) > 0 && raw[0] == '{' {
		var inner struct {
			Data string `json:"data"`
		}
		if err := decode(raw, &inner); err != nil {
			return err
		}
		token = inner.Data
	} else if err := decode(raw, &token); err != nil {
		return err
	}
	return ctl.Orch.SavePushToken(ctx, sess, token)
}
