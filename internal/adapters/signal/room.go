package signal

import (
	"bytes"
	"encoding/json"

	"github.com/dkeye/groupchat/internal/core"
	"github.com/dkeye/groupchat/internal/domain"
)

type roomPayload struct {
	GroupID domain.RoomID `json:"groupId"`
}

// decodeRoom accepts {"groupId": 5} as well as a bare id.
func decodeRoom(data json.RawMessage) (domain.RoomID, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var p roomPayload
		if err := decode(data, &p); err != nil {
			return "", err
		}
		return p.GroupID, nil
	}
	var id domain.RoomID
	if err := decode(data, &id); err != nil {
		return "", err
	}
	return id, nil
}

func (ctl *SignalWSController) handleJoin(sess *core.Session, data json.RawMessage) error {
	room, err := decodeRoom(data)
	if err != nil {
		return err
	}
	return ctl.Orch.Join(sess, room)
}

func (ctl *SignalWSController) handleLeave(sess *core.Session, data json.RawMessage) error {
	room, err := decodeRoom(data)
	if err != nil {
		return err
	}
	return ctl.Orch.Leave(sess, room)
}

func (ctl *SignalWSController) handleSendMessage(sess *core.Session, data json.RawMessage) error {
	var p struct {
		GroupID domain.RoomID   `json:"groupId"`
		Message json.RawMessage `json:"message"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.SendMessage(sess, p.GroupID, p.Message)
}

func (ctl *SignalWSController) handleTyping(sess *core.Session, data json.RawMessage, started bool) error {
	room, err := decodeRoom(data)
	if err != nil {
		return err
	}
	return ctl.Orch.Typing(sess, room, started)
}

func (ctl *SignalWSController) handleRead(sess *core.Session, data json.RawMessage) error {
	var p struct {
		GroupID   domain.RoomID     `json:"groupId"`
		MessageID domain.MessageRef `json:"messageId"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.MarkRead(sess, p.GroupID, p.MessageID)
}

func (ctl *SignalWSController) handleReaction(sess *core.Session, data json.RawMessage) error {
	var p struct {
		GroupID      domain.RoomID         `json:"groupId"`
		MessageID    domain.MessageRef     `json:"messageId"`
		ReactionType string                `json:"reactionType"`
		Action       domain.ReactionAction `json:"action"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.React(sess, p.GroupID, p.MessageID, p.ReactionType, p.Action)
}
