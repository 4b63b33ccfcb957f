package app

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/groupchat/internal/core"
	"github.com/dkeye/groupchat/internal/core/coretest"
	"github.com/dkeye/groupchat/internal/domain"
)

func authed(t *testing.T, sid string, uid domain.UserID) (*core.Session, *coretest.Conn) {
	t.Helper()
	sess, conn := coretest.NewSession(sid)
	if _, err := sess.Authenticate(uid); err != nil {
		t.Fatalf("authenticate %s: %v", sid, err)
	}
	return sess, conn
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

type recordingMirror struct {
	topics []Topic
	frames []core.Frame
	err    error
}

func (m *recordingMirror) Publish(topic Topic, f core.Frame) error {
	m.topics = append(m.topics, topic)
	m.frames = append(m.frames, f)
	return m.err
}
