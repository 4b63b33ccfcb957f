package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/dkeye/groupchat/internal/app"
	"github.com/dkeye/groupchat/internal/core"
	"github.com/dkeye/groupchat/internal/core/coretest"
	"github.com/dkeye/groupchat/internal/core/mocks"
	"github.com/dkeye/groupchat/internal/domain"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	o     *Orchestrator
	auth  *mocks.MockVerifier
	store *mocks.MockMessageStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	reg, rooms := app.NewRegistry(), app.NewRoomTracker()
	bus := app.NewBroadcaster(rooms, reg, app.SimplePolicy{}, nil)
	h := &harness{
		auth:  mocks.NewMockVerifier(ctrl),
		store: mocks.NewMockMessageStore(ctrl),
	}
	h.o = &Orchestrator{
		Registry:    reg,
		Rooms:       rooms,
		Bus:         bus,
		Presence:    app.NewPresencePropagator(reg, app.NewMemoryPresenceStore(), bus),
		Auth:        h.auth,
		Store:       h.store,
		TypingLimit: app.NewRateLimiter(2, time.Minute),
		Now:         func() time.Time { return fixedNow },
	}
	h.auth.EXPECT().Verify(gomock.Any(), "tok-u1").Return(domain.UserID("u1"), nil).AnyTimes()
	h.auth.EXPECT().Verify(gomock.Any(), "tok-u2").Return(domain.UserID("u2"), nil).AnyTimes()
	h.auth.EXPECT().Verify(gomock.Any(), "bad").Return(domain.UserID(""), errors.New("signature invalid")).AnyTimes()
	return h
}

func (h *harness) connect(sid string) (*core.Session, *coretest.Conn) {
	sess, conn := coretest.NewSession(sid)
	h.o.Connect(sess, nil)
	return sess, conn
}

func (h *harness) login(t *testing.T, sid, token string) (*core.Session, *coretest.Conn) {
	t.Helper()
	sess, conn := h.connect(sid)
	if _, err := h.o.Authenticate(context.Background(), sess, token); err != nil {
		t.Fatalf("authenticate %s: %v", sid, err)
	}
	return sess, conn
}

func acks(t *testing.T, c *coretest.Conn) []domain.AuthenticatedPayload {
	t.Helper()
	var out []domain.AuthenticatedPayload
	for _, r := range c.OfType(domain.OutAuthenticated) {
		var p domain.AuthenticatedPayload
		if err := json.Unmarshal(r.Data, &p); err != nil {
			t.Fatal(err)
		}
		out = append(out, p)
	}
	return out
}

func presenceUpdates(t *testing.T, c *coretest.Conn) []domain.PresencePayload {
	t.Helper()
	var out []domain.PresencePayload
	for _, r := range c.OfType(domain.OutPresenceUpdate) {
		var p domain.PresencePayload
		if err := json.Unmarshal(r.Data, &p); err != nil {
			t.Fatal(err)
		}
		out = append(out, p)
	}
	return out
}

func TestRoomConversation(t *testing.T) {
	h := newHarness(t)
	a, connA := h.login(t, "a", "tok-u1")
	b, connB := h.login(t, "b", "tok-u2")
	_, connC := h.login(t, "c", "tok-u2")

	if err := h.o.Join(a, "5"); err != nil {
		t.Fatal(err)
	}
	if err := h.o.Join(b, "5"); err != nil {
		t.Fatal(err)
	}
	connA.Reset()
	connB.Reset()
	connC.Reset()

	if err := h.o.Typing(a, "5", true); err != nil {
		t.Fatal(err)
	}
	if len(connA.OfType(domain.OutUserTyping)) != 0 {
		t.Fatal("sender must not see its own typing")
	}
	typing := connB.OfType(domain.OutUserTyping)
	if len(typing) != 1 || string(typing[0].Data) != `{"userId":"u1"}` {
		t.Fatalf("typing at B = %+v", typing)
	}

	msg := json.RawMessage(`{"id":10,"content":"hi"}`)
	if err := h.o.SendMessage(a, "5", msg); err != nil {
		t.Fatal(err)
	}
	for name, c := range map[string]*coretest.Conn{"A": connA, "B": connB} {
		got := c.OfType(domain.OutNewMessage)
		if len(got) != 1 || string(got[0].Data) != string(msg) {
			t.Fatalf("new_message at %s = %+v", name, got)
		}
	}
	if len(connC.Events()) != 0 {
		t.Fatal("a session outside the room received room events")
	}
}

func TestAuthenticateAnnouncesOnline(t *testing.T) {
	h := newHarness(t)
	_, watcher := h.connect("watcher")

	_, conn := h.login(t, "a", "tok-u1")

	if got := acks(t, conn); len(got) != 1 || !got[0].Success || got[0].UserID != "u1" {
		t.Fatalf("acks = %+v", got)
	}
	updates := presenceUpdates(t, watcher)
	if len(updates) != 1 || updates[0] != (domain.PresencePayload{UserID: "u1", Status: domain.StatusOnline}) {
		t.Fatalf("presence = %+v", updates)
	}
	if !h.o.Registry.IsOnline("u1") {
		t.Fatal("u1 should be registered")
	}
}

func TestAuthenticateFailureKeepsSessionUnauthenticated(t *testing.T) {
	h := newHarness(t)
	_, watcher := h.connect("watcher")
	sess, conn := h.connect("a")

	for _, token := range []string{"bad", ""} {
		_, err := h.o.Authenticate(context.Background(), sess, token)
		if !errors.Is(err, core.ErrAuth) {
			t.Fatalf("token %q: err = %v", token, err)
		}
	}
	if sess.State() != core.Unauthenticated {
		t.Fatalf("state = %v", sess.State())
	}
	got := acks(t, conn)
	if len(got) != 2 || got[0].Success || got[1].Success {
		t.Fatalf("acks = %+v", got)
	}
	if len(presenceUpdates(t, watcher)) != 0 {
		t.Fatal("failed authentication must not change presence")
	}

	// the session may retry
	if _, err := h.o.Authenticate(context.Background(), sess, "tok-u1"); err != nil {
		t.Fatal(err)
	}
	if sess.State() != core.Authenticated {
		t.Fatalf("state after retry = %v", sess.State())
	}
}

func TestReauthenticate(t *testing.T) {
	h := newHarness(t)
	_, watcher := h.connect("watcher")
	sess, conn := h.login(t, "a", "tok-u1")

	uid, err := h.o.Authenticate(context.Background(), sess, "tok-u1")
	if err != nil || uid != "u1" {
		t.Fatalf("same user: %q, %v", uid, err)
	}
	_, err = h.o.Authenticate(context.Background(), sess, "tok-u2")
	if !errors.Is(err, core.ErrAlreadyAuthenticated) {
		t.Fatalf("other user: err = %v", err)
	}

	got := acks(t, conn)
	if len(got) != 3 || !got[1].Success || got[2].Success {
		t.Fatalf("acks = %+v", got)
	}
	if len(presenceUpdates(t, watcher)) != 1 {
		t.Fatal("re-authentication must not re-announce presence")
	}
	if u, _ := sess.User(); u != "u1" {
		t.Fatalf("identity = %q", u)
	}
	if h.o.Registry.IsOnline("u2") {
		t.Fatal("u2 must not be registered")
	}
}

func TestUnauthenticatedOperationsRejected(t *testing.T) {
	h := newHarness(t)
	sess, conn := h.connect("a")
	ctx := context.Background()

	ops := map[string]func() error{
		"join":    func() error { return h.o.Join(sess, "5") },
		"leave":   func() error { return h.o.Leave(sess, "5") },
		"send":    func() error { return h.o.SendMessage(sess, "5", json.RawMessage(`{"id":1}`)) },
		"typing":  func() error { return h.o.Typing(sess, "5", true) },
		"read":    func() error { return h.o.MarkRead(sess, "5", domain.MessageRef{ID: "1"}) },
		"react":   func() error { return h.o.React(sess, "5", domain.MessageRef{ID: "1"}, "like", domain.ReactionAdd) },
		"pushtok": func() error { return h.o.SavePushToken(ctx, sess, "device") },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, core.ErrUnauthorized) {
			t.Errorf("%s: err = %v, want ErrUnauthorized", name, err)
		}
	}
	if len(h.o.Rooms.RoomsOf(sess)) != 0 || len(h.o.Rooms.Audience("5")) != 0 {
		t.Fatal("rejected operations changed room membership")
	}
	if len(conn.Events()) != 0 {
		t.Fatal("rejected operations produced events")
	}
}

func TestDisconnectGoesOfflineOnLastConnection(t *testing.T) {
	h := newHarness(t)
	_, watcher := h.connect("watcher")
	a, _ := h.login(t, "a", "tok-u1")
	b, _ := h.login(t, "b", "tok-u1")
	_ = h.o.Join(a, "5")

	h.o.Disconnect(context.Background(), a)
	if a.State() != core.Closed {
		t.Fatalf("state = %v", a.State())
	}
	if len(h.o.Rooms.Audience("5")) != 0 {
		t.Fatal("closed session still in room audience")
	}
	if !h.o.Registry.IsOnline("u1") {
		t.Fatal("u1 still has connection b")
	}

	h.o.Disconnect(context.Background(), b)
	updates := presenceUpdates(t, watcher)
	if len(updates) != 2 || updates[0].Status != domain.StatusOnline || updates[1].Status != domain.StatusOffline {
		t.Fatalf("presence = %+v", updates)
	}
	if h.o.Registry.IsOnline("u1") {
		t.Fatal("u1 should be offline")
	}

	// a second disconnect is a no-op
	h.o.Disconnect(context.Background(), b)
	if len(presenceUpdates(t, watcher)) != 2 {
		t.Fatal("repeated disconnect re-announced presence")
	}
}

func TestDisconnectUnauthenticated(t *testing.T) {
	h := newHarness(t)
	_, watcher := h.connect("watcher")
	sess, _ := h.connect("a")

	h.o.Disconnect(context.Background(), sess)
	if sess.State() != core.Closed {
		t.Fatalf("state = %v", sess.State())
	}
	if _, ok := h.o.Registry.GetSession("a"); ok {
		t.Fatal("session still bound")
	}
	if len(presenceUpdates(t, watcher)) != 0 {
		t.Fatal("unauthenticated disconnect changed presence")
	}
	if _, err := h.o.Authenticate(context.Background(), sess, "tok-u1"); !errors.Is(err, core.ErrSessionClosed) {
		t.Fatalf("authenticate after close: %v", err)
	}
}

func TestTypingRateLimited(t *testing.T) {
	h := newHarness(t)
	a, _ := h.login(t, "a", "tok-u1")
	b, connB := h.login(t, "b", "tok-u2")
	_ = h.o.Join(a, "5")
	_ = h.o.Join(b, "5")

	for i := 0; i < 5; i++ {
		if err := h.o.Typing(a, "5", true); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.o.Typing(a, "5", false); err != nil {
		t.Fatal(err)
	}
	if got := len(connB.OfType(domain.OutUserTyping)); got != 2 {
		t.Fatalf("typing events = %d, want 2", got)
	}
	if got := len(connB.OfType(domain.OutUserStopTyping)); got != 1 {
		t.Fatalf("stop typing events = %d, want 1", got)
	}
}

func TestReadReceiptAndReaction(t *testing.T) {
	h := newHarness(t)
	a, connA := h.login(t, "a", "tok-u1")
	_ = h.o.Join(a, "5")

	if err := h.o.MarkRead(a, "5", domain.MessageRef{ID: "42"}); err != nil {
		t.Fatal(err)
	}
	receipts := connA.OfType(domain.OutReadReceipt)
	want := `{"messageId":42,"userId":"u1","readAt":"2024-03-01T12:00:00Z"}`
	if len(receipts) != 1 || string(receipts[0].Data) != want {
		t.Fatalf("receipt = %+v", receipts)
	}

	if err := h.o.React(a, "5", domain.MessageRef{ID: "42"}, "like", domain.ReactionAdd); err != nil {
		t.Fatal(err)
	}
	reactions := connA.OfType(domain.OutReactionUpdate)
	if len(reactions) != 1 {
		t.Fatalf("reactions = %+v", reactions)
	}
	var p domain.ReactionPayload
	if err := json.Unmarshal(reactions[0].Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.MessageID.ID != "42" || p.ReactionType != "like" || p.Action != domain.ReactionAdd || p.UserID != "u1" {
		t.Fatalf("payload = %+v", p)
	}

	if err := h.o.React(a, "5", domain.MessageRef{ID: "42"}, "like", "toggle"); !errors.Is(err, core.ErrBadPayload) {
		t.Fatalf("unknown action: err = %v", err)
	}
}

func TestQuotedMessageIDEchoedAsString(t *testing.T) {
	h := newHarness(t)
	a, connA := h.login(t, "a", "tok-u1")
	_ = h.o.Join(a, "5")

	var ref domain.MessageRef
	if err := json.Unmarshal([]byte(`"42"`), &ref); err != nil {
		t.Fatal(err)
	}
	if err := h.o.MarkRead(a, "5", ref); err != nil {
		t.Fatal(err)
	}
	if err := h.o.React(a, "5", ref, "like", domain.ReactionRemove); err != nil {
		t.Fatal(err)
	}
	receipts := connA.OfType(domain.OutReadReceipt)
	want := `{"messageId":"42","userId":"u1","readAt":"2024-03-01T12:00:00Z"}`
	if len(receipts) != 1 || string(receipts[0].Data) != want {
		t.Fatalf("receipt = %+v", receipts)
	}
	reactions := connA.OfType(domain.OutReactionUpdate)
	if len(reactions) != 1 || !strings.HasPrefix(string(reactions[0].Data), `{"messageId":"42",`) {
		t.Fatalf("reaction = %+v", reactions)
	}
}

func TestBadPayloads(t *testing.T) {
	h := newHarness(t)
	a, _ := h.login(t, "a", "tok-u1")

	cases := map[string]error{
		"join":    h.o.Join(a, ""),
		"send":    h.o.SendMessage(a, "5", nil),
		"sendnil": h.o.SendMessage(a, "5", json.RawMessage("null")),
		"read":    h.o.MarkRead(a, "5", domain.MessageRef{}),
		"react":   h.o.React(a, "5", domain.MessageRef{ID: "1"}, "", domain.ReactionAdd),
		"pushtok": h.o.SavePushToken(context.Background(), a, ""),
	}
	for name, err := range cases {
		if !errors.Is(err, core.ErrBadPayload) {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}

func TestSavePushToken(t *testing.T) {
	h := newHarness(t)
	a, _ := h.login(t, "a", "tok-u1")

	h.store.EXPECT().SavePushToken(gomock.Any(), domain.UserID("u1"), "device-1").Return(nil)
	if err := h.o.SavePushToken(context.Background(), a, "device-1"); err != nil {
		t.Fatal(err)
	}

	h.store.EXPECT().SavePushToken(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("db down"))
	if err := h.o.SavePushToken(context.Background(), a, "device-2"); err == nil {
		t.Fatal("store failure should surface")
	}
}

func TestSavePushTokenWithoutStore(t *testing.T) {
	h := newHarness(t)
	h.o.Store = nil
	a, conn := h.login(t, "a", "tok-u1")

	err := h.o.SavePushToken(context.Background(), a, "device-1")
	if !errors.Is(err, core.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	h.o.Fail(a, domain.InSendPushToken, err)
	got := conn.OfType(domain.OutError)
	if len(got) != 1 || string(got[0].Data) != `{"error":"unavailable","event":"send_push_token"}` {
		t.Fatalf("error events = %+v", got)
	}
}

func TestFailSendsErrorEvent(t *testing.T) {
	h := newHarness(t)
	sess, conn := h.connect("a")

	h.o.Fail(sess, domain.InJoinRoom, core.ErrUnauthorized)
	got := conn.OfType(domain.OutError)
	if len(got) != 1 || string(got[0].Data) != `{"error":"unauthorized","event":"join_room"}` {
		t.Fatalf("error events = %+v", got)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{core.ErrUnauthorized, "unauthorized"},
		{fmt.Errorf("decode: %w", core.ErrBadPayload), "bad_payload"},
		{fmt.Errorf("%w: expired", core.ErrAuth), "auth_failed"},
		{core.ErrAlreadyAuthenticated, "already_authenticated"},
		{core.ErrSessionClosed, "closed"},
		{core.ErrUnavailable, "unavailable"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		if got := errorCode(tt.err); got != tt.want {
			t.Errorf("errorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
