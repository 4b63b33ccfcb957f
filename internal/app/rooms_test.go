package app

import (
	"errors"
	"testing"

	"github.com/dkeye/groupchat/internal/core"
	"github.com/dkeye/groupchat/internal/core/coretest"
)

func TestRoomJoinRequiresAuthentication(t *testing.T) {
	rt := NewRoomTracker()
	sess, _ := coretest.NewSession("s1")

	if _, err := rt.Join(sess, "5"); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if len(rt.Audience("5")) != 0 || len(rt.RoomsOf(sess)) != 0 {
		t.Fatal("rejected join must not change membership")
	}
}

func TestRoomJoinIdempotent(t *testing.T) {
	rt := NewRoomTracker()
	sess, _ := authed(t, "s1", "u1")

	added, err := rt.Join(sess, "5")
	if err != nil || !added {
		t.Fatalf("first join = %v, %v", added, err)
	}
	added, err = rt.Join(sess, "5")
	if err != nil || added {
		t.Fatalf("second join = %v, %v", added, err)
	}
	if got := len(rt.Audience("5")); got != 1 {
		t.Fatalf("audience = %d, want 1", got)
	}
}

func TestRoomLeave(t *testing.T) {
	rt := NewRoomTracker()
	sess, _ := authed(t, "s1", "u1")
	_, _ = rt.Join(sess, "5")
	_, _ = rt.Join(sess, "6")

	if !rt.Leave(sess, "5") {
		t.Fatal("leave of a joined room must report true")
	}
	if rt.Leave(sess, "5") {
		t.Fatal("second leave must report false")
	}
	if len(rt.Audience("5")) != 0 {
		t.Fatal("room 5 should be empty")
	}
	if rooms := rt.RoomsOf(sess); len(rooms) != 1 || rooms[0] != "6" {
		t.Fatalf("rooms = %v", rooms)
	}
}

func TestRoomLeaveAll(t *testing.T) {
	rt := NewRoomTracker()
	a, _ := authed(t, "a", "u1")
	b, _ := authed(t, "b", "u2")
	_, _ = rt.Join(a, "5")
	_, _ = rt.Join(a, "6")
	_, _ = rt.Join(b, "5")

	if left := rt.LeaveAll(a); len(left) != 2 {
		t.Fatalf("left = %v", left)
	}
	if len(rt.RoomsOf(a)) != 0 {
		t.Fatal("a still has rooms")
	}
	aud := rt.Audience("5")
	if len(aud) != 1 || aud[0] != b {
		t.Fatalf("room 5 audience = %v", aud)
	}
	if len(rt.Audience("6")) != 0 {
		t.Fatal("room 6 should be empty")
	}
	if _, ok := rt.audience["6"]; ok || len(rt.audience) != 1 {
		t.Fatalf("empty rooms must be dropped from the index: %v", rt.audience)
	}
}

func TestRoomJoinAfterCloseRejected(t *testing.T) {
	rt := NewRoomTracker()
	sess, _ := authed(t, "s1", "u1")
	sess.Close()

	if _, err := rt.Join(sess, "5"); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
}
