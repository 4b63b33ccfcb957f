package core_test

import (
	"errors"
	"testing"

	"github.com/dkeye/groupchat/internal/core"
	"github.com/dkeye/groupchat/internal/core/coretest"
)

func TestSessionStartsUnauthenticated(t *testing.T) {
	sess, _ := coretest.NewSession("s1")
	if got := sess.State(); got != core.Unauthenticated {
		t.Fatalf("state = %v, want unauthenticated", got)
	}
	if _, ok := sess.User(); ok {
		t.Fatal("unauthenticated session must not expose a user")
	}
}

func TestSessionAuthenticateBindsUser(t *testing.T) {
	sess, _ := coretest.NewSession("s1")
	fresh, err := sess.Authenticate("42")
	if err != nil || !fresh {
		t.Fatalf("Authenticate = %v, %v; want true, nil", fresh, err)
	}
	uid, ok := sess.User()
	if !ok || uid != "42" {
		t.Fatalf("User = %q, %v", uid, ok)
	}
	if sess.State() != core.Authenticated {
		t.Fatalf("state = %v", sess.State())
	}
}

func TestSessionReauthenticate(t *testing.T) {
	sess, _ := coretest.NewSession("s1")
	if _, err := sess.Authenticate("42"); err != nil {
		t.Fatal(err)
	}

	fresh, err := sess.Authenticate("42")
	if err != nil || fresh {
		t.Fatalf("same user: got %v, %v; want false, nil", fresh, err)
	}

	_, err = sess.Authenticate("7")
	if !errors.Is(err, core.ErrAlreadyAuthenticated) {
		t.Fatalf("other user: err = %v", err)
	}
	if uid, _ := sess.User(); uid != "42" {
		t.Fatalf("identity changed to %q", uid)
	}
}

func TestSessionClose(t *testing.T) {
	sess, conn := coretest.NewSession("s1")
	_, _ = sess.Authenticate("42")

	uid, was := sess.Close()
	if !was || uid != "42" {
		t.Fatalf("Close = %q, %v", uid, was)
	}
	if sess.State() != core.Closed {
		t.Fatalf("state = %v", sess.State())
	}
	if _, ok := sess.User(); ok {
		t.Fatal("closed session must not expose a user")
	}
	if _, was := sess.Close(); was {
		t.Fatal("second Close must be a no-op")
	}
	if err := sess.TrySend(core.Frame("x")); !errors.Is(err, core.ErrSessionClosed) {
		t.Fatalf("TrySend after close = %v", err)
	}
	if len(conn.Events()) != 0 {
		t.Fatal("nothing should reach a closed session")
	}
	if _, err := sess.Authenticate("42"); !errors.Is(err, core.ErrSessionClosed) {
		t.Fatalf("Authenticate after close = %v", err)
	}
}

func TestSessionCloseUnauthenticated(t *testing.T) {
	sess, _ := coretest.NewSession("s1")
	if _, was := sess.Close(); was {
		t.Fatal("unauthenticated close reported an identity")
	}
}
