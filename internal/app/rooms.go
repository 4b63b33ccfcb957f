package app

import (
	"sync"

	"github.com/dkeye/groupchat/internal/core"
	"github.com/dkeye/groupchat/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomTracker is the Room Membership Tracker. It keeps the joined-room set
// of every session and the reverse index room -> audience, both under one lock.
type RoomTracker struct {
	mu       sync.RWMutex
	joined   map[core.SessionID]map[domain.RoomID]struct{}
	audience map[domain.RoomID]map[core.SessionID]*core.Session
}

func NewRoomTracker() *RoomTracker {
	return &RoomTracker{
		joined:   make(map[core.SessionID]map[domain.RoomID]struct{}),
		audience: make(map[domain.RoomID]map[core.SessionID]*core.Session),
	}
}

// Join adds room to the session's joined set. added is false when the
// session was already in the room. Only Authenticated sessions may join.
func (t *RoomTracker) Join(sess *core.Session, room domain.RoomID) (added bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// checked under t.mu so a concurrent LeaveAll after Close cannot be overtaken
	if sess.State() != core.Authenticated {
		return false, core.ErrUnauthorized
	}
	sid := sess.ID()
	rooms, ok := t.joined[sid]
	if !ok {
		rooms = make(map[domain.RoomID]struct{})
		t.joined[sid] = rooms
	}
	if _, ok := rooms[room]; ok {
		return false, nil
	}
	rooms[room] = struct{}{}
	members, ok := t.audience[room]
	if !ok {
		members = make(map[core.SessionID]*core.Session)
		t.audience[room] = members
	}
	members[sid] = sess
	log.Info().Str("module", "app.rooms").Str("sid", string(sid)).Str("room", string(room)).Int("audience", len(members)).Msg("joined")
	return true, nil
}

// Leave removes one room from the session's joined set.
func (t *RoomTracker) Leave(sess *core.Session, room domain.RoomID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	rooms, ok := t.joined[sess.ID()]
	if !ok {
		return false
	}
	if _, ok := rooms[room]; !ok {
		return false
	}
	delete(rooms, room)
	if len(rooms) == 0 {
		delete(t.joined, sess.ID())
	}
	t.dropLocked(room, sess.ID())
	log.Info().Str("module", "app.rooms").Str("sid", string(sess.ID())).Str("room", string(room)).Msg("left")
	return true
}

// LeaveAll clears the session's joined set. Used on disconnect.
func (t *RoomTracker) LeaveAll(sess *core.Session) []domain.RoomID {
	t.mu.Lock()
	defer t.mu.Unlock()
	rooms := t.joined[sess.ID()]
	delete(t.joined, sess.ID())
	out := make([]domain.RoomID, 0, len(rooms))
	for room := range rooms {
		t.dropLocked(room, sess.ID())
		out = append(out, room)
	}
	if len(out) > 0 {
		log.Info().Str("module", "app.rooms").Str("sid", string(sess.ID())).Int("rooms", len(out)).Msg("left all rooms")
	}
	return out
}

func (t *RoomTracker) dropLocked(room domain.RoomID, sid core.SessionID) {
	members, ok := t.audience[room]
	if !ok {
		return
	}
	delete(members, sid)
	if len(members) == 0 {
		delete(t.audience, room)
	}
}

// Audience returns a snapshot of the sessions currently joined to room.
func (t *RoomTracker) Audience(room domain.RoomID) []*core.Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	members := t.audience[room]
	out := make([]*core.Session, 0, len(members))
	for _, s := range members {
		out = append(out, s)
	}
	return out
}

func (t *RoomTracker) RoomsOf(sess *core.Session) []domain.RoomID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rooms := t.joined[sess.ID()]
	out := make([]domain.RoomID, 0, len(rooms))
	for room := range rooms {
		out = append(out, room)
	}
	return out
}
