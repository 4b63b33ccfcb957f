package app

import (
	"context"
	"sync"

	"github.com/dkeye/groupchat/internal/core"
	"github.com/dkeye/groupchat/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Session *core.Session
	Cancel  context.CancelFunc
}

// Registry is the Connection Registry: every live connection by id, the
// authenticated ones by user, and the volatile presence cache.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	users    map[domain.UserID]map[core.SessionID]*core.Session
	status   map[domain.UserID]domain.PresenceStatus
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		users:    make(map[domain.UserID]map[core.SessionID]*core.Session),
		status:   make(map[domain.UserID]domain.PresenceStatus),
	}
}

// Bind tracks a freshly connected, not yet authenticated session.
func (r *Registry) Bind(sess *core.Session, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID()] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Debug().Str("module", "app.registry").Str("sid", string(sess.ID())).Msg("bound session")
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

func (r *Registry) GetSession(sid core.SessionID) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Register adds the session under uid. A user may hold many sessions.
func (r *Registry) Register(uid domain.UserID, sess *core.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.users[uid]
	if !ok {
		set = make(map[core.SessionID]*core.Session)
		r.users[uid] = set
	}
	set[sess.ID()] = sess
	log.Info().Str("module", "app.registry").Str("sid", string(sess.ID())).Str("user", string(uid)).Int("connections", len(set)).Msg("registered")
}

// Unregister removes exactly this session. last reports that uid has no
// connection left, i.e. the user is fully offline.
func (r *Registry) Unregister(uid domain.UserID, sess *core.Session) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.users[uid]
	if !ok {
		return false
	}
	if _, ok := set[sess.ID()]; !ok {
		return false
	}
	delete(set, sess.ID())
	if len(set) == 0 {
		delete(r.users, uid)
		last = true
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sess.ID())).Str("user", string(uid)).Int("connections", len(set)).Msg("unregistered")
	return last
}

func (r *Registry) ConnectionsFor(uid domain.UserID) []*core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.users[uid]
	out := make([]*core.Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

func (r *Registry) IsOnline(uid domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[uid]) > 0
}

// All returns every live session, authenticated or not.
func (r *Registry) All() []*core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.Session)
	}
	return out
}

func (r *Registry) OnlineUsers() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserID, 0, len(r.users))
	for uid := range r.users {
		out = append(out, uid)
	}
	return out
}

// SwapStatus stores the cached presence of uid and reports whether it
// changed. An absent entry counts as offline.
func (r *Registry) SwapStatus(uid domain.UserID, status domain.PresenceStatus) (changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.status[uid]
	if !ok {
		prev = domain.StatusOffline
	}
	if prev == status {
		return false
	}
	if status == domain.StatusOffline {
		delete(r.status, uid)
	} else {
		r.status[uid] = status
	}
	return true
}

func (r *Registry) Status(uid domain.UserID) domain.PresenceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.status[uid]; ok {
		return s
	}
	return domain.StatusOffline
}

// Cancel stops the connection-scoped context of a session, which tears the
// transport down and runs the normal disconnect path.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	e.Session.Signal().Close()
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
