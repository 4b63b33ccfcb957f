package app

import (
	"context"
	"time"

	"github.com/dkeye/groupchat/internal/core"
	"github.com/dkeye/groupchat/internal/domain"
	"github.com/rs/zerolog/log"
)

// PresencePropagator persists presence transitions and announces them to
// every connection. Transitions of one user are serialized, and each one
// re-checks the registry under that serialization so a late "offline"
// cannot overwrite a reconnect that already went "online".
type PresencePropagator struct {
	registry *Registry
	store    core.PresenceStore
	bus      *Broadcaster
	users    stripedMutex
}

func NewPresencePropagator(registry *Registry, store core.PresenceStore, bus *Broadcaster) *PresencePropagator {
	return &PresencePropagator{registry: registry, store: store, bus: bus}
}

// MarkOnline reports whether a presence_update was emitted.
func (p *PresencePropagator) MarkOnline(ctx context.Context, uid domain.UserID) bool {
	unlock := p.users.lock(string(uid))
	defer unlock()
	if !p.registry.IsOnline(uid) {
		return false
	}
	return p.transition(ctx, uid, domain.StatusOnline)
}

// MarkOffline is only meaningful once the registry holds no connection
// for uid; otherwise it is a no-op.
func (p *PresencePropagator) MarkOffline(ctx context.Context, uid domain.UserID) bool {
	unlock := p.users.lock(string(uid))
	defer unlock()
	if p.registry.IsOnline(uid) {
		return false
	}
	return p.transition(ctx, uid, domain.StatusOffline)
}

func (p *PresencePropagator) transition(ctx context.Context, uid domain.UserID, status domain.PresenceStatus) bool {
	if p.store != nil {
		if _, err := p.store.SetPresence(ctx, uid, status); err != nil {
			log.Error().Err(err).Str("module", "app.presence").Str("user", string(uid)).Str("status", string(status)).Msg("persist presence")
		}
	}
	if !p.registry.SwapStatus(uid, status) {
		log.Debug().Str("module", "app.presence").Str("user", string(uid)).Str("status", string(status)).Msg("presence unchanged")
		return false
	}
	res, err := p.bus.ToAll(domain.PresenceChange(uid, status))
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("encode presence_update")
		return false
	}
	log.Info().Str("module", "app.presence").Str("user", string(uid)).Str("status", string(status)).Int("sent_to", res.SendTo).Msg("presence changed")
	return true
}

// Refresh re-persists "online" for every connected user, renewing store
// records that expire. It returns how many users were refreshed.
func (p *PresencePropagator) Refresh(ctx context.Context) int {
	if p.store == nil {
		return 0
	}
	n := 0
	for _, uid := range p.registry.OnlineUsers() {
		if p.refresh(ctx, uid) {
			n++
		}
	}
	log.Debug().Str("module", "app.presence").Int("users", n).Msg("presence refreshed")
	return n
}

func (p *PresencePropagator) refresh(ctx context.Context, uid domain.UserID) bool {
	unlock := p.users.lock(string(uid))
	defer unlock()
	// skip users whose online transition has not run yet or who just left
	if !p.registry.IsOnline(uid) || p.registry.Status(uid) != domain.StatusOnline {
		return false
	}
	if _, err := p.store.SetPresence(ctx, uid, domain.StatusOnline); err != nil {
		log.Error().Err(err).Str("module", "app.presence").Str("user", string(uid)).Msg("refresh presence")
		return false
	}
	return true
}

// RunRefresh calls Refresh every interval until ctx is done.
func (p *PresencePropagator) RunRefresh(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

// Lookup merges the durable record with the live registry view.
func (p *PresencePropagator) Lookup(ctx context.Context, uid domain.UserID) (domain.Presence, bool, error) {
	connected := p.registry.IsOnline(uid)
	if p.store == nil {
		return domain.Presence{UserID: uid, Status: p.registry.Status(uid)}, connected, nil
	}
	rec, err := p.store.GetPresence(ctx, uid)
	if err != nil {
		return domain.Presence{}, connected, err
	}
	return rec, connected, nil
}
