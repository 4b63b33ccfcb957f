package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/groupchat/internal/domain"
)

// MemoryPresenceStore keeps presence records in process. It backs the
// "memory" presence backend used in development and tests.
type MemoryPresenceStore struct {
	mu      sync.RWMutex
	records map[domain.UserID]domain.Presence
	now     func() time.Time
}

func NewMemoryPresenceStore() *MemoryPresenceStore {
	return &MemoryPresenceStore{records: make(map[domain.UserID]domain.Presence), now: time.Now}
}

func (m *MemoryPresenceStore) SetPresence(_ context.Context, uid domain.UserID, status domain.PresenceStatus) (domain.Presence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := domain.Presence{UserID: uid, Status: status, LastSeen: m.now()}
	m.records[uid] = rec
	return rec, nil
}

// GetPresence returns an offline record for users never seen.
func (m *MemoryPresenceStore) GetPresence(_ context.Context, uid domain.UserID) (domain.Presence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.records[uid]; ok {
		return rec, nil
	}
	return domain.Presence{UserID: uid, Status: domain.StatusOffline, LastSeen: m.now()}, nil
}
