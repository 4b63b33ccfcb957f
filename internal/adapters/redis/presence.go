// Package redis stores presence records in Redis hashes.
package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/groupchat/internal/domain"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long an "online" record survives without renewal, so a
	// crashed node does not leave users online forever. Zero disables it.
	TTL time.Duration
}

// PresenceStore implements core.PresenceStore.
// key: groupchat:presence:<user>, fields: status, last_seen (unix ms)
type PresenceStore struct {
	rdb *goredis.Client
	ttl time.Duration
	now func() time.Time
}

func Dial(ctx context.Context, c Config) (*PresenceStore, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	log.Info().Str("module", "redis").Str("addr", c.Addr).Msg("connected")
	return NewPresenceStore(rdb, c.TTL), nil
}

func NewPresenceStore(rdb *goredis.Client, ttl time.Duration) *PresenceStore {
	return &PresenceStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func presenceKey(uid domain.UserID) string { return "groupchat:presence:" + string(uid) }

func (s *PresenceStore) SetPresence(ctx context.Context, uid domain.UserID, status domain.PresenceStatus) (domain.Presence, error) {
	now := s.now()
	key := presenceKey(uid)
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, key, "status", string(status), "last_seen", now.UnixMilli())
		if status == domain.StatusOnline && s.ttl > 0 {
			p.Expire(ctx, key, s.ttl)
		} else {
			p.Persist(ctx, key)
		}
		return nil
	})
	if err != nil {
		return domain.Presence{}, errors.Wrap(err, "set presence")
	}
	return domain.Presence{UserID: uid, Status: status, LastSeen: now}, nil
}

// GetPresence reports offline for users without a record.
func (s *PresenceStore) GetPresence(ctx context.Context, uid domain.UserID) (domain.Presence, error) {
	vals, err := s.rdb.HGetAll(ctx, presenceKey(uid)).Result()
	if err != nil {
		return domain.Presence{}, errors.Wrap(err, "get presence")
	}
	rec := domain.Presence{UserID: uid, Status: domain.StatusOffline, LastSeen: s.now()}
	if len(vals) == 0 {
		return rec, nil
	}
	if st, err := domain.ParsePresenceStatus(vals["status"]); err == nil {
		rec.Status = st
	}
	if ms, err := strconv.ParseInt(vals["last_seen"], 10, 64); err == nil {
		rec.LastSeen = time.UnixMilli(ms)
	}
	return rec, nil
}

func (s *PresenceStore) Close() error { return s.rdb.Close() }
