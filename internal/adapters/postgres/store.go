// Package postgres is the relational system of record: presence, messages,
// reads, reactions and device push tokens.
//
// Expected tables: users(id, username, push_token), groups(id, name),
// group_members(group_id, user_id), messages, message_reads(message_id,
// user_id) unique, message_reactions, user_presence(user_id) unique.
package postgres

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/groupchat/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrInvalidID = errors.New("invalid numeric id")
)

type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool and pings it.
func Connect(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "open pgx pool")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	log.Info().Str("module", "postgres").Msg("connected")
	return &Store{pool: pool}, nil
}

func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func (s *Store) Close() { s.pool.Close() }

func intID(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidID, "%q", s)
	}
	return n, nil
}

func strID(n int64) string { return strconv.FormatInt(n, 10) }

const upsertPresence = `
INSERT INTO user_presence (user_id, status, last_seen, updated_at)
VALUES ($1, $2, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
ON CONFLICT (user_id) DO UPDATE
SET status = EXCLUDED.status, last_seen = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
RETURNING status, last_seen`

func (s *Store) SetPresence(ctx context.Context, uid domain.UserID, status domain.PresenceStatus) (domain.Presence, error) {
	id, err := intID(string(uid))
	if err != nil {
		return domain.Presence{}, err
	}
	rec := domain.Presence{UserID: uid}
	var st string
	if err := s.pool.QueryRow(ctx, upsertPresence, id, string(status)).Scan(&st, &rec.LastSeen); err != nil {
		return domain.Presence{}, errors.Wrap(err, "upsert presence")
	}
	rec.Status = domain.PresenceStatus(st)
	return rec, nil
}

// GetPresence returns offline for users without a presence row.
func (s *Store) GetPresence(ctx context.Context, uid domain.UserID) (domain.Presence, error) {
	id, err := intID(string(uid))
	if err != nil {
		return domain.Presence{}, err
	}
	rec := domain.Presence{UserID: uid}
	var st string
	err = s.pool.QueryRow(ctx,
		`SELECT status, last_seen FROM user_presence WHERE user_id = $1`, id,
	).Scan(&st, &rec.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Presence{UserID: uid, Status: domain.StatusOffline, LastSeen: time.Now()}, nil
	}
	if err != nil {
		return domain.Presence{}, errors.Wrap(err, "select presence")
	}
	rec.Status = domain.PresenceStatus(st)
	return rec, nil
}
