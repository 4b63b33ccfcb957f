package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/dkeye/groupchat/internal/domain"
)

const insertMessage = `
WITH m AS (
	INSERT INTO messages (group_id, user_id, content, file_url, file_name, file_size)
	VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, 0))
	RETURNING id, group_id, user_id, content, file_url, file_name, file_size, created_at
)
SELECT m.id, m.group_id, m.user_id, m.content,
       COALESCE(m.file_url, ''), COALESCE(m.file_name, ''), COALESCE(m.file_size, 0),
       m.created_at, COALESCE(u.username, ''), COALESCE(g.name, '')
FROM m
LEFT JOIN users u ON u.id = m.user_id
LEFT JOIN groups g ON g.id = m.group_id`

// SaveMessage persists the message and returns it with sender and group
// names resolved for notifications.
func (s *Store) SaveMessage(ctx context.Context, in domain.NewMessage) (domain.Message, error) {
	if err := in.Validate(); err != nil {
		return domain.Message{}, err
	}
	gid, err := intID(string(in.GroupID))
	if err != nil {
		return domain.Message{}, err
	}
	uid, err := intID(string(in.UserID))
	if err != nil {
		return domain.Message{}, err
	}
	var (
		m               domain.Message
		id, group, user int64
	)
	err = s.pool.QueryRow(ctx, insertMessage, gid, uid, in.Content, in.FileURL, in.FileName, in.FileSize).Scan(
		&id, &group, &user, &m.Content, &m.FileURL, &m.FileName, &m.FileSize, &m.CreatedAt, &m.SenderName, &m.GroupName,
	)
	if err != nil {
		return domain.Message{}, errors.Wrap(err, "insert message")
	}
	m.ID = domain.MessageID(strID(id))
	m.GroupID = domain.RoomID(strID(group))
	m.UserID = domain.UserID(strID(user))
	return m, nil
}

// MarkRead is idempotent and returns the message's read count.
func (s *Store) MarkRead(ctx context.Context, mid domain.MessageID, uid domain.UserID) (int, error) {
	m, err := intID(string(mid))
	if err != nil {
		return 0, err
	}
	u, err := intID(string(uid))
	if err != nil {
		return 0, err
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id) VALUES ($1, $2)
		 ON CONFLICT (message_id, user_id) DO NOTHING`, m, u); err != nil {
		return 0, errors.Wrap(err, "insert read")
	}
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM message_reads WHERE message_id = $1`, m).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count reads")
	}
	return n, nil
}

// AddReaction replaces any earlier reaction of the user on the message.
func (s *Store) AddReaction(ctx context.Context, mid domain.MessageID, uid domain.UserID, kind string) (domain.Reaction, error) {
	if kind == "" {
		return domain.Reaction{}, domain.ErrEmptyReactionType
	}
	m, err := intID(string(mid))
	if err != nil {
		return domain.Reaction{}, err
	}
	u, err := intID(string(uid))
	if err != nil {
		return domain.Reaction{}, err
	}
	r := domain.Reaction{MessageID: mid, UserID: uid, ReactionType: kind}
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2`, m, u); err != nil {
			return err
		}
		return tx.QueryRow(ctx,
			`INSERT INTO message_reactions (message_id, user_id, reaction_type)
			 VALUES ($1, $2, $3) RETURNING id, created_at`, m, u, kind).Scan(&r.ID, &r.CreatedAt)
	})
	if err != nil {
		return domain.Reaction{}, errors.Wrap(err, "add reaction")
	}
	return r, nil
}

func (s *Store) RemoveReaction(ctx context.Context, mid domain.MessageID, uid domain.UserID, kind string) (domain.Reaction, error) {
	if kind == "" {
		return domain.Reaction{}, domain.ErrEmptyReactionType
	}
	m, err := intID(string(mid))
	if err != nil {
		return domain.Reaction{}, err
	}
	u, err := intID(string(uid))
	if err != nil {
		return domain.Reaction{}, err
	}
	r := domain.Reaction{MessageID: mid, UserID: uid, ReactionType: kind}
	err = s.pool.QueryRow(ctx,
		`DELETE FROM message_reactions
		 WHERE message_id = $1 AND user_id = $2 AND reaction_type = $3
		 RETURNING id, created_at`, m, u, kind).Scan(&r.ID, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reaction{}, ErrNotFound
	}
	if err != nil {
		return domain.Reaction{}, errors.Wrap(err, "remove reaction")
	}
	return r, nil
}

func (s *Store) SavePushToken(ctx context.Context, uid domain.UserID, token string) error {
	if token == "" {
		return domain.ErrPushTokenEmpty
	}
	u, err := intID(string(uid))
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE users SET push_token = $2 WHERE id = $1`, u, token)
	if err != nil {
		return errors.Wrap(err, "save push token")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GroupPushTokens(ctx context.Context, room domain.RoomID, except domain.UserID) ([]string, error) {
	g, err := intID(string(room))
	if err != nil {
		return nil, err
	}
	u, err := intID(string(except))
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT u.push_token FROM users u
		 JOIN group_members gm ON gm.user_id = u.id
		 WHERE gm.group_id = $1 AND u.id <> $2 AND u.push_token IS NOT NULL AND u.push_token <> ''`, g, u)
	if err != nil {
		return nil, errors.Wrap(err, "select push tokens")
	}
	tokens, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "scan push tokens")
	}
	return tokens, nil
}

const selectGroupMessages = `
SELECT m.id, m.user_id, m.content,
       COALESCE(m.file_url, ''), COALESCE(m.file_name, ''), COALESCE(m.file_size, 0),
       m.created_at, u.username
FROM messages m
JOIN users u ON u.id = m.user_id
WHERE m.group_id = $1
ORDER BY m.created_at DESC, m.id DESC
LIMIT $2 OFFSET $3`

// GroupMessages pages backwards from the newest message; each page is
// returned oldest first.
func (s *Store) GroupMessages(ctx context.Context, room domain.RoomID, limit, offset int) ([]domain.Message, error) {
	if limit <= 0 || offset < 0 {
		return nil, errors.Errorf("bad page limit=%d offset=%d", limit, offset)
	}
	g, err := intID(string(room))
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, selectGroupMessages, g, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select messages")
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Message, error) {
		var (
			m        domain.Message
			id, user int64
		)
		err := row.Scan(&id, &user, &m.Content, &m.FileURL, &m.FileName, &m.FileSize, &m.CreatedAt, &m.SenderName)
		m.ID = domain.MessageID(strID(id))
		m.GroupID = domain.RoomID(strID(g))
		m.UserID = domain.UserID(strID(user))
		return m, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan messages")
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GroupPresence lists the group's members by username. Members without a
// presence row are offline with no last_seen.
func (s *Store) GroupPresence(ctx context.Context, room domain.RoomID) ([]domain.MemberPresence, error) {
	g, err := intID(string(room))
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT u.id, u.username, COALESCE(up.status, 'offline'), up.last_seen
		 FROM users u
		 JOIN group_members gm ON gm.user_id = u.id
		 LEFT JOIN user_presence up ON up.user_id = u.id
		 WHERE gm.group_id = $1
		 ORDER BY u.username`, g)
	if err != nil {
		return nil, errors.Wrap(err, "select group presence")
	}
	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.MemberPresence, error) {
		var (
			mp     domain.MemberPresence
			id     int64
			status string
		)
		err := row.Scan(&id, &mp.Username, &status, &mp.LastSeen)
		mp.UserID = domain.UserID(strID(id))
		mp.Status = domain.PresenceStatus(status)
		return mp, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan group presence")
	}
	return members, nil
}
