package inbox

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sanctuaryhq/sanctuary/internal/subscriber"
)

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store projects conversations and unread state out of subscribers plus
// messages. Nothing here is authoritative beyond lastReadAt.
type Store struct {
	db Querier
}

func NewStore(db Querier) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// A subscriber is unread when any inbound message arrived after the last
// read mark. A null mark means nothing was ever read.
const unreadExists = `EXISTS (
		SELECT 1 FROM messages um
		WHERE um.phone_number = s.phone_number
		  AND um.direction = 'INBOUND'
		  AND um.created_at > COALESCE(s.last_read_at, 'epoch'::timestamptz)
	)`

// UnreadCount counts active subscribers with unread inbound messages.
func (s *Store) UnreadCount(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM subscribers s WHERE s.is_active = TRUE AND ` + unreadExists
	var n int
	if err := s.db.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("inbox: unread count: %w", err)
	}
	return n, nil
}

// TotalConversations counts active subscribers with any message history.
func (s *Store) TotalConversations(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*) FROM subscribers s
		WHERE s.is_active = TRUE
		  AND EXISTS (SELECT 1 FROM messages m WHERE m.phone_number = s.phone_number)`
	var n int
	if err := s.db.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("inbox: total conversations: %w", err)
	}
	return n, nil
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	unread, err := s.UnreadCount(ctx)
	if err != nil {
		return nil, err
	}
	total, err := s.TotalConversations(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{UnreadCount: unread, TotalConversations: total}, nil
}

type ListQuery struct {
	Filter string
	Search string
	Limit  int
	Offset int
}

var nonDigits = regexp.MustCompile(`\D`)

// List returns conversations newest activity first.
func (s *Store) List(ctx context.Context, q ListQuery) ([]Conversation, error) {
	if q.Filter == "" {
		q.Filter = FilterAll
	}
	switch q.Filter {
	case FilterAll, FilterUnread, FilterRead:
	default:
		return nil, ErrBadFilter
	}
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	query := `
		SELECT s.id, s.phone_number, s.last_read_at,
		       ` + unreadExists + ` AS has_unread,
		       lm.content, lm.direction, lm.created_at
		FROM subscribers s
		JOIN LATERAL (
			SELECT m.content, m.direction, m.created_at
			FROM messages m
			WHERE m.phone_number = s.phone_number
			ORDER BY m.created_at DESC
			LIMIT 1
		) lm ON TRUE
		WHERE s.is_active = TRUE`

	var args []any
	if digits := nonDigits.ReplaceAllString(q.Search, ""); digits != "" {
		args = append(args, "%"+digits+"%")
		query += fmt.Sprintf(` AND s.phone_number LIKE $%d`, len(args))
	}
	switch q.Filter {
	case FilterUnread:
		query += ` AND ` + unreadExists
	case FilterRead:
		query += ` AND NOT ` + unreadExists
	}
	args = append(args, q.Limit, q.Offset)
	query += fmt.Sprintf(`
		ORDER BY lm.created_at DESC
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inbox: list: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var (
			c        Conversation
			lastRead sql.NullTime
		)
		if err := rows.Scan(&c.SubscriberID, &c.PhoneNumber, &lastRead, &c.HasUnread,
			&c.Preview.Content, &c.Preview.Direction, &c.Preview.CreatedAt); err != nil {
			return nil, fmt.Errorf("inbox: scan conversation: %w", err)
		}
		if lastRead.Valid {
			t := lastRead.Time
			c.LastReadAt = &t
		}
		c.FormattedPhone = subscriber.FormatPhone(c.PhoneNumber)
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkRead stamps the conversation as read up to now.
func (s *Store) MarkRead(ctx context.Context, subscriberID uuid.UUID) error {
	query := `UPDATE subscribers SET last_read_at = NOW(), updated_at = NOW() WHERE id = $1`
	tag, err := s.db.Exec(ctx, query, subscriberID)
	if err != nil {
		return fmt.Errorf("inbox: mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkUnread clears the read mark so every inbound message counts again.
func (s *Store) MarkUnread(ctx context.Context, subscriberID uuid.UUID) error {
	query := `UPDATE subscribers SET last_read_at = NULL, updated_at = NOW() WHERE id = $1`
	tag, err := s.db.Exec(ctx, query, subscriberID)
	if err != nil {
		return fmt.Errorf("inbox: mark unread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead stamps every subscriber, active or not, and reports how many
// rows moved.
func (s *Store) MarkAllRead(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE subscribers SET last_read_at = NOW(), updated_at = NOW()`)
	if err != nil {
		return 0, fmt.Errorf("inbox: mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}
