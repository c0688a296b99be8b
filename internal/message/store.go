package message

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db Querier
}

func NewStore(db Querier) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// InsertInbound logs a received message. Webhook retries produce duplicate
// rows on purpose; inbound traffic is not deduplicated by provider id.
func (s *Store) InsertInbound(ctx context.Context, phone, content string) (uuid.UUID, error) {
	query := `
		INSERT INTO messages (phone_number, content, direction)
		VALUES ($1, $2, 'INBOUND')
		RETURNING id`
	var id uuid.UUID
	if err := s.db.QueryRow(ctx, query, phone, content).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("message: insert inbound: %w", err)
	}
	return id, nil
}

// OutboundRecord is one sent (or attempted) message.
type OutboundRecord struct {
	PhoneNumber       string
	Content           string
	Status            Status
	ProviderMessageID string
	BroadcastID       *uuid.UUID
}

func (s *Store) InsertOutbound(ctx context.Context, rec OutboundRecord) (uuid.UUID, error) {
	if rec.Status == "" {
		rec.Status = StatusSent
	}
	query := `
		INSERT INTO messages (phone_number, content, direction, delivery_status, provider_message_id, broadcast_id)
		VALUES ($1, $2, 'OUTBOUND', $3, NULLIF($4, ''), $5)
		RETURNING id`
	var id uuid.UUID
	err := s.db.QueryRow(ctx, query, rec.PhoneNumber, rec.Content,
		string(rec.Status), rec.ProviderMessageID, rec.BroadcastID).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("message: insert outbound: %w", err)
	}
	return id, nil
}

// UpdateStatusByProviderID applies a delivery transition and reports whether
// any row matched. Unmatched callbacks are normal; messages may predate
// tracking.
func (s *Store) UpdateStatusByProviderID(ctx context.Context, providerID string, status Status) (bool, error) {
	query := `UPDATE messages SET delivery_status = $2 WHERE provider_message_id = $1`
	tag, err := s.db.Exec(ctx, query, providerID, string(status))
	if err != nil {
		return false, fmt.Errorf("message: update status by provider id: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

const messageColumns = `id, phone_number, content, direction, delivery_status,
		COALESCE(provider_message_id, ''), broadcast_id, created_at`

func scanMessage(rows pgx.Rows) (*Message, error) {
	var (
		m           Message
		broadcastID uuid.NullUUID
		direction   string
		status      string
	)
	if err := rows.Scan(&m.ID, &m.PhoneNumber, &m.Content, &direction, &status,
		&m.ProviderMessageID, &broadcastID, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Direction = Direction(direction)
	m.DeliveryStatus = Status(status)
	if broadcastID.Valid {
		id := broadcastID.UUID
		m.BroadcastID = &id
	}
	return &m, nil
}

// ListByPhone returns one conversation oldest-first.
func (s *Store) ListByPhone(ctx context.Context, phone string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE phone_number = $1
		ORDER BY created_at
		LIMIT $2`
	rows, err := s.db.Query(ctx, query, phone, limit)
	if err != nil {
		return nil, fmt.Errorf("message: list by phone: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// Recent returns the latest messages across all conversations, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		ORDER BY created_at DESC
		LIMIT $1`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("message: recent: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("message: scan: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// CountSince is used by the dashboard for today's traffic split by
// direction.
func (s *Store) CountSince(ctx context.Context, direction Direction, since sql.NullTime) (int, error) {
	query := `
		SELECT COUNT(*) FROM messages
		WHERE direction = $1 AND ($2::timestamptz IS NULL OR created_at >= $2)`
	var n int
	if err := s.db.QueryRow(ctx, query, string(direction), since).Scan(&n); err != nil {
		return 0, fmt.Errorf("message: count since: %w", err)
	}
	return n, nil
}
