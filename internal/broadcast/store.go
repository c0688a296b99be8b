package broadcast

import (
	"context"
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

// InsertHeader records the campaign row and fills in ID and CreatedAt.
func (s *Store) InsertHeader(ctx context.Context, b *Broadcast) error {
	query := `
		INSERT INTO broadcasts (name, message, sent_count, total_cost, target_all)
		VALUES (NULLIF($1, ''), $2, $3, $4, $5)
		RETURNING id, created_at`
	err := s.db.QueryRow(ctx, query, b.Name, b.Message, b.SentCount, b.TotalCost, b.TargetAll).
		Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("broadcast: insert header: %w", err)
	}
	return nil
}

// InsertTargets records which lists shaped the audience.
func (s *Store) InsertTargets(ctx context.Context, broadcastID uuid.UUID, include, exclude []uuid.UUID) error {
	query := `
		INSERT INTO broadcast_targets (broadcast_id, list_id, target_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (broadcast_id, list_id, target_type) DO NOTHING`
	for _, listID := range include {
		if _, err := s.db.Exec(ctx, query, broadcastID, listID, TargetInclude); err != nil {
			return fmt.Errorf("broadcast: insert include target: %w", err)
		}
	}
	for _, listID := range exclude {
		if _, err := s.db.Exec(ctx, query, broadcastID, listID, TargetExclude); err != nil {
			return fmt.Errorf("broadcast: insert exclude target: %w", err)
		}
	}
	return nil
}

// CountLists reports how many of the given ids exist. Callers compare the
// count against their deduplicated input to detect unknown lists.
func (s *Store) CountLists(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM subscriber_lists WHERE id = ANY($1)`, ids).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("broadcast: count lists: %w", err)
	}
	return n, nil
}

// ResolveAudience returns the active subscribers a send will reach, oldest
// joiner first. No include lists means every active subscriber; exclusions
// are applied afterwards either way.
func (s *Store) ResolveAudience(ctx context.Context, targetAll bool, include, exclude []uuid.UUID) ([]Recipient, error) {
	var (
		query string
		args  []any
	)
	if targetAll || len(include) == 0 {
		query = `
			SELECT s.id, s.phone_number, s.joined_at
			FROM subscribers s
			WHERE s.is_active = TRUE`
		if len(exclude) > 0 {
			query += `
			AND NOT EXISTS (
				SELECT 1 FROM list_memberships x
				WHERE x.subscriber_id = s.id AND x.list_id = ANY($1)
			)`
			args = append(args, exclude)
		}
	} else {
		query = `
			SELECT DISTINCT s.id, s.phone_number, s.joined_at
			FROM subscribers s
			JOIN list_memberships m ON m.subscriber_id = s.id
			WHERE s.is_active = TRUE AND m.list_id = ANY($1)`
		args = append(args, include)
		if len(exclude) > 0 {
			query += `
			AND NOT EXISTS (
				SELECT 1 FROM list_memberships x
				WHERE x.subscriber_id = s.id AND x.list_id = ANY($2)
			)`
			args = append(args, exclude)
		}
	}
	query += `
			ORDER BY s.joined_at ASC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("broadcast: resolve audience: %w", err)
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var r Recipient
		if err := rows.Scan(&r.ID, &r.PhoneNumber, &r.JoinedAt); err != nil {
			return nil, fmt.Errorf("broadcast: scan recipient: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
