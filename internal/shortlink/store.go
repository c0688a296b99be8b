package shortlink

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrCodeSpaceBusy is returned when every allocation attempt collided with
// an existing code.
var ErrCodeSpaceBusy = errors.New("shortlink: could not allocate a unique code")

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

// Allocate mints a unique short code for the URL and persists the link row.
// Collisions retry with a fresh code up to maxAllocateAttempts times; the
// unique index arbitrates races so two concurrent broadcasts can never share
// a code.
func (s *Store) Allocate(ctx context.Context, broadcastID *uuid.UUID, originalURL string) (*Link, error) {
	query := `
		INSERT INTO links (broadcast_id, original_url, short_code)
		VALUES ($1, $2, $3)
		ON CONFLICT (short_code) DO NOTHING
		RETURNING id, created_at`
	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return nil, err
		}
		link := Link{BroadcastID: broadcastID, OriginalURL: originalURL, ShortCode: code}
		err = s.db.QueryRow(ctx, query, broadcastID, originalURL, code).
			Scan(&link.ID, &link.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("shortlink: insert link: %w", err)
		}
		return &link, nil
	}
	return nil, ErrCodeSpaceBusy
}

// FindByCode returns (nil, nil) for unknown codes.
func (s *Store) FindByCode(ctx context.Context, code string) (*Link, error) {
	query := `
		SELECT id, broadcast_id, original_url, short_code, created_at
		FROM links
		WHERE short_code = $1`
	var (
		link        Link
		broadcastID uuid.NullUUID
	)
	err := s.db.QueryRow(ctx, query, code).
		Scan(&link.ID, &broadcastID, &link.OriginalURL, &link.ShortCode, &link.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("shortlink: find by code: %w", err)
	}
	if broadcastID.Valid {
		id := broadcastID.UUID
		link.BroadcastID = &id
	}
	return &link, nil
}

// InsertClick records one redirect hit. The subscriber id is an opaque
// attribution tag from the query string and is stored verbatim.
func (s *Store) InsertClick(ctx context.Context, linkID uuid.UUID, subscriberID string) error {
	query := `
		INSERT INTO link_clicks (link_id, subscriber_id)
		VALUES ($1, NULLIF($2, ''))`
	if _, err := s.db.Exec(ctx, query, linkID, subscriberID); err != nil {
		return fmt.Errorf("shortlink: insert click: %w", err)
	}
	return nil
}
