package keyword

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists signup keywords in Postgres.
type Store struct {
	db Querier
}

func NewStore(db Querier) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

const keywordColumns = `id, keyword, auto_response, is_active, list_id, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKeyword(row rowScanner) (*SignupKeyword, error) {
	var (
		k      SignupKeyword
		listID uuid.NullUUID
	)
	if err := row.Scan(&k.ID, &k.Keyword, &k.AutoResponse, &k.IsActive, &listID, &k.CreatedAt); err != nil {
		return nil, err
	}
	if listID.Valid {
		id := listID.UUID
		k.ListID = &id
	}
	return &k, nil
}

// Normalize trims and uppercases a keyword; stored keywords are always in
// this form so matching is a plain equality check.
func Normalize(word string) string {
	return strings.ToUpper(strings.TrimSpace(word))
}

// Create stores a new keyword. The keyword text is normalized; duplicates
// and dangling list references are rejected.
func (s *Store) Create(ctx context.Context, word, autoResponse string, listID *uuid.UUID) (*SignupKeyword, error) {
	word = Normalize(word)
	if word == "" {
		return nil, ErrEmptyKeyword
	}
	if strings.TrimSpace(autoResponse) == "" {
		return nil, ErrEmptyResponse
	}

	query := `
		INSERT INTO signup_keywords (keyword, auto_response, list_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (keyword) DO NOTHING
		RETURNING ` + keywordColumns
	k, err := scanKeyword(s.db.QueryRow(ctx, query, word, autoResponse, listID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDuplicate
	}
	if isForeignKeyViolation(err) {
		return nil, ErrUnknownList
	}
	if err != nil {
		return nil, fmt.Errorf("keyword: create: %w", err)
	}
	return k, nil
}

// Update rewrites a keyword row. Renaming collides only against other rows;
// the unique index does not fire when the text is unchanged.
func (s *Store) Update(ctx context.Context, id uuid.UUID, word, autoResponse string, isActive bool, listID *uuid.UUID) (*SignupKeyword, error) {
	word = Normalize(word)
	if word == "" {
		return nil, ErrEmptyKeyword
	}
	if strings.TrimSpace(autoResponse) == "" {
		return nil, ErrEmptyResponse
	}

	query := `
		UPDATE signup_keywords
		SET keyword = $2, auto_response = $3, is_active = $4, list_id = $5,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + keywordColumns
	k, err := scanKeyword(s.db.QueryRow(ctx, query, id, word, autoResponse, isActive, listID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if isForeignKeyViolation(err) {
		return nil, ErrUnknownList
	}
	if err != nil {
		return nil, fmt.Errorf("keyword: update: %w", err)
	}
	return k, nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM signup_keywords WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("keyword: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]SignupKeyword, error) {
	query := `SELECT ` + keywordColumns + ` FROM signup_keywords ORDER BY created_at`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("keyword: list: %w", err)
	}
	defer rows.Close()

	var out []SignupKeyword
	for rows.Next() {
		k, err := scanKeyword(rows)
		if err != nil {
			return nil, fmt.Errorf("keyword: scan: %w", err)
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

// Lookup resolves an active keyword by its normalized text, (nil, nil) when
// absent. This is the LookupFunc the classifier consumes.
func (s *Store) Lookup(ctx context.Context, normalized string) (*SignupKeyword, error) {
	query := `SELECT ` + keywordColumns + ` FROM signup_keywords WHERE keyword = $1 AND is_active`
	k, err := scanKeyword(s.db.QueryRow(ctx, query, normalized))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyword: lookup: %w", err)
	}
	return k, nil
}

// ActiveKeywords returns the active keyword texts for rejoin and subscribe
// hints, alphabetically for stable wording.
func (s *Store) ActiveKeywords(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT keyword FROM signup_keywords WHERE is_active ORDER BY keyword`)
	if err != nil {
		return nil, fmt.Errorf("keyword: active keywords: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var word string
		if err := rows.Scan(&word); err != nil {
			return nil, fmt.Errorf("keyword: scan active keyword: %w", err)
		}
		out = append(out, word)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
