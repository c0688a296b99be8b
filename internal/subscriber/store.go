package subscriber

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists the roster in Postgres.
type Store struct {
	db Querier
}

func NewStore(db Querier) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

const subscriberColumns = `id, phone_number, is_active, joined_at, last_read_at,
		COALESCE(joined_via_keyword, ''), COALESCE(notifier_thread_ref, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner) (*Subscriber, error) {
	var (
		sub      Subscriber
		lastRead sql.NullTime
	)
	if err := row.Scan(&sub.ID, &sub.PhoneNumber, &sub.IsActive, &sub.JoinedAt,
		&lastRead, &sub.JoinedViaKeyword, &sub.NotifierThreadRef); err != nil {
		return nil, err
	}
	if lastRead.Valid {
		t := lastRead.Time
		sub.LastReadAt = &t
	}
	return &sub, nil
}

// UpsertOptIn creates an active subscriber for the phone, or reactivates an
// existing one. The keyword becomes joined_via_keyword; a reactivation keeps
// the original joined_at so audience ordering is stable across rejoins.
func (s *Store) UpsertOptIn(ctx context.Context, phone, keyword string) (*Subscriber, error) {
	query := `
		INSERT INTO subscribers (phone_number, is_active, joined_via_keyword)
		VALUES ($1, TRUE, NULLIF($2, ''))
		ON CONFLICT (phone_number) DO UPDATE
		SET is_active = TRUE,
			joined_via_keyword = COALESCE(NULLIF($2, ''), subscribers.joined_via_keyword),
			updated_at = now()
		RETURNING ` + subscriberColumns
	sub, err := scanSubscriber(s.db.QueryRow(ctx, query, phone, keyword))
	if err != nil {
		return nil, fmt.Errorf("subscriber: upsert opt-in: %w", err)
	}
	return sub, nil
}

// Create adds a subscriber by explicit admin action. Returns
// ErrDuplicatePhone when the number is already on the roster.
func (s *Store) Create(ctx context.Context, phone string) (*Subscriber, error) {
	query := `
		INSERT INTO subscribers (phone_number)
		VALUES ($1)
		ON CONFLICT (phone_number) DO NOTHING
		RETURNING ` + subscriberColumns
	sub, err := scanSubscriber(s.db.QueryRow(ctx, query, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDuplicatePhone
	}
	if err != nil {
		return nil, fmt.Errorf("subscriber: create: %w", err)
	}
	return sub, nil
}

// AddIfAbsent inserts the phone if new and reports whether a row was
// created. Existing rows are returned untouched; bulk import uses this to
// classify entries.
func (s *Store) AddIfAbsent(ctx context.Context, phone string) (*Subscriber, bool, error) {
	sub, err := s.Create(ctx, phone)
	if err == nil {
		return sub, true, nil
	}
	if !errors.Is(err, ErrDuplicatePhone) {
		return nil, false, err
	}
	existing, err := s.FindByPhone(ctx, phone)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("subscriber: add if absent: row vanished for %s", phone)
	}
	return existing, false, nil
}

// FindByPhone returns (nil, nil) when the phone is not on the roster.
func (s *Store) FindByPhone(ctx context.Context, phone string) (*Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE phone_number = $1`
	sub, err := scanSubscriber(s.db.QueryRow(ctx, query, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("subscriber: find by phone: %w", err)
	}
	return sub, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE id = $1`
	sub, err := scanSubscriber(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("subscriber: get: %w", err)
	}
	return sub, nil
}

// SetActive toggles the opt-in state. Opt-out is a deactivation, never a
// delete.
func (s *Store) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `UPDATE subscribers SET is_active = $2, updated_at = now() WHERE id = $1`
	tag, err := s.db.Exec(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("subscriber: set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RememberThreadRef stores the notifier thread reference, first write wins.
// Concurrent webhooks may race to set it; the WHERE clause keeps the
// earliest value.
func (s *Store) RememberThreadRef(ctx context.Context, id uuid.UUID, ref string) error {
	if strings.TrimSpace(ref) == "" {
		return nil
	}
	query := `
		UPDATE subscribers
		SET notifier_thread_ref = $2, updated_at = now()
		WHERE id = $1 AND notifier_thread_ref IS NULL`
	if _, err := s.db.Exec(ctx, query, id, ref); err != nil {
		return fmt.Errorf("subscriber: remember thread ref: %w", err)
	}
	return nil
}

// ListQuery narrows and pages the roster listing.
type ListQuery struct {
	Search string // digits matched anywhere in the phone number
	Status string // "", "active", or "inactive"
	Limit  int
	Offset int
}

// List returns a page of subscribers plus the total row count for the same
// filter.
func (s *Store) List(ctx context.Context, q ListQuery) ([]Subscriber, int, error) {
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	search := strings.Join(phoneDigitsRe.FindAllString(q.Search, -1), "")

	var total int
	countQuery := `
		SELECT COUNT(*) FROM subscribers
		WHERE ($1 = '' OR phone_number LIKE '%' || $1 || '%')
			AND ($2 = '' OR is_active = ($2 = 'active'))`
	if err := s.db.QueryRow(ctx, countQuery, search, q.Status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("subscriber: count: %w", err)
	}

	query := `
		SELECT ` + subscriberColumns + `
		FROM subscribers
		WHERE ($1 = '' OR phone_number LIKE '%' || $1 || '%')
			AND ($2 = '' OR is_active = ($2 = 'active'))
		ORDER BY joined_at DESC
		LIMIT $3 OFFSET $4`
	rows, err := s.db.Query(ctx, query, search, q.Status, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("subscriber: list: %w", err)
	}
	defer rows.Close()

	var out []Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("subscriber: scan list row: %w", err)
		}
		out = append(out, *sub)
	}
	return out, total, rows.Err()
}

// CreateList adds a named list. Names are unique; duplicates return
// ErrDuplicateName.
func (s *Store) CreateList(ctx context.Context, name, description string) (*List, error) {
	query := `
		INSERT INTO subscriber_lists (name, description)
		VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (name) DO NOTHING
		RETURNING id, name, COALESCE(description, ''), created_at`
	var list List
	err := s.db.QueryRow(ctx, query, name, description).
		Scan(&list.ID, &list.Name, &list.Description, &list.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDuplicateName
	}
	if err != nil {
		return nil, fmt.Errorf("subscriber: create list: %w", err)
	}
	return &list, nil
}

func (s *Store) GetList(ctx context.Context, id uuid.UUID) (*List, error) {
	query := `
		SELECT l.id, l.name, COALESCE(l.description, ''), l.created_at,
			(SELECT COUNT(*) FROM list_memberships m WHERE m.list_id = l.id)
		FROM subscriber_lists l
		WHERE l.id = $1`
	var list List
	err := s.db.QueryRow(ctx, query, id).
		Scan(&list.ID, &list.Name, &list.Description, &list.CreatedAt, &list.MemberCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("subscriber: get list: %w", err)
	}
	return &list, nil
}

func (s *Store) ListLists(ctx context.Context) ([]List, error) {
	query := `
		SELECT l.id, l.name, COALESCE(l.description, ''), l.created_at,
			COUNT(m.id)
		FROM subscriber_lists l
		LEFT JOIN list_memberships m ON m.list_id = l.id
		GROUP BY l.id, l.name, l.description, l.created_at
		ORDER BY l.created_at`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("subscriber: list lists: %w", err)
	}
	defer rows.Close()

	var out []List
	for rows.Next() {
		var list List
		if err := rows.Scan(&list.ID, &list.Name, &list.Description,
			&list.CreatedAt, &list.MemberCount); err != nil {
			return nil, fmt.Errorf("subscriber: scan list: %w", err)
		}
		out = append(out, list)
	}
	return out, rows.Err()
}

func (s *Store) UpdateList(ctx context.Context, id uuid.UUID, name, description string) (*List, error) {
	query := `
		UPDATE subscriber_lists
		SET name = $2, description = NULLIF($3, '')
		WHERE id = $1
		RETURNING id, name, COALESCE(description, ''), created_at`
	var list List
	err := s.db.QueryRow(ctx, query, id, name, description).
		Scan(&list.ID, &list.Name, &list.Description, &list.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if isUniqueViolation(err) {
		return nil, ErrDuplicateName
	}
	if err != nil {
		return nil, fmt.Errorf("subscriber: update list: %w", err)
	}
	return &list, nil
}

// DeleteList removes a list unless a signup keyword still references it.
// The guard runs inside the DELETE so a keyword added mid-flight cannot be
// orphaned.
func (s *Store) DeleteList(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM subscriber_lists l
		WHERE l.id = $1
			AND NOT EXISTS (SELECT 1 FROM signup_keywords k WHERE k.list_id = l.id)`
	tag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("subscriber: delete list: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	exists, err := s.ListExists(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		return ErrListInUse
	}
	return ErrNotFound
}

func (s *Store) ListExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM subscriber_lists WHERE id = $1)`
	if err := s.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("subscriber: list exists: %w", err)
	}
	return exists, nil
}

// Enroll adds the subscriber to the list, tagged with its origin.
// Re-enrollment is a no-op. A dangling subscriber or list id returns
// ErrNotFound.
func (s *Store) Enroll(ctx context.Context, subscriberID, listID uuid.UUID, via string) error {
	query := `
		INSERT INTO list_memberships (subscriber_id, list_id, joined_via)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (subscriber_id, list_id) DO NOTHING`
	if _, err := s.db.Exec(ctx, query, subscriberID, listID, via); err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("subscriber: enroll: %w", err)
	}
	return nil
}

func (s *Store) Unenroll(ctx context.Context, listID, subscriberID uuid.UUID) error {
	query := `DELETE FROM list_memberships WHERE list_id = $1 AND subscriber_id = $2`
	tag, err := s.db.Exec(ctx, query, listID, subscriberID)
	if err != nil {
		return fmt.Errorf("subscriber: unenroll: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context, listID uuid.UUID) ([]Subscriber, error) {
	query := `
		SELECT s.id, s.phone_number, s.is_active, s.joined_at, s.last_read_at,
			COALESCE(s.joined_via_keyword, ''), COALESCE(s.notifier_thread_ref, '')
		FROM subscribers s
		JOIN list_memberships m ON m.subscriber_id = s.id
		WHERE m.list_id = $1
		ORDER BY m.joined_at`
	rows, err := s.db.Query(ctx, query, listID)
	if err != nil {
		return nil, fmt.Errorf("subscriber: list members: %w", err)
	}
	defer rows.Close()

	var out []Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("subscriber: scan member: %w", err)
		}
		out = append(out, *sub)
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
