// Package appconfig stores the singleton application settings row: the
// default welcome text, the legacy opt-in keyword honored before
// configurable keywords existed, and the canned responses used when no
// signup keyword matches.
package appconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrInvalid = errors.New("appconfig: messages must not be empty")

type Config struct {
	DefaultWelcomeMessage    string    `json:"defaultWelcomeMessage"`
	LegacyOptInKeyword       string    `json:"legacyOptInKeyword,omitempty"`
	AlreadySubscribedMessage string    `json:"alreadySubscribedMessage"`
	NotSubscribedMessage     string    `json:"notSubscribedMessage"`
	UpdatedAt                time.Time `json:"updatedAt"`
}

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

const configColumns = `default_welcome_message, COALESCE(legacy_opt_in_keyword, ''),
		already_subscribed_message, not_subscribed_message, updated_at`

// Get reads the singleton row seeded by the migrations.
func (s *Store) Get(ctx context.Context) (*Config, error) {
	query := `SELECT ` + configColumns + ` FROM app_config WHERE id = 1`
	var cfg Config
	err := s.db.QueryRow(ctx, query).Scan(&cfg.DefaultWelcomeMessage,
		&cfg.LegacyOptInKeyword, &cfg.AlreadySubscribedMessage,
		&cfg.NotSubscribedMessage, &cfg.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("appconfig: get: %w", err)
	}
	return &cfg, nil
}

// Update replaces the settings. The legacy keyword is normalized the same
// way signup keywords are so matching stays a plain equality.
func (s *Store) Update(ctx context.Context, cfg Config) (*Config, error) {
	if strings.TrimSpace(cfg.DefaultWelcomeMessage) == "" ||
		strings.TrimSpace(cfg.AlreadySubscribedMessage) == "" ||
		strings.TrimSpace(cfg.NotSubscribedMessage) == "" {
		return nil, ErrInvalid
	}
	legacy := strings.ToUpper(strings.TrimSpace(cfg.LegacyOptInKeyword))

	query := `
		UPDATE app_config
		SET default_welcome_message = $1,
			legacy_opt_in_keyword = NULLIF($2, ''),
			already_subscribed_message = $3,
			not_subscribed_message = $4,
			updated_at = now()
		WHERE id = 1
		RETURNING ` + configColumns
	var out Config
	err := s.db.QueryRow(ctx, query, cfg.DefaultWelcomeMessage, legacy,
		cfg.AlreadySubscribedMessage, cfg.NotSubscribedMessage).
		Scan(&out.DefaultWelcomeMessage, &out.LegacyOptInKeyword,
			&out.AlreadySubscribedMessage, &out.NotSubscribedMessage, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("appconfig: update: %w", err)
	}
	return &out, nil
}
