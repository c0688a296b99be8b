package shortlink

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestAllocateMintsEightCharCode(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	broadcastID := uuid.New()
	mock.ExpectQuery("INSERT INTO links").
		WithArgs(&broadcastID, "https://example.com/x", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).
			AddRow(uuid.New(), time.Now()))

	link, err := store.Allocate(context.Background(), &broadcastID, "https://example.com/x")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9]{8}$`).MatchString(link.ShortCode) {
		t.Fatalf("short code %q is not 8 alphanumerics", link.ShortCode)
	}
	if link.OriginalURL != "https://example.com/x" {
		t.Fatalf("unexpected link: %+v", link)
	}
}

func TestAllocateRetriesOnCollision(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	// First attempt collides (ON CONFLICT DO NOTHING returns no row), the
	// retry with a fresh code lands.
	mock.ExpectQuery("INSERT INTO links").
		WithArgs(nil, "https://example.com/x", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}))
	mock.ExpectQuery("INSERT INTO links").
		WithArgs(nil, "https://example.com/x", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).
			AddRow(uuid.New(), time.Now()))

	link, err := store.Allocate(context.Background(), nil, "https://example.com/x")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if link.ShortCode == "" {
		t.Fatal("expected a minted code after retry")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAllocateGivesUpAfterBoundedAttempts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	for i := 0; i < maxAllocateAttempts; i++ {
		mock.ExpectQuery("INSERT INTO links").
			WithArgs(nil, "https://example.com/x", pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}))
	}

	_, err = store.Allocate(context.Background(), nil, "https://example.com/x")
	if !errors.Is(err, ErrCodeSpaceBusy) {
		t.Fatalf("expected ErrCodeSpaceBusy, got %v", err)
	}
}

func TestFindByCodeMissingIsNil(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectQuery("SELECT id, broadcast_id").
		WithArgs("nope1234").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	link, err := store.FindByCode(context.Background(), "nope1234")
	if err != nil {
		t.Fatalf("find by code: %v", err)
	}
	if link != nil {
		t.Fatalf("expected nil link, got %+v", link)
	}
}

func TestInsertClickStoresOpaqueSubscriber(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	linkID := uuid.New()
	mock.ExpectExec("INSERT INTO link_clicks").
		WithArgs(linkID, "SUB123").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := store.InsertClick(context.Background(), linkID, "SUB123"); err != nil {
		t.Fatalf("insert click: %v", err)
	}
}
