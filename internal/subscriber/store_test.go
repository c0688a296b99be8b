package subscriber

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func subscriberRows(id uuid.UUID, phone string, active bool) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "phone_number", "is_active", "joined_at", "last_read_at",
		"joined_via_keyword", "notifier_thread_ref",
	}).AddRow(id, phone, active, time.Now(), nil, "TRIBE", "")
}

func TestUpsertOptInReturnsSubscriber(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()
	mock.ExpectQuery("INSERT INTO subscribers").
		WithArgs("+15551234567", "TRIBE").
		WillReturnRows(subscriberRows(id, "+15551234567", true))

	sub, err := store.UpsertOptIn(context.Background(), "+15551234567", "TRIBE")
	if err != nil {
		t.Fatalf("upsert opt-in: %v", err)
	}
	if sub.ID != id || !sub.IsActive || sub.JoinedViaKeyword != "TRIBE" {
		t.Fatalf("unexpected subscriber: %+v", sub)
	}
	if sub.LastReadAt != nil {
		t.Fatalf("expected nil lastReadAt, got %v", sub.LastReadAt)
	}
}

func TestCreateDuplicatePhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	// ON CONFLICT DO NOTHING yields no row for an existing phone.
	mock.ExpectQuery("INSERT INTO subscribers").
		WithArgs("+15551234567").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err = store.Create(context.Background(), "+15551234567")
	if !errors.Is(err, ErrDuplicatePhone) {
		t.Fatalf("expected ErrDuplicatePhone, got %v", err)
	}
}

func TestAddIfAbsentFallsBackToExisting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()
	mock.ExpectQuery("INSERT INTO subscribers").
		WithArgs("+15551234567").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT id, phone_number").
		WithArgs("+15551234567").
		WillReturnRows(subscriberRows(id, "+15551234567", true))

	sub, created, err := store.AddIfAbsent(context.Background(), "+15551234567")
	if err != nil {
		t.Fatalf("add if absent: %v", err)
	}
	if created {
		t.Fatal("expected existing subscriber, got created=true")
	}
	if sub.ID != id {
		t.Fatalf("expected existing id %s, got %s", id, sub.ID)
	}
}

func TestFindByPhoneMissingIsNil(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectQuery("SELECT id, phone_number").
		WithArgs("+15550000000").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	sub, err := store.FindByPhone(context.Background(), "+15550000000")
	if err != nil {
		t.Fatalf("find by phone: %v", err)
	}
	if sub != nil {
		t.Fatalf("expected nil subscriber, got %+v", sub)
	}
}

func TestSetActiveNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()
	mock.ExpectExec("UPDATE subscribers SET is_active").
		WithArgs(id, false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := store.SetActive(context.Background(), id, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRememberThreadRefSkipsEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	// No expectation registered: an empty ref must not touch the database.
	if err := store.RememberThreadRef(context.Background(), uuid.New(), "  "); err != nil {
		t.Fatalf("remember thread ref: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected db traffic: %v", err)
	}
}

func TestListAppliesSearchAndPaging(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("555", "active").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id, phone_number").
		WithArgs("555", "active", 25, 0).
		WillReturnRows(subscriberRows(uuid.New(), "+15551234567", true))

	subs, total, err := store.List(context.Background(), ListQuery{
		Search: "(555)", // punctuation is stripped before matching
		Status: "active",
		Limit:  25,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(subs) != 1 {
		t.Fatalf("expected one row, got total=%d len=%d", total, len(subs))
	}
}

func TestCreateListDuplicateName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectQuery("INSERT INTO subscriber_lists").
		WithArgs("Volunteers", "").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err = store.CreateList(context.Background(), "Volunteers", "")
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestUpdateListMapsUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()
	mock.ExpectQuery("UPDATE subscriber_lists").
		WithArgs(id, "Volunteers", "desc").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err = store.UpdateList(context.Background(), id, "Volunteers", "desc")
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestDeleteListOutcomes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()

	// Deleted cleanly.
	mock.ExpectExec("DELETE FROM subscriber_lists").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := store.DeleteList(context.Background(), id); err != nil {
		t.Fatalf("delete list: %v", err)
	}

	// Guard blocked the delete because a keyword references the list.
	mock.ExpectExec("DELETE FROM subscriber_lists").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	if err := store.DeleteList(context.Background(), id); !errors.Is(err, ErrListInUse) {
		t.Fatalf("expected ErrListInUse, got %v", err)
	}

	// List never existed.
	mock.ExpectExec("DELETE FROM subscriber_lists").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	if err := store.DeleteList(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEnrollIsIdempotentInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	subID, listID := uuid.New(), uuid.New()
	// Second enrollment hits ON CONFLICT DO NOTHING and affects zero rows;
	// both calls succeed.
	mock.ExpectExec("INSERT INTO list_memberships").
		WithArgs(subID, listID, "keyword:TRIBE").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO list_memberships").
		WithArgs(subID, listID, "keyword:TRIBE").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	for i := 0; i < 2; i++ {
		if err := store.Enroll(context.Background(), subID, listID, KeywordVia("TRIBE")); err != nil {
			t.Fatalf("enroll #%d: %v", i+1, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
