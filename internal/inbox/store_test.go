package inbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestUnreadCount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	n, err := store.UnreadCount(context.Background())
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
}

func TestStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(9))

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.UnreadCount != 2 || stats.TotalConversations != 9 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func conversationRows(id uuid.UUID, phone string, unread bool) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "phone_number", "last_read_at", "has_unread",
		"content", "direction", "created_at",
	}).AddRow(id, phone, nil, unread, "See you there!", "INBOUND", time.Now())
}

func TestListMapsConversation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()
	mock.ExpectQuery("SELECT s.id, s.phone_number, s.last_read_at").
		WithArgs(50, 0).
		WillReturnRows(conversationRows(id, "+15551234567", true))

	convos, err := store.List(context.Background(), ListQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convos) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convos))
	}
	c := convos[0]
	if c.SubscriberID != id || !c.HasUnread {
		t.Fatalf("unexpected conversation: %+v", c)
	}
	if c.FormattedPhone != "(555) 123-4567" {
		t.Fatalf("unexpected formatted phone %q", c.FormattedPhone)
	}
	if c.LastReadAt != nil {
		t.Fatalf("expected nil lastReadAt")
	}
	if c.Preview.Content != "See you there!" || c.Preview.Direction != "INBOUND" {
		t.Fatalf("unexpected preview: %+v", c.Preview)
	}
}

func TestListSearchStripsFormatting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectQuery("SELECT s.id, s.phone_number, s.last_read_at").
		WithArgs("%5551234%", 25, 50).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "phone_number", "last_read_at", "has_unread",
			"content", "direction", "created_at",
		}))

	_, err = store.List(context.Background(), ListQuery{
		Search: "(555) 123-4",
		Limit:  25,
		Offset: 50,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRejectsBadFilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	if _, err := store.List(context.Background(), ListQuery{Filter: "starred"}); !errors.Is(err, ErrBadFilter) {
		t.Fatalf("expected ErrBadFilter, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("bad filter must not hit the database: %v", err)
	}
}

func TestMarkReadNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()
	mock.ExpectExec("UPDATE subscribers SET last_read_at = NOW()").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := store.MarkRead(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkUnread(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()
	mock.ExpectExec("UPDATE subscribers SET last_read_at = NULL").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := store.MarkUnread(context.Background(), id); err != nil {
		t.Fatalf("mark unread: %v", err)
	}
}

func TestMarkAllRead(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectExec("UPDATE subscribers SET last_read_at = NOW()").
		WillReturnResult(pgxmock.NewResult("UPDATE", 12))

	n, err := store.MarkAllRead(context.Background())
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if n != 12 {
		t.Fatalf("expected 12 rows, got %d", n)
	}
}
