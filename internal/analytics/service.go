package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sanctuaryhq/sanctuary/internal/subscriber"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

// statsCacheKey holds the dashboard snapshot; the TTL keeps it a few
// seconds stale at most.
const statsCacheKey = "sanctuary:stats:dashboard"

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 100
	campaignLimit    = 25
)

// Service answers dashboard and campaign analytics queries.
type Service struct {
	db       *sql.DB
	cache    *Cache
	gatherer prometheus.Gatherer
	logger   *logging.Logger
}

// NewService creates the analytics service. The cache may be nil; every
// query then goes straight to the database.
func NewService(db *sql.DB, cache *Cache, gatherer prometheus.Gatherer, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Service{
		db:       db,
		cache:    cache,
		gatherer: gatherer,
		logger:   logger,
	}
}

// DashboardStats returns the roster summary, served from the Redis cache
// when a fresh snapshot is available.
func (s *Service) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	var cached DashboardStats
	if s.cache.Get(ctx, statsCacheKey, &cached) {
		return &cached, nil
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekAgo := now.AddDate(0, 0, -7)

	stats := &DashboardStats{GeneratedAt: now}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscribers`,
	).Scan(&stats.TotalSubscribers); err != nil {
		return nil, fmt.Errorf("analytics: count subscribers: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscribers WHERE is_active`,
	).Scan(&stats.ActiveSubscribers); err != nil {
		return nil, fmt.Errorf("analytics: count active: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscribers WHERE NOT is_active`,
	).Scan(&stats.OptedOut); err != nil {
		return nil, fmt.Errorf("analytics: count opted out: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscribers WHERE joined_at >= $1`, weekAgo,
	).Scan(&stats.NewThisWeek); err != nil {
		return nil, fmt.Errorf("analytics: count new this week: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FILTER (WHERE direction = 'INBOUND'),
		        COUNT(*) FILTER (WHERE direction = 'OUTBOUND')
		 FROM messages WHERE created_at >= $1`, dayStart,
	).Scan(&stats.MessagesToday.Inbound, &stats.MessagesToday.Outbound); err != nil {
		return nil, fmt.Errorf("analytics: count messages today: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM broadcasts`,
	).Scan(&stats.BroadcastsSent); err != nil {
		return nil, fmt.Errorf("analytics: count broadcasts: %w", err)
	}

	s.cache.Set(ctx, statsCacheKey, stats)
	return stats, nil
}

// RecentMessages returns the newest messages across every conversation
// for the dashboard feed.
func (s *Service) RecentMessages(ctx context.Context, limit int) ([]RecentMessage, error) {
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, phone_number, content, direction, delivery_status, created_at
		FROM messages
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("analytics: query recent messages: %w", err)
	}
	defer rows.Close()

	var out []RecentMessage
	for rows.Next() {
		var m RecentMessage
		if err := rows.Scan(&m.ID, &m.PhoneNumber, &m.Content, &m.Direction, &m.DeliveryStatus, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("analytics: scan recent message: %w", err)
		}
		m.FormattedPhone = subscriber.FormatPhone(m.PhoneNumber)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("analytics: iterate recent messages: %w", err)
	}
	return out, nil
}

// CampaignReport aggregates per-broadcast delivery and click outcomes
// plus the send-latency snapshot.
func (s *Service) CampaignReport(ctx context.Context) (*Report, error) {
	report := &Report{}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM broadcasts`,
	).Scan(&report.TotalBroadcasts); err != nil {
		return nil, fmt.Errorf("analytics: count broadcasts: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE delivery_status = 'DELIVERED'),
		        COUNT(*) FILTER (WHERE delivery_status IN ('FAILED', 'UNDELIVERED'))
		 FROM messages WHERE broadcast_id IS NOT NULL`,
	).Scan(&report.TotalSent, &report.TotalDelivered, &report.TotalFailed); err != nil {
		return nil, fmt.Errorf("analytics: count broadcast messages: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM link_clicks`,
	).Scan(&report.TotalClicks); err != nil {
		return nil, fmt.Errorf("analytics: count clicks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, COALESCE(b.name, ''), b.sent_count, b.total_cost, b.created_at,
		       COUNT(DISTINCT m.id) FILTER (WHERE m.delivery_status = 'DELIVERED'),
		       COUNT(DISTINCT m.id) FILTER (WHERE m.delivery_status IN ('FAILED', 'UNDELIVERED')),
		       COUNT(DISTINCT c.id)
		FROM broadcasts b
		LEFT JOIN messages m ON m.broadcast_id = b.id
		LEFT JOIN links l ON l.broadcast_id = b.id
		LEFT JOIN link_clicks c ON c.link_id = l.id
		GROUP BY b.id, b.name, b.sent_count, b.total_cost, b.created_at
		ORDER BY b.created_at DESC
		LIMIT $1`, campaignLimit)
	if err != nil {
		return nil, fmt.Errorf("analytics: query campaigns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c CampaignStats
		if err := rows.Scan(&c.ID, &c.Name, &c.SentCount, &c.TotalCost, &c.CreatedAt, &c.Delivered, &c.Failed, &c.Clicks); err != nil {
			return nil, fmt.Errorf("analytics: scan campaign: %w", err)
		}
		report.Campaigns = append(report.Campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("analytics: iterate campaigns: %w", err)
	}

	report.SendLatency = SnapshotSendLatency(s.gatherer)
	return report, nil
}
