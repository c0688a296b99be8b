// Package analytics serves the dashboard and campaign reporting queries.
// Everything here is read-only aggregation; the write paths live with the
// messaging core.
package analytics

import (
	"time"

	"github.com/google/uuid"
)

// MessageCounts splits a message tally by direction.
type MessageCounts struct {
	Inbound  int64 `json:"inbound"`
	Outbound int64 `json:"outbound"`
}

// DashboardStats is the at-a-glance roster summary.
type DashboardStats struct {
	TotalSubscribers  int64         `json:"totalSubscribers"`
	ActiveSubscribers int64         `json:"activeSubscribers"`
	OptedOut          int64         `json:"optedOut"`
	NewThisWeek       int64         `json:"newThisWeek"`
	MessagesToday     MessageCounts `json:"messagesToday"`
	BroadcastsSent    int64         `json:"broadcastsSent"`
	GeneratedAt       time.Time     `json:"generatedAt"`
}

// RecentMessage is one row of the dashboard message feed.
type RecentMessage struct {
	ID             uuid.UUID `json:"id"`
	PhoneNumber    string    `json:"phoneNumber"`
	FormattedPhone string    `json:"formattedPhone"`
	Content        string    `json:"content"`
	Direction      string    `json:"direction"`
	DeliveryStatus string    `json:"deliveryStatus"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CampaignStats aggregates delivery and click outcomes for one broadcast.
type CampaignStats struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	SentCount int64     `json:"sentCount"`
	Delivered int64     `json:"delivered"`
	Failed    int64     `json:"failed"`
	Clicks    int64     `json:"clicks"`
	TotalCost float64   `json:"totalCost"`
	CreatedAt time.Time `json:"createdAt"`
}

// Report is the campaign analytics envelope. Failed counts include
// carrier-level UNDELIVERED outcomes.
type Report struct {
	TotalBroadcasts int64           `json:"totalBroadcasts"`
	TotalSent       int64           `json:"totalSent"`
	TotalDelivered  int64           `json:"totalDelivered"`
	TotalFailed     int64           `json:"totalFailed"`
	TotalClicks     int64           `json:"totalClicks"`
	Campaigns       []CampaignStats `json:"campaigns"`
	SendLatency     LatencySnapshot `json:"sendLatency"`
}

// LatencySnapshot is a point-in-time view of the broadcast send latency
// histogram.
type LatencySnapshot struct {
	Total   int64           `json:"total"`
	P90Ms   float64         `json:"p90Ms"`
	P95Ms   float64         `json:"p95Ms"`
	Buckets []LatencyBucket `json:"buckets"`
}

// LatencyBucket is one histogram bucket of the latency snapshot.
type LatencyBucket struct {
	LeSeconds float64 `json:"leSeconds"`
	Label     string  `json:"label,omitempty"`
	Count     int64   `json:"count"`
}
