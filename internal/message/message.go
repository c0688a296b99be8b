// Package message persists the two-way SMS log and reconciles provider
// delivery callbacks against it. Messages attach to subscribers by phone
// number, not by foreign key, so history survives roster churn.
package message

import (
	"time"

	"github.com/google/uuid"
)

type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// Status is the delivery lifecycle of an outbound message. PENDING exists
// only in flight; SENT is the first persisted state, updated by delivery
// callbacks until a terminal status lands.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusSent        Status = "SENT"
	StatusDelivered   Status = "DELIVERED"
	StatusUndelivered Status = "UNDELIVERED"
	StatusFailed      Status = "FAILED"
)

type Message struct {
	ID                uuid.UUID  `json:"id"`
	PhoneNumber       string     `json:"phoneNumber"`
	Content           string     `json:"content"`
	Direction         Direction  `json:"direction"`
	DeliveryStatus    Status     `json:"deliveryStatus"`
	ProviderMessageID string     `json:"providerMessageId,omitempty"`
	BroadcastID       *uuid.UUID `json:"broadcastId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}
