package broadcast

import (
	"time"

	"github.com/google/uuid"
)

// Broadcast is the persisted campaign header. Message holds the operator
// draft, not the link-rewritten body recipients receive. SentCount is the
// number of recipients attempted, not the number the gateway accepted.
type Broadcast struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name,omitempty"`
	Message   string    `json:"message"`
	SentCount int       `json:"sentCount"`
	TotalCost float64   `json:"totalCost"`
	TargetAll bool      `json:"targetAll"`
	CreatedAt time.Time `json:"createdAt"`
}

// Target types recorded per broadcast list.
const (
	TargetInclude = "include"
	TargetExclude = "exclude"
)

// Recipient is one resolved audience member.
type Recipient struct {
	ID          uuid.UUID
	PhoneNumber string
	JoinedAt    time.Time
}
