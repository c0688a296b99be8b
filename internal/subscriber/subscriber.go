// Package subscriber maintains the roster: subscribers keyed by phone
// number, named lists, and the memberships joining the two.
package subscriber

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidPhone   = errors.New("subscriber: invalid US phone number")
	ErrNotFound       = errors.New("subscriber: not found")
	ErrDuplicatePhone = errors.New("subscriber: phone number already registered")
	ErrDuplicateName  = errors.New("subscriber: list name already taken")
	ErrListInUse      = errors.New("subscriber: list referenced by signup keywords")
)

// Subscriber is one phone number on the roster. Opt-out deactivates rather
// than deletes, so history and list memberships survive a rejoin.
type Subscriber struct {
	ID                uuid.UUID  `json:"id"`
	PhoneNumber       string     `json:"phoneNumber"`
	IsActive          bool       `json:"isActive"`
	JoinedAt          time.Time  `json:"joinedAt"`
	LastReadAt        *time.Time `json:"lastReadAt,omitempty"`
	JoinedViaKeyword  string     `json:"joinedViaKeyword,omitempty"`
	NotifierThreadRef string     `json:"-"`
}

// List is a named audience segment.
type List struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	MemberCount int       `json:"memberCount"`
}

// Membership origin tags recorded in joined_via.
const (
	ViaManual     = "manual"
	ViaBulkImport = "bulk-import"
)

// KeywordVia builds the joined_via tag for keyword-driven enrollment.
func KeywordVia(keyword string) string {
	return "keyword:" + keyword
}
