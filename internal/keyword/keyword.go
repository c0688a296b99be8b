// Package keyword owns the signup-keyword protocol: the stored keywords an
// organizer configures and the classifier that maps an inbound body to an
// intent.
package keyword

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("keyword: not found")
	ErrDuplicate     = errors.New("keyword: already exists")
	ErrEmptyKeyword  = errors.New("keyword: keyword is required")
	ErrEmptyResponse = errors.New("keyword: auto response is required")
	ErrUnknownList   = errors.New("keyword: list does not exist")
)

// SignupKeyword is an uppercase token that triggers opt-in when texted as
// the entire message body.
type SignupKeyword struct {
	ID           uuid.UUID  `json:"id"`
	Keyword      string     `json:"keyword"`
	AutoResponse string     `json:"autoResponse"`
	IsActive     bool       `json:"isActive"`
	ListID       *uuid.UUID `json:"listId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}
