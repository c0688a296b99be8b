// Package shortlink mints per-broadcast short codes, rewrites draft bodies
// to use them, and records redirect clicks for attribution.
package shortlink

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Link maps one short code to the original URL it redirects to.
type Link struct {
	ID          uuid.UUID  `json:"id"`
	BroadcastID *uuid.UUID `json:"broadcastId,omitempty"`
	OriginalURL string     `json:"originalUrl"`
	ShortCode   string     `json:"shortCode"`
	CreatedAt   time.Time  `json:"createdAt"`
}

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	codeLength   = 8

	// 62^8 codes makes collisions rare; the retry bound exists so a burst
	// of bad luck degrades to an untracked link instead of a stuck send.
	maxAllocateAttempts = 5
)

func generateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("shortlink: generate code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// RedirectPath is the public path prefix short links are served under.
const RedirectPath = "/sanctuary/"

// ShortURL renders the public form of a code under the configured origin.
func ShortURL(baseURL, code string) string {
	return baseURL + RedirectPath + code
}
