package keyword

import (
	"context"
	"fmt"
	"strings"
)

// Intent is the classification of one inbound message body.
type Intent int

const (
	IntentConversational Intent = iota
	IntentOptIn
	IntentOptOut
)

func (i Intent) String() string {
	switch i {
	case IntentOptIn:
		return "opt_in"
	case IntentOptOut:
		return "opt_out"
	default:
		return "conversational"
	}
}

// Opt-out tokens are fixed by carrier compliance rules and always win, even
// over an admin-created keyword literally named STOP.
var optOutTokens = map[string]struct{}{
	"STOP":        {},
	"UNSUBSCRIBE": {},
}

// Classification is the router's verdict. Keyword is set only for opt-ins.
// Body preserves the raw inbound text so conversational handling never sees
// the normalized form.
type Classification struct {
	Intent  Intent
	Keyword *SignupKeyword
	Body    string
}

// LookupFunc resolves a normalized (trimmed, uppercased) token to an active
// signup keyword, or nil when nothing matches.
type LookupFunc func(ctx context.Context, normalized string) (*SignupKeyword, error)

// Classify maps an inbound body to an intent. Matching is whole-body after
// whitespace trimming and case folding.
func Classify(ctx context.Context, body string, lookup LookupFunc) (Classification, error) {
	normalized := strings.ToUpper(strings.TrimSpace(body))

	if _, ok := optOutTokens[normalized]; ok {
		return Classification{Intent: IntentOptOut, Body: body}, nil
	}

	if normalized != "" && lookup != nil {
		k, err := lookup(ctx, normalized)
		if err != nil {
			return Classification{}, fmt.Errorf("keyword: classify %q: %w", normalized, err)
		}
		if k != nil && k.IsActive {
			return Classification{Intent: IntentOptIn, Keyword: k, Body: body}, nil
		}
	}

	return Classification{Intent: IntentConversational, Body: body}, nil
}
