package shortlink

import (
	"context"
	"regexp"

	"github.com/google/uuid"

	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

var urlRe = regexp.MustCompile(`https?://[^\s]+`)

// allocator is the slice of the store the tokenizer needs.
type allocator interface {
	Allocate(ctx context.Context, broadcastID *uuid.UUID, originalURL string) (*Link, error)
}

// Tokenizer rewrites broadcast drafts so approved URLs go out as tracked
// short links.
type Tokenizer struct {
	links   allocator
	baseURL string
	logger  *logging.Logger
}

func NewTokenizer(store *Store, baseURL string, logger *logging.Logger) *Tokenizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Tokenizer{links: store, baseURL: baseURL, logger: logger}
}

// Rewrite extracts URLs from the draft and replaces each approved one with
// a minted short link. A nil approved list means every URL is approved; an
// empty list approves none. Allocation failures downgrade to the original
// draft with zero links, because link tracking must never block a send.
func (t *Tokenizer) Rewrite(ctx context.Context, broadcastID *uuid.UUID, draft string, approved []string) (string, []Link) {
	urls := extractURLs(draft)
	if len(urls) == 0 {
		return draft, nil
	}

	var approvedSet map[string]struct{}
	if approved != nil {
		approvedSet = make(map[string]struct{}, len(approved))
		for _, u := range approved {
			approvedSet[u] = struct{}{}
		}
	}

	replacements := make(map[string]string, len(urls))
	var links []Link
	for _, u := range urls {
		if approvedSet != nil {
			if _, ok := approvedSet[u]; !ok {
				continue
			}
		}
		link, err := t.links.Allocate(ctx, broadcastID, u)
		if err != nil {
			t.logger.Warn("link tokenization failed, sending original body",
				"url", u, "error", err)
			return draft, nil
		}
		replacements[u] = ShortURL(t.baseURL, link.ShortCode)
		links = append(links, *link)
	}
	if len(replacements) == 0 {
		return draft, nil
	}

	// Replace whole URL tokens only; substring replacement would corrupt a
	// longer URL that shares a prefix with a shorter one.
	rewritten := urlRe.ReplaceAllStringFunc(draft, func(match string) string {
		if short, ok := replacements[match]; ok {
			return short
		}
		return match
	})
	return rewritten, links
}

// extractURLs returns the distinct URLs in order of first appearance.
func extractURLs(body string) []string {
	matches := urlRe.FindAllString(body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
