package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanctuaryhq/sanctuary/internal/observability/metrics"
	"github.com/sanctuaryhq/sanctuary/internal/shortlink"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

type stubLinks struct {
	link     *shortlink.Link
	findErr  error
	clickErr error

	gotCode string
	clicks  []string
}

func (s *stubLinks) FindByCode(_ context.Context, code string) (*shortlink.Link, error) {
	s.gotCode = code
	return s.link, s.findErr
}

func (s *stubLinks) InsertClick(_ context.Context, _ uuid.UUID, subscriberID string) error {
	if s.clickErr != nil {
		return s.clickErr
	}
	s.clicks = append(s.clicks, subscriberID)
	return nil
}

func serveRedirect(links *stubLinks, target string) *httptest.ResponseRecorder {
	h := NewRedirectHandler(links, metrics.New(newTestRegistry()), logging.Default())
	r := chi.NewRouter()
	r.Get("/sanctuary/{code}", h.Resolve)

	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRedirectKnownCode(t *testing.T) {
	links := &stubLinks{link: &shortlink.Link{
		ID:          uuid.New(),
		OriginalURL: "https://example.org/donate?src=sms",
		ShortCode:   "AbC12345",
	}}
	sid := uuid.NewString()

	w := serveRedirect(links, "/sanctuary/AbC12345?sid="+sid)

	require.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, "https://example.org/donate?src=sms", w.Header().Get("Location"))
	assert.Equal(t, "AbC12345", links.gotCode)
	assert.Equal(t, []string{sid}, links.clicks)
}

func TestRedirectDropsMalformedAttribution(t *testing.T) {
	links := &stubLinks{link: &shortlink.Link{
		ID:          uuid.New(),
		OriginalURL: "https://example.org/donate",
		ShortCode:   "AbC12345",
	}}

	w := serveRedirect(links, "/sanctuary/AbC12345?sid=not-a-uuid")

	require.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, []string{""}, links.clicks, "malformed sid is dropped, click still counts")
}

func TestRedirectWithoutAttribution(t *testing.T) {
	links := &stubLinks{link: &shortlink.Link{
		ID:          uuid.New(),
		OriginalURL: "https://example.org/meeting",
		ShortCode:   "ZzZzZzZz",
	}}

	w := serveRedirect(links, "/sanctuary/ZzZzZzZz")

	require.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, []string{""}, links.clicks)
}

func TestRedirectUnknownCode(t *testing.T) {
	w := serveRedirect(&stubLinks{}, "/sanctuary/missing1")

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Link not found")
}

func TestRedirectClickFailureStillRedirects(t *testing.T) {
	links := &stubLinks{
		link: &shortlink.Link{
			ID:          uuid.New(),
			OriginalURL: "https://example.org/rsvp",
			ShortCode:   "AbC12345",
		},
		clickErr: errors.New("db down"),
	}

	w := serveRedirect(links, "/sanctuary/AbC12345?sid=SUB9")

	require.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, "https://example.org/rsvp", w.Header().Get("Location"))
}

func TestRedirectLookupFailureRendersNotFound(t *testing.T) {
	links := &stubLinks{findErr: errors.New("db down")}

	w := serveRedirect(links, "/sanctuary/AbC12345")

	require.Equal(t, http.StatusNotFound, w.Code)
}
