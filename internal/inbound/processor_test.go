package inbound

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sanctuaryhq/sanctuary/internal/appconfig"
	"github.com/sanctuaryhq/sanctuary/internal/keyword"
	"github.com/sanctuaryhq/sanctuary/internal/subscriber"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

type stubSubs struct {
	mu          sync.Mutex
	subs        map[string]*subscriber.Subscriber
	enrolls     map[string]int
	upsertCalls int
	findErr     error
	upsertErr   error
}

func newStubSubs() *stubSubs {
	return &stubSubs{
		subs:    make(map[string]*subscriber.Subscriber),
		enrolls: make(map[string]int),
	}
}

func (s *stubSubs) add(phone string, active bool, threadRef string) *subscriber.Subscriber {
	sub := &subscriber.Subscriber{
		ID:                uuid.New(),
		PhoneNumber:       phone,
		IsActive:          active,
		JoinedAt:          time.Now(),
		NotifierThreadRef: threadRef,
	}
	s.subs[phone] = sub
	return sub
}

func (s *stubSubs) FindByPhone(_ context.Context, phone string) (*subscriber.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	sub, ok := s.subs[phone]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (s *stubSubs) UpsertOptIn(_ context.Context, phone, via string) (*subscriber.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	s.upsertCalls++
	sub, ok := s.subs[phone]
	if !ok {
		sub = &subscriber.Subscriber{ID: uuid.New(), PhoneNumber: phone, JoinedAt: time.Now()}
		s.subs[phone] = sub
	}
	sub.IsActive = true
	sub.JoinedViaKeyword = via
	cp := *sub
	return &cp, nil
}

func (s *stubSubs) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.ID == id {
			sub.IsActive = active
			return nil
		}
	}
	return subscriber.ErrNotFound
}

func (s *stubSubs) Enroll(_ context.Context, subID, listID uuid.UUID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrolls[subID.String()+"/"+listID.String()]++
	return nil
}

type stubKeywords struct {
	byName    map[string]*keyword.SignupKeyword
	active    []string
	lookupErr error
	activeErr error
}

func (s *stubKeywords) Lookup(_ context.Context, norm string) (*keyword.SignupKeyword, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	k, ok := s.byName[norm]
	if !ok || !k.IsActive {
		return nil, nil
	}
	return k, nil
}

func (s *stubKeywords) ActiveKeywords(_ context.Context) ([]string, error) {
	if s.activeErr != nil {
		return nil, s.activeErr
	}
	return s.active, nil
}

type stubSettings struct {
	cfg *appconfig.Config
	err error
}

func (s *stubSettings) Get(_ context.Context) (*appconfig.Config, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.cfg, nil
}

func defaultSettings() *stubSettings {
	return &stubSettings{cfg: &appconfig.Config{
		DefaultWelcomeMessage:    "Welcome! You are now subscribed. Reply STOP to unsubscribe.",
		AlreadySubscribedMessage: "You're already subscribed! Reply STOP to unsubscribe.",
		NotSubscribedMessage:     "You're not currently subscribed.",
	}}
}

func tribeKeywords() *stubKeywords {
	tribe := &keyword.SignupKeyword{ID: uuid.New(), Keyword: "TRIBE", AutoResponse: "Welcome!", IsActive: true}
	return &stubKeywords{
		byName: map[string]*keyword.SignupKeyword{"TRIBE": tribe},
		active: []string{"TRIBE"},
	}
}

func newTestProcessor(subs *stubSubs, kws *stubKeywords, settings *stubSettings) *Processor {
	return &Processor{
		subs:     subs,
		keywords: kws,
		settings: settings,
		logger:   logging.NewWithWriter("error", io.Discard),
		locks:    NewKeyedMutex(),
	}
}

func TestProcessNewOptIn(t *testing.T) {
	subs := newStubSubs()
	p := newTestProcessor(subs, tribeKeywords(), defaultSettings())

	d, err := p.Process(context.Background(), "+15551234567", "TRIBE")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if d.Intent != keyword.IntentOptIn {
		t.Fatalf("expected opt-in, got %v", d.Intent)
	}
	if d.AutoReply != "Welcome!" {
		t.Fatalf("unexpected reply %q", d.AutoReply)
	}
	if !d.MarkReadNow {
		t.Fatalf("opt-in must close the unread window")
	}
	if d.Notify == nil || !strings.Contains(d.Notify.Text, "(555) 123-4567") || !strings.Contains(d.Notify.Text, "via TRIBE") {
		t.Fatalf("unexpected notification: %+v", d.Notify)
	}
	if d.Notify.RememberThread {
		t.Fatalf("opt-in notifications are not threaded")
	}

	sub := subs.subs["+15551234567"]
	if sub == nil || !sub.IsActive || sub.JoinedViaKeyword != "TRIBE" {
		t.Fatalf("unexpected subscriber state: %+v", sub)
	}
	if d.SubscriberID == nil || *d.SubscriberID != sub.ID {
		t.Fatalf("decision must carry the subscriber id")
	}
}

func TestProcessOptInLowercaseBody(t *testing.T) {
	subs := newStubSubs()
	p := newTestProcessor(subs, tribeKeywords(), defaultSettings())

	d, err := p.Process(context.Background(), "+15551234567", "  tribe  ")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if d.Intent != keyword.IntentOptIn || d.AutoReply != "Welcome!" {
		t.Fatalf("lowercase keyword must opt in, got %+v", d)
	}
}

func TestProcessOptInFallsBackToDefaultWelcome(t *testing.T) {
	kws := tribeKeywords()
	kws.byName["TRIBE"].AutoResponse = ""
	p := newTestProcessor(newStubSubs(), kws, defaultSettings())

	d, err := p.Process(context.Background(), "+15551234567", "TRIBE")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.HasPrefix(d.AutoReply, "Welcome! You are now subscribed.") {
		t.Fatalf("expected default welcome, got %q", d.AutoReply)
	}
}

func TestProcessOptInAlreadyActive(t *testing.T) {
	subs := newStubSubs()
	subs.add("+15551234567", true, "")
	p := newTestProcessor(subs, tribeKeywords(), defaultSettings())

	d, err := p.Process(context.Background(), "+15551234567", "TRIBE")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if d.AutoReply != "You're already subscribed! Reply STOP to unsubscribe." {
		t.Fatalf("unexpected reply %q", d.AutoReply)
	}
	if d.Notify != nil {
		t.Fatalf("already-active opt-in must not notify")
	}
	if subs.upsertCalls != 0 {
		t.Fatalf("already-active opt-in must not rewrite the subscriber")
	}
	if !d.MarkReadNow {
		t.Fatalf("the reply still closes the unread window")
	}
}

func TestProcessOptInReactivates(t *testing.T) {
	subs := newStubSubs()
	sub := subs.add("+15551234567", false, "")
	p := newTestProcessor(subs, tribeKeywords(), defaultSettings())

	d, err := p.Process(context.Background(), "+15551234567", "TRIBE")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if d.AutoReply != "Welcome!" {
		t.Fatalf("unexpected reply %q", d.AutoReply)
	}
	if d.Notify == nil || !strings.Contains(d.Notify.Text, "rejoined via TRIBE") {
		t.Fatalf("unexpected notification: %+v", d.Notify)
	}
	if !subs.subs["+15551234567"].IsActive {
		t.Fatalf("subscriber must be reactivated")
	}
	if subs.subs["+15551234567"].ID != sub.ID {
		t.Fatalf("reactivation must keep the subscriber id")
	}
}

func TestProcessOptInEnrollsKeywordList(t *testing.T) {
	listID := uuid.New()
	kws := tribeKeywords()
	kws.byName["TRIBE"].ListID = &listID

	subs := newStubSubs()
	p := newTestProcessor(subs, kws, defaultSettings())

	if _, err := p.Process(context.Background(), "+15551234567", "TRIBE"); err != nil {
		t.Fatalf("process: %v", err)
	}
	sub := subs.subs["+15551234567"]
	if subs.enrolls[sub.ID.String()+"/"+listID.String()] != 1 {
		t.Fatalf("expected enrollment, got %v", subs.enrolls)
	}

	// An already-active subscriber still gets enrolled.
	if _, err := p.Process(context.Background(), "+15551234567", "TRIBE"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if subs.enrolls[sub.ID.String()+"/"+listID.String()] != 2 {
		t.Fatalf("expected idempotent re-enroll call, got %v", subs.enrolls)
	}
}

func TestProcessOptOutActive(t *testing.T) {
	subs := newStubSubs()
	sub := subs.add("+15551234567", true, "")
	kws := tribeKeywords()
	kws.active = append(kws.active, "VILLAGE")
	p := newTestProcessor(subs, kws, defaultSettings())

	d, err := p.Process(context.Background(), "+15551234567", "STOP")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if d.Intent != keyword.IntentOptOut {
		t.Fatalf("expected opt-out, got %v", d.Intent)
	}
	if d.AutoReply != "You've been unsubscribed. Text TRIBE or VILLAGE to rejoin." {
		t.Fatalf("unexpected reply %q", d.AutoReply)
	}
	if d.Notify == nil || !strings.Contains(d.Notify.Text, "unsubscribed") {
		t.Fatalf("unexpected notification: %+v", d.Notify)
	}
	if subs.subs["+15551234567"].IsActive {
		t.Fatalf("subscriber must be deactivated")
	}
	if d.MarkReadNow {
		t.Fatalf("opt-out does not close the unread window")
	}
	_ = sub
}

func TestProcessOptOutNonSubscriber(t *testing.T) {
	p := newTestProcessor(newStubSubs(), tribeKeywords(), defaultSettings())

	d, err := p.Process(context.Background(), "+15550001111", "STOP")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if d.AutoReply != "You're not currently subscribed." {
		t.Fatalf("unexpected reply %q", d.AutoReply)
	}
	if d.Notify != nil {
		t.Fatalf("non-subscriber opt-out must not notify")
	}
}

func TestProcessStopBeatsStopKeyword(t *testing.T) {
	kws := tribeKeywords()
	kws.byName["STOP"] = &keyword.SignupKeyword{Keyword: "STOP", AutoResponse: "Gotcha!", IsActive: true}
	subs := newStubSubs()
	subs.add("+15551234567", true, "")
	p := newTestProcessor(subs, kws, defaultSettings())

	d, err := p.Process(context.Background(), "+15551234567", "stop")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if d.Intent != keyword.IntentOptOut {
		t.Fatalf("opt-out must win over a keyword named STOP, got %v", d.Intent)
	}
}

func TestProcessConversationalThreading(t *testing.T) {
	subs := newStubSubs()
	sub := subs.add("+15551234567", true, "")
	p := newTestProcessor(subs, tribeKeywords(), defaultSettings())

	d, err := p.Process(context.Background(), "+15551234567", "Is the meetup still on?")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if d.AutoReply != "" {
		t.Fatalf("active subscriber chatter gets no auto-reply, got %q", d.AutoReply)
	}
	if d.Notify == nil {
		t.Fatalf("expected a notification")
	}
	if d.Notify.Text != "Message from (555) 123-4567: Is the meetup still on?" {
		t.Fatalf("unexpected notification text %q", d.Notify.Text)
	}
	if !d.Notify.RememberThread || d.Notify.ThreadRef != "" {
		t.Fatalf("first message must start a thread: %+v", d.Notify)
	}
	if d.Notify.SubscriberID != sub.ID {
		t.Fatalf("notification must carry the subscriber id")
	}

	// A stored thread ref is reused and not rewritten.
	subs.subs["+15551234567"].NotifierThreadRef = "1712345678.000100"
	d, err = p.Process(context.Background(), "+15551234567", "Thanks!")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if d.Notify.ThreadRef != "1712345678.000100" || d.Notify.RememberThread {
		t.Fatalf("existing thread must win: %+v", d.Notify)
	}
}

func TestProcessConversationalPreservesRawBody(t *testing.T) {
	subs := newStubSubs()
	subs.add("+15551234567", true, "")
	p := newTestProcessor(subs, tribeKeywords(), defaultSettings())

	d, err := p.Process(context.Background(), "+15551234567", "  Mixed Case body  ")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(d.Notify.Text, "  Mixed Case body  ") {
		t.Fatalf("raw body must be preserved, got %q", d.Notify.Text)
	}
}

func TestProcessConversationalNonSubscriber(t *testing.T) {
	p := newTestProcessor(newStubSubs(), tribeKeywords(), defaultSettings())

	d, err := p.Process(context.Background(), "+15550001111", "hello?")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if d.AutoReply != "Text TRIBE to subscribe." {
		t.Fatalf("unexpected reply %q", d.AutoReply)
	}
	if d.Notify != nil {
		t.Fatalf("non-subscriber chatter must not notify")
	}
}

func TestProcessConversationalNonSubscriberNoKeywords(t *testing.T) {
	kws := &stubKeywords{byName: map[string]*keyword.SignupKeyword{}}
	p := newTestProcessor(newStubSubs(), kws, defaultSettings())

	d, err := p.Process(context.Background(), "+15550001111", "hello?")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if d.AutoReply != "You're not currently subscribed." {
		t.Fatalf("unexpected reply %q", d.AutoReply)
	}
}

func TestProcessLegacyKeywordOptIn(t *testing.T) {
	kws := &stubKeywords{byName: map[string]*keyword.SignupKeyword{}}
	settings := defaultSettings()
	settings.cfg.LegacyOptInKeyword = "JOIN"
	subs := newStubSubs()
	p := newTestProcessor(subs, kws, settings)

	d, err := p.Process(context.Background(), "+15551234567", "join")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if d.Intent != keyword.IntentOptIn {
		t.Fatalf("legacy keyword must opt in, got %v", d.Intent)
	}
	if !strings.HasPrefix(d.AutoReply, "Welcome! You are now subscribed.") {
		t.Fatalf("legacy opt-in uses the default welcome, got %q", d.AutoReply)
	}
	if subs.subs["+15551234567"].JoinedViaKeyword != "JOIN" {
		t.Fatalf("unexpected joinedViaKeyword %q", subs.subs["+15551234567"].JoinedViaKeyword)
	}
	if len(subs.enrolls) != 0 {
		t.Fatalf("legacy opt-in must not enroll anywhere")
	}
}

func TestProcessOptInOptOutOptInLaw(t *testing.T) {
	listID := uuid.New()
	kws := tribeKeywords()
	kws.byName["TRIBE"].ListID = &listID
	subs := newStubSubs()
	p := newTestProcessor(subs, kws, defaultSettings())

	first, err := p.Process(context.Background(), "+15551234567", "TRIBE")
	if err != nil {
		t.Fatalf("first opt-in: %v", err)
	}
	id := subs.subs["+15551234567"].ID

	if _, err := p.Process(context.Background(), "+15551234567", "STOP"); err != nil {
		t.Fatalf("opt-out: %v", err)
	}
	if subs.subs["+15551234567"].IsActive {
		t.Fatalf("expected inactive after opt-out")
	}

	second, err := p.Process(context.Background(), "+15551234567", "TRIBE")
	if err != nil {
		t.Fatalf("second opt-in: %v", err)
	}
	if subs.subs["+15551234567"].ID != id {
		t.Fatalf("round trip must keep the subscriber id")
	}
	if !subs.subs["+15551234567"].IsActive {
		t.Fatalf("expected active after rejoin")
	}
	if !strings.Contains(first.Notify.Text, "New subscriber") {
		t.Fatalf("first opt-in notifies as new: %q", first.Notify.Text)
	}
	if !strings.Contains(second.Notify.Text, "rejoined") {
		t.Fatalf("second opt-in notifies as rejoin: %q", second.Notify.Text)
	}
	if len(subs.enrolls) != 1 {
		t.Fatalf("expected one membership pair, got %v", subs.enrolls)
	}
}

func TestProcessRepoErrorsAbort(t *testing.T) {
	subs := newStubSubs()
	subs.findErr = errors.New("db down")
	p := newTestProcessor(subs, tribeKeywords(), defaultSettings())
	if _, err := p.Process(context.Background(), "+15551234567", "TRIBE"); err == nil {
		t.Fatalf("expected lookup error to abort")
	}

	subs = newStubSubs()
	subs.upsertErr = errors.New("db down")
	p = newTestProcessor(subs, tribeKeywords(), defaultSettings())
	if _, err := p.Process(context.Background(), "+15551234567", "TRIBE"); err == nil {
		t.Fatalf("expected write error to abort")
	}

	p = newTestProcessor(newStubSubs(), tribeKeywords(), &stubSettings{err: errors.New("no settings")})
	if _, err := p.Process(context.Background(), "+15551234567", "TRIBE"); err == nil {
		t.Fatalf("expected settings error to abort")
	}
}

func TestProcessIdenticalWebhooksConverge(t *testing.T) {
	subs := newStubSubs()
	p := newTestProcessor(subs, tribeKeywords(), defaultSettings())

	if _, err := p.Process(context.Background(), "+15551234567", "TRIBE"); err != nil {
		t.Fatalf("first: %v", err)
	}
	after := *subs.subs["+15551234567"]

	d, err := p.Process(context.Background(), "+15551234567", "TRIBE")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if d.AutoReply != "You're already subscribed! Reply STOP to unsubscribe." {
		t.Fatalf("unexpected second reply %q", d.AutoReply)
	}
	if subs.subs["+15551234567"].ID != after.ID || subs.subs["+15551234567"].IsActive != after.IsActive {
		t.Fatalf("subscriber state must converge")
	}
}
