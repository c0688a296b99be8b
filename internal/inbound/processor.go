package inbound

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sanctuaryhq/sanctuary/internal/appconfig"
	"github.com/sanctuaryhq/sanctuary/internal/keyword"
	"github.com/sanctuaryhq/sanctuary/internal/subscriber"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

var processorTracer = otel.Tracer("sanctuary.internal.inbound.processor")

// Notification is a request to post into the operator's notifier channel.
// ThreadRef carries an existing thread to post into; RememberThread asks the
// handler to store the ref returned by the first post (first write wins).
type Notification struct {
	Text           string
	ThreadRef      string
	SubscriberID   uuid.UUID
	RememberThread bool
}

// Decision tells the webhook handler what to do after subscriber state has
// already been updated. The inbound message row is persisted by the handler
// regardless of intent; MarkReadNow applies after the auto-reply goes out.
type Decision struct {
	Intent       keyword.Intent
	AutoReply    string
	Notify       *Notification
	MarkReadNow  bool
	SubscriberID *uuid.UUID
}

type subscriberRepo interface {
	FindByPhone(ctx context.Context, phone string) (*subscriber.Subscriber, error)
	UpsertOptIn(ctx context.Context, phone, joinedViaKeyword string) (*subscriber.Subscriber, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Enroll(ctx context.Context, subscriberID, listID uuid.UUID, joinedVia string) error
}

type keywordRepo interface {
	Lookup(ctx context.Context, normalized string) (*keyword.SignupKeyword, error)
	ActiveKeywords(ctx context.Context) ([]string, error)
}

type settingsRepo interface {
	Get(ctx context.Context) (*appconfig.Config, error)
}

// Processor applies the inbound contract: classify the body, mutate
// subscriber state, and emit the reply/notification decision.
type Processor struct {
	subs     subscriberRepo
	keywords keywordRepo
	settings settingsRepo
	logger   *logging.Logger
	locks    *KeyedMutex
}

func NewProcessor(subs *subscriber.Store, keywords *keyword.Store, settings *appconfig.Store, logger *logging.Logger) *Processor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Processor{
		subs:     subs,
		keywords: keywords,
		settings: settings,
		logger:   logger,
		locks:    NewKeyedMutex(),
	}
}

// Process runs one inbound message through the contract. fromPhone must be
// canonical +1XXXXXXXXXX form. Webhooks for the same phone are serialized.
func (p *Processor) Process(ctx context.Context, fromPhone, body string) (*Decision, error) {
	ctx, span := processorTracer.Start(ctx, "inbound.process")
	defer span.End()

	unlock := p.locks.Lock(fromPhone)
	defer unlock()

	cfg, err := p.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("inbound: load settings: %w", err)
	}

	cls, err := keyword.Classify(ctx, body, p.lookupWithLegacy(cfg))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("sanctuary.intent", cls.Intent.String()))

	switch cls.Intent {
	case keyword.IntentOptIn:
		return p.optIn(ctx, fromPhone, cls.Keyword, cfg)
	case keyword.IntentOptOut:
		return p.optOut(ctx, fromPhone, cfg)
	default:
		return p.conversational(ctx, fromPhone, cls.Body, cfg)
	}
}

// lookupWithLegacy falls back to the settings-level opt-in keyword when no
// stored keyword matches. The synthetic keyword carries no auto-response, so
// the default welcome applies, and no list enrollment happens.
func (p *Processor) lookupWithLegacy(cfg *appconfig.Config) keyword.LookupFunc {
	return func(ctx context.Context, normalized string) (*keyword.SignupKeyword, error) {
		k, err := p.keywords.Lookup(ctx, normalized)
		if err != nil || k != nil {
			return k, err
		}
		if cfg.LegacyOptInKeyword != "" && normalized == cfg.LegacyOptInKeyword {
			return &keyword.SignupKeyword{Keyword: normalized, IsActive: true}, nil
		}
		return nil, nil
	}
}

func (p *Processor) optIn(ctx context.Context, phone string, k *keyword.SignupKeyword, cfg *appconfig.Config) (*Decision, error) {
	welcome := k.AutoResponse
	if welcome == "" {
		welcome = cfg.DefaultWelcomeMessage
	}

	existing, err := p.subs.FindByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	// The outgoing welcome closes the unread window for every opt-in branch.
	d := &Decision{Intent: keyword.IntentOptIn, MarkReadNow: true}

	switch {
	case existing == nil:
		sub, err := p.subs.UpsertOptIn(ctx, phone, k.Keyword)
		if err != nil {
			return nil, err
		}
		d.SubscriberID = &sub.ID
		d.AutoReply = welcome
		d.Notify = &Notification{
			Text:         fmt.Sprintf("New subscriber: %s (via %s)", subscriber.FormatPhone(phone), k.Keyword),
			SubscriberID: sub.ID,
		}
		existing = sub
	case existing.IsActive:
		d.SubscriberID = &existing.ID
		d.AutoReply = cfg.AlreadySubscribedMessage
	default:
		sub, err := p.subs.UpsertOptIn(ctx, phone, k.Keyword)
		if err != nil {
			return nil, err
		}
		d.SubscriberID = &sub.ID
		d.AutoReply = welcome
		d.Notify = &Notification{
			Text:         fmt.Sprintf("Subscriber %s rejoined via %s", subscriber.FormatPhone(phone), k.Keyword),
			SubscriberID: sub.ID,
		}
		existing = sub
	}

	if k.ListID != nil {
		if err := p.subs.Enroll(ctx, existing.ID, *k.ListID, subscriber.KeywordVia(k.Keyword)); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (p *Processor) optOut(ctx context.Context, phone string, cfg *appconfig.Config) (*Decision, error) {
	existing, err := p.subs.FindByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	d := &Decision{Intent: keyword.IntentOptOut}
	if existing == nil || !existing.IsActive {
		d.AutoReply = cfg.NotSubscribedMessage
		return d, nil
	}

	if err := p.subs.SetActive(ctx, existing.ID, false); err != nil {
		return nil, err
	}

	names, err := p.activeKeywordNames(ctx, cfg)
	if err != nil {
		// The deactivation already happened; a missing rejoin hint is not
		// worth aborting the reply over.
		p.logger.Warn("keyword list unavailable for opt-out reply", "error", err)
		names = nil
	}
	d.SubscriberID = &existing.ID
	d.AutoReply = optOutReply(names)
	d.Notify = &Notification{
		Text:         fmt.Sprintf("%s unsubscribed", subscriber.FormatPhone(phone)),
		SubscriberID: existing.ID,
	}
	return d, nil
}

func (p *Processor) conversational(ctx context.Context, phone, body string, cfg *appconfig.Config) (*Decision, error) {
	existing, err := p.subs.FindByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	d := &Decision{Intent: keyword.IntentConversational}
	if existing == nil || !existing.IsActive {
		names, err := p.activeKeywordNames(ctx, cfg)
		if err != nil {
			p.logger.Warn("keyword list unavailable for subscribe hint", "error", err)
			names = nil
		}
		d.AutoReply = subscribeHint(names, cfg.NotSubscribedMessage)
		return d, nil
	}

	d.SubscriberID = &existing.ID
	d.Notify = &Notification{
		Text:           fmt.Sprintf("Message from %s: %s", subscriber.FormatPhone(phone), body),
		ThreadRef:      existing.NotifierThreadRef,
		SubscriberID:   existing.ID,
		RememberThread: existing.NotifierThreadRef == "",
	}
	return d, nil
}

func (p *Processor) activeKeywordNames(ctx context.Context, cfg *appconfig.Config) ([]string, error) {
	names, err := p.keywords.ActiveKeywords(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 && cfg.LegacyOptInKeyword != "" {
		names = append(names, cfg.LegacyOptInKeyword)
	}
	return names, nil
}

func optOutReply(keywords []string) string {
	if len(keywords) == 0 {
		return "You've been unsubscribed."
	}
	return fmt.Sprintf("You've been unsubscribed. Text %s to rejoin.", strings.Join(keywords, " or "))
}

func subscribeHint(keywords []string, fallback string) string {
	if len(keywords) == 0 {
		return fallback
	}
	return fmt.Sprintf("Text %s to subscribe.", strings.Join(keywords, " or "))
}
