package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sanctuaryhq/sanctuary/internal/gateway"
	"github.com/sanctuaryhq/sanctuary/internal/message"
	"github.com/sanctuaryhq/sanctuary/internal/observability/metrics"
	"github.com/sanctuaryhq/sanctuary/internal/shortlink"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

var engineTracer = otel.Tracer("sanctuary.internal.broadcast.engine")

const (
	maxMessageLength = 1600
	maxResultRows    = 10
	maxErrorRows     = 5
)

var (
	ErrEmptyMessage   = errors.New("broadcast: message required")
	ErrMessageTooLong = errors.New("broadcast: message exceeds 1600 characters")
	ErrNoTargeting    = errors.New("broadcast: target all, include lists, or exclude lists required")
	ErrUnknownList    = errors.New("broadcast: unknown list id")
	ErrEmptyAudience  = errors.New("broadcast: no active subscribers match the targeting")
	ErrNoRecipient    = errors.New("broadcast: recipient phone required")
	ErrNoGateway      = errors.New("broadcast: sms gateway not configured")
)

// Request is one campaign send. A nil ApprovedLinks shortens every URL in
// the draft; an empty non-nil slice shortens none.
type Request struct {
	Message        string
	CampaignName   string
	ApprovedLinks  []string
	TargetAll      bool
	TargetListIDs  []uuid.UUID
	ExcludeListIDs []uuid.UUID
}

// RecipientResult reports one attempted send.
type RecipientResult struct {
	PhoneNumber string `json:"phone"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// Summary aggregates a finished campaign. Results and Errors are capped so
// a large audience does not balloon the response payload.
type Summary struct {
	BroadcastID       *uuid.UUID
	CampaignName      string
	SentTo            int
	Failed            int
	TotalCost         float64
	SegmentCount      int
	LinksTracked      int
	TargetAll         bool
	TargetedListCount int
	Results           []RecipientResult
	Errors            []string
}

type engineStore interface {
	CountLists(ctx context.Context, ids []uuid.UUID) (int, error)
	ResolveAudience(ctx context.Context, targetAll bool, include, exclude []uuid.UUID) ([]Recipient, error)
	InsertHeader(ctx context.Context, b *Broadcast) error
	InsertTargets(ctx context.Context, broadcastID uuid.UUID, include, exclude []uuid.UUID) error
}

type outboundLog interface {
	InsertOutbound(ctx context.Context, rec message.OutboundRecord) (uuid.UUID, error)
}

type linkRewriter interface {
	Rewrite(ctx context.Context, broadcastID *uuid.UUID, draft string, approved []string) (string, []shortlink.Link)
}

// Engine fans one campaign out to its audience through a bounded worker
// pool. Per-recipient failures never abort the campaign.
type Engine struct {
	store       engineStore
	messages    outboundLog
	links       linkRewriter
	gateway     gateway.SMSGateway
	logger      *logging.Logger
	metrics     *metrics.Metrics
	workers     int
	sendTimeout time.Duration
}

type EngineConfig struct {
	Workers     int
	SendTimeout time.Duration
}

func NewEngine(store *Store, messages *message.Store, links *shortlink.Tokenizer, gw gateway.SMSGateway, m *metrics.Metrics, logger *logging.Logger, cfg EngineConfig) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Engine{
		store:       store,
		messages:    messages,
		links:       links,
		gateway:     gw,
		logger:      logger,
		metrics:     m,
		workers:     workers,
		sendTimeout: timeout,
	}
}

// Send validates the request, resolves the audience, and runs the campaign.
func (e *Engine) Send(ctx context.Context, req Request) (*Summary, error) {
	ctx, span := engineTracer.Start(ctx, "broadcast.send")
	defer span.End()

	if e.gateway == nil {
		return nil, ErrNoGateway
	}
	if err := validateDraft(req.Message); err != nil {
		return nil, err
	}
	if !req.TargetAll && len(req.TargetListIDs) == 0 && len(req.ExcludeListIDs) == 0 {
		return nil, ErrNoTargeting
	}

	include := dedupeIDs(req.TargetListIDs)
	exclude := dedupeIDs(req.ExcludeListIDs)
	if err := e.checkListsExist(ctx, include, exclude); err != nil {
		return nil, err
	}

	audience, err := e.store.ResolveAudience(ctx, req.TargetAll, include, exclude)
	if err != nil {
		return nil, err
	}
	if len(audience) == 0 {
		return nil, ErrEmptyAudience
	}

	span.SetAttributes(attribute.Int("sanctuary.audience", len(audience)))

	return e.run(ctx, campaign{
		name:      req.CampaignName,
		draft:     req.Message,
		approved:  req.ApprovedLinks,
		targetAll: req.TargetAll,
		include:   include,
		exclude:   exclude,
		audience:  audience,
	}), nil
}

// SendTest runs the campaign pipeline against a single explicit phone. The
// recorded header is tagged so test sends stand out in analytics.
func (e *Engine) SendTest(ctx context.Context, phone string, req Request) (*Summary, error) {
	ctx, span := engineTracer.Start(ctx, "broadcast.send_test")
	defer span.End()

	if e.gateway == nil {
		return nil, ErrNoGateway
	}
	if err := validateDraft(req.Message); err != nil {
		return nil, err
	}
	if strings.TrimSpace(phone) == "" {
		return nil, ErrNoRecipient
	}

	name := strings.TrimSpace("[TEST] " + req.CampaignName)
	return e.run(ctx, campaign{
		name:     name,
		draft:    req.Message,
		approved: req.ApprovedLinks,
		audience: []Recipient{{PhoneNumber: phone}},
	}), nil
}

type campaign struct {
	name      string
	draft     string
	approved  []string
	targetAll bool
	include   []uuid.UUID
	exclude   []uuid.UUID
	audience  []Recipient
}

func (e *Engine) run(ctx context.Context, c campaign) *Summary {
	segments := SegmentCount(c.draft)
	totalCost := EstimateCost(c.draft, len(c.audience))

	// The analytics header is best-effort. A failed insert downgrades the
	// campaign to untracked; it never blocks the send.
	var broadcastID *uuid.UUID
	header := &Broadcast{
		Name:      c.name,
		Message:   c.draft,
		SentCount: len(c.audience),
		TotalCost: totalCost,
		TargetAll: c.targetAll,
	}
	if err := e.store.InsertHeader(ctx, header); err != nil {
		e.logger.Warn("broadcast header insert failed, sending untracked", "error", err)
	} else {
		id := header.ID
		broadcastID = &id
		if err := e.store.InsertTargets(ctx, id, c.include, c.exclude); err != nil {
			e.logger.Warn("broadcast target insert failed", "broadcast_id", id, "error", err)
		}
	}

	// An untracked campaign skips link minting too; a short link with no
	// broadcast row would be unattributable in the campaign report.
	body := c.draft
	var links []shortlink.Link
	if e.links != nil && broadcastID != nil {
		body, links = e.links.Rewrite(ctx, broadcastID, c.draft, c.approved)
	}

	results := e.fanOut(ctx, c.audience, body, broadcastID)

	summary := &Summary{
		BroadcastID:       broadcastID,
		CampaignName:      c.name,
		TotalCost:         totalCost,
		SegmentCount:      segments,
		LinksTracked:      len(links),
		TargetAll:         c.targetAll,
		TargetedListCount: len(c.include),
	}
	for _, r := range results {
		if r.Error == "" {
			summary.SentTo++
		} else {
			summary.Failed++
			if len(summary.Errors) < maxErrorRows {
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", r.PhoneNumber, r.Error))
			}
		}
		if len(summary.Results) < maxResultRows {
			summary.Results = append(summary.Results, r)
		}
	}

	e.logger.Info("broadcast finished",
		"broadcast_id", broadcastID,
		"sent", summary.SentTo,
		"failed", summary.Failed,
		"segments", segments,
		"links", summary.LinksTracked,
	)
	return summary
}

// fanOut pushes recipients through the worker pool. Results keep audience
// order even though sends complete out of order.
func (e *Engine) fanOut(ctx context.Context, audience []Recipient, body string, broadcastID *uuid.UUID) []RecipientResult {
	results := make([]RecipientResult, len(audience))
	workers := e.workers
	if workers > len(audience) {
		workers = len(audience)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = e.sendOne(ctx, audience[i], body, broadcastID)
			}
		}()
	}
	for i := range audience {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func (e *Engine) sendOne(ctx context.Context, r Recipient, body string, broadcastID *uuid.UUID) RecipientResult {
	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	start := time.Now()
	res, err := e.gateway.Send(sendCtx, r.PhoneNumber, body)
	if err != nil {
		e.metrics.ObserveSendLatency(string(message.StatusFailed), time.Since(start).Seconds())
		e.metrics.ObserveOutbound("broadcast", string(message.StatusFailed))
		e.logger.Warn("broadcast send failed", "to", r.PhoneNumber, "error", err)
		e.record(ctx, message.OutboundRecord{
			PhoneNumber: r.PhoneNumber,
			Content:     body,
			Status:      message.StatusFailed,
			BroadcastID: broadcastID,
		})
		return RecipientResult{
			PhoneNumber: r.PhoneNumber,
			Status:      string(message.StatusFailed),
			Error:       err.Error(),
		}
	}

	e.metrics.ObserveSendLatency(string(message.StatusSent), time.Since(start).Seconds())
	e.metrics.ObserveOutbound("broadcast", string(message.StatusSent))
	e.record(ctx, message.OutboundRecord{
		PhoneNumber:       r.PhoneNumber,
		Content:           body,
		Status:            message.StatusSent,
		ProviderMessageID: res.ProviderMessageID,
		BroadcastID:       broadcastID,
	})
	return RecipientResult{PhoneNumber: r.PhoneNumber, Status: string(message.StatusSent)}
}

// record logs the attempt row. Row failures are non-fatal; the send's
// outcome stands either way.
func (e *Engine) record(ctx context.Context, rec message.OutboundRecord) {
	if _, err := e.messages.InsertOutbound(ctx, rec); err != nil {
		e.logger.Warn("outbound message row not recorded", "to", rec.PhoneNumber, "error", err)
	}
}

func (e *Engine) checkListsExist(ctx context.Context, include, exclude []uuid.UUID) error {
	ids := dedupeIDs(append(append([]uuid.UUID{}, include...), exclude...))
	if len(ids) == 0 {
		return nil
	}
	n, err := e.store.CountLists(ctx, ids)
	if err != nil {
		return err
	}
	if n != len(ids) {
		return ErrUnknownList
	}
	return nil
}

func validateDraft(draft string) error {
	if strings.TrimSpace(draft) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(draft) > maxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
