package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/sanctuaryhq/sanctuary/internal/broadcast"
	"github.com/sanctuaryhq/sanctuary/internal/notify"
	"github.com/sanctuaryhq/sanctuary/internal/subscriber"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

var broadcastTracer = otel.Tracer("sanctuary.internal.http.handlers.broadcast")

type broadcastEngine interface {
	Send(ctx context.Context, req broadcast.Request) (*broadcast.Summary, error)
	SendTest(ctx context.Context, phone string, req broadcast.Request) (*broadcast.Summary, error)
}

type reportSender interface {
	SendBroadcastReport(ctx context.Context, report notify.BroadcastReport) error
}

// BroadcastHandler exposes campaign fan-out to the admin dashboard.
type BroadcastHandler struct {
	engine  broadcastEngine
	reports reportSender
	logger  *logging.Logger
}

// NewBroadcastHandler creates the broadcast API handler.
func NewBroadcastHandler(engine broadcastEngine, reports reportSender, logger *logging.Logger) *BroadcastHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &BroadcastHandler{engine: engine, reports: reports, logger: logger}
}

type broadcastRequest struct {
	Message        string   `json:"message"`
	CampaignName   string   `json:"campaignName"`
	ApprovedLinks  []string `json:"approvedLinks"`
	TargetAll      bool     `json:"targetAll"`
	TargetListIDs  []string `json:"targetListIds"`
	ExcludeListIDs []string `json:"excludeListIds"`

	// PhoneNumber is only read on the test route.
	PhoneNumber string `json:"phoneNumber"`
}

type broadcastResponse struct {
	Success       bool                        `json:"success"`
	BroadcastID   *uuid.UUID                  `json:"broadcastId,omitempty"`
	CampaignName  string                      `json:"campaignName"`
	SentTo        int                         `json:"sentTo"`
	Failed        int                         `json:"failed"`
	TotalCost     string                      `json:"totalCost"`
	SegmentCount  int                         `json:"segmentCount"`
	LinksTracked  int                         `json:"linksTracked"`
	TargetAll     bool                        `json:"targetAll"`
	TargetedLists int                         `json:"targetedLists"`
	Results       []broadcast.RecipientResult `json:"results,omitempty"`
	Errors        []string                    `json:"errors,omitempty"`
}

// Send handles POST /api/broadcast.
func (h *BroadcastHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx, span := broadcastTracer.Start(r.Context(), "BroadcastHandler.Send")
	defer span.End()

	req, errMsg := decodeBroadcastRequest(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	summary, err := h.engine.Send(ctx, *req)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}

	// Report email is advisory. The campaign already went out, so a
	// bounced report must not fail the request.
	if err := h.reports.SendBroadcastReport(ctx, notify.BroadcastReport{
		CampaignName: summary.CampaignName,
		SentTo:       summary.SentTo,
		Failed:       summary.Failed,
		TotalCost:    summary.TotalCost,
		SegmentCount: summary.SegmentCount,
		LinksTracked: summary.LinksTracked,
	}); err != nil {
		h.logger.Error("broadcast report email failed", "error", err, "campaign", summary.CampaignName)
	}

	writeJSON(w, http.StatusOK, summaryResponse(summary))
}

// SendTest handles POST /api/broadcast/test. Same request shape plus a
// phoneNumber, delivered to that one number with no audience resolution.
func (h *BroadcastHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	ctx, span := broadcastTracer.Start(r.Context(), "BroadcastHandler.SendTest")
	defer span.End()

	var body broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	phone, err := subscriber.NormalizePhone(body.PhoneNumber)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Valid phoneNumber is required")
		return
	}

	summary, err := h.engine.SendTest(ctx, phone, broadcast.Request{
		Message:       body.Message,
		CampaignName:  body.CampaignName,
		ApprovedLinks: body.ApprovedLinks,
	})
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse(summary))
}

func decodeBroadcastRequest(r *http.Request) (*broadcast.Request, string) {
	var body broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, "Invalid JSON body"
	}

	include, err := parseListIDs(body.TargetListIDs)
	if err != nil {
		return nil, "Invalid targetListIds"
	}
	exclude, err := parseListIDs(body.ExcludeListIDs)
	if err != nil {
		return nil, "Invalid excludeListIds"
	}

	return &broadcast.Request{
		Message:        body.Message,
		CampaignName:   body.CampaignName,
		ApprovedLinks:  body.ApprovedLinks,
		TargetAll:      body.TargetAll,
		TargetListIDs:  include,
		ExcludeListIDs: exclude,
	}, ""
}

func parseListIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (h *BroadcastHandler) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, broadcast.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "Message is required")
	case errors.Is(err, broadcast.ErrMessageTooLong):
		writeError(w, http.StatusBadRequest, "Message exceeds the 1600 character limit")
	case errors.Is(err, broadcast.ErrNoTargeting):
		writeError(w, http.StatusBadRequest, "Select target lists, exclusions, or all subscribers")
	case errors.Is(err, broadcast.ErrUnknownList):
		writeError(w, http.StatusBadRequest, "One or more target lists do not exist")
	case errors.Is(err, broadcast.ErrEmptyAudience):
		writeError(w, http.StatusBadRequest, "No active subscribers match the selected targeting")
	case errors.Is(err, broadcast.ErrNoRecipient):
		writeError(w, http.StatusBadRequest, "Valid phoneNumber is required")
	case errors.Is(err, broadcast.ErrNoGateway):
		writeError(w, http.StatusServiceUnavailable, "SMS sending is not configured")
	default:
		h.logger.Error("broadcast failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Broadcast failed")
	}
}

func summaryResponse(s *broadcast.Summary) broadcastResponse {
	return broadcastResponse{
		Success:       true,
		BroadcastID:   s.BroadcastID,
		CampaignName:  s.CampaignName,
		SentTo:        s.SentTo,
		Failed:        s.Failed,
		TotalCost:     fmt.Sprintf("%.2f", s.TotalCost),
		SegmentCount:  s.SegmentCount,
		LinksTracked:  s.LinksTracked,
		TargetAll:     s.TargetAll,
		TargetedLists: s.TargetedListCount,
		Results:       s.Results,
		Errors:        s.Errors,
	}
}
