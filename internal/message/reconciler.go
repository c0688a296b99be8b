package message

import (
	"context"
	"fmt"
	"strings"

	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

// StatusUpdate is one provider delivery callback.
type StatusUpdate struct {
	ProviderMessageID string
	ProviderStatus    string
	ErrorCode         string
	ErrorMessage      string
}

// CanonicalStatus maps a provider status string onto the message lifecycle.
// The second return is false for statuses outside the known vocabulary.
func CanonicalStatus(providerStatus string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "delivered":
		return StatusDelivered, true
	case "failed":
		return StatusFailed, true
	case "undelivered":
		return StatusUndelivered, true
	case "sent", "queued", "sending", "receiving", "accepted":
		return StatusSent, true
	default:
		return "", false
	}
}

type reconcilerStore interface {
	UpdateStatusByProviderID(ctx context.Context, providerID string, status Status) (bool, error)
}

// Reconciler applies delivery callbacks to the message log.
type Reconciler struct {
	store  reconcilerStore
	logger *logging.Logger
}

func NewReconciler(store *Store, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{store: store, logger: logger}
}

// Apply records the transition for the referenced message. A callback for
// an unknown provider id succeeds silently, and unknown status strings are
// logged and skipped rather than guessed at.
func (r *Reconciler) Apply(ctx context.Context, upd StatusUpdate) error {
	if strings.TrimSpace(upd.ProviderMessageID) == "" {
		r.logger.Warn("delivery callback without provider message id", "status", upd.ProviderStatus)
		return nil
	}

	status, ok := CanonicalStatus(upd.ProviderStatus)
	if !ok {
		r.logger.Warn("unknown provider delivery status",
			"provider_message_id", upd.ProviderMessageID,
			"status", upd.ProviderStatus)
		return nil
	}

	matched, err := r.store.UpdateStatusByProviderID(ctx, upd.ProviderMessageID, status)
	if err != nil {
		return fmt.Errorf("message: reconcile delivery: %w", err)
	}
	if !matched {
		r.logger.Debug("delivery callback for untracked message",
			"provider_message_id", upd.ProviderMessageID)
	}
	if upd.ErrorCode != "" || upd.ErrorMessage != "" {
		r.logger.Warn("provider reported delivery error",
			"provider_message_id", upd.ProviderMessageID,
			"status", upd.ProviderStatus,
			"error_code", upd.ErrorCode,
			"error_message", upd.ErrorMessage)
	}
	return nil
}
