package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/prospecthq/prospect-api/internal/api/shared"
	"github.com/prospecthq/prospect-api/internal/platform/logger"
	"github.com/prospecthq/prospect-api/internal/store"
	"github.com/prospecthq/prospect-api/internal/webhook"
)

// maxWebhookBodyBytes caps inbound notification bodies.
const maxWebhookBodyBytes = 1 << 20

// Finalizer applies terminal transitions for a run.
type Finalizer interface {
	CompleteFromRun(ctx context.Context, companyID uuid.UUID, runID string) error
	FailRun(ctx context.Context, companyID uuid.UUID, runID string, reason string) error
}

// WebhookHandler receives run status notifications from the processor,
// verifies their signatures and finalizes the affected company.
type WebhookHandler struct {
	verifier  *webhook.Verifier
	finalizer Finalizer
	logger    *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(verifier *webhook.Verifier, finalizer Finalizer, logger *slog.Logger) *WebhookHandler {
	if verifier == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("verifier cannot be nil for WebhookHandler")
	}
	if finalizer == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("finalizer cannot be nil for WebhookHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for WebhookHandler")
	}

	return &WebhookHandler{
		verifier:  verifier,
		finalizer: finalizer,
		logger:    logger.With(slog.String("component", "webhook_handler")),
	}
}

// HandleNotification handles POST /api/webhooks/parallel.
//
// The raw body is read before any decoding because the signature covers the
// exact bytes on the wire. Notifications that are authentic but not
// actionable (unknown event types, unknown company IDs, non-terminal
// statuses) are acknowledged with 200 so the processor does not redeliver
// them; a failed finalization returns 500 so it does.
func (h *WebhookHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Failed to read request body")
		return
	}

	err = h.verifier.Verify(body,
		r.Header.Get(webhook.HeaderDeliveryID),
		r.Header.Get(webhook.HeaderTimestamp),
		r.Header.Get(webhook.HeaderSignature))
	if err != nil {
		log.Warn("webhook signature verification failed",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr))
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid signature")
		return
	}

	event, err := webhook.ParseEvent(body)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid event payload")
		return
	}

	if event.Type != webhook.EventTypeRunStatus {
		log.Debug("ignoring webhook event type", slog.String("type", event.Type))
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	companyID, err := uuid.Parse(event.Data.CompanyID())
	if err != nil {
		log.Warn("webhook event has no usable company ID",
			slog.String("run_id", event.Data.RunID),
			slog.String("company_id", event.Data.CompanyID()))
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	log.Info("webhook run status received",
		slog.String("company_id", companyID.String()),
		slog.String("run_id", event.Data.RunID),
		slog.String("status", event.Data.Status))

	switch event.Data.Status {
	case "completed":
		err = h.finalizer.CompleteFromRun(r.Context(), companyID, event.Data.RunID)
	case "failed":
		err = h.finalizer.FailRun(r.Context(), companyID, event.Data.RunID, event.Data.ErrorMessage())
	default:
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "acknowledged"})
		return
	}

	if err != nil {
		if errors.Is(err, store.ErrCompanyNotFound) {
			// The row was deleted after dispatch; nothing to converge.
			log.Warn("webhook for unknown company acknowledged",
				slog.String("company_id", companyID.String()))
			shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to process notification", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "processed"})
}
