package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/rulescraft/cursorrulescraft/internal/webhook"
)

// maxWebhookBody caps the webhook payload size. Identity-provider user
// snapshots are a few KB; anything near the limit is not a real delivery.
const maxWebhookBody = 1 << 20

// EventProcessor applies a verified webhook event. Satisfied by
// service.UserSyncService.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, ev *webhook.Event) error
}

// WebhookHandler receives identity-provider deliveries.
type WebhookHandler struct {
	verifier  *webhook.Verifier
	processor EventProcessor
	logger    *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(verifier *webhook.Verifier, processor EventProcessor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, processor: processor, logger: logger}
}

// HandleDelivery verifies and processes one delivery.
//
// HTTP: POST /api/webhooks
//
// Two-phase response policy: verification failures are 400 (a forged or
// corrupted request deserves rejection), but once the delivery is
// authenticated the response is 200 no matter what processing does.
// Failing the response on a processing error would make the provider
// redeliver forever against a deterministic failure; the error is logged
// for operators instead.
func (h *WebhookHandler) HandleDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_payload",
			Message: "could not read request body",
		})
		return
	}

	ev, err := h.verifier.Verify(r.Header, body)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warn("webhook signature verification failed",
				slog.String("remoteAddr", r.RemoteAddr),
			)
		} else {
			h.logger.Warn("webhook payload rejected", slog.String("error", err.Error()))
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_webhook",
			Message: "webhook verification failed",
		})
		return
	}

	if err := h.processor.ProcessEvent(r.Context(), ev); err != nil {
		h.logger.Error("webhook event processing failed",
			slog.String("deliveryID", ev.DeliveryID),
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
