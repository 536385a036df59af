package payment_api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"cloudtickets/internal/logger"
	"cloudtickets/internal/models"
	"cloudtickets/internal/utils"
)

type WebhookHandler interface {
	HandleWebhook(ctx context.Context, raw []byte) (*models.WebhookResult, error)
}

type Handler struct {
	Webhooks WebhookHandler
	Logger   *logger.Logger
	MaxBytes int64
}

// ProviderWebhook receives the provider's signed event. The body is read as raw
// bytes because the checksum is computed over the provider's field values, not a
// re-serialized object.
func (h *Handler) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "ProviderWebhook: received webhook event")

	maxBytes := h.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ProviderWebhook: failed to read body: %v", err))
		utils.WriteError(w, http.StatusBadRequest, models.CodeInvalidWebhookBody)
		return
	}

	result, err := h.Webhooks.HandleWebhook(r.Context(), raw)
	if err != nil {
		se := utils.WriteServiceError(w, err)
		h.Logger.Info("API", fmt.Sprintf("ProviderWebhook: category=%s status=%d code=%s", se.Category, se.StatusCode, se.Code))
		return
	}

	utils.WriteJSON(w, http.StatusOK, result)
}
