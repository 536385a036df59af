package checkin_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"cloudtickets/internal/auth"
	"cloudtickets/internal/logger"
	"cloudtickets/internal/models"
	"cloudtickets/internal/utils"
)

type TicketValidator interface {
	Validate(ctx context.Context, device *models.Device, raw []byte) models.ValidationResult
}

type Handler struct {
	Validator TicketValidator
	Logger    *logger.Logger
}

// ValidateTicket redeems the payload a device read from a QR code or NFC tag.
// Body: {"payload": {...}} or {"payload": "<serialized payload>"}.
func (h *Handler) ValidateTicket(w http.ResponseWriter, r *http.Request) {
	device, ok := auth.DeviceFrom(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, models.CodeNoAPIKey)
		return
	}

	var req models.ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Payload) == 0 || string(req.Payload) == "null" {
		h.Logger.Warn("API", fmt.Sprintf("ValidateTicket: device %d sent no payload", device.ID))
		utils.WriteJSON(w, http.StatusBadRequest, models.ValidationResult{Reason: models.ReasonInvalidType})
		return
	}

	result := h.Validator.Validate(r.Context(), device, req.Payload)
	utils.WriteJSON(w, result.StatusCode, result)
}
