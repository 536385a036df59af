package ticket_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cloudtickets/internal/auth"
	"cloudtickets/internal/logger"
	"cloudtickets/internal/models"
	tickets "cloudtickets/internal/tickets/service"
	"cloudtickets/internal/utils"
)

type Handler struct {
	TicketService *tickets.TicketService
	Logger        *logger.Logger
}

func NewHandler(ticketService *tickets.TicketService, log *logger.Logger) *Handler {
	return &Handler{TicketService: ticketService, Logger: log}
}

// ListMyTickets returns the caller's tickets with event and type names.
func (h *Handler) ListMyTickets(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())

	views, err := h.TicketService.ListMyTickets(r.Context(), principal.UserID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListMyTickets: user %s: %v", principal.UserID, err))
		utils.WriteError(w, http.StatusInternalServerError, models.CodeServerError)
		return
	}
	if views == nil {
		views = []models.TicketView{}
	}
	utils.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	ticketID, ok := ticketIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.TicketService.GetTicket(r.Context(), principal, ticketID)
	if err != nil {
		h.writeError(w, "GetTicket", ticketID, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, view)
}

// QRCode renders the stored credential payload as a PNG.
func (h *Handler) QRCode(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	ticketID, ok := ticketIDParam(w, r)
	if !ok {
		return
	}

	png, err := h.TicketService.QRCode(r.Context(), principal, ticketID)
	if err != nil {
		h.writeError(w, "QRCode", ticketID, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// AssignNFC binds a physical NFC token to a ticket. Body: {"nfc_uid": "..."}.
func (h *Handler) AssignNFC(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := ticketIDParam(w, r)
	if !ok {
		return
	}

	var req models.AssignNFCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, models.CodeNoNFCUID)
		return
	}

	ticket, err := h.TicketService.AssignNFC(r.Context(), ticketID, req.NFCUID)
	if err != nil {
		h.writeError(w, "AssignNFC", ticketID, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, ticket)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, ticketID int64, err error) {
	se := utils.WriteServiceError(w, err)
	if se.StatusCode >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: ticket %d: %s", op, ticketID, se.InternalError))
	}
}

func ticketIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "ticketId"), 10, 64)
	if err != nil || id <= 0 {
		utils.WriteError(w, http.StatusNotFound, models.CodeNotFound)
		return 0, false
	}
	return id, true
}
