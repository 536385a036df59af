package order_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"cloudtickets/internal/auth"
	"cloudtickets/internal/logger"
	"cloudtickets/internal/models"
	"cloudtickets/internal/order"
	"cloudtickets/internal/sse"
	tickets "cloudtickets/internal/tickets/service"
	"cloudtickets/internal/utils"
)

const heartbeatInterval = 15 * time.Second

type Handler struct {
	OrderService  *order.OrderService
	TicketService *tickets.TicketService
	Events        *sse.PaymentEvents
	Logger        *logger.Logger
}

func NewHandler(orderService *order.OrderService, ticketService *tickets.TicketService, events *sse.PaymentEvents, log *logger.Logger) *Handler {
	return &Handler{
		OrderService:  orderService,
		TicketService: ticketService,
		Events:        events,
		Logger:        log,
	}
}

// OrderTickets is the payment-result page body once the order is paid.
type OrderTickets struct {
	Order   *models.Order   `json:"order"`
	Tickets []models.Ticket `json:"tickets"`
}

// PendingOrder is returned with 202 while the provider has not confirmed payment.
type PendingOrder struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
}

// StartCheckout creates a PENDING order and returns the provider checkout parameters.
func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	h.Logger.Info("API", fmt.Sprintf("StartCheckout: user=%s", principal.UserID))

	var req models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("StartCheckout: failed to decode request body: %v", err))
		utils.WriteError(w, http.StatusBadRequest, models.CodeValidation)
		return
	}

	created, err := h.OrderService.CreateOrder(r.Context(), principal.UserID, req)
	if err != nil {
		se := utils.WriteServiceError(w, err)
		h.Logger.Error("API", fmt.Sprintf("StartCheckout: %s: %s", se.Code, se.InternalError))
		return
	}

	// the order stays PENDING even when the provider is not configured
	params, err := h.OrderService.CheckoutParams(created)
	if err != nil {
		se := utils.WriteServiceError(w, err)
		h.Logger.Error("API", fmt.Sprintf("StartCheckout: order %d created but %s", created.ID, se.InternalError))
		return
	}

	utils.WriteJSON(w, http.StatusOK, models.CheckoutResponse{OrderID: created.ID, Checkout: *params})
	h.Logger.Info("API", fmt.Sprintf("StartCheckout: order %d reference %s", created.ID, created.PaymentReference))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())

	orders, err := h.OrderService.ListOrders(r.Context(), principal.UserID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListOrders: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, models.CodeServerError)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	utils.WriteJSON(w, http.StatusOK, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderId"), 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, models.CodeNotFound)
		return
	}

	found, err := h.OrderService.GetOrder(r.Context(), orderID)
	if err == nil && !principal.IsStaff() && found.UserID != principal.UserID {
		err = models.ErrNotFound
	}
	if err != nil {
		se := utils.WriteServiceError(w, err)
		h.Logger.Debug("API", fmt.Sprintf("GetOrder: order %d: %s", orderID, se.Code))
		return
	}
	utils.WriteJSON(w, http.StatusOK, found)
}

// GetOrderByReference serves GET /api/orders/by-reference?ref=
func (h *Handler) GetOrderByReference(w http.ResponseWriter, r *http.Request) {
	found, ok := h.lookupReference(w, r)
	if !ok {
		return
	}
	utils.WriteJSON(w, http.StatusOK, found)
}

// GetOrderTicketsByReference answers 202 until the webhook has marked the order PAID.
func (h *Handler) GetOrderTicketsByReference(w http.ResponseWriter, r *http.Request) {
	found, ok := h.lookupReference(w, r)
	if !ok {
		return
	}

	if found.Status != models.OrderStatusPaid {
		utils.WriteJSON(w, http.StatusAccepted, PendingOrder{Status: found.Status, PaymentStatus: found.PaymentStatus})
		return
	}

	issued, err := h.TicketService.ListOrderTickets(r.Context(), found.ID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrderTicketsByReference: order %d: %v", found.ID, err))
		utils.WriteError(w, http.StatusInternalServerError, models.CodeServerError)
		return
	}
	if issued == nil {
		issued = []models.Ticket{}
	}
	utils.WriteJSON(w, http.StatusOK, OrderTickets{Order: found, Tickets: issued})
}

// StreamPaymentStatus serves GET /api/orders/by-reference/events?ref= as
// Server-Sent Events: the current status first, then every committed webhook
// update until the order is PAID or the client goes away.
func (h *Handler) StreamPaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// subscribe before reading so an update committed in between is not lost
	updates := h.Events.Subscribe(ctx, strings.TrimSpace(r.URL.Query().Get("ref")))

	found, ok := h.lookupReference(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	// the stream outlives the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	current := models.OrderUpdate{
		OrderID:       found.ID,
		Reference:     found.PaymentReference,
		Status:        found.Status,
		PaymentStatus: found.PaymentStatus,
	}
	if err := h.writeEvent(rc, w, current); err != nil || found.Status == models.OrderStatusPaid {
		return
	}
	h.Logger.Debug("SSE", fmt.Sprintf("Client waiting on payment of %s", found.PaymentReference))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := h.writeEvent(rc, w, update); err != nil || update.Status == models.OrderStatusPaid {
				return
			}
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client left payment stream of %s", found.PaymentReference))
			return
		}
	}
}

func (h *Handler) writeEvent(rc *http.ResponseController, w http.ResponseWriter, update models.OrderUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: payment\ndata: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")
}

func (h *Handler) lookupReference(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	principal, _ := auth.PrincipalFrom(r.Context())
	ref := strings.TrimSpace(r.URL.Query().Get("ref"))
	if ref == "" {
		utils.WriteError(w, http.StatusBadRequest, models.CodeMissingReference)
		return nil, false
	}

	found, err := h.OrderService.GetOrderByReference(r.Context(), principal, ref)
	if err != nil {
		se := utils.WriteServiceError(w, err)
		if se.StatusCode >= http.StatusInternalServerError {
			h.Logger.Error("API", fmt.Sprintf("lookup %s: %s", ref, se.InternalError))
		}
		return nil, false
	}
	return found, true
}
