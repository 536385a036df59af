package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cloudtickets/internal/auth"
	"cloudtickets/internal/checkin/checkin_api"
	"cloudtickets/internal/logger"
	"cloudtickets/internal/metrics"
	"cloudtickets/internal/models"
	"cloudtickets/internal/order/order_api"
	"cloudtickets/internal/payment/payment_api"
	"cloudtickets/internal/tickets/ticket_api"
	"cloudtickets/internal/utils"
)

type routes struct {
	Orders   *order_api.Handler
	Tickets  *ticket_api.Handler
	Payments *payment_api.Handler
	Checkin  *checkin_api.Handler
	Users    auth.TokenVerifier
	Devices  auth.DeviceStore
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
}

func newRouter(rt routes) http.Handler {
	log := rt.Logger
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log, rt.Metrics))

	// --- Public Routes ---
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Method(http.MethodGet, "/metrics", rt.Metrics.Handler())

	r.Post("/api/payments/wompi/webhook", rt.Payments.ProviderWebhook)
	log.Info("ROUTER", "Provider webhook registered at /api/payments/wompi/webhook")

	// --- Device Routes ---
	r.With(auth.DeviceMiddleware(rt.Devices, log)).Post("/api/validate-ticket", rt.Checkin.ValidateTicket)
	log.Info("ROUTER", "Ticket validation registered at /api/validate-ticket")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(rt.Users, log))

		r.With(auth.RequireRoles(models.RoleClient, models.RoleAdmin)).Post("/api/checkout/start", rt.Orders.StartCheckout)

		r.Route("/api/orders", func(r chi.Router) {
			r.Get("/", rt.Orders.ListOrders)
			r.Get("/by-reference", rt.Orders.GetOrderByReference)
			r.Get("/by-reference/tickets", rt.Orders.GetOrderTicketsByReference)
			r.Get("/by-reference/events", rt.Orders.StreamPaymentStatus)
			r.Get("/{orderId}", rt.Orders.GetOrder)
		})
		log.Info("ROUTER", "Order routes registered under /api/orders")

		r.Route("/api/tickets", func(r chi.Router) {
			r.Get("/my", rt.Tickets.ListMyTickets)
			r.Get("/{ticketId}", rt.Tickets.GetTicket)
			r.Get("/{ticketId}/qr.png", rt.Tickets.QRCode)
			r.With(auth.RequireRoles(models.RoleAdmin, models.RoleStaff)).Patch("/{ticketId}/assign-nfc", rt.Tickets.AssignNFC)
		})
		log.Info("ROUTER", "Ticket routes registered under /api/tickets")
	})

	return r
}

// requestLogger logs every request and records its latency by route pattern.
func requestLogger(log *logger.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			elapsed := time.Since(start)
			m.ObserveHTTP(r.Method, route, strconv.Itoa(status), elapsed)
			log.LogAPI(r.Method, r.URL.Path, strconv.Itoa(status), fmt.Sprintf("%dms", elapsed.Milliseconds()))
		})
	}
}
