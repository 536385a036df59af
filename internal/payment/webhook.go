package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/uptrace/bun"

	"cloudtickets/internal/config"
	"cloudtickets/internal/logger"
	"cloudtickets/internal/metrics"
	"cloudtickets/internal/models"
)

// OrderLedger is the part of the order service the reconciler drives.
type OrderLedger interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error
	LockByReference(ctx context.Context, tx bun.IDB, reference string) (*models.Order, error)
	RecordPaymentStatus(ctx context.Context, tx bun.IDB, order *models.Order, txn models.ProviderTransaction) error
	MarkPaid(ctx context.Context, tx bun.IDB, order *models.Order) (models.MarkPaidResult, error)
	Items(ctx context.Context, tx bun.IDB, orderID int64) ([]models.OrderItem, error)
}

type TicketIssuer interface {
	IssueTickets(ctx context.Context, tx bun.IDB, order *models.Order, items []models.OrderItem) ([]models.Ticket, error)
}

// Outbox stages the TicketsIssued event in the same transaction as the tickets,
// so the event is relayed if and only if the payment commits.
type Outbox interface {
	StageTicketsIssued(ctx context.Context, tx bun.Tx, event models.TicketsIssued) error
}

// UpdatePublisher pushes committed order changes to live payment-result pages.
type UpdatePublisher interface {
	PublishOrderUpdate(update models.OrderUpdate)
}

// WebhookService reconciles provider webhook deliveries with local order state.
type WebhookService struct {
	Orders         OrderLedger
	Tickets        TicketIssuer
	Outbox         Outbox
	Updates        UpdatePublisher
	EventsSecret   string
	ApprovedStatus string
	Logger         *logger.Logger
	Metrics        *metrics.Metrics
}

func NewWebhookService(orders OrderLedger, tickets TicketIssuer, outbox Outbox, cfg config.PaymentConfig, log *logger.Logger, m *metrics.Metrics) (*WebhookService, error) {
	if cfg.EventsSecret == "" {
		return nil, errors.New("payment: events secret is not configured")
	}
	approved := cfg.ApprovedStatus
	if approved == "" {
		approved = "APPROVED"
	}
	return &WebhookService{
		Orders:         orders,
		Tickets:        tickets,
		Outbox:         outbox,
		EventsSecret:   cfg.EventsSecret,
		ApprovedStatus: approved,
		Logger:         log,
		Metrics:        m,
	}, nil
}

// HandleWebhook verifies the raw envelope and applies it. Errors are *models.ServiceError.
func (s *WebhookService) HandleWebhook(ctx context.Context, raw []byte) (*models.WebhookResult, error) {
	var env models.WebhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.Metrics.Webhook("invalid_body")
		return nil, &models.ServiceError{
			Category:      models.CategoryValidation,
			StatusCode:    http.StatusBadRequest,
			Code:          models.CodeInvalidWebhookBody,
			InternalError: fmt.Sprintf("failed to parse webhook payload: %v", err),
			OriginalErr:   err,
		}
	}
	txn := env.Data.Transaction
	if txn == nil || env.Signature.Checksum == "" {
		s.Metrics.Webhook("invalid_body")
		return nil, models.NewValidationError(models.CodeInvalidWebhookBody, "webhook has no transaction or checksum")
	}

	ok, err := VerifyChecksum(raw, s.EventsSecret, env.Signature.Checksum)
	if err != nil {
		s.Metrics.Webhook("invalid_signature")
		s.Logger.LogSecurity("WEBHOOK_SIGNATURE_DATA", fmt.Sprintf("reference=%s: %v", txn.Reference, err))
		return nil, models.NewValidationError(models.CodeInvalidSignatureData, err.Error())
	}
	if !ok {
		s.Metrics.Webhook("invalid_signature")
		s.Logger.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("checksum mismatch for reference=%s", txn.Reference))
		return nil, models.NewIntegrityError(models.CodeInvalidSignature, http.StatusUnauthorized, "webhook checksum mismatch")
	}

	if txn.Reference == "" {
		s.Metrics.Webhook("invalid_body")
		return nil, models.NewValidationError(models.CodeMissingReference, "transaction has no reference")
	}

	var (
		result *models.WebhookResult
		order  *models.Order
		issued []models.Ticket
	)

	err = s.Orders.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		order, err = s.Orders.LockByReference(ctx, tx, txn.Reference)
		if errors.Is(err, models.ErrNotFound) {
			return models.NewNotFoundError(models.CodeOrderNotFound, fmt.Sprintf("no order for reference %s", txn.Reference))
		}
		if err != nil {
			return fmt.Errorf("lock order %s: %w", txn.Reference, err)
		}

		if err := s.Orders.RecordPaymentStatus(ctx, tx, order, *txn); err != nil {
			return err
		}

		if txn.Status != s.ApprovedStatus {
			result = &models.WebhookResult{OK: true, Status: txn.Status, OrderID: order.ID}
			return nil
		}

		paid, err := s.Orders.MarkPaid(ctx, tx, order)
		if err != nil {
			return err
		}
		if paid.AlreadyPaid {
			result = &models.WebhookResult{OK: true, AlreadyPaid: true, OrderID: order.ID}
			return nil
		}

		items, err := s.Orders.Items(ctx, tx, order.ID)
		if err != nil {
			return fmt.Errorf("load items of order %d: %w", order.ID, err)
		}

		issued, err = s.Tickets.IssueTickets(ctx, tx, order, items)
		if err != nil {
			return err
		}
		if err := s.stageDelivery(ctx, tx, order, issued); err != nil {
			return err
		}

		result = &models.WebhookResult{OK: true, CreatedTickets: len(issued), OrderID: order.ID}
		return nil
	})
	if err != nil {
		var se *models.ServiceError
		if errors.As(err, &se) {
			if se.Code == models.CodeOrderNotFound {
				s.Metrics.Webhook("not_found")
			} else {
				s.Metrics.Webhook("rejected")
			}
			s.Logger.Warn("WEBHOOK", fmt.Sprintf("%s: %s", txn.Reference, se.InternalError))
			return nil, se
		}
		s.Metrics.Webhook("error")
		s.Logger.Error("WEBHOOK", fmt.Sprintf("%s: transaction rolled back: %v", txn.Reference, err))
		return nil, models.NewInternalError(models.CodeDBError, err, "reconcile %s", txn.Reference)
	}

	switch {
	case result.AlreadyPaid:
		s.Metrics.Webhook("already_paid")
		s.Logger.LogWebhook(txn.Reference, "already paid, no tickets issued")
	case txn.Status != s.ApprovedStatus:
		s.Metrics.Webhook("not_approved")
		s.Logger.LogWebhook(txn.Reference, fmt.Sprintf("status %s recorded", txn.Status))
		s.publish(order, 0)
	default:
		s.Metrics.Webhook("paid")
		s.Logger.LogWebhook(txn.Reference, fmt.Sprintf("paid, %d tickets issued", len(issued)))
		s.publish(order, len(issued))
	}

	return result, nil
}

func (s *WebhookService) publish(order *models.Order, created int) {
	if s.Updates == nil {
		return
	}
	s.Updates.PublishOrderUpdate(models.OrderUpdate{
		OrderID:        order.ID,
		Reference:      order.PaymentReference,
		Status:         order.Status,
		PaymentStatus:  order.PaymentStatus,
		CreatedTickets: created,
	})
}

func (s *WebhookService) stageDelivery(ctx context.Context, tx bun.Tx, order *models.Order, issued []models.Ticket) error {
	if s.Outbox == nil || len(issued) == 0 {
		return nil
	}
	event := models.TicketsIssued{
		OrderID:          order.ID,
		PaymentReference: order.PaymentReference,
		BuyerEmail:       order.BuyerEmail,
		BuyerName:        order.BuyerName,
		Timestamp:        time.Now().Unix(),
	}
	for _, t := range issued {
		event.TicketIDs = append(event.TicketIDs, t.ID)
		event.UniqueCodes = append(event.UniqueCodes, t.UniqueCode)
	}
	if err := s.Outbox.StageTicketsIssued(ctx, tx, event); err != nil {
		return fmt.Errorf("stage delivery of order %d: %w", order.ID, err)
	}
	return nil
}
