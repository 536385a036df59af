package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/uptrace/bun"

	"cloudtickets/internal/config"
	"cloudtickets/internal/logger"
	"cloudtickets/internal/metrics"
	"cloudtickets/internal/models"
	"cloudtickets/internal/payment"
	"cloudtickets/internal/utils"
)

type DBLayer interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error
	GetTicketTypesByIDs(ctx context.Context, idb bun.IDB, ids []int64) ([]models.TicketType, error)
	InsertOrder(ctx context.Context, idb bun.IDB, order *models.Order) error
	InsertOrderItems(ctx context.Context, idb bun.IDB, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByReference(ctx context.Context, idb bun.IDB, reference string, lock bool) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	UpdatePaymentMirror(ctx context.Context, idb bun.IDB, orderID int64, provider string, txn models.ProviderTransaction) error
	SetPaid(ctx context.Context, idb bun.IDB, orderID int64, paidAt time.Time) (bool, error)
	CoalescePaidAt(ctx context.Context, idb bun.IDB, orderID int64, now time.Time) error
	GetOrderItems(ctx context.Context, idb bun.IDB, orderID int64) ([]models.OrderItem, error)
}

// OrderService owns order creation and the PENDING to PAID transition.
type OrderService struct {
	DB       DBLayer
	Payment  config.PaymentConfig
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
	validate *validator.Validate
	now      func() time.Time
}

func NewOrderService(db DBLayer, paymentCfg config.PaymentConfig, log *logger.Logger, m *metrics.Metrics) *OrderService {
	return &OrderService{
		DB:       db,
		Payment:  paymentCfg,
		Logger:   log,
		Metrics:  m,
		validate: validator.New(),
		now:      time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *OrderService) WithClock(now func() time.Time) *OrderService {
	s.now = now
	return s
}

// ---------------- CHECKOUT ----------------

// maxQuantity is the range of the order_items.quantity INT column.
const maxQuantity = math.MaxInt32

// CreateOrder validates the request, prices it from the stored ticket types and
// persists the PENDING order with its items in one transaction.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, req models.CheckoutRequest) (*models.Order, error) {
	buyer := req.Customer
	buyer.Name = strings.TrimSpace(buyer.Name)
	buyer.Email = strings.TrimSpace(buyer.Email)

	if err := s.validate.Struct(buyer); err != nil {
		return nil, models.NewValidationError(models.CodeValidation, fmt.Sprintf("invalid customer: %v", err))
	}
	if len(req.Items) == 0 {
		return nil, models.NewValidationError(models.CodeValidation, "checkout has no items")
	}

	var order *models.Order

	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		typeIDs := lo.Uniq(lo.Map(req.Items, func(it models.LineItem, _ int) int64 { return it.TicketTypeID }))

		types, err := s.DB.GetTicketTypesByIDs(ctx, tx, typeIDs)
		if err != nil {
			return fmt.Errorf("load ticket types: %w", err)
		}
		typeByID := lo.KeyBy(types, func(t models.TicketType) int64 { return t.ID })

		var totalCents, totalPesos int64
		items := make([]models.OrderItem, 0, len(req.Items))
		for _, it := range req.Items {
			ticketType, ok := typeByID[it.TicketTypeID]
			if !ok {
				return models.NewValidationError(models.CodeTicketTypeNotFound, fmt.Sprintf("ticket type %d not found", it.TicketTypeID))
			}
			qty, err := lineQuantity(it)
			if err != nil {
				return err
			}
			var centsOK, pesosOK bool
			totalCents, centsOK = addLineTotal(totalCents, ticketType.PriceCents, qty)
			totalPesos, pesosOK = addLineTotal(totalPesos, ticketType.PricePesos, qty)
			if !centsOK || !pesosOK {
				return models.NewValidationError(models.CodeInvalidQuantity, fmt.Sprintf("order total overflows at ticket type %d x %d", it.TicketTypeID, qty))
			}
			items = append(items, models.OrderItem{TicketTypeID: it.TicketTypeID, Quantity: qty})
		}

		now := s.now()
		order = &models.Order{
			UserID:             userID,
			Status:             models.OrderStatusPending,
			TotalCents:         totalCents,
			TotalPesos:         totalPesos,
			PaymentProvider:    s.Payment.Provider,
			PaymentReference:   utils.GeneratePaymentReference(s.Payment.ReferencePrefix, userID, now),
			PaymentStatus:      models.OrderStatusPending,
			PaymentAmountCents: totalCents,
			PaymentCurrency:    s.Payment.Currency,
			BuyerName:          buyer.Name,
			BuyerEmail:         buyer.Email,
			BuyerPhone:         buyer.Phone,
			BuyerNationalID:    buyer.NationalID,
			CreatedAt:          now,
		}
		if err := s.DB.InsertOrder(ctx, tx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := s.DB.InsertOrderItems(ctx, tx, items); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		return nil
	})
	if err != nil {
		var se *models.ServiceError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, models.NewInternalError(models.CodeServerError, err, "create order for user %s", userID)
	}

	s.Metrics.OrderCreated()
	s.Logger.LogOrder("CREATE", order.PaymentReference, fmt.Sprintf("order %d pending, %d cents", order.ID, order.TotalCents))
	return order, nil
}

// lineQuantity accepts whole numbers in 1..maxQuantity. Fractions and exponents
// are rejected rather than truncated.
func lineQuantity(it models.LineItem) (int, error) {
	n, err := it.Quantity.Int64()
	if err != nil || n <= 0 || n > maxQuantity {
		return 0, models.NewValidationError(models.CodeInvalidQuantity, fmt.Sprintf("quantity %q for ticket type %d", it.Quantity.String(), it.TicketTypeID))
	}
	return int(n), nil
}

// addLineTotal returns total + price*qty and false if that leaves the int64 range.
// Prices are non-negative (CHECK constraint) and so is total.
func addLineTotal(total, price int64, qty int) (int64, bool) {
	q := int64(qty)
	if price > 0 && q > (math.MaxInt64-total)/price {
		return 0, false
	}
	return total + price*q, true
}

// CheckoutParams returns what the storefront needs to send the buyer to the provider.
func (s *OrderService) CheckoutParams(order *models.Order) (*models.CheckoutParams, error) {
	if s.Payment.PublicKey == "" || s.Payment.IntegritySecret == "" || s.Payment.RedirectURL == "" {
		return nil, models.NewConfigurationError(models.CodeProviderEnvMissing, "payment provider public key, integrity secret or redirect url not configured")
	}
	return &models.CheckoutParams{
		PublicKey:     s.Payment.PublicKey,
		Currency:      s.Payment.Currency,
		AmountInCents: order.TotalCents,
		Reference:     order.PaymentReference,
		Signature:     payment.IntegritySignature(order.PaymentReference, order.TotalCents, s.Payment.Currency, s.Payment.IntegritySecret),
		RedirectURL:   s.Payment.RedirectURL,
	}, nil
}

// ---------------- PAYMENT TRANSITIONS ----------------

func (s *OrderService) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return s.DB.RunInTx(ctx, fn)
}

// LockByReference resolves the order for a payment reference and holds its row
// lock until tx ends.
func (s *OrderService) LockByReference(ctx context.Context, tx bun.IDB, reference string) (*models.Order, error) {
	return s.DB.GetOrderByReference(ctx, tx, reference, true)
}

// RecordPaymentStatus mirrors the provider transaction onto the order.
func (s *OrderService) RecordPaymentStatus(ctx context.Context, tx bun.IDB, order *models.Order, txn models.ProviderTransaction) error {
	if err := s.DB.UpdatePaymentMirror(ctx, tx, order.ID, s.Payment.Provider, txn); err != nil {
		return fmt.Errorf("update payment status of order %d: %w", order.ID, err)
	}
	order.PaymentStatus = txn.Status
	order.ProviderTransactionID = txn.ID
	return nil
}

// MarkPaid moves a PENDING order to PAID. Calling it again for a paid order
// changes nothing and reports AlreadyPaid.
func (s *OrderService) MarkPaid(ctx context.Context, tx bun.IDB, order *models.Order) (models.MarkPaidResult, error) {
	now := s.now()

	if order.Status == models.OrderStatusPaid {
		if err := s.DB.CoalescePaidAt(ctx, tx, order.ID, now); err != nil {
			return models.MarkPaidResult{AlreadyPaid: true}, fmt.Errorf("stamp paid_at of order %d: %w", order.ID, err)
		}
		return models.MarkPaidResult{AlreadyPaid: true}, nil
	}

	changed, err := s.DB.SetPaid(ctx, tx, order.ID, now)
	if err != nil {
		return models.MarkPaidResult{}, fmt.Errorf("mark order %d paid: %w", order.ID, err)
	}
	if !changed {
		// another delivery got there first
		return models.MarkPaidResult{AlreadyPaid: true}, nil
	}

	order.Status = models.OrderStatusPaid
	order.PaidAt = &now
	s.Logger.LogOrder("PAID", order.PaymentReference, fmt.Sprintf("order %d marked paid", order.ID))
	return models.MarkPaidResult{}, nil
}

// Items returns the stored line items of an order.
func (s *OrderService) Items(ctx context.Context, tx bun.IDB, orderID int64) ([]models.OrderItem, error) {
	return s.DB.GetOrderItems(ctx, tx, orderID)
}

// ---------------- READS ----------------

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.DB.GetOrderByID(ctx, id)
}

// GetOrderByReference hides orders of other users behind not found unless the caller is staff.
func (s *OrderService) GetOrderByReference(ctx context.Context, principal models.Principal, reference string) (*models.Order, error) {
	order, err := s.DB.GetOrderByReference(ctx, nil, reference, false)
	if err != nil {
		return nil, err
	}
	if !principal.IsStaff() && order.UserID != principal.UserID {
		return nil, models.ErrNotFound
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.DB.ListOrdersByUser(ctx, userID)
}
