package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

const (
	OrderStatusPending = "PENDING"
	OrderStatusPaid    = "PAID"
)

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID                    int64      `bun:"id,pk,autoincrement" json:"id"`
	UserID                string     `bun:"user_id,notnull" json:"userId"`
	Status                string     `bun:"status,notnull" json:"status"`
	TotalCents            int64      `bun:"total_cents,notnull" json:"totalCents"`
	TotalPesos            int64      `bun:"total_pesos,notnull" json:"totalPesos"`
	PaymentProvider       string     `bun:"payment_provider,notnull" json:"paymentProvider"`
	PaymentReference      string     `bun:"payment_reference,notnull,unique" json:"paymentReference"`
	PaymentStatus         string     `bun:"payment_status,nullzero" json:"paymentStatus,omitempty"`
	ProviderTransactionID string     `bun:"provider_transaction_id,nullzero" json:"providerTransactionId,omitempty"`
	PaymentAmountCents    int64      `bun:"payment_amount_cents,nullzero" json:"paymentAmountCents,omitempty"`
	PaymentCurrency       string     `bun:"payment_currency,nullzero" json:"paymentCurrency,omitempty"`
	BuyerName             string     `bun:"buyer_name,notnull" json:"buyerName"`
	BuyerEmail            string     `bun:"buyer_email,notnull" json:"buyerEmail"`
	BuyerPhone            string     `bun:"buyer_phone,nullzero" json:"buyerPhone,omitempty"`
	BuyerNationalID       string     `bun:"buyer_national_id,nullzero" json:"buyerNationalId,omitempty"`
	PaidAt                *time.Time `bun:"paid_at" json:"paidAt,omitempty"`
	CreatedAt             time.Time  `bun:"created_at,notnull" json:"createdAt"`
}

// OrderItem carries no price. Totals are computed from the ticket type at checkout.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID           int64 `bun:"id,pk,autoincrement" json:"id"`
	OrderID      int64 `bun:"order_id,notnull" json:"orderId"`
	TicketTypeID int64 `bun:"ticket_type_id,notnull" json:"ticketTypeId"`
	Quantity     int   `bun:"quantity,notnull" json:"quantity"`
}

// Buyer is the contact snapshot captured at checkout.
type Buyer struct {
	Name       string `json:"name" validate:"required,max=200"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,max=40"`
	NationalID string `json:"cc,omitempty" validate:"omitempty,max=40"`
}

// LineItem keeps Quantity as the raw JSON number so a fractional count reaches
// checkout validation instead of failing the decode.
type LineItem struct {
	TicketTypeID int64       `json:"ticketTypeId"`
	Quantity     json.Number `json:"quantity"`
}

type CheckoutRequest struct {
	Customer Buyer      `json:"customer"`
	Items    []LineItem `json:"items"`
}

// CheckoutParams are the values the storefront needs to redirect the buyer to the provider.
type CheckoutParams struct {
	PublicKey     string `json:"publicKey"`
	Currency      string `json:"currency"`
	AmountInCents int64  `json:"amountInCents"`
	Reference     string `json:"reference"`
	Signature     string `json:"signature"`
	RedirectURL   string `json:"redirectUrl"`
}

type CheckoutResponse struct {
	OrderID  int64          `json:"orderId"`
	Checkout CheckoutParams `json:"checkout"`
}

// MarkPaidResult reports whether the order was already PAID before the call.
type MarkPaidResult struct {
	AlreadyPaid bool
}
