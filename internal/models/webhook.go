package models

// WebhookEnvelope is the provider's signed event body. The checksum is verified
// against the raw bytes, this struct only carries the fields the reconciler reads.
type WebhookEnvelope struct {
	Event     string           `json:"event"`
	Data      WebhookData      `json:"data"`
	Signature WebhookSignature `json:"signature"`
	SentAt    string           `json:"sent_at,omitempty"`
}

type WebhookData struct {
	Transaction *ProviderTransaction `json:"transaction"`
}

type WebhookSignature struct {
	Properties []string `json:"properties"`
	Checksum   string   `json:"checksum"`
}

type ProviderTransaction struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Reference     string `json:"reference"`
	AmountInCents int64  `json:"amount_in_cents"`
	Currency      string `json:"currency"`
}

// WebhookResult is the 200 body for every processed delivery.
type WebhookResult struct {
	OK             bool   `json:"ok"`
	Status         string `json:"status,omitempty"`
	AlreadyPaid    bool   `json:"alreadyPaid,omitempty"`
	CreatedTickets int    `json:"createdTickets,omitempty"`

	OrderID int64 `json:"-"`
}

// TicketsIssued is staged in the outbox by the transaction that marks an order paid.
type TicketsIssued struct {
	OrderID          int64    `json:"orderId"`
	PaymentReference string   `json:"paymentReference"`
	BuyerEmail       string   `json:"buyerEmail"`
	BuyerName        string   `json:"buyerName"`
	TicketIDs        []int64  `json:"ticketIds"`
	UniqueCodes      []string `json:"uniqueCodes"`
	Timestamp        int64    `json:"timestamp"`
}

// OrderUpdate is pushed to payment-result page subscribers after a webhook commits.
type OrderUpdate struct {
	OrderID        int64  `json:"orderId"`
	Reference      string `json:"reference"`
	Status         string `json:"status"`
	PaymentStatus  string `json:"paymentStatus,omitempty"`
	CreatedTickets int    `json:"createdTickets,omitempty"`
}
