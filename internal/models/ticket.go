package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	TicketStatusActive   = "ACTIVE"
	TicketStatusUsed     = "USED"
	TicketStatusInactive = "INACTIVE"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets,alias:t"`

	ID               int64      `bun:"id,pk,autoincrement" json:"id"`
	OrderID          int64      `bun:"order_id,notnull" json:"orderId"`
	TicketTypeID     int64      `bun:"ticket_type_id,notnull" json:"ticketTypeId"`
	EventID          int64      `bun:"event_id,notnull" json:"eventId"`
	UniqueCode       string     `bun:"unique_code,notnull,unique" json:"uniqueCode"`
	QRPayload        string     `bun:"qr_payload,notnull" json:"qrPayload"`
	Status           string     `bun:"status,notnull" json:"status"`
	HolderName       string     `bun:"holder_name,nullzero" json:"holderName,omitempty"`
	HolderEmail      string     `bun:"holder_email,nullzero" json:"holderEmail,omitempty"`
	HolderPhone      string     `bun:"holder_phone,nullzero" json:"holderPhone,omitempty"`
	HolderNationalID string     `bun:"holder_national_id,nullzero" json:"holderNationalId,omitempty"`
	OwnerUserID      string     `bun:"owner_user_id,nullzero" json:"ownerUserId,omitempty"`
	NFCUID           string     `bun:"nfc_uid,nullzero" json:"nfcUid,omitempty"`
	UsedAt           *time.Time `bun:"used_at" json:"usedAt,omitempty"`
	CreatedAt        time.Time  `bun:"created_at,notnull" json:"createdAt"`
}

// TicketView is a ticket joined with its type and event names for holder-facing reads.
type TicketView struct {
	Ticket `bun:",extend"`

	TicketTypeName string `bun:"ticket_type_name,scanonly" json:"ticketTypeName"`
	EventName      string `bun:"event_name,scanonly" json:"eventName"`
}

type AssignNFCRequest struct {
	NFCUID string `json:"nfc_uid"`
}
