package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

const (
	CheckinValid     = "VALID"
	CheckinInvalid   = "INVALID"
	CheckinDuplicate = "DUPLICATE"
)

// Check-in reason codes.
const (
	ReasonOK             = "OK"
	ReasonInvalidType    = "INVALID_TYPE"
	ReasonInvalidPayload = "INVALID_PAYLOAD"
	ReasonBadSignature   = "BAD_SIGNATURE"
	ReasonExpired        = "EXPIRED"
	ReasonNotFound       = "NOT_FOUND"
	ReasonAlreadyUsed    = "ALREADY_USED"
	ReasonInactive       = "INACTIVE"
	ReasonServerError    = "SERVER_ERROR"
)

// Checkin is an append-only audit row. TicketID is nil when the credential never resolved to a ticket.
type Checkin struct {
	bun.BaseModel `bun:"table:checkins,alias:c"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	TicketID   *int64    `bun:"ticket_id" json:"ticketId"`
	DeviceID   int64     `bun:"device_id,notnull" json:"deviceId"`
	Result     string    `bun:"result,notnull" json:"result"`
	Reason     string    `bun:"reason,notnull" json:"reason"`
	RawPayload string    `bun:"raw_payload,notnull" json:"rawPayload"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"createdAt"`
}

type ValidateRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// ValidationResult is the body returned to the scanning device.
type ValidationResult struct {
	Valid   bool       `json:"valid"`
	Reason  string     `json:"reason"`
	EventID int64      `json:"eventId,omitempty"`
	UsedAt  *time.Time `json:"usedAt,omitempty"`

	// StatusCode is the HTTP status the handler answers with.
	StatusCode int `json:"-"`
}
