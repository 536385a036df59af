package credential

import (
	"bytes"
	"encoding/json"
	"errors"

	"cloudtickets/internal/models"
)

var (
	ErrInvalidType    = errors.New("credential: payload is not a ticket")
	ErrInvalidPayload = errors.New("credential: payload is missing required fields")
)

// Holder is the unsigned part of a ticket payload.
type Holder struct {
	Name  string
	Email string
	Phone string
}

// NewPayload signs a fresh ticket payload.
func (s *Signer) NewPayload(ticketID string, eventID int64, expiry *int64, holder Holder) models.TicketPayload {
	p := models.TicketPayload{
		Type:        models.PayloadTypeTicket,
		TicketID:    ticketID,
		EventID:     eventID,
		Expiry:      expiry,
		HolderName:  holder.Name,
		HolderEmail: holder.Email,
		Signature:   s.Sign(ticketID, eventID, expiry),
	}
	if holder.Phone != "" {
		phone := holder.Phone
		p.HolderPhone = &phone
	}
	return p
}

// VerifyPayload checks the signature carried by p.
func (s *Signer) VerifyPayload(p models.TicketPayload) bool {
	return s.Verify(p.TicketID, p.EventID, p.Expiry, p.Signature)
}

// Encode serializes p to the compact wire form stored in qr_payload.
func Encode(p models.TicketPayload) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Parse decodes a presented payload. raw may be the JSON object itself or a
// JSON string holding the serialized object, as read from a QR code or NFC tag.
// It returns the payload together with the normalized object bytes.
func Parse(raw []byte) (*models.TicketPayload, []byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, raw, ErrInvalidType
		}
		raw = bytes.TrimSpace([]byte(inner))
	}
	if len(raw) == 0 || raw[0] != '{' {
		return nil, raw, ErrInvalidType
	}

	var head struct {
		Type interface{} `json:"t"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, raw, ErrInvalidType
	}
	if t, ok := head.Type.(string); !ok || t != models.PayloadTypeTicket {
		return nil, raw, ErrInvalidType
	}

	var p models.TicketPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, raw, ErrInvalidPayload
	}
	if p.TicketID == "" || p.EventID == 0 || p.Signature == "" {
		return nil, raw, ErrInvalidPayload
	}
	return &p, raw, nil
}
