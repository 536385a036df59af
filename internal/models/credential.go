package models

const PayloadTypeTicket = "TICKET"

// TicketPayload is the compact object written to QR codes and NFC tags.
// Field order is the wire order: t, tid, eid, exp, hn, he, hp, sig.
// Only tid, eid and exp are covered by sig.
type TicketPayload struct {
	Type        string  `json:"t"`
	TicketID    string  `json:"tid"`
	EventID     int64   `json:"eid"`
	Expiry      *int64  `json:"exp"`
	HolderName  string  `json:"hn,omitempty"`
	HolderEmail string  `json:"he,omitempty"`
	HolderPhone *string `json:"hp"`
	Signature   string  `json:"sig"`
}
