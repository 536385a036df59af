// Package credential signs and verifies ticket identity tuples.
package credential

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
)

const separator = "|"

var ErrEmptySecret = errors.New("credential: signing secret is empty")

// Signer computes HMAC-SHA256 signatures over ticketID|eventID|expiry.
// Holder fields are not part of the signed message.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign returns the hex encoded signature. A nil or zero expiry signs as empty.
func (s *Signer) Sign(ticketID string, eventID int64, expiry *int64) string {
	return hex.EncodeToString(s.mac(ticketID, eventID, expiry))
}

// Verify recomputes the signature and compares it in constant time.
// Malformed hex or a wrong length yields false.
func (s *Signer) Verify(ticketID string, eventID int64, expiry *int64, signature string) bool {
	if signature == "" {
		return false
	}
	given, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	expected := s.mac(ticketID, eventID, expiry)
	if len(given) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare(expected, given) == 1
}

func (s *Signer) mac(ticketID string, eventID int64, expiry *int64) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(canonical(ticketID, eventID, expiry)))
	return h.Sum(nil)
}

func canonical(ticketID string, eventID int64, expiry *int64) string {
	exp := ""
	if expiry != nil && *expiry != 0 {
		exp = strconv.FormatInt(*expiry, 10)
	}
	return ticketID + separator + strconv.FormatInt(eventID, 10) + separator + exp
}
