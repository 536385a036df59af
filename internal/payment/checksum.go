package payment

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrChecksumData means the envelope lacks what is needed to recompute its checksum.
var ErrChecksumData = errors.New("payment: webhook envelope has no checksum properties, transaction or timestamp")

// ComputeChecksum recomputes the provider checksum from the raw envelope bytes:
// the values named by signature.properties (read under data.), then timestamp,
// then the events secret, hashed with SHA-256. Missing or null values count as "".
func ComputeChecksum(raw []byte, secret string) (string, error) {
	props := gjson.GetBytes(raw, "signature.properties")
	if !props.IsArray() || len(props.Array()) == 0 {
		return "", ErrChecksumData
	}
	if !gjson.GetBytes(raw, "data.transaction").IsObject() {
		return "", ErrChecksumData
	}
	ts := gjson.GetBytes(raw, "timestamp")
	if ts.Type != gjson.Number && ts.Type != gjson.String {
		return "", ErrChecksumData
	}

	var b strings.Builder
	for _, prop := range props.Array() {
		key := strings.TrimPrefix(prop.String(), "transaction.")
		b.WriteString(gjson.GetBytes(raw, "data.transaction."+key).String())
	}
	b.WriteString(ts.String())
	b.WriteString(secret)

	return sha256Hex(b.String()), nil
}

// VerifyChecksum reports whether claimed matches the recomputed checksum.
func VerifyChecksum(raw []byte, secret, claimed string) (bool, error) {
	expected, err := ComputeChecksum(raw, secret)
	if err != nil {
		return false, err
	}
	return equalFold(expected, claimed), nil
}

// IntegritySignature signs the checkout parameters the storefront hands to the provider:
// SHA-256 over reference, amount, currency and secret concatenated without separators.
func IntegritySignature(reference string, amountInCents int64, currency, secret string) string {
	return sha256Hex(reference + strconv.FormatInt(amountInCents, 10) + currency + secret)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func equalFold(expected, claimed string) bool {
	claimed = strings.ToLower(claimed)
	if len(claimed) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(claimed)) == 1
}
