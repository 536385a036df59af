package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GeneratePaymentReference builds <prefix>-<unix millis>-<user id padded to 4>-<random hex>.
func GeneratePaymentReference(prefix, userID string, now time.Time) string {
	if len(userID) < 4 {
		userID = strings.Repeat("0", 4-len(userID)) + userID
	}
	return fmt.Sprintf("%s-%d-%s-%s", prefix, now.UnixMilli(), userID, randomHex(4))
}

// GenerateCredentialID returns a fresh random ticket credential id.
func GenerateCredentialID() string {
	return uuid.NewString()
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// Fallback to nanoseconds if random generation fails
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
