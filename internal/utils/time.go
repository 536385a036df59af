package utils

import (
	"time"
)

// UnixTimeToTime converts a Unix timestamp to a time.Time object
func UnixTimeToTime(unixTime int64) time.Time {
	return time.Unix(unixTime, 0)
}

// Expired reports whether a unix-seconds expiry lies strictly before now.
// A nil or zero expiry never expires.
func Expired(expiry *int64, now time.Time) bool {
	if expiry == nil || *expiry == 0 {
		return false
	}
	return now.After(UnixTimeToTime(*expiry))
}
