package domain

import (
	"strconv"
	"time"
)

// ParseTimestamp reads a payment service time: epoch milliseconds or RFC 3339
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// FormatTimestamp renders t as epoch milliseconds, the form offered to purchasers
func FormatTimestamp(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// NormalizeTimestamp rewrites s as epoch milliseconds, using fallback when s is unreadable
func NormalizeTimestamp(s string, fallback time.Time) string {
	if t, ok := ParseTimestamp(s); ok {
		return FormatTimestamp(t)
	}
	return FormatTimestamp(fallback)
}
