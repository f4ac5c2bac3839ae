package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// opaqueTokenBytes is the entropy of a session token.
const opaqueTokenBytes = 32

// NewOpaqueToken returns a random URL-safe token with 256 bits of entropy.
func NewOpaqueToken() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to read random bytes")
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 digest of a raw token. Only digests are persisted.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))

	return hex.EncodeToString(sum[:])
}

// FormatMinutes formats a minute count for display (e.g. "30 minutes", "1 hour 30 minutes").
func FormatMinutes(minutes int) string {
	if minutes < 60 {
		return plural(minutes, "minute")
	}

	hours := minutes / 60
	remaining := minutes % 60
	if remaining == 0 {
		return plural(hours, "hour")
	}

	return plural(hours, "hour") + " " + plural(remaining, "minute")
}

// FormatDays formats a possibly fractional day count for display.
// Values below one day are shown in hours and minutes.
func FormatDays(days float64) string {
	if days < 1 {
		return FormatMinutes(int(math.Round(days * 24 * 60)))
	}

	if days == math.Trunc(days) {
		return plural(int(days), "day")
	}

	return strconv.FormatFloat(days, 'f', -1, 64) + " days"
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}

	return fmt.Sprintf("%d %ss", n, unit)
}
