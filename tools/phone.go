package tools

import (
	"fmt"
	"strings"
	"unicode"
)

// NormalizeChannelAPhone normalizes a phone number into the digits-only,
// international-format address channel-A's send API expects (no '+').
// Heuristic kept as-is from the original WhatsApp Cloud API client: a
// 10/11-digit number is assumed to be a Brazilian national number and
// prefixed with the 55 country code; numbers of any other length are
// left alone. The check is by length only, so a 10/11-digit number
// that already starts with another country code (a leading '+' is
// dropped with the other non-digits) is prefixed as well.
func NormalizeChannelAPhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty phone")
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	phone := b.String()
	phone = strings.TrimLeft(phone, "0")

	if len(phone) == 10 || len(phone) == 11 {
		phone = "55" + phone
	}

	if len(phone) < 12 {
		return "", fmt.Errorf("invalid phone length: %d", len(phone))
	}
	return phone, nil
}
