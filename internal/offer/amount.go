// Package offer holds the negotiation rules: amount entry, the offer state
// machine and the per-viewer rendering of offer records.
package offer

import (
	"strconv"
	"strings"

	"github.com/hbkhrishi0412-afk/reride-sub005/internal/config"
	apperr "github.com/hbkhrishi0412-afk/reride-sub005/pkg/errors"
)

const rupee = "₹"

// Digits strips every non-digit character from s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseAmount reads a user-typed amount such as "4,50,000" or "₹ 450000".
// Signed, empty, zero and oversized values are rejected with ErrInvalidAmount.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if isNegative(s) {
		return 0, apperr.ErrInvalidAmount
	}
	digits := Digits(s)
	if digits == "" || len(digits) > config.MaxOfferDigits {
		return 0, apperr.ErrInvalidAmount
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n <= 0 {
		return 0, apperr.ErrInvalidAmount
	}
	return n, nil
}

func isNegative(s string) bool {
	s = strings.TrimSpace(strings.TrimPrefix(s, rupee))
	return strings.HasPrefix(s, "-") || strings.HasPrefix(s, "−")
}

// GroupIndian groups a non-negative decimal string the Indian way:
// the last three digits, then pairs (12,34,56,789).
func GroupIndian(digits string) string {
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return "0"
	}
	if len(digits) <= 3 {
		return digits
	}

	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}
	return strings.Join(append(groups, tail), ",")
}

// FormatINR renders n as rupees with lakh/crore grouping and no decimals.
func FormatINR(n int64) string {
	if n < 0 {
		// -n overflows for MinInt64, so format the unsigned magnitude.
		return "-" + rupee + GroupIndian(strconv.FormatUint(uint64(-(n+1))+1, 10))
	}
	return rupee + GroupIndian(strconv.FormatInt(n, 10))
}
