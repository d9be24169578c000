package util

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the fixed-point scale of the rent currency.
const TokenDecimals = 6

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ErrInvalidAddress is returned for anything that is not a 0x-prefixed 20-byte hex address.
var ErrInvalidAddress = errors.New("invalid address")

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	return addressRe.MatchString(s)
}

// NormalizeAddress validates an address and returns its lower-case form.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !IsAddress(s) {
		return "", fmt.Errorf("%w %q", ErrInvalidAddress, s)
	}
	return strings.ToLower(s), nil
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// ShortAddress renders 0x1234...abcd for lists.
func ShortAddress(s string) string {
	if len(s) < 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// ValidateLabel checks a room label (non-empty after trim, at most 128 bytes).
func ValidateLabel(label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return fmt.Errorf("label is empty")
	}
	if len(label) > 128 {
		return fmt.Errorf("label too long, max 128 bytes")
	}
	return nil
}

// ValidatePercent checks a savings percentage is within [0, 100].
func ValidatePercent(p int) error {
	if p < 0 || p > 100 {
		return fmt.Errorf("percent must be within [0,100], got %d", p)
	}
	return nil
}

// ParseUnits converts a decimal string such as "100.5" into base units with
// the given number of decimals. More fractional digits than decimals is an error.
func ParseUnits(s string, decimals int32) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	if scaled.GreaterThan(decimal.NewFromInt(maxInt64)) || scaled.LessThan(decimal.NewFromInt(-maxInt64)) {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return scaled.IntPart(), nil
}

// FormatUnits renders base units as a fixed decimal string, e.g. 100500000 -> "100.500000".
func FormatUnits(amount int64, decimals int32) string {
	return decimal.New(amount, -decimals).StringFixed(decimals)
}

const maxInt64 = int64(^uint64(0) >> 1)
