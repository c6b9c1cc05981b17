package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money values are exact decimals throughout the core. Arithmetic keeps
// full precision; the two-decimal currency form appears only when a value
// is rendered.

// FormatAmount renders an amount with exactly two decimal places.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// ParseAmount parses a decimal amount from its string form.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, Ef(CodeInvalidAmount, "cannot parse amount %q", s)
	}
	return d, nil
}

// RequirePositive validates an operation amount: strictly positive and at
// most two decimal places of currency precision.
func RequirePositive(d decimal.Decimal) error {
	if !d.IsPositive() {
		return Ef(CodeInvalidAmount, "amount must be positive, got %s", d)
	}
	if d.Exponent() < -2 {
		return Ef(CodeInvalidAmount, "amount %s has sub-cent precision", d)
	}
	return nil
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
