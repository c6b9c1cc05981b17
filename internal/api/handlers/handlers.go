// Package handlers implements the HTTP endpoints over the finance core.
// Each handler decodes and validates a request DTO, calls one service
// operation, and renders the result; typed domain failures pass through
// middleware.WriteDomainError so their codes reach the caller. Money
// renders as fixed two-decimal strings, dates as YYYY-MM-DD.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/domain"
)

var validate = validator.New()

// timeLayout is how timestamps render in responses.
const timeLayout = time.RFC3339

// decode unmarshals the request body into dst and runs its validation
// tags. Failures surface as invalid-input domain errors so they map to
// a 400.
func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.Wrap(domain.CodeInvalidInput, "invalid request body", err)
	}
	if err := validate.Struct(dst); err != nil {
		return domain.Wrap(domain.CodeInvalidInput, "invalid request: "+err.Error(), err)
	}
	return nil
}

// parseAmount parses a decimal amount from its string form.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, domain.Ef(domain.CodeInvalidAmount, "invalid amount %q", s)
	}
	return d, nil
}

// parseOptionalAmount treats an empty string as zero.
func parseOptionalAmount(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return parseAmount(s)
}

// parseDate parses YYYY-MM-DD, defaulting to today when empty.
func parseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.DateOf(time.Now()), nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, domain.Ef(domain.CodeInvalidInput, "invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}

// parseRequiredDate parses YYYY-MM-DD with no default.
func parseRequiredDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, domain.E(domain.CodeInvalidInput, "date is required, want YYYY-MM-DD")
	}
	return parseDate(s)
}

func datePtrString(d *civil.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
