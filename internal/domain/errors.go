package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the closed set of failure categories the core reports.
// Callers branch on codes, not on message text.
type ErrorCode string

const (
	// Input errors: rejected immediately, no side effects.
	CodeInvalidInput     ErrorCode = "invalid_input"
	CodeInvalidAmount    ErrorCode = "invalid_amount"
	CodeUnknownAccount   ErrorCode = "unknown_account"
	CodeUnknownBucket    ErrorCode = "unknown_bucket"
	CodeUnknownGoal      ErrorCode = "unknown_goal"
	CodeUnknownLiability ErrorCode = "unknown_liability"
	CodeUnknownBill      ErrorCode = "unknown_bill"
	CodeCurrencyMismatch ErrorCode = "currency_mismatch"
	CodeAccountInactive  ErrorCode = "account_inactive"
	CodeGoalNotLinked    ErrorCode = "goal_not_linked"
	CodeGoalClosed       ErrorCode = "goal_closed"

	// Insufficiency errors: rejected, no side effects.
	CodeInsufficientBucketFunds ErrorCode = "insufficient_bucket_funds"
	CodeInsufficientGoalFunds   ErrorCode = "insufficient_goal_funds"
	CodeAmbiguousSourceAccount  ErrorCode = "ambiguous_source_account"

	// Completion guards.
	CodeGoalNotEligible ErrorCode = "goal_not_eligible"
	CodeGoalHasFunds    ErrorCode = "goal_has_funds"

	// Idempotency conflicts: caller logic errors, no side effects.
	CodeBillAlreadySettled ErrorCode = "bill_already_settled"
	CodeBillImmutable      ErrorCode = "bill_immutable"

	// Transfer partial failure, surfaced after compensation settles or
	// is escalated.
	CodeTransferFailed ErrorCode = "transfer_failed"

	// Invariant violations: fatal, the affected account is frozen and
	// operator intervention is required.
	CodeLedgerCorruption ErrorCode = "ledger_corruption"

	// Frozen accounts reject all mutation until unfrozen.
	CodeAccountFrozen ErrorCode = "account_frozen"
)

// Fatal reports whether the code marks a defect that must halt further
// mutation rather than be returned for correction.
func (c ErrorCode) Fatal() bool {
	return c == CodeLedgerCorruption
}

// Error is a typed domain failure. Message is safe to show to a caller;
// Err, when set, carries the underlying cause for logs.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes two domain errors match when their codes match, so sentinel
// comparisons like errors.Is(err, domain.E(CodeBillAlreadySettled, ""))
// work regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// E builds a domain error with a fixed message.
func E(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Ef builds a domain error with a formatted message.
func Ef(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a domain error.
func Wrap(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the domain code from err, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given domain code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
