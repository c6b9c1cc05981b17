package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodeExtraction(t *testing.T) {
	err := Ef(CodeInsufficientBucketFunds, "bucket goal/g1 holds %s, need %s", "10.00", "25.00")
	assert.Equal(t, CodeInsufficientBucketFunds, CodeOf(err))
	assert.True(t, IsCode(err, CodeInsufficientBucketFunds))
	assert.False(t, IsCode(err, CodeInvalidAmount))

	wrapped := fmt.Errorf("Contribute: moving funds: %w", err)
	assert.Equal(t, CodeInsufficientBucketFunds, CodeOf(wrapped),
		"code must survive fmt.Errorf wrapping")

	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func TestErrorIsMatchesOnCode(t *testing.T) {
	a := E(CodeBillAlreadySettled, "bill b1 is already paid")
	b := E(CodeBillAlreadySettled, "different message")
	assert.True(t, errors.Is(a, b))

	c := E(CodeUnknownBill, "no such bill")
	assert.False(t, errors.Is(a, c))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeLedgerCorruption, "post-mutation check failed", cause)

	require.ErrorIs(t, err, cause)
	assert.True(t, err.Code.Fatal())
	assert.Contains(t, err.Error(), "ledger_corruption")
	assert.Contains(t, err.Error(), "connection reset")
}
