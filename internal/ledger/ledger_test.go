package ledger

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store/inmemory"
)

func TestMovementValidation(t *testing.T) {
	st := inmemory.New()
	l := New(st, zerolog.Nop())
	ctx := context.Background()

	acc := &domain.Account{Name: "a", Kind: domain.AccountGeneral, Currency: "EUR", Balance: dec("100"), Active: true}
	require.NoError(t, st.CreateAccount(ctx, acc))

	base := Movement{
		AccountID: acc.ID,
		Bucket:    domain.BucketPersonal,
		Amount:    dec("10"),
		Category:  "groceries",
		Date:      testDate,
	}

	tests := []struct {
		name     string
		mutate   func(m Movement) Movement
		wantCode domain.ErrorCode
	}{
		{
			name:     "zero amount",
			mutate:   func(m Movement) Movement { m.Amount = dec("0"); return m },
			wantCode: domain.CodeInvalidAmount,
		},
		{
			name:     "negative amount",
			mutate:   func(m Movement) Movement { m.Amount = dec("-5"); return m },
			wantCode: domain.CodeInvalidAmount,
		},
		{
			name:     "sub-cent precision",
			mutate:   func(m Movement) Movement { m.Amount = dec("1.999"); return m },
			wantCode: domain.CodeInvalidAmount,
		},
		{
			name:     "unknown bucket kind",
			mutate:   func(m Movement) Movement { m.Bucket = "envelope"; return m },
			wantCode: domain.CodeUnknownBucket,
		},
		{
			name:     "stored bucket without ref",
			mutate:   func(m Movement) Movement { m.Bucket = domain.BucketGoal; m.BucketRef = ""; return m },
			wantCode: domain.CodeInvalidInput,
		},
		{
			name:     "missing date",
			mutate:   func(m Movement) Movement { m.Date = civil.Date{}; return m },
			wantCode: domain.CodeInvalidInput,
		},
		{
			name:     "missing category",
			mutate:   func(m Movement) Movement { m.Category = ""; return m },
			wantCode: domain.CodeInvalidInput,
		},
		{
			name:     "unknown account",
			mutate:   func(m Movement) Movement { m.AccountID = "nope"; return m },
			wantCode: domain.CodeUnknownAccount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Spend(ctx, tt.mutate(base))
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, domain.CodeOf(err))
		})
	}
}

func TestSpendReportsAuthoritativeBalances(t *testing.T) {
	st := inmemory.New()
	l := New(st, zerolog.Nop())
	ctx := context.Background()

	acc := &domain.Account{Name: "a", Kind: domain.AccountGeneral, Currency: "EUR", Balance: dec("300"), Active: true}
	require.NoError(t, st.CreateAccount(ctx, acc))

	_, err := l.Receive(ctx, Movement{
		AccountID: acc.ID, Bucket: domain.BucketGoal, BucketRef: "g1",
		Amount: dec("120"), Category: domain.CategoryGoalContribution, Date: testDate,
	})
	require.NoError(t, err)

	entry, err := l.Spend(ctx, Movement{
		AccountID: acc.ID, Bucket: domain.BucketPersonal,
		Amount: dec("50"), Category: "rent", Date: testDate,
	})
	require.NoError(t, err)

	// 300 initial + 120 received - 50 spent; 120 of it allocated.
	assert.True(t, entry.AccountBalance.Equal(dec("370")))
	assert.True(t, entry.PersonalBalance.Equal(dec("250")))
	assert.NotEmpty(t, entry.TransactionID)

	buckets, personal, err := l.Buckets(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.True(t, personal.Equal(dec("250")))
}
