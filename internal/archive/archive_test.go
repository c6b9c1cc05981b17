package archive

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store"
	"github.com/mstetsenko/pouch/internal/store/inmemory"
)

func TestCaptureIncludesDerivedPersonalShare(t *testing.T) {
	ctx := context.Background()
	st := inmemory.New()

	account := &domain.Account{
		Name:     "Checking",
		Kind:     domain.AccountGeneral,
		Currency: "EUR",
		Active:   true,
	}
	require.NoError(t, st.CreateAccount(ctx, account))

	_, err := st.ApplyBucketDelta(ctx, store.BucketDelta{
		AccountID: account.ID,
		Kind:      domain.BucketPersonal,
		Amount:    decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	_, err = st.ApplyBucketDelta(ctx, store.BucketDelta{
		AccountID: account.ID,
		Kind:      domain.BucketPersonal,
		Amount:    decimal.NewFromInt(-400),
	})
	require.NoError(t, err)
	_, err = st.ApplyBucketDelta(ctx, store.BucketDelta{
		AccountID: account.ID,
		Kind:      domain.BucketReserved,
		Ref:       "rent",
		Amount:    decimal.NewFromInt(400),
	})
	require.NoError(t, err)

	goal := &domain.Goal{
		Name:             "Vacation",
		TargetAmount:     decimal.NewFromInt(2000),
		Currency:         "EUR",
		LinkedAccountIDs: []string{account.ID},
	}
	require.NoError(t, st.CreateGoal(ctx, goal))

	liability := &domain.Liability{
		Name:        "Car loan",
		Currency:    "EUR",
		Frequency:   domain.FrequencyMonthly,
		NextDueDate: civil.Date{Year: 2024, Month: time.July, Day: 1},
	}
	require.NoError(t, st.CreateLiability(ctx, liability))

	taken := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	arch := NewArchiver(st, "pouch-archive", zerolog.Nop())
	arch.now = func() time.Time { return taken }

	snap, err := arch.Capture(ctx)
	require.NoError(t, err)

	assert.Equal(t, taken, snap.TakenAt)
	require.Len(t, snap.Accounts, 1)
	state := snap.Accounts[0]
	assert.True(t, state.Account.Balance.Equal(decimal.NewFromInt(1000)))
	require.Len(t, state.Buckets, 1)
	assert.True(t, state.Buckets[0].Balance.Equal(decimal.NewFromInt(400)))
	assert.True(t, state.Personal.Equal(decimal.NewFromInt(600)))
	require.Len(t, snap.Goals, 1)
	require.Len(t, snap.Liabilities, 1)
}

func TestObjectName(t *testing.T) {
	ts := time.Date(2024, 6, 10, 12, 30, 45, 0, time.UTC)
	assert.Equal(t, "snapshots/2024-06-10T123045Z.json", ObjectName(ts))
}

func TestParseURI(t *testing.T) {
	bucket, object, err := ParseURI("gs://pouch-archive/snapshots/2024-06-10T123045Z.json")
	require.NoError(t, err)
	assert.Equal(t, "pouch-archive", bucket)
	assert.Equal(t, "snapshots/2024-06-10T123045Z.json", object)

	_, _, err = ParseURI("s3://pouch-archive/file.json")
	assert.Error(t, err)
	_, _, err = ParseURI("gs://bucket-only")
	assert.Error(t, err)
}
