package goals

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/ledger"
	"github.com/mstetsenko/pouch/internal/store/inmemory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var testDate = civil.Date{Year: 2024, Month: 6, Day: 10}

type fixture struct {
	store   *inmemory.Store
	service *Service
	goal    *domain.Goal
	src     string
	alt     string
	payout  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := inmemory.New()
	ctx := context.Background()

	accounts := map[string]string{}
	for _, name := range []string{"src", "alt", "payout"} {
		a := &domain.Account{
			Name:     name,
			Kind:     domain.AccountGeneral,
			Currency: "EUR",
			Balance:  dec("1000"),
			Active:   true,
		}
		require.NoError(t, st.CreateAccount(ctx, a))
		accounts[name] = a.ID
	}

	goal := &domain.Goal{
		Name:             "trip to Lofoten",
		TargetAmount:     dec("1000"),
		Currency:         "EUR",
		LinkedAccountIDs: []string{accounts["src"], accounts["alt"]},
	}
	require.NoError(t, st.CreateGoal(ctx, goal))

	log := zerolog.Nop()
	led := ledger.New(st, log)
	transfers := ledger.NewOrchestrator(led, st, nil, ledger.OrchestratorConfig{ImmediateRetries: 1, RetryDelay: 0}, log)

	return &fixture{
		store:   st,
		service: NewService(st, transfers, log),
		goal:    goal,
		src:     accounts["src"],
		alt:     accounts["alt"],
		payout:  accounts["payout"],
	}
}

func (f *fixture) contribute(t *testing.T, amount, account string) *ContributionResult {
	t.Helper()
	res, err := f.service.Contribute(context.Background(), f.goal.ID, dec(amount), account, testDate)
	require.NoError(t, err)
	return res
}

func TestContributeEarmarksWithoutMovingBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.contribute(t, "200", f.src)
	assert.True(t, res.NewAmount.Equal(dec("200")))
	assert.Nil(t, res.Milestone, "20%% crosses nothing")
	assert.False(t, res.CompletionEligible)

	account, err := f.store.GetAccount(ctx, f.src)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec("1000")), "earmarking must not move the account balance")

	buckets, err := f.store.ReadBuckets(ctx, f.src)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, domain.BucketGoal, buckets[0].Kind)
	assert.True(t, buckets[0].Balance.Equal(dec("200")))
	assert.True(t, account.PersonalBalance(buckets).Equal(dec("800")))
}

func TestContributeCrossesMilestone(t *testing.T) {
	f := newFixture(t)

	f.contribute(t, "200", f.src)
	res := f.contribute(t, "60", f.src)

	require.NotNil(t, res.Milestone, "20%% to 26%% crosses the 25%% line")
	assert.Equal(t, 25, res.Milestone.Threshold)
	assert.Equal(t, 20, res.Milestone.PreviousPct)
	assert.Equal(t, 26, res.Milestone.CurrentPct)
	assert.True(t, res.NewAmount.Equal(dec("260")))
}

func TestContributeReportsHighestCrossedMilestone(t *testing.T) {
	f := newFixture(t)

	res := f.contribute(t, "990", f.src)
	require.NotNil(t, res.Milestone)
	assert.Equal(t, 75, res.Milestone.Threshold, "0%% to 99%% reports only the highest line")
	assert.False(t, res.CompletionEligible)

	res = f.contribute(t, "10", f.src)
	require.NotNil(t, res.Milestone)
	assert.Equal(t, 100, res.Milestone.Threshold)
	assert.True(t, res.CompletionEligible)

	goal, err := f.service.Progress(context.Background(), f.goal.ID)
	require.NoError(t, err)
	assert.False(t, goal.Achieved, "reaching the target never completes a goal by itself")
}

func TestContributeRejectsUnlinkedAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Contribute(context.Background(), f.goal.ID, dec("50"), f.payout, testDate)
	assert.True(t, domain.IsCode(err, domain.CodeGoalNotLinked))
}

func TestContributeRejectsClosedGoal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Complete(ctx, CompleteRequest{
		GoalID:     f.goal.ID,
		Resolution: domain.ResolutionArchive,
		Date:       testDate,
	})
	require.NoError(t, err)

	_, err = f.service.Contribute(ctx, f.goal.ID, dec("50"), f.src, testDate)
	assert.True(t, domain.IsCode(err, domain.CodeGoalClosed))
}

func TestWithdrawFromSingleHolding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.contribute(t, "300", f.src)
	res, err := f.service.Withdraw(ctx, f.goal.ID, dec("100"), "", f.payout, testDate)
	require.NoError(t, err)
	assert.True(t, res.NewAmount.Equal(dec("200")))

	src, err := f.store.GetAccount(ctx, f.src)
	require.NoError(t, err)
	payout, err := f.store.GetAccount(ctx, f.payout)
	require.NoError(t, err)
	assert.True(t, src.Balance.Equal(dec("900")))
	assert.True(t, payout.Balance.Equal(dec("1100")))
}

func TestWithdrawNeedsSourceWhenSpreadAcrossAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.contribute(t, "300", f.src)
	f.contribute(t, "200", f.alt)

	_, err := f.service.Withdraw(ctx, f.goal.ID, dec("100"), "", f.payout, testDate)
	assert.True(t, domain.IsCode(err, domain.CodeAmbiguousSourceAccount))

	res, err := f.service.Withdraw(ctx, f.goal.ID, dec("100"), f.alt, f.payout, testDate)
	require.NoError(t, err)
	assert.True(t, res.NewAmount.Equal(dec("400")))
}

func TestWithdrawCappedByGoalFunds(t *testing.T) {
	f := newFixture(t)

	f.contribute(t, "300", f.src)
	// The account holds 1000 but only 300 belongs to the goal.
	_, err := f.service.Withdraw(context.Background(), f.goal.ID, dec("400"), "", f.payout, testDate)
	assert.True(t, domain.IsCode(err, domain.CodeInsufficientGoalFunds))
}

func TestCompleteWithdrawAndAchieve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.contribute(t, "600", f.src)
	f.contribute(t, "400", f.alt)

	res, err := f.service.Complete(ctx, CompleteRequest{
		GoalID:        f.goal.ID,
		Resolution:    domain.ResolutionWithdrawAndAchieve,
		DestAccountID: f.payout,
		Date:          testDate,
	})
	require.NoError(t, err)
	assert.True(t, res.Goal.Achieved)
	require.NotNil(t, res.Goal.AchievedAt)
	assert.True(t, res.Withdrawn.Equal(dec("1000")))
	assert.Len(t, res.Receipts, 2)
	assert.True(t, res.Goal.CurrentAmount.IsZero())

	payout, err := f.store.GetAccount(ctx, f.payout)
	require.NoError(t, err)
	assert.True(t, payout.Balance.Equal(dec("2000")))

	for _, id := range []string{f.src, f.alt} {
		buckets, err := f.store.ReadBuckets(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, buckets)
	}
}

func TestCompleteAchieveRequiresTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.contribute(t, "200", f.src)
	for _, resolution := range []domain.CompletionResolution{
		domain.ResolutionWithdrawAndAchieve,
		domain.ResolutionAchieveLeaveFunds,
	} {
		_, err := f.service.Complete(ctx, CompleteRequest{
			GoalID:        f.goal.ID,
			Resolution:    resolution,
			DestAccountID: f.payout,
			Date:          testDate,
		})
		assert.True(t, domain.IsCode(err, domain.CodeGoalNotEligible), string(resolution))
	}
}

func TestCompleteDeleteGuardsRemainingFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.contribute(t, "250", f.src)

	_, err := f.service.Complete(ctx, CompleteRequest{
		GoalID:     f.goal.ID,
		Resolution: domain.ResolutionDelete,
		Date:       testDate,
	})
	assert.True(t, domain.IsCode(err, domain.CodeGoalHasFunds))

	res, err := f.service.Complete(ctx, CompleteRequest{
		GoalID:     f.goal.ID,
		Resolution: domain.ResolutionDelete,
		Force:      true,
		Date:       testDate,
	})
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.True(t, res.Withdrawn.Equal(dec("250")))

	_, err = f.store.GetGoal(ctx, f.goal.ID)
	assert.True(t, domain.IsCode(err, domain.CodeUnknownGoal))

	// The forced release hands the funds back to the account they sat on.
	src, err := f.store.GetAccount(ctx, f.src)
	require.NoError(t, err)
	assert.True(t, src.Balance.Equal(dec("1000")))
	buckets, err := f.store.ReadBuckets(ctx, f.src)
	require.NoError(t, err)
	assert.Empty(t, buckets)
}

func TestCompleteAchieveLeaveFundsKeepsBuckets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.contribute(t, "1000", f.src)
	res, err := f.service.Complete(ctx, CompleteRequest{
		GoalID:     f.goal.ID,
		Resolution: domain.ResolutionAchieveLeaveFunds,
		Date:       testDate,
	})
	require.NoError(t, err)
	assert.True(t, res.Goal.Achieved)
	assert.True(t, res.Goal.CurrentAmount.Equal(dec("1000")))

	buckets, err := f.store.ReadBuckets(ctx, f.src)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.True(t, buckets[0].Balance.Equal(dec("1000")))
}
