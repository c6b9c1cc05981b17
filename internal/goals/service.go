// Package goals implements savings-goal progress: contributions and
// withdrawals as bucket transfers, milestone detection over the
// recomputed progress, and the explicit completion resolutions.
package goals

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/ledger"
	"github.com/mstetsenko/pouch/internal/store"
)

// Service coordinates goal money movements through the transfer saga and
// keeps the goal's current amount mirroring its bucket balances.
type Service struct {
	store     store.Store
	transfers *ledger.Orchestrator
	log       zerolog.Logger
	now       func() time.Time
}

// NewService wires the goal engine.
func NewService(st store.Store, transfers *ledger.Orchestrator, log zerolog.Logger) *Service {
	return &Service{
		store:     st,
		transfers: transfers,
		log:       log.With().Str("component", "goals").Logger(),
		now:       time.Now,
	}
}

// ContributionResult reports a contribution with the authoritative
// post-transfer progress.
type ContributionResult struct {
	Goal               *domain.Goal
	Receipt            *ledger.Receipt
	PreviousAmount     decimal.Decimal
	NewAmount          decimal.Decimal
	Milestone          *domain.Milestone
	// CompletionEligible signals the caller may now offer the explicit
	// completion choices; nothing completes automatically.
	CompletionEligible bool
}

// Contribute moves amount from the personal share of sourceAccountID
// into the goal's bucket on that same account, earmarking the funds in
// place.
func (s *Service) Contribute(ctx context.Context, goalID string, amount decimal.Decimal, sourceAccountID string, date civil.Date) (*ContributionResult, error) {
	goal, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("Contribute: %w", err)
	}
	if !goal.Open() {
		return nil, domain.Ef(domain.CodeGoalClosed, "goal %q no longer accepts contributions", goal.Name)
	}
	if !goal.Linked(sourceAccountID) {
		return nil, domain.Ef(domain.CodeGoalNotLinked,
			"account %s is not linked to goal %q", sourceAccountID, goal.Name)
	}
	if err := s.checkCurrency(ctx, goal, sourceAccountID); err != nil {
		return nil, fmt.Errorf("Contribute: %w", err)
	}

	previous := goal.CurrentAmount

	receipt, err := s.transfers.Transfer(ctx, ledger.TransferRequest{
		SourceAccountID: sourceAccountID,
		SourceBucket:    domain.BucketPersonal,
		DestAccountID:   sourceAccountID,
		DestBucket:      domain.BucketGoal,
		DestRef:         goal.ID,
		Amount:          amount,
		Category:        domain.CategoryGoalContribution,
		Description:     fmt.Sprintf("contribution to %s", goal.Name),
		Date:            date,
	})
	if err != nil {
		return nil, fmt.Errorf("Contribute: %w", err)
	}

	if err := s.store.RecordContribution(ctx, &domain.GoalContribution{
		GoalID:        goal.ID,
		AccountID:     sourceAccountID,
		Amount:        amount,
		TransactionID: receipt.SourceTransactionID,
		Date:          date,
	}); err != nil {
		s.log.Error().Err(err).Str("goal_id", goal.ID).Msg("contribution link not recorded")
	}

	updated, err := s.refreshProgress(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("Contribute: %w", err)
	}

	result := &ContributionResult{
		Goal:               updated,
		Receipt:            receipt,
		PreviousAmount:     previous,
		NewAmount:          updated.CurrentAmount,
		CompletionEligible: updated.CompletionEligible(),
	}
	if threshold, ok := domain.CrossedMilestone(previous, updated.CurrentAmount, updated.TargetAmount); ok {
		result.Milestone = &domain.Milestone{
			GoalID:      updated.ID,
			Threshold:   threshold,
			PreviousPct: domain.ProgressPercent(previous, updated.TargetAmount),
			CurrentPct:  updated.ProgressPercent(),
			Amount:      updated.CurrentAmount,
			At:          s.now(),
		}
		s.log.Info().
			Str("goal_id", updated.ID).
			Int("threshold", threshold).
			Str("amount", domain.FormatAmount(updated.CurrentAmount)).
			Msg("goal milestone reached")
	}
	return result, nil
}

// WithdrawalResult reports a withdrawal and the refreshed progress.
type WithdrawalResult struct {
	Goal      *domain.Goal
	Receipt   *ledger.Receipt
	NewAmount decimal.Decimal
}

// Withdraw moves amount out of the goal's buckets into the personal
// share of destAccountID. When the goal holds funds on more than one
// account, sourceAccountID must name which one to take from.
func (s *Service) Withdraw(ctx context.Context, goalID string, amount decimal.Decimal, sourceAccountID, destAccountID string, date civil.Date) (*WithdrawalResult, error) {
	goal, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}
	if err := domain.RequirePositive(amount); err != nil {
		return nil, err
	}
	if err := s.checkCurrency(ctx, goal, destAccountID); err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}

	holdings, total, err := s.holdings(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}
	if amount.GreaterThan(total) {
		return nil, domain.Ef(domain.CodeInsufficientGoalFunds,
			"goal %q holds %s, cannot withdraw %s",
			goal.Name, domain.FormatAmount(total), domain.FormatAmount(amount))
	}

	if sourceAccountID == "" {
		switch len(holdings) {
		case 0:
			return nil, domain.Ef(domain.CodeInsufficientGoalFunds, "goal %q holds no funds", goal.Name)
		case 1:
			sourceAccountID = holdings[0].AccountID
		default:
			return nil, domain.Ef(domain.CodeAmbiguousSourceAccount,
				"goal %q holds funds on %d accounts, name the source", goal.Name, len(holdings))
		}
	} else if !goal.Linked(sourceAccountID) {
		return nil, domain.Ef(domain.CodeGoalNotLinked,
			"account %s is not linked to goal %q", sourceAccountID, goal.Name)
	}

	receipt, err := s.transfers.Transfer(ctx, ledger.TransferRequest{
		SourceAccountID: sourceAccountID,
		SourceBucket:    domain.BucketGoal,
		SourceRef:       goal.ID,
		DestAccountID:   destAccountID,
		DestBucket:      domain.BucketPersonal,
		Amount:          amount,
		Category:        domain.CategoryGoalWithdrawal,
		Description:     fmt.Sprintf("withdrawal from %s", goal.Name),
		Date:            date,
	})
	if err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}

	updated, err := s.refreshProgress(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}
	return &WithdrawalResult{Goal: updated, Receipt: receipt, NewAmount: updated.CurrentAmount}, nil
}

// Progress recomputes a goal's current amount from its bucket balances.
// This is the pull-based read the UI refreshes from.
func (s *Service) Progress(ctx context.Context, goalID string) (*domain.Goal, error) {
	goal, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("Progress: %w", err)
	}
	return s.refreshProgress(ctx, goal)
}

// holdings lists the linked accounts actually holding goal funds.
func (s *Service) holdings(ctx context.Context, goal *domain.Goal) ([]domain.Bucket, decimal.Decimal, error) {
	var result []domain.Bucket
	total := decimal.Zero
	for _, accountID := range goal.LinkedAccountIDs {
		buckets, err := s.store.ReadBuckets(ctx, accountID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		for _, b := range buckets {
			if b.Kind == domain.BucketGoal && b.Ref == goal.ID && b.Balance.IsPositive() {
				result = append(result, b)
				total = total.Add(b.Balance)
			}
		}
	}
	return result, total, nil
}

// refreshProgress writes the recomputed amount back so stored state
// never drifts from the buckets.
func (s *Service) refreshProgress(ctx context.Context, goal *domain.Goal) (*domain.Goal, error) {
	_, total, err := s.holdings(ctx, goal)
	if err != nil {
		return nil, err
	}
	goal.CurrentAmount = total
	if err := s.store.UpdateGoal(ctx, goal); err != nil {
		return nil, err
	}
	return goal, nil
}

func (s *Service) checkCurrency(ctx context.Context, goal *domain.Goal, accountID string) error {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if goal.Currency != "" && account.Currency != goal.Currency {
		return domain.Ef(domain.CodeCurrencyMismatch,
			"goal %q is in %s, account %s is in %s", goal.Name, goal.Currency, accountID, account.Currency)
	}
	return nil
}
