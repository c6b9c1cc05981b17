package goals

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/ledger"
)

// CompleteRequest names the single resolution to execute for a goal.
type CompleteRequest struct {
	GoalID        string
	Resolution    domain.CompletionResolution
	// DestAccountID receives the funds for withdraw_and_achieve.
	DestAccountID string
	// Force releases remaining funds back to their accounts when
	// deleting a funded goal.
	Force         bool
	Date          civil.Date
}

// CompletionResult reports what the chosen resolution did.
type CompletionResult struct {
	Goal       *domain.Goal
	Resolution domain.CompletionResolution
	Withdrawn  decimal.Decimal
	Receipts   []*ledger.Receipt
	Deleted    bool
}

// Complete executes exactly one completion resolution. Reaching the
// target never completes a goal on its own; this is the only path to
// the achieved, archived, or deleted states.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (*CompletionResult, error) {
	if !req.Resolution.Valid() {
		return nil, domain.Ef(domain.CodeInvalidInput, "unknown completion resolution %q", req.Resolution)
	}
	goal, err := s.store.GetGoal(ctx, req.GoalID)
	if err != nil {
		return nil, fmt.Errorf("Complete: %w", err)
	}
	goal, err = s.refreshProgress(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("Complete: %w", err)
	}

	switch req.Resolution {
	case domain.ResolutionWithdrawAndAchieve:
		return s.withdrawAndAchieve(ctx, goal, req)
	case domain.ResolutionDelete:
		return s.deleteGoal(ctx, goal, req)
	case domain.ResolutionArchive:
		return s.archive(ctx, goal)
	case domain.ResolutionAchieveLeaveFunds:
		return s.achieveLeaveFunds(ctx, goal)
	}
	return nil, domain.Ef(domain.CodeInvalidInput, "unknown completion resolution %q", req.Resolution)
}

func (s *Service) withdrawAndAchieve(ctx context.Context, goal *domain.Goal, req CompleteRequest) (*CompletionResult, error) {
	if !goal.CompletionEligible() {
		return nil, domain.Ef(domain.CodeGoalNotEligible,
			"goal %q is at %s of %s and cannot be achieved",
			goal.Name, domain.FormatAmount(goal.CurrentAmount), domain.FormatAmount(goal.TargetAmount))
	}
	if req.DestAccountID == "" {
		return nil, domain.E(domain.CodeInvalidInput, "withdraw_and_achieve needs a destination account")
	}
	if err := s.checkCurrency(ctx, goal, req.DestAccountID); err != nil {
		return nil, fmt.Errorf("Complete: %w", err)
	}

	receipts, withdrawn, err := s.drain(ctx, goal, req.Date, func(b domain.Bucket) ledger.TransferRequest {
		return ledger.TransferRequest{
			SourceAccountID: b.AccountID,
			SourceBucket:    domain.BucketGoal,
			SourceRef:       goal.ID,
			DestAccountID:   req.DestAccountID,
			DestBucket:      domain.BucketPersonal,
			Amount:          b.Balance,
			Category:        domain.CategoryGoalWithdrawal,
			Description:     fmt.Sprintf("payout of %s", goal.Name),
			Date:            req.Date,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("Complete: %w", err)
	}

	goal, err = s.markAchieved(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("Complete: %w", err)
	}
	s.log.Info().Str("goal_id", goal.ID).
		Str("withdrawn", domain.FormatAmount(withdrawn)).
		Msg("goal achieved, funds withdrawn")
	return &CompletionResult{
		Goal:       goal,
		Resolution: domain.ResolutionWithdrawAndAchieve,
		Withdrawn:  withdrawn,
		Receipts:   receipts,
	}, nil
}

func (s *Service) deleteGoal(ctx context.Context, goal *domain.Goal, req CompleteRequest) (*CompletionResult, error) {
	var (
		receipts []*ledger.Receipt
		released decimal.Decimal
	)
	if goal.CurrentAmount.IsPositive() {
		if !req.Force {
			return nil, domain.Ef(domain.CodeGoalHasFunds,
				"goal %q still holds %s, withdraw first or force the deletion",
				goal.Name, domain.FormatAmount(goal.CurrentAmount))
		}
		// Forced deletion releases each bucket back to the personal
		// share of the account it sits on.
		var err error
		receipts, released, err = s.drain(ctx, goal, req.Date, func(b domain.Bucket) ledger.TransferRequest {
			return ledger.TransferRequest{
				SourceAccountID: b.AccountID,
				SourceBucket:    domain.BucketGoal,
				SourceRef:       goal.ID,
				DestAccountID:   b.AccountID,
				DestBucket:      domain.BucketPersonal,
				Amount:          b.Balance,
				Category:        domain.CategoryGoalRelease,
				Description:     fmt.Sprintf("release of deleted goal %s", goal.Name),
				Date:            req.Date,
			}
		})
		if err != nil {
			return nil, fmt.Errorf("Complete: %w", err)
		}
	}
	if err := s.store.DeleteGoal(ctx, goal.ID); err != nil {
		return nil, fmt.Errorf("Complete: %w", err)
	}
	s.log.Info().Str("goal_id", goal.ID).
		Str("released", domain.FormatAmount(released)).
		Msg("goal deleted")
	return &CompletionResult{
		Resolution: domain.ResolutionDelete,
		Withdrawn:  released,
		Receipts:   receipts,
		Deleted:    true,
	}, nil
}

func (s *Service) archive(ctx context.Context, goal *domain.Goal) (*CompletionResult, error) {
	if !goal.Archived {
		goal.Archived = true
		if err := s.store.UpdateGoal(ctx, goal); err != nil {
			return nil, fmt.Errorf("Complete: %w", err)
		}
	}
	s.log.Info().Str("goal_id", goal.ID).Msg("goal archived")
	return &CompletionResult{Goal: goal, Resolution: domain.ResolutionArchive}, nil
}

func (s *Service) achieveLeaveFunds(ctx context.Context, goal *domain.Goal) (*CompletionResult, error) {
	if !goal.CompletionEligible() {
		return nil, domain.Ef(domain.CodeGoalNotEligible,
			"goal %q is at %s of %s and cannot be achieved",
			goal.Name, domain.FormatAmount(goal.CurrentAmount), domain.FormatAmount(goal.TargetAmount))
	}
	goal, err := s.markAchieved(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("Complete: %w", err)
	}
	s.log.Info().Str("goal_id", goal.ID).Msg("goal achieved, funds left in place")
	return &CompletionResult{Goal: goal, Resolution: domain.ResolutionAchieveLeaveFunds}, nil
}

// drain empties every funded goal bucket through one transfer each.
func (s *Service) drain(ctx context.Context, goal *domain.Goal, date civil.Date, build func(domain.Bucket) ledger.TransferRequest) ([]*ledger.Receipt, decimal.Decimal, error) {
	holdings, _, err := s.holdings(ctx, goal)
	if err != nil {
		return nil, decimal.Zero, err
	}
	var (
		receipts []*ledger.Receipt
		moved    decimal.Decimal
	)
	for _, b := range holdings {
		receipt, err := s.transfers.Transfer(ctx, build(b))
		if err != nil {
			return receipts, moved, err
		}
		receipts = append(receipts, receipt)
		moved = moved.Add(b.Balance)
	}
	return receipts, moved, nil
}

func (s *Service) markAchieved(ctx context.Context, goal *domain.Goal) (*domain.Goal, error) {
	goal, err := s.refreshProgress(ctx, goal)
	if err != nil {
		return nil, err
	}
	now := s.now()
	goal.Achieved = true
	goal.AchievedAt = &now
	if err := s.store.UpdateGoal(ctx, goal); err != nil {
		return nil, err
	}
	return goal, nil
}
