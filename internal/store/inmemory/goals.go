package inmemory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/domain"
)

func copyGoal(g *domain.Goal) *domain.Goal {
	cp := *g
	cp.LinkedAccountIDs = append([]string(nil), g.LinkedAccountIDs...)
	return &cp
}

// CreateGoal implements GoalStore.
func (s *Store) CreateGoal(ctx context.Context, goal *domain.Goal) error {
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	if !goal.TargetAmount.IsPositive() {
		return domain.E(domain.CodeInvalidAmount, "goal target amount must be positive")
	}
	if len(goal.LinkedAccountIDs) == 0 {
		return domain.E(domain.CodeInvalidInput, "goal needs at least one linked account")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range goal.LinkedAccountIDs {
		if _, ok := s.accounts[id]; !ok {
			return domain.Ef(domain.CodeUnknownAccount, "linked account %s not found", id)
		}
	}

	now := time.Now()
	goal.CurrentAmount = decimal.Zero
	goal.Currency = domain.NormalizeCurrency(goal.Currency)
	goal.CreatedAt = now
	goal.UpdatedAt = now
	s.goals[goal.ID] = copyGoal(goal)
	return nil
}

// GetGoal implements GoalStore.
func (s *Store) GetGoal(ctx context.Context, goalID string) (*domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.goals[goalID]
	if !ok {
		return nil, domain.Ef(domain.CodeUnknownGoal, "goal %s not found", goalID)
	}
	return copyGoal(g), nil
}

// ListGoals implements GoalStore. Closed goals (achieved or archived)
// are skipped unless requested.
func (s *Store) ListGoals(ctx context.Context, includeClosed bool) ([]*domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Goal
	for _, g := range s.goals {
		if !includeClosed && !g.Open() {
			continue
		}
		result = append(result, copyGoal(g))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// UpdateGoal implements GoalStore.
func (s *Store) UpdateGoal(ctx context.Context, goal *domain.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.goals[goal.ID]; !ok {
		return domain.Ef(domain.CodeUnknownGoal, "goal %s not found", goal.ID)
	}
	goal.UpdatedAt = time.Now()
	s.goals[goal.ID] = copyGoal(goal)
	return nil
}

// DeleteGoal implements GoalStore. Guards against deleting a funded goal
// live in the goals service; the store only removes the record.
func (s *Store) DeleteGoal(ctx context.Context, goalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.goals[goalID]; !ok {
		return domain.Ef(domain.CodeUnknownGoal, "goal %s not found", goalID)
	}
	delete(s.goals, goalID)
	delete(s.contributions, goalID)
	return nil
}

// RecordContribution implements GoalStore.
func (s *Store) RecordContribution(ctx context.Context, contribution *domain.GoalContribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.goals[contribution.GoalID]; !ok {
		return domain.Ef(domain.CodeUnknownGoal, "goal %s not found", contribution.GoalID)
	}

	cp := *contribution
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = time.Now()
	s.contributions[cp.GoalID] = append(s.contributions[cp.GoalID], &cp)
	return nil
}

// ListContributions implements GoalStore, oldest first.
func (s *Store) ListContributions(ctx context.Context, goalID string) ([]*domain.GoalContribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.contributions[goalID]
	result := make([]*domain.GoalContribution, 0, len(list))
	for _, c := range list {
		cp := *c
		result = append(result, &cp)
	}
	return result, nil
}
