// Package inmemory is a map-backed implementation of the primary store
// contract. It is safe for concurrent use and keeps the same semantics
// as the postgres implementation, including per-account atomicity and
// idempotency-key replay. Data is lost on restart - suitable for tests
// and single-process setups.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store"
)

type bucketKey struct {
	accountID string
	kind      domain.BucketKind
	ref       string
}

type cycleKey struct {
	liabilityID string
	cycleNumber int
}

// Store holds everything behind one mutex, which trivially gives the
// per-account serialization ApplyBucketDelta requires.
type Store struct {
	mu sync.RWMutex

	accounts     map[string]*domain.Account
	buckets      map[bucketKey]*domain.Bucket
	transactions map[string]*domain.Transaction
	txnOrder     []string
	transfers    map[string]*domain.Transfer

	goals         map[string]*domain.Goal
	contributions map[string][]*domain.GoalContribution

	liabilities map[string]*domain.Liability
	bills       map[string]*domain.Bill
	billByCycle map[cycleKey]string
	payments    map[string][]*domain.LiabilityPayment

	alerts     map[string]*domain.ReconciliationAlert
	alertOrder []string

	// applied maps an idempotency key to the result of the delta that
	// first carried it.
	applied map[string]*store.DeltaResult
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		accounts:      make(map[string]*domain.Account),
		buckets:       make(map[bucketKey]*domain.Bucket),
		transactions:  make(map[string]*domain.Transaction),
		transfers:     make(map[string]*domain.Transfer),
		goals:         make(map[string]*domain.Goal),
		contributions: make(map[string][]*domain.GoalContribution),
		liabilities:   make(map[string]*domain.Liability),
		bills:         make(map[string]*domain.Bill),
		billByCycle:   make(map[cycleKey]string),
		payments:      make(map[string][]*domain.LiabilityPayment),
		alerts:        make(map[string]*domain.ReconciliationAlert),
		applied:       make(map[string]*store.DeltaResult),
	}
}

// CreateAccount implements AccountStore.
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.Currency == "" {
		return domain.E(domain.CodeInvalidInput, "account currency is required")
	}
	if !account.Kind.Valid() {
		return domain.Ef(domain.CodeInvalidInput, "unknown account kind %q", account.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	account.Currency = domain.NormalizeCurrency(account.Currency)
	account.CreatedAt = now
	account.UpdatedAt = now

	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

// GetAccount implements AccountStore.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, domain.Ef(domain.CodeUnknownAccount, "account %s not found", accountID)
	}
	cp := *acc
	return &cp, nil
}

// ListAccounts implements AccountStore.
func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		cp := *acc
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// FreezeAccount implements AccountStore. A frozen account rejects every
// ledger mutation until an operator unfreezes it.
func (s *Store) FreezeAccount(ctx context.Context, accountID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freezeLocked(accountID, reason)
}

func (s *Store) freezeLocked(accountID, reason string) error {
	acc, ok := s.accounts[accountID]
	if !ok {
		return domain.Ef(domain.CodeUnknownAccount, "account %s not found", accountID)
	}
	acc.Frozen = true
	acc.FrozenReason = reason
	acc.UpdatedAt = time.Now()
	return nil
}

// UnfreezeAccount implements AccountStore.
func (s *Store) UnfreezeAccount(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return domain.Ef(domain.CodeUnknownAccount, "account %s not found", accountID)
	}
	acc.Frozen = false
	acc.FrozenReason = ""
	acc.UpdatedAt = time.Now()
	return nil
}

// Ensure Store satisfies the full contract.
var _ store.Store = (*Store)(nil)
