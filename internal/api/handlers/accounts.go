package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mstetsenko/pouch/internal/api/middleware"
	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/ledger"
	"github.com/mstetsenko/pouch/internal/store"
)

// AccountsHandler serves account records and the two ledger entry points
// that move money on a single account.
type AccountsHandler struct {
	store  store.Store
	ledger *ledger.Ledger
	log    zerolog.Logger
}

func NewAccountsHandler(st store.Store, led *ledger.Ledger, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{store: st, ledger: led, log: log}
}

type accountJSON struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Currency     string `json:"currency"`
	Balance      string `json:"balance"`
	Active       bool   `json:"active"`
	Frozen       bool   `json:"frozen"`
	FrozenReason string `json:"frozen_reason,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func renderAccount(a *domain.Account) accountJSON {
	return accountJSON{
		ID:           a.ID,
		Name:         a.Name,
		Kind:         string(a.Kind),
		Currency:     a.Currency,
		Balance:      domain.FormatAmount(a.Balance),
		Active:       a.Active,
		Frozen:       a.Frozen,
		FrozenReason: a.FrozenReason,
		CreatedAt:    a.CreatedAt.Format(timeLayout),
		UpdatedAt:    a.UpdatedAt.Format(timeLayout),
	}
}

type bucketJSON struct {
	Kind    string `json:"kind"`
	Ref     string `json:"ref,omitempty"`
	Balance string `json:"balance"`
}

func renderBuckets(buckets []domain.Bucket) []bucketJSON {
	out := make([]bucketJSON, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, bucketJSON{
			Kind:    string(b.Kind),
			Ref:     b.Ref,
			Balance: domain.FormatAmount(b.Balance),
		})
	}
	return out
}

type entryJSON struct {
	TransactionID   string `json:"transaction_id"`
	AccountBalance  string `json:"account_balance"`
	BucketBalance   string `json:"bucket_balance"`
	PersonalBalance string `json:"personal_balance"`
	Replayed        bool   `json:"replayed,omitempty"`
}

func renderEntry(e *ledger.Entry) entryJSON {
	return entryJSON{
		TransactionID:   e.TransactionID,
		AccountBalance:  domain.FormatAmount(e.AccountBalance),
		BucketBalance:   domain.FormatAmount(e.BucketBalance),
		PersonalBalance: domain.FormatAmount(e.PersonalBalance),
		Replayed:        e.Replayed,
	}
}

// List returns every account.
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.store.ListAccounts(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list accounts")
		middleware.WriteDomainError(w, err)
		return
	}

	out := make([]accountJSON, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, renderAccount(a))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": out,
		"count":    len(out),
	})
}

type createAccountRequest struct {
	Name     string `json:"name" validate:"required"`
	Kind     string `json:"kind" validate:"required"`
	Currency string `json:"currency" validate:"required,len=3"`
	Balance  string `json:"balance"`
}

// Create opens a new account. The opening balance, when given, lands
// entirely in the personal share.
func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	kind := domain.AccountKind(req.Kind)
	if !kind.Valid() {
		middleware.WriteDomainError(w, domain.Ef(domain.CodeInvalidInput, "unknown account kind %q", req.Kind))
		return
	}
	balance, err := parseOptionalAmount(req.Balance)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	if balance.IsNegative() {
		middleware.WriteDomainError(w, domain.E(domain.CodeInvalidAmount, "opening balance cannot be negative"))
		return
	}

	account := &domain.Account{
		Name:     req.Name,
		Kind:     kind,
		Currency: req.Currency,
		Balance:  balance,
		Active:   true,
	}
	if err := h.store.CreateAccount(r.Context(), account); err != nil {
		h.log.Error().Err(err).Str("name", req.Name).Msg("failed to create account")
		middleware.WriteDomainError(w, err)
		return
	}

	h.log.Info().Str("account_id", account.ID).Str("name", account.Name).Msg("account created")
	middleware.WriteJSON(w, http.StatusCreated, renderAccount(account))
}

// Get returns one account together with its bucket breakdown and the
// derived personal share.
func (h *AccountsHandler) Get(w http.ResponseWriter, r *http.Request, accountID string) {
	account, err := h.store.GetAccount(r.Context(), accountID)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	buckets, personal, err := h.ledger.Buckets(r.Context(), accountID)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("failed to load buckets")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account":          renderAccount(account),
		"buckets":          renderBuckets(buckets),
		"personal_balance": domain.FormatAmount(personal),
	})
}

// Buckets returns the bucket breakdown for one account.
func (h *AccountsHandler) Buckets(w http.ResponseWriter, r *http.Request, accountID string) {
	buckets, personal, err := h.ledger.Buckets(r.Context(), accountID)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"buckets":          renderBuckets(buckets),
		"personal_balance": domain.FormatAmount(personal),
		"count":            len(buckets),
	})
}

type movementRequest struct {
	Bucket         string `json:"bucket" validate:"required"`
	Ref            string `json:"ref"`
	Amount         string `json:"amount" validate:"required"`
	Category       string `json:"category" validate:"required"`
	Description    string `json:"description"`
	Date           string `json:"date"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (req *movementRequest) movement(accountID string) (ledger.Movement, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return ledger.Movement{}, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return ledger.Movement{}, err
	}
	return ledger.Movement{
		AccountID:      accountID,
		Bucket:         domain.BucketKind(req.Bucket),
		BucketRef:      req.Ref,
		Amount:         amount,
		Category:       req.Category,
		Description:    req.Description,
		Date:           date,
		IdempotencyKey: req.IdempotencyKey,
	}, nil
}

// Spend records an outflow from one bucket of the account.
func (h *AccountsHandler) Spend(w http.ResponseWriter, r *http.Request, accountID string) {
	h.move(w, r, accountID, h.ledger.Spend)
}

// Receive records an inflow into one bucket of the account.
func (h *AccountsHandler) Receive(w http.ResponseWriter, r *http.Request, accountID string) {
	h.move(w, r, accountID, h.ledger.Receive)
}

func (h *AccountsHandler) move(w http.ResponseWriter, r *http.Request, accountID string, op func(context.Context, ledger.Movement) (*ledger.Entry, error)) {
	var req movementRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	m, err := req.movement(accountID)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	entry, err := op(r.Context(), m)
	if err != nil {
		h.log.Warn().Err(err).Str("account_id", accountID).Str("bucket", req.Bucket).Msg("movement rejected")
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, renderEntry(entry))
}

// Freeze quarantines an account so every ledger mutation is rejected.
type freezeRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *AccountsHandler) Freeze(w http.ResponseWriter, r *http.Request, accountID string) {
	var req freezeRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	if err := h.store.FreezeAccount(r.Context(), accountID, req.Reason); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	h.log.Warn().Str("account_id", accountID).Str("reason", req.Reason).Msg("account frozen")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"frozen":     true,
	})
}

// Unfreeze clears the quarantine flag after an operator has repaired the
// underlying records.
func (h *AccountsHandler) Unfreeze(w http.ResponseWriter, r *http.Request, accountID string) {
	if err := h.store.UnfreezeAccount(r.Context(), accountID); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	h.log.Info().Str("account_id", accountID).Msg("account unfrozen")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"frozen":     false,
	})
}
