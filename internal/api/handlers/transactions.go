package handlers

import (
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/mstetsenko/pouch/internal/api/middleware"
	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store"
)

// TransactionsHandler serves the read side of the ledger.
type TransactionsHandler struct {
	store store.Store
	log   zerolog.Logger
}

func NewTransactionsHandler(st store.Store, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{store: st, log: log}
}

type transactionJSON struct {
	ID             string                `json:"id"`
	AccountID      string                `json:"account_id"`
	Amount         string                `json:"amount"`
	Currency       string                `json:"currency"`
	Category       string                `json:"category"`
	Description    string                `json:"description,omitempty"`
	Date           string                `json:"date"`
	BucketKind     string                `json:"bucket_kind"`
	BucketRef      string                `json:"bucket_ref,omitempty"`
	TransferID     string                `json:"transfer_id,omitempty"`
	Classification *domain.CycleSnapshot `json:"classification,omitempty"`
	CreatedAt      string                `json:"created_at"`
}

func renderTransaction(t *domain.Transaction) transactionJSON {
	return transactionJSON{
		ID:             t.ID,
		AccountID:      t.AccountID,
		Amount:         domain.FormatAmount(t.Amount),
		Currency:       t.Currency,
		Category:       t.Category,
		Description:    t.Description,
		Date:           t.Date.String(),
		BucketKind:     string(t.BucketKind),
		BucketRef:      t.BucketRef,
		TransferID:     t.TransferID,
		Classification: t.Classification,
		CreatedAt:      t.CreatedAt.Format(timeLayout),
	}
}

// List returns transactions newest first, filterable with
// ?account_id=&category=&from=&to=&limit=. Absent dates leave that end
// of the range unbounded.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TransactionFilter{
		AccountID: q.Get("account_id"),
		Category:  q.Get("category"),
	}

	if raw := q.Get("from"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			middleware.WriteDomainError(w, domain.Ef(domain.CodeInvalidInput, "invalid from date %q, want YYYY-MM-DD", raw))
			return
		}
		filter.From = d
	}
	if raw := q.Get("to"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			middleware.WriteDomainError(w, domain.Ef(domain.CodeInvalidInput, "invalid to date %q, want YYYY-MM-DD", raw))
			return
		}
		filter.To = d
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			middleware.WriteDomainError(w, domain.Ef(domain.CodeInvalidInput, "invalid limit %q", raw))
			return
		}
		filter.Limit = n
	}

	transactions, err := h.store.ListTransactions(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list transactions")
		middleware.WriteDomainError(w, err)
		return
	}

	out := make([]transactionJSON, 0, len(transactions))
	for _, t := range transactions {
		out = append(out, renderTransaction(t))
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}
