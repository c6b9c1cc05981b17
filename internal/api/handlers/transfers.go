package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mstetsenko/pouch/internal/api/middleware"
	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/ledger"
)

// TransfersHandler exposes the two-leg transfer saga.
type TransfersHandler struct {
	orchestrator *ledger.Orchestrator
	log          zerolog.Logger
}

func NewTransfersHandler(orch *ledger.Orchestrator, log zerolog.Logger) *TransfersHandler {
	return &TransfersHandler{orchestrator: orch, log: log}
}

type transferRequest struct {
	SourceAccountID string `json:"source_account_id" validate:"required"`
	SourceBucket    string `json:"source_bucket"`
	SourceRef       string `json:"source_ref"`
	DestAccountID   string `json:"dest_account_id" validate:"required"`
	DestBucket      string `json:"dest_bucket"`
	DestRef         string `json:"dest_ref"`
	Amount          string `json:"amount" validate:"required"`
	Category        string `json:"category"`
	Description     string `json:"description"`
	Date            string `json:"date"`
}

type receiptJSON struct {
	TransferID          string    `json:"transfer_id"`
	SourceTransactionID string    `json:"source_transaction_id"`
	DestTransactionID   string    `json:"dest_transaction_id"`
	Source              entryJSON `json:"source"`
	Dest                entryJSON `json:"dest"`
}

func renderReceipt(rcpt *ledger.Receipt) receiptJSON {
	return receiptJSON{
		TransferID:          rcpt.TransferID,
		SourceTransactionID: rcpt.SourceTransactionID,
		DestTransactionID:   rcpt.DestTransactionID,
		Source:              renderEntry(rcpt.Source),
		Dest:                renderEntry(rcpt.Dest),
	}
}

// Create runs a transfer between two accounts or between two buckets of
// the same account. Earmarking money is a transfer from the personal
// share into a stored bucket of the same account.
func (h *TransfersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	// Unspecified buckets mean the personal share on either end.
	sourceBucket := domain.BucketKind(req.SourceBucket)
	if req.SourceBucket == "" {
		sourceBucket = domain.BucketPersonal
	}
	destBucket := domain.BucketKind(req.DestBucket)
	if req.DestBucket == "" {
		destBucket = domain.BucketPersonal
	}

	receipt, err := h.orchestrator.Transfer(r.Context(), ledger.TransferRequest{
		SourceAccountID: req.SourceAccountID,
		SourceBucket:    sourceBucket,
		SourceRef:       req.SourceRef,
		DestAccountID:   req.DestAccountID,
		DestBucket:      destBucket,
		DestRef:         req.DestRef,
		Amount:          amount,
		Category:        req.Category,
		Description:     req.Description,
		Date:            date,
	})
	if err != nil {
		h.log.Warn().Err(err).
			Str("source_account_id", req.SourceAccountID).
			Str("dest_account_id", req.DestAccountID).
			Msg("transfer rejected")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, renderReceipt(receipt))
}
