package handlers

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mstetsenko/pouch/internal/api/middleware"
	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/liability"
	"github.com/mstetsenko/pouch/internal/store"
)

// BillsHandler serves bills across liabilities and the due-date
// operations that do not involve money.
type BillsHandler struct {
	store      store.Store
	reconciler *liability.Reconciler
	log        zerolog.Logger
}

func NewBillsHandler(st store.Store, rec *liability.Reconciler, log zerolog.Logger) *BillsHandler {
	return &BillsHandler{store: st, reconciler: rec, log: log}
}

type billJSON struct {
	ID               string                `json:"id"`
	LiabilityID      string                `json:"liability_id"`
	CycleNumber      int                   `json:"cycle_number"`
	DueDate          string                `json:"due_date"`
	OriginalDueDate  string                `json:"original_due_date"`
	Total            string                `json:"total"`
	Principal        string                `json:"principal"`
	Interest         string                `json:"interest"`
	Fee              string                `json:"fee"`
	InterestIncluded bool                  `json:"interest_included"`
	Status           string                `json:"status"`
	LinkedAccountID  string                `json:"linked_account_id,omitempty"`
	Classification   *domain.CycleSnapshot `json:"classification,omitempty"`
	PaidAt           *string               `json:"paid_at,omitempty"`
	Note             string                `json:"note,omitempty"`
	CreatedAt        string                `json:"created_at"`
	UpdatedAt        string                `json:"updated_at"`
}

func renderBill(b *domain.Bill) billJSON {
	out := billJSON{
		ID:               b.ID,
		LiabilityID:      b.LiabilityID,
		CycleNumber:      b.CycleNumber,
		DueDate:          b.DueDate.String(),
		OriginalDueDate:  b.OriginalDueDate.String(),
		Total:            domain.FormatAmount(b.Total),
		Principal:        domain.FormatAmount(b.Principal),
		Interest:         domain.FormatAmount(b.Interest),
		Fee:              domain.FormatAmount(b.Fee),
		InterestIncluded: b.InterestIncluded,
		Status:           string(b.Status),
		LinkedAccountID:  b.LinkedAccountID,
		Classification:   b.Classification,
		Note:             b.Note,
		CreatedAt:        b.CreatedAt.Format(timeLayout),
		UpdatedAt:        b.UpdatedAt.Format(timeLayout),
	}
	if b.PaidAt != nil {
		s := b.PaidAt.Format(timeLayout)
		out.PaidAt = &s
	}
	return out
}

func renderBills(bills []*domain.Bill) []billJSON {
	out := make([]billJSON, 0, len(bills))
	for _, b := range bills {
		out = append(out, renderBill(b))
	}
	return out
}

// List returns bills, filterable by liability, status and due date:
// ?liability_id=...&status=upcoming,overdue&due_before=2024-07-01.
func (h *BillsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.BillFilter{LiabilityID: q.Get("liability_id")}

	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := domain.BillStatus(strings.TrimSpace(s))
			if !status.Valid() {
				middleware.WriteDomainError(w, domain.Ef(domain.CodeInvalidInput, "unknown bill status %q", s))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if raw := q.Get("due_before"); raw != "" {
		d, err := parseRequiredDate(raw)
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
		filter.DueBefore = &d
	}

	bills, err := h.store.ListBills(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list bills")
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"bills": renderBills(bills),
		"count": len(bills),
	})
}

type dueDateRequest struct {
	DueDate string `json:"due_date" validate:"required"`
}

// Postpone pushes an unpaid bill's due date out, keeping the original
// date so reconciliation still measures timing against it.
func (h *BillsHandler) Postpone(w http.ResponseWriter, r *http.Request, billID string) {
	var req dueDateRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	newDate, err := parseRequiredDate(req.DueDate)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	bill, err := h.reconciler.Postpone(r.Context(), billID, newDate)
	if err != nil {
		h.log.Warn().Err(err).Str("bill_id", billID).Msg("postpone rejected")
		middleware.WriteDomainError(w, err)
		return
	}
	h.log.Info().Str("bill_id", billID).Str("due_date", newDate.String()).Msg("bill postponed")
	middleware.WriteJSON(w, http.StatusOK, renderBill(bill))
}

// EditDueDate corrects a bill's due date, rebasing the original date as
// well. Use Postpone to defer while keeping the expected date.
func (h *BillsHandler) EditDueDate(w http.ResponseWriter, r *http.Request, billID string) {
	var req dueDateRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	newDate, err := parseRequiredDate(req.DueDate)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	bill, err := h.reconciler.EditDueDate(r.Context(), billID, newDate)
	if err != nil {
		h.log.Warn().Err(err).Str("bill_id", billID).Msg("due date edit rejected")
		middleware.WriteDomainError(w, err)
		return
	}
	h.log.Info().Str("bill_id", billID).Str("due_date", newDate.String()).Msg("bill due date edited")
	middleware.WriteJSON(w, http.StatusOK, renderBill(bill))
}

// Refresh re-derives the status of every unpaid bill from today's date.
func (h *BillsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	updated, err := h.reconciler.RefreshBillStatuses(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to refresh bill statuses")
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"updated": updated,
	})
}

// Get returns a single bill.
func (h *BillsHandler) Get(w http.ResponseWriter, r *http.Request, billID string) {
	bill, err := h.store.GetBill(r.Context(), billID)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, renderBill(bill))
}
