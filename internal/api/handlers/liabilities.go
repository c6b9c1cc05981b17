package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mstetsenko/pouch/internal/api/middleware"
	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/liability"
	"github.com/mstetsenko/pouch/internal/store"
)

// LiabilitiesHandler serves liabilities and routes payments through the
// cycle reconciler.
type LiabilitiesHandler struct {
	store      store.Store
	reconciler *liability.Reconciler
	log        zerolog.Logger
}

func NewLiabilitiesHandler(st store.Store, rec *liability.Reconciler, log zerolog.Logger) *LiabilitiesHandler {
	return &LiabilitiesHandler{store: st, reconciler: rec, log: log}
}

type liabilityJSON struct {
	ID                   string                       `json:"id"`
	Name                 string                       `json:"name"`
	Currency             string                       `json:"currency"`
	CurrentBalance       string                       `json:"current_balance"`
	Frequency            string                       `json:"frequency"`
	DueDayOfMonth        int                          `json:"due_day_of_month,omitempty"`
	NextDueDate          string                       `json:"next_due_date"`
	LinkedAccountID      string                       `json:"linked_account_id,omitempty"`
	InstallmentTotal     string                       `json:"installment_total,omitempty"`
	InstallmentPrincipal string                       `json:"installment_principal,omitempty"`
	InstallmentInterest  string                       `json:"installment_interest,omitempty"`
	CycleStatistics      map[int]domain.CycleSnapshot `json:"cycle_statistics,omitempty"`
	CreatedAt            string                       `json:"created_at"`
	UpdatedAt            string                       `json:"updated_at"`
}

func renderLiability(l *domain.Liability) liabilityJSON {
	out := liabilityJSON{
		ID:              l.ID,
		Name:            l.Name,
		Currency:        l.Currency,
		CurrentBalance:  domain.FormatAmount(l.CurrentBalance),
		Frequency:       l.Frequency.String(),
		DueDayOfMonth:   l.DueDayOfMonth,
		NextDueDate:     l.NextDueDate.String(),
		LinkedAccountID: l.LinkedAccountID,
		CycleStatistics: l.CycleStatistics,
		CreatedAt:       l.CreatedAt.Format(timeLayout),
		UpdatedAt:       l.UpdatedAt.Format(timeLayout),
	}
	if l.InstallmentTotal.IsPositive() {
		out.InstallmentTotal = domain.FormatAmount(l.InstallmentTotal)
		out.InstallmentPrincipal = domain.FormatAmount(l.InstallmentPrincipal)
		out.InstallmentInterest = domain.FormatAmount(l.InstallmentInterest)
	}
	return out
}

// List returns every liability.
func (h *LiabilitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	liabilities, err := h.store.ListLiabilities(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list liabilities")
		middleware.WriteDomainError(w, err)
		return
	}

	out := make([]liabilityJSON, 0, len(liabilities))
	for _, l := range liabilities {
		out = append(out, renderLiability(l))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"liabilities": out,
		"count":       len(out),
	})
}

type createLiabilityRequest struct {
	Name                 string `json:"name" validate:"required"`
	Currency             string `json:"currency" validate:"required,len=3"`
	CurrentBalance       string `json:"current_balance"`
	Frequency            string `json:"frequency" validate:"required"`
	DueDayOfMonth        int    `json:"due_day_of_month" validate:"min=0,max=31"`
	NextDueDate          string `json:"next_due_date" validate:"required"`
	LinkedAccountID      string `json:"linked_account_id"`
	InstallmentTotal     string `json:"installment_total"`
	InstallmentPrincipal string `json:"installment_principal"`
	InstallmentInterest  string `json:"installment_interest"`
}

// Create registers a liability and immediately materializes its first
// upcoming bill so the payment path has something to settle.
func (h *LiabilitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLiabilityRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	freq, err := domain.ParseFrequency(req.Frequency)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	nextDue, err := parseRequiredDate(req.NextDueDate)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	balance, err := parseOptionalAmount(req.CurrentBalance)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	instTotal, err := parseOptionalAmount(req.InstallmentTotal)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	instPrincipal, err := parseOptionalAmount(req.InstallmentPrincipal)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	instInterest, err := parseOptionalAmount(req.InstallmentInterest)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	l := &domain.Liability{
		Name:                 req.Name,
		Currency:             req.Currency,
		CurrentBalance:       balance,
		Frequency:            freq,
		DueDayOfMonth:        req.DueDayOfMonth,
		NextDueDate:          nextDue,
		LinkedAccountID:      req.LinkedAccountID,
		InstallmentTotal:     instTotal,
		InstallmentPrincipal: instPrincipal,
		InstallmentInterest:  instInterest,
	}
	if err := h.store.CreateLiability(r.Context(), l); err != nil {
		h.log.Error().Err(err).Str("name", req.Name).Msg("failed to create liability")
		middleware.WriteDomainError(w, err)
		return
	}

	resp := map[string]interface{}{"liability": renderLiability(l)}
	// A missing first bill is not worth failing the create over; the
	// periodic refresh will materialize it.
	if bill, _, err := h.reconciler.EnsureUpcomingBill(r.Context(), l.ID); err != nil {
		h.log.Warn().Err(err).Str("liability_id", l.ID).Msg("first bill not created")
	} else {
		resp["bill"] = renderBill(bill)
	}

	h.log.Info().Str("liability_id", l.ID).Str("name", l.Name).Msg("liability created")
	middleware.WriteJSON(w, http.StatusCreated, resp)
}

// Get returns one liability together with its bills.
func (h *LiabilitiesHandler) Get(w http.ResponseWriter, r *http.Request, liabilityID string) {
	l, err := h.store.GetLiability(r.Context(), liabilityID)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	bills, err := h.store.ListBills(r.Context(), store.BillFilter{LiabilityID: liabilityID})
	if err != nil {
		h.log.Error().Err(err).Str("liability_id", liabilityID).Msg("failed to list bills")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"liability": renderLiability(l),
		"bills":     renderBills(bills),
	})
}

type payRequest struct {
	BillID      string `json:"bill_id"`
	AccountID   string `json:"account_id"`
	Amount      string `json:"amount" validate:"required"`
	PaymentDate string `json:"payment_date"`
	Note        string `json:"note"`
}

// Pay reconciles one payment against the liability. Without a bill id
// the earliest unpaid bill is settled.
func (h *LiabilitiesHandler) Pay(w http.ResponseWriter, r *http.Request, liabilityID string) {
	var req payRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	date, err := parseDate(req.PaymentDate)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	result, err := h.reconciler.PayBill(r.Context(), liability.PayBillRequest{
		LiabilityID: liabilityID,
		BillID:      req.BillID,
		AccountID:   req.AccountID,
		Amount:      amount,
		PaymentDate: date,
		Note:        req.Note,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("liability_id", liabilityID).Msg("payment rejected")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"bill":          renderBill(result.Bill),
		"liability":     renderLiability(result.Liability),
		"snapshot":      result.Snapshot,
		"entry":         renderEntry(result.Entry),
		"next_due_date": result.NextDueDate.String(),
		"auto_created":  result.AutoCreated,
	})
}

type paymentJSON struct {
	ID                 string               `json:"id"`
	LiabilityID        string               `json:"liability_id"`
	BillID             string               `json:"bill_id"`
	CycleNumber        int                  `json:"cycle_number"`
	TransactionID      string               `json:"transaction_id"`
	PrincipalComponent string               `json:"principal_component"`
	InterestComponent  string               `json:"interest_component"`
	Classification     domain.CycleSnapshot `json:"classification"`
	CreatedAt          string               `json:"created_at"`
}

// Payments lists the reconciled payment history of one liability.
func (h *LiabilitiesHandler) Payments(w http.ResponseWriter, r *http.Request, liabilityID string) {
	if _, err := h.store.GetLiability(r.Context(), liabilityID); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	payments, err := h.store.ListPayments(r.Context(), liabilityID)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	out := make([]paymentJSON, 0, len(payments))
	for _, p := range payments {
		out = append(out, paymentJSON{
			ID:                 p.ID,
			LiabilityID:        p.LiabilityID,
			BillID:             p.BillID,
			CycleNumber:        p.CycleNumber,
			TransactionID:      p.TransactionID,
			PrincipalComponent: domain.FormatAmount(p.PrincipalComponent),
			InterestComponent:  domain.FormatAmount(p.InterestComponent),
			Classification:     p.Classification,
			CreatedAt:          p.CreatedAt.Format(timeLayout),
		})
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"payments": out,
		"count":    len(out),
	})
}
