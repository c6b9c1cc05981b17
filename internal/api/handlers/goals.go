package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mstetsenko/pouch/internal/api/middleware"
	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/goals"
	"github.com/mstetsenko/pouch/internal/store"
)

// GoalsHandler serves savings goals and their lifecycle operations.
type GoalsHandler struct {
	store store.Store
	svc   *goals.Service
	log   zerolog.Logger
}

func NewGoalsHandler(st store.Store, svc *goals.Service, log zerolog.Logger) *GoalsHandler {
	return &GoalsHandler{store: st, svc: svc, log: log}
}

type goalJSON struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	TargetAmount       string   `json:"target_amount"`
	CurrentAmount      string   `json:"current_amount"`
	ProgressPct        int      `json:"progress_pct"`
	TargetDate         *string  `json:"target_date,omitempty"`
	Currency           string   `json:"currency"`
	Achieved           bool     `json:"achieved"`
	AchievedAt         *string  `json:"achieved_at,omitempty"`
	Archived           bool     `json:"archived"`
	LinkedAccountIDs   []string `json:"linked_account_ids"`
	CompletionEligible bool     `json:"completion_eligible"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
}

func renderGoal(g *domain.Goal) goalJSON {
	out := goalJSON{
		ID:                 g.ID,
		Name:               g.Name,
		TargetAmount:       domain.FormatAmount(g.TargetAmount),
		CurrentAmount:      domain.FormatAmount(g.CurrentAmount),
		ProgressPct:        g.ProgressPercent(),
		TargetDate:         datePtrString(g.TargetDate),
		Currency:           g.Currency,
		Achieved:           g.Achieved,
		Archived:           g.Archived,
		LinkedAccountIDs:   g.LinkedAccountIDs,
		CompletionEligible: g.CompletionEligible(),
		CreatedAt:          g.CreatedAt.Format(timeLayout),
		UpdatedAt:          g.UpdatedAt.Format(timeLayout),
	}
	if g.AchievedAt != nil {
		s := g.AchievedAt.Format(timeLayout)
		out.AchievedAt = &s
	}
	return out
}

type milestoneJSON struct {
	GoalID      string `json:"goal_id"`
	Threshold   int    `json:"threshold"`
	PreviousPct int    `json:"previous_pct"`
	CurrentPct  int    `json:"current_pct"`
	Amount      string `json:"amount"`
	At          string `json:"at"`
}

func renderMilestone(m *domain.Milestone) *milestoneJSON {
	if m == nil {
		return nil
	}
	return &milestoneJSON{
		GoalID:      m.GoalID,
		Threshold:   m.Threshold,
		PreviousPct: m.PreviousPct,
		CurrentPct:  m.CurrentPct,
		Amount:      domain.FormatAmount(m.Amount),
		At:          m.At.Format(timeLayout),
	}
}

// List returns open goals, or all goals with ?include_closed=true.
func (h *GoalsHandler) List(w http.ResponseWriter, r *http.Request) {
	includeClosed := r.URL.Query().Get("include_closed") == "true"
	all, err := h.store.ListGoals(r.Context(), includeClosed)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list goals")
		middleware.WriteDomainError(w, err)
		return
	}

	out := make([]goalJSON, 0, len(all))
	for _, g := range all {
		out = append(out, renderGoal(g))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"goals": out,
		"count": len(out),
	})
}

type createGoalRequest struct {
	Name             string   `json:"name" validate:"required"`
	TargetAmount     string   `json:"target_amount" validate:"required"`
	TargetDate       string   `json:"target_date"`
	Currency         string   `json:"currency" validate:"required,len=3"`
	LinkedAccountIDs []string `json:"linked_account_ids" validate:"required,min=1"`
}

// Create registers a new goal. Funds arrive later through contributions;
// a goal always starts at zero.
func (h *GoalsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	target, err := parseAmount(req.TargetAmount)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	goal := &domain.Goal{
		Name:             req.Name,
		TargetAmount:     target,
		Currency:         req.Currency,
		LinkedAccountIDs: req.LinkedAccountIDs,
	}
	if req.TargetDate != "" {
		d, err := parseRequiredDate(req.TargetDate)
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
		goal.TargetDate = &d
	}

	if err := h.store.CreateGoal(r.Context(), goal); err != nil {
		h.log.Error().Err(err).Str("name", req.Name).Msg("failed to create goal")
		middleware.WriteDomainError(w, err)
		return
	}

	h.log.Info().Str("goal_id", goal.ID).Str("name", goal.Name).Msg("goal created")
	middleware.WriteJSON(w, http.StatusCreated, renderGoal(goal))
}

// Get returns one goal with its progress refreshed from the ledger.
func (h *GoalsHandler) Get(w http.ResponseWriter, r *http.Request, goalID string) {
	goal, err := h.svc.Progress(r.Context(), goalID)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, renderGoal(goal))
}

type contributeRequest struct {
	Amount          string `json:"amount" validate:"required"`
	SourceAccountID string `json:"source_account_id" validate:"required"`
	Date            string `json:"date"`
}

// Contribute earmarks money from an account's personal share into the
// goal's bucket on that account.
func (h *GoalsHandler) Contribute(w http.ResponseWriter, r *http.Request, goalID string) {
	var req contributeRequest
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

	result, err := h.svc.Contribute(r.Context(), goalID, amount, req.SourceAccountID, date)
	if err != nil {
		h.log.Warn().Err(err).Str("goal_id", goalID).Msg("contribution rejected")
		middleware.WriteDomainError(w, err)
		return
	}

	resp := map[string]interface{}{
		"goal":                renderGoal(result.Goal),
		"receipt":             renderReceipt(result.Receipt),
		"previous_amount":     domain.FormatAmount(result.PreviousAmount),
		"new_amount":          domain.FormatAmount(result.NewAmount),
		"completion_eligible": result.CompletionEligible,
	}
	if m := renderMilestone(result.Milestone); m != nil {
		resp["milestone"] = m
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

type withdrawRequest struct {
	Amount          string `json:"amount" validate:"required"`
	SourceAccountID string `json:"source_account_id"`
	DestAccountID   string `json:"dest_account_id" validate:"required"`
	Date            string `json:"date"`
}

// Withdraw releases part of the goal's funds back to an account's
// personal share. The goal stays open no matter how far the balance
// drops.
func (h *GoalsHandler) Withdraw(w http.ResponseWriter, r *http.Request, goalID string) {
	var req withdrawRequest
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

	result, err := h.svc.Withdraw(r.Context(), goalID, amount, req.SourceAccountID, req.DestAccountID, date)
	if err != nil {
		h.log.Warn().Err(err).Str("goal_id", goalID).Msg("withdrawal rejected")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"goal":       renderGoal(result.Goal),
		"receipt":    renderReceipt(result.Receipt),
		"new_amount": domain.FormatAmount(result.NewAmount),
	})
}

type completeRequest struct {
	Resolution    string `json:"resolution" validate:"required"`
	DestAccountID string `json:"dest_account_id"`
	Force         bool   `json:"force"`
	Date          string `json:"date"`
}

// Complete applies one of the explicit completion resolutions. Hitting
// 100% never closes a goal by itself.
func (h *GoalsHandler) Complete(w http.ResponseWriter, r *http.Request, goalID string) {
	var req completeRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	result, err := h.svc.Complete(r.Context(), goals.CompleteRequest{
		GoalID:        goalID,
		Resolution:    domain.CompletionResolution(req.Resolution),
		DestAccountID: req.DestAccountID,
		Force:         req.Force,
		Date:          date,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("goal_id", goalID).Str("resolution", req.Resolution).Msg("completion rejected")
		middleware.WriteDomainError(w, err)
		return
	}

	receipts := make([]receiptJSON, 0, len(result.Receipts))
	for _, rc := range result.Receipts {
		receipts = append(receipts, renderReceipt(rc))
	}
	resp := map[string]interface{}{
		"resolution": string(result.Resolution),
		"withdrawn":  domain.FormatAmount(result.Withdrawn),
		"receipts":   receipts,
		"deleted":    result.Deleted,
	}
	// Deletion leaves no goal to render.
	if result.Goal != nil {
		resp["goal"] = renderGoal(result.Goal)
	}

	h.log.Info().Str("goal_id", goalID).Str("resolution", req.Resolution).Bool("deleted", result.Deleted).Msg("goal completed")
	middleware.WriteJSON(w, http.StatusOK, resp)
}

type contributionJSON struct {
	ID            string `json:"id"`
	GoalID        string `json:"goal_id"`
	AccountID     string `json:"account_id"`
	Amount        string `json:"amount"`
	TransactionID string `json:"transaction_id"`
	Date          string `json:"date"`
	CreatedAt     string `json:"created_at"`
}

// Contributions lists the contribution history of one goal.
func (h *GoalsHandler) Contributions(w http.ResponseWriter, r *http.Request, goalID string) {
	if _, err := h.store.GetGoal(r.Context(), goalID); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	contributions, err := h.store.ListContributions(r.Context(), goalID)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	out := make([]contributionJSON, 0, len(contributions))
	for _, c := range contributions {
		out = append(out, contributionJSON{
			ID:            c.ID,
			GoalID:        c.GoalID,
			AccountID:     c.AccountID,
			Amount:        domain.FormatAmount(c.Amount),
			TransactionID: c.TransactionID,
			Date:          c.Date.String(),
			CreatedAt:     c.CreatedAt.Format(timeLayout),
		})
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"contributions": out,
		"count":         len(out),
	})
}
