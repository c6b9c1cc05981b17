package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mstetsenko/pouch/internal/api/middleware"
	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store"
)

// AlertsHandler serves the reconciliation alerts raised when money moved
// but the books could not be fully updated.
type AlertsHandler struct {
	store store.Store
	log   zerolog.Logger
}

func NewAlertsHandler(st store.Store, log zerolog.Logger) *AlertsHandler {
	return &AlertsHandler{store: st, log: log}
}

type alertJSON struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	AccountID  string  `json:"account_id,omitempty"`
	TransferID string  `json:"transfer_id,omitempty"`
	Amount     string  `json:"amount,omitempty"`
	Message    string  `json:"message"`
	Resolved   bool    `json:"resolved"`
	ResolvedAt *string `json:"resolved_at,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

func renderAlert(a *domain.ReconciliationAlert) alertJSON {
	out := alertJSON{
		ID:         a.ID,
		Kind:       string(a.Kind),
		AccountID:  a.AccountID,
		TransferID: a.TransferID,
		Message:    a.Message,
		Resolved:   a.Resolved,
		CreatedAt:  a.CreatedAt.Format(timeLayout),
	}
	if !a.Amount.IsZero() {
		out.Amount = domain.FormatAmount(a.Amount)
	}
	if a.ResolvedAt != nil {
		s := a.ResolvedAt.Format(timeLayout)
		out.ResolvedAt = &s
	}
	return out
}

// List returns open alerts, or all with ?include_resolved=true.
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	includeResolved := r.URL.Query().Get("include_resolved") == "true"
	alerts, err := h.store.ListAlerts(r.Context(), includeResolved)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list alerts")
		middleware.WriteDomainError(w, err)
		return
	}

	out := make([]alertJSON, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, renderAlert(a))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": out,
		"count":  len(out),
	})
}

// Resolve marks an alert as handled after the operator repaired the
// underlying records.
func (h *AlertsHandler) Resolve(w http.ResponseWriter, r *http.Request, alertID string) {
	if err := h.store.ResolveAlert(r.Context(), alertID); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	h.log.Info().Str("alert_id", alertID).Msg("alert resolved")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "resolved",
		"alert_id": alertID,
	})
}
