package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/mstetsenko/pouch/internal/api/middleware"
	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/insights"
	"github.com/mstetsenko/pouch/internal/store"
)

// InsightsHandler serves the model-generated summaries. The service is
// optional: without an API key every endpoint answers 503.
type InsightsHandler struct {
	svc   *insights.Service
	store store.Store
	log   zerolog.Logger
}

func NewInsightsHandler(svc *insights.Service, st store.Store, log zerolog.Logger) *InsightsHandler {
	return &InsightsHandler{svc: svc, store: st, log: log}
}

func (h *InsightsHandler) configured(w http.ResponseWriter) bool {
	if h.svc == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Insights are not configured")
		return false
	}
	return true
}

// Monthly returns the narrative spending summary for one month:
// ?year=2024&month=2.
func (h *InsightsHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}

	q := r.URL.Query()
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		middleware.WriteDomainError(w, domain.Ef(domain.CodeInvalidInput, "invalid year %q", q.Get("year")))
		return
	}
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil || month < 1 || month > 12 {
		middleware.WriteDomainError(w, domain.Ef(domain.CodeInvalidInput, "invalid month %q", q.Get("month")))
		return
	}

	report, err := h.svc.MonthlySummary(r.Context(), year, time.Month(month))
	if err != nil {
		h.log.Error().Err(err).Int("year", year).Int("month", month).Msg("failed to build monthly summary")
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

type suggestCategoryRequest struct {
	Description string   `json:"description" validate:"required"`
	Categories  []string `json:"categories"`
}

// SuggestCategory asks the model to pick a category for a free-form
// description. Without an explicit category list the distinct categories
// of recent transactions are offered.
func (h *InsightsHandler) SuggestCategory(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}

	var req suggestCategoryRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	categories := req.Categories
	if len(categories) == 0 {
		var err error
		categories, err = h.recentCategories(r)
		if err != nil {
			h.log.Error().Err(err).Msg("failed to collect categories")
			middleware.WriteDomainError(w, err)
			return
		}
	}

	category, err := h.svc.SuggestCategory(r.Context(), req.Description, categories)
	if err != nil {
		h.log.Warn().Err(err).Str("description", req.Description).Msg("category suggestion failed")
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"description": req.Description,
		"category":    category,
	})
}

func (h *InsightsHandler) recentCategories(r *http.Request) ([]string, error) {
	transactions, err := h.store.ListTransactions(r.Context(), store.TransactionFilter{Limit: 500})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var categories []string
	for _, t := range transactions {
		if t.Category == "" || seen[t.Category] {
			continue
		}
		seen[t.Category] = true
		categories = append(categories, t.Category)
	}
	sort.Strings(categories)
	return categories, nil
}
