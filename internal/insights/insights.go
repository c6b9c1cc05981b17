// Package insights generates narrative spending summaries and category
// suggestions with Gemini, fed from the reporting projection. Output is
// advisory text for the owner; nothing here writes to the ledger.
package insights

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store"
)

// Service talks to the model on behalf of the reporting endpoints.
type Service struct {
	projection store.Projection
	apiKey     string
	model      string
	log        zerolog.Logger
}

// NewService creates an insights service using the given model name.
func NewService(projection store.Projection, apiKey, model string, log zerolog.Logger) *Service {
	return &Service{
		projection: projection,
		apiKey:     apiKey,
		model:      model,
		log:        log.With().Str("component", "insights").Logger(),
	}
}

// MonthlyReport is the narrative summary of one calendar month.
type MonthlyReport struct {
	Month      string                `json:"month"`
	TotalSpend decimal.Decimal       `json:"total_spend"`
	Categories []store.CategorySpend `json:"categories"`
	Narrative  string                `json:"narrative"`
}

// MonthlySummary aggregates the month's spending from the projection
// and asks the model for a short narrative about it.
func (s *Service) MonthlySummary(ctx context.Context, year int, month time.Month) (*MonthlyReport, error) {
	from, to := monthRange(year, month)
	categories, err := s.projection.SpendingByCategory(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("MonthlySummary: reading spending: %w", err)
	}

	report := &MonthlyReport{
		Month:      fmt.Sprintf("%04d-%02d", year, month),
		Categories: categories,
		TotalSpend: decimal.Zero,
	}
	for _, c := range categories {
		report.TotalSpend = report.TotalSpend.Add(c.Total)
	}

	if len(categories) == 0 {
		report.Narrative = "No spending recorded this month."
		return report, nil
	}

	narrative, err := s.generate(ctx, buildSummaryPrompt(report.Month, categories))
	if err != nil {
		return nil, fmt.Errorf("MonthlySummary: %w", err)
	}
	report.Narrative = narrative

	s.log.Info().
		Str("month", report.Month).
		Int("categories", len(categories)).
		Str("total", domain.FormatAmount(report.TotalSpend)).
		Msg("monthly summary generated")
	return report, nil
}

// SuggestCategory asks the model to pick the best matching category for
// a transaction description, constrained to the caller's category set.
func (s *Service) SuggestCategory(ctx context.Context, description string, categories []string) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", domain.E(domain.CodeInvalidInput, "description is required")
	}
	if len(categories) == 0 {
		return "", domain.E(domain.CodeInvalidInput, "at least one category is required")
	}

	raw, err := s.generate(ctx, buildCategoryPrompt(description, categories))
	if err != nil {
		return "", fmt.Errorf("SuggestCategory: %w", err)
	}

	suggestion, ok := matchCategory(raw, categories)
	if !ok {
		return "", fmt.Errorf("SuggestCategory: model suggested unknown category %q", raw)
	}
	return suggestion, nil
}

// generate runs one text prompt through the model.
func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      s.apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return "", fmt.Errorf("create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := cleanModelText(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

func buildSummaryPrompt(month string, categories []store.CategorySpend) string {
	var b strings.Builder
	b.WriteString("You are a personal finance assistant.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Summarize the month's spending below in 3-4 plain sentences.\n")
	b.WriteString("- Mention the largest category and anything unusual about the distribution.\n")
	b.WriteString("- Write in second person, no greetings, no bullet points, no Markdown.\n\n")
	b.WriteString("Spending for " + month + " by category:\n")
	for _, c := range categories {
		b.WriteString(fmt.Sprintf("- %s: %s\n", c.Category, domain.FormatAmount(c.Total)))
	}
	return b.String()
}

func buildCategoryPrompt(description string, categories []string) string {
	var b strings.Builder
	b.WriteString("You are a transaction categorizer for a personal finance tracker.\n\n")
	b.WriteString("Use ONLY the following categories:\n")
	for _, c := range categories {
		b.WriteString("  - " + c + "\n")
	}
	b.WriteString("\nRULES:\n")
	b.WriteString("1. Answer with EXACTLY one category name from the list above.\n")
	b.WriteString("2. Output the bare name only: no punctuation, no explanation, no Markdown.\n\n")
	b.WriteString("Transaction description: " + description + "\n")
	return b.String()
}

// matchCategory finds the list entry the model meant, tolerating case
// and whitespace drift.
func matchCategory(raw string, categories []string) (string, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	for _, c := range categories {
		if strings.ToLower(strings.TrimSpace(c)) == cleaned {
			return c, true
		}
	}
	return "", false
}

// cleanModelText strips Markdown fences the model sometimes adds
// despite instructions.
func cleanModelText(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return strings.Trim(s, "`")
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func monthRange(year int, month time.Month) (civil.Date, civil.Date) {
	from := civil.Date{Year: year, Month: month, Day: 1}
	// Day zero of the following month is the last day of this one.
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	return from, civil.DateOf(last)
}
