package insights

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store"
)

type stubProjection struct {
	spend []store.CategorySpend
	err   error
}

func (s *stubProjection) InsertTransactions(context.Context, []*domain.Transaction) error {
	return nil
}

func (s *stubProjection) InsertCycleSnapshots(context.Context, string, []domain.CycleSnapshot) error {
	return nil
}

func (s *stubProjection) SpendingByCategory(context.Context, civil.Date, civil.Date) ([]store.CategorySpend, error) {
	return s.spend, s.err
}

func (s *stubProjection) TransactionsByDateRange(context.Context, civil.Date, civil.Date) ([]*domain.Transaction, error) {
	return nil, nil
}

func TestMonthlySummaryEmptyMonth(t *testing.T) {
	svc := NewService(&stubProjection{}, "key", "test-model", zerolog.Nop())

	report, err := svc.MonthlySummary(context.Background(), 2024, time.February)
	require.NoError(t, err)

	assert.Equal(t, "2024-02", report.Month)
	assert.True(t, report.TotalSpend.IsZero())
	assert.Empty(t, report.Categories)
	assert.Equal(t, "No spending recorded this month.", report.Narrative)
}

func TestSuggestCategoryValidatesInput(t *testing.T) {
	svc := NewService(&stubProjection{}, "key", "test-model", zerolog.Nop())

	_, err := svc.SuggestCategory(context.Background(), "  ", []string{"groceries"})
	assert.True(t, domain.IsCode(err, domain.CodeInvalidInput))

	_, err = svc.SuggestCategory(context.Background(), "weekly shop", nil)
	assert.True(t, domain.IsCode(err, domain.CodeInvalidInput))
}

func TestBuildSummaryPrompt(t *testing.T) {
	prompt := buildSummaryPrompt("2024-05", []store.CategorySpend{
		{Category: "groceries", Total: decimal.NewFromFloat(412.50)},
		{Category: "transport", Total: decimal.NewFromInt(80)},
	})

	assert.Contains(t, prompt, "Spending for 2024-05 by category:")
	assert.Contains(t, prompt, "- groceries: 412.50")
	assert.Contains(t, prompt, "- transport: 80.00")
	assert.Contains(t, prompt, "no Markdown")
}

func TestBuildCategoryPrompt(t *testing.T) {
	prompt := buildCategoryPrompt("COOP VESTERBRO 1123", []string{"groceries", "dining"})

	assert.Contains(t, prompt, "  - groceries\n")
	assert.Contains(t, prompt, "  - dining\n")
	assert.Contains(t, prompt, "Transaction description: COOP VESTERBRO 1123")
	assert.Contains(t, prompt, "EXACTLY one category name")
}

func TestMatchCategory(t *testing.T) {
	categories := []string{"Groceries", "dining", "transport"}

	got, ok := matchCategory(" groceries \n", categories)
	require.True(t, ok)
	assert.Equal(t, "Groceries", got)

	_, ok = matchCategory("entertainment", categories)
	assert.False(t, ok)
}

func TestCleanModelText(t *testing.T) {
	assert.Equal(t, "plain answer", cleanModelText("plain answer"))
	assert.Equal(t, "fenced answer", cleanModelText("```\nfenced answer\n```"))
	assert.Equal(t, "fenced with language", cleanModelText("```text\nfenced with language\n```"))
	assert.Equal(t, "surrounded by whitespace", cleanModelText("  surrounded by whitespace\t"))
	assert.Equal(t, "{\"k\": \"v\"}", cleanModelText("```json\n{\"k\": \"v\"}\n```\n"))
}

func TestMonthRange(t *testing.T) {
	from, to := monthRange(2024, time.February)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.February, Day: 1}, from)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.February, Day: 29}, to)

	from, to = monthRange(2023, time.December)
	assert.Equal(t, civil.Date{Year: 2023, Month: time.December, Day: 1}, from)
	assert.Equal(t, civil.Date{Year: 2023, Month: time.December, Day: 31}, to)
}
