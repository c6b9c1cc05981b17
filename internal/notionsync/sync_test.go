package notionsync

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jomei/notionapi"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/logger"
	"github.com/mstetsenko/pouch/internal/store/inmemory"
)

type mockNotion struct {
	createFn func(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error)
	updateFn func(ctx context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error)
	queryFn  func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	deleteFn func(ctx context.Context, pageID string) error
}

func (m *mockNotion) CreatePage(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error) {
	if m.createFn == nil {
		return &notionapi.Page{ID: "page-new"}, nil
	}
	return m.createFn(ctx, databaseID, props)
}

func (m *mockNotion) UpdatePage(ctx context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error) {
	if m.updateFn == nil {
		return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
	}
	return m.updateFn(ctx, pageID, props)
}

func (m *mockNotion) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if m.queryFn == nil {
		return &notionapi.DatabaseQueryResponse{}, nil
	}
	return m.queryFn(ctx, databaseID, req)
}

func (m *mockNotion) DeletePage(ctx context.Context, pageID string) error {
	if m.deleteFn == nil {
		return nil
	}
	return m.deleteFn(ctx, pageID)
}

func billPage(pageID, billID string) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID(pageID),
		Properties: notionapi.Properties{
			"Bill ID": &notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{PlainText: billID}},
			},
		},
	}
}

func syncFixture(t *testing.T) (context.Context, *inmemory.Store, string, string) {
	t.Helper()
	ctx := logger.WithContext(context.Background(), zerolog.Nop())
	st := inmemory.New()

	account := &domain.Account{
		Name:     "Checking",
		Kind:     domain.AccountGeneral,
		Currency: "EUR",
		Active:   true,
	}
	require.NoError(t, st.CreateAccount(ctx, account))

	liability := &domain.Liability{
		Name:            "Car loan",
		Currency:        "EUR",
		Frequency:       domain.Frequency{Unit: domain.FrequencyMonthly},
		NextDueDate:     civil.Date{Year: 2024, Month: time.July, Day: 1},
		LinkedAccountID: account.ID,
	}
	require.NoError(t, st.CreateLiability(ctx, liability))

	first, err := st.UpsertBill(ctx, &domain.Bill{
		LiabilityID: liability.ID,
		CycleNumber: 1,
		DueDate:     civil.Date{Year: 2024, Month: time.July, Day: 1},
		Total:       decimal.NewFromInt(250),
		Status:      domain.BillUpcoming,
	})
	require.NoError(t, err)

	second, err := st.UpsertBill(ctx, &domain.Bill{
		LiabilityID: liability.ID,
		CycleNumber: 2,
		DueDate:     civil.Date{Year: 2024, Month: time.August, Day: 1},
		Total:       decimal.NewFromInt(250),
		Status:      domain.BillUpcoming,
	})
	require.NoError(t, err)

	return ctx, st, first, second
}

func TestSyncBillsCreatesUpdatesArchives(t *testing.T) {
	ctx, st, first, second := syncFixture(t)

	var createdBillIDs, updatedPageIDs, archivedPageIDs []string
	client := &mockNotion{
		queryFn: func(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return &notionapi.DatabaseQueryResponse{
				Results: []notionapi.Page{
					billPage("page-stale", "gone"),
					billPage("page-live", first),
				},
			}, nil
		},
		createFn: func(_ context.Context, _ string, props notionapi.Properties) (*notionapi.Page, error) {
			rich := props["Bill ID"].(notionapi.RichTextProperty)
			createdBillIDs = append(createdBillIDs, rich.RichText[0].Text.Content)
			return &notionapi.Page{ID: "page-created"}, nil
		},
		updateFn: func(_ context.Context, pageID string, _ notionapi.Properties) (*notionapi.Page, error) {
			updatedPageIDs = append(updatedPageIDs, pageID)
			return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
		},
		deleteFn: func(_ context.Context, pageID string) error {
			archivedPageIDs = append(archivedPageIDs, pageID)
			return nil
		},
	}

	require.NoError(t, SyncBills(ctx, st, client, "db-1", false))

	assert.Equal(t, []string{second}, createdBillIDs)
	assert.Equal(t, []string{"page-live"}, updatedPageIDs)
	assert.Equal(t, []string{"page-stale"}, archivedPageIDs)
}

func TestSyncBillsDryRunMutatesNothing(t *testing.T) {
	ctx, st, first, _ := syncFixture(t)

	client := &mockNotion{
		queryFn: func(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return &notionapi.DatabaseQueryResponse{
				Results: []notionapi.Page{
					billPage("page-stale", "gone"),
					billPage("page-live", first),
				},
			}, nil
		},
		createFn: func(context.Context, string, notionapi.Properties) (*notionapi.Page, error) {
			t.Error("CreatePage called during dry run")
			return &notionapi.Page{}, nil
		},
		updateFn: func(context.Context, string, notionapi.Properties) (*notionapi.Page, error) {
			t.Error("UpdatePage called during dry run")
			return &notionapi.Page{}, nil
		},
		deleteFn: func(context.Context, string) error {
			t.Error("DeletePage called during dry run")
			return nil
		},
	}

	require.NoError(t, SyncBills(ctx, st, client, "db-1", true))
}

func TestSyncBillsPaginatesQuery(t *testing.T) {
	ctx, st, first, second := syncFixture(t)

	var calls int
	client := &mockNotion{
		queryFn: func(_ context.Context, _ string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			calls++
			if calls == 1 {
				assert.Empty(t, req.StartCursor)
				return &notionapi.DatabaseQueryResponse{
					Results:    []notionapi.Page{billPage("page-one", first)},
					HasMore:    true,
					NextCursor: "cursor-2",
				}, nil
			}
			assert.Equal(t, notionapi.Cursor("cursor-2"), req.StartCursor)
			return &notionapi.DatabaseQueryResponse{
				Results: []notionapi.Page{billPage("page-two", second)},
			}, nil
		},
	}

	require.NoError(t, SyncBills(ctx, st, client, "db-1", false))
	assert.Equal(t, 2, calls)
}

func TestBillToProperties(t *testing.T) {
	bill := &domain.Bill{
		ID:               "bill-7",
		LiabilityID:      "liab-1",
		CycleNumber:      3,
		DueDate:          civil.Date{Year: 2024, Month: time.March, Day: 15},
		OriginalDueDate:  civil.Date{Year: 2024, Month: time.March, Day: 1},
		Total:            decimal.RequireFromString("129.99"),
		Interest:         decimal.RequireFromString("12.50"),
		InterestIncluded: true,
		Status:           domain.BillPostponed,
		Note:             "moved past the trip",
	}

	props := BillToProperties("Car loan", bill)

	title := props["Name"].(notionapi.TitleProperty)
	assert.Equal(t, "Car loan cycle 3", title.Title[0].Text.Content)

	billID := props["Bill ID"].(notionapi.RichTextProperty)
	assert.Equal(t, "bill-7", billID.RichText[0].Text.Content)

	status := props["Status"].(notionapi.SelectProperty)
	assert.Equal(t, "postponed", status.Select.Name)

	due := props["Due Date"].(notionapi.DateProperty)
	assert.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), time.Time(*due.Date.Start))

	_, hasOriginal := props["Original Due Date"]
	assert.True(t, hasOriginal, "postponed bill keeps its original date")

	amount := props["Amount"].(notionapi.NumberProperty)
	assert.InDelta(t, 129.99, amount.Number, 0.001)

	_, hasFee := props["Fee"]
	assert.False(t, hasFee, "zero fee is omitted")

	note := props["Note"].(notionapi.RichTextProperty)
	assert.Equal(t, "moved past the trip", note.RichText[0].Text.Content)
}

func TestBillToPropertiesUnpostponedOmitsOriginalDate(t *testing.T) {
	due := civil.Date{Year: 2024, Month: time.April, Day: 10}
	props := BillToProperties("Rent", &domain.Bill{
		ID:              "bill-8",
		CycleNumber:     1,
		DueDate:         due,
		OriginalDueDate: due,
		Total:           decimal.NewFromInt(900),
		Status:          domain.BillUpcoming,
	})

	_, hasOriginal := props["Original Due Date"]
	assert.False(t, hasOriginal)
}

func TestExtractBillID(t *testing.T) {
	assert.Equal(t, "bill-1", ExtractBillID(billPage("page-1", "bill-1")))
	assert.Equal(t, "", ExtractBillID(notionapi.Page{Properties: notionapi.Properties{}}))
}
