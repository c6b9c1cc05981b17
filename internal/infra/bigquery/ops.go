package bigquery

import (
	"context"
	"fmt"
	"math/big"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store"
)

// InsertTransactions implements Projection: a batch append via the
// streaming inserter.
func (p *Projection) InsertTransactions(ctx context.Context, txns []*domain.Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	rows := make([]*transactionRow, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, transactionToRow(t))
	}
	if err := p.table(transactionsTable).Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

// InsertCycleSnapshots implements Projection.
func (p *Projection) InsertCycleSnapshots(ctx context.Context, liabilityID string, snapshots []domain.CycleSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	rows := make([]*snapshotRow, 0, len(snapshots))
	for _, s := range snapshots {
		rows = append(rows, snapshotToRow(liabilityID, s))
	}
	if err := p.table(snapshotsTable).Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertCycleSnapshots: inserting rows: %w", err)
	}
	return nil
}

// SpendingByCategory implements Projection. Debits within the range are
// summed per category, reported as positive spend, biggest first.
func (p *Projection) SpendingByCategory(ctx context.Context, from, to civil.Date) ([]store.CategorySpend, error) {
	q := p.client.Query(fmt.Sprintf(`
		SELECT
			category,
			SUM(-amount) AS total
		FROM %s
		WHERE transaction_date >= @from_date
		  AND transaction_date <= @to_date
		  AND amount < 0
		GROUP BY category
		ORDER BY total DESC
	`, p.qualified(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "from_date", Value: from.String()},
		{Name: "to_date", Value: to.String()},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("SpendingByCategory: query read: %w", err)
	}

	var result []store.CategorySpend
	for {
		var row struct {
			Category string   `bigquery:"category"`
			Total    *big.Rat `bigquery:"total"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("SpendingByCategory: iter next: %w", err)
		}
		result = append(result, store.CategorySpend{
			Category: row.Category,
			Total:    decimal.NewFromBigRat(row.Total, numericScale),
		})
	}
	return result, nil
}

// TransactionsByDateRange implements Projection, ordered by date then
// insertion time.
func (p *Projection) TransactionsByDateRange(ctx context.Context, from, to civil.Date) ([]*domain.Transaction, error) {
	q := p.client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			account_id,
			amount,
			currency,
			category,
			description,
			transaction_date,
			bucket_kind,
			bucket_ref,
			transfer_id,
			created_ts
		FROM %s
		WHERE transaction_date >= @from_date
		  AND transaction_date <= @to_date
		ORDER BY transaction_date, created_ts
	`, p.qualified(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "from_date", Value: from.String()},
		{Name: "to_date", Value: to.String()},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("TransactionsByDateRange: query read: %w", err)
	}

	var result []*domain.Transaction
	for {
		var row transactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("TransactionsByDateRange: iter next: %w", err)
		}
		result = append(result, row.toDomain())
	}
	return result, nil
}
