// Package bigquery streams settled ledger records into BigQuery and
// serves the reporting queries from there. The projection is eventually
// consistent: writers push after commit, readers accept bounded
// staleness and never feed results back into balance decisions.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/mstetsenko/pouch/internal/store"
)

const (
	transactionsTable = "transactions"
	snapshotsTable    = "cycle_snapshots"
)

// Projection wraps a BigQuery client pinned to one dataset.
type Projection struct {
	client  *bigquery.Client
	project string
	dataset string
}

// NewProjection creates a client for the given project and dataset.
func NewProjection(ctx context.Context, project, dataset string) (*Projection, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewProjection: bigquery client: %w", err)
	}
	return &Projection{client: client, project: project, dataset: dataset}, nil
}

// NewProjectionWithClient wraps an existing client, mainly for tooling
// that manages the client lifecycle itself.
func NewProjectionWithClient(client *bigquery.Client, project, dataset string) *Projection {
	return &Projection{client: client, project: project, dataset: dataset}
}

// Close releases the underlying client.
func (p *Projection) Close() error {
	return p.client.Close()
}

// EnsureSchema creates the dataset and tables when they do not exist
// yet. Existing tables are left alone.
func (p *Projection) EnsureSchema(ctx context.Context) error {
	ds := p.client.DatasetInProject(p.project, p.dataset)
	if _, err := ds.Metadata(ctx); err != nil {
		if err := ds.Create(ctx, &bigquery.DatasetMetadata{Name: p.dataset}); err != nil {
			return fmt.Errorf("EnsureSchema: creating dataset %s: %w", p.dataset, err)
		}
	}

	tables := map[string]interface{}{
		transactionsTable: transactionRow{},
		snapshotsTable:    snapshotRow{},
	}
	for name, prototype := range tables {
		table := ds.Table(name)
		if _, err := table.Metadata(ctx); err == nil {
			continue
		}
		schema, err := bigquery.InferSchema(prototype)
		if err != nil {
			return fmt.Errorf("EnsureSchema: inferring schema for %s: %w", name, err)
		}
		if err := table.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
			return fmt.Errorf("EnsureSchema: creating table %s: %w", name, err)
		}
	}
	return nil
}

func (p *Projection) table(name string) *bigquery.Table {
	return p.client.DatasetInProject(p.project, p.dataset).Table(name)
}

func (p *Projection) qualified(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", p.project, p.dataset, name)
}

var _ store.Projection = (*Projection)(nil)
