// Package archive writes point-in-time ledger snapshots to Google
// Cloud Storage and reads them back. Snapshots are plain JSON objects
// under snapshots/ in the configured bucket; they are an operator
// audit trail, never an input to balance decisions.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store"
)

// AccountState is one account with its bucket partition at capture
// time. Personal is the derived share, frozen into the snapshot so the
// file is self-contained.
type AccountState struct {
	Account  *domain.Account `json:"account"`
	Buckets  []domain.Bucket `json:"buckets"`
	Personal decimal.Decimal `json:"personal"`
}

// Snapshot is the full ledger state written to storage.
type Snapshot struct {
	TakenAt     time.Time           `json:"taken_at"`
	Accounts    []AccountState      `json:"accounts"`
	Goals       []*domain.Goal      `json:"goals"`
	Liabilities []*domain.Liability `json:"liabilities"`
}

// Archiver captures snapshots from the primary store and moves them to
// and from the bucket.
type Archiver struct {
	store  store.Store
	bucket string
	log    zerolog.Logger

	now func() time.Time
}

// NewArchiver creates an archiver writing to the given bucket.
func NewArchiver(st store.Store, bucket string, log zerolog.Logger) *Archiver {
	return &Archiver{
		store:  st,
		bucket: bucket,
		log:    log.With().Str("component", "archive").Logger(),
		now:    time.Now,
	}
}

// Capture assembles a snapshot from the primary store.
func (a *Archiver) Capture(ctx context.Context) (*Snapshot, error) {
	accounts, err := a.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("Capture: listing accounts: %w", err)
	}

	snap := &Snapshot{TakenAt: a.now().UTC()}
	for _, acc := range accounts {
		buckets, err := a.store.ReadBuckets(ctx, acc.ID)
		if err != nil {
			return nil, fmt.Errorf("Capture: reading buckets of %s: %w", acc.ID, err)
		}
		snap.Accounts = append(snap.Accounts, AccountState{
			Account:  acc,
			Buckets:  buckets,
			Personal: acc.PersonalBalance(buckets),
		})
	}

	goals, err := a.store.ListGoals(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("Capture: listing goals: %w", err)
	}
	snap.Goals = goals

	liabilities, err := a.store.ListLiabilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("Capture: listing liabilities: %w", err)
	}
	snap.Liabilities = liabilities

	return snap, nil
}

// Upload serializes the snapshot and writes it to the bucket, returning
// the gs:// URI of the new object.
func (a *Archiver) Upload(ctx context.Context, snap *Snapshot) (string, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("Upload: marshaling snapshot: %w", err)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("Upload: create storage client: %w", err)
	}
	defer client.Close()

	object := ObjectName(snap.TakenAt)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Upload: writing object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Upload: finalize upload: %w", err)
	}

	uri := fmt.Sprintf("gs://%s/%s", a.bucket, object)
	a.log.Info().
		Str("uri", uri).
		Int("accounts", len(snap.Accounts)).
		Int("goals", len(snap.Goals)).
		Int("liabilities", len(snap.Liabilities)).
		Msg("snapshot archived")
	return uri, nil
}

// Fetch downloads and decodes the snapshot behind a gs:// URI.
func (a *Archiver) Fetch(ctx context.Context, uri string) (*Snapshot, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: create storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}

	snap := &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("Fetch: decoding snapshot: %w", err)
	}
	return snap, nil
}

// ObjectName builds the bucket path for a snapshot taken at ts.
func ObjectName(ts time.Time) string {
	return fmt.Sprintf("snapshots/%s.json", ts.UTC().Format("2006-01-02T150405Z"))
}

// ParseURI splits a gs://bucket/object URI.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
