// Package worker executes queued background tasks against the core
// services. The same dispatch runs in-process inside the API binary and
// standalone in the worker binary, so single-instance and split
// deployments behave identically.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/mstetsenko/pouch/internal/archive"
	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/jobs"
	"github.com/mstetsenko/pouch/internal/ledger"
	"github.com/mstetsenko/pouch/internal/liability"
	"github.com/mstetsenko/pouch/internal/logger"
	"github.com/mstetsenko/pouch/internal/notionsync"
	"github.com/mstetsenko/pouch/internal/store"
)

// Deps wires the services tasks dispatch to. The optional fields may be
// nil; their task kinds then log and complete without doing anything,
// so a half-configured deployment does not wedge the queue with
// permanently failing tasks.
type Deps struct {
	Store        store.Store
	Orchestrator *ledger.Orchestrator
	Reconciler   *liability.Reconciler

	Projection    store.Projection
	Archiver      *archive.Archiver
	Notion        notionsync.NotionService
	NotionBillsDB string

	Log zerolog.Logger
}

// ExportWindow bounds an export run by transaction date. The zero value
// means the previous calendar day, which is what the nightly schedule
// wants; a rebuild passes an explicit range instead.
type ExportWindow struct {
	From civil.Date `json:"from"`
	To   civil.Date `json:"to"`
}

// Handler returns the dispatch for every task kind. A returned error
// requeues the task until its retries run out.
func Handler(d Deps) jobs.Handler {
	return func(ctx context.Context, task *jobs.Task) error {
		log := d.Log.With().Str("task_id", task.ID).Str("kind", string(task.Kind)).Logger()

		switch task.Kind {
		case jobs.KindCompensateTransfer:
			return d.compensate(ctx, task)

		case jobs.KindRefreshBills:
			updated, err := d.Reconciler.RefreshBillStatuses(ctx)
			if err != nil {
				return err
			}
			log.Info().Int("updated", updated).Msg("bill statuses refreshed")
			return nil

		case jobs.KindExportProjection:
			return d.exportProjection(ctx, log, task)

		case jobs.KindArchiveSnapshot:
			return d.archiveSnapshot(ctx, log)

		case jobs.KindSyncNotion:
			if d.Notion == nil || d.NotionBillsDB == "" {
				log.Warn().Msg("notion sync is not configured, dropping task")
				return nil
			}
			return notionsync.SyncBills(logger.WithContext(ctx, log), d.Store, d.Notion, d.NotionBillsDB, false)

		default:
			return fmt.Errorf("unknown task kind %q", task.Kind)
		}
	}
}

// ExhaustedHook escalates compensation tasks that burned through their
// retries. Other kinds just log: losing a maintenance run is harmless,
// losing a compensation is not.
func ExhaustedHook(d Deps) func(ctx context.Context, task *jobs.Task) {
	return func(ctx context.Context, task *jobs.Task) {
		if task.Kind != jobs.KindCompensateTransfer {
			d.Log.Warn().Str("task_id", task.ID).Str("kind", string(task.Kind)).
				Msg("task exhausted retries")
			return
		}
		var ct ledger.CompensationTask
		if err := task.Decode(&ct); err != nil {
			d.Log.Error().Err(err).Str("task_id", task.ID).
				Msg("undecodable compensation task cannot be escalated")
			return
		}
		d.Orchestrator.Escalate(ctx, ct, errors.New(task.Error))
	}
}

func (d Deps) compensate(ctx context.Context, task *jobs.Task) error {
	var ct ledger.CompensationTask
	if err := task.Decode(&ct); err != nil {
		return err
	}
	return d.Orchestrator.Compensate(ctx, ct)
}

func (d Deps) exportProjection(ctx context.Context, log zerolog.Logger, task *jobs.Task) error {
	if d.Projection == nil {
		log.Warn().Msg("projection is not configured, dropping task")
		return nil
	}

	var window ExportWindow
	if len(task.Payload) > 0 {
		if err := task.Decode(&window); err != nil {
			return err
		}
	}
	if !window.From.IsValid() && !window.To.IsValid() {
		yesterday := civil.DateOf(time.Now()).AddDays(-1)
		window.From, window.To = yesterday, yesterday
	}

	txns, err := d.Store.ListTransactions(ctx, store.TransactionFilter{From: window.From, To: window.To})
	if err != nil {
		return err
	}
	if err := d.Projection.InsertTransactions(ctx, txns); err != nil {
		return err
	}

	liabilities, err := d.Store.ListLiabilities(ctx)
	if err != nil {
		return err
	}
	snapshotCount := 0
	for _, l := range liabilities {
		snaps := snapshotsInWindow(l, window)
		if len(snaps) == 0 {
			continue
		}
		if err := d.Projection.InsertCycleSnapshots(ctx, l.ID, snaps); err != nil {
			return err
		}
		snapshotCount += len(snaps)
	}

	log.Info().
		Str("from", window.From.String()).
		Str("to", window.To.String()).
		Int("transactions", len(txns)).
		Int("snapshots", snapshotCount).
		Msg("projection export complete")
	return nil
}

func snapshotsInWindow(l *domain.Liability, window ExportWindow) []domain.CycleSnapshot {
	var snaps []domain.CycleSnapshot
	for _, s := range l.CycleStatistics {
		recorded := civil.DateOf(s.RecordedAt)
		if window.From.IsValid() && recorded.Before(window.From) {
			continue
		}
		if window.To.IsValid() && recorded.After(window.To) {
			continue
		}
		snaps = append(snaps, s)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CycleNumber < snaps[j].CycleNumber })
	return snaps
}

func (d Deps) archiveSnapshot(ctx context.Context, log zerolog.Logger) error {
	if d.Archiver == nil {
		log.Warn().Msg("archiver is not configured, dropping task")
		return nil
	}
	snap, err := d.Archiver.Capture(ctx)
	if err != nil {
		return err
	}
	uri, err := d.Archiver.Upload(ctx, snap)
	if err != nil {
		return err
	}
	log.Info().Str("uri", uri).Int("accounts", len(snap.Accounts)).Msg("snapshot archived")
	return nil
}
