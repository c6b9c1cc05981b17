// Package notionsync mirrors the bill calendar into a Notion database.
// The primary store stays authoritative: sync is one way, idempotent on
// the Bill ID page property, and archives pages whose bill no longer
// exists. Per-page failures are logged and skipped so one bad page never
// aborts the run.
package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/mstetsenko/pouch/internal/logger"
	"github.com/mstetsenko/pouch/internal/store"
)

// SyncBills pushes every bill in the store to the Notion database.
// Pages are matched by the Bill ID property: matched pages are updated
// in place (bills change status and eventually settle), unmatched bills
// get new pages, and pages without a matching bill are archived. With
// dryRun set, the run only logs what it would do.
func SyncBills(ctx context.Context, st store.Store, client NotionService, databaseID string, dryRun bool) error {
	log := logger.FromContext(ctx)

	log.Info().Bool("dry_run", dryRun).Msg("starting bill sync to Notion")

	liabilities, err := st.ListLiabilities(ctx)
	if err != nil {
		return fmt.Errorf("SyncBills: listing liabilities: %w", err)
	}
	liabilityNames := make(map[string]string, len(liabilities))
	for _, l := range liabilities {
		liabilityNames[l.ID] = l.Name
	}

	bills, err := st.ListBills(ctx, store.BillFilter{})
	if err != nil {
		return fmt.Errorf("SyncBills: listing bills: %w", err)
	}

	validBillIDs := make(map[string]bool, len(bills))
	for _, b := range bills {
		validBillIDs[b.ID] = true
	}

	pages, err := queryAllNotionPages(ctx, client, databaseID)
	if err != nil {
		return fmt.Errorf("SyncBills: querying Notion pages: %w", err)
	}

	log.Info().
		Int("bill_count", len(bills)).
		Int("notion_page_count", len(pages)).
		Msg("loaded bills and existing pages")

	// First pass over remote pages: remember where each live bill
	// already is, archive everything else.
	pageByBillID := make(map[string]string, len(pages))
	var archived int
	for _, page := range pages {
		billID := ExtractBillID(page)
		if billID != "" && validBillIDs[billID] {
			pageByBillID[billID] = string(page.ID)
			continue
		}

		if dryRun {
			log.Info().
				Str("bill_id", billID).
				Str("page_id", string(page.ID)).
				Msg("[DRY RUN] would archive stale Notion page")
			archived++
			continue
		}
		if err := client.DeletePage(ctx, string(page.ID)); err != nil {
			log.Warn().
				Err(err).
				Str("bill_id", billID).
				Str("page_id", string(page.ID)).
				Msg("failed to archive stale Notion page")
			continue
		}
		archived++
	}

	var created, updated int
	for _, b := range bills {
		props := BillToProperties(liabilityNames[b.LiabilityID], b)

		if pageID, ok := pageByBillID[b.ID]; ok {
			if dryRun {
				log.Info().
					Str("bill_id", b.ID).
					Str("page_id", pageID).
					Msg("[DRY RUN] would update Notion page")
				updated++
				continue
			}
			if _, err := client.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().
					Err(err).
					Str("bill_id", b.ID).
					Str("page_id", pageID).
					Msg("failed to update Notion page")
				continue
			}
			updated++
			continue
		}

		if dryRun {
			log.Info().
				Str("bill_id", b.ID).
				Msg("[DRY RUN] would create Notion page")
			created++
			continue
		}
		page, err := client.CreatePage(ctx, databaseID, props)
		if err != nil {
			log.Warn().
				Err(err).
				Str("bill_id", b.ID).
				Msg("failed to create Notion page")
			continue
		}
		log.Debug().
			Str("bill_id", b.ID).
			Str("page_id", string(page.ID)).
			Msg("created Notion page for bill")
		created++
	}

	log.Info().
		Int("archived", archived).
		Int("created", created).
		Int("updated", updated).
		Int("total", len(bills)).
		Msg("bill sync completed")

	return nil
}

// queryAllNotionPages drains the database query cursor.
func queryAllNotionPages(ctx context.Context, client NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := client.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
