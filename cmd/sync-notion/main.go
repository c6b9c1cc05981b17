// One-shot sync of the bill calendar into a Notion database. The worker
// runs the same sync on a schedule; this binary exists for manual runs
// and for -dry-run previews.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/mstetsenko/pouch/internal/config"
	"github.com/mstetsenko/pouch/internal/infra/postgres"
	"github.com/mstetsenko/pouch/internal/logger"
	"github.com/mstetsenko/pouch/internal/notionsync"
)

func main() {
	notionToken := flag.String("notion-token", "", "Notion API token (default: NOTION_TOKEN)")
	notionDBID := flag.String("notion-db-id", "", "Notion database ID (default: NOTION_BILLS_DATABASE_ID)")
	dryRun := flag.Bool("dry-run", false, "Preview changes without writing to Notion")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	token := *notionToken
	if token == "" {
		token = cfg.NotionToken
	}
	databaseID := *notionDBID
	if databaseID == "" {
		databaseID = cfg.NotionBillsDB
	}
	if token == "" {
		log.Fatal().Msg("Error: -notion-token or NOTION_TOKEN is required")
	}
	if databaseID == "" {
		log.Fatal().Msg("Error: -notion-db-id or NOTION_BILLS_DATABASE_ID is required")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to postgres")
	}
	st := postgres.NewStore(db)

	// Bounded so a wedged Notion API cannot hang the run forever.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	log.Info().Bool("dry_run", *dryRun).Msg("Starting Notion sync")

	notionClient := notionsync.NewNotionClient(token)
	if err := notionsync.SyncBills(ctx, st, notionClient, databaseID, *dryRun); err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Println("Sync completed successfully.")
}
