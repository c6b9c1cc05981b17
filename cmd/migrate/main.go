// The migrate binary bootstraps the schema: AutoMigrate against
// postgres, plus the analytics dataset when BigQuery is configured.
// -seed creates a starter account so a fresh install has somewhere to
// put money.
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/config"
	"github.com/mstetsenko/pouch/internal/domain"
	infraBQ "github.com/mstetsenko/pouch/internal/infra/bigquery"
	"github.com/mstetsenko/pouch/internal/infra/postgres"
	"github.com/mstetsenko/pouch/internal/logger"
	"github.com/mstetsenko/pouch/internal/store"
)

func main() {
	seedFlag := flag.Bool("seed", false, "Create a starter account when the store is empty")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}
	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to postgres")
	}

	log.Info().Msg("Running migrations")
	if err := postgres.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	log.Info().Msg("Schema is up to date")

	if *seedFlag {
		created, err := seed(ctx, postgres.NewStore(db))
		if err != nil {
			log.Fatal().Err(err).Msg("Seed failed")
		}
		if created {
			fmt.Println("Seeded starter account.")
		} else {
			fmt.Println("Store already has accounts, nothing to seed.")
		}
	}

	if cfg.BigQueryProject != "" {
		p, err := infraBQ.NewProjection(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to BigQuery")
		}
		defer p.Close()

		if err := p.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure analytics schema")
		}
		log.Info().Str("dataset", cfg.BigQueryDataset).Msg("Analytics schema is up to date")
	}
}

// seed creates the default account a fresh install starts with. A store
// that already holds accounts is left alone.
func seed(ctx context.Context, st store.Store) (bool, error) {
	accounts, err := st.ListAccounts(ctx)
	if err != nil {
		return false, fmt.Errorf("seed: listing accounts: %w", err)
	}
	if len(accounts) > 0 {
		return false, nil
	}

	account := &domain.Account{
		Name:     "Main",
		Kind:     domain.AccountGeneral,
		Currency: "GBP",
		Balance:  decimal.Zero,
		Active:   true,
	}
	if err := st.CreateAccount(ctx, account); err != nil {
		return false, fmt.Errorf("seed: creating account: %w", err)
	}
	return true, nil
}
