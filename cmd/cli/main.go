package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/config"
	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/infra/postgres"
	"github.com/mstetsenko/pouch/internal/ledger"
	"github.com/mstetsenko/pouch/internal/liability"
	"github.com/mstetsenko/pouch/internal/logger"
	"github.com/mstetsenko/pouch/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "accounts":
		runAccounts(cfg, log)
	case "create-account":
		runCreateAccount(cfg, log)
	case "spend":
		runSpend(cfg, log)
	case "receive":
		runReceive(cfg, log)
	case "transfer":
		runTransfer(cfg, log)
	case "goals":
		runGoals(cfg, log)
	case "pay":
		runPay(cfg, log)
	case "refresh-bills":
		runRefreshBills(cfg, log)
	case "alerts":
		runAlerts(cfg, log)
	case "resolve-alert":
		runResolveAlert(cfg, log)
	case "unfreeze":
		runUnfreeze(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Pouch CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  accounts        List accounts with their buckets")
	fmt.Println("  create-account  Create an account")
	fmt.Println("  spend           Debit a bucket on an account")
	fmt.Println("  receive         Credit a bucket on an account")
	fmt.Println("  transfer        Move money between buckets or accounts")
	fmt.Println("  goals           List goals with progress")
	fmt.Println("  pay             Pay a liability bill")
	fmt.Println("  refresh-bills   Recompute bill statuses against today")
	fmt.Println("  alerts          List reconciliation alerts")
	fmt.Println("  resolve-alert   Mark an alert resolved")
	fmt.Println("  unfreeze        Clear an account's corruption quarantine")
	fmt.Println("  help            Show this help message")
	fmt.Println("\nEarmarking for a goal is a transfer: -to-bucket goal -to-ref <goal-id>.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// openStore connects to the shared database. The CLI is pointless
// against an in-memory store that dies with the process.
func openStore(cfg *config.Config, log zerolog.Logger) store.Store {
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}
	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to postgres")
	}
	return postgres.NewStore(db)
}

func cliContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	return logger.WithContext(ctx, log), cancel
}

// parseDate accepts YYYY-MM-DD and defaults to today.
func parseDate(s string, log zerolog.Logger) civil.Date {
	if s == "" {
		return civil.DateOf(time.Now())
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		log.Fatal().Msgf("Invalid date %q, want YYYY-MM-DD", s)
	}
	return d
}

func parseAmount(s string, log zerolog.Logger) decimal.Decimal {
	if s == "" {
		log.Fatal().Msg("Error: -amount is required")
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatal().Msgf("Invalid amount %q", s)
	}
	return amount
}

func runAccounts(cfg *config.Config, log zerolog.Logger) {
	st := openStore(cfg, log)
	ctx, cancel := cliContext(log)
	defer cancel()

	accounts, err := st.ListAccounts(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list accounts")
	}

	fmt.Printf("\n=== Accounts (%d) ===\n", len(accounts))
	for i, account := range accounts {
		fmt.Printf("\n%d. %s [%s] %s\n", i+1, account.Name, account.Kind, account.Currency)
		fmt.Printf("   ID:       %s\n", account.ID)
		fmt.Printf("   Balance:  %s\n", domain.FormatAmount(account.Balance))
		if account.Frozen {
			fmt.Printf("   FROZEN:   %s\n", account.FrozenReason)
		}

		buckets, err := st.ReadBuckets(ctx, account.ID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read buckets")
		}
		fmt.Printf("   Personal: %s\n", domain.FormatAmount(account.PersonalBalance(buckets)))
		for _, b := range buckets {
			fmt.Printf("   Bucket:   %s:%s %s\n", b.Kind, b.Ref, domain.FormatAmount(b.Balance))
		}
	}
	fmt.Println()
}

func runCreateAccount(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("create-account", flag.ExitOnError)
	name := fs.String("name", "", "Account name")
	kind := fs.String("kind", string(domain.AccountGeneral), "Account kind")
	currency := fs.String("currency", "GBP", "ISO currency code")
	balance := fs.String("balance", "0", "Opening balance")
	fs.Parse(os.Args[2:])

	if *name == "" {
		log.Fatal().Msg("Error: -name is required")
	}
	if !domain.AccountKind(*kind).Valid() {
		log.Fatal().Msgf("Invalid account kind %q", *kind)
	}
	opening, err := decimal.NewFromString(*balance)
	if err != nil || opening.IsNegative() {
		log.Fatal().Msgf("Invalid opening balance %q", *balance)
	}

	st := openStore(cfg, log)
	ctx, cancel := cliContext(log)
	defer cancel()

	account := &domain.Account{
		Name:     *name,
		Kind:     domain.AccountKind(*kind),
		Currency: *currency,
		Balance:  opening,
		Active:   true,
	}
	if err := st.CreateAccount(ctx, account); err != nil {
		log.Fatal().Err(err).Msg("Failed to create account")
	}

	fmt.Printf("Created account %s (%s)\n", account.ID, account.Name)
}

func runSpend(cfg *config.Config, log zerolog.Logger) {
	runMovement(cfg, log, "spend", (*ledger.Ledger).Spend)
}

func runReceive(cfg *config.Config, log zerolog.Logger) {
	runMovement(cfg, log, "receive", (*ledger.Ledger).Receive)
}

func runMovement(cfg *config.Config, log zerolog.Logger, name string, op func(*ledger.Ledger, context.Context, ledger.Movement) (*ledger.Entry, error)) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	accountID := fs.String("account", "", "Account ID")
	bucket := fs.String("bucket", string(domain.BucketPersonal), "Bucket kind")
	ref := fs.String("ref", "", "Bucket ref (goal or liability ID)")
	amount := fs.String("amount", "", "Amount")
	category := fs.String("category", "", "Spending category")
	description := fs.String("desc", "", "Description")
	date := fs.String("date", "", "Date (YYYY-MM-DD, default today)")
	fs.Parse(os.Args[2:])

	if *accountID == "" {
		log.Fatal().Msg("Error: -account is required")
	}
	if *category == "" {
		log.Fatal().Msg("Error: -category is required")
	}

	st := openStore(cfg, log)
	ctx, cancel := cliContext(log)
	defer cancel()

	led := ledger.New(st, log)
	entry, err := op(led, ctx, ledger.Movement{
		AccountID:   *accountID,
		Bucket:      domain.BucketKind(*bucket),
		BucketRef:   *ref,
		Amount:      parseAmount(*amount, log),
		Category:    *category,
		Description: *description,
		Date:        parseDate(*date, log),
	})
	if err != nil {
		log.Fatal().Err(err).Msgf("%s failed", name)
	}

	fmt.Printf("Transaction %s\n", entry.TransactionID)
	fmt.Printf("Account balance: %s\n", domain.FormatAmount(entry.AccountBalance))
	fmt.Printf("Bucket balance:  %s\n", domain.FormatAmount(entry.BucketBalance))
}

func runTransfer(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	from := fs.String("from", "", "Source account ID")
	fromBucket := fs.String("from-bucket", string(domain.BucketPersonal), "Source bucket kind")
	fromRef := fs.String("from-ref", "", "Source bucket ref")
	to := fs.String("to", "", "Destination account ID")
	toBucket := fs.String("to-bucket", string(domain.BucketPersonal), "Destination bucket kind")
	toRef := fs.String("to-ref", "", "Destination bucket ref")
	amount := fs.String("amount", "", "Amount")
	description := fs.String("desc", "", "Description")
	date := fs.String("date", "", "Date (YYYY-MM-DD, default today)")
	fs.Parse(os.Args[2:])

	if *from == "" || *to == "" {
		log.Fatal().Msg("Usage: cli transfer -from ACCOUNT -to ACCOUNT -amount N")
	}

	st := openStore(cfg, log)
	ctx, cancel := cliContext(log)
	defer cancel()

	led := ledger.New(st, log)
	orchestrator := ledger.NewOrchestrator(led, st, nil, ledger.OrchestratorConfig{
		ImmediateRetries: cfg.TransferRetries,
		RetryDelay:       time.Duration(cfg.TransferRetryDelayMS) * time.Millisecond,
	}, log)

	receipt, err := orchestrator.Transfer(ctx, ledger.TransferRequest{
		SourceAccountID: *from,
		SourceBucket:    domain.BucketKind(*fromBucket),
		SourceRef:       *fromRef,
		DestAccountID:   *to,
		DestBucket:      domain.BucketKind(*toBucket),
		DestRef:         *toRef,
		Amount:          parseAmount(*amount, log),
		Description:     *description,
		Date:            parseDate(*date, log),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Transfer failed")
	}

	fmt.Printf("Transfer %s\n", receipt.TransferID)
	fmt.Printf("Source balance: %s\n", domain.FormatAmount(receipt.Source.AccountBalance))
	fmt.Printf("Dest balance:   %s\n", domain.FormatAmount(receipt.Dest.AccountBalance))
}

func runGoals(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("goals", flag.ExitOnError)
	includeClosed := fs.Bool("closed", false, "Include achieved and archived goals")
	fs.Parse(os.Args[2:])

	st := openStore(cfg, log)
	ctx, cancel := cliContext(log)
	defer cancel()

	goals, err := st.ListGoals(ctx, *includeClosed)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list goals")
	}

	fmt.Printf("\n=== Goals (%d) ===\n", len(goals))
	for i, goal := range goals {
		fmt.Printf("\n%d. %s\n", i+1, goal.Name)
		fmt.Printf("   ID:       %s\n", goal.ID)
		fmt.Printf("   Progress: %s / %s (%d%%)\n",
			domain.FormatAmount(goal.CurrentAmount), domain.FormatAmount(goal.TargetAmount), goal.ProgressPercent())
		if goal.TargetDate != nil {
			fmt.Printf("   Due:      %s\n", goal.TargetDate.String())
		}
		if goal.Achieved {
			fmt.Printf("   Achieved: yes\n")
		}
		if goal.Archived {
			fmt.Printf("   Archived: yes\n")
		}
	}
	fmt.Println()
}

func runPay(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("pay", flag.ExitOnError)
	liabilityID := fs.String("liability", "", "Liability ID")
	billID := fs.String("bill", "", "Bill ID (default: earliest unpaid)")
	accountID := fs.String("account", "", "Funding account (default: liability's linked account)")
	amount := fs.String("amount", "", "Amount paid")
	date := fs.String("date", "", "Payment date (YYYY-MM-DD, default today)")
	note := fs.String("note", "", "Payment note")
	fs.Parse(os.Args[2:])

	if *liabilityID == "" {
		log.Fatal().Msg("Error: -liability is required")
	}

	st := openStore(cfg, log)
	ctx, cancel := cliContext(log)
	defer cancel()

	led := ledger.New(st, log)
	reconciler := liability.NewReconciler(st, led, liability.Config{
		ToleranceDays:      cfg.ToleranceDays,
		AmountTolerancePct: decimal.NewFromFloat(cfg.AmountTolerancePct),
		PartialRatio:       decimal.NewFromFloat(cfg.PartialRatio),
	}, log)

	result, err := reconciler.PayBill(ctx, liability.PayBillRequest{
		LiabilityID: *liabilityID,
		BillID:      *billID,
		AccountID:   *accountID,
		Amount:      parseAmount(*amount, log),
		PaymentDate: parseDate(*date, log),
		Note:        *note,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Payment failed")
	}

	fmt.Printf("Paid bill %s (cycle %d)\n", result.Bill.ID, result.Bill.CycleNumber)
	fmt.Printf("Classified:  %s / %s\n", result.Snapshot.Timing, result.Snapshot.AmountClass)
	fmt.Printf("Status:      %s\n", result.Snapshot.Status)
	fmt.Printf("Balance:     %s\n", domain.FormatAmount(result.Liability.CurrentBalance))
	fmt.Printf("Next due:    %s\n", result.NextDueDate.String())
	if result.AutoCreated {
		fmt.Println("Note: no bill existed for this cycle, one was created from the payment.")
	}
}

func runRefreshBills(cfg *config.Config, log zerolog.Logger) {
	st := openStore(cfg, log)
	ctx, cancel := cliContext(log)
	defer cancel()

	led := ledger.New(st, log)
	reconciler := liability.NewReconciler(st, led, liability.Config{
		ToleranceDays:      cfg.ToleranceDays,
		AmountTolerancePct: decimal.NewFromFloat(cfg.AmountTolerancePct),
		PartialRatio:       decimal.NewFromFloat(cfg.PartialRatio),
	}, log)

	updated, err := reconciler.RefreshBillStatuses(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Refresh failed")
	}
	fmt.Printf("Updated %d bill(s)\n", updated)
}

func runAlerts(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("alerts", flag.ExitOnError)
	includeResolved := fs.Bool("resolved", false, "Include resolved alerts")
	fs.Parse(os.Args[2:])

	st := openStore(cfg, log)
	ctx, cancel := cliContext(log)
	defer cancel()

	alerts, err := st.ListAlerts(ctx, *includeResolved)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list alerts")
	}

	fmt.Printf("\n=== Alerts (%d) ===\n", len(alerts))
	for i, alert := range alerts {
		fmt.Printf("\n%d. [%s] %s\n", i+1, alert.Kind, alert.Message)
		fmt.Printf("   ID:       %s\n", alert.ID)
		if alert.AccountID != "" {
			fmt.Printf("   Account:  %s\n", alert.AccountID)
		}
		if alert.TransferID != "" {
			fmt.Printf("   Transfer: %s\n", alert.TransferID)
		}
		if !alert.Amount.IsZero() {
			fmt.Printf("   Amount:   %s\n", domain.FormatAmount(alert.Amount))
		}
		if alert.Resolved {
			fmt.Printf("   Resolved: yes\n")
		}
	}
	fmt.Println()
}

func runResolveAlert(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("resolve-alert", flag.ExitOnError)
	alertID := fs.String("id", "", "Alert ID")
	fs.Parse(os.Args[2:])

	if *alertID == "" {
		log.Fatal().Msg("Error: -id is required")
	}

	st := openStore(cfg, log)
	ctx, cancel := cliContext(log)
	defer cancel()

	if err := st.ResolveAlert(ctx, *alertID); err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve alert")
	}
	fmt.Printf("Resolved alert %s\n", *alertID)
}

// runUnfreeze clears the corruption quarantine. Only do this after the
// ledger discrepancy behind the freeze has been reconciled by hand.
func runUnfreeze(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("unfreeze", flag.ExitOnError)
	accountID := fs.String("account", "", "Account ID")
	fs.Parse(os.Args[2:])

	if *accountID == "" {
		log.Fatal().Msg("Error: -account is required")
	}

	st := openStore(cfg, log)
	ctx, cancel := cliContext(log)
	defer cancel()

	account, err := st.GetAccount(ctx, *accountID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load account")
	}
	if !account.Frozen {
		fmt.Printf("Account %s is not frozen\n", *accountID)
		return
	}

	log.Info().Str("account_id", *accountID).Str("reason", account.FrozenReason).Msg("Clearing freeze")
	if err := st.UnfreezeAccount(ctx, *accountID); err != nil {
		log.Fatal().Err(err).Msg("Failed to unfreeze account")
	}
	fmt.Printf("Unfroze account %s\n", *accountID)
}
