package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/domain"
)

// StringList stores a string slice as jsonb.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	data, err := jsonBytes(value, "StringList")
	if err != nil || data == nil {
		*l = nil
		return err
	}
	return json.Unmarshal(data, l)
}

// CycleStatsMap stores liability cycle statistics as jsonb, keyed by
// cycle number.
type CycleStatsMap map[int]domain.CycleSnapshot

func (m CycleStatsMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *CycleStatsMap) Scan(value interface{}) error {
	data, err := jsonBytes(value, "CycleStatsMap")
	if err != nil || data == nil {
		*m = nil
		return err
	}
	return json.Unmarshal(data, m)
}

// SnapshotColumn stores an optional cycle snapshot as jsonb. A nil
// snapshot maps to NULL.
type SnapshotColumn struct {
	Snap *domain.CycleSnapshot
}

func (c SnapshotColumn) Value() (driver.Value, error) {
	if c.Snap == nil {
		return nil, nil
	}
	return json.Marshal(c.Snap)
}

func (c *SnapshotColumn) Scan(value interface{}) error {
	data, err := jsonBytes(value, "SnapshotColumn")
	if err != nil || data == nil {
		c.Snap = nil
		return err
	}
	snap := &domain.CycleSnapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return err
	}
	c.Snap = snap
	return nil
}

func jsonBytes(value interface{}, kind string) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type for %s: %T", kind, value)
	}
}

func dateToTime(d civil.Date) time.Time {
	return d.In(time.UTC)
}

func datePtrToTime(d *civil.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.In(time.UTC)
	return &t
}

func timeToDatePtr(t *time.Time) *civil.Date {
	if t == nil {
		return nil
	}
	d := civil.DateOf(*t)
	return &d
}

type accountRow struct {
	ID           string          `gorm:"primaryKey"`
	Name         string
	Kind         string
	Currency     string
	Balance      decimal.Decimal `gorm:"type:numeric(20,2)"`
	Active       bool
	Frozen       bool
	FrozenReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (accountRow) TableName() string { return "accounts" }

func accountToRow(a *domain.Account) *accountRow {
	return &accountRow{
		ID:           a.ID,
		Name:         a.Name,
		Kind:         string(a.Kind),
		Currency:     a.Currency,
		Balance:      a.Balance,
		Active:       a.Active,
		Frozen:       a.Frozen,
		FrozenReason: a.FrozenReason,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func (r *accountRow) toDomain() *domain.Account {
	return &domain.Account{
		ID:           r.ID,
		Name:         r.Name,
		Kind:         domain.AccountKind(r.Kind),
		Currency:     r.Currency,
		Balance:      r.Balance,
		Active:       r.Active,
		Frozen:       r.Frozen,
		FrozenReason: r.FrozenReason,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type bucketRow struct {
	AccountID string          `gorm:"primaryKey"`
	Kind      string          `gorm:"primaryKey"`
	Ref       string          `gorm:"primaryKey"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,2)"`
}

func (bucketRow) TableName() string { return "buckets" }

func (r *bucketRow) toDomain() domain.Bucket {
	return domain.Bucket{
		AccountID: r.AccountID,
		Kind:      domain.BucketKind(r.Kind),
		Ref:       r.Ref,
		Balance:   r.Balance,
	}
}

type transactionRow struct {
	ID             string          `gorm:"primaryKey"`
	AccountID      string          `gorm:"index"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2)"`
	Currency       string
	Category       string          `gorm:"index"`
	Description    string
	Date           time.Time       `gorm:"type:date;index"`
	BucketKind     string
	BucketRef      string
	TransferID     string          `gorm:"index"`
	IdempotencyKey string
	Classification SnapshotColumn  `gorm:"type:jsonb"`
	CreatedAt      time.Time
}

func (transactionRow) TableName() string { return "transactions" }

func transactionToRow(t *domain.Transaction) *transactionRow {
	return &transactionRow{
		ID:             t.ID,
		AccountID:      t.AccountID,
		Amount:         t.Amount,
		Currency:       t.Currency,
		Category:       t.Category,
		Description:    t.Description,
		Date:           dateToTime(t.Date),
		BucketKind:     string(t.BucketKind),
		BucketRef:      t.BucketRef,
		TransferID:     t.TransferID,
		IdempotencyKey: t.IdempotencyKey,
		Classification: SnapshotColumn{Snap: t.Classification},
		CreatedAt:      t.CreatedAt,
	}
}

func (r *transactionRow) toDomain() *domain.Transaction {
	return &domain.Transaction{
		ID:             r.ID,
		AccountID:      r.AccountID,
		Amount:         r.Amount,
		Currency:       r.Currency,
		Category:       r.Category,
		Description:    r.Description,
		Date:           civil.DateOf(r.Date),
		BucketKind:     domain.BucketKind(r.BucketKind),
		BucketRef:      r.BucketRef,
		TransferID:     r.TransferID,
		IdempotencyKey: r.IdempotencyKey,
		Classification: r.Classification.Snap,
		CreatedAt:      r.CreatedAt,
	}
}

type transferRow struct {
	ID                  string          `gorm:"primaryKey"`
	SourceAccountID     string
	SourceBucketKind    string
	SourceBucketRef     string
	DestAccountID       string
	DestBucketKind      string
	DestBucketRef       string
	Amount              decimal.Decimal `gorm:"type:numeric(20,2)"`
	Currency            string
	Category            string
	Date                time.Time       `gorm:"type:date"`
	SourceTransactionID string
	DestTransactionID   string
	Status              string          `gorm:"index"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (transferRow) TableName() string { return "transfers" }

func transferToRow(t *domain.Transfer) *transferRow {
	return &transferRow{
		ID:                  t.ID,
		SourceAccountID:     t.SourceAccountID,
		SourceBucketKind:    string(t.SourceBucketKind),
		SourceBucketRef:     t.SourceBucketRef,
		DestAccountID:       t.DestAccountID,
		DestBucketKind:      string(t.DestBucketKind),
		DestBucketRef:       t.DestBucketRef,
		Amount:              t.Amount,
		Currency:            t.Currency,
		Category:            t.Category,
		Date:                dateToTime(t.Date),
		SourceTransactionID: t.SourceTransactionID,
		DestTransactionID:   t.DestTransactionID,
		Status:              string(t.Status),
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
}

func (r *transferRow) toDomain() *domain.Transfer {
	return &domain.Transfer{
		ID:                  r.ID,
		SourceAccountID:     r.SourceAccountID,
		SourceBucketKind:    domain.BucketKind(r.SourceBucketKind),
		SourceBucketRef:     r.SourceBucketRef,
		DestAccountID:       r.DestAccountID,
		DestBucketKind:      domain.BucketKind(r.DestBucketKind),
		DestBucketRef:       r.DestBucketRef,
		Amount:              r.Amount,
		Currency:            r.Currency,
		Category:            r.Category,
		Date:                civil.DateOf(r.Date),
		SourceTransactionID: r.SourceTransactionID,
		DestTransactionID:   r.DestTransactionID,
		Status:              domain.TransferStatus(r.Status),
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

// ledgerKeyRow records the result of the first delta that carried an
// idempotency key, so replays return it unchanged.
type ledgerKeyRow struct {
	Key             string          `gorm:"primaryKey"`
	AccountBalance  decimal.Decimal `gorm:"type:numeric(20,2)"`
	BucketBalance   decimal.Decimal `gorm:"type:numeric(20,2)"`
	PersonalBalance decimal.Decimal `gorm:"type:numeric(20,2)"`
	TransactionID   string
	CreatedAt       time.Time
}

func (ledgerKeyRow) TableName() string { return "ledger_keys" }

type goalRow struct {
	ID               string          `gorm:"primaryKey"`
	Name             string
	TargetAmount     decimal.Decimal `gorm:"type:numeric(20,2)"`
	CurrentAmount    decimal.Decimal `gorm:"type:numeric(20,2)"`
	TargetDate       *time.Time      `gorm:"type:date"`
	Currency         string
	Achieved         bool
	AchievedAt       *time.Time
	Archived         bool
	LinkedAccountIDs StringList      `gorm:"type:jsonb"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (goalRow) TableName() string { return "goals" }

func goalToRow(g *domain.Goal) *goalRow {
	return &goalRow{
		ID:               g.ID,
		Name:             g.Name,
		TargetAmount:     g.TargetAmount,
		CurrentAmount:    g.CurrentAmount,
		TargetDate:       datePtrToTime(g.TargetDate),
		Currency:         g.Currency,
		Achieved:         g.Achieved,
		AchievedAt:       g.AchievedAt,
		Archived:         g.Archived,
		LinkedAccountIDs: StringList(g.LinkedAccountIDs),
		CreatedAt:        g.CreatedAt,
		UpdatedAt:        g.UpdatedAt,
	}
}

func (r *goalRow) toDomain() *domain.Goal {
	return &domain.Goal{
		ID:               r.ID,
		Name:             r.Name,
		TargetAmount:     r.TargetAmount,
		CurrentAmount:    r.CurrentAmount,
		TargetDate:       timeToDatePtr(r.TargetDate),
		Currency:         r.Currency,
		Achieved:         r.Achieved,
		AchievedAt:       r.AchievedAt,
		Archived:         r.Archived,
		LinkedAccountIDs: []string(r.LinkedAccountIDs),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type contributionRow struct {
	ID            string          `gorm:"primaryKey"`
	GoalID        string          `gorm:"index"`
	AccountID     string
	Amount        decimal.Decimal `gorm:"type:numeric(20,2)"`
	TransactionID string
	Date          time.Time       `gorm:"type:date"`
	CreatedAt     time.Time
}

func (contributionRow) TableName() string { return "goal_contributions" }

func (r *contributionRow) toDomain() *domain.GoalContribution {
	return &domain.GoalContribution{
		ID:            r.ID,
		GoalID:        r.GoalID,
		AccountID:     r.AccountID,
		Amount:        r.Amount,
		TransactionID: r.TransactionID,
		Date:          civil.DateOf(r.Date),
		CreatedAt:     r.CreatedAt,
	}
}

type liabilityRow struct {
	ID                   string          `gorm:"primaryKey"`
	Name                 string
	Currency             string
	CurrentBalance       decimal.Decimal `gorm:"type:numeric(20,2)"`
	Frequency            string
	DueDayOfMonth        int
	NextDueDate          time.Time       `gorm:"type:date"`
	LinkedAccountID      string
	InstallmentTotal     decimal.Decimal `gorm:"type:numeric(20,2)"`
	InstallmentPrincipal decimal.Decimal `gorm:"type:numeric(20,2)"`
	InstallmentInterest  decimal.Decimal `gorm:"type:numeric(20,2)"`
	CycleStatistics      CycleStatsMap   `gorm:"type:jsonb"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (liabilityRow) TableName() string { return "liabilities" }

func liabilityToRow(l *domain.Liability) *liabilityRow {
	return &liabilityRow{
		ID:                   l.ID,
		Name:                 l.Name,
		Currency:             l.Currency,
		CurrentBalance:       l.CurrentBalance,
		Frequency:            string(l.Frequency),
		DueDayOfMonth:        l.DueDayOfMonth,
		NextDueDate:          dateToTime(l.NextDueDate),
		LinkedAccountID:      l.LinkedAccountID,
		InstallmentTotal:     l.InstallmentTotal,
		InstallmentPrincipal: l.InstallmentPrincipal,
		InstallmentInterest:  l.InstallmentInterest,
		CycleStatistics:      CycleStatsMap(l.CycleStatistics),
		CreatedAt:            l.CreatedAt,
		UpdatedAt:            l.UpdatedAt,
	}
}

func (r *liabilityRow) toDomain() *domain.Liability {
	stats := map[int]domain.CycleSnapshot(r.CycleStatistics)
	if stats == nil {
		stats = make(map[int]domain.CycleSnapshot)
	}
	return &domain.Liability{
		ID:                   r.ID,
		Name:                 r.Name,
		Currency:             r.Currency,
		CurrentBalance:       r.CurrentBalance,
		Frequency:            domain.Frequency(r.Frequency),
		DueDayOfMonth:        r.DueDayOfMonth,
		NextDueDate:          civil.DateOf(r.NextDueDate),
		LinkedAccountID:      r.LinkedAccountID,
		InstallmentTotal:     r.InstallmentTotal,
		InstallmentPrincipal: r.InstallmentPrincipal,
		InstallmentInterest:  r.InstallmentInterest,
		CycleStatistics:      stats,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

type billRow struct {
	ID               string          `gorm:"primaryKey"`
	LiabilityID      string          `gorm:"uniqueIndex:idx_bills_liability_cycle"`
	CycleNumber      int             `gorm:"uniqueIndex:idx_bills_liability_cycle"`
	DueDate          time.Time       `gorm:"type:date"`
	OriginalDueDate  time.Time       `gorm:"type:date"`
	Total            decimal.Decimal `gorm:"type:numeric(20,2)"`
	Principal        decimal.Decimal `gorm:"type:numeric(20,2)"`
	Interest         decimal.Decimal `gorm:"type:numeric(20,2)"`
	Fee              decimal.Decimal `gorm:"type:numeric(20,2)"`
	InterestIncluded bool
	Status           string          `gorm:"index"`
	LinkedAccountID  string
	Classification   SnapshotColumn  `gorm:"type:jsonb"`
	PaidAt           *time.Time
	Note             string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (billRow) TableName() string { return "bills" }

func billToRow(b *domain.Bill) *billRow {
	return &billRow{
		ID:               b.ID,
		LiabilityID:      b.LiabilityID,
		CycleNumber:      b.CycleNumber,
		DueDate:          dateToTime(b.DueDate),
		OriginalDueDate:  dateToTime(b.OriginalDueDate),
		Total:            b.Total,
		Principal:        b.Principal,
		Interest:         b.Interest,
		Fee:              b.Fee,
		InterestIncluded: b.InterestIncluded,
		Status:           string(b.Status),
		LinkedAccountID:  b.LinkedAccountID,
		Classification:   SnapshotColumn{Snap: b.Classification},
		PaidAt:           b.PaidAt,
		Note:             b.Note,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func (r *billRow) toDomain() *domain.Bill {
	return &domain.Bill{
		ID:               r.ID,
		LiabilityID:      r.LiabilityID,
		CycleNumber:      r.CycleNumber,
		DueDate:          civil.DateOf(r.DueDate),
		OriginalDueDate:  civil.DateOf(r.OriginalDueDate),
		Total:            r.Total,
		Principal:        r.Principal,
		Interest:         r.Interest,
		Fee:              r.Fee,
		InterestIncluded: r.InterestIncluded,
		Status:           domain.BillStatus(r.Status),
		LinkedAccountID:  r.LinkedAccountID,
		Classification:   r.Classification.Snap,
		PaidAt:           r.PaidAt,
		Note:             r.Note,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type paymentRow struct {
	ID                 string          `gorm:"primaryKey"`
	LiabilityID        string          `gorm:"index"`
	BillID             string
	CycleNumber        int
	TransactionID      string
	PrincipalComponent decimal.Decimal `gorm:"type:numeric(20,2)"`
	InterestComponent  decimal.Decimal `gorm:"type:numeric(20,2)"`
	Classification     SnapshotColumn  `gorm:"type:jsonb"`
	CreatedAt          time.Time
}

func (paymentRow) TableName() string { return "liability_payments" }

func (r *paymentRow) toDomain() *domain.LiabilityPayment {
	p := &domain.LiabilityPayment{
		ID:                 r.ID,
		LiabilityID:        r.LiabilityID,
		BillID:             r.BillID,
		CycleNumber:        r.CycleNumber,
		TransactionID:      r.TransactionID,
		PrincipalComponent: r.PrincipalComponent,
		InterestComponent:  r.InterestComponent,
		CreatedAt:          r.CreatedAt,
	}
	if r.Classification.Snap != nil {
		p.Classification = *r.Classification.Snap
	}
	return p
}

type alertRow struct {
	ID         string          `gorm:"primaryKey"`
	Kind       string
	AccountID  string
	TransferID string
	Amount     decimal.Decimal `gorm:"type:numeric(20,2)"`
	Message    string
	Resolved   bool            `gorm:"index"`
	ResolvedAt *time.Time
	CreatedAt  time.Time
}

func (alertRow) TableName() string { return "reconciliation_alerts" }

func (r *alertRow) toDomain() *domain.ReconciliationAlert {
	return &domain.ReconciliationAlert{
		ID:         r.ID,
		Kind:       domain.AlertKind(r.Kind),
		AccountID:  r.AccountID,
		TransferID: r.TransferID,
		Amount:     r.Amount,
		Message:    r.Message,
		Resolved:   r.Resolved,
		ResolvedAt: r.ResolvedAt,
		CreatedAt:  r.CreatedAt,
	}
}
