package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/domain"
)

// numericScale is the scale used when converting NUMERIC values back
// into decimals. BigQuery NUMERIC carries nine fractional digits; money
// in this system uses two, so nine loses nothing.
const numericScale = 9

type transactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	AccountID string `bigquery:"account_id"` // REQUIRED

	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC
	Currency string   `bigquery:"currency"` // REQUIRED STRING

	Category    string `bigquery:"category"`    // NULLABLE
	Description string `bigquery:"description"` // NULLABLE

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED DATE

	BucketKind string `bigquery:"bucket_kind"` // NULLABLE
	BucketRef  string `bigquery:"bucket_ref"`  // NULLABLE
	TransferID string `bigquery:"transfer_id"` // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED TIMESTAMP
}

func transactionToRow(t *domain.Transaction) *transactionRow {
	return &transactionRow{
		TransactionID:   t.ID,
		AccountID:       t.AccountID,
		Amount:          t.Amount.Rat(),
		Currency:        t.Currency,
		Category:        t.Category,
		Description:     t.Description,
		TransactionDate: t.Date,
		BucketKind:      string(t.BucketKind),
		BucketRef:       t.BucketRef,
		TransferID:      t.TransferID,
		CreatedTS:       t.CreatedAt,
	}
}

func (r *transactionRow) toDomain() *domain.Transaction {
	return &domain.Transaction{
		ID:          r.TransactionID,
		AccountID:   r.AccountID,
		Amount:      decimal.NewFromBigRat(r.Amount, numericScale),
		Currency:    r.Currency,
		Category:    r.Category,
		Description: r.Description,
		Date:        r.TransactionDate,
		BucketKind:  domain.BucketKind(r.BucketKind),
		BucketRef:   r.BucketRef,
		TransferID:  r.TransferID,
		CreatedAt:   r.CreatedTS,
	}
}

type snapshotRow struct {
	LiabilityID string `bigquery:"liability_id"` // REQUIRED
	CycleNumber int64  `bigquery:"cycle_number"` // REQUIRED

	Status         string `bigquery:"status"`           // REQUIRED
	Timing         string `bigquery:"timing"`           // REQUIRED
	IsWithinWindow bool   `bigquery:"is_within_window"` // REQUIRED
	DaysDifference int64  `bigquery:"days_difference"`  // REQUIRED
	AmountClass    string `bigquery:"amount_class"`     // REQUIRED

	AmountDifference *big.Rat   `bigquery:"amount_difference"` // REQUIRED NUMERIC
	ExpectedDate     civil.Date `bigquery:"expected_date"`     // REQUIRED DATE
	PaymentDate      civil.Date `bigquery:"payment_date"`      // REQUIRED DATE
	ExpectedAmount   *big.Rat   `bigquery:"expected_amount"`   // REQUIRED NUMERIC
	PaymentAmount    *big.Rat   `bigquery:"payment_amount"`    // REQUIRED NUMERIC

	RecordedTS time.Time `bigquery:"recorded_ts"` // REQUIRED TIMESTAMP
}

func snapshotToRow(liabilityID string, s domain.CycleSnapshot) *snapshotRow {
	return &snapshotRow{
		LiabilityID:      liabilityID,
		CycleNumber:      int64(s.CycleNumber),
		Status:           string(s.Status),
		Timing:           string(s.Timing),
		IsWithinWindow:   s.WithinWindow,
		DaysDifference:   int64(s.DaysDifference),
		AmountClass:      string(s.AmountClass),
		AmountDifference: s.AmountDifference.Rat(),
		ExpectedDate:     s.ExpectedDate,
		PaymentDate:      s.PaymentDate,
		ExpectedAmount:   s.ExpectedAmount.Rat(),
		PaymentAmount:    s.PaymentAmount.Rat(),
		RecordedTS:       s.RecordedAt,
	}
}
