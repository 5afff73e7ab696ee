package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeCredit TransactionType = "CREDIT"
	TypeDebit  TransactionType = "DEBIT"
)

// BankTransaction is one line of an uploaded bank statement. It is immutable
// after ingestion; reconciliation outcomes live in BankReconciliation rows.
type BankTransaction struct {
	TransactionID string          `json:"transaction_id"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Type          TransactionType `json:"type"`
	Reference     string          `json:"reference,omitempty"`
}
