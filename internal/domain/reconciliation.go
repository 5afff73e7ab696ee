package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReconciliationStatus string

const (
	StatusUnmatched    ReconciliationStatus = "UNMATCHED"
	StatusSuggested    ReconciliationStatus = "SUGGESTED"
	StatusMatched      ReconciliationStatus = "MATCHED"
	StatusRejected     ReconciliationStatus = "REJECTED"
	StatusManualReview ReconciliationStatus = "MANUAL_REVIEW"
)

// Suggestion is one ranked alternative candidate pairing. Suggestions are
// ordered best-first; the committed pairing, once approved, moves into the
// reconciliation's CandidateID field.
type Suggestion struct {
	CandidateID string `json:"candidate_id"`
	Confidence  int    `json:"confidence"`
	Rationale   string `json:"rationale,omitempty"`
}

// BankReconciliation is the durable record of one transaction's
// reconciliation outcome. One row per incoming transaction per tenant.
// Rows are never deleted; status transitions form the audit trail.
type BankReconciliation struct {
	ID            string               `json:"id"`
	TransactionID string               `json:"transaction_id"`
	TenantID      string               `json:"residential_complex_id"`
	Date          time.Time            `json:"date"`
	Description   string               `json:"description"`
	Amount        decimal.Decimal      `json:"amount"`
	Type          TransactionType      `json:"type"`
	Reference     string               `json:"reference,omitempty"`
	BankName      string               `json:"bank_name,omitempty"`
	AccountNumber string               `json:"account_number,omitempty"`
	Status        ReconciliationStatus `json:"status"`
	CandidateID   string               `json:"payment_id,omitempty"`
	Confidence    int                  `json:"confidence"`
	Reason        string               `json:"reason,omitempty"`
	Suggestions   []Suggestion         `json:"suggestions,omitempty"`
	Notes         string               `json:"notes,omitempty"`
	ProcessedByID string               `json:"processed_by_id,omitempty"`
	ProcessedAt   *time.Time           `json:"processed_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// TopSuggestion returns the highest-ranked suggestion, or nil if none exist.
func (r *BankReconciliation) TopSuggestion() *Suggestion {
	if len(r.Suggestions) == 0 {
		return nil
	}
	return &r.Suggestions[0]
}

// ReconciliationMatch is a pairing proposed by the resolver for one
// transaction. CandidateID is empty when no candidate cleared the suggest
// threshold.
type ReconciliationMatch struct {
	TransactionID string       `json:"transaction_id"`
	CandidateID   string       `json:"payment_id,omitempty"`
	Confidence    int          `json:"confidence"`
	IsAutoMatch   bool         `json:"is_auto_match"`
	Notes         string       `json:"notes,omitempty"`
	Suggestions   []Suggestion `json:"suggestions,omitempty"`
}

// ReconciliationResult aggregates one full resolution pass over a statement.
type ReconciliationResult struct {
	Matches               []ReconciliationMatch `json:"matches"`
	UnmatchedTransactions []string              `json:"unmatched_transactions"`
	UnmatchedCandidates   []string              `json:"unmatched_payments"`
	TotalMatches          int                   `json:"total_matches"`
	TotalAmount           decimal.Decimal       `json:"total_amount"`
}
