package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CandidateKind string

const (
	KindPayment CandidateKind = "PAYMENT"
	KindFee     CandidateKind = "FEE"
)

type CandidateStatus string

const (
	CandidatePending CandidateStatus = "PENDING"
	CandidatePartial CandidateStatus = "PARTIAL"
	CandidatePaid    CandidateStatus = "PAID"
)

// Candidate is an outstanding payment or fee record eligible for matching
// against a bank transaction. The finance subsystem owns these; the engine
// reads them and, on a confirmed match, writes back the reconciliation link.
type Candidate struct {
	ID               string          `json:"id"`
	Kind             CandidateKind   `json:"kind"`
	Amount           decimal.Decimal `json:"amount"`
	DueDate          time.Time       `json:"due_date"`
	Status           CandidateStatus `json:"status"`
	OwnerReference   string          `json:"owner_reference"`
	ReconciliationID string          `json:"reconciliation_id,omitempty"`
	ReconciledAt     *time.Time      `json:"reconciled_at,omitempty"`
}
