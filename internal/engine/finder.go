package engine

import (
	"time"

	"github.com/cidesolutions/armonia-reconciler/internal/config"
	"github.com/cidesolutions/armonia-reconciler/internal/domain"
)

// FindCandidates filters the outstanding pool down to the candidates
// plausible for one transaction: not already paid, not already linked to a
// committed reconciliation, amount within tolerance and due date within the
// configured window. Boundaries are inclusive. Pure read, no side effects.
func FindCandidates(txn domain.BankTransaction, pool []domain.Candidate, cfg config.Config) []domain.Candidate {
	tol := cfg.AmountTolerance(txn.Amount)

	var eligible []domain.Candidate
	for _, cand := range pool {
		if cand.Status == domain.CandidatePaid || cand.ReconciliationID != "" {
			continue
		}
		if cand.Amount.Sub(txn.Amount).Abs().GreaterThan(tol) {
			continue
		}
		if daysBetween(cand.DueDate, txn.Date) > cfg.DateWindowDays {
			continue
		}
		eligible = append(eligible, cand)
	}
	return eligible
}

// daysBetween returns the absolute calendar-day distance between two dates,
// ignoring the time-of-day component.
func daysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}
