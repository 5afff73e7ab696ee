package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/cidesolutions/armonia-reconciler/internal/config"
	"github.com/cidesolutions/armonia-reconciler/internal/domain"
)

// Score computes the 0-100 confidence for one (transaction, candidate) pair
// as a weighted sum of amount, date and reference sub-scores, then applies
// the highest-priority matching rule as a bias. Deterministic: identical
// inputs always yield the identical score.
//
// The returned rationale explains the sub-scores for audit and display.
func Score(txn domain.BankTransaction, cand domain.Candidate, rules []domain.ReconciliationRule, cfg config.Config) (int, string) {
	amt := amountScore(txn, cand, cfg)
	if amt == 0 {
		// The finder never produces candidates outside tolerance; if one
		// slips through anyway the pair is not a match, full stop.
		return 0, "amount outside tolerance"
	}

	date := dateScore(txn, cand, cfg)
	ref := referenceScore(txn, cand)

	w := cfg.Weights
	raw := w.Amount*amt + w.Date*date + w.Reference*ref
	confidence := int(math.Round(raw * 100))

	rationale := fmt.Sprintf("amount=%.2f date=%.2f reference=%.2f", amt, date, ref)

	if rule := matchRule(txn, rules); rule != nil {
		confidence += rule.Boost
		rationale += fmt.Sprintf(" rule=%s(%+d)", rule.Name, rule.Boost)
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	return confidence, rationale
}

// amountScore is 1 on exact equality and decays linearly to 0 at the
// tolerance boundary.
func amountScore(txn domain.BankTransaction, cand domain.Candidate, cfg config.Config) float64 {
	diff := cand.Amount.Sub(txn.Amount).Abs()
	if diff.IsZero() {
		return 1
	}
	tol := cfg.AmountTolerance(txn.Amount)
	if tol.IsZero() || diff.GreaterThan(tol) {
		return 0
	}
	ratio, _ := diff.Div(tol).Float64()
	return 1 - ratio
}

// dateScore is 1 on the same calendar day and decays linearly to 0 at the
// date-window boundary.
func dateScore(txn domain.BankTransaction, cand domain.Candidate, cfg config.Config) float64 {
	days := daysBetween(cand.DueDate, txn.Date)
	if days == 0 {
		return 1
	}
	if cfg.DateWindowDays == 0 || days > cfg.DateWindowDays {
		return 0
	}
	return 1 - float64(days)/float64(cfg.DateWindowDays)
}

// referenceScore compares the transaction's description and reference
// against the candidate's owner reference: 1 on exact containment, token
// overlap otherwise, 0 on no overlap.
func referenceScore(txn domain.BankTransaction, cand domain.Candidate) float64 {
	owner := strings.ToLower(strings.TrimSpace(cand.OwnerReference))
	if owner == "" {
		return 0
	}

	desc := strings.ToLower(txn.Description)
	ref := strings.ToLower(txn.Reference)
	if strings.Contains(desc, owner) || (ref != "" && strings.Contains(ref, owner)) {
		return 1
	}

	ownerTokens := tokenize(owner)
	if len(ownerTokens) == 0 {
		return 0
	}
	txnTokens := make(map[string]bool)
	for _, tok := range tokenize(desc) {
		txnTokens[tok] = true
	}
	for _, tok := range tokenize(ref) {
		txnTokens[tok] = true
	}

	matched := 0
	for _, tok := range ownerTokens {
		if txnTokens[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(ownerTokens))
}

// matchRule returns the highest-priority enabled rule whose pattern occurs
// in the transaction's description or reference, or nil.
func matchRule(txn domain.BankTransaction, rules []domain.ReconciliationRule) *domain.ReconciliationRule {
	desc := strings.ToLower(txn.Description)
	ref := strings.ToLower(txn.Reference)

	var best *domain.ReconciliationRule
	for i := range rules {
		rule := &rules[i]
		if !rule.Enabled || rule.Pattern == "" {
			continue
		}
		pattern := strings.ToLower(rule.Pattern)
		if !strings.Contains(desc, pattern) && !strings.Contains(ref, pattern) {
			continue
		}
		if best == nil || rule.Priority > best.Priority {
			best = rule
		}
	}
	return best
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9')
	})
}
