package engine

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cidesolutions/armonia-reconciler/internal/config"
	"github.com/cidesolutions/armonia-reconciler/internal/domain"
)

// scoredCandidate is one (candidate, confidence) pair ranked for a
// transaction.
type scoredCandidate struct {
	cand       domain.Candidate
	confidence int
	rationale  string
	dateDist   int
}

// Resolve applies the decision policy over a statement: per transaction, in
// ingestion order, the best-scoring eligible candidate is auto-matched at or
// above AutoThreshold, suggested at or above SuggestThreshold, otherwise the
// transaction stays unmatched.
//
// Scoring is parallelized across transactions; the claiming step, which
// mutates the shared pool, is a single sequential reduction in ingestion
// order. An auto-matched candidate leaves the pool immediately, so no two
// transactions can auto-match the same candidate in one pass. Suggestions
// are non-committal and may overlap; contention is settled at approval time.
func Resolve(txns []domain.BankTransaction, pool []domain.Candidate, rules []domain.ReconciliationRule, cfg config.Config) domain.ReconciliationResult {
	scored := scoreAll(txns, pool, rules, cfg)

	claimed := make(map[string]bool)
	referenced := make(map[string]bool)

	result := domain.ReconciliationResult{
		TotalAmount: decimal.Zero,
	}

	for i, txn := range txns {
		ranked := unclaimed(scored[i], claimed)
		if len(ranked) == 0 || ranked[0].confidence < cfg.SuggestThreshold {
			result.UnmatchedTransactions = append(result.UnmatchedTransactions, txn.TransactionID)
			continue
		}

		best := ranked[0]
		if best.confidence >= cfg.AutoThreshold {
			claimed[best.cand.ID] = true
			referenced[best.cand.ID] = true
			result.Matches = append(result.Matches, domain.ReconciliationMatch{
				TransactionID: txn.TransactionID,
				CandidateID:   best.cand.ID,
				Confidence:    best.confidence,
				IsAutoMatch:   true,
				Notes:         best.rationale,
			})
		} else {
			suggestions := make([]domain.Suggestion, 0, len(ranked))
			for _, sc := range ranked {
				if sc.confidence < cfg.SuggestThreshold {
					break
				}
				referenced[sc.cand.ID] = true
				suggestions = append(suggestions, domain.Suggestion{
					CandidateID: sc.cand.ID,
					Confidence:  sc.confidence,
					Rationale:   sc.rationale,
				})
			}
			result.Matches = append(result.Matches, domain.ReconciliationMatch{
				TransactionID: txn.TransactionID,
				Confidence:    best.confidence,
				IsAutoMatch:   false,
				Notes:         best.rationale,
				Suggestions:   suggestions,
			})
		}
		result.TotalAmount = result.TotalAmount.Add(txn.Amount)
	}

	result.TotalMatches = len(result.Matches)

	for _, cand := range pool {
		if !referenced[cand.ID] {
			result.UnmatchedCandidates = append(result.UnmatchedCandidates, cand.ID)
		}
	}

	return result
}

// scoreAll finds and scores candidates for every transaction concurrently.
// No shared state is mutated: each goroutine writes only its own slot.
func scoreAll(txns []domain.BankTransaction, pool []domain.Candidate, rules []domain.ReconciliationRule, cfg config.Config) [][]scoredCandidate {
	scored := make([][]scoredCandidate, len(txns))

	var wg sync.WaitGroup
	for i := range txns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			scored[i] = rankCandidates(txns[i], pool, rules, cfg)
		}(i)
	}
	wg.Wait()

	return scored
}

// rankCandidates scores the eligible candidates for one transaction and
// sorts them best-first. Ties on confidence break toward the candidate whose
// due date is closest to the transaction date, then toward the lowest id,
// keeping the ordering deterministic.
func rankCandidates(txn domain.BankTransaction, pool []domain.Candidate, rules []domain.ReconciliationRule, cfg config.Config) []scoredCandidate {
	eligible := FindCandidates(txn, pool, cfg)
	if len(eligible) == 0 {
		return nil
	}

	ranked := make([]scoredCandidate, 0, len(eligible))
	for _, cand := range eligible {
		conf, rationale := Score(txn, cand, rules, cfg)
		ranked = append(ranked, scoredCandidate{
			cand:       cand,
			confidence: conf,
			rationale:  rationale,
			dateDist:   daysBetween(cand.DueDate, txn.Date),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].confidence != ranked[j].confidence {
			return ranked[i].confidence > ranked[j].confidence
		}
		if ranked[i].dateDist != ranked[j].dateDist {
			return ranked[i].dateDist < ranked[j].dateDist
		}
		return ranked[i].cand.ID < ranked[j].cand.ID
	})

	return ranked
}

func unclaimed(ranked []scoredCandidate, claimed map[string]bool) []scoredCandidate {
	if len(claimed) == 0 {
		return ranked
	}
	out := make([]scoredCandidate, 0, len(ranked))
	for _, sc := range ranked {
		if !claimed[sc.cand.ID] {
			out = append(out, sc)
		}
	}
	return out
}
