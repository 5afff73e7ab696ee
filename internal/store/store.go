// Package store is the reconciliation persistence boundary: it writes the
// durable per-transaction outcome rows produced by the engine and runs the
// bulk approval workflow that later confirms or discards suggested matches.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/cidesolutions/armonia-reconciler/internal/domain"
	"github.com/cidesolutions/armonia-reconciler/internal/engine"
	"github.com/cidesolutions/armonia-reconciler/internal/notify"
	"github.com/cidesolutions/armonia-reconciler/internal/repository"
	"github.com/cidesolutions/armonia-reconciler/internal/tenant"
)

// ErrAlreadyMatched indicates the target candidate is already claimed by
// another reconciliation. Bulk approvals recover from it by falling back to
// manual review; manual matching surfaces it to the caller.
var ErrAlreadyMatched = errors.New("candidate already matched")

// Store persists reconciliation outcomes and applies bulk actions.
type Store struct {
	db        *sql.DB
	reconRepo *repository.ReconciliationRepo
	candRepo  *repository.CandidateRepo
	notifier  notify.Notifier

	now func() time.Time
}

// New creates a store over the shared database handle.
func New(db *sql.DB, reconRepo *repository.ReconciliationRepo, candRepo *repository.CandidateRepo, notifier notify.Notifier) *Store {
	return &Store{
		db:        db,
		reconRepo: reconRepo,
		candRepo:  candRepo,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Persist writes one BankReconciliation row per statement transaction in a
// single database transaction: either the complete result lands or nothing
// does. Auto-matched candidates are advanced to PAID atomically with their
// row's MATCHED status. Re-persisting the same statement updates the
// existing rows; transactions already processed by the bulk handler keep
// their outcome untouched.
func (s *Store) Persist(ctx context.Context, scope tenant.Scope, txns []domain.BankTransaction, meta engine.StatementMeta, result *domain.ReconciliationResult) ([]domain.BankReconciliation, error) {
	if !scope.Valid() {
		return nil, tenant.ErrInvalidScope
	}

	matchByTxn := make(map[string]domain.ReconciliationMatch, len(result.Matches))
	for _, m := range result.Matches {
		matchByTxn[m.TransactionID] = m
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	now := s.now().UTC()
	recs := make([]domain.BankReconciliation, 0, len(txns))

	for _, txn := range txns {
		existing, err := s.reconRepo.GetByTransactionTx(ctx, sqlTx, scope, txn.TransactionID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lookup %s: %w", txn.TransactionID, err)
		}

		// Rows the bulk handler already decided are part of the audit
		// trail; re-processing never reopens them.
		if existing != nil && existing.Status != domain.StatusUnmatched && existing.Status != domain.StatusSuggested {
			recs = append(recs, *existing)
			continue
		}

		rec := domain.BankReconciliation{
			ID:            uuid.NewString(),
			TransactionID: txn.TransactionID,
			TenantID:      scope.ComplexID(),
			Date:          txn.Date,
			Description:   txn.Description,
			Amount:        txn.Amount,
			Type:          txn.Type,
			Reference:     txn.Reference,
			BankName:      meta.BankName,
			AccountNumber: meta.AccountNumber,
			CreatedAt:     now,
		}
		if existing != nil {
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
		}

		match, ok := matchByTxn[txn.TransactionID]
		switch {
		case !ok:
			rec.Status = domain.StatusUnmatched
			rec.Reason = "no candidate cleared the suggest threshold"
		case match.IsAutoMatch:
			if err := s.commitAutoMatch(ctx, sqlTx, scope, &rec, match, now); err != nil {
				return nil, err
			}
		default:
			rec.Status = domain.StatusSuggested
			rec.Confidence = match.Confidence
			rec.Reason = match.Notes
			rec.Suggestions = match.Suggestions
		}

		if _, err := s.reconRepo.UpsertTx(ctx, sqlTx, &rec); err != nil {
			return nil, fmt.Errorf("persist %s: %w", txn.TransactionID, err)
		}
		recs = append(recs, rec)
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return recs, nil
}

// commitAutoMatch claims the candidate and marks the row MATCHED. A claim
// that fails here means another reconciliation holds the candidate despite
// the resolver's in-pass claiming; the row falls back to manual review
// instead of silently double-linking.
func (s *Store) commitAutoMatch(ctx context.Context, sqlTx *sql.Tx, scope tenant.Scope, rec *domain.BankReconciliation, match domain.ReconciliationMatch, now time.Time) error {
	claimed, err := s.candRepo.AdvanceToPaidTx(ctx, sqlTx, scope, match.CandidateID, rec.ID, now)
	if err != nil {
		return fmt.Errorf("claim candidate %s: %w", match.CandidateID, err)
	}

	if !claimed {
		rec.Status = domain.StatusManualReview
		rec.Confidence = match.Confidence
		rec.Reason = match.Notes
		rec.Notes = fmt.Sprintf("candidate %s already matched elsewhere; flagged for review", match.CandidateID)
		log.Printf("[store] tenant=%s txn=%s: %v (candidate %s), falling back to manual review",
			scope, rec.TransactionID, ErrAlreadyMatched, match.CandidateID)
		return nil
	}

	rec.Status = domain.StatusMatched
	rec.CandidateID = match.CandidateID
	rec.Confidence = match.Confidence
	rec.Reason = match.Notes
	rec.ProcessedByID = "auto"
	rec.ProcessedAt = &now
	return nil
}
