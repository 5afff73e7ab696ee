package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/cidesolutions/armonia-reconciler/internal/domain"
	"github.com/cidesolutions/armonia-reconciler/internal/tenant"
)

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionReview  Action = "review"
)

// ActionOutcome is the per-id result of a bulk action. Error is set when the
// action could not be applied to that id; other ids are unaffected.
type ActionOutcome struct {
	ID        string                      `json:"id"`
	NewStatus domain.ReconciliationStatus `json:"new_status,omitempty"`
	Error     string                      `json:"error,omitempty"`
}

// BulkAction applies one action to each reconciliation id independently: a
// failing id never rolls back the others, and the returned list always has
// one entry per requested id.
//
// For approvals, candidate contention inside the batch resolves first writer
// wins: the first id to claim a candidate transitions to MATCHED, later ids
// pointing at the same candidate fall back to MANUAL_REVIEW with a conflict
// note. With autoApply set, one notification fires after the whole batch
// completes, never per row; notification failure never fails the batch.
//
// MATCHED rows are final for reject and review: the committed candidate link
// would otherwise be stranded. Undoing a match is a manual-correction flow,
// not a bulk action.
func (s *Store) BulkAction(ctx context.Context, scope tenant.Scope, ids []string, action Action, notes string, autoApply bool, actorID string) ([]ActionOutcome, error) {
	if !scope.Valid() {
		return nil, tenant.ErrInvalidScope
	}
	switch action {
	case ActionApprove, ActionReject, ActionReview:
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}

	claimedInBatch := make(map[string]string)
	outcomes := make([]ActionOutcome, 0, len(ids))
	approved := 0

	for _, id := range ids {
		outcome := s.applyAction(ctx, scope, id, action, notes, actorID, claimedInBatch)
		if outcome.NewStatus == domain.StatusMatched {
			approved++
		}
		outcomes = append(outcomes, outcome)
	}

	if action == ActionApprove && autoApply && approved > 0 {
		if err := s.notifier.BatchApproved(ctx, scope, approved); err != nil {
			log.Printf("[store] tenant=%s batch notification failed: %v", scope, err)
		}
	}

	return outcomes, nil
}

func (s *Store) applyAction(ctx context.Context, scope tenant.Scope, id string, action Action, notes, actorID string, claimedInBatch map[string]string) ActionOutcome {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ActionOutcome{ID: id, Error: fmt.Sprintf("begin tx: %v", err)}
	}
	defer sqlTx.Rollback()

	rec, err := s.reconRepo.GetByIDTx(ctx, sqlTx, scope, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ActionOutcome{ID: id, Error: "reconciliation not found"}
		}
		return ActionOutcome{ID: id, Error: fmt.Sprintf("load reconciliation: %v", err)}
	}

	now := s.now().UTC()
	var outcome ActionOutcome
	var claimedCandidate string

	switch action {
	case ActionApprove:
		outcome, claimedCandidate = s.approve(ctx, sqlTx, scope, rec, notes, actorID, claimedInBatch)
	case ActionReject:
		// A MATCHED row holds its candidate's PAID link; rewriting it here
		// would strand the candidate outside the outstanding pool.
		if rec.Status == domain.StatusMatched {
			return ActionOutcome{ID: id, Error: fmt.Sprintf("cannot reject from status %s", rec.Status)}
		}
		if err := s.reconRepo.SetOutcomeTx(ctx, sqlTx, scope, rec.ID, domain.StatusRejected,
			rec.CandidateID, rec.Confidence, notes, actorID, now); err != nil {
			return ActionOutcome{ID: id, Error: err.Error()}
		}
		outcome = ActionOutcome{ID: id, NewStatus: domain.StatusRejected}
	case ActionReview:
		if rec.Status == domain.StatusMatched {
			return ActionOutcome{ID: id, Error: fmt.Sprintf("cannot review from status %s", rec.Status)}
		}
		if err := s.reconRepo.SetOutcomeTx(ctx, sqlTx, scope, rec.ID, domain.StatusManualReview,
			rec.CandidateID, rec.Confidence, notes, actorID, now); err != nil {
			return ActionOutcome{ID: id, Error: err.Error()}
		}
		outcome = ActionOutcome{ID: id, NewStatus: domain.StatusManualReview}
	}

	if outcome.Error != "" {
		return outcome
	}
	if err := sqlTx.Commit(); err != nil {
		return ActionOutcome{ID: id, Error: fmt.Sprintf("commit: %v", err)}
	}
	// An in-batch claim counts only once it is durable; a rolled-back
	// approval must not divert later ids in the batch.
	if claimedCandidate != "" {
		claimedInBatch[claimedCandidate] = rec.ID
	}
	return outcome
}

// approve runs inside the caller's transaction. On success it returns the
// claimed candidate id; the caller records the in-batch claim after commit.
func (s *Store) approve(ctx context.Context, sqlTx *sql.Tx, scope tenant.Scope, rec *domain.BankReconciliation, notes, actorID string, claimedInBatch map[string]string) (ActionOutcome, string) {
	if rec.Status != domain.StatusSuggested && rec.Status != domain.StatusManualReview {
		return ActionOutcome{ID: rec.ID, Error: fmt.Sprintf("cannot approve from status %s", rec.Status)}, ""
	}

	top := rec.TopSuggestion()
	if top == nil {
		return ActionOutcome{ID: rec.ID, Error: "no suggested candidate to approve"}, ""
	}

	now := s.now().UTC()

	conflictWith, inBatch := claimedInBatch[top.CandidateID]
	claimed := false
	if !inBatch {
		var err error
		claimed, err = s.candRepo.AdvanceToPaidTx(ctx, sqlTx, scope, top.CandidateID, rec.ID, now)
		if err != nil {
			return ActionOutcome{ID: rec.ID, Error: err.Error()}, ""
		}
	}

	if !claimed {
		// First writer in batch order wins; this id loses the candidate
		// and goes to a human instead of failing the batch.
		note := fmt.Sprintf("%v: candidate %s", ErrAlreadyMatched, top.CandidateID)
		if inBatch {
			note = fmt.Sprintf("%v: candidate %s claimed by reconciliation %s in this batch",
				ErrAlreadyMatched, top.CandidateID, conflictWith)
		}
		if err := s.reconRepo.SetOutcomeTx(ctx, sqlTx, scope, rec.ID,
			domain.StatusManualReview, "", rec.Confidence, note, actorID, now); err != nil {
			return ActionOutcome{ID: rec.ID, Error: err.Error()}, ""
		}
		return ActionOutcome{ID: rec.ID, NewStatus: domain.StatusManualReview}, ""
	}

	if err := s.reconRepo.SetOutcomeTx(ctx, sqlTx, scope, rec.ID,
		domain.StatusMatched, top.CandidateID, top.Confidence, notes, actorID, now); err != nil {
		return ActionOutcome{ID: rec.ID, Error: err.Error()}, ""
	}
	return ActionOutcome{ID: rec.ID, NewStatus: domain.StatusMatched}, top.CandidateID
}

// ManualMatch pins a reconciliation to an operator-chosen candidate,
// bypassing the suggestion ranking. Returns ErrAlreadyMatched when the
// candidate is already claimed.
func (s *Store) ManualMatch(ctx context.Context, scope tenant.Scope, id, candidateID, actorID, notes string) (*domain.BankReconciliation, error) {
	if !scope.Valid() {
		return nil, tenant.ErrInvalidScope
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	rec, err := s.reconRepo.GetByIDTx(ctx, sqlTx, scope, id)
	if err != nil {
		return nil, fmt.Errorf("reconciliation %s: %w", id, err)
	}
	if rec.Status == domain.StatusMatched {
		return nil, fmt.Errorf("reconciliation %s: %w", id, ErrAlreadyMatched)
	}

	now := s.now().UTC()
	claimed, err := s.candRepo.AdvanceToPaidTx(ctx, sqlTx, scope, candidateID, rec.ID, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("candidate %s: %w", candidateID, ErrAlreadyMatched)
	}

	// Keep the scored confidence when the operator picked one of the
	// engine's own suggestions; an off-list pick is a human assertion.
	confidence := 100
	for _, sug := range rec.Suggestions {
		if sug.CandidateID == candidateID {
			confidence = sug.Confidence
			break
		}
	}

	if err := s.reconRepo.SetOutcomeTx(ctx, sqlTx, scope, rec.ID, domain.StatusMatched,
		candidateID, confidence, notes, actorID, now); err != nil {
		return nil, err
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	rec.Status = domain.StatusMatched
	rec.CandidateID = candidateID
	rec.Confidence = confidence
	rec.Notes = notes
	rec.ProcessedByID = actorID
	rec.ProcessedAt = &now
	return rec, nil
}
