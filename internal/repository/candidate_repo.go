package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cidesolutions/armonia-reconciler/internal/domain"
	"github.com/cidesolutions/armonia-reconciler/internal/tenant"
)

// CandidateRepo reads and advances the outstanding payment/fee records of a
// tenant. The finance subsystem owns candidate creation; the reconciliation
// engine only reads them and writes back the link on a confirmed match.
type CandidateRepo struct {
	db *sql.DB
}

func NewCandidateRepo(db *sql.DB) *CandidateRepo {
	return &CandidateRepo{db: db}
}

func (r *CandidateRepo) Insert(ctx context.Context, scope tenant.Scope, c *domain.Candidate) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO candidates
		(id, tenant_id, kind, amount, due_date, status, owner_reference,
		 reconciliation_id, reconciled_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		c.ID, scope.ComplexID(), string(c.Kind), c.Amount.String(),
		c.DueDate.Format(time.RFC3339), string(c.Status), c.OwnerReference,
		nullableString(c.ReconciliationID), formatNullableTime(c.ReconciledAt),
	)
	if err != nil {
		return fmt.Errorf("insert candidate: %w", err)
	}
	return nil
}

func (r *CandidateRepo) BulkInsert(ctx context.Context, scope tenant.Scope, cands []domain.Candidate) (int, error) {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO candidates
		(id, tenant_id, kind, amount, due_date, status, owner_reference,
		 reconciliation_id, reconciled_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range cands {
		c := &cands[i]
		res, err := stmt.ExecContext(ctx,
			c.ID, scope.ComplexID(), string(c.Kind), c.Amount.String(),
			c.DueDate.Format(time.RFC3339), string(c.Status), c.OwnerReference,
			nullableString(c.ReconciliationID), formatNullableTime(c.ReconciledAt),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// FindOutstanding returns the tenant's candidates still eligible for
// matching: not paid and not linked to a committed reconciliation. Ordered
// by due date then id for deterministic resolution passes.
func (r *CandidateRepo) FindOutstanding(ctx context.Context, scope tenant.Scope) ([]domain.Candidate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, amount, due_date, status, owner_reference,
		        reconciliation_id, reconciled_at
		 FROM candidates
		 WHERE tenant_id = ? AND status != ? AND reconciliation_id IS NULL
		 ORDER BY due_date, id`,
		scope.ComplexID(), string(domain.CandidatePaid),
	)
	if err != nil {
		return nil, fmt.Errorf("query outstanding: %w", err)
	}
	defer rows.Close()
	return scanCandidates(rows)
}

func (r *CandidateRepo) GetByID(ctx context.Context, scope tenant.Scope, id string) (*domain.Candidate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, amount, due_date, status, owner_reference,
		        reconciliation_id, reconciled_at
		 FROM candidates WHERE tenant_id = ? AND id = ?`,
		scope.ComplexID(), id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cands, err := scanCandidates(rows)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, sql.ErrNoRows
	}
	return &cands[0], nil
}

func (r *CandidateRepo) Count(ctx context.Context, scope tenant.Scope) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM candidates WHERE tenant_id = ?", scope.ComplexID(),
	).Scan(&count)
	return count, err
}

// AdvanceToPaidTx atomically claims a candidate for a reconciliation inside
// an open transaction. It reports false when another reconciliation already
// holds the candidate; first writer wins.
func (r *CandidateRepo) AdvanceToPaidTx(ctx context.Context, sqlTx *sql.Tx, scope tenant.Scope, candidateID, reconciliationID string, at time.Time) (bool, error) {
	res, err := sqlTx.ExecContext(ctx,
		`UPDATE candidates
		 SET status = ?, reconciliation_id = ?, reconciled_at = ?
		 WHERE tenant_id = ? AND id = ? AND status != ? AND reconciliation_id IS NULL`,
		string(domain.CandidatePaid), reconciliationID, at.Format(time.RFC3339),
		scope.ComplexID(), candidateID, string(domain.CandidatePaid),
	)
	if err != nil {
		return false, fmt.Errorf("advance candidate %s: %w", candidateID, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return ra == 1, nil
}

func scanCandidates(rows *sql.Rows) ([]domain.Candidate, error) {
	var cands []domain.Candidate
	for rows.Next() {
		var (
			c            domain.Candidate
			kind, status string
			amountStr    string
			dueDateStr   string
			reconID      sql.NullString
			reconciledAt sql.NullString
		)
		err := rows.Scan(&c.ID, &kind, &amountStr, &dueDateStr, &status,
			&c.OwnerReference, &reconID, &reconciledAt)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}

		c.Kind = domain.CandidateKind(kind)
		c.Status = domain.CandidateStatus(status)
		c.Amount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amountStr, err)
		}
		c.DueDate, _ = time.Parse(time.RFC3339, dueDateStr)
		if reconID.Valid {
			c.ReconciliationID = reconID.String
		}
		if reconciledAt.Valid {
			if t, err := time.Parse(time.RFC3339, reconciledAt.String); err == nil {
				c.ReconciledAt = &t
			}
		}

		cands = append(cands, c)
	}
	return cands, rows.Err()
}

// --- shared scan helpers ---

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
