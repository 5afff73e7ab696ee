package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cidesolutions/armonia-reconciler/internal/domain"
	"github.com/cidesolutions/armonia-reconciler/internal/tenant"
)

// ReconciliationRepo persists the durable per-transaction reconciliation
// records. Rows are upserted on (tenant, transaction id) so re-processing a
// statement is an update, never a duplicate, and are never deleted.
type ReconciliationRepo struct {
	db *sql.DB
}

func NewReconciliationRepo(db *sql.DB) *ReconciliationRepo {
	return &ReconciliationRepo{db: db}
}

// UpsertTx writes one reconciliation row inside an open transaction. An
// existing row for the same (tenant, transaction id) is updated only while
// still in UNMATCHED or SUGGESTED state; rows already processed by the bulk
// handler keep their outcome. Returns the id of the stored row.
func (r *ReconciliationRepo) UpsertTx(ctx context.Context, sqlTx *sql.Tx, rec *domain.BankReconciliation) (string, error) {
	suggestions, err := json.Marshal(rec.Suggestions)
	if err != nil {
		return "", fmt.Errorf("marshal suggestions: %w", err)
	}

	_, err = sqlTx.ExecContext(ctx,
		`INSERT INTO reconciliations
		(id, tenant_id, transaction_id, date, description, amount, type,
		 reference, bank_name, account_number, status, candidate_id,
		 confidence, reason, suggestions, notes, processed_by, processed_at,
		 created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(tenant_id, transaction_id) DO UPDATE SET
			date = excluded.date,
			description = excluded.description,
			amount = excluded.amount,
			type = excluded.type,
			reference = excluded.reference,
			bank_name = excluded.bank_name,
			account_number = excluded.account_number,
			status = excluded.status,
			candidate_id = excluded.candidate_id,
			confidence = excluded.confidence,
			reason = excluded.reason,
			suggestions = excluded.suggestions
		WHERE reconciliations.status IN (?, ?)`,
		rec.ID, rec.TenantID, rec.TransactionID,
		rec.Date.Format(time.RFC3339), rec.Description, rec.Amount.String(),
		string(rec.Type), rec.Reference, rec.BankName, rec.AccountNumber,
		string(rec.Status), nullableString(rec.CandidateID), rec.Confidence,
		rec.Reason, string(suggestions), rec.Notes, rec.ProcessedByID,
		formatNullableTime(rec.ProcessedAt), rec.CreatedAt.Format(time.RFC3339),
		string(domain.StatusUnmatched), string(domain.StatusSuggested),
	)
	if err != nil {
		return "", fmt.Errorf("upsert reconciliation: %w", err)
	}

	// The stored id may differ from rec.ID when the row already existed.
	var id string
	err = sqlTx.QueryRowContext(ctx,
		"SELECT id FROM reconciliations WHERE tenant_id = ? AND transaction_id = ?",
		rec.TenantID, rec.TransactionID,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("lookup upserted row: %w", err)
	}
	return id, nil
}

func (r *ReconciliationRepo) GetByID(ctx context.Context, scope tenant.Scope, id string) (*domain.BankReconciliation, error) {
	return r.getByID(ctx, r.db.QueryRowContext, scope, id)
}

// GetByIDTx reads a row inside an open transaction, for check-and-set flows.
func (r *ReconciliationRepo) GetByIDTx(ctx context.Context, sqlTx *sql.Tx, scope tenant.Scope, id string) (*domain.BankReconciliation, error) {
	return r.getByID(ctx, sqlTx.QueryRowContext, scope, id)
}

type queryRowFn func(ctx context.Context, query string, args ...any) *sql.Row

func (r *ReconciliationRepo) getByID(ctx context.Context, queryRow queryRowFn, scope tenant.Scope, id string) (*domain.BankReconciliation, error) {
	row := queryRow(ctx,
		selectReconciliation+" WHERE tenant_id = ? AND id = ?",
		scope.ComplexID(), id,
	)
	return scanReconciliation(row)
}

// GetByTransactionTx looks up the row for a statement transaction inside an
// open transaction. Returns sql.ErrNoRows when the transaction has not been
// seen before.
func (r *ReconciliationRepo) GetByTransactionTx(ctx context.Context, sqlTx *sql.Tx, scope tenant.Scope, transactionID string) (*domain.BankReconciliation, error) {
	row := sqlTx.QueryRowContext(ctx,
		selectReconciliation+" WHERE tenant_id = ? AND transaction_id = ?",
		scope.ComplexID(), transactionID,
	)
	return scanReconciliation(row)
}

// SetOutcomeTx applies a bulk-action outcome to one row inside an open
// transaction.
func (r *ReconciliationRepo) SetOutcomeTx(ctx context.Context, sqlTx *sql.Tx, scope tenant.Scope, id string, status domain.ReconciliationStatus, candidateID string, confidence int, notes, processedBy string, processedAt time.Time) error {
	_, err := sqlTx.ExecContext(ctx,
		`UPDATE reconciliations
		 SET status = ?, candidate_id = ?, confidence = ?, notes = ?,
		     processed_by = ?, processed_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		string(status), nullableString(candidateID), confidence, notes,
		processedBy, processedAt.Format(time.RFC3339),
		scope.ComplexID(), id,
	)
	if err != nil {
		return fmt.Errorf("set outcome %s: %w", id, err)
	}
	return nil
}

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	Status string
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

func (r *ReconciliationRepo) List(ctx context.Context, scope tenant.Scope, f Filter) ([]domain.BankReconciliation, int, error) {
	where, args := buildReconciliationWhere(scope, f)

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reconciliations"+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := selectReconciliation + where + " ORDER BY date DESC, transaction_id LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var recs []domain.BankReconciliation
	for rows.Next() {
		rec, err := scanReconciliationRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, total, rows.Err()
}

// Stats summarises reconciliation outcomes for a tenant over a period.
type Stats struct {
	Total         int             `json:"total"`
	ByStatus      map[string]int  `json:"by_status"`
	MatchedAmount decimal.Decimal `json:"matched_amount"`
	AvgConfidence float64         `json:"avg_confidence"`
}

func (r *ReconciliationRepo) GetStats(ctx context.Context, scope tenant.Scope, from, to *time.Time) (*Stats, error) {
	where, args := buildReconciliationWhere(scope, Filter{From: from, To: to})

	s := &Stats{
		ByStatus:      make(map[string]int),
		MatchedAmount: decimal.Zero,
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM reconciliations"+where+" GROUP BY status", args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		s.ByStatus[status] = count
		s.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	matchedWhere := where + " AND status = ?"
	matchedArgs := append(append([]any{}, args...), string(domain.StatusMatched))

	var sumStr sql.NullString
	var avg sql.NullFloat64
	err = r.db.QueryRowContext(ctx,
		`SELECT SUM(CAST(amount AS REAL)), AVG(confidence)
		 FROM reconciliations`+matchedWhere, matchedArgs...,
	).Scan(&sumStr, &avg)
	if err != nil {
		return nil, err
	}
	if sumStr.Valid {
		if d, err := decimal.NewFromString(sumStr.String); err == nil {
			s.MatchedAmount = d
		}
	}
	if avg.Valid {
		s.AvgConfidence = avg.Float64
	}

	return s, nil
}

// --- helpers ---

const selectReconciliation = `SELECT id, tenant_id, transaction_id, date,
	description, amount, type, reference, bank_name, account_number, status,
	candidate_id, confidence, reason, suggestions, notes, processed_by,
	processed_at, created_at FROM reconciliations`

func buildReconciliationWhere(scope tenant.Scope, f Filter) (string, []any) {
	clauses := []string{"tenant_id = ?"}
	args := []any{scope.ComplexID()}

	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		clauses = append(clauses, "date >= ?")
		args = append(args, f.From.Format(time.RFC3339))
	}
	if f.To != nil {
		clauses = append(clauses, "date <= ?")
		args = append(args, f.To.Format(time.RFC3339))
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReconciliation(row *sql.Row) (*domain.BankReconciliation, error) {
	return scanReconciliationRows(row)
}

func scanReconciliationRows(row rowScanner) (*domain.BankReconciliation, error) {
	var (
		rec                      domain.BankReconciliation
		dateStr, createdStr      string
		amountStr, typeStr       string
		statusStr, suggestionsJS string
		candidateID              sql.NullString
		processedAt              sql.NullString
	)

	err := row.Scan(&rec.ID, &rec.TenantID, &rec.TransactionID, &dateStr,
		&rec.Description, &amountStr, &typeStr, &rec.Reference, &rec.BankName,
		&rec.AccountNumber, &statusStr, &candidateID, &rec.Confidence,
		&rec.Reason, &suggestionsJS, &rec.Notes, &rec.ProcessedByID,
		&processedAt, &createdStr)
	if err != nil {
		return nil, err
	}

	rec.Type = domain.TransactionType(typeStr)
	rec.Status = domain.ReconciliationStatus(statusStr)
	rec.Date, _ = time.Parse(time.RFC3339, dateStr)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	rec.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amountStr, err)
	}
	if candidateID.Valid {
		rec.CandidateID = candidateID.String
	}
	if processedAt.Valid {
		if t, err := time.Parse(time.RFC3339, processedAt.String); err == nil {
			rec.ProcessedAt = &t
		}
	}
	if err := json.Unmarshal([]byte(suggestionsJS), &rec.Suggestions); err != nil {
		return nil, fmt.Errorf("parse suggestions: %w", err)
	}

	return &rec, nil
}
