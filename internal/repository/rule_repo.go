package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cidesolutions/armonia-reconciler/internal/domain"
	"github.com/cidesolutions/armonia-reconciler/internal/tenant"
)

// RuleRepo reads the tenant-configurable scoring rules. The engine only
// consumes rules; rule administration lives elsewhere.
type RuleRepo struct {
	db *sql.DB
}

func NewRuleRepo(db *sql.DB) *RuleRepo {
	return &RuleRepo{db: db}
}

func (r *RuleRepo) Insert(ctx context.Context, scope tenant.Scope, rule *domain.ReconciliationRule) error {
	enabled := 0
	if rule.Enabled {
		enabled = 1
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reconciliation_rules
		(id, tenant_id, name, pattern, priority, boost, enabled)
		VALUES (?,?,?,?,?,?,?)`,
		rule.ID, scope.ComplexID(), rule.Name, rule.Pattern, rule.Priority,
		rule.Boost, enabled,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// ListEnabled returns the tenant's enabled rules ordered by priority,
// highest first.
func (r *RuleRepo) ListEnabled(ctx context.Context, scope tenant.Scope) ([]domain.ReconciliationRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, pattern, priority, boost, enabled
		 FROM reconciliation_rules
		 WHERE tenant_id = ? AND enabled = 1
		 ORDER BY priority DESC, id`,
		scope.ComplexID(),
	)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.ReconciliationRule
	for rows.Next() {
		var rule domain.ReconciliationRule
		var enabled int
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Pattern, &rule.Priority,
			&rule.Boost, &enabled); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule.Enabled = enabled == 1
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
