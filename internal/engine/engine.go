// Package engine implements the statement reconciliation pipeline: ingest
// rows, find and score candidates, resolve matches, persist one durable
// reconciliation row per transaction.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/cidesolutions/armonia-reconciler/internal/config"
	"github.com/cidesolutions/armonia-reconciler/internal/domain"
	"github.com/cidesolutions/armonia-reconciler/internal/ingest"
	"github.com/cidesolutions/armonia-reconciler/internal/tenant"
)

// CandidateSource provides the outstanding payment/fee pool for a tenant.
// The pool is loaded fresh per resolution pass; the engine never caches it
// across requests.
type CandidateSource interface {
	FindOutstanding(ctx context.Context, scope tenant.Scope) ([]domain.Candidate, error)
}

// RuleSource provides the tenant's enabled scoring rules.
type RuleSource interface {
	ListEnabled(ctx context.Context, scope tenant.Scope) ([]domain.ReconciliationRule, error)
}

// ResultStore persists a fully-resolved statement. Persist must be atomic
// and idempotent per (tenant, transaction id).
type ResultStore interface {
	Persist(ctx context.Context, scope tenant.Scope, txns []domain.BankTransaction, meta StatementMeta, result *domain.ReconciliationResult) ([]domain.BankReconciliation, error)
}

// StatementMeta carries statement-level attributes shared by every row of
// one upload.
type StatementMeta struct {
	BankName      string `json:"bank_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
}

// ProcessReport is the full outcome of one statement-processing call.
type ProcessReport struct {
	Result          *domain.ReconciliationResult `json:"result"`
	Reconciliations []domain.BankReconciliation  `json:"reconciliations"`
	RowErrors       []ingest.RowError            `json:"row_errors,omitempty"`
	Processed       int                          `json:"processed"`
	Unmatched       int                          `json:"unmatched"`
	Errored         int                          `json:"errored"`
}

// Engine is the stateless statement-processing pipeline. The only mutable
// state is the per-tenant lock table that serializes concurrent uploads for
// the same tenant, and the base configuration.
type Engine struct {
	candidates CandidateSource
	rules      RuleSource
	store      ResultStore

	cfgMu sync.RWMutex
	cfg   config.Config

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates an engine with the given collaborators and base configuration.
func New(candidates CandidateSource, rules RuleSource, store ResultStore, cfg config.Config) *Engine {
	return &Engine{
		candidates: candidates,
		rules:      rules,
		store:      store,
		cfg:        cfg,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Config returns the current base configuration.
func (e *Engine) Config() config.Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// SetConfig replaces the base configuration after validating it.
func (e *Engine) SetConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfgMu.Lock()
	e.cfg = cfg
	e.cfgMu.Unlock()
	return nil
}

// ProcessStatement runs the full pipeline for one uploaded statement. The
// whole pass runs under the tenant's lock so two concurrent uploads cannot
// both claim the same candidate. Nothing is persisted unless the complete
// result exists; a cancelled context aborts the call with no partial writes.
func (e *Engine) ProcessStatement(ctx context.Context, scope tenant.Scope, meta StatementMeta, rows []ingest.RawRow, override *config.Override) (*ProcessReport, error) {
	if !scope.Valid() {
		return nil, tenant.ErrInvalidScope
	}

	cfg := e.Config().Apply(override)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config override: %w", err)
	}

	lock := e.tenantLock(scope)
	lock.Lock()
	defer lock.Unlock()

	txns, rowErrs := ingest.Ingest(rows)

	pool, err := e.candidates.FindOutstanding(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	rules, err := e.rules.ListEnabled(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	result := Resolve(txns, pool, rules, cfg)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("statement processing aborted: %w", err)
	}

	recs, err := e.store.Persist(ctx, scope, txns, meta, &result)
	if err != nil {
		return nil, fmt.Errorf("persist result: %w", err)
	}

	log.Printf("[engine] tenant=%s processed=%d matched=%d unmatched=%d errored=%d",
		scope, len(txns), result.TotalMatches, len(result.UnmatchedTransactions), len(rowErrs))

	return &ProcessReport{
		Result:          &result,
		Reconciliations: recs,
		RowErrors:       rowErrs,
		Processed:       len(txns),
		Unmatched:       len(result.UnmatchedTransactions),
		Errored:         len(rowErrs),
	}, nil
}

func (e *Engine) tenantLock(scope tenant.Scope) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()

	lock, ok := e.locks[scope.ComplexID()]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[scope.ComplexID()] = lock
	}
	return lock
}
