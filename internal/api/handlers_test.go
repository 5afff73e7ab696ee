package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidesolutions/armonia-reconciler/internal/config"
	"github.com/cidesolutions/armonia-reconciler/internal/domain"
	"github.com/cidesolutions/armonia-reconciler/internal/engine"
	"github.com/cidesolutions/armonia-reconciler/internal/notify"
	"github.com/cidesolutions/armonia-reconciler/internal/repository"
	"github.com/cidesolutions/armonia-reconciler/internal/store"
	"github.com/cidesolutions/armonia-reconciler/internal/tenant"
)

type testServer struct {
	router   http.Handler
	candRepo *repository.CandidateRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	candRepo := repository.NewCandidateRepo(db)
	reconRepo := repository.NewReconciliationRepo(db)
	ruleRepo := repository.NewRuleRepo(db)

	st := store.New(db, reconRepo, candRepo, notify.LogNotifier{})
	eng := engine.New(candRepo, ruleRepo, st, config.Default())

	return &testServer{
		router:   NewRouter(eng, st, reconRepo, tenant.StaticResolver{}),
		candRepo: candRepo,
	}
}

func (ts *testServer) seedCandidate(t *testing.T, id string, amount int64, day int, owner string) {
	t.Helper()
	scope, err := tenant.StaticResolver{}.Resolve("complex-1")
	require.NoError(t, err)
	err = ts.candRepo.Insert(context.Background(), scope, &domain.Candidate{
		ID:             id,
		Kind:           domain.KindPayment,
		Amount:         decimal.NewFromInt(amount),
		DueDate:        time.Date(2025, 7, day, 0, 0, 0, 0, time.UTC),
		Status:         domain.CandidatePending,
		OwnerReference: owner,
	})
	require.NoError(t, err)
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func processBody(rows []map[string]string) map[string]any {
	return map[string]any{
		"residential_complex_id": "complex-1",
		"bank_name":              "Bancolombia",
		"rows":                   rows,
	}
}

func TestProcessStatementEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedCandidate(t, "C1", 150000, 1, "APTO-101")

	w := ts.do(t, http.MethodPost, "/api/v1/statements/process", processBody([]map[string]string{
		{"transaction_id": "T1", "date": "2025-07-01", "description": "Pago cuota APTO-101", "amount": "150000"},
		{"transaction_id": "T2", "date": "2025-07-01", "description": "Sin candidato", "amount": "42"},
	}))
	require.Equal(t, http.StatusOK, w.Code)

	var report engine.ProcessReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Unmatched)
	require.Len(t, report.Reconciliations, 2)
	assert.Equal(t, domain.StatusMatched, report.Reconciliations[0].Status)
	assert.Equal(t, domain.StatusUnmatched, report.Reconciliations[1].Status)
}

func TestProcessStatementRequiresTenant(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/statements/process", map[string]any{
		"rows": []map[string]string{
			{"date": "2025-07-01", "description": "x", "amount": "1"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessStatementRequiresRows(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/statements/process", map[string]any{
		"residential_complex_id": "complex-1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessStatementWithConfigOverride(t *testing.T) {
	ts := newTestServer(t)
	ts.seedCandidate(t, "C1", 150000, 3, "APTO-301")

	// With the default thresholds this scores 88 and stays SUGGESTED; the
	// per-request override lowers the auto threshold without touching the
	// engine's stored config.
	body := processBody([]map[string]string{
		{"transaction_id": "T1", "date": "2025-07-01", "description": "Transferencia APTO-301", "amount": "150000"},
	})
	body["config"] = map[string]any{"auto_threshold": 80}

	w := ts.do(t, http.MethodPost, "/api/v1/statements/process", body)
	require.Equal(t, http.StatusOK, w.Code)

	var report engine.ProcessReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Len(t, report.Reconciliations, 1)
	assert.Equal(t, domain.StatusMatched, report.Reconciliations[0].Status)

	w = ts.do(t, http.MethodGet, "/api/v1/config", nil)
	var cfg config.Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, 90, cfg.AutoThreshold)
}

func TestListReconciliations(t *testing.T) {
	ts := newTestServer(t)
	ts.seedCandidate(t, "C1", 150000, 1, "APTO-101")

	w := ts.do(t, http.MethodPost, "/api/v1/statements/process", processBody([]map[string]string{
		{"transaction_id": "T1", "date": "2025-07-01", "description": "Pago cuota APTO-101", "amount": "150000"},
		{"transaction_id": "T2", "date": "2025-07-02", "description": "Sin candidato", "amount": "42"},
	}))
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/reconciliations?residential_complex_id=complex-1&status=MATCHED", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Reconciliations []domain.BankReconciliation `json:"reconciliations"`
		Total           int                         `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Reconciliations, 1)
	assert.Equal(t, "T1", resp.Reconciliations[0].TransactionID)
}

func TestGetReconciliationNotFound(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/reconciliations/nope?residential_complex_id=complex-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBulkActionEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedCandidate(t, "C1", 150000, 3, "APTO-301")

	w := ts.do(t, http.MethodPost, "/api/v1/statements/process", processBody([]map[string]string{
		{"transaction_id": "T1", "date": "2025-07-01", "description": "Transferencia APTO-301", "amount": "150000"},
	}))
	require.Equal(t, http.StatusOK, w.Code)

	var report engine.ProcessReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Equal(t, domain.StatusSuggested, report.Reconciliations[0].Status)

	w = ts.do(t, http.MethodPost, "/api/v1/reconciliations/bulk-action", map[string]any{
		"residential_complex_id": "complex-1",
		"reconciliation_ids":     []string{report.Reconciliations[0].ID},
		"action":                 "approve",
		"processed_by_id":        "admin-1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Outcomes []store.ActionOutcome `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, domain.StatusMatched, resp.Outcomes[0].NewStatus)
}

func TestBulkActionUnknownAction(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/reconciliations/bulk-action", map[string]any{
		"residential_complex_id": "complex-1",
		"reconciliation_ids":     []string{"x"},
		"action":                 "archive",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestManualMatchConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.seedCandidate(t, "C1", 150000, 1, "APTO-101")

	w := ts.do(t, http.MethodPost, "/api/v1/statements/process", processBody([]map[string]string{
		{"transaction_id": "T1", "date": "2025-07-01", "description": "Pago cuota APTO-101", "amount": "150000"},
		{"transaction_id": "T2", "date": "2025-07-01", "description": "Otro pago", "amount": "150000"},
	}))
	require.Equal(t, http.StatusOK, w.Code)

	var report engine.ProcessReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Equal(t, domain.StatusMatched, report.Reconciliations[0].Status)

	// C1 is already claimed by T1's auto match.
	w = ts.do(t, http.MethodPost, "/api/v1/reconciliations/manual-match", map[string]any{
		"residential_complex_id": "complex-1",
		"reconciliation_id":      report.Reconciliations[1].ID,
		"candidate_id":           "C1",
		"processed_by_id":        "admin-1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdateConfig(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPut, "/api/v1/config", map[string]any{
		"auto_threshold":    85,
		"suggest_threshold": 40,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var cfg config.Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, 85, cfg.AutoThreshold)
	assert.Equal(t, 40, cfg.SuggestThreshold)
	// Untouched fields keep their stored values.
	assert.Equal(t, 5, cfg.DateWindowDays)
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPut, "/api/v1/config", map[string]any{
		"auto_threshold":    40,
		"suggest_threshold": 90,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// The stored config is unchanged after a rejected update.
	w = ts.do(t, http.MethodGet, "/api/v1/config", nil)
	var cfg config.Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, 90, cfg.AutoThreshold)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)
	ts.seedCandidate(t, "C1", 150000, 1, "APTO-101")

	w := ts.do(t, http.MethodPost, "/api/v1/statements/process", processBody([]map[string]string{
		{"transaction_id": "T1", "date": "2025-07-01", "description": "Pago cuota APTO-101", "amount": "150000"},
		{"transaction_id": "T2", "date": "2025-07-01", "description": "Sin candidato", "amount": "42"},
	}))
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/reconciliations/stats?residential_complex_id=complex-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats repository.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[string(domain.StatusMatched)])
	assert.Equal(t, 1, stats.ByStatus[string(domain.StatusUnmatched)])
}
