package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cidesolutions/armonia-reconciler/internal/config"
	"github.com/cidesolutions/armonia-reconciler/internal/engine"
	"github.com/cidesolutions/armonia-reconciler/internal/ingest"
	"github.com/cidesolutions/armonia-reconciler/internal/repository"
	"github.com/cidesolutions/armonia-reconciler/internal/store"
	"github.com/cidesolutions/armonia-reconciler/internal/tenant"
)

// Handlers groups all HTTP handler methods and their dependencies. Tenant
// identifiers arrive from the caller (auth happens upstream); every handler
// resolves them into a scope before touching the engine or store.
type Handlers struct {
	engine    *engine.Engine
	store     *store.Store
	reconRepo *repository.ReconciliationRepo
	resolver  tenant.Resolver
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handlers) resolveScope(w http.ResponseWriter, complexID string) (tenant.Scope, bool) {
	scope, err := h.resolver.Resolve(complexID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return tenant.Scope{}, false
	}
	return scope, true
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil
		}
	}
	return &t
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- ProcessStatement ---

type processStatementRequest struct {
	ResidentialComplexID string           `json:"residential_complex_id"`
	BankName             string           `json:"bank_name,omitempty"`
	AccountNumber        string           `json:"account_number,omitempty"`
	Rows                 []ingest.RawRow  `json:"rows"`
	Config               *config.Override `json:"config,omitempty"`
}

func (h *Handlers) ProcessStatement(w http.ResponseWriter, r *http.Request) {
	var req processStatementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "rows are required")
		return
	}

	scope, ok := h.resolveScope(w, req.ResidentialComplexID)
	if !ok {
		return
	}

	meta := engine.StatementMeta{
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
	}

	report, err := h.engine.ProcessStatement(r.Context(), scope, meta, req.Rows, req.Config)
	if err != nil {
		if errors.Is(err, tenant.ErrInvalidScope) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// --- BulkAction ---

type bulkActionRequest struct {
	ResidentialComplexID string   `json:"residential_complex_id"`
	IDs                  []string `json:"reconciliation_ids"`
	Action               string   `json:"action"`
	Notes                string   `json:"notes,omitempty"`
	AutoApply            bool     `json:"auto_apply,omitempty"`
	ProcessedByID        string   `json:"processed_by_id"`
}

func (h *Handlers) BulkAction(w http.ResponseWriter, r *http.Request) {
	var req bulkActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "reconciliation_ids are required")
		return
	}

	scope, ok := h.resolveScope(w, req.ResidentialComplexID)
	if !ok {
		return
	}

	outcomes, err := h.store.BulkAction(r.Context(), scope, req.IDs,
		store.Action(req.Action), req.Notes, req.AutoApply, req.ProcessedByID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

// --- ManualMatch ---

type manualMatchRequest struct {
	ResidentialComplexID string `json:"residential_complex_id"`
	ReconciliationID     string `json:"reconciliation_id"`
	CandidateID          string `json:"candidate_id"`
	Notes                string `json:"notes,omitempty"`
	ProcessedByID        string `json:"processed_by_id"`
}

func (h *Handlers) ManualMatch(w http.ResponseWriter, r *http.Request) {
	var req manualMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ReconciliationID == "" || req.CandidateID == "" {
		writeError(w, http.StatusBadRequest, "reconciliation_id and candidate_id are required")
		return
	}

	scope, ok := h.resolveScope(w, req.ResidentialComplexID)
	if !ok {
		return
	}

	rec, err := h.store.ManualMatch(r.Context(), scope, req.ReconciliationID,
		req.CandidateID, req.ProcessedByID, req.Notes)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyMatched) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// --- ListReconciliations ---

func (h *Handlers) ListReconciliations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	scope, ok := h.resolveScope(w, q.Get("residential_complex_id"))
	if !ok {
		return
	}

	filter := repository.Filter{
		Status: q.Get("status"),
		From:   parseTime(q.Get("from")),
		To:     parseTime(q.Get("to")),
		Page:   parseIntDefault(q.Get("page"), 1),
		Limit:  parseIntDefault(q.Get("limit"), 50),
	}

	recs, total, err := h.reconRepo.List(r.Context(), scope, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reconciliations": recs,
		"total":           total,
		"page":            filter.Page,
		"limit":           filter.Limit,
	})
}

// --- GetReconciliation ---

func (h *Handlers) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.resolveScope(w, r.URL.Query().Get("residential_complex_id"))
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := h.reconRepo.GetByID(r.Context(), scope, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "reconciliation not found")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// --- GetStats ---

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	scope, ok := h.resolveScope(w, q.Get("residential_complex_id"))
	if !ok {
		return
	}

	stats, err := h.reconRepo.GetStats(r.Context(), scope,
		parseTime(q.Get("period_start")), parseTime(q.Get("period_end")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// --- Config ---

func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Config())
}

func (h *Handlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.Config()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.engine.SetConfig(cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
