package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/cidesolutions/armonia-reconciler/internal/api"
	"github.com/cidesolutions/armonia-reconciler/internal/config"
	"github.com/cidesolutions/armonia-reconciler/internal/domain"
	"github.com/cidesolutions/armonia-reconciler/internal/engine"
	"github.com/cidesolutions/armonia-reconciler/internal/notify"
	"github.com/cidesolutions/armonia-reconciler/internal/repository"
	"github.com/cidesolutions/armonia-reconciler/internal/store"
	"github.com/cidesolutions/armonia-reconciler/internal/tenant"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "reconciler.db"
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg = config.FromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	log.Printf("Initializing database at %s", dbPath)
	db, err := repository.InitDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()

	// Create repositories.
	candRepo := repository.NewCandidateRepo(db)
	reconRepo := repository.NewReconciliationRepo(db)
	ruleRepo := repository.NewRuleRepo(db)

	// Create services.
	st := store.New(db, reconRepo, candRepo, notify.LogNotifier{})
	eng := engine.New(candRepo, ruleRepo, st, cfg)
	resolver := tenant.StaticResolver{}

	// Seed outstanding candidates if requested (demo/dev convenience).
	if seedPath := os.Getenv("SEED_PATH"); seedPath != "" {
		if err := seedCandidates(candRepo, resolver, seedPath); err != nil {
			log.Printf("WARNING: Failed to seed candidates: %v", err)
		}
	}

	// Create router.
	router := api.NewRouter(eng, st, reconRepo, resolver)

	log.Printf("Armonia Bank Reconciliation Engine")
	log.Printf("Listening on http://localhost:%s", port)
	log.Printf("API base: http://localhost:%s/api/v1", port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  POST   /api/v1/statements/process")
	log.Printf("  POST   /api/v1/reconciliations/bulk-action")
	log.Printf("  POST   /api/v1/reconciliations/manual-match")
	log.Printf("  GET    /api/v1/reconciliations")
	log.Printf("  GET    /api/v1/reconciliations/{id}")
	log.Printf("  GET    /api/v1/reconciliations/stats")
	log.Printf("  GET    /api/v1/config")
	log.Printf("  PUT    /api/v1/config")
	log.Printf("  GET    /api/v1/health")

	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

type seedFile struct {
	ResidentialComplexID string             `json:"residential_complex_id"`
	Candidates           []domain.Candidate `json:"candidates"`
}

func seedCandidates(repo *repository.CandidateRepo, resolver tenant.Resolver, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("unmarshal seed file: %w", err)
	}

	scope, err := resolver.Resolve(seed.ResidentialComplexID)
	if err != nil {
		return err
	}

	inserted, err := repo.BulkInsert(context.Background(), scope, seed.Candidates)
	if err != nil {
		return fmt.Errorf("bulk insert: %w", err)
	}

	log.Printf("Seeded %d candidates for tenant %s (out of %d in file)",
		inserted, scope, len(seed.Candidates))
	return nil
}
