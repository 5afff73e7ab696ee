package main

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cidesolutions/armonia-reconciler/internal/domain"
	"github.com/cidesolutions/armonia-reconciler/internal/ingest"
)

const complexID = "conjunto-altos-del-parque"

func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	// Billing cycle: fees due 2025-07-05, payments over the first two weeks.
	dueDate := time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC)

	towers := []struct {
		prefix string
		fee    float64
		units  int
	}{
		{"T1", 285000, 20},
		{"T2", 310000, 20},
		{"T3", 342000, 20},
	}

	var cands []domain.Candidate
	for _, tw := range towers {
		for i := 1; i <= tw.units; i++ {
			unit := fmt.Sprintf("%s-APTO-%d", tw.prefix, 100+i)
			cands = append(cands, domain.Candidate{
				ID:             fmt.Sprintf("FEE-2025-07-%s", unit),
				Kind:           domain.KindFee,
				Amount:         decimal.NewFromFloat(tw.fee),
				DueDate:        dueDate,
				Status:         domain.CandidatePending,
				OwnerReference: unit,
			})

			// 15% of units also owe a parking fee this cycle.
			if rng.Float64() < 0.15 {
				cands = append(cands, domain.Candidate{
					ID:             fmt.Sprintf("PARK-2025-07-%s", unit),
					Kind:           domain.KindPayment,
					Amount:         decimal.NewFromFloat(85000),
					DueDate:        dueDate,
					Status:         domain.CandidatePending,
					OwnerReference: unit,
				})
			}
		}
	}

	writeJSONFile(filepath.Join(baseDir, "candidates.json"), map[string]any{
		"residential_complex_id": complexID,
		"candidates":             cands,
	})
	fmt.Printf("Generated %d candidates -> candidates.json\n", len(cands))

	generateStatement(rng, cands, dueDate, baseDir)

	fmt.Println("Test data generation complete.")
}

func generateStatement(rng *rand.Rand, cands []domain.Candidate, dueDate time.Time, baseDir string) {
	descriptions := []string{
		"Transferencia PSE cuota administracion %s",
		"Consignacion Bancolombia %s",
		"Pago Nequi administracion %s",
		"Transferencia recibida %s julio",
	}

	var rows []ingest.RawRow
	seq := 0

	for i, c := range cands {
		roll := rng.Float64()

		// 10% of candidates go unpaid this cycle.
		if roll > 0.90 {
			continue
		}

		seq++
		amount, _ := c.Amount.Float64()

		// 6% pay a slightly different amount (bank fees, rounded transfers).
		if roll > 0.84 && roll <= 0.90 {
			amount = math.Round(amount*(1+(rng.Float64()-0.5)*0.006)*100) / 100
		}

		// Payments cluster around the due date, a few up to 4 days off.
		offset := rng.Intn(9) - 4
		date := dueDate.AddDate(0, 0, offset)

		desc := fmt.Sprintf(descriptions[rng.Intn(len(descriptions))], c.OwnerReference)
		ref := c.OwnerReference

		// 8% of payers leave no usable reference anywhere.
		if i%12 == 11 {
			desc = "Consignacion en efectivo oficina"
			ref = ""
		}

		rows = append(rows, ingest.RawRow{
			TransactionID: fmt.Sprintf("BNK-2025-07-%04d", seq),
			Date:          date.Format("2006-01-02"),
			Description:   desc,
			Amount:        fmt.Sprintf("%.2f", amount),
			Type:          "CREDIT",
			Reference:     ref,
		})
	}

	// A few deposits that match nothing outstanding.
	for i := 1; i <= 3; i++ {
		seq++
		rows = append(rows, ingest.RawRow{
			TransactionID: fmt.Sprintf("BNK-2025-07-%04d", seq),
			Date:          dueDate.AddDate(0, 0, i).Format("2006-01-02"),
			Description:   fmt.Sprintf("Abono sin identificar %d", i),
			Amount:        fmt.Sprintf("%.2f", 40000+rng.Float64()*20000),
			Type:          "CREDIT",
		})
	}

	writeJSONFile(filepath.Join(baseDir, "statement.json"), map[string]any{
		"residential_complex_id": complexID,
		"bank_name":              "Bancolombia",
		"account_number":         "0042-118842-77",
		"rows":                   rows,
	})
	fmt.Printf("Generated %d statement rows -> statement.json\n", len(rows))
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	candidates := []string{"testdata", "./testdata", "../../testdata"}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
