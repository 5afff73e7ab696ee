// Package ingest normalizes raw statement rows into canonical bank
// transactions. Parsing of the container format (CSV, XLSX) happens upstream;
// this package only validates and types the already-extracted row values.
package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cidesolutions/armonia-reconciler/internal/domain"
)

// RawRow is one statement line as delivered by the file parser. All fields
// are untyped strings; validation happens here.
type RawRow struct {
	TransactionID string `json:"transaction_id,omitempty"`
	Date          string `json:"date"`
	Description   string `json:"description"`
	Amount        string `json:"amount"`
	Type          string `json:"type,omitempty"`
	Reference     string `json:"reference,omitempty"`
}

// RowError reports a single malformed row. Row is the 1-based position in
// the uploaded statement.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
}

// Ingest maps raw rows 1:1 onto bank transactions, preserving row order.
// Malformed rows are collected as RowErrors instead of aborting the batch,
// so a statement with a few bad trailing lines still yields its good rows.
func Ingest(rows []RawRow) ([]domain.BankTransaction, []RowError) {
	var (
		txns    []domain.BankTransaction
		rowErrs []RowError
	)

	for i, row := range rows {
		txn, err := parseRow(row, i+1)
		if err != nil {
			rowErrs = append(rowErrs, *err)
			continue
		}
		txns = append(txns, txn)
	}

	return txns, rowErrs
}

func parseRow(row RawRow, num int) (domain.BankTransaction, *RowError) {
	var txn domain.BankTransaction

	desc := strings.TrimSpace(row.Description)
	if desc == "" {
		return txn, &RowError{Row: num, Field: "description", Message: "required"}
	}

	dateStr := strings.TrimSpace(row.Date)
	if dateStr == "" {
		return txn, &RowError{Row: num, Field: "date", Message: "required"}
	}
	date, err := parseDate(dateStr)
	if err != nil {
		return txn, &RowError{Row: num, Field: "date", Message: fmt.Sprintf("unparseable %q", dateStr)}
	}

	amountStr := strings.TrimSpace(row.Amount)
	if amountStr == "" {
		return txn, &RowError{Row: num, Field: "amount", Message: "required"}
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return txn, &RowError{Row: num, Field: "amount", Message: fmt.Sprintf("unparseable %q", amountStr)}
	}

	txnType, rerr := resolveType(row.Type, amount, num)
	if rerr != nil {
		return txn, rerr
	}

	id := strings.TrimSpace(row.TransactionID)
	if id == "" {
		// Statements without an id column get a positional one; row order
		// is stable so the id is reproducible for the same upload.
		id = fmt.Sprintf("TXN-%04d", num)
	}

	txn = domain.BankTransaction{
		TransactionID: id,
		Date:          date,
		Description:   desc,
		Amount:        amount,
		Type:          txnType,
		Reference:     strings.TrimSpace(row.Reference),
	}
	return txn, nil
}

// resolveType applies the sign convention: positive means CREDIT unless an
// explicit type column overrides it.
func resolveType(raw string, amount decimal.Decimal, num int) (domain.TransactionType, *RowError) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		if amount.IsNegative() {
			return domain.TypeDebit, nil
		}
		return domain.TypeCredit, nil
	case string(domain.TypeCredit):
		return domain.TypeCredit, nil
	case string(domain.TypeDebit):
		return domain.TypeDebit, nil
	default:
		return "", &RowError{Row: num, Field: "type", Message: fmt.Sprintf("unknown type %q", raw)}
	}
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t, nil
}
