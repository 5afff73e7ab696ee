package ingest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidesolutions/armonia-reconciler/internal/domain"
)

func TestIngest(t *testing.T) {
	rows := []RawRow{
		{TransactionID: "T1", Date: "2025-07-01", Description: "Pago cuota APTO-101", Amount: "150000"},
		{TransactionID: "T2", Date: "2025-07-02", Description: "Retiro cajero", Amount: "-50000"},
		{TransactionID: "T3", Date: "2025-07-03", Description: "Transferencia", Amount: "20000", Type: "DEBIT"},
	}

	txns, rowErrs := Ingest(rows)
	require.Empty(t, rowErrs)
	require.Len(t, txns, 3)

	assert.Equal(t, "T1", txns[0].TransactionID)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), txns[0].Date)
	assert.True(t, txns[0].Amount.Equal(decimal.NewFromInt(150000)))

	// Sign convention: positive is CREDIT, negative is DEBIT.
	assert.Equal(t, domain.TypeCredit, txns[0].Type)
	assert.Equal(t, domain.TypeDebit, txns[1].Type)

	// An explicit type column overrides the sign.
	assert.Equal(t, domain.TypeDebit, txns[2].Type)
}

func TestIngestPreservesRowOrder(t *testing.T) {
	rows := []RawRow{
		{TransactionID: "T3", Date: "2025-07-03", Description: "c", Amount: "3"},
		{TransactionID: "T1", Date: "2025-07-01", Description: "a", Amount: "1"},
		{TransactionID: "T2", Date: "2025-07-02", Description: "b", Amount: "2"},
	}

	txns, rowErrs := Ingest(rows)
	require.Empty(t, rowErrs)

	var ids []string
	for _, txn := range txns {
		ids = append(ids, txn.TransactionID)
	}
	assert.Equal(t, []string{"T3", "T1", "T2"}, ids)
}

func TestIngestCollectsPerRowErrors(t *testing.T) {
	rows := []RawRow{
		{TransactionID: "T1", Date: "2025-07-01", Description: "ok", Amount: "100.00"},
		{TransactionID: "T2", Date: "", Description: "missing date", Amount: "100"},
		{TransactionID: "T3", Date: "2025-07-01", Description: "", Amount: "100"},
		{TransactionID: "T4", Date: "2025-07-01", Description: "bad amount", Amount: "12,5"},
		{TransactionID: "T5", Date: "not-a-date", Description: "bad date", Amount: "100"},
		{TransactionID: "T6", Date: "2025-07-02", Description: "also ok", Amount: "200.00"},
	}

	txns, rowErrs := Ingest(rows)

	// Fail-soft: good rows survive a partially malformed statement.
	require.Len(t, txns, 2)
	assert.Equal(t, "T1", txns[0].TransactionID)
	assert.Equal(t, "T6", txns[1].TransactionID)

	require.Len(t, rowErrs, 4)
	assert.Equal(t, 2, rowErrs[0].Row)
	assert.Equal(t, "date", rowErrs[0].Field)
	assert.Equal(t, "description", rowErrs[1].Field)
	assert.Equal(t, "amount", rowErrs[2].Field)
	assert.Equal(t, "date", rowErrs[3].Field)
}

func TestIngestUnknownTypeIsAnError(t *testing.T) {
	txns, rowErrs := Ingest([]RawRow{
		{TransactionID: "T1", Date: "2025-07-01", Description: "x", Amount: "10", Type: "TRANSFER"},
	})
	assert.Empty(t, txns)
	require.Len(t, rowErrs, 1)
	assert.Equal(t, "type", rowErrs[0].Field)
}

func TestIngestSynthesizesMissingIDs(t *testing.T) {
	txns, rowErrs := Ingest([]RawRow{
		{Date: "2025-07-01", Description: "no id", Amount: "10"},
		{Date: "2025-07-02", Description: "also no id", Amount: "20"},
	})
	require.Empty(t, rowErrs)
	require.Len(t, txns, 2)
	assert.Equal(t, "TXN-0001", txns[0].TransactionID)
	assert.Equal(t, "TXN-0002", txns[1].TransactionID)
}

func TestIngestAcceptsRFC3339Dates(t *testing.T) {
	txns, rowErrs := Ingest([]RawRow{
		{TransactionID: "T1", Date: "2025-07-01T15:04:05Z", Description: "x", Amount: "10"},
	})
	require.Empty(t, rowErrs)
	require.Len(t, txns, 1)
	assert.Equal(t, 2025, txns[0].Date.Year())
}
