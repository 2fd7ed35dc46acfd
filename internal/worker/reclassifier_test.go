package worker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pratyush576/expense-tracker-ui/internal/amqp"
	"github.com/Pratyush576/expense-tracker-ui/internal/core"
	"github.com/Pratyush576/expense-tracker-ui/internal/storage"
)

type fakeStore struct {
	settings []byte
	txns     []storage.StoredTransaction
	updated  []storage.StoredTransaction
}

func (f *fakeStore) Settings(ctx context.Context) ([]byte, error) { return f.settings, nil }

func (f *fakeStore) ListTransactions(ctx context.Context) ([]storage.StoredTransaction, error) {
	return f.txns, nil
}

func (f *fakeStore) UpdateLabels(ctx context.Context, txns []storage.StoredTransaction) error {
	f.updated = txns
	return nil
}

type fakeExporter struct {
	rows []core.ReconciliationRow
}

func (f *fakeExporter) Export(ctx context.Context, rows []core.ReconciliationRow) error {
	f.rows = rows
	return nil
}

func storedTx(id, description, category string) storage.StoredTransaction {
	return storage.StoredTransaction{
		ID: id,
		Transaction: core.Transaction{
			Date:        time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
			Description: description,
			Amount:      decimal.RequireFromString("-10"),
			Category:    category,
		},
	}
}

func TestRunOncePersistsChangedLabels(t *testing.T) {
	store := &fakeStore{
		settings: []byte(`{
			"categories": [{"name": "Dining"}],
			"rules": [{"category":"Dining","rule_type":"contains","value":"coffee"}],
			"budgets": [{"category": "Dining", "amount": 50}]
		}`),
		txns: []storage.StoredTransaction{
			storedTx("a", "Coffee Shop", ""),          // gains Dining
			storedTx("b", "Coffee Corner", "Dining"),  // already right
			storedTx("c", "Hardware Store", "Dining"), // stale label, demoted
		},
	}
	exporter := &fakeExporter{}

	err := NewReclassifier(store, exporter).RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, store.updated, 2)
	assert.Equal(t, "a", store.updated[0].ID)
	assert.Equal(t, "Dining", store.updated[0].Category)
	assert.Equal(t, "c", store.updated[1].ID)
	assert.Equal(t, core.Uncategorized, store.updated[1].Category)

	// the export is the monthly budget-vs-expenses table, one block of
	// periods per configured category
	require.Len(t, exporter.rows, 12)
	for _, row := range exporter.rows {
		assert.Equal(t, "Dining", row.Category)
		assert.True(t, row.BudgetedAmount.Equal(decimal.RequireFromString("50")),
			"period %s budgeted %s, want 50", row.Period, row.BudgetedAmount)
	}
}

func TestRunOnceExportsAggregateWithoutCategories(t *testing.T) {
	store := &fakeStore{
		settings: []byte(`{"rules":[]}`),
		txns:     []storage.StoredTransaction{storedTx("a", "Coffee Shop", core.Uncategorized)},
	}
	exporter := &fakeExporter{}

	err := NewReclassifier(store, exporter).RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, exporter.rows, 12)
	for _, row := range exporter.rows {
		assert.Equal(t, core.AllCategories, row.Category)
	}
}

func TestRunOnceWithoutExporter(t *testing.T) {
	store := &fakeStore{
		settings: []byte(`{"rules":[]}`),
		txns:     []storage.StoredTransaction{storedTx("a", "Coffee Shop", "")},
	}

	err := NewReclassifier(store, nil).RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, store.updated, 1)
	assert.Equal(t, core.Uncategorized, store.updated[0].Category)
}

func TestHandleMessage(t *testing.T) {
	store := &fakeStore{settings: []byte(`{}`)}
	w := NewReclassifier(store, nil)

	err := w.HandleMessage(context.Background(), amqp.NewReclassifyMessage("settings_updated"))
	require.NoError(t, err)
}
