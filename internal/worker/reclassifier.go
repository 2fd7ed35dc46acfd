package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Pratyush576/expense-tracker-ui/internal/amqp"
	"github.com/Pratyush576/expense-tracker-ui/internal/core"
	"github.com/Pratyush576/expense-tracker-ui/internal/services"
	"github.com/Pratyush576/expense-tracker-ui/internal/storage"
)

// Store is the persistence surface the worker needs.
type Store interface {
	Settings(ctx context.Context) ([]byte, error)
	ListTransactions(ctx context.Context) ([]storage.StoredTransaction, error)
	UpdateLabels(ctx context.Context, txns []storage.StoredTransaction) error
}

// Exporter mirrors the monthly budget-vs-expenses table to an external
// sheet. Optional.
type Exporter interface {
	Export(ctx context.Context, rows []core.ReconciliationRow) error
}

// Reclassifier re-derives category labels for every stored transaction from
// the current rules and persists the ones that changed. Read paths never
// trust stored labels, so this is a cache refresh, not a correctness
// requirement; it keeps the database and the exported sheet presentable.
type Reclassifier struct {
	store      Store
	exporter   Exporter
	reconciler *services.Reconciler
}

func NewReclassifier(store Store, exporter Exporter) *Reclassifier {
	return &Reclassifier{
		store:      store,
		exporter:   exporter,
		reconciler: services.NewReconciler(),
	}
}

// HandleMessage processes one reclassification request from AMQP.
func (w *Reclassifier) HandleMessage(ctx context.Context, msg *amqp.ReclassifyMessage) error {
	slog.InfoContext(ctx, "Processing reclassify request", "reason", msg.Reason)
	return w.RunOnce(ctx)
}

// RunOnce performs a full classification pass.
func (w *Reclassifier) RunOnce(ctx context.Context) error {
	doc, err := w.store.Settings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	settings, err := core.ParseSettings(doc)
	if err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}

	txns, err := w.store.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}

	engine := services.NewRuleEngine(settings.Rules)

	var changed []storage.StoredTransaction
	for i, t := range txns {
		fresh := engine.CategorizeTransaction(t.Transaction)
		if fresh.Category != t.Category || fresh.Subcategory != t.Subcategory {
			t.Transaction = fresh
			txns[i] = t
			changed = append(changed, t)
		}
	}

	if err := w.store.UpdateLabels(ctx, changed); err != nil {
		return fmt.Errorf("persist labels: %w", err)
	}

	slog.InfoContext(ctx, "Reclassification completed",
		"transaction_count", len(txns),
		"relabeled", len(changed),
		"rule_count", engine.RuleCount())

	if w.exporter != nil {
		rows, err := w.monthlyReport(settings, txns)
		if err != nil {
			return fmt.Errorf("build report: %w", err)
		}
		if err := w.exporter.Export(ctx, rows); err != nil {
			// The database is already consistent; the sheet catches up on
			// the next run.
			slog.ErrorContext(ctx, "Failed to export report", "error", err)
		}
	}

	return nil
}

// monthlyReport builds the monthly budget-vs-expenses table for the sheet:
// one block of periods per configured category, or the all-categories
// aggregate when none are configured.
func (w *Reclassifier) monthlyReport(settings core.Settings, txns []storage.StoredTransaction) ([]core.ReconciliationRow, error) {
	plain := make([]core.Transaction, len(txns))
	for i, t := range txns {
		plain[i] = t.Transaction
	}

	names := settings.CategoryNames()
	if len(names) == 0 {
		return w.reconciler.BudgetVsExpenses(plain, settings, services.BudgetQuery{
			Granularity: core.Monthly,
		})
	}

	var rows []core.ReconciliationRow
	for _, name := range names {
		catRows, err := w.reconciler.BudgetVsExpenses(plain, settings, services.BudgetQuery{
			Categories:  []string{name},
			Granularity: core.Monthly,
		})
		if err != nil {
			return nil, err
		}
		rows = append(rows, catRows...)
	}
	return rows, nil
}
