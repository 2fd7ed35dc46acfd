package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pratyush576/expense-tracker-ui/internal/core"
)

func diningSettings() core.Settings {
	return core.Settings{
		Categories: []core.Category{{Name: "Dining"}, {Name: "Transport"}},
		Rules: []core.Rule{
			{Category: "Dining", LogicalOperator: "AND", Conditions: []core.Condition{
				{Field: "Description", RuleType: "contains", Value: core.NewTextValue("coffee")},
			}},
			{Category: "Transport", LogicalOperator: "AND", Conditions: []core.Condition{
				{Field: "Description", RuleType: "contains", Value: core.NewTextValue("uber")},
			}},
		},
		Budgets: []core.Budget{
			{Category: "Dining", Amount: decimal.NewFromInt(50), Year: intPtr(2024), Months: []int{3}},
		},
	}
}

func findRow(t *testing.T, rows []core.ReconciliationRow, period string) core.ReconciliationRow {
	t.Helper()
	for _, r := range rows {
		if r.Period == period {
			return r
		}
	}
	t.Fatalf("no row for period %q in %+v", period, rows)
	return core.ReconciliationRow{}
}

func TestBudgetVsExpensesSingleCategory(t *testing.T) {
	txns := []core.Transaction{
		tx("2024-03-05", "Coffee Shop", "-12.50", "Visa"),
		tx("2024-03-20", "Uber Ride", "-30", "Visa"),    // different category
		tx("2024-03-21", "Coffee Refund", "12.50", ""),  // income, never an actual
	}

	rows, err := NewReconciler().BudgetVsExpenses(txns, diningSettings(), BudgetQuery{
		Categories:  []string{"Dining"},
		Granularity: core.Monthly,
		NumPeriods:  3,
		Now:         time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"2024-01", "2024-02", "2024-03"},
		[]string{rows[0].Period, rows[1].Period, rows[2].Period})

	march := findRow(t, rows, "2024-03")
	assert.Equal(t, "Dining", march.Category)
	assert.True(t, march.BudgetedAmount.Equal(decimal.NewFromInt(50)), "budgeted %s", march.BudgetedAmount)
	assert.True(t, march.ActualExpenses.Equal(decimal.RequireFromString("12.5")), "actual %s", march.ActualExpenses)
	assert.True(t, march.Difference.Equal(decimal.RequireFromString("37.5")), "difference %s", march.Difference)
	assert.False(t, march.OverBudget)

	// months without a scoped budget resolve to zero
	feb := findRow(t, rows, "2024-02")
	assert.True(t, feb.BudgetedAmount.IsZero())
	assert.True(t, feb.ActualExpenses.IsZero())
}

func TestBudgetVsExpensesOverBudget(t *testing.T) {
	settings := diningSettings()
	settings.Budgets = []core.Budget{
		{Category: "Dining", Amount: decimal.NewFromInt(100), Year: intPtr(2024), Months: []int{3}},
	}
	run := func(amount string) core.ReconciliationRow {
		rows, err := NewReconciler().BudgetVsExpenses(
			[]core.Transaction{tx("2024-03-05", "Coffee Shop", amount, "Visa")},
			settings, BudgetQuery{
				Categories:  []string{"Dining"},
				Granularity: core.Monthly,
				NumPeriods:  1,
				Now:         time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
			})
		require.NoError(t, err)
		return findRow(t, rows, "2024-03")
	}

	over := run("-150")
	assert.True(t, over.Difference.Equal(decimal.NewFromInt(-50)), "difference %s", over.Difference)
	assert.True(t, over.OverBudget)

	exact := run("-100")
	assert.True(t, exact.Difference.IsZero())
	assert.False(t, exact.OverBudget, "spending exactly the budget is not over")
}

func TestBudgetVsExpensesAllCategoriesFallback(t *testing.T) {
	settings := diningSettings()
	settings.Budgets = []core.Budget{
		{Category: "Dining", Amount: decimal.NewFromInt(50), Year: intPtr(2024), Months: []int{3}},
		{Category: "Transport", Amount: decimal.NewFromInt(80), Year: intPtr(2024), Months: []int{3}},
	}
	txns := []core.Transaction{
		tx("2024-03-05", "Coffee Shop", "-12.50", "Visa"),
		tx("2024-03-20", "Uber Ride", "-30", "Visa"),
	}

	rows, err := NewReconciler().BudgetVsExpenses(txns, settings, BudgetQuery{
		Granularity: core.Monthly,
		NumPeriods:  1,
		Now:         time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	march := findRow(t, rows, "2024-03")
	assert.Equal(t, core.AllCategories, march.Category)
	assert.True(t, march.BudgetedAmount.Equal(decimal.NewFromInt(130)),
		"per-category budgets summed, got %s", march.BudgetedAmount)
	assert.True(t, march.ActualExpenses.Equal(decimal.RequireFromString("42.5")), "actual %s", march.ActualExpenses)
}

func TestBudgetVsExpensesAllCategoriesBlanketBudget(t *testing.T) {
	settings := diningSettings()
	settings.Budgets = append(settings.Budgets,
		core.Budget{Category: core.AllCategories, Amount: decimal.NewFromInt(500), Year: intPtr(2024), Months: []int{3}})

	rows, err := NewReconciler().BudgetVsExpenses(nil, settings, BudgetQuery{
		Granularity: core.Monthly,
		NumPeriods:  1,
		Now:         time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	march := findRow(t, rows, "2024-03")
	assert.True(t, march.BudgetedAmount.Equal(decimal.NewFromInt(500)),
		"blanket budget wins over the per-category sum, got %s", march.BudgetedAmount)
}

func TestBudgetVsExpensesMultiCategoryLabel(t *testing.T) {
	settings := diningSettings()
	settings.Budgets = []core.Budget{
		{Category: core.TotalSelectedLabel, Amount: decimal.NewFromInt(200), Year: intPtr(2024), Months: []int{3}},
	}
	txns := []core.Transaction{
		tx("2024-03-05", "Coffee Shop", "-12.50", "Visa"),
		tx("2024-03-20", "Uber Ride", "-30", "Visa"),
	}

	rows, err := NewReconciler().BudgetVsExpenses(txns, settings, BudgetQuery{
		Categories:  []string{"Dining", "Transport"},
		Granularity: core.Monthly,
		NumPeriods:  1,
		Now:         time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	march := findRow(t, rows, "2024-03")
	assert.Equal(t, core.TotalSelectedLabel, march.Category)
	assert.True(t, march.ActualExpenses.Equal(decimal.RequireFromString("42.5")),
		"both selected categories aggregate, got %s", march.ActualExpenses)
	assert.True(t, march.BudgetedAmount.Equal(decimal.NewFromInt(200)))
}

func TestBudgetVsExpensesExcludedCategories(t *testing.T) {
	txns := []core.Transaction{
		tx("2024-03-05", "Coffee Shop", "-12.50", "Visa"),
		tx("2024-03-20", "Uber Ride", "-30", "Visa"),
	}

	rows, err := NewReconciler().BudgetVsExpenses(txns, diningSettings(), BudgetQuery{
		Excluded:    []string{"Transport"},
		Granularity: core.Monthly,
		NumPeriods:  1,
		Now:         time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	march := findRow(t, rows, "2024-03")
	assert.True(t, march.ActualExpenses.Equal(decimal.RequireFromString("12.5")),
		"excluded category spending dropped, got %s", march.ActualExpenses)
}

func TestBudgetVsExpensesUnknownCategory(t *testing.T) {
	_, err := NewReconciler().BudgetVsExpenses(nil, diningSettings(), BudgetQuery{
		Categories:  []string{"Groceries"},
		Granularity: core.Monthly,
	})
	assert.ErrorIs(t, err, core.ErrCategoryNotFound)
}

func TestBudgetVsExpensesInvalidGranularity(t *testing.T) {
	_, err := NewReconciler().BudgetVsExpenses(nil, diningSettings(), BudgetQuery{
		Granularity: core.Granularity("Daily"),
	})
	assert.ErrorIs(t, err, core.ErrUnsupportedGranularity)
}

func TestBudgetVsExpensesEmptyTransactionsYieldRows(t *testing.T) {
	rows, err := NewReconciler().BudgetVsExpenses(nil, diningSettings(), BudgetQuery{
		Categories:  []string{"Dining"},
		Granularity: core.Monthly,
		NumPeriods:  2,
		Now:         time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.True(t, row.ActualExpenses.IsZero())
	}
}

func TestClassifyAndFilterSubcategoryScope(t *testing.T) {
	settings := core.Settings{Rules: []core.Rule{
		{Category: "Dining", Subcategory: "Coffee", LogicalOperator: "AND", Conditions: []core.Condition{
			{Field: "Description", RuleType: "contains", Value: core.NewTextValue("coffee")},
		}},
		{Category: "Dining", Subcategory: "Restaurant", LogicalOperator: "AND", Conditions: []core.Condition{
			{Field: "Description", RuleType: "contains", Value: core.NewTextValue("bistro")},
		}},
	}}
	engine := NewRuleEngine(settings.Rules)
	txns := []core.Transaction{
		tx("2024-03-05", "Coffee Shop", "-12.50", "Visa"),
		tx("2024-03-06", "Corner Bistro", "-40", "Visa"),
		tx("2023-06-01", "Coffee Shop", "-5", "Visa"),
	}

	got := ClassifyAndFilter(txns, engine, FilterOptions{
		Year:       2024,
		Categories: []string{"Dining:Coffee"},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "Coffee", got[0].Subcategory)
}
