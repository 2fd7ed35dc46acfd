package services

import (
	"github.com/shopspring/decimal"

	"github.com/Pratyush576/expense-tracker-ui/internal/core"
)

var twelve = decimal.NewFromInt(12)

// ResolveBudget returns the amount budgeted for category in (year, month)
// through a fixed priority cascade:
//
//  1. a row scoped to that exact month of that year — amount as-is
//  2. a whole-year row for that year — amount / 12
//  3. a recurring default (no year, no months) — amount as a monthly figure
//  4. zero
//
// Within each step the first matching row in declaration order wins;
// overlapping rows are not rejected. month == 0 means a yearly query, which
// is the sum of the twelve monthly resolutions so the monthly cascade stays
// the single source of truth.
func ResolveBudget(budgets []core.Budget, category string, year, month int) decimal.Decimal {
	if month == 0 {
		total := decimal.Zero
		for m := 1; m <= 12; m++ {
			total = total.Add(resolveMonthlyBudget(budgets, category, year, m))
		}
		return total
	}
	return resolveMonthlyBudget(budgets, category, year, month)
}

func resolveMonthlyBudget(budgets []core.Budget, category string, year, month int) decimal.Decimal {
	for _, b := range budgets {
		if b.Category == category && b.Year != nil && *b.Year == year && containsMonth(b.Months, month) {
			return b.Amount
		}
	}
	for _, b := range budgets {
		if b.Category == category && b.Year != nil && *b.Year == year && len(b.Months) == 0 {
			return b.Amount.Div(twelve)
		}
	}
	for _, b := range budgets {
		if b.Category == category && b.Year == nil && len(b.Months) == 0 {
			return b.Amount
		}
	}
	return decimal.Zero
}

func containsMonth(months []int, month int) bool {
	for _, m := range months {
		if m == month {
			return true
		}
	}
	return false
}
