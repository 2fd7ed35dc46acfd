package services

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Pratyush576/expense-tracker-ui/internal/core"
)

// FilterOptions are the read-side filters shared by the reporting
// operations: an optional year, an optional category selection (entries may
// be "Main:Sub" scoped) and an excluded-category list.
type FilterOptions struct {
	Year       int
	Categories []string
	Excluded   []string
}

// ClassifyAndFilter re-derives category labels for every transaction from
// the current rules and applies the filters. Stored labels are never
// trusted: rules may have changed since they were written.
func ClassifyAndFilter(txns []core.Transaction, engine *RuleEngine, opt FilterOptions) []core.Transaction {
	selection := parseCategorySelection(opt.Categories)
	excluded := make(map[string]bool, len(opt.Excluded))
	for _, name := range opt.Excluded {
		excluded[name] = true
	}

	out := make([]core.Transaction, 0, len(txns))
	for _, t := range txns {
		if opt.Year != 0 && t.Date.Year() != opt.Year {
			continue
		}
		t = engine.CategorizeTransaction(t)
		if excluded[t.Category] {
			continue
		}
		if selection != nil && !selection.matches(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

type categorySelection struct {
	entries []categoryScope
}

type categoryScope struct {
	category    string
	subcategory string
}

// parseCategorySelection returns nil when the selection covers everything
// (empty, or containing the ALL_CATEGORIES sentinel).
func parseCategorySelection(categories []string) *categorySelection {
	if len(categories) == 0 {
		return nil
	}
	sel := &categorySelection{}
	for _, entry := range categories {
		if entry == core.AllCategories {
			return nil
		}
		main, sub, found := strings.Cut(entry, ":")
		scope := categoryScope{category: strings.TrimSpace(main)}
		if found {
			scope.subcategory = strings.TrimSpace(sub)
		}
		sel.entries = append(sel.entries, scope)
	}
	return sel
}

func (s *categorySelection) matches(t core.Transaction) bool {
	for _, scope := range s.entries {
		if t.Category != scope.category {
			continue
		}
		if scope.subcategory == "" || t.Subcategory == scope.subcategory {
			return true
		}
	}
	return false
}

// BudgetQuery parameterizes one reconciliation request.
type BudgetQuery struct {
	Categories  []string
	Excluded    []string
	Granularity core.Granularity
	NumPeriods  int
	Year        int       // 0 = no fixed year
	Now         time.Time // zero = time.Now()
}

// Reconciler builds the [period x category] budget-vs-expenses table.
type Reconciler struct{}

func NewReconciler() *Reconciler { return &Reconciler{} }

// BudgetVsExpenses generates NumPeriods historical periods, aggregates
// absolute expense amounts per period under a single aggregation label,
// resolves the budget for each period and computes the over/under delta.
// Empty transaction sets are not an error; they yield rows with zero actuals
// and whatever budgets resolve.
func (r *Reconciler) BudgetVsExpenses(txns []core.Transaction, settings core.Settings, q BudgetQuery) ([]core.ReconciliationRow, error) {
	if err := q.Granularity.Validate(); err != nil {
		return nil, err
	}
	if q.NumPeriods <= 0 {
		q.NumPeriods = 12
	}
	if err := validateCategories(settings, q.Categories); err != nil {
		return nil, err
	}

	engine := NewRuleEngine(settings.Rules)
	expenses := ClassifyAndFilter(txns, engine, FilterOptions{
		Year:       q.Year,
		Categories: q.Categories,
		Excluded:   q.Excluded,
	})

	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}
	if q.Year != 0 {
		now = time.Date(q.Year, now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}
	periods, err := core.PeriodsInRange(now, q.Granularity, q.NumPeriods)
	if err != nil {
		return nil, err
	}

	label := aggregationLabel(q.Categories)
	actuals := make(map[string]decimal.Decimal, len(periods))
	for _, t := range expenses {
		if !t.IsExpense() {
			continue
		}
		periodLabel, err := core.PeriodLabel(t.Date, q.Granularity)
		if err != nil {
			return nil, err
		}
		actuals[periodLabel] = actuals[periodLabel].Add(t.Amount.Abs())
	}

	rows := make([]core.ReconciliationRow, 0, len(periods))
	for _, period := range periods {
		parsed, err := core.ParsePeriodLabel(period, q.Granularity)
		if err != nil {
			return nil, err
		}
		month := 0
		if q.Granularity == core.Monthly {
			month = int(parsed.Month())
		}
		budgeted := ResolveBudget(settings.Budgets, label, parsed.Year(), month)
		if label == core.AllCategories && budgeted.IsZero() {
			// No blanket budget defined (or one legitimately set to zero —
			// the two are indistinguishable here): fall back to summing the
			// per-category resolutions.
			for _, name := range settings.CategoryNames() {
				budgeted = budgeted.Add(ResolveBudget(settings.Budgets, name, parsed.Year(), month))
			}
		}
		actual := actuals[period]
		rows = append(rows, core.ReconciliationRow{
			Period:         period,
			Category:       label,
			BudgetedAmount: budgeted,
			ActualExpenses: actual,
			Difference:     budgeted.Sub(actual),
			OverBudget:     actual.GreaterThan(budgeted),
		})
	}

	slog.Debug("reconciled budget vs expenses",
		"granularity", string(q.Granularity),
		"periods", len(rows),
		"category", label,
		"expenses", len(expenses))
	return rows, nil
}

// aggregationLabel collapses the selection to a single reporting label: the
// ALL_CATEGORIES sentinel, the lone selected entry, or the combined
// pseudo-label when several categories are selected together.
func aggregationLabel(categories []string) string {
	filtered := make([]string, 0, len(categories))
	for _, c := range categories {
		if c == core.AllCategories {
			return core.AllCategories
		}
		filtered = append(filtered, c)
	}
	switch len(filtered) {
	case 0:
		return core.AllCategories
	case 1:
		return filtered[0]
	default:
		return core.TotalSelectedLabel
	}
}

func validateCategories(settings core.Settings, categories []string) error {
	for _, entry := range categories {
		if entry == core.AllCategories {
			continue
		}
		main, _, _ := strings.Cut(entry, ":")
		main = strings.TrimSpace(main)
		if !settings.KnownCategory(main) {
			return fmt.Errorf("%w: %q", core.ErrCategoryNotFound, main)
		}
	}
	return nil
}
