package services

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Pratyush576/expense-tracker-ui/internal/core"
)

// RuleEngine classifies transactions against an ordered rule set. The first
// rule whose conditions are satisfied wins; there is no scoring or
// specificity ranking beyond declaration order. The engine is stateless: the
// same transaction and rule set always classify the same way.
type RuleEngine struct {
	rules []core.Rule
}

// NewRuleEngine builds an engine over canonical rules (legacy shapes are
// upgraded at decode time). Rules without conditions can never match and are
// dropped; a missing logical operator defaults to AND.
func NewRuleEngine(rules []core.Rule) *RuleEngine {
	kept := make([]core.Rule, 0, len(rules))
	for _, r := range rules {
		if len(r.Conditions) == 0 {
			continue
		}
		if r.LogicalOperator == "" {
			r.LogicalOperator = "AND"
		}
		kept = append(kept, r)
	}
	return &RuleEngine{rules: kept}
}

// RuleCount returns the number of evaluable rules.
func (e *RuleEngine) RuleCount() int { return len(e.rules) }

// Categorize returns the category and subcategory of the first matching
// rule, or (UNCATEGORIZED, "") when no rule matches.
func (e *RuleEngine) Categorize(src core.FieldSource) (string, string) {
	for _, rule := range e.rules {
		if !ruleMatches(src, rule) {
			continue
		}
		category := rule.Category
		if category == "" {
			category = core.Uncategorized
		}
		return category, rule.Subcategory
	}
	return core.Uncategorized, ""
}

// CategorizeTransaction returns a copy of t with fresh category labels.
func (e *RuleEngine) CategorizeTransaction(t core.Transaction) core.Transaction {
	t.Category, t.Subcategory = e.Categorize(t)
	return t
}

func ruleMatches(src core.FieldSource, rule core.Rule) bool {
	switch strings.ToUpper(rule.LogicalOperator) {
	case "AND":
		for _, c := range rule.Conditions {
			if !evaluateCondition(src, c) {
				return false
			}
		}
		return true
	case "OR":
		for _, c := range rule.Conditions {
			if evaluateCondition(src, c) {
				return true
			}
		}
		return false
	}
	return false
}

// evaluateCondition applies one atomic test. Data anomalies — missing
// fields, unparseable dates or numbers, value shapes that don't fit the
// operator, unknown operators — all resolve to false, never to an error.
func evaluateCondition(src core.FieldSource, c core.Condition) bool {
	value, ok := src.Field(c.Field)
	if !ok || value == nil {
		return false
	}
	switch core.NormalizeFieldName(c.Field) {
	case "date":
		return evalDateCondition(value, c)
	case "payment source":
		return evalMembershipCondition(value, c)
	default:
		return evalTextCondition(value, c)
	}
}

func evalDateCondition(value any, c core.Condition) bool {
	txDate, ok := coerceDate(value)
	if !ok {
		return false
	}
	switch c.RuleType {
	case "equal":
		ruleDate, ok := parseDate(c.Value.Text)
		return ok && txDate.Equal(ruleDate)
	case "before":
		ruleDate, ok := parseDate(c.Value.Text)
		return ok && txDate.Before(ruleDate)
	case "after":
		ruleDate, ok := parseDate(c.Value.Text)
		return ok && txDate.After(ruleDate)
	case "range":
		if c.Value.Range == nil {
			return false
		}
		start, okStart := parseDate(c.Value.Range.Start)
		end, okEnd := parseDate(c.Value.Range.End)
		return okStart && okEnd && !txDate.Before(start) && !txDate.After(end)
	}
	return false
}

func evalMembershipCondition(value any, c core.Condition) bool {
	s, ok := value.(string)
	if !ok || c.Value.List == nil {
		return false
	}
	// exact equality, no case folding
	found := false
	for _, item := range c.Value.List {
		if item == s {
			found = true
			break
		}
	}
	switch c.RuleType {
	case "in":
		return found
	case "not_in":
		return !found
	}
	return false
}

func evalTextCondition(value any, c core.Condition) bool {
	if c.Value.List != nil || c.Value.Range != nil {
		return false
	}
	tx := strings.ToLower(stringify(value))
	rv := strings.ToLower(c.Value.Text)
	switch c.RuleType {
	case "contains":
		return strings.Contains(tx, rv)
	case "exact":
		return tx == rv
	case "starts_with":
		return strings.HasPrefix(tx, rv)
	case "ends_with":
		return strings.HasSuffix(tx, rv)
	case "equals":
		a, aok := coerceDecimal(value)
		b, bok := coerceDecimal(c.Value.Text)
		if aok && bok {
			return a.Equal(b)
		}
		return tx == rv
	case "greater_than":
		a, aok := coerceDecimal(value)
		b, bok := coerceDecimal(c.Value.Text)
		return aok && bok && a.GreaterThan(b)
	case "less_than":
		a, aok := coerceDecimal(value)
		b, bok := coerceDecimal(c.Value.Text)
		return aok && bok && a.LessThan(b)
	}
	return false
}

// coerceDate accepts time.Time values and the common textual date layouts.
// The result is truncated to a calendar date.
func coerceDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return dateOnly(v), true
	case string:
		return parseDate(v)
	}
	return time.Time{}, false
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006/01/02"}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), true
		}
	}
	return time.Time{}, false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func coerceDecimal(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	}
	return decimal.Decimal{}, false
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case decimal.Decimal:
		return v.String()
	case float64:
		return decimal.NewFromFloat(v).String()
	case int:
		return decimal.NewFromInt(int64(v)).String()
	case int64:
		return decimal.NewFromInt(v).String()
	case time.Time:
		return v.Format("2006-01-02")
	}
	return ""
}
