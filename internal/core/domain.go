package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Weekly     Granularity = "Weekly"
	Monthly    Granularity = "Monthly"
	Quarterly  Granularity = "Quarterly"
	HalfYearly Granularity = "Half-Yearly"
	Yearly     Granularity = "Yearly"
)

// Uncategorized is the classification returned when no rule matches.
const Uncategorized = "UNCATEGORIZED"

// AllCategories is the sentinel category covering every category at once.
const AllCategories = "ALL_CATEGORIES"

// TotalSelectedLabel is the aggregation label used when a reconciliation
// query selects more than one category.
const TotalSelectedLabel = "Total Selected Categories"

type (
	// Granularity is the size of one calendar bucket.
	Granularity string

	// Transaction is one raw financial record. Category and Subcategory are
	// derived by the rule engine and recomputed on every read; the values
	// carried here may be stale.
	Transaction struct {
		Date          time.Time
		Description   string
		Amount        decimal.Decimal
		PaymentSource string
		Category      string
		Subcategory   string
	}

	// TransactionKey identifies a transaction by its raw fields, the way the
	// category-override endpoint addresses rows.
	TransactionKey struct {
		Date          time.Time
		Description   string
		Amount        decimal.Decimal
		PaymentSource string
	}

	// DateRange is the value shape for range operators, both ends inclusive.
	DateRange struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}

	// Condition is one atomic test inside a rule.
	Condition struct {
		Field    string         `json:"field"`
		RuleType string         `json:"rule_type"`
		Value    ConditionValue `json:"value"`
	}

	// Rule maps a boolean combination of conditions to a category outcome.
	Rule struct {
		Category        string      `json:"category"`
		Subcategory     string      `json:"subcategory,omitempty"`
		LogicalOperator string      `json:"logical_operator"`
		Conditions      []Condition `json:"conditions"`
		Note            string      `json:"note,omitempty"`
	}

	// Category is display/validation metadata; it is not consulted while
	// matching rules.
	Category struct {
		Name          string   `json:"name"`
		Subcategories []string `json:"subcategories"`
	}

	// Budget scopes an amount to a category and, optionally, a year and a
	// set of months. A nil Year means a recurring default; empty Months mean
	// a whole-year budget when Year is set.
	Budget struct {
		Category string          `json:"category"`
		Amount   decimal.Decimal `json:"amount"`
		Year     *int            `json:"year,omitempty"`
		Months   []int           `json:"months,omitempty"`
	}

	// ReconciliationRow is one (period, category) cell of the
	// budget-vs-expenses table.
	ReconciliationRow struct {
		Period         string          `json:"period"`
		Category       string          `json:"category"`
		BudgetedAmount decimal.Decimal `json:"budgeted_amount"`
		ActualExpenses decimal.Decimal `json:"actual_expenses"`
		Difference     decimal.Decimal `json:"difference"`
		OverBudget     bool            `json:"over_budget"`
	}
)

var (
	ErrUnsupportedGranularity = errors.New("unsupported time granularity")
	ErrCategoryNotFound       = errors.New("category not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
)

// Validate rejects granularities outside the closed set. An invalid
// granularity is a configuration error, not a recoverable condition.
func (g Granularity) Validate() error {
	switch g {
	case Weekly, Monthly, Quarterly, HalfYearly, Yearly:
		return nil
	}
	return ErrUnsupportedGranularity
}

// IsExpense reports whether the transaction is an outflow. Non-negative
// amounts are income by contract.
func (t Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}

// FieldSource yields a transaction field by name. Implementations normalize
// names so rules written against "Payment Source", "payment_source" or
// "payment source" all resolve the same field.
type FieldSource interface {
	Field(name string) (any, bool)
}

// NormalizeFieldName lowercases a field name and folds underscores to
// spaces, the canonical form used by every FieldSource.
func NormalizeFieldName(name string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.ToLower(name), "_", " "))
}

// Field implements FieldSource over the concrete transaction shape.
// Unclassified category/subcategory read as absent, never as empty strings.
func (t Transaction) Field(name string) (any, bool) {
	switch NormalizeFieldName(name) {
	case "date":
		return t.Date, true
	case "description":
		return t.Description, true
	case "amount":
		return t.Amount, true
	case "payment source":
		return t.PaymentSource, true
	case "category":
		if t.Category == "" {
			return nil, false
		}
		return t.Category, true
	case "subcategory":
		if t.Subcategory == "" {
			return nil, false
		}
		return t.Subcategory, true
	}
	return nil, false
}

// Record is a label-keyed transaction representation, used when the caller
// holds loosely-typed rows instead of Transaction values.
type Record map[string]any

// Field implements FieldSource. Keys match case-insensitively with
// space/underscore normalization; nil values read as absent.
func (r Record) Field(name string) (any, bool) {
	if v, ok := r[name]; ok && v != nil {
		return v, true
	}
	want := NormalizeFieldName(name)
	for k, v := range r {
		if NormalizeFieldName(k) == want && v != nil {
			return v, true
		}
	}
	return nil, false
}

// ConditionValue is the polymorphic rule value: plain text, a list of texts
// for set-membership operators, or a start/end pair for range operators.
// Exactly one of the three is set after decoding.
type ConditionValue struct {
	Text  string
	List  []string
	Range *DateRange
}

// NewTextValue builds a plain-text condition value.
func NewTextValue(s string) ConditionValue { return ConditionValue{Text: s} }

// NewListValue builds a set-membership condition value.
func NewListValue(items ...string) ConditionValue { return ConditionValue{List: items} }

// NewRangeValue builds an inclusive range condition value.
func NewRangeValue(start, end string) ConditionValue {
	return ConditionValue{Range: &DateRange{Start: start, End: end}}
}

func (v *ConditionValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*v = ConditionValue{}
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = ConditionValue{Text: s}
	case '[':
		var items []any
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		list := make([]string, 0, len(items))
		for _, item := range items {
			list = append(list, anyToText(item))
		}
		*v = ConditionValue{List: list}
	case '{':
		var r DateRange
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		*v = ConditionValue{Range: &r}
	default:
		// bare number or boolean: keep the literal token as text
		*v = ConditionValue{Text: trimmed}
	}
	return nil
}

func (v ConditionValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.Range != nil:
		return json.Marshal(v.Range)
	case v.List != nil:
		return json.Marshal(v.List)
	default:
		return json.Marshal(v.Text)
	}
}

func anyToText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return decimal.NewFromFloat(x).String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// UnmarshalJSON accepts both the canonical multi-condition rule shape and
// the legacy single-condition shape (top-level rule_type/value matched
// against the description). Legacy rules are upgraded transparently, so the
// engine only ever sees canonical rules.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var doc struct {
		Category        string         `json:"category"`
		Subcategory     string         `json:"subcategory"`
		LogicalOperator string         `json:"logical_operator"`
		Conditions      []Condition    `json:"conditions"`
		Note            string         `json:"note"`
		RuleType        string         `json:"rule_type"`
		Value           ConditionValue `json:"value"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	rule := Rule{
		Category:        doc.Category,
		Subcategory:     doc.Subcategory,
		LogicalOperator: doc.LogicalOperator,
		Conditions:      doc.Conditions,
		Note:            doc.Note,
	}
	if len(rule.Conditions) == 0 && doc.RuleType != "" {
		rule.LogicalOperator = "AND"
		rule.Conditions = []Condition{{
			Field:    "Description",
			RuleType: doc.RuleType,
			Value:    doc.Value,
		}}
	}
	if rule.LogicalOperator == "" {
		rule.LogicalOperator = "AND"
	}
	*r = rule
	return nil
}

// UnmarshalJSON accepts both the object shape and the legacy bare-string
// shape (a category name with no subcategories).
func (c *Category) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*c = Category{Name: name, Subcategories: []string{}}
		return nil
	}
	type alias Category
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = Category(a)
	return nil
}
