package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pratyush576/expense-tracker-ui/internal/core"
	"github.com/Pratyush576/expense-tracker-ui/internal/storage"
)

type fakeStore struct {
	settings  []byte
	txns      []storage.StoredTransaction
	listCalls int

	savedSettings   []byte
	updatedCategory string
	updateErr       error
}

func (f *fakeStore) ListTransactions(ctx context.Context) ([]storage.StoredTransaction, error) {
	f.listCalls++
	return f.txns, nil
}

func (f *fakeStore) InsertTransaction(ctx context.Context, t core.Transaction) (string, error) {
	f.txns = append(f.txns, storage.StoredTransaction{ID: "generated", Transaction: t})
	return "generated", nil
}

func (f *fakeStore) UpdateTransactionCategory(ctx context.Context, key core.TransactionKey, category, subcategory string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updatedCategory = category
	return nil
}

func (f *fakeStore) PaymentSources(ctx context.Context) ([]string, error) {
	return []string{"Cash", "Visa"}, nil
}

func (f *fakeStore) Settings(ctx context.Context) ([]byte, error) { return f.settings, nil }

func (f *fakeStore) SaveSettings(ctx context.Context, doc []byte) error {
	f.savedSettings = doc
	return nil
}

type fakePublisher struct {
	reasons []string
}

func (f *fakePublisher) PublishReclassify(ctx context.Context, reason string) error {
	f.reasons = append(f.reasons, reason)
	return nil
}

func storedTx(date, description, amount, source string) storage.StoredTransaction {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return storage.StoredTransaction{
		ID: description,
		Transaction: core.Transaction{
			Date:          d,
			Description:   description,
			Amount:        decimal.RequireFromString(amount),
			PaymentSource: source,
		},
	}
}

func testStore() *fakeStore {
	return &fakeStore{
		settings: []byte(`{
			"categories": [{"name": "Dining"}, {"name": "Transport"}],
			"rules": [
				{"category": "Dining", "subcategory": "Coffee", "logical_operator": "AND", "conditions": [
					{"field": "Description", "rule_type": "contains", "value": "coffee"}
				]}
			],
			"budgets": [
				{"category": "Dining", "amount": 50, "year": 2024, "months": [3]}
			]
		}`),
		txns: []storage.StoredTransaction{
			storedTx("2024-03-05", "Coffee Shop", "-12.50", "Visa"),
			storedTx("2024-03-20", "Bus Fare", "-3", "Cash"),
			storedTx("2024-03-28", "Salary", "2000", "Bank"),
		},
	}
}

func newTestServer(t *testing.T, store *fakeStore, publisher EventPublisher) *Server {
	t.Helper()
	s := NewServer(":0", store, publisher, nil, Options{DefaultNumPeriods: 3})
	t.Cleanup(func() { s.rateLimiter.stop() })
	return s
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(w, req)
	return w
}

func TestHandleListExpenses(t *testing.T) {
	s := newTestServer(t, testStore(), nil)

	w := doRequest(s, http.MethodGet, "/api/expenses?year=2024", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp expensesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Expenses, 2)
	assert.Equal(t, "Dining", resp.Expenses[0].Category)
	assert.Equal(t, core.Uncategorized, resp.Expenses[1].Category)
	require.Len(t, resp.Income, 1)
	assert.Equal(t, "Salary", resp.Income[0].Description)
	assert.True(t, resp.NetIncome.Equal(decimal.RequireFromString("1984.5")),
		"net_income sums income and expenses, got %s", resp.NetIncome)
	require.Len(t, resp.Settings.Categories, 2)

	// category filter
	w = doRequest(s, http.MethodGet, "/api/expenses?category=Dining", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = expensesResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Expenses, 1)
	assert.Equal(t, "Coffee Shop", resp.Expenses[0].Description)
	assert.Empty(t, resp.Income)
	assert.True(t, resp.NetIncome.Equal(decimal.RequireFromString("-12.5")))
}

func TestHandleBudgetVsExpenses(t *testing.T) {
	store := testStore()
	s := newTestServer(t, store, nil)

	w := doRequest(s, http.MethodGet,
		"/api/budget_vs_expenses?category=Dining&time_granularity=Monthly&num_periods=1&year=2024", "")
	require.Equal(t, http.StatusOK, w.Code)

	var rows []core.ReconciliationRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Dining", rows[0].Category)
	assert.False(t, rows[0].OverBudget)

	// second identical request is served from cache
	calls := store.listCalls
	w = doRequest(s, http.MethodGet,
		"/api/budget_vs_expenses?category=Dining&time_granularity=Monthly&num_periods=1&year=2024", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, calls, store.listCalls)
}

func TestHandleBudgetVsExpensesErrors(t *testing.T) {
	s := newTestServer(t, testStore(), nil)

	w := doRequest(s, http.MethodGet, "/api/budget_vs_expenses?category=Groceries", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(s, http.MethodGet, "/api/budget_vs_expenses?time_granularity=Daily", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSaveSettings(t *testing.T) {
	store := testStore()
	publisher := &fakePublisher{}
	s := newTestServer(t, store, publisher)

	// warm the cache
	w := doRequest(s, http.MethodGet, "/api/budget_vs_expenses?category=Dining", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, s.reportCache.Size())

	// legacy shapes are accepted and stored canonically
	w = doRequest(s, http.MethodPost, "/api/settings",
		`{"categories": ["Dining"], "rules": [{"category":"Dining","rule_type":"contains","value":"coffee"}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 0, s.reportCache.Size(), "settings write purges the report cache")
	assert.Equal(t, []string{"settings_updated"}, publisher.reasons)

	var saved core.Settings
	require.NoError(t, json.Unmarshal(store.savedSettings, &saved))
	require.Len(t, saved.Rules, 1)
	assert.Len(t, saved.Rules[0].Conditions, 1, "legacy rule stored in canonical form")
}

func TestHandleSaveSettingsInvalid(t *testing.T) {
	s := newTestServer(t, testStore(), nil)

	w := doRequest(s, http.MethodPost, "/api/settings", `{"rules": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetSettings(t *testing.T) {
	store := testStore()
	store.settings = []byte(`{"categories": ["Dining"]}`)
	s := newTestServer(t, store, nil)

	w := doRequest(s, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, w.Code)

	var settings core.Settings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	require.Len(t, settings.Categories, 1)
	assert.Equal(t, "Dining", settings.Categories[0].Name)
}

func TestHandleUpdateTransactionCategory(t *testing.T) {
	store := testStore()
	s := newTestServer(t, store, nil)

	body := `{"date":"2024-03-05","description":"Coffee Shop","amount":"-12.50","payment_source":"Visa","category":"Dining","subcategory":"Coffee"}`
	w := doRequest(s, http.MethodPut, "/api/transactions/category", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Dining", store.updatedCategory)

	store.updateErr = core.ErrTransactionNotFound
	w = doRequest(s, http.MethodPut, "/api/transactions/category", body)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCreateTransaction(t *testing.T) {
	store := testStore()
	s := newTestServer(t, store, nil)

	w := doRequest(s, http.MethodPost, "/api/transactions",
		`{"date":"2024-04-01","description":"Coffee To Go","amount":"-4.20","payment_source":"Visa"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	created := store.txns[len(store.txns)-1]
	assert.Equal(t, "Dining", created.Category, "labels derived before insert")

	w = doRequest(s, http.MethodPost, "/api/transactions",
		`{"date":"bad","description":"x","amount":"1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePaymentSources(t *testing.T) {
	s := newTestServer(t, testStore(), nil)

	w := doRequest(s, http.MethodGet, "/api/payment_sources", "")
	require.Equal(t, http.StatusOK, w.Code)

	var sources []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sources))
	assert.Equal(t, []string{"Cash", "Visa"}, sources)
}

func TestHandleCategoryCosts(t *testing.T) {
	s := newTestServer(t, testStore(), nil)

	w := doRequest(s, http.MethodGet, "/api/category_costs?year=2024", "")
	require.Equal(t, http.StatusOK, w.Code)

	var rows []categoryCostRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 2, "income rows are excluded")

	assert.Equal(t, "Dining", rows[0].Category)
	assert.Equal(t, "Coffee", rows[0].Subcategory)
	assert.True(t, rows[0].TotalCost.Equal(decimal.RequireFromString("12.5")))

	assert.Equal(t, core.Uncategorized, rows[1].Category)
	assert.Equal(t, "", rows[1].Subcategory)
	assert.True(t, rows[1].TotalCost.Equal(decimal.RequireFromString("3")))
}

func TestHandleMonthlyCategoryExpenses(t *testing.T) {
	s := newTestServer(t, testStore(), nil)

	w := doRequest(s, http.MethodGet, "/api/monthly_category_expenses", "")
	require.Equal(t, http.StatusOK, w.Code)

	var rows []monthlyCategoryRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-03", rows[0].Month)
	assert.Equal(t, "Dining", rows[0].Category)
	assert.Equal(t, "Coffee", rows[0].Subcategory)
	assert.True(t, rows[0].TotalCost.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "", rows[1].Subcategory)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, testStore(), nil)

	w := doRequest(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
