package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Pratyush576/expense-tracker-ui/internal/core"
	"github.com/Pratyush576/expense-tracker-ui/internal/log"
	"github.com/Pratyush576/expense-tracker-ui/internal/services"
)

const maxSettingsBytes = 1 << 20

type transactionJSON struct {
	Date          string          `json:"date"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentSource string          `json:"payment_source"`
	Category      string          `json:"category"`
	Subcategory   string          `json:"subcategory,omitempty"`
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		Date:          t.Date.Format("2006-01-02"),
		Description:   t.Description,
		Amount:        t.Amount,
		PaymentSource: t.PaymentSource,
		Category:      t.Category,
		Subcategory:   t.Subcategory,
	}
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

type expensesResponse struct {
	Income    []transactionJSON `json:"income"`
	Expenses  []transactionJSON `json:"expenses"`
	NetIncome decimal.Decimal   `json:"net_income"`
	Settings  core.Settings     `json:"settings"`
}

// handleListExpenses returns transactions with freshly derived category
// labels, split into income and expenses, with the net sum over both.
// Optional filters: year, categories and excluded categories.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	settings, txns, ok := s.loadState(w, r)
	if !ok {
		return
	}

	engine := services.NewRuleEngine(settings.Rules)
	filtered := services.ClassifyAndFilter(txns, engine, services.FilterOptions{
		Year:       intQuery(r, "year"),
		Categories: multiQuery(r, "category"),
		Excluded:   multiQuery(r, "exclude_category"),
	})

	out := expensesResponse{
		Income:   []transactionJSON{},
		Expenses: []transactionJSON{},
		Settings: settings,
	}
	for _, t := range filtered {
		out.NetIncome = out.NetIncome.Add(t.Amount)
		if t.IsExpense() {
			out.Expenses = append(out.Expenses, toTransactionJSON(t))
		} else {
			out.Income = append(out.Income, toTransactionJSON(t))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateTransaction stores a new transaction. Labels are derived from
// the current rules before the insert so the row starts out presentable.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Date          string          `json:"date"`
		Description   string          `json:"description"`
		Amount        decimal.Decimal `json:"amount"`
		PaymentSource string          `json:"payment_source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	date, err := time.Parse("2006-01-02", payload.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", payload.Date))
		return
	}
	if payload.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	doc, err := s.store.Settings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	settings, err := core.ParseSettings(doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	t := core.Transaction{
		Date:          date,
		Description:   payload.Description,
		Amount:        payload.Amount,
		PaymentSource: payload.PaymentSource,
	}
	t = services.NewRuleEngine(settings.Rules).CategorizeTransaction(t)

	id, err := s.store.InsertTransaction(r.Context(), t)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.reportCache.Purge()
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handleUpdateTransactionCategory overrides the stored labels of one
// transaction, addressed by its raw fields.
func (s *Server) handleUpdateTransactionCategory(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Date          string          `json:"date"`
		Description   string          `json:"description"`
		Amount        decimal.Decimal `json:"amount"`
		PaymentSource string          `json:"payment_source"`
		Category      string          `json:"category"`
		Subcategory   string          `json:"subcategory"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	date, err := time.Parse("2006-01-02", payload.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", payload.Date))
		return
	}

	key := core.TransactionKey{
		Date:          date,
		Description:   payload.Description,
		Amount:        payload.Amount,
		PaymentSource: payload.PaymentSource,
	}
	err = s.store.UpdateTransactionCategory(r.Context(), key, payload.Category, payload.Subcategory)
	if errors.Is(err, core.ErrTransactionNotFound) {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.reportCache.Purge()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePaymentSources lists the distinct payment sources seen so far.
func (s *Server) handlePaymentSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.PaymentSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, sources)
}

type categoryCostRow struct {
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	TotalCost   decimal.Decimal `json:"total_cost"`
}

// handleCategoryCosts sums absolute expense amounts per
// (category, subcategory) pair.
func (s *Server) handleCategoryCosts(w http.ResponseWriter, r *http.Request) {
	settings, txns, ok := s.loadState(w, r)
	if !ok {
		return
	}

	engine := services.NewRuleEngine(settings.Rules)
	filtered := services.ClassifyAndFilter(txns, engine, services.FilterOptions{
		Year:     intQuery(r, "year"),
		Excluded: multiQuery(r, "exclude_category"),
	})

	type cell struct{ category, subcategory string }
	totals := make(map[cell]decimal.Decimal)
	for _, t := range filtered {
		if !t.IsExpense() {
			continue
		}
		c := cell{t.Category, t.Subcategory}
		totals[c] = totals[c].Add(t.Amount.Abs())
	}

	rows := make([]categoryCostRow, 0, len(totals))
	for c, total := range totals {
		rows = append(rows, categoryCostRow{Category: c.category, Subcategory: c.subcategory, TotalCost: total})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Category != rows[j].Category {
			return rows[i].Category < rows[j].Category
		}
		return rows[i].Subcategory < rows[j].Subcategory
	})
	writeJSON(w, http.StatusOK, rows)
}

type monthlyCategoryRow struct {
	Month       string          `json:"month"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	TotalCost   decimal.Decimal `json:"total_cost"`
}

// handleMonthlyCategoryExpenses sums absolute expense amounts per
// (month, category, subcategory) triple.
func (s *Server) handleMonthlyCategoryExpenses(w http.ResponseWriter, r *http.Request) {
	settings, txns, ok := s.loadState(w, r)
	if !ok {
		return
	}

	engine := services.NewRuleEngine(settings.Rules)
	filtered := services.ClassifyAndFilter(txns, engine, services.FilterOptions{
		Year:       intQuery(r, "year"),
		Categories: multiQuery(r, "category"),
		Excluded:   multiQuery(r, "exclude_category"),
	})

	type cell struct{ month, category, subcategory string }
	totals := make(map[cell]decimal.Decimal)
	for _, t := range filtered {
		if !t.IsExpense() {
			continue
		}
		c := cell{t.Date.Format("2006-01"), t.Category, t.Subcategory}
		totals[c] = totals[c].Add(t.Amount.Abs())
	}

	rows := make([]monthlyCategoryRow, 0, len(totals))
	for c, total := range totals {
		rows = append(rows, monthlyCategoryRow{Month: c.month, Category: c.category, Subcategory: c.subcategory, TotalCost: total})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Month != rows[j].Month {
			return rows[i].Month < rows[j].Month
		}
		if rows[i].Category != rows[j].Category {
			return rows[i].Category < rows[j].Category
		}
		return rows[i].Subcategory < rows[j].Subcategory
	})
	writeJSON(w, http.StatusOK, rows)
}

// handleBudgetVsExpenses builds the budget-vs-expenses table. Results are
// cached per query string until settings or transactions change.
func (s *Server) handleBudgetVsExpenses(w http.ResponseWriter, r *http.Request) {
	cacheKey := r.URL.RawQuery
	if rows, ok := s.reportCache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, rows)
		return
	}

	settings, txns, ok := s.loadState(w, r)
	if !ok {
		return
	}

	granularity := core.Granularity(r.URL.Query().Get("time_granularity"))
	if granularity == "" {
		granularity = core.Monthly
	}
	numPeriods := intQuery(r, "num_periods")
	if numPeriods == 0 {
		numPeriods = s.defaultNumPeriods
	}

	rows, err := s.reconciler.BudgetVsExpenses(txns, settings, services.BudgetQuery{
		Categories:  multiQuery(r, "category"),
		Excluded:    multiQuery(r, "exclude_category"),
		Granularity: granularity,
		NumPeriods:  numPeriods,
		Year:        intQuery(r, "year"),
	})
	if errors.Is(err, core.ErrCategoryNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if errors.Is(err, core.ErrUnsupportedGranularity) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.reportCache.Set(cacheKey, rows)
	writeJSON(w, http.StatusOK, rows)
}

// handleGetSettings returns the settings document in canonical form. Legacy
// shapes are upgraded on the way out.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Settings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	settings, err := core.ParseSettings(doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleSaveSettings replaces the settings document wholesale, purges the
// report cache and asks the worker to refresh stored labels.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSettingsBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings, err := core.ParseSettings(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Persist the canonical form so legacy shapes are upgraded once, at
	// write time.
	canonical, err := json.Marshal(settings)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.SaveSettings(r.Context(), canonical); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.reportCache.Purge()

	if s.publisher != nil {
		if err := s.publisher.PublishReclassify(r.Context(), "settings_updated"); err != nil {
			// The save succeeded; stored labels refresh on the next
			// worker cycle instead.
			log.FromContext(r.Context()).Warn("Failed to publish reclassify message", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loadState reads the settings document and transaction set, writing a 500
// on failure.
func (s *Server) loadState(w http.ResponseWriter, r *http.Request) (core.Settings, []core.Transaction, bool) {
	doc, err := s.store.Settings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return core.Settings{}, nil, false
	}
	settings, err := core.ParseSettings(doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return core.Settings{}, nil, false
	}

	stored, err := s.store.ListTransactions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return core.Settings{}, nil, false
	}
	txns := make([]core.Transaction, len(stored))
	for i, st := range stored {
		txns[i] = st.Transaction
	}
	return settings, txns, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func intQuery(r *http.Request, name string) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// multiQuery collects repeated parameters, accepting both "name" and the
// bracketed "name[]" convention older clients send.
func multiQuery(r *http.Request, name string) []string {
	q := r.URL.Query()
	values := append([]string{}, q[name]...)
	values = append(values, q[name+"[]"]...)
	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
