package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Pratyush576/expense-tracker-ui/internal/cache"
	"github.com/Pratyush576/expense-tracker-ui/internal/core"
	"github.com/Pratyush576/expense-tracker-ui/internal/log"
	"github.com/Pratyush576/expense-tracker-ui/internal/services"
	"github.com/Pratyush576/expense-tracker-ui/internal/storage"
)

// Store is the persistence surface the API needs.
type Store interface {
	ListTransactions(ctx context.Context) ([]storage.StoredTransaction, error)
	InsertTransaction(ctx context.Context, t core.Transaction) (string, error)
	UpdateTransactionCategory(ctx context.Context, key core.TransactionKey, category, subcategory string) error
	PaymentSources(ctx context.Context) ([]string, error)
	Settings(ctx context.Context) ([]byte, error)
	SaveSettings(ctx context.Context, doc []byte) error
}

// EventPublisher notifies the background worker about rule changes. Nil when
// AMQP is not configured; the API then works without background refresh.
type EventPublisher interface {
	PublishReclassify(ctx context.Context, reason string) error
}

// Options tune server-side caching and reporting defaults.
type Options struct {
	CacheSize         int
	CacheTTL          time.Duration
	DefaultNumPeriods int
}

type Server struct {
	http.Server
	store       Store
	publisher   EventPublisher
	reconciler  *services.Reconciler
	rateLimiter *rateLimiter

	// budget-vs-expenses results keyed by raw query string
	reportCache       *cache.LRUCache[[]core.ReconciliationRow]
	defaultNumPeriods int

	shutdownOnce sync.Once
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

// startCleanup runs periodic cleanup to remove stale client entries
func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, store Store, publisher EventPublisher, logger *log.Logger, opts Options) *Server {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.DefaultNumPeriods <= 0 {
		opts.DefaultNumPeriods = 12
	}

	mux := http.NewServeMux()

	s := &Server{
		store:             store,
		publisher:         publisher,
		reconciler:        services.NewReconciler(),
		rateLimiter:       newRateLimiter(),
		reportCache:       cache.NewLRUCache[[]core.ReconciliationRow](opts.CacheSize, opts.CacheTTL),
		defaultNumPeriods: opts.DefaultNumPeriods,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("PUT /api/transactions/category", s.handleUpdateTransactionCategory)
	mux.HandleFunc("GET /api/payment_sources", s.handlePaymentSources)
	mux.HandleFunc("GET /api/category_costs", s.handleCategoryCosts)
	mux.HandleFunc("GET /api/monthly_category_expenses", s.handleMonthlyCategoryExpenses)
	mux.HandleFunc("GET /api/budget_vs_expenses", s.handleBudgetVsExpenses)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("POST /api/settings", s.handleSaveSettings)

	var handler http.Handler = mux
	handler = s.rateLimitMiddleware(handler)
	if logger != nil {
		handler = log.Middleware(logger)(handler)
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	return s
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.rateLimiter.allow(clientAddr(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// ReportCache exposes the report cache for cleanup registration.
func (s *Server) ReportCache() *cache.LRUCache[[]core.ReconciliationRow] {
	return s.reportCache
}
