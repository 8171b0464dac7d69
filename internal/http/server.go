// Package http exposes the fincontrol JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fincontrol/internal/auth"
	"fincontrol/internal/cache"
	applog "fincontrol/internal/log"
	"fincontrol/internal/middleware/ratelimit"
	"fincontrol/internal/middleware/security"
	"fincontrol/internal/middleware/trace"
	"fincontrol/internal/services"
	"fincontrol/internal/storage"
)

const (
	readyTimeout         = 2 * time.Second
	cacheCleanupEvery    = 10 * time.Minute
	defaultRatePerMinute = 60
	kiwifyWebhookPath    = "/api/webhooks/kiwify"
)

// Deps are the collaborators the handlers call into.
type Deps struct {
	Repo        *storage.SQLiteRepository
	Auth        *auth.Service
	Finance     *services.FinanceService
	FixedBills  *services.FixedBillService
	Runner      *services.FixedBillRunner
	Invoices    *services.InvoiceService
	Digital     *services.DigitalService
	DigitalDash *services.DigitalDashboard
	FinanceDash *services.FinanceDashboard
	Activity    *services.RecentActivity
	Webhook     *services.WebhookService
	Clock       services.Clock
	Logger      *applog.Logger
}

type Options struct {
	DevTools           bool
	SecureCookies      bool
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	deps     Deps
	opts     Options
	logger   *applog.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	trace    *trace.Middleware
	caches   *cache.Manager

	shutdownOnce sync.Once
}

// NewServer wires every route and returns a ready-to-run server.
func NewServer(addr string, opts Options, deps Deps) *Server {
	if opts.RateLimitPerMinute < 1 {
		opts.RateLimitPerMinute = defaultRatePerMinute
	}
	logger := deps.Logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		deps:     deps,
		opts:     opts,
		logger:   logger,
		detector: security.NewDetector(),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			CleanupInterval:   5 * time.Minute,
			Methods:           []string{http.MethodPost},
			ExemptPaths:       []string{kiwifyWebhookPath},
		}),
		caches: cache.NewManager(),
	}
	s.trace = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	s.caches.Register(deps.FinanceDash.Cleaner())
	s.caches.Register(deps.DigitalDash.Cleaner())
	s.caches.StartCleanup(cacheCleanupEvery)

	mux := http.NewServeMux()
	s.routes(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, writeRateLimited)(h)
	h = s.detector.Middleware(h)
	h = headers.Middleware(h)
	h = s.trace.Recover(h)
	h = s.trace.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("POST "+kiwifyWebhookPath, s.handleKiwifyWebhook)

	protect := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.deps.Auth.Require(writeUnauthorized)(s.invalidateOnWrite(h)))
	}

	protect("GET /api/auth/me", s.handleMe)
	protect("POST /api/onboarding", s.handleOnboarding)

	protect("GET /api/categories", s.handleListCategories)
	protect("POST /api/categories", s.handleCreateCategory)
	protect("GET /api/categories/{id}", s.handleGetCategory)
	protect("PUT /api/categories/{id}", s.handleUpdateCategory)
	protect("DELETE /api/categories/{id}", s.handleDeleteCategory)

	protect("GET /api/accounts", s.handleListAccounts)
	protect("POST /api/accounts", s.handleCreateAccount)
	protect("PUT /api/accounts/{id}", s.handleUpdateAccount)
	protect("DELETE /api/accounts/{id}", s.handleDeleteAccount)

	protect("GET /api/cards", s.handleListCards)
	protect("POST /api/cards", s.handleCreateCard)
	protect("PUT /api/cards/{id}", s.handleUpdateCard)
	protect("DELETE /api/cards/{id}", s.handleDeleteCard)

	protect("GET /api/transactions", s.handleListTransactions)
	protect("POST /api/transactions", s.handleCreateTransaction)
	protect("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	protect("POST /api/transfers", s.handleCreateTransfer)

	protect("GET /api/budgets", s.handleListBudgets)
	protect("POST /api/budgets", s.handleUpsertBudget)
	protect("DELETE /api/budgets/{id}", s.handleDeleteBudget)

	protect("GET /api/fixed-bills", s.handleListFixedBills)
	protect("POST /api/fixed-bills", s.handleCreateFixedBill)
	protect("POST /api/fixed-bills/run", s.handleRunFixedBills)
	protect("GET /api/fixed-bills/{id}", s.handleGetFixedBill)
	protect("PUT /api/fixed-bills/{id}", s.handleUpdateFixedBill)
	protect("DELETE /api/fixed-bills/{id}", s.handleDeleteFixedBill)

	protect("GET /api/invoices", s.handleInvoices)

	protect("GET /api/offers", s.handleListOffers)
	protect("POST /api/offers", s.handleCreateOffer)
	protect("PUT /api/offers/{id}", s.handleUpdateOffer)
	protect("DELETE /api/offers/{id}", s.handleDeleteOffer)

	protect("GET /api/spend", s.handleListSpend)
	protect("POST /api/spend", s.handleCreateSpend)
	protect("DELETE /api/spend/{id}", s.handleDeleteSpend)

	protect("GET /api/sales", s.handleListSales)
	protect("POST /api/sales", s.handleCreateSale)
	protect("DELETE /api/sales/{id}", s.handleDeleteSale)

	protect("GET /api/work-sessions", s.handleListWorkSessions)
	protect("POST /api/work-sessions", s.handleCreateWorkSession)
	protect("DELETE /api/work-sessions/{id}", s.handleDeleteWorkSession)

	protect("GET /api/dashboard/finance", s.handleFinanceDashboard)
	protect("GET /api/dashboard/digital", s.handleDigitalDashboard)
	protect("GET /api/activity", s.handleActivity)

	if s.opts.DevTools {
		protect("GET /api/debug/session", s.handleDebugSession)
		protect("GET /api/debug/metrics", s.handleDebugMetrics)
	}
}

// invalidateOnWrite drops the caller's cached dashboards after a
// successful mutating request.
func (s *Server) invalidateOnWrite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		if rw.status >= http.StatusBadRequest {
			return
		}
		if user, ok := auth.UserFromContext(r.Context()); ok {
			s.invalidate(user.ID)
		}
	})
}

func (s *Server) invalidate(userID string) {
	s.deps.FinanceDash.Invalidate(userID)
	s.deps.DigitalDash.Invalidate(userID)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Shutdown stops background cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.deps.Repo.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// currentUser returns the user set by auth.Require.
func currentUser(r *http.Request) string {
	user, _ := auth.UserFromContext(r.Context())
	return user.ID
}
