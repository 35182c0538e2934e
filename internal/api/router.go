package api

import (
	"net/http"

	"github.com/financetracker/backend/internal/admin"
	"github.com/financetracker/backend/internal/auth"
	apperrors "github.com/financetracker/backend/internal/errors"
	"github.com/financetracker/backend/internal/health"
	"github.com/financetracker/backend/internal/ledger"
	"github.com/financetracker/backend/internal/logger"
	"github.com/financetracker/backend/internal/metrics"
	"github.com/financetracker/backend/internal/middleware"
	"github.com/financetracker/backend/internal/websocket"
)

// Deps are the services the router exposes. Hub, Health and Metrics are
// optional.
type Deps struct {
	Auth           *auth.Service
	Ledger         *ledger.Service
	Admin          *admin.Service
	Hub            *websocket.Hub
	Health         *health.Handler
	Metrics        *metrics.Metrics
	Log            *logger.Logger
	AllowedOrigins []string
}

type Router struct {
	mux     *http.ServeMux
	handler http.Handler
	log     *logger.Logger

	authHandlers  *auth.Handlers
	txHandlers    *TransactionHandlers
	adminHandlers *AdminHandlers
	authenticate  func(http.Handler) http.Handler
}

func NewRouter(d Deps) *Router {
	log := d.Log.WithComponent("http")
	r := &Router{
		mux:           http.NewServeMux(),
		log:           log,
		authHandlers:  auth.NewHandlers(d.Auth),
		txHandlers:    NewTransactionHandlers(d.Ledger),
		adminHandlers: NewAdminHandlers(d.Admin),
		authenticate:  auth.Middleware(d.Auth, log),
	}
	r.setupRoutes(d)

	outer := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Logging(log),
		middleware.Recoverer(log),
	}
	if d.Metrics != nil {
		outer = append(outer, metrics.MetricsMiddleware(d.Metrics))
	}
	outer = append(outer, middleware.CORS(d.AllowedOrigins))
	r.handler = middleware.Chain(r.mux, outer...)
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func (r *Router) setupRoutes(d Deps) {
	if d.Health != nil {
		r.mux.HandleFunc("GET /health", d.Health.HealthHandler)
		r.mux.HandleFunc("GET /health/live", d.Health.LivenessHandler)
		r.mux.HandleFunc("GET /health/ready", d.Health.ReadinessHandler)
	}
	if d.Metrics != nil {
		r.mux.HandleFunc("GET /metrics", d.Metrics.Handler())
	}

	// Auth routes (no auth required)
	r.mux.Handle("POST /api/auth/register", r.public(r.authHandlers.Register))
	r.mux.Handle("POST /api/auth/login", r.public(r.authHandlers.Login))
	r.mux.Handle("GET /api/categories", middleware.Chain(http.HandlerFunc(Categories), middleware.Gzip, middleware.ETag))

	r.mux.Handle("GET /api/auth/user", r.withAuth(r.authHandlers.Me))

	// Transactions: every operation is scoped to the caller.
	r.mux.Handle("GET /api/transactions", r.withAuth(r.txHandlers.List, middleware.ETag))
	r.mux.Handle("POST /api/transactions", r.withAuth(r.txHandlers.Create))
	r.mux.Handle("GET /api/transactions/summary", r.withAuth(r.txHandlers.Summary, middleware.ETag))
	r.mux.Handle("GET /api/transactions/export", r.withAuth(r.txHandlers.ExportCSV))
	r.mux.Handle("POST /api/transactions/export", r.withAuth(r.txHandlers.Archive))
	r.mux.Handle("GET /api/transactions/{id}", r.withAuth(r.txHandlers.Get))
	r.mux.Handle("PUT /api/transactions/{id}", r.withAuth(r.txHandlers.Update))
	r.mux.Handle("DELETE /api/transactions/{id}", r.withAuth(r.txHandlers.Delete))

	// Admin: authentication, then role.
	r.mux.Handle("GET /api/admin/users", r.withAdmin(r.adminHandlers.ListUsers))
	r.mux.Handle("GET /api/admin/stats", r.withAdmin(r.adminHandlers.Stats))
	r.mux.Handle("PUT /api/admin/users/{id}/role", r.withAdmin(r.adminHandlers.SetRole))
	r.mux.Handle("DELETE /api/admin/users/{id}", r.withAdmin(r.adminHandlers.DeleteUser))

	if d.Hub != nil {
		ws := websocket.NewHandler(d.Hub, d.Auth, d.AllowedOrigins, r.log)
		r.mux.HandleFunc("GET /api/ws", ws.ServeWS)
	}

	r.mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteError(w, apperrors.GetRequestID(req.Context()), apperrors.NotFound("route"))
	})
}

// report logs server errors with their cause before the client sees the
// generic message.
func (r *Router) report(req *http.Request, err error) {
	r.log.Error(req.Context(), "request failed", err, map[string]any{
		"method": req.Method,
		"path":   req.URL.Path,
	})
}

func (r *Router) public(h apperrors.Handler) http.Handler {
	return middleware.Chain(apperrors.HandleFunc(h, r.report), middleware.Timing(r.log), middleware.Gzip)
}

func (r *Router) withAuth(h apperrors.Handler, extra ...func(http.Handler) http.Handler) http.Handler {
	chain := append([]func(http.Handler) http.Handler{middleware.Timing(r.log), r.authenticate, middleware.Gzip}, extra...)
	return middleware.Chain(apperrors.HandleFunc(h, r.report), chain...)
}

func (r *Router) withAdmin(h apperrors.Handler) http.Handler {
	return middleware.Chain(apperrors.HandleFunc(h, r.report),
		middleware.Timing(r.log), r.authenticate, auth.RequireAdmin, middleware.Gzip)
}
