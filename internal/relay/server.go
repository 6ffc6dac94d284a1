package relay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hearthkin/questlink/internal/middleware"
)

// Version is reported by the health endpoint.
const Version = "0.4.1"

// endpoints is the surface advertised by the health endpoint.
var endpoints = []string{
	"POST /api/link-codes",
	"POST /api/links/enter-code",
	"GET /api/parents/{id}/links/pending",
	"GET /api/parents/{id}/links/active",
	"GET /api/children/{id}/links/active",
	"POST /api/links/{id}/approve",
	"POST /api/links/{id}/decline",
	"POST /api/links/unlink",
	"POST /api/tasks/assign",
	"GET /api/children/{id}/tasks",
	"POST /api/tasks/{id}/unassign",
	"GET /api/parents/{p}/children/{c}/tasks",
	"POST /api/assignments/migrate",
	"GET /api/health",
}

type Server struct {
	store       *Store
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(store *Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:       store,
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// RateLimiter returns the limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/link-codes", s.handleGenerateCode)
	// Entering a code is the one guessable surface; limit it per client IP.
	mux.Handle("POST /api/links/enter-code", s.rateLimited(s.handleEnterCode))
	mux.HandleFunc("GET /api/parents/{id}/links/pending", s.handlePendingLinks)
	mux.HandleFunc("GET /api/parents/{id}/links/active", s.handleActiveLinks)
	mux.HandleFunc("GET /api/children/{id}/links/active", s.handleChildActiveLinks)
	mux.HandleFunc("POST /api/links/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /api/links/{id}/decline", s.handleDecline)
	mux.HandleFunc("POST /api/links/unlink", s.handleUnlink)

	mux.HandleFunc("POST /api/tasks/assign", s.handleAssign)
	mux.HandleFunc("GET /api/children/{id}/tasks", s.handleChildTasks)
	mux.HandleFunc("POST /api/tasks/{id}/unassign", s.handleUnassign)
	mux.HandleFunc("GET /api/parents/{p}/children/{c}/tasks", s.handleParentChildTasks)
	mux.HandleFunc("POST /api/assignments/migrate", s.handleMigrate)

	mux.HandleFunc("GET /api/health", s.handleHealth)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	return middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)(h)
}
