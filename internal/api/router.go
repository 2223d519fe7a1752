package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/keepdeck-io/keepdeck/internal/auth"
	"github.com/keepdeck-io/keepdeck/internal/taskmgr"
	"github.com/keepdeck-io/keepdeck/internal/ws"
)

// RouterConfig holds all dependencies needed to build the HTTP router.
// It is populated in main.go after all components are initialized and
// passed to NewRouter as a single struct to keep the constructor signature
// manageable as the number of dependencies grows.
type RouterConfig struct {
	Manager *taskmgr.Manager
	Auth    *auth.Manager
	Hub     *ws.Hub
	Logger  *zap.Logger

	// Registry backs the /metrics endpoint. Nil disables it.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the fully configured Chi router.
// All resources are registered under /api/v1; /healthz and /metrics live at
// the root so probes and scrapers do not need credentials.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// --- Global middleware ---
	// RequestID generates a unique ID for each request, used in logs and
	// response headers for tracing.
	r.Use(middleware.RequestID)

	// RealIP extracts the real client IP from X-Forwarded-For or X-Real-IP
	// headers when the server runs behind a reverse proxy.
	r.Use(middleware.RealIP)

	// RequestLogger logs every request with method, path, status and latency.
	r.Use(RequestLogger(cfg.Logger))

	// Recoverer catches panics in handlers, logs them, and returns a 500
	// instead of crashing the server.
	r.Use(middleware.Recoverer)

	// --- Initialize handlers ---
	sessionHandler := NewSessionHandler(cfg.Auth, cfg.Logger)
	planHandler := NewPlanHandler(cfg.Manager, cfg.Logger)
	taskHandler := NewTaskHandler(cfg.Manager, cfg.Logger)
	targetHandler := NewTargetHandler(cfg.Manager, cfg.Logger)
	miscHandler := NewMiscHandler(cfg.Manager, cfg.Logger)
	wsHandler := NewWSHandler(cfg.Hub, cfg.Manager, cfg.Logger)

	// --- Operational endpoints (unauthenticated) ---
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {

		// --- Public routes (no authentication required) ---
		r.Post("/auth/session", sessionHandler.Login)

		// --- Authenticated routes (valid session token required) ---
		r.Group(func(r chi.Router) {
			r.Use(Authenticate(cfg.Auth))

			// Plans
			r.Get("/plans", planHandler.List)
			r.Post("/plans", planHandler.Create)
			r.Get("/plans/{id}", planHandler.GetByID)
			r.Put("/plans/{id}", planHandler.Update)
			r.Delete("/plans/{id}", planHandler.Delete)
			r.Get("/plans/{id}/next-run", planHandler.NextRun)
			r.Post("/plans/{id}/backup", planHandler.Backup)

			// Tasks
			r.Get("/tasks", taskHandler.List)
			r.Post("/tasks/pause-all", taskHandler.PauseAll)
			r.Post("/tasks/resume-last", taskHandler.ResumeLast)
			r.Get("/tasks/{id}", taskHandler.GetByID)
			r.Post("/tasks/{id}/pause", taskHandler.Pause)
			r.Post("/tasks/{id}/resume", taskHandler.Resume)
			r.Delete("/tasks/{id}", taskHandler.Delete)
			r.Get("/tasks/{id}/files", taskHandler.Files)
			r.Get("/tasks/{id}/chunks", taskHandler.Chunks)

			// Restores
			r.Post("/restores", taskHandler.Restore)

			// Targets
			r.Get("/targets", targetHandler.List)
			r.Post("/targets", targetHandler.Create)
			r.Get("/targets/{id}", targetHandler.GetByID)
			r.Put("/targets/{id}", targetHandler.Update)
			r.Delete("/targets/{id}", targetHandler.Delete)

			// Activity log and dashboard summaries
			r.Get("/logs", miscHandler.Logs)
			r.Get("/summary/size", miscHandler.SizeSummary)
			r.Get("/summary/statistics", miscHandler.Statistics)

			// Daemon-side filesystem browsing (plan wizard)
			r.Get("/fs/children", miscHandler.FSChildren)
			r.Get("/fs/validate", miscHandler.FSValidate)

			// Real-time event stream
			r.Get("/ws", wsHandler.ServeWS)
		})
	})

	return r
}
