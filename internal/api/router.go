package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/api/handler"
	"github.com/bcnelson/hackathon-manager/internal/api/middleware"
	"github.com/bcnelson/hackathon-manager/internal/auth"
	"github.com/bcnelson/hackathon-manager/internal/metrics"
	"github.com/bcnelson/hackathon-manager/internal/service"
)

// Options configures the top-level router.
type Options struct {
	Sessions *auth.SessionManager
	// ServeMetrics exposes /metrics on this router. Leave it off when metrics
	// are served on a dedicated address.
	ServeMetrics bool
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
}

// NewRouter creates a new HTTP router with all routes configured. The web
// front end is mounted at the root.
func NewRouter(svc *service.Services, log *zap.Logger, webHandler http.Handler, opts Options) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	if opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Metrics)

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if opts.ServeMetrics {
		r.Handle("/metrics", metrics.Handler())
	}

	// Mount web UI (no Content-Type middleware - serves HTML)
	r.Mount("/", webHandler)

	// API routes (read-only, JSON Content-Type)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)
		if opts.Sessions != nil {
			r.Use(middleware.Session(opts.Sessions))
		}

		ideaHandler := handler.NewIdeaHandler(svc.Ideas, log)
		r.Get("/ideas", ideaHandler.List)
		r.Get("/ideas/{id}", ideaHandler.Get)

		projectHandler := handler.NewProjectHandler(svc.Projects, log)
		r.Get("/projects", projectHandler.List)
		r.Get("/projects/{id}", projectHandler.Get)

		groupHandler := handler.NewGroupHandler(svc.Groups, log)
		r.Get("/groups", groupHandler.List)
		r.Get("/groups/{id}", groupHandler.Get)
		r.Get("/groups/{id}/submissions", groupHandler.Submissions)

		statsHandler := handler.NewStatsHandler(svc, log)
		r.Get("/stats", statsHandler.Get)

		meHandler := handler.NewMeHandler(svc.Groups, log)
		r.With(middleware.RequireUser).Get("/me", meHandler.Get)
	})

	return r
}
