package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groupgate/groupgate/internal/access"
	"github.com/groupgate/groupgate/internal/capabilities"
	"github.com/groupgate/groupgate/internal/closure"
	"github.com/groupgate/groupgate/internal/groups"
	"github.com/groupgate/groupgate/internal/observability"
	"github.com/groupgate/groupgate/internal/relations"
	"github.com/groupgate/groupgate/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	GroupsHandler       *groups.Handler
	CapabilitiesHandler *capabilities.Handler
	RelationsHandler    *relations.Handler
	ClosureHandler      *closure.Handler
	AccessHandler       *access.Handler
	JobHandler          *jobs.Handler
	Pool                *pgxpool.Pool
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/groups", func(r chi.Router) {
		params.GroupsHandler.MountRoutes(r)
		if params.RelationsHandler != nil {
			params.RelationsHandler.MountGroupRoutes(r)
		}
		if params.ClosureHandler != nil {
			params.ClosureHandler.MountGroupRoutes(r)
		}
	})
	r.Route("/capabilities", func(r chi.Router) {
		params.CapabilitiesHandler.MountRoutes(r)
	})
	r.Route("/users", func(r chi.Router) {
		if params.RelationsHandler != nil {
			params.RelationsHandler.MountUserRoutes(r)
		}
		if params.ClosureHandler != nil {
			params.ClosureHandler.MountUserRoutes(r)
		}
	})
	if params.ClosureHandler != nil {
		r.Route("/cache", func(r chi.Router) {
			params.ClosureHandler.MountOpsRoutes(r)
		})
	}
	if params.AccessHandler != nil {
		r.Route("/items", func(r chi.Router) {
			params.AccessHandler.MountItemRoutes(r)
		})
		r.Route("/access", func(r chi.Router) {
			params.AccessHandler.MountAccessRoutes(r)
		})
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			params.JobHandler.MountRoutes(r)
		})
	}

	return r
}
