package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/guilhermemayrinkal/agribackend/internal/adjustment"
	"github.com/guilhermemayrinkal/agribackend/internal/auth"
	"github.com/guilhermemayrinkal/agribackend/internal/identity"
	"github.com/guilhermemayrinkal/agribackend/internal/notification"
	"github.com/guilhermemayrinkal/agribackend/internal/observability"
	"github.com/guilhermemayrinkal/agribackend/internal/platform/httpx"
	"github.com/guilhermemayrinkal/agribackend/internal/shared"
	"github.com/guilhermemayrinkal/agribackend/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	Sessions            auth.Resolver
	NotificationHandler *notification.Handler
	AdjustmentHandler   *adjustment.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(params.Sessions, logger))
		r.Get("/me", currentPrincipal)
		if params.NotificationHandler != nil {
			r.Route("/notifications", params.NotificationHandler.MountRoutes)
		}
		if params.AdjustmentHandler != nil {
			r.Route("/inventory/adjustment-requests", params.AdjustmentHandler.MountRoutes)
		}
	})

	return r
}

// currentPrincipal echoes the authenticated caller so clients can confirm
// which recipient identities their token maps to.
func currentPrincipal(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, auth.PrincipalOf(caller))
}
