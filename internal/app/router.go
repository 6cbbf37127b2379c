package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/odyssey-erp/purchasing/internal/observability"
	"github.com/odyssey-erp/purchasing/internal/purchasing"
	"github.com/odyssey-erp/purchasing/jobs"
	"github.com/odyssey-erp/purchasing/report"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(r *http.Request) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	PurchasingHandler *purchasing.Handler
	ReportHandler     *report.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
	Checks            map[string]HealthCheck
}

// NewRouter constructs the chi.Router with purchasing defaults.
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

	r.Get("/healthz", healthHandler(params.Logger, params.Checks))

	if params.PurchasingHandler != nil {
		r.Route("/api", params.PurchasingHandler.MountRoutes)
	}
	if params.ReportHandler != nil {
		r.Route("/report", params.ReportHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return otelhttp.NewHandler(r, "purchasing",
		otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != "/healthz" && req.URL.Path != "/metrics"
		}),
	)
}

func healthHandler(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := `{"status":"ok"}`
		for name, check := range checks {
			if err := check(r); err != nil {
				if logger != nil {
					logger.Warn("health check failed", slog.String("dependency", name), slog.Any("error", err))
				}
				status = http.StatusServiceUnavailable
				body = `{"status":"degraded"}`
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}
