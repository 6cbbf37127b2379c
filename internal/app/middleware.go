package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/odyssey-erp/purchasing/internal/backend"
	"github.com/odyssey-erp/purchasing/internal/observability"
	"github.com/odyssey-erp/purchasing/internal/shared"
)

// ActorHeader carries the authenticated user as resolved by the gateway.
const ActorHeader = "X-Actor-ID"

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the purchasing middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	limit := 120
	origins := []string{"http://localhost:5173"}
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.RateLimitPerMinute > 0 {
			limit = cfg.Config.RateLimitPerMinute
		}
		if len(cfg.Config.CORSAllowedOrigins) > 0 {
			origins = cfg.Config.CORSAllowedOrigins
		}
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", ActorHeader},
			ExposedHeaders:   []string{"Idempotency-Key", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		callerContext,
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

// callerContext forwards the caller's identity: the Authorization header is
// replayed on backend calls and the actor is recorded in audit entries.
func callerContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := backend.WithAuthorization(r.Context(), r.Header.Get("Authorization"))
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			ctx = shared.ContextWithActor(ctx, actor)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
