package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/purchasing/internal/observability"
	"github.com/odyssey-erp/purchasing/internal/pricing"
	"github.com/odyssey-erp/purchasing/internal/shared"
)

func testConfig() *Config {
	return &Config{
		AppEnv:             "test",
		BackendURL:         "http://backend.local",
		NumericPolicy:      "strict",
		RateLimitPerMinute: 60,
		CORSAllowedOrigins: []string{"http://app.local"},
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://backend.local/api")
	t.Setenv("PRICING_NUMERIC_POLICY", "strict")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.local,http://b.local")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "http://backend.local/api", cfg.BackendURL)
	require.Equal(t, pricing.PolicyStrict, cfg.Policy())
	require.Equal(t, []string{"http://a.local", "http://b.local"}, cfg.CORSAllowedOrigins)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.validate())

	cfg.NumericPolicy = "loose"
	require.Error(t, cfg.validate())

	cfg = testConfig()
	cfg.BackendURL = " "
	require.Error(t, cfg.validate())

	cfg = testConfig()
	cfg.RateLimitPerMinute = 0
	require.Error(t, cfg.validate())
}

func TestConfigPolicyFallsBackToLenient(t *testing.T) {
	var cfg *Config
	require.Equal(t, pricing.PolicyLenient, cfg.Policy())
	require.False(t, cfg.IsProduction())
	require.Equal(t, pricing.PolicyLenient, (&Config{NumericPolicy: "bogus"}).Policy())
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	cfg.LogFormat = "json"
	newLogger(cfg, &buf).Info("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "hello", entry["msg"])
	require.Equal(t, "purchasing", entry["service"])
	require.Equal(t, "test", entry["env"])
}

func TestCallerContextForwardsActor(t *testing.T) {
	var actor string
	h := callerContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = shared.ActorFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActorHeader, " u-7 ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "u-7", actor)
}

func TestRouterHealthz(t *testing.T) {
	router := NewRouter(RouterParams{Config: testConfig()})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRouterHealthzDegraded(t *testing.T) {
	router := NewRouter(RouterParams{
		Config: testConfig(),
		Checks: map[string]HealthCheck{
			"redis": func(*http.Request) error { return errors.New("connection refused") },
		},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"degraded"}`, rec.Body.String())
}

func TestRouterCORSPreflight(t *testing.T) {
	router := NewRouter(RouterParams{Config: testConfig()})
	req := httptest.NewRequest(http.MethodOptions, "/api/purchase-orders", nil)
	req.Header.Set("Origin", "http://app.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Idempotency-Key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, "http://app.local", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := NewRouter(RouterParams{Config: testConfig(), Metrics: observability.NewMetrics()})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}
