package report

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/purchasing/internal/platform/httpx"
	"github.com/odyssey-erp/purchasing/internal/pricing"
)

// Handler manages report endpoints.
type Handler struct {
	client   *Client
	renderer *Renderer
	calc     *pricing.Calculator
	logger   *slog.Logger
}

// NewHandler creates a report handler.
func NewHandler(client *Client, renderer *Renderer, calc *pricing.Calculator, logger *slog.Logger) *Handler {
	return &Handler{client: client, renderer: renderer, calc: calc, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Post("/purchase-order/preview", h.preview)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// preview renders a draft as HTML without calling Gotenberg.
func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var d pricing.Draft
	if err := httpx.DecodeJSON(r, &d); err != nil {
		httpx.RespondError(w, err)
		return
	}
	draft, totals, err := h.calc.Reprice(d)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	html, err := h.renderer.HTML(draft, totals)
	if err != nil {
		h.logger.Error("render purchase order preview", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}
