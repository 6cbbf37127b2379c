package purchasing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/purchasing/internal/audit"
	"github.com/odyssey-erp/purchasing/internal/backend"
	"github.com/odyssey-erp/purchasing/internal/catalog"
	"github.com/odyssey-erp/purchasing/internal/platform/httpx"
	"github.com/odyssey-erp/purchasing/internal/pricing"
	"github.com/odyssey-erp/purchasing/internal/shared"
)

const (
	maxUploadBytes = 32 << 20
	// IdempotencyHeader carries the client's submission key.
	IdempotencyHeader = "Idempotency-Key"
)

// ServicePort is what the handler needs from Service.
type ServicePort interface {
	Quote(ctx context.Context, d pricing.Draft) (Quote, error)
	Apply(ctx context.Context, in ApplyInput) (Quote, error)
	PlanEMI(ctx context.Context, in PlanInput) (pricing.Schedule, error)
	TaxOptions(ctx context.Context, vendorID, deliveryState string) (catalog.TaxOptions, error)
	Items(ctx context.Context) ([]pricing.CatalogItem, error)
	RefreshTaxRates(ctx context.Context) error
	Load(ctx context.Context, id string) (EditView, error)
	Submit(ctx context.Context, in SubmitInput) (SubmitResult, error)
	RecordPayment(ctx context.Context, orderID string, index int, p backend.InstallmentPayment) (backend.Order, error)
	Document(ctx context.Context, id string) ([]byte, error)
	History(ctx context.Context, orderID string, page, pageSize int) (audit.Result, error)
}

// Handler exposes the purchasing JSON API.
type Handler struct {
	service ServicePort
	logger  *slog.Logger
}

// NewHandler constructs the HTTP handler.
func NewHandler(service ServicePort, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// MountRoutes registers purchasing endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Post("/quote", h.quote)
		r.Post("/apply", h.apply)
		r.Get("/tax-options", h.taxOptions)
		r.Post("/emi/plan", h.planEMI)
		r.Post("/", h.create)
		r.Get("/{id}", h.load)
		r.Put("/{id}", h.update)
		r.Post("/{id}/installments/{index}/payments", h.recordPayment)
		r.Get("/{id}/history", h.history)
		r.Group(func(gr chi.Router) {
			gr.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
			gr.Get("/{id}/document.pdf", h.document)
		})
	})
	r.Get("/items", h.items)
	r.Post("/tax-rates/refresh", h.refreshTaxRates)
}

func (h *Handler) items(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Items(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var d pricing.Draft
	if err := httpx.DecodeJSON(r, &d); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.Quote(r.Context(), d)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	var in ApplyInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.Apply(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) taxOptions(w http.ResponseWriter, r *http.Request) {
	vendorID := strings.TrimSpace(r.URL.Query().Get("vendor_id"))
	if vendorID == "" {
		h.fail(w, r, pricing.ValidationErrors{"vendor_id": "is required"})
		return
	}
	opts, err := h.service.TaxOptions(r.Context(), vendorID, r.URL.Query().Get("delivery_state"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, opts)
}

func (h *Handler) planEMI(w http.ResponseWriter, r *http.Request) {
	var in PlanInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	sched, err := h.service.PlanEMI(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sched)
}

func (h *Handler) refreshTaxRates(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RefreshTaxRates(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, "")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, id string) {
	draft, uploads, err := decodeSubmission(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.service.Submit(r.Context(), SubmitInput{
		ID:             id,
		Draft:          draft,
		Uploads:        uploads,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set(IdempotencyHeader, res.IdempotencyKey)
	status := http.StatusOK
	message := "Purchase order updated"
	if id == "" {
		message = "Purchase order created"
		if !res.Replayed {
			status = http.StatusCreated
		}
	}
	httpx.JSON(w, status, submitResponse{SubmitResult: res, Notice: shared.SuccessNotice(message)})
}

type submitResponse struct {
	SubmitResult
	Notice shared.Notice `json:"notice"`
}

// decodeSubmission reads a draft from a JSON body or from a multipart form
// with a "draft" JSON field and any number of "files".
func decodeSubmission(r *http.Request) (pricing.Draft, []backend.Upload, error) {
	var d pricing.Draft
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err := httpx.DecodeJSON(r, &d)
		return d, nil, err
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return d, nil, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err)
	}
	raw := r.FormValue("draft")
	if raw == "" {
		return d, nil, fmt.Errorf("%w: draft field required", httpx.ErrBadRequest)
	}
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return d, nil, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err)
	}
	var uploads []backend.Upload
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return d, nil, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err)
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return d, nil, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err)
		}
		uploads = append(uploads, backend.Upload{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     content,
		})
	}
	return d, uploads, nil
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: installment index must be an integer", httpx.ErrBadRequest))
		return
	}
	var p backend.InstallmentPayment
	if err := httpx.DecodeJSON(r, &p); err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.service.RecordPayment(r.Context(), chi.URLParam(r, "id"), index, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	res, err := h.service.History(r.Context(), chi.URLParam(r, "id"), page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) document(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pdf, err := h.service.Document(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="purchase-order-%s.pdf"`, id))
	_, _ = w.Write(pdf)
}

// fail writes err as a problem document with a dismissable notice.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	p := problemFor(err)
	if p.Status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "purchasing request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.WriteProblem(w, p)
}

func problemFor(err error) httpx.ProblemDetail {
	var (
		verrs  pricing.ValidationErrors
		numErr *pricing.NumberError
		beErr  *backend.Error
	)
	switch {
	case errors.As(err, &verrs):
		return problem(http.StatusUnprocessableEntity, "Validation Failed", "Please correct the highlighted fields", verrs)
	case errors.As(err, &numErr):
		return problem(http.StatusUnprocessableEntity, "Validation Failed", numErr.Field+" "+numErr.Message(),
			map[string]string{numErr.Field: numErr.Message()})
	case errors.Is(err, pricing.ErrConfirmationRequired),
		errors.Is(err, pricing.ErrAlreadyPaid),
		errors.Is(err, ErrSubmissionInProgress):
		return problem(http.StatusConflict, "Conflict", message(err), nil)
	case errors.Is(err, pricing.ErrLineNotFound),
		errors.Is(err, pricing.ErrInstallmentNotFound),
		errors.Is(err, pricing.ErrNoSchedule),
		errors.Is(err, pricing.ErrUnknownTaxOption),
		errors.Is(err, pricing.ErrUnknownAction),
		errors.Is(err, pricing.ErrInvalidAction),
		errors.Is(err, pricing.ErrInvalidInstallmentCount),
		errors.Is(err, pricing.ErrInvalidFrequency),
		errors.Is(err, pricing.ErrNegativeInterest):
		return problem(http.StatusUnprocessableEntity, "Invalid Request", message(err), nil)
	case errors.Is(err, httpx.ErrBadRequest):
		return problem(http.StatusBadRequest, "Bad Request", err.Error(), nil)
	case errors.Is(err, backend.ErrNotFound):
		return problem(http.StatusNotFound, "Not Found", backend.Message(err), nil)
	case errors.As(err, &beErr):
		status := http.StatusBadGateway
		if beErr.Status >= 400 && beErr.Status < 500 {
			status = beErr.Status
		}
		return problem(status, "Backend Error", backend.Message(err), nil)
	case errors.Is(err, ErrRendererUnavailable):
		return problem(http.StatusServiceUnavailable, "Unavailable", "Document rendering is not available", nil)
	default:
		return problem(http.StatusInternalServerError, "Internal Error", backend.GenericMessage, nil)
	}
}

func problem(status int, title, detail string, fields map[string]string) httpx.ProblemDetail {
	return httpx.ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
		Errors: fields,
		Notice: shared.ErrorNotice(detail),
	}
}

// message strips the package prefix from a sentinel for display.
func message(err error) string {
	msg := err.Error()
	var ae *ActionError
	if errors.As(err, &ae) {
		msg = ae.Err.Error()
	}
	return strings.TrimPrefix(strings.TrimPrefix(msg, "pricing: "), "purchasing: ")
}
