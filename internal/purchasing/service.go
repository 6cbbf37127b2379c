// Package purchasing orchestrates the purchase-order draft lifecycle: quoting,
// editing, hydrating an order for edit, submitting it to the order-management
// backend and recording installment payments.
package purchasing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/purchasing/internal/audit"
	"github.com/odyssey-erp/purchasing/internal/backend"
	"github.com/odyssey-erp/purchasing/internal/catalog"
	"github.com/odyssey-erp/purchasing/internal/money"
	"github.com/odyssey-erp/purchasing/internal/observability"
	"github.com/odyssey-erp/purchasing/internal/pricing"
	"github.com/odyssey-erp/purchasing/internal/shared"
)

var (
	// ErrSubmissionInProgress indicates the idempotency key is held by a submission that has not finished.
	ErrSubmissionInProgress = errors.New("purchasing: submission with this key is still in progress")
	// ErrRendererUnavailable indicates document rendering is not configured.
	ErrRendererUnavailable = errors.New("purchasing: document renderer not configured")
)

// Idempotency modules.
const (
	moduleCreate = "purchasing.create"
	moduleUpdate = "purchasing.update"
)

// BackendPort is the subset of the order-management API the service uses.
type BackendPort interface {
	GetOrder(ctx context.Context, id string) (backend.Order, error)
	CreateOrder(ctx context.Context, d pricing.Draft, uploads []backend.Upload, idempotencyKey string) (backend.Order, error)
	UpdateOrder(ctx context.Context, id string, d pricing.Draft, uploads []backend.Upload, idempotencyKey string) (backend.Order, error)
	RecordInstallmentPayment(ctx context.Context, orderID string, index int, p backend.InstallmentPayment) (backend.Order, error)
}

// CatalogPort serves vendors, items and the custom tax table.
type CatalogPort interface {
	CustomTaxes(ctx context.Context) ([]pricing.CustomTax, error)
	Items(ctx context.Context) ([]pricing.CatalogItem, error)
	Vendor(ctx context.Context, id string) (backend.Vendor, error)
	TaxOptions(ctx context.Context, vendorID, deliveryState string) (catalog.TaxOptions, error)
	Refresh(ctx context.Context) error
}

// IdempotencyPort guards submissions against duplicates.
type IdempotencyPort interface {
	Reserve(ctx context.Context, key, module string) error
	Complete(ctx context.Context, key, ref string) error
	Lookup(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// HistoryPort reads the audit trail.
type HistoryPort interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
}

// ReminderPort schedules installment due-date reminders for an order.
type ReminderPort interface {
	ScheduleReminders(ctx context.Context, order backend.Order) (int, error)
}

// RendererPort turns an order into a PDF document.
type RendererPort interface {
	RenderPurchaseOrder(ctx context.Context, d pricing.Draft, t pricing.Totals) ([]byte, error)
}

// Deps collects the collaborators of Service. Audit, Reminders, Renderer and
// Metrics are optional.
type Deps struct {
	Calculator  *pricing.Calculator
	Backend     BackendPort
	Catalog     CatalogPort
	Idempotency IdempotencyPort
	Audit       AuditPort
	History     HistoryPort
	Reminders   ReminderPort
	Renderer    RendererPort
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// Service orchestrates purchase-order flows.
type Service struct {
	calc        *pricing.Calculator
	backend     BackendPort
	catalog     CatalogPort
	idempotency IdempotencyPort
	audit       AuditPort
	history     HistoryPort
	reminders   ReminderPort
	renderer    RendererPort
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewService constructs the purchasing service.
func NewService(deps Deps) *Service {
	calc := deps.Calculator
	if calc == nil {
		calc = pricing.NewCalculator(pricing.PolicyLenient)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		calc:        calc,
		backend:     deps.Backend,
		catalog:     deps.Catalog,
		idempotency: deps.Idempotency,
		audit:       deps.Audit,
		history:     deps.History,
		reminders:   deps.Reminders,
		renderer:    deps.Renderer,
		metrics:     deps.Metrics,
		logger:      logger,
	}
}

// Quote is a repriced draft with the tax picker for its states.
type Quote struct {
	Draft          pricing.Draft          `json:"draft"`
	Totals         pricing.Totals         `json:"totals"`
	Classification pricing.Classification `json:"classification"`
	Options        []pricing.TaxOption    `json:"options"`
	Warnings       []pricing.Warning      `json:"warnings,omitempty"`
}

// Quote reprices d and lists the tax options available to it.
func (s *Service) Quote(ctx context.Context, d pricing.Draft) (Quote, error) {
	editor, err := s.editor(ctx, d)
	if err != nil {
		return Quote{}, err
	}
	return s.quoteOf(editor, nil), nil
}

// ApplyInput is a draft plus the actions to replay on it, in order.
type ApplyInput struct {
	Draft   pricing.Draft            `json:"draft"`
	Actions []pricing.ActionEnvelope `json:"actions"`
}

// ActionError reports which action of a batch failed.
type ActionError struct {
	Index int
	Type  string
	Err   error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %d (%s): %v", e.Index, e.Type, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Apply replays actions on the draft. The batch is all or nothing: the first
// failing action aborts it.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (Quote, error) {
	editor, err := s.editor(ctx, in.Draft)
	if err != nil {
		return Quote{}, err
	}
	var warnings []pricing.Warning
	for i, env := range in.Actions {
		action, err := env.Decode()
		if err != nil {
			return Quote{}, &ActionError{Index: i, Type: env.Type, Err: err}
		}
		res, err := editor.Dispatch(action)
		if err != nil {
			return Quote{}, &ActionError{Index: i, Type: env.Type, Err: err}
		}
		warnings = append(warnings, res.Warnings...)
	}
	return s.quoteOf(editor, warnings), nil
}

func (s *Service) editor(ctx context.Context, d pricing.Draft) (*pricing.Editor, error) {
	custom, err := s.catalog.CustomTaxes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tax rates: %w", err)
	}
	return pricing.NewEditor(s.calc, d, custom)
}

func (s *Service) quoteOf(editor *pricing.Editor, warnings []pricing.Warning) Quote {
	q := Quote{
		Draft:          editor.Draft(),
		Totals:         editor.Totals(),
		Classification: editor.Classification(),
		Options:        editor.Options(),
		Warnings:       warnings,
	}
	s.metrics.ObserveQuote(string(q.Classification), len(warnings))
	return q
}

// PlanInput previews an EMI schedule without a draft.
type PlanInput struct {
	DueAmount        string            `json:"dueAmount"`
	InterestRate     string            `json:"interestRate"`
	Frequency        pricing.Frequency `json:"frequency"`
	InstallmentCount int               `json:"installmentCount"`
	StartDate        string            `json:"startDate"`
}

// PlanEMI computes an installment schedule for a due amount.
func (s *Service) PlanEMI(_ context.Context, in PlanInput) (pricing.Schedule, error) {
	errs := pricing.ValidationErrors{}
	due, err := money.Parse(in.DueAmount)
	if err != nil {
		errs["dueAmount"] = "must be a number"
	}
	rate := decimal.Zero
	if strings.TrimSpace(in.InterestRate) != "" {
		if rate, err = money.ParseDecimal(in.InterestRate); err != nil {
			errs["interestRate"] = "must be a number"
		}
	}
	start, err := time.Parse(pricing.DateLayout, in.StartDate)
	if err != nil {
		errs["startDate"] = "must be a date (YYYY-MM-DD)"
	}
	if len(errs) > 0 {
		return pricing.Schedule{}, errs
	}
	sched, err := pricing.Plan(pricing.PlanInput{
		DueAmount:    due,
		InterestRate: rate,
		Frequency:    in.Frequency,
		Count:        in.InstallmentCount,
		StartDate:    start,
	})
	if err != nil {
		return pricing.Schedule{}, err
	}
	s.metrics.ObserveSchedule(string(in.Frequency))
	return sched, nil
}

// TaxOptions lists the tax options for a vendor and delivery state.
func (s *Service) TaxOptions(ctx context.Context, vendorID, deliveryState string) (catalog.TaxOptions, error) {
	return s.catalog.TaxOptions(ctx, vendorID, deliveryState)
}

// Items lists the catalog entries a product row can be filled from.
func (s *Service) Items(ctx context.Context) ([]pricing.CatalogItem, error) {
	return s.catalog.Items(ctx)
}

// RefreshTaxRates drops the cached tax table so the next load hits the backend.
func (s *Service) RefreshTaxRates(ctx context.Context) error {
	if err := s.catalog.Refresh(ctx); err != nil {
		return err
	}
	s.record(ctx, shared.AuditLog{Action: "tax_rates.refresh", Entity: "tax_rates"})
	return nil
}

// EditView is an order hydrated for editing.
type EditView struct {
	Order          backend.Order          `json:"order"`
	Vendor         backend.Vendor         `json:"vendor"`
	Totals         pricing.Totals         `json:"totals"`
	Classification pricing.Classification `json:"classification"`
	Options        []pricing.TaxOption    `json:"options"`
}

// Load fetches an order with its vendor and the tax table. The vendor lookup
// waits for the order; the tax table loads alongside both.
func (s *Service) Load(ctx context.Context, id string) (EditView, error) {
	var (
		order  backend.Order
		vendor backend.Vendor
		custom []pricing.CustomTax
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o, err := s.backend.GetOrder(gctx, id)
		if err != nil {
			return err
		}
		order = o
		if o.Vendor.ID == "" {
			return nil
		}
		v, err := s.catalog.Vendor(gctx, o.Vendor.ID)
		if err != nil {
			return err
		}
		vendor = v
		return nil
	})
	g.Go(func() error {
		rates, err := s.catalog.CustomTaxes(gctx)
		if err != nil {
			return err
		}
		custom = rates
		return nil
	})
	if err := g.Wait(); err != nil {
		return EditView{}, err
	}

	if order.Address.SourceState == "" {
		order.Address.SourceState = vendor.TaxDetails.SourceState
	}
	editor, err := pricing.NewEditor(s.calc, order.Draft, custom)
	if err != nil {
		return EditView{}, err
	}
	order.Draft = editor.Draft()
	return EditView{
		Order:          order,
		Vendor:         vendor,
		Totals:         editor.Totals(),
		Classification: editor.Classification(),
		Options:        editor.Options(),
	}, nil
}

// SubmitInput is a create (empty ID) or update request.
type SubmitInput struct {
	ID             string
	Draft          pricing.Draft
	Uploads        []backend.Upload
	IdempotencyKey string
}

// SubmitResult is the persisted order. Replayed reports that the key had
// already been used and the stored order was returned instead.
type SubmitResult struct {
	Order          backend.Order `json:"order"`
	IdempotencyKey string        `json:"idempotencyKey"`
	Replayed       bool          `json:"replayed"`
}

// Submit validates and reprices the draft, then creates or updates the order.
// Client-side totals are never trusted.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	operation, module := "create", moduleCreate
	if in.ID != "" {
		operation, module = "update", moduleUpdate
	}
	if err := s.calc.Validate(in.Draft); err != nil {
		s.metrics.ObserveSubmission(operation, "invalid")
		return SubmitResult{}, err
	}
	draft, totals, err := s.calc.Reprice(in.Draft)
	if err == nil {
		err = pricing.ValidateSchedule(draft, totals)
	}
	if err != nil {
		s.metrics.ObserveSubmission(operation, "invalid")
		return SubmitResult{}, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}
	if s.idempotency != nil {
		if err := s.idempotency.Reserve(ctx, key, module); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return s.replay(ctx, operation, key)
			}
			s.metrics.ObserveSubmission(operation, "error")
			return SubmitResult{}, fmt.Errorf("reserve idempotency key: %w", err)
		}
	}

	var order backend.Order
	if in.ID == "" {
		order, err = s.backend.CreateOrder(ctx, draft, in.Uploads, key)
	} else {
		order, err = s.backend.UpdateOrder(ctx, in.ID, draft, in.Uploads, key)
	}
	if err != nil {
		if s.idempotency != nil {
			if delErr := s.idempotency.Delete(context.WithoutCancel(ctx), key); delErr != nil {
				s.logger.WarnContext(ctx, "release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		s.metrics.ObserveSubmission(operation, "error")
		return SubmitResult{}, err
	}
	if s.idempotency != nil {
		if err := s.idempotency.Complete(ctx, key, order.ID); err != nil {
			s.logger.WarnContext(ctx, "complete idempotency key", slog.String("key", key), slog.Any("error", err))
		}
	}

	grand, due := pricing.Summary(draft)
	s.record(ctx, shared.AuditLog{
		Action:   "purchase_order." + operation,
		Entity:   "purchase_order",
		EntityID: order.ID,
		Meta: map[string]any{
			"grandAmount":    grand.String(),
			"dueAmount":      due.String(),
			"taxAmount":      totals.TotalTax.String(),
			"classification": string(pricing.Classify(draft.Address.SourceState, draft.Address.DeliveryState)),
			"attachments":    len(in.Uploads),
		},
	})
	s.scheduleReminders(ctx, order)
	s.metrics.ObserveSubmission(operation, "ok")
	return SubmitResult{Order: order, IdempotencyKey: key}, nil
}

func (s *Service) replay(ctx context.Context, operation, key string) (SubmitResult, error) {
	ref, err := s.idempotency.Lookup(ctx, key)
	if err != nil {
		s.metrics.ObserveSubmission(operation, "error")
		return SubmitResult{}, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if ref == "" {
		s.metrics.ObserveSubmission(operation, "duplicate")
		return SubmitResult{}, ErrSubmissionInProgress
	}
	order, err := s.backend.GetOrder(ctx, ref)
	if err != nil {
		return SubmitResult{}, err
	}
	s.metrics.ObserveSubmission(operation, "duplicate")
	return SubmitResult{Order: order, IdempotencyKey: key, Replayed: true}, nil
}

func (s *Service) scheduleReminders(ctx context.Context, order backend.Order) {
	if s.reminders == nil || order.EMIDetails == nil || len(order.EMIDetails.Installments) == 0 {
		return
	}
	n, err := s.reminders.ScheduleReminders(ctx, order)
	if err != nil {
		s.logger.WarnContext(ctx, "schedule installment reminders", slog.String("order_id", order.ID), slog.Any("error", err))
		return
	}
	s.metrics.ObserveSchedule(string(order.EMIDetails.Frequency))
	s.logger.InfoContext(ctx, "installment reminders scheduled", slog.String("order_id", order.ID), slog.Int("count", n))
}

// RecordPayment marks one installment paid. The installment is checked against
// the stored schedule first so a paid installment is never sent twice.
func (s *Service) RecordPayment(ctx context.Context, orderID string, index int, p backend.InstallmentPayment) (backend.Order, error) {
	if err := pricing.ValidatePayment(p.Payment); err != nil {
		return backend.Order{}, err
	}
	current, err := s.backend.GetOrder(ctx, orderID)
	if err != nil {
		return backend.Order{}, err
	}
	if current.EMIDetails == nil {
		return backend.Order{}, pricing.ErrNoSchedule
	}
	if _, err := pricing.MarkPaid(current.EMIDetails.Installments, index, p.Payment); err != nil {
		return backend.Order{}, err
	}
	if strings.TrimSpace(p.Amount) == "" {
		p.Amount = current.EMIDetails.Installments[index].Amount
	}
	order, err := s.backend.RecordInstallmentPayment(ctx, orderID, index, p)
	if err != nil {
		return backend.Order{}, err
	}
	s.record(ctx, shared.AuditLog{
		Action:   "purchase_order.installment_paid",
		Entity:   "purchase_order",
		EntityID: orderID,
		Meta: map[string]any{
			"installment": index,
			"amount":      p.Amount,
			"method":      p.Method,
			"reference":   p.Reference,
		},
	})
	return order, nil
}

// Document renders the order as a PDF.
func (s *Service) Document(ctx context.Context, id string) ([]byte, error) {
	if s.renderer == nil {
		return nil, ErrRendererUnavailable
	}
	order, err := s.backend.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	draft, totals, err := s.calc.Reprice(order.Draft)
	if err != nil {
		return nil, err
	}
	return s.renderer.RenderPurchaseOrder(ctx, draft, totals)
}

// History pages through the audit entries recorded for an order, newest first.
func (s *Service) History(ctx context.Context, orderID string, page, pageSize int) (audit.Result, error) {
	if s.history == nil {
		return audit.Result{Rows: []audit.TimelineRow{}, Paging: audit.PagingInfo{Page: 1}}, nil
	}
	return s.history.Timeline(ctx, audit.TimelineFilters{
		Entity:   "purchase_order",
		EntityID: orderID,
		Page:     page,
		PageSize: pageSize,
	})
}

func (s *Service) record(ctx context.Context, entry shared.AuditLog) {
	if s.audit == nil {
		return
	}
	entry.Actor = shared.ActorFromContext(ctx)
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "audit log", slog.String("action", entry.Action), slog.Any("error", err))
	}
}
