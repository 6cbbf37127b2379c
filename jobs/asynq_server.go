package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/purchasing/internal/backend"
	"github.com/odyssey-erp/purchasing/internal/pricing"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client submits jobs to the queue.
type Client struct {
	client enqueuer
	lead   time.Duration
	now    func() time.Time
}

// NewClient constructs an Asynq client. Installment reminders are scheduled
// reminderLead before each due date.
func NewClient(redisOpts asynq.RedisClientOpt, reminderLead time.Duration) (*Client, error) {
	return newClient(asynq.NewClient(redisOpts), reminderLead), nil
}

func newClient(e enqueuer, lead time.Duration) *Client {
	return &Client{client: e, lead: lead, now: func() time.Time { return time.Now().UTC() }}
}

// EnqueueSendEmail enqueues a send-email task.
func (c *Client) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	task, err := NewSendEmailTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// ScheduleReminders enqueues one reminder per unpaid installment whose due
// date is still ahead. Task IDs derive from the installment, so resubmitting
// an unchanged order does not duplicate reminders. It returns how many new
// reminders were queued.
func (c *Client) ScheduleReminders(ctx context.Context, order backend.Order) (int, error) {
	if order.EMIDetails == nil {
		return 0, nil
	}
	now := c.now()
	scheduled := 0
	for i, inst := range order.EMIDetails.Installments {
		if inst.Status == pricing.InstallmentPaid {
			continue
		}
		due, err := time.Parse(pricing.DateLayout, inst.DueDate)
		if err != nil {
			return scheduled, fmt.Errorf("installment %d: %w", i, err)
		}
		if !due.After(now) {
			continue
		}
		processAt := due.Add(-c.lead)
		if processAt.Before(now) {
			processAt = now
		}
		task, err := NewReminderTask(ReminderPayload{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			VendorName:  order.Vendor.Name,
			Index:       i,
			DueDate:     inst.DueDate,
			Amount:      inst.Amount,
		})
		if err != nil {
			return scheduled, err
		}
		_, err = c.client.EnqueueContext(ctx, task,
			asynq.Queue(QueueDefault),
			asynq.ProcessAt(processAt),
			asynq.TaskID(ReminderTaskID(order.ID, i, inst)),
		)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			continue
		}
		if err != nil {
			return scheduled, err
		}
		scheduled++
	}
	return scheduled, nil
}

// ReminderTaskID is stable for an order, installment index, due date and amount.
func ReminderTaskID(orderID string, index int, inst pricing.Installment) string {
	name := orderID + "/" + strconv.Itoa(index) + "/" + inst.DueDate + "/" + inst.Amount
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"queue":"default","pending":0,"scheduled":0}`))
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	pending, scheduled := 0, 0
	queueName := QueueDefault
	if info != nil {
		pending = info.Pending
		scheduled = info.Scheduled
		queueName = info.Queue
	}
	_, _ = w.Write([]byte(`{"queue":"` + queueName + `","pending":` + strconv.Itoa(pending) + `,"scheduled":` + strconv.Itoa(scheduled) + `}`))
}
