package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/purchasing/internal/backend"
	jobmetrics "github.com/odyssey-erp/purchasing/internal/jobs"
	"github.com/odyssey-erp/purchasing/internal/pricing"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	ids   map[string]bool
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.ids == nil {
		f.ids = map[string]bool{}
	}
	for _, opt := range opts {
		if opt.Type() == asynq.TaskIDOpt {
			id := opt.Value().(string)
			if f.ids[id] {
				return nil, asynq.ErrTaskIDConflict
			}
			f.ids[id] = true
		}
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func scheduledOrder() backend.Order {
	return backend.Order{Draft: pricing.Draft{
		ID:          "po-1",
		OrderNumber: "PO-2024-001",
		Vendor:      pricing.Vendor{ID: "v-1", Name: "Acme Traders"},
		EMIDetails: &pricing.EMIDetails{
			Frequency: pricing.Monthly,
			Installments: []pricing.Installment{
				{Amount: "590.00", DueDate: "2024-02-29", Status: pricing.InstallmentPaid},
				{Amount: "590.00", DueDate: "2024-03-31", Status: pricing.InstallmentUnpaid},
				{Amount: "590.00", DueDate: "2024-04-30", Status: pricing.InstallmentUnpaid},
			},
		},
	}}
}

func TestScheduleRemindersSkipsPaidAndPast(t *testing.T) {
	fake := &fakeEnqueuer{}
	c := newClient(fake, 72*time.Hour)
	c.now = func() time.Time { return time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC) }

	n, err := c.ScheduleReminders(context.Background(), scheduledOrder())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, fake.tasks, 2)

	var p ReminderPayload
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &p))
	require.Equal(t, 1, p.Index)
	require.Equal(t, "2024-03-31", p.DueDate)

	n, err = c.ScheduleReminders(context.Background(), scheduledOrder())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestReminderTaskIDChangesWithSchedule(t *testing.T) {
	inst := pricing.Installment{Amount: "590.00", DueDate: "2024-03-31"}
	a := ReminderTaskID("po-1", 1, inst)
	require.Equal(t, a, ReminderTaskID("po-1", 1, inst))
	inst.DueDate = "2024-04-01"
	require.NotEqual(t, a, ReminderTaskID("po-1", 1, inst))
}

type stubOrders struct {
	order backend.Order
	err   error
}

func (s *stubOrders) GetOrder(ctx context.Context, id string) (backend.Order, error) {
	return s.order, s.err
}

type recordingMail struct {
	sent []SendEmailPayload
}

func (r *recordingMail) EnqueueSendEmail(ctx context.Context, p SendEmailPayload) (*asynq.TaskInfo, error) {
	r.sent = append(r.sent, p)
	return &asynq.TaskInfo{}, nil
}

func reminderTask(t *testing.T, index int, due string) *asynq.Task {
	t.Helper()
	task, err := NewReminderTask(ReminderPayload{OrderID: "po-1", Index: index, DueDate: due, Amount: "590.00"})
	require.NoError(t, err)
	return task
}

func TestReminderJobOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	mail := &recordingMail{}
	job := &ReminderJob{Orders: &stubOrders{order: scheduledOrder()}, Mail: mail, Mailbox: "ap@example.com", Metrics: metrics}

	require.NoError(t, job.Handle(context.Background(), reminderTask(t, 1, "2024-03-31")))
	require.Len(t, mail.sent, 1)
	require.Equal(t, "ap@example.com", mail.sent[0].To)
	require.Equal(t, "Installment 2/3 of PO PO-2024-001 due 2024-03-31", mail.sent[0].Subject)
	require.Contains(t, mail.sent[0].Body, "Acme Traders")
	require.Contains(t, mail.sent[0].Body, "Five Hundred and Ninety Rupees Only")

	require.NoError(t, job.Handle(context.Background(), reminderTask(t, 0, "2024-02-29")))
	require.NoError(t, job.Handle(context.Background(), reminderTask(t, 2, "2024-05-31")))
	require.Len(t, mail.sent, 1)

	job.Orders = &stubOrders{err: &backend.Error{Status: 404}}
	require.NoError(t, job.Handle(context.Background(), reminderTask(t, 1, "2024-03-31")))

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "purchasing_emi_reminders_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			counts[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
		}
	}
	require.Equal(t, 1.0, counts[ReminderSent])
	require.Equal(t, 1.0, counts[ReminderSkippedPaid])
	require.Equal(t, 2.0, counts[ReminderSkippedGone])
}

func TestReminderJobRetriesBackendFailure(t *testing.T) {
	job := &ReminderJob{Orders: &stubOrders{err: &backend.Error{Status: 503}}, Mail: &recordingMail{}}
	err := job.Handle(context.Background(), reminderTask(t, 1, "2024-03-31"))
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestReminderJobRejectsBadPayload(t *testing.T) {
	job := &ReminderJob{Orders: &stubOrders{}, Mail: &recordingMail{}}
	err := job.Handle(context.Background(), asynq.NewTask(TaskEMIReminder, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type stubPurger struct {
	olderThan time.Duration
	removed   int64
}

func (s *stubPurger) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return s.removed, nil
}

func TestCleanupJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	store := &stubPurger{removed: 4}
	job := &CleanupJob{Store: store, Metrics: metrics}

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, store.olderThan)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, DefaultRetention, store.olderThan)

	count, err := testutil.GatherAndCount(reg, "purchasing_idempotency_keys_purged_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestSMTPMailerFormatsMessage(t *testing.T) {
	var gotAddr string
	var gotMsg []byte
	m := NewSMTPMailer("127.0.0.1", 1025, "no-reply@example.com")
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotMsg = addr, msg
		return nil
	}
	require.NoError(t, m.Send(context.Background(), SendEmailPayload{To: "ap@example.com", Subject: "Due", Body: "Pay"}))
	require.Equal(t, "127.0.0.1:1025", gotAddr)
	require.True(t, strings.HasPrefix(string(gotMsg), "From: no-reply@example.com\r\n"))
	require.True(t, strings.HasSuffix(string(gotMsg), "\r\n\r\nPay"))
}

type recordingMailer struct {
	got []SendEmailPayload
}

func (r *recordingMailer) Send(ctx context.Context, p SendEmailPayload) error {
	r.got = append(r.got, p)
	return nil
}

func TestMailJob(t *testing.T) {
	mailer := &recordingMailer{}
	job := &MailJob{Mailer: mailer}
	task, err := NewSendEmailTask(SendEmailPayload{To: "ap@example.com", Subject: "Due"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, mailer.got, 1)

	task, err = NewSendEmailTask(SendEmailPayload{Subject: "Due"})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"scheduled":0}`, rec.Body.String())
}
