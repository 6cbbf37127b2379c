package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/purchasing/internal/backend"
	jobmetrics "github.com/odyssey-erp/purchasing/internal/jobs"
	"github.com/odyssey-erp/purchasing/internal/money"
	"github.com/odyssey-erp/purchasing/internal/pricing"
)

// Reminder outcomes.
const (
	ReminderSent        = "sent"
	ReminderSkippedPaid = "skipped_paid"
	ReminderSkippedGone = "skipped_gone"
)

// OrderSource reads the current state of an order.
type OrderSource interface {
	GetOrder(ctx context.Context, id string) (backend.Order, error)
}

// MailEnqueuer queues an outgoing mail.
type MailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// ReminderJob mails accounts payable before an installment falls due.
type ReminderJob struct {
	Orders  OrderSource
	Mail    MailEnqueuer
	Mailbox string
	// Authorization is forwarded to the backend; the worker has no user session.
	Authorization string
	Metrics       *jobmetrics.Metrics
	Logger        *slog.Logger
}

// Handle processes TaskEMIReminder tasks. The order is re-read first: a
// reminder for a paid, removed or rescheduled installment is dropped.
func (j *ReminderJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Orders == nil || j.Mail == nil {
		return errors.New("emi reminder: handler not configured")
	}
	var payload ReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.OrderID == "" {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskEMIReminder)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := jobLogger(j.Logger, TaskEMIReminder).With(slog.String("order_id", payload.OrderID), slog.Int("installment", payload.Index))

	order, err := j.Orders.GetOrder(backend.WithAuthorization(ctx, j.Authorization), payload.OrderID)
	if errors.Is(err, backend.ErrNotFound) {
		j.Metrics.AddReminder(ReminderSkippedGone)
		logger.Info("order no longer exists")
		return nil
	}
	if err != nil {
		return err
	}

	inst, ok := installment(order, payload)
	if !ok {
		j.Metrics.AddReminder(ReminderSkippedGone)
		logger.Info("installment no longer scheduled")
		return nil
	}
	if inst.Status == pricing.InstallmentPaid {
		j.Metrics.AddReminder(ReminderSkippedPaid)
		logger.Info("installment already paid")
		return nil
	}

	if _, err := j.Mail.EnqueueSendEmail(ctx, reminderMail(j.Mailbox, order, payload.Index, inst)); err != nil {
		return err
	}
	j.Metrics.AddReminder(ReminderSent)
	logger.Info("installment reminder queued", slog.String("due_date", inst.DueDate))
	return nil
}

func installment(order backend.Order, payload ReminderPayload) (pricing.Installment, bool) {
	if order.EMIDetails == nil || payload.Index < 0 || payload.Index >= len(order.EMIDetails.Installments) {
		return pricing.Installment{}, false
	}
	inst := order.EMIDetails.Installments[payload.Index]
	if inst.DueDate != payload.DueDate {
		return pricing.Installment{}, false
	}
	return inst, true
}

func reminderMail(to string, order backend.Order, index int, inst pricing.Installment) SendEmailPayload {
	ref := order.OrderNumber
	if ref == "" {
		ref = order.ID
	}
	count := len(order.EMIDetails.Installments)
	var b strings.Builder
	fmt.Fprintf(&b, "Purchase order %s", ref)
	if order.Vendor.Name != "" {
		fmt.Fprintf(&b, " (%s)", order.Vendor.Name)
	}
	fmt.Fprintf(&b, " has installment %d of %d due on %s.\n\n", index+1, count, inst.DueDate)
	fmt.Fprintf(&b, "Amount: Rs. %s\n", inst.Amount)
	if amt, err := money.Parse(inst.Amount); err == nil {
		fmt.Fprintf(&b, "In words: %s\n", money.InWords(amt))
	}
	fmt.Fprintf(&b, "Frequency: %s\n", order.EMIDetails.Frequency)
	return SendEmailPayload{
		To:      to,
		Subject: fmt.Sprintf("Installment %d/%d of PO %s due %s", index+1, count, ref, inst.DueDate),
		Body:    b.String(),
	}
}
