package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskEMIReminder reminds accounts payable of an upcoming installment.
	TaskEMIReminder = "emi:reminder"
	// TaskIdempotencyCleanup purges expired submission keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(5)), nil
}

// ReminderPayload identifies one installment of one order. DueDate and Amount
// are the values at scheduling time; the handler re-reads the order before
// sending anything.
type ReminderPayload struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber,omitempty"`
	VendorName  string `json:"vendorName,omitempty"`
	Index       int    `json:"index"`
	DueDate     string `json:"dueDate"`
	Amount      string `json:"amount"`
}

// NewReminderTask constructs an installment reminder task.
func NewReminderTask(payload ReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEMIReminder, data, asynq.MaxRetry(3)), nil
}

// CleanupPayload configures an idempotency cleanup run.
type CleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask builds the cleanup task registered on the scheduler.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(CleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}
