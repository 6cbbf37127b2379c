package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/purchasing/internal/jobs"
)

// DefaultRetention keeps submission keys for a week.
const DefaultRetention = 7 * 24 * time.Hour

// KeyPurger removes idempotency keys older than a cutoff.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupJob purges expired idempotency keys.
type CleanupJob struct {
	Store   KeyPurger
	Metrics *jobmetrics.Metrics
	Logger  *slog.Logger
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *CleanupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload CleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Retention <= 0 {
		payload.Retention = DefaultRetention
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	removed, err := j.Store.Cleanup(ctx, payload.Retention)
	if err != nil {
		jobLogger(j.Logger, TaskIdempotencyCleanup).Error("purge idempotency keys", slog.Any("error", err))
		return err
	}
	j.Metrics.AddPurgedKeys(removed)
	jobLogger(j.Logger, TaskIdempotencyCleanup).Info("purged idempotency keys", slog.Int64("removed", removed), slog.Duration("retention", payload.Retention))
	return nil
}
