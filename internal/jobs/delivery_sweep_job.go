package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/vantage/internal/service"
)

// DeliverySweepJob re-attempts webhook deliveries whose retry is due but
// whose queued task never ran.
type DeliverySweepJob struct {
	ds      service.DeliveryService
	timeout time.Duration
	now     func() time.Time
}

func NewDeliverySweepJob(ds service.DeliveryService) *DeliverySweepJob {
	return &DeliverySweepJob{
		ds:      ds,
		timeout: 5 * time.Minute,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (j *DeliverySweepJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.ds.SweepDue(ctx, j.now())
	if err != nil {
		slog.Error("delivery sweep finished with errors", "attempted", n, "error", err)
		return
	}
	if n > 0 {
		slog.Info("delivery sweep finished", "attempted", n)
	}
}
