package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/vantage/internal/service"
)

type StatusPollJob struct {
	ps      service.PublishingService
	timeout time.Duration
}

func NewStatusPollJob(ps service.PublishingService) *StatusPollJob {
	return &StatusPollJob{ps: ps, timeout: 10 * time.Minute}
}

func (j *StatusPollJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.ps.PollScheduled(ctx)
	if err != nil {
		slog.Info(err.Error())
		return
	}
	slog.Info("scheduled posts polled", "refreshed", n)
}
