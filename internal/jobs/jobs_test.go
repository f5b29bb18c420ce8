package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/vantage/internal/models"
	"github.com/maheshrc27/vantage/internal/service"
)

type fakeDelivery struct {
	swept []time.Time
	err   error
}

func (f *fakeDelivery) Attempt(context.Context, string) (*models.WebhookDelivery, error) {
	return nil, nil
}

func (f *fakeDelivery) SweepDue(_ context.Context, now time.Time) (int, error) {
	f.swept = append(f.swept, now)
	return 2, f.err
}

type fakePublishing struct {
	service.PublishingService
	polls int
}

func (f *fakePublishing) PollScheduled(context.Context) (int, error) {
	f.polls++
	return 0, nil
}

func TestDeliverySweepJobUsesClock(t *testing.T) {
	ds := &fakeDelivery{}
	j := NewDeliverySweepJob(ds)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	j.Run()
	ds.err = errors.New("db down")
	j.Run()

	require.Len(t, ds.swept, 2)
	assert.Equal(t, fixed, ds.swept[0])
}

func TestStatusPollJob(t *testing.T) {
	ps := &fakePublishing{}
	NewStatusPollJob(ps).Run()
	assert.Equal(t, 1, ps.polls)
}

func TestStartRejectsBadSpec(t *testing.T) {
	_, err := Start(Spec{Name: "sweep", Schedule: "not a spec", Run: func() {}})
	assert.Error(t, err)

	c, err := Start(Spec{Name: "sweep", Schedule: "@every 1m", Run: func() {}})
	require.NoError(t, err)
	c.Stop()
}
