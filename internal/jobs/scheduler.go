package job

import (
	"fmt"

	"github.com/robfig/cron"
)

type Spec struct {
	Name     string
	Schedule string
	Run      func()
}

// Start registers every spec on a new cron runner and starts it. The
// caller stops the runner on shutdown.
func Start(specs ...Spec) (*cron.Cron, error) {
	c := cron.New()
	for _, s := range specs {
		if err := c.AddFunc(s.Schedule, s.Run); err != nil {
			return nil, fmt.Errorf("scheduling %s job %q: %w", s.Name, s.Schedule, err)
		}
	}
	c.Start()
	return c, nil
}
