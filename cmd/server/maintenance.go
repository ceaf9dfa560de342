package main

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// maintenanceJob drops idle in-memory state and reports how many entries it
// removed.
type maintenanceJob struct {
	name string
	run  func() int
}

// startMaintenance runs every job on schedule (standard cron syntax or
// descriptors such as "@every 10m"). The returned func stops the scheduler
// and waits for a running pass to finish.
func startMaintenance(schedule string, logger *slog.Logger, jobs ...maintenanceJob) (func(), error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	_, err := c.AddFunc(schedule, func() {
		for _, job := range jobs {
			if removed := job.run(); removed > 0 {
				logger.Debug("maintenance pass", "job", job.name, "removed", removed)
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}

	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
