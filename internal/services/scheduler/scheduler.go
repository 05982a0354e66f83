// Package scheduler runs periodic queue maintenance so a long-lived worker
// does not rely solely on boot-time recovery.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/temrb/context-crawler/internal/common"
	"github.com/temrb/context-crawler/internal/interfaces"
)

// Maintenance periodically resets stuck entries and purges old terminal ones
type Maintenance struct {
	queue  interfaces.QueueStorage
	config common.QueueConfig
	cron   *cron.Cron
	logger arbor.ILogger
}

// New creates the maintenance scheduler
func New(queue interfaces.QueueStorage, config common.QueueConfig, logger arbor.ILogger) *Maintenance {
	return &Maintenance{
		queue:  queue,
		config: config,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start registers the maintenance schedule. An empty cron spec disables it.
func (m *Maintenance) Start() error {
	spec := m.config.MaintenanceCron
	if spec == "" {
		m.logger.Debug().Msg("Queue maintenance schedule disabled")
		return nil
	}

	if _, err := m.cron.AddFunc(spec, m.run); err != nil {
		return fmt.Errorf("invalid maintenance cron spec %q: %w", spec, err)
	}

	m.cron.Start()
	m.logger.Info().Str("schedule", spec).Msg("Queue maintenance scheduled")
	return nil
}

// Stop halts the schedule, waiting for a running maintenance pass
func (m *Maintenance) Stop() {
	<-m.cron.Stop().Done()
}

func (m *Maintenance) run() {
	ctx := context.Background()

	reset, err := m.queue.ResetStuck(ctx, m.config.JobTimeout())
	if err != nil {
		m.logger.Warn().Err(err).Msg("Maintenance stuck-reset failed")
	}

	cleaned, err := m.queue.CleanupOld(ctx, m.config.CleanupAgeDuration())
	if err != nil {
		m.logger.Warn().Err(err).Msg("Maintenance cleanup failed")
	}

	if reset > 0 || cleaned > 0 {
		m.logger.Info().
			Int("reset_stuck", reset).
			Int("cleaned_up", cleaned).
			Msg("Queue maintenance pass complete")
	}
}
