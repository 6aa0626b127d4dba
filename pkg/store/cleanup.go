package store

import (
	"context"
	"fmt"
	"time"

	"github.com/calloway/backlot/internal/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultMaxIdle is how long a session may sit untouched before cleanup
const DefaultMaxIdle = 30 * 24 * time.Hour

// CleanupService periodically removes idle sessions from the store. Session
// deletion is a store concern; the request path never deletes sessions.
type CleanupService struct {
	store    *AgentStore
	schedule string
	maxIdle  time.Duration
	cron     *cron.Cron
	logger   zerolog.Logger
}

// NewCleanupService creates a cleanup service. schedule is a cron
// expression; an empty schedule defaults to daily at 03:00.
func NewCleanupService(store *AgentStore, schedule string, maxIdle time.Duration, logger zerolog.Logger) *CleanupService {
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}
	return &CleanupService{
		store:    store,
		schedule: schedule,
		maxIdle:  maxIdle,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start schedules the cleanup job
func (c *CleanupService) Start() error {
	_, err := c.cron.AddFunc(c.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		c.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule session cleanup: %w", err)
	}

	c.cron.Start()
	c.logger.Info().Str("schedule", c.schedule).Dur("max_idle", c.maxIdle).Msg("Session cleanup scheduled")
	return nil
}

// RunOnce performs one cleanup pass
func (c *CleanupService) RunOnce(ctx context.Context) {
	cutoff := time.Now().Add(-c.maxIdle)

	deleted, err := c.store.DeleteIdleSessions(ctx, cutoff)
	if err != nil {
		c.logger.Error().Err(err).Msg("Session cleanup pass failed")
		return
	}

	if remaining, err := c.store.CountSessions(ctx); err == nil {
		observability.SetActiveSessions(remaining)
	}

	if deleted > 0 {
		c.logger.Info().Int("deleted", deleted).Time("cutoff", cutoff).Msg("Idle sessions removed")
	}
}

// Stop stops the scheduler, waiting for a running pass to finish
func (c *CleanupService) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
	c.logger.Info().Msg("Session cleanup stopped")
}
