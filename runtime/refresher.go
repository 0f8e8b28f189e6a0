// Package runtime runs advisord's background maintenance: periodic MCP
// catalog refreshes and session sweeps on a cron schedule.
package runtime

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/advisordesk/advisord/mcp"
	"github.com/advisordesk/advisord/sessions"
)

// DefaultSchedule refreshes catalogs and sweeps sessions every five minutes.
const DefaultSchedule = "@every 5m"

// Refresher periodically re-pings registered MCP servers, refreshes their
// tool catalogs, and evicts idle chat sessions.
type Refresher struct {
	manager  *mcp.Manager
	sessions sessions.Store
	schedule string
	logger   zerolog.Logger
	cron     *cron.Cron
}

// NewRefresher creates a refresher on the given cron schedule. An empty
// schedule uses the default.
func NewRefresher(manager *mcp.Manager, store sessions.Store, schedule string, logger zerolog.Logger) *Refresher {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Refresher{
		manager:  manager,
		sessions: store,
		schedule: schedule,
		logger:   logger.With().Str("component", "refresher").Logger(),
	}
}

// Start validates the schedule and begins the background runs. The refresher
// stops when ctx is cancelled.
func (r *Refresher) Start(ctx context.Context) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(r.schedule, func() { r.runOnce(ctx) })
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", r.schedule, err)
	}
	r.cron.Start()
	r.logger.Info().Str("schedule", r.schedule).Msg("Background refresher started")

	go func() {
		<-ctx.Done()
		stopCtx := r.cron.Stop()
		<-stopCtx.Done()
		r.logger.Info().Msg("Background refresher stopped")
	}()
	return nil
}

// runOnce performs one maintenance pass.
func (r *Refresher) runOnce(ctx context.Context) {
	r.manager.RefreshAll(ctx)
	if swept := r.sessions.Sweep(); swept > 0 {
		r.logger.Info().Int("sessions", swept).Msg("Swept idle sessions")
	}
	r.logger.Debug().Msg("Maintenance pass completed")
}
