package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultRetention is how long completed sessions are kept when no
// retention is configured.
const DefaultRetention = 24 * time.Hour

// Reap deletes completed sessions that ended more than retention ago and
// returns how many were removed. Active sessions are never reaped.
func (m *Manager) Reap(retention time.Duration) int {
	_, span := m.tracer.Start(context.Background(), "session.Reap")
	defer span.End()

	removed := m.store.Reap(m.now().Add(-retention))
	for _, id := range removed {
		m.logger.Info().Str("session_id", id).Msg("Cleaned up old session")
	}
	span.SetAttributes(attribute.Int("removed", len(removed)))
	return len(removed)
}

// RunReaper calls Reap every interval until ctx is done.
func (m *Manager) RunReaper(ctx context.Context, interval, retention time.Duration) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", interval).Dur("retention", retention).Msg("Session reaper started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Session reaper stopped")
			return
		case <-ticker.C:
			if n := m.Reap(retention); n > 0 {
				m.logger.Info().Int("removed", n).Msg("Reaped completed sessions")
			}
		}
	}
}
