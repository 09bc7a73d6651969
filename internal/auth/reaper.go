package auth

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// SessionReaper periodically removes expired sessions. Expired sessions are
// already ignored by ResolveSession; the reaper only keeps the table small.
type SessionReaper struct {
	db       *Database
	interval time.Duration
	now      func() time.Time
}

func NewSessionReaper(service *Service, interval time.Duration) *SessionReaper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &SessionReaper{
		db:       service.db,
		interval: interval,
		now:      service.now,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (r *SessionReaper) Start(ctx context.Context) {
	logger := log.With().Str("component", "session_reaper").Logger()
	logger.Info().Dur("interval", r.interval).Msg("starting session reaper")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down session reaper")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to purge expired sessions")
			}
		}
	}
}

// Sweep deletes expired sessions once and reports how many were removed.
func (r *SessionReaper) Sweep(ctx context.Context) (int64, error) {
	removed, err := r.db.DeleteExpiredSessions(ctx, r.now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Debug().Str("component", "session_reaper").Int64("removed", removed).Msg("purged expired sessions")
	}
	return removed, nil
}
