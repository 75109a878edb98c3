package relay

import (
	"context"
	"time"

	"github.com/labgate/labgate-core/internal/infrastructure/logging"
)

// Reaper periodically collects expired pairing sessions: sessions with no
// connected peers beyond the disconnect grace period, and sessions past
// the absolute age limit regardless of connection state.
type Reaper struct {
	store  *Store
	logger *logging.Logger

	grace    time.Duration
	maxAge   time.Duration
	interval time.Duration
}

// NewReaper creates a reaper over the given store.
func NewReaper(store *Store, logger *logging.Logger, grace, maxAge, interval time.Duration) *Reaper {
	return &Reaper{
		store:    store,
		logger:   logger,
		grace:    grace,
		maxAge:   maxAge,
		interval: interval,
	}
}

// Run sweeps the store on a fixed interval until the context is cancelled.
// Intended to be launched as a goroutine from main.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("session reaper started",
		"interval", r.interval.String(),
		"disconnect_grace", r.grace.String(),
		"max_session_age", r.maxAge.String(),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("session reaper stopped")
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep performs one collection pass.
func (r *Reaper) Sweep() {
	reaped := r.store.ReapExpired(r.grace, r.maxAge)
	if len(reaped) == 0 {
		return
	}
	r.logger.Info("reaped expired pairing sessions",
		"count", len(reaped),
		"remaining", r.store.Len(),
	)
	for _, id := range reaped {
		r.logger.Debug("session reaped", "session_id", id)
	}
}
