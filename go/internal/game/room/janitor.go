package room

import (
	"context"
	"time"

	"github.com/mcdev12/turingroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Run sweeps expired rooms every SweepInterval until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := r.deps.Clock.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("room janitor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room janitor stopped")
			return nil
		case <-ticker.Chan():
			if n := r.Sweep(); n > 0 {
				log.Info().Int("closed", n).Int("live", r.Len()).Msg("swept expired rooms")
			}
		}
	}
}

// Sweep tears down finished rooms older than FinishedTTL and waiting rooms idle for longer
// than IdleTTL. It returns how many rooms were closed.
func (r *Registry) Sweep() int {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.rooms))
	for _, e := range r.rooms {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	now := r.deps.Clock.Now()
	closed := 0
	for _, e := range entries {
		e.mu.Lock()
		if reason, ok := r.expired(e, now); ok && !e.closed {
			r.teardown(e, reason)
			closed++
		}
		e.mu.Unlock()
	}
	return closed
}

func (r *Registry) expired(e *entry, now time.Time) (string, bool) {
	room := e.state.Room
	switch room.Status {
	case models.RoomStatusFinished:
		if r.cfg.FinishedTTL > 0 && room.FinishedAt != nil && now.Sub(*room.FinishedAt) >= r.cfg.FinishedTTL {
			return ClosedExpired, true
		}
	case models.RoomStatusWaiting:
		if r.cfg.IdleTTL > 0 && now.Sub(e.activeAt) >= r.cfg.IdleTTL {
			return ClosedIdle, true
		}
	}
	return "", false
}
