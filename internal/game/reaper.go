package game

import (
	"context"
	"time"
)

// Reap discards sessions created more than StaleAfter before now, cancelling
// their schedulers. Bound connections are left alone.
func (m *Manager) Reap(now time.Time) int {
	cutoff := now.Add(-m.cfg.StaleAfter)

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for code, s := range m.sessions {
		if s.CreatedAt.Before(cutoff) {
			running := m.schedulers[code] != nil
			m.deleteLocked(code)
			n++
			m.log.Info().Str("code", code).Bool("schedulerCancelled", running).Msg("session reaped")
		}
	}
	return n
}

// RunReaper sweeps every ReapInterval until ctx is done.
func (m *Manager) RunReaper(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Reap(m.now())
		}
	}
}
