package ws

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var ErrNotConnected = errors.New("participant not connected")

// Channel is one live outbound connection to a participant.
type Channel interface {
	Emit(event string, payload any) error
	Close() error
}

// Registry keeps at most one channel per participant identity.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Channel
	log   zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{conns: make(map[string]Channel), log: logger}
}

// Bind stores ch for participantID, closing whatever was bound before. It
// reports whether an existing binding was replaced.
func (r *Registry) Bind(participantID string, ch Channel) bool {
	r.mu.Lock()
	old := r.conns[participantID]
	r.conns[participantID] = ch
	r.mu.Unlock()

	if old == nil || old == ch {
		return false
	}
	if err := old.Close(); err != nil {
		r.log.Debug().Err(err).Str("participant", participantID).Msg("closing replaced channel")
	}
	r.log.Info().Str("participant", participantID).Msg("channel replaced")
	return true
}

func (r *Registry) Unbind(participantID string) {
	r.mu.Lock()
	ch := r.conns[participantID]
	delete(r.conns, participantID)
	r.mu.Unlock()
	if ch != nil {
		_ = ch.Close()
	}
}

// Release drops the binding only while ch is still the bound channel, so a
// replaced connection going away does not evict its successor.
func (r *Registry) Release(participantID string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[participantID] != ch {
		return false
	}
	delete(r.conns, participantID)
	return true
}

func (r *Registry) Dispatch(participantID, event string, payload any) error {
	r.mu.RLock()
	ch := r.conns[participantID]
	r.mu.RUnlock()
	if ch == nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, participantID)
	}
	return ch.Emit(event, payload)
}

func (r *Registry) Broadcast(participantIDs []string, event string, payload any) {
	for _, id := range participantIDs {
		if err := r.Dispatch(id, event, payload); err != nil && !errors.Is(err, ErrNotConnected) {
			r.log.Debug().Err(err).Str("participant", id).Str("event", event).Msg("broadcast emit failed")
		}
	}
}

func (r *Registry) Connected(participantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[participantID] != nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
