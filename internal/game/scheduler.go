package game

import (
	"context"
	"time"
)

type outgoing struct {
	participantID string
	transition    Transition
}

// launch registers a cancellable scheduler for s and starts it.
func (m *Manager) launch(s *SessionCtx) {
	ctx, cancel := context.WithCancel(m.base)
	t := &task{cancel: cancel}

	m.mu.Lock()
	if old := m.schedulers[s.Code]; old != nil {
		old.cancel()
	}
	m.schedulers[s.Code] = t
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.release(s.Code, t)
		m.runScheduler(ctx, s)
	}()
}

func (m *Manager) release(code string, t *task) {
	t.cancel()
	m.mu.Lock()
	if m.schedulers[code] == t {
		delete(m.schedulers, code)
	}
	m.mu.Unlock()
}

// Running reports whether a scheduler is active for the session.
func (m *Manager) Running(code string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schedulers[code] != nil
}

func (m *Manager) runScheduler(ctx context.Context, s *SessionCtx) {
	logger := m.log.With().Str("code", s.Code).Logger()
	for {
		round, ids := s.current()
		if round > 0 {
			m.dispatch.Broadcast(ids, EventSubmission, nil)
			if !sleep(ctx, m.cfg.SubmitWindow) {
				logger.Info().Int("round", round).Msg("scheduler cancelled")
				return
			}
		}

		out, phase, rec := s.advance(m.now())
		for _, o := range out {
			if err := m.dispatch.Dispatch(o.participantID, EventTransition, o.transition); err != nil {
				logger.Debug().Err(err).Str("participant", o.participantID).Int("round", phase.Index).Msg("transition not delivered")
			}
		}
		logger.Info().Int("round", phase.Index).Str("phase", string(phase.Type)).Msg("phase transition")

		if phase.Type == PhaseReview {
			m.archive(rec)
			return
		}
		if !sleep(ctx, m.cfg.RoundDelay) {
			logger.Info().Int("round", phase.Index).Msg("scheduler cancelled")
			return
		}
	}
}

// archive hands the finished session to the archiver without blocking the
// scheduler.
func (m *Manager) archive(rec *Record) {
	if m.archiver == nil || rec == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ArchiveTimeout)
		defer cancel()
		if err := m.archiver.Archive(ctx, *rec); err != nil {
			m.log.Error().Err(err).Str("code", rec.Code).Msg("archive failed")
			return
		}
		m.log.Info().Str("code", rec.Code).Int("chains", len(rec.Chains)).Msg("session archived")
	}()
}

func (s *SessionCtx) current() (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roundIx, append([]string(nil), s.participants...)
}

// advance computes the next round's instructions for every participant. When
// the next round is the review the session is marked complete and a snapshot
// is returned; otherwise the round index moves forward.
func (s *SessionCtx) advance(now time.Time) ([]outgoing, Phase, *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.participants)
	next := PhaseFor(s.roundIx+1, n)

	var history []Chain
	if next.Type == PhaseReview {
		history = copyChains(s.chains)
	}

	out := make([]outgoing, 0, n)
	for pos, id := range s.participants {
		tr := Transition{Round: next.Index, Phase: next.Type, StartedAt: now}
		switch next.Type {
		case PhaseReview:
			tr.Chains = history
		case PhasePrompt, PhaseDraw, PhaseGuess:
			ch := s.chains[ChainForParticipant(pos, next.Index, n)]
			tr.ChainID = ch.ID
			if next.Type == PhaseDraw {
				tr.Prompt = latest(ch, LinkPrompt).Text
			} else if next.Type == PhaseGuess {
				tr.Drawing = latest(ch, LinkDrawing).ImageURL
			}
		}
		out = append(out, outgoing{participantID: id, transition: tr})
	}

	if next.Type == PhaseReview {
		s.complete = true
		rec := s.snapshotLocked()
		return out, next, &rec
	}
	s.roundIx = next.Index
	return out, next, nil
}

func latest(ch *Chain, kind LinkKind) Link {
	for i := len(ch.Links) - 1; i >= 0; i-- {
		if ch.Links[i].Kind == kind {
			return ch.Links[i]
		}
	}
	return Link{}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
