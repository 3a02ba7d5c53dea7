package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aakashthirteen/football-stars/go/internal/match/broadcast"
	"github.com/aakashthirteen/football-stars/go/internal/match/checkpoint"
	"github.com/aakashthirteen/football-stars/go/internal/match/clock"
	"github.com/aakashthirteen/football-stars/go/internal/match/events"
	"github.com/rs/zerolog/log"
)

// Start kicks off a SCHEDULED match and registers its clock
func (s *Scheduler) Start(ctx context.Context, matchID string) (events.MatchState, error) {
	s.mu.RLock()
	_, live := s.matches[matchID]
	_, finished := s.finished[matchID]
	s.mu.RUnlock()
	if live {
		return events.MatchState{}, fmt.Errorf("match %s already started: %w", matchID, clock.ErrInvalidTransition)
	}
	if finished {
		return events.MatchState{}, fmt.Errorf("start match %s: %w", matchID, clock.ErrAlreadyTerminal)
	}

	rec, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return events.MatchState{}, fmt.Errorf("load match %s: %w", matchID, err)
	}
	switch rec.Status {
	case clock.StatusScheduled:
	case clock.StatusCompleted:
		return events.MatchState{}, fmt.Errorf("start match %s: %w", matchID, clock.ErrAlreadyTerminal)
	default:
		return events.MatchState{}, fmt.Errorf("match %s is %s: %w", matchID, rec.Status, clock.ErrInvalidTransition)
	}

	duration := time.Duration(rec.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = s.cfg.DefaultDuration
	}
	m := &liveMatch{clock: clock.New(matchID, duration), seq: rec.Seq}
	m.clock.HalftimeBreakDuration = s.cfg.HalftimeBreak

	// hold the match lock until kickoff commits so nobody observes a SCHEDULED clock
	m.mu.Lock()
	s.mu.Lock()
	if _, exists := s.matches[matchID]; exists || s.closed {
		s.mu.Unlock()
		m.mu.Unlock()
		return events.MatchState{}, fmt.Errorf("match %s already started: %w", matchID, clock.ErrInvalidTransition)
	}
	s.matches[matchID] = m
	s.metrics.active.Set(float64(len(s.matches)))
	s.mu.Unlock()

	now := s.clock.Now()
	jobs, err := s.kickoff(m, now, triggerManual)
	state := events.StateOf(m.clock, now)
	m.mu.Unlock()
	if err != nil {
		s.mu.Lock()
		delete(s.matches, matchID)
		s.mu.Unlock()
		return events.MatchState{}, err
	}

	log.Info().
		Str("match_id", matchID).
		Dur("duration", duration).
		Msg("match started")

	s.ensureLoop()
	s.dispatch(jobs)
	return state, nil
}

// Pause stops the match clock
func (s *Scheduler) Pause(ctx context.Context, matchID string) (events.MatchState, error) {
	return s.mutate(ctx, matchID, func(m *liveMatch, now time.Time) ([]job, error) {
		if err := m.clock.Pause(now); err != nil {
			return nil, err
		}
		m.recompute()
		s.broadcastLocked(m, events.TypeStatusChange, now)
		return s.effectsLocked(m, events.EventMatchPaused, triggerManual, now), nil
	})
}

// Resume restarts a paused match clock
func (s *Scheduler) Resume(ctx context.Context, matchID string) (events.MatchState, error) {
	return s.mutate(ctx, matchID, func(m *liveMatch, now time.Time) ([]job, error) {
		if err := m.clock.Resume(now); err != nil {
			return nil, err
		}
		m.recompute()
		s.broadcastLocked(m, events.TypeStatusChange, now)
		return s.effectsLocked(m, events.EventMatchResumed, triggerManual, now), nil
	})
}

// AddStoppageTime extends the current half by minutes and re-predicts its end
func (s *Scheduler) AddStoppageTime(ctx context.Context, matchID string, minutes int) (events.MatchState, error) {
	if minutes <= 0 {
		return events.MatchState{}, fmt.Errorf("stoppage minutes must be positive, got %d: %w", minutes, clock.ErrInvalidArgument)
	}
	return s.mutate(ctx, matchID, func(m *liveMatch, now time.Time) ([]job, error) {
		if err := m.clock.AddStoppage(time.Duration(minutes) * time.Minute); err != nil {
			return nil, err
		}
		m.recompute()

		log.Info().
			Str("match_id", matchID).
			Int("minutes", minutes).
			Int("half", m.clock.CurrentHalf).
			Msg("stoppage time added")

		s.broadcastLocked(m, events.TypeStatusChange, now)
		return s.effectsLocked(m, events.EventStoppageAdded, triggerManual, now), nil
	})
}

// ForceHalftime ends the first half now
func (s *Scheduler) ForceHalftime(ctx context.Context, matchID string) (events.MatchState, error) {
	return s.mutate(ctx, matchID, func(m *liveMatch, now time.Time) ([]job, error) {
		return s.enterHalftime(m, now, triggerManual)
	})
}

// ForceFulltime ends the second half now
func (s *Scheduler) ForceFulltime(ctx context.Context, matchID string) (events.MatchState, error) {
	return s.mutate(ctx, matchID, func(m *liveMatch, now time.Time) ([]job, error) {
		if m.clock.Phase != clock.PhaseSecondHalf && m.clock.Phase != clock.PhaseCompleted {
			return nil, fmt.Errorf("force fulltime for match %s in phase %s: %w", matchID, m.clock.Phase, clock.ErrInvalidTransition)
		}
		return s.complete(m, now, triggerManual)
	})
}

// EndMatch terminates the match from any in-play phase
func (s *Scheduler) EndMatch(ctx context.Context, matchID string) (events.MatchState, error) {
	return s.mutate(ctx, matchID, func(m *liveMatch, now time.Time) ([]job, error) {
		return s.complete(m, now, triggerTerminated)
	})
}

// StartSecondHalf ends the halftime break
func (s *Scheduler) StartSecondHalf(ctx context.Context, matchID string) (events.MatchState, error) {
	return s.mutate(ctx, matchID, func(m *liveMatch, now time.Time) ([]job, error) {
		return s.startSecondHalf(m, now, triggerManual)
	})
}

// Checkpoint persists the match's current timing state on demand
func (s *Scheduler) Checkpoint(ctx context.Context, matchID string) (events.MatchState, error) {
	return s.mutate(ctx, matchID, func(m *liveMatch, now time.Time) ([]job, error) {
		if m.clock.Phase == clock.PhaseCompleted {
			return nil, fmt.Errorf("checkpoint match %s: %w", matchID, clock.ErrAlreadyTerminal)
		}
		return []job{{matchID: matchID, checkpoint: s.checkpointLocked(m, now)}}, nil
	})
}

// GetState returns the match's current display state
func (s *Scheduler) GetState(ctx context.Context, matchID string) (events.MatchState, error) {
	s.mu.RLock()
	m, live := s.matches[matchID]
	f, finished := s.finished[matchID]
	s.mu.RUnlock()

	if live {
		m.mu.Lock()
		defer m.mu.Unlock()
		return events.StateOf(m.clock, s.clock.Now()), nil
	}
	if finished {
		return f.state, nil
	}

	rec, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return events.MatchState{}, fmt.Errorf("load match %s: %w", matchID, err)
	}
	switch rec.Status {
	case clock.StatusScheduled, clock.StatusCompleted:
		return stateFromRecord(rec, s.clock.Now()), nil
	}
	return events.MatchState{}, fmt.Errorf("match %s is %s but not running here: %w", matchID, rec.Status, clock.ErrNotFound)
}

// Subscribe attaches sink to the match and immediately sends it the current state.
// Viewers may subscribe to a SCHEDULED match and wait for kickoff.
func (s *Scheduler) Subscribe(ctx context.Context, matchID string, sink broadcast.Sink) error {
	s.mu.RLock()
	m, live := s.matches[matchID]
	f, finished := s.finished[matchID]
	s.mu.RUnlock()

	if live {
		m.mu.Lock()
		defer m.mu.Unlock()
		now := s.clock.Now()
		if m.clock.Phase == clock.PhaseCompleted {
			return sendFinal(sink, matchID, events.StateOf(m.clock, now), now)
		}
		s.registry.Subscribe(matchID, sink)
		return s.sendCurrent(matchID, sink, events.NewStateMessage(events.TypeTimerUpdate, m.clock, now))
	}
	if finished {
		return sendFinal(sink, matchID, f.state, s.clock.Now())
	}

	rec, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("load match %s: %w", matchID, err)
	}
	now := s.clock.Now()
	switch rec.Status {
	case clock.StatusScheduled:
		// Start registers the clock under s.mu before its kickoff broadcast, so a
		// sink added under the read lock either sees kickoff or takes the live path.
		s.mu.RLock()
		_, live := s.matches[matchID]
		_, finished := s.finished[matchID]
		if live || finished {
			s.mu.RUnlock()
			return s.Subscribe(ctx, matchID, sink)
		}
		s.registry.Subscribe(matchID, sink)
		err := s.sendCurrent(matchID, sink, events.StateMessage{
			Type:      events.TypeStatusChange,
			MatchID:   matchID,
			Timestamp: now.UnixMilli(),
			State:     stateFromRecord(rec, now),
		})
		s.mu.RUnlock()
		return err
	case clock.StatusCompleted:
		return sendFinal(sink, matchID, stateFromRecord(rec, now), now)
	}
	return fmt.Errorf("match %s is %s but not running here: %w", matchID, rec.Status, clock.ErrNotFound)
}

// Unsubscribe detaches sink. The match clock is unaffected.
func (s *Scheduler) Unsubscribe(matchID string, sink broadcast.Sink) {
	s.registry.Unsubscribe(matchID, sink)
}

func (s *Scheduler) sendCurrent(matchID string, sink broadcast.Sink, msg events.StateMessage) error {
	data, err := events.Encode(msg)
	if err != nil {
		s.registry.Unsubscribe(matchID, sink)
		return fmt.Errorf("encode state for match %s: %w", matchID, err)
	}
	if err := sink.Send(data); err != nil {
		s.registry.Unsubscribe(matchID, sink)
		return fmt.Errorf("send state for match %s: %w", matchID, err)
	}
	return nil
}

func sendFinal(sink broadcast.Sink, matchID string, state events.MatchState, now time.Time) error {
	defer sink.Close()
	data, err := events.Encode(events.StateMessage{
		Type:      events.TypeFulltime,
		MatchID:   matchID,
		Timestamp: now.UnixMilli(),
		State:     state,
	})
	if err != nil {
		return fmt.Errorf("encode final state for match %s: %w", matchID, err)
	}
	return sink.Send(data)
}

// mutate applies fn to a registered match under its lock, then retires and
// dispatches outside the lock
func (s *Scheduler) mutate(ctx context.Context, matchID string, fn func(m *liveMatch, now time.Time) ([]job, error)) (events.MatchState, error) {
	m, err := s.lookup(ctx, matchID)
	if err != nil {
		return events.MatchState{}, err
	}

	m.mu.Lock()
	now := s.clock.Now()
	jobs, err := fn(m, now)
	state := events.StateOf(m.clock, now)
	done := m.clock.Phase == clock.PhaseCompleted
	m.mu.Unlock()

	if err != nil {
		return events.MatchState{}, err
	}
	if done {
		s.retire(matchID, state, now)
	}
	s.dispatch(jobs)
	return state, nil
}

// lookup finds a registered match, or explains why there is none
func (s *Scheduler) lookup(ctx context.Context, matchID string) (*liveMatch, error) {
	s.mu.RLock()
	m, live := s.matches[matchID]
	_, finished := s.finished[matchID]
	s.mu.RUnlock()

	if live {
		return m, nil
	}
	if finished {
		return nil, fmt.Errorf("match %s: %w", matchID, clock.ErrAlreadyTerminal)
	}

	rec, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, clock.ErrNotFound) {
			return nil, fmt.Errorf("match %s: %w", matchID, clock.ErrNotFound)
		}
		return nil, fmt.Errorf("load match %s: %w", matchID, err)
	}
	switch rec.Status {
	case clock.StatusScheduled:
		return nil, fmt.Errorf("match %s has not started: %w", matchID, clock.ErrInvalidTransition)
	case clock.StatusCompleted:
		return nil, fmt.Errorf("match %s: %w", matchID, clock.ErrAlreadyTerminal)
	}
	return nil, fmt.Errorf("match %s is %s but not running here: %w", matchID, rec.Status, clock.ErrNotFound)
}

func stateFromRecord(rec checkpoint.Record, now time.Time) events.MatchState {
	st := events.MatchState{
		Status:              rec.Status,
		CurrentHalf:         max(rec.CurrentHalf, 1),
		AddedTimeFirstHalf:  rec.AddedTimeFirstHalf,
		AddedTimeSecondHalf: rec.AddedTimeSecondHalf,
		ServerTime:          now.UnixMilli(),
	}
	if cp := rec.Checkpoint; cp != nil {
		st.CurrentMinute, st.CurrentSecond = clock.Display(cp.Elapsed())
	}
	return st
}
