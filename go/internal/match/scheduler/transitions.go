package scheduler

import (
	"fmt"
	"time"

	"github.com/aakashthirteen/football-stars/go/internal/match/checkpoint"
	"github.com/aakashthirteen/football-stars/go/internal/match/clock"
	"github.com/aakashthirteen/football-stars/go/internal/match/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Transition triggers, used for metrics labels and published events
const (
	triggerPredicted  = "predicted"
	triggerManual     = "manual"
	triggerAuto       = "auto"
	triggerTerminated = "terminated"
)

// Every transition below runs with m.mu held. Predicted and manual triggers
// share these functions, so there is exactly one code path per transition.

func (s *Scheduler) fire(m *liveMatch, kind clock.EventKind, now time.Time, trigger string) ([]job, error) {
	switch kind {
	case clock.EventHalftime:
		return s.enterHalftime(m, now, trigger)
	case clock.EventFulltime:
		return s.complete(m, now, trigger)
	}
	return nil, fmt.Errorf("unknown event kind %q", kind)
}

func (s *Scheduler) kickoff(m *liveMatch, now time.Time, trigger string) ([]job, error) {
	if err := m.clock.Kickoff(now); err != nil {
		return nil, err
	}
	m.recompute()
	s.metrics.transitions.WithLabelValues("kickoff", trigger).Inc()
	s.broadcastLocked(m, events.TypeStatusChange, now)
	return s.effectsLocked(m, events.EventMatchStarted, trigger, now), nil
}

func (s *Scheduler) enterHalftime(m *liveMatch, now time.Time, trigger string) ([]job, error) {
	if err := m.clock.EnterHalftime(now); err != nil {
		return nil, err
	}
	m.recompute()
	s.metrics.transitions.WithLabelValues("halftime", trigger).Inc()

	log.Info().
		Str("match_id", m.clock.MatchID).
		Str("trigger", trigger).
		Dur("elapsed", m.clock.Elapsed(now)).
		Msg("halftime")

	s.broadcastLocked(m, events.TypeHalftime, now)
	return s.effectsLocked(m, events.EventHalftimeStarted, trigger, now), nil
}

func (s *Scheduler) startSecondHalf(m *liveMatch, now time.Time, trigger string) ([]job, error) {
	if err := m.clock.StartSecondHalf(now); err != nil {
		return nil, err
	}
	m.recompute()
	s.metrics.transitions.WithLabelValues("second_half", trigger).Inc()

	log.Info().
		Str("match_id", m.clock.MatchID).
		Str("trigger", trigger).
		Msg("second half started")

	s.broadcastLocked(m, events.TypeStatusChange, now)
	return s.effectsLocked(m, events.EventSecondHalfStarted, trigger, now), nil
}

// complete ends the match. The final broadcast is queued before the
// subscriber set is torn down.
func (s *Scheduler) complete(m *liveMatch, now time.Time, trigger string) ([]job, error) {
	if err := m.clock.Complete(now); err != nil {
		return nil, err
	}
	m.recompute()
	s.metrics.transitions.WithLabelValues("fulltime", trigger).Inc()

	log.Info().
		Str("match_id", m.clock.MatchID).
		Str("trigger", trigger).
		Dur("elapsed", m.clock.Elapsed(now)).
		Msg("fulltime")

	s.broadcastLocked(m, events.TypeFulltime, now)
	s.registry.CloseMatch(m.clock.MatchID)
	return s.effectsLocked(m, events.EventMatchCompleted, trigger, now), nil
}

// broadcastLocked encodes the current state once and queues it on every sink.
// Periodic updates for matches nobody is watching are skipped.
func (s *Scheduler) broadcastLocked(m *liveMatch, t events.MessageType, now time.Time) {
	if t == events.TypeTimerUpdate && s.registry.Count(m.clock.MatchID) == 0 {
		return
	}
	data, err := events.Encode(events.NewStateMessage(t, m.clock, now))
	if err != nil {
		log.Error().Err(err).Str("match_id", m.clock.MatchID).Msg("failed to encode state message")
		return
	}
	n := s.registry.Broadcast(m.clock.MatchID, data)
	s.metrics.broadcasts.WithLabelValues(string(t)).Inc()

	log.Debug().
		Str("match_id", m.clock.MatchID).
		Str("type", string(t)).
		Int("subscribers", n).
		Msg("state broadcasted")
}

func (s *Scheduler) checkpointLocked(m *liveMatch, now time.Time) *checkpoint.Checkpoint {
	m.seq++
	m.lastCheckpoint = now
	cp := checkpoint.Snapshot(m.clock, m.seq, now)
	return &cp
}

// effectsLocked builds the checkpoint and bus event for a committed change.
// They are handed to the dispatch workers after m.mu is released.
func (s *Scheduler) effectsLocked(m *liveMatch, t events.EventType, trigger string, now time.Time) []job {
	cp := s.checkpointLocked(m, now)
	evt := &events.TransitionEvent{
		ID:        uuid.New().String(),
		MatchID:   m.clock.MatchID,
		Type:      t,
		Seq:       cp.Seq,
		Trigger:   trigger,
		Timestamp: now,
		State:     events.StateOf(m.clock, now),
	}
	return []job{{matchID: m.clock.MatchID, checkpoint: cp, event: evt}}
}
