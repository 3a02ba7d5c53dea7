package clock

import "time"

// EventKind tags a predicted phase-transition trigger
type EventKind string

const (
	EventHalftime EventKind = "HALFTIME"
	EventFulltime EventKind = "FULLTIME"
)

// From is the phase a clock must still be in for the event to take effect
func (k EventKind) From() Phase {
	if k == EventHalftime {
		return PhaseFirstHalf
	}
	return PhaseSecondHalf
}

// PredictedEvent is an at-most-once transition trigger for one match
type PredictedEvent struct {
	MatchID  string
	Kind     EventKind
	FireAt   time.Duration // elapsed offset at which the event fires
	Executed bool
}

// Due reports whether the event should fire at the given elapsed time
func (e PredictedEvent) Due(elapsed time.Duration) bool {
	return !e.Executed && elapsed >= e.FireAt
}

// Predict derives the pending events for the clock's current phase.
//
// The second-half segment is re-baselined so that it starts reading
// HalfDuration, so FULLTIME fires at HalfDuration + HalfDuration + stoppage
// on that same elapsed scale.
func Predict(c MatchClock) []PredictedEvent {
	switch c.Phase {
	case PhaseFirstHalf:
		return []PredictedEvent{{
			MatchID: c.MatchID,
			Kind:    EventHalftime,
			FireAt:  c.HalfDuration + c.FirstHalfStoppage,
		}}
	case PhaseSecondHalf:
		return []PredictedEvent{{
			MatchID: c.MatchID,
			Kind:    EventFulltime,
			FireAt:  c.HalfDuration + c.HalfDuration + c.SecondHalfStoppage,
		}}
	}
	return nil
}
