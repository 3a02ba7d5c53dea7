package clock

import (
	"fmt"
	"time"
)

// Phase is a match's position in its lifecycle. Phases only move forward.
type Phase string

const (
	PhaseScheduled     Phase = "SCHEDULED"
	PhaseFirstHalf     Phase = "FIRST_HALF"
	PhaseHalftimeBreak Phase = "HALFTIME_BREAK"
	PhaseSecondHalf    Phase = "SECOND_HALF"
	PhaseCompleted     Phase = "COMPLETED"
)

var phaseOrder = map[Phase]int{
	PhaseScheduled:     0,
	PhaseFirstHalf:     1,
	PhaseHalftimeBreak: 2,
	PhaseSecondHalf:    3,
	PhaseCompleted:     4,
}

// Before reports whether p comes strictly before other in the lifecycle
func (p Phase) Before(other Phase) bool {
	return phaseOrder[p] < phaseOrder[other]
}

// Running reports whether match time can accumulate in this phase
func (p Phase) Running() bool {
	return p == PhaseFirstHalf || p == PhaseSecondHalf
}

// Status is the coarse lifecycle status exposed to viewers and persisted alongside checkpoints
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusLive      Status = "LIVE"
	StatusHalftime  Status = "HALFTIME"
	StatusCompleted Status = "COMPLETED"
)

// Status maps a phase to its lifecycle status
func (p Phase) Status() Status {
	switch p {
	case PhaseFirstHalf, PhaseSecondHalf:
		return StatusLive
	case PhaseHalftimeBreak:
		return StatusHalftime
	case PhaseCompleted:
		return StatusCompleted
	default:
		return StatusScheduled
	}
}

// PhaseFor resolves the in-play phase from a persisted status and half
func PhaseFor(status Status, half int) (Phase, error) {
	switch status {
	case StatusScheduled:
		return PhaseScheduled, nil
	case StatusLive:
		if half >= 2 {
			return PhaseSecondHalf, nil
		}
		return PhaseFirstHalf, nil
	case StatusHalftime:
		return PhaseHalftimeBreak, nil
	case StatusCompleted:
		return PhaseCompleted, nil
	}
	return "", fmt.Errorf("unknown match status %q", status)
}

// MatchClock is the timing state of one live match.
//
// Elapsed is always derived from StartedAt and the pause bookkeeping; there is
// no independently incremented counter.
type MatchClock struct {
	MatchID       string
	StartedAt     time.Time
	TotalDuration time.Duration
	HalfDuration  time.Duration
	Phase         Phase
	CurrentHalf   int
	IsActive      bool

	FirstHalfStoppage  time.Duration
	SecondHalfStoppage time.Duration

	// PausedAt is set iff the match is paused
	PausedAt    *time.Time
	TotalPaused time.Duration

	// FrozenAt stops the clock during the halftime break and after completion
	FrozenAt *time.Time

	HalftimeBreakStartedAt *time.Time
	HalftimeBreakDuration  time.Duration
}

// New returns a SCHEDULED clock for a match of the given total duration
func New(matchID string, total time.Duration) MatchClock {
	return MatchClock{
		MatchID:       matchID,
		TotalDuration: total,
		HalfDuration:  total / 2,
		Phase:         PhaseScheduled,
		CurrentHalf:   1,
	}
}

// Elapsed returns match time accumulated in the current timeline segment.
func (c MatchClock) Elapsed(now time.Time) time.Duration {
	if c.StartedAt.IsZero() {
		return 0
	}
	running := now.Sub(c.StartedAt) - c.TotalPaused
	if c.PausedAt != nil {
		running -= now.Sub(*c.PausedAt)
	}
	if c.FrozenAt != nil {
		running -= now.Sub(*c.FrozenAt)
	}
	if running < 0 {
		return 0
	}
	return running
}

// IsPaused reports whether the match is paused by an operator
func (c MatchClock) IsPaused() bool {
	return c.PausedAt != nil
}

// Stoppage returns the stoppage time of the given half
func (c MatchClock) Stoppage(half int) time.Duration {
	if half >= 2 {
		return c.SecondHalfStoppage
	}
	return c.FirstHalfStoppage
}

// Display converts an elapsed duration to the minute and second shown to viewers
func Display(elapsed time.Duration) (minute, second int) {
	ms := elapsed.Milliseconds()
	return int(ms / 60000), int((ms % 60000) / 1000)
}

// Pause stops elapsed time from accumulating
func (c *MatchClock) Pause(now time.Time) error {
	if !c.Phase.Running() {
		return fmt.Errorf("pause match %s in phase %s: %w", c.MatchID, c.Phase, ErrInvalidTransition)
	}
	if c.PausedAt != nil {
		return fmt.Errorf("match %s already paused: %w", c.MatchID, ErrInvalidTransition)
	}
	at := now
	c.PausedAt = &at
	c.IsActive = false
	return nil
}

// Resume folds the current pause into TotalPaused and restarts the clock
func (c *MatchClock) Resume(now time.Time) error {
	if c.PausedAt == nil {
		return fmt.Errorf("match %s is not paused: %w", c.MatchID, ErrInvalidTransition)
	}
	c.foldPause(now)
	c.IsActive = true
	return nil
}

// AddStoppage grows the stoppage time of the half currently being played
func (c *MatchClock) AddStoppage(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("stoppage for match %s must be positive, got %s: %w", c.MatchID, d, ErrInvalidArgument)
	}
	switch c.Phase {
	case PhaseFirstHalf:
		c.FirstHalfStoppage += d
	case PhaseSecondHalf:
		c.SecondHalfStoppage += d
	case PhaseCompleted:
		return fmt.Errorf("add stoppage to match %s: %w", c.MatchID, ErrAlreadyTerminal)
	default:
		return fmt.Errorf("add stoppage to match %s in phase %s: %w", c.MatchID, c.Phase, ErrInvalidTransition)
	}
	return nil
}

// Kickoff starts the first half
func (c *MatchClock) Kickoff(now time.Time) error {
	if c.Phase != PhaseScheduled {
		return c.transitionError(PhaseFirstHalf)
	}
	c.StartedAt = now
	c.TotalPaused = 0
	c.PausedAt = nil
	c.FrozenAt = nil
	c.Phase = PhaseFirstHalf
	c.CurrentHalf = 1
	c.IsActive = true
	return nil
}

// EnterHalftime freezes the clock at the end of the first half
func (c *MatchClock) EnterHalftime(now time.Time) error {
	if c.Phase != PhaseFirstHalf {
		return c.transitionError(PhaseHalftimeBreak)
	}
	c.freeze(now)
	at := now
	c.HalftimeBreakStartedAt = &at
	c.Phase = PhaseHalftimeBreak
	return nil
}

// StartSecondHalf re-baselines the clock so elapsed reads exactly HalfDuration
func (c *MatchClock) StartSecondHalf(now time.Time) error {
	if c.Phase != PhaseHalftimeBreak {
		return c.transitionError(PhaseSecondHalf)
	}
	c.StartedAt = now.Add(-c.HalfDuration)
	c.TotalPaused = 0
	c.PausedAt = nil
	c.FrozenAt = nil
	c.Phase = PhaseSecondHalf
	c.CurrentHalf = 2
	c.IsActive = true
	return nil
}

// Complete freezes the clock for good. Legal from any in-play phase.
func (c *MatchClock) Complete(now time.Time) error {
	if c.Phase == PhaseScheduled || c.Phase == PhaseCompleted {
		return c.transitionError(PhaseCompleted)
	}
	c.freeze(now)
	c.Phase = PhaseCompleted
	return nil
}

// BreakOver reports whether a configured halftime break has run its course
func (c MatchClock) BreakOver(now time.Time) bool {
	if c.Phase != PhaseHalftimeBreak || c.HalftimeBreakDuration <= 0 || c.HalftimeBreakStartedAt == nil {
		return false
	}
	return now.Sub(*c.HalftimeBreakStartedAt) >= c.HalftimeBreakDuration
}

func (c *MatchClock) foldPause(now time.Time) {
	if c.PausedAt != nil {
		c.TotalPaused += now.Sub(*c.PausedAt)
		c.PausedAt = nil
	}
}

func (c *MatchClock) freeze(now time.Time) {
	if c.FrozenAt != nil {
		return
	}
	c.foldPause(now)
	at := now
	c.FrozenAt = &at
	c.IsActive = false
}

func (c MatchClock) transitionError(to Phase) error {
	if c.Phase == PhaseCompleted {
		return fmt.Errorf("match %s %s -> %s: %w", c.MatchID, c.Phase, to, ErrAlreadyTerminal)
	}
	return fmt.Errorf("match %s %s -> %s: %w", c.MatchID, c.Phase, to, ErrInvalidTransition)
}
