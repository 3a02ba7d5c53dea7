package checkpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/aakashthirteen/football-stars/go/internal/match/clock"
)

// Checkpoint is the persisted timing snapshot of a match, taken at phase
// transitions and on demand.
type Checkpoint struct {
	MatchID     string       `json:"matchId"`
	Seq         int64        `json:"seq"`
	Status      clock.Status `json:"status"`
	Phase       clock.Phase  `json:"phase"`
	CurrentHalf int          `json:"currentHalf"`

	Minute         int   `json:"minute"`
	Second         int   `json:"second"`
	ElapsedSeconds int   `json:"elapsedSeconds"`
	ElapsedMs      int64 `json:"elapsedMs"`

	AddedTimeFirstHalf  int `json:"addedTimeFirstHalf"`
	AddedTimeSecondHalf int `json:"addedTimeSecondHalf"`

	TimerStartedAt         time.Time     `json:"timerStartedAt"`
	PausedAt               *time.Time    `json:"pausedAt,omitempty"`
	TotalPaused            time.Duration `json:"totalPaused"`
	HalftimeBreakStartedAt *time.Time    `json:"halftimeBreakStartedAt,omitempty"`

	TakenAt time.Time `json:"takenAt"`
}

// Elapsed returns the checkpointed elapsed time at full precision
func (cp Checkpoint) Elapsed() time.Duration {
	if cp.ElapsedMs > 0 {
		return time.Duration(cp.ElapsedMs) * time.Millisecond
	}
	return time.Duration(cp.ElapsedSeconds) * time.Second
}

// Record is what the store knows about a match: configuration, lifecycle
// status, the absolute timer fields and the last checkpoint, if any.
type Record struct {
	MatchID         string
	DurationMinutes int
	Status          clock.Status
	CurrentHalf     int

	TimerStartedAt         *time.Time
	PausedAt               *time.Time
	TotalPaused            time.Duration
	HalftimeBreakStartedAt *time.Time

	AddedTimeFirstHalf  int
	AddedTimeSecondHalf int

	Seq        int64
	Checkpoint *Checkpoint
}

// ErrUnrecoverable is returned when a record carries too little timing data to rebuild a clock
var ErrUnrecoverable = errors.New("match record not recoverable")

// Snapshot captures c at now
func Snapshot(c clock.MatchClock, seq int64, now time.Time) Checkpoint {
	elapsed := c.Elapsed(now)
	minute, second := clock.Display(elapsed)
	cp := Checkpoint{
		MatchID:             c.MatchID,
		Seq:                 seq,
		Status:              c.Phase.Status(),
		Phase:               c.Phase,
		CurrentHalf:         c.CurrentHalf,
		Minute:              minute,
		Second:              second,
		ElapsedSeconds:      int(elapsed / time.Second),
		ElapsedMs:           elapsed.Milliseconds(),
		AddedTimeFirstHalf:  int(c.FirstHalfStoppage / time.Minute),
		AddedTimeSecondHalf: int(c.SecondHalfStoppage / time.Minute),
		TimerStartedAt:      c.StartedAt,
		TotalPaused:         c.TotalPaused,
		TakenAt:             now,
	}
	if c.PausedAt != nil {
		at := *c.PausedAt
		cp.PausedAt = &at
	}
	if c.HalftimeBreakStartedAt != nil {
		at := *c.HalftimeBreakStartedAt
		cp.HalftimeBreakStartedAt = &at
	}
	return cp
}

// Restore rebuilds a clock for a match believed to still be live.
//
// A checkpoint taken in the record's current phase is authoritative. A frozen
// or paused checkpoint holds its elapsed value; a running one continues from
// it by the wall time since it was taken. Without one, elapsed is derived from
// the absolute timer start minus accumulated pauses.
func Restore(rec Record, breakDuration time.Duration, now time.Time) (clock.MatchClock, error) {
	phase, err := clock.PhaseFor(rec.Status, rec.CurrentHalf)
	if err != nil {
		return clock.MatchClock{}, fmt.Errorf("restore match %s: %w", rec.MatchID, err)
	}
	if !phase.Running() && phase != clock.PhaseHalftimeBreak {
		return clock.MatchClock{}, fmt.Errorf("restore match %s in phase %s: %w", rec.MatchID, phase, ErrUnrecoverable)
	}
	if rec.DurationMinutes <= 0 {
		return clock.MatchClock{}, fmt.Errorf("restore match %s with duration %d: %w", rec.MatchID, rec.DurationMinutes, ErrUnrecoverable)
	}

	c := clock.New(rec.MatchID, time.Duration(rec.DurationMinutes)*time.Minute)
	c.Phase = phase
	c.CurrentHalf = 1
	if phase == clock.PhaseSecondHalf {
		c.CurrentHalf = 2
	}
	c.FirstHalfStoppage = time.Duration(rec.AddedTimeFirstHalf) * time.Minute
	c.SecondHalfStoppage = time.Duration(rec.AddedTimeSecondHalf) * time.Minute
	c.HalftimeBreakDuration = breakDuration
	c.HalftimeBreakStartedAt = copyTime(rec.HalftimeBreakStartedAt)

	if cp := rec.Checkpoint; cp != nil && cp.Phase == phase {
		restoreFromCheckpoint(&c, *cp, now)
		return c, nil
	}

	if rec.TimerStartedAt == nil || rec.TimerStartedAt.IsZero() {
		return clock.MatchClock{}, fmt.Errorf("restore match %s without timer start: %w", rec.MatchID, ErrUnrecoverable)
	}
	c.StartedAt = *rec.TimerStartedAt
	c.TotalPaused = rec.TotalPaused
	c.PausedAt = copyTime(rec.PausedAt)
	switch {
	case phase == clock.PhaseHalftimeBreak:
		// no checkpoint for the break, freeze at the nominal half
		c.StartedAt = now.Add(-(c.HalfDuration + c.FirstHalfStoppage))
		c.TotalPaused = 0
		c.PausedAt = nil
		c.FrozenAt = timePtr(now)
		if c.HalftimeBreakStartedAt == nil {
			c.HalftimeBreakStartedAt = timePtr(now)
		}
	case c.PausedAt != nil:
		c.IsActive = false
	default:
		c.IsActive = true
	}
	return c, nil
}

func restoreFromCheckpoint(c *clock.MatchClock, cp Checkpoint, now time.Time) {
	elapsed := cp.Elapsed()
	if c.Phase != clock.PhaseHalftimeBreak && cp.PausedAt == nil && !cp.TakenAt.IsZero() {
		elapsed += max(now.Sub(cp.TakenAt), 0)
	}
	c.StartedAt = now.Add(-elapsed)
	c.TotalPaused = 0
	c.FirstHalfStoppage = max(c.FirstHalfStoppage, time.Duration(cp.AddedTimeFirstHalf)*time.Minute)
	c.SecondHalfStoppage = max(c.SecondHalfStoppage, time.Duration(cp.AddedTimeSecondHalf)*time.Minute)
	if c.HalftimeBreakStartedAt == nil {
		c.HalftimeBreakStartedAt = copyTime(cp.HalftimeBreakStartedAt)
	}

	switch {
	case c.Phase == clock.PhaseHalftimeBreak:
		c.FrozenAt = timePtr(now)
		if c.HalftimeBreakStartedAt == nil {
			c.HalftimeBreakStartedAt = timePtr(now)
		}
	case cp.PausedAt != nil:
		// still paused, hold elapsed at the checkpointed value
		c.PausedAt = timePtr(now)
		c.IsActive = false
	default:
		c.IsActive = true
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return timePtr(*t)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
