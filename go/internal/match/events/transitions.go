package events

import (
	"strings"
	"time"
)

// EventType names a committed change to a match clock, published on the event bus
type EventType string

const (
	EventMatchStarted      EventType = "MatchStarted"
	EventMatchPaused       EventType = "MatchPaused"
	EventMatchResumed      EventType = "MatchResumed"
	EventStoppageAdded     EventType = "StoppageAdded"
	EventHalftimeStarted   EventType = "HalftimeStarted"
	EventSecondHalfStarted EventType = "SecondHalfStarted"
	EventMatchCompleted    EventType = "MatchCompleted"
)

// Subject returns the bus subject suffix for the event type, e.g. "halftime_started"
func (t EventType) Subject() string {
	var b strings.Builder
	for i, r := range string(t) {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TransitionEvent is the envelope published after a transition or control mutation commits
type TransitionEvent struct {
	ID        string     `json:"id"`
	MatchID   string     `json:"matchId"`
	Type      EventType  `json:"type"`
	Seq       int64      `json:"seq"`
	Trigger   string     `json:"trigger"`
	Timestamp time.Time  `json:"timestamp"`
	State     MatchState `json:"state"`
}
