package events

import (
	"time"

	"github.com/aakashthirteen/football-stars/go/internal/match/clock"
	"github.com/goccy/go-json"
)

// MessageType is the kind of push message sent to viewers
type MessageType string

const (
	TypeTimerUpdate  MessageType = "timer_update"
	TypeStatusChange MessageType = "status_change"
	TypeHalftime     MessageType = "halftime"
	TypeFulltime     MessageType = "fulltime"
)

// MatchState is the computed display state of a match
type MatchState struct {
	CurrentMinute       int          `json:"currentMinute"`
	CurrentSecond       int          `json:"currentSecond"`
	Status              clock.Status `json:"status"`
	CurrentHalf         int          `json:"currentHalf"`
	IsHalftime          bool         `json:"isHalftime"`
	IsPaused            bool         `json:"isPaused"`
	AddedTimeFirstHalf  int          `json:"addedTimeFirstHalf"`
	AddedTimeSecondHalf int          `json:"addedTimeSecondHalf"`
	ServerTime          int64        `json:"serverTime"`
}

// StateMessage is the envelope pushed to every subscriber of a match
type StateMessage struct {
	Type      MessageType `json:"type"`
	MatchID   string      `json:"matchId"`
	Timestamp int64       `json:"timestamp"`
	State     MatchState  `json:"state"`
}

// StateOf derives the display state of c at now
func StateOf(c clock.MatchClock, now time.Time) MatchState {
	minute, second := clock.Display(c.Elapsed(now))
	return MatchState{
		CurrentMinute:       minute,
		CurrentSecond:       second,
		Status:              c.Phase.Status(),
		CurrentHalf:         c.CurrentHalf,
		IsHalftime:          c.Phase == clock.PhaseHalftimeBreak,
		IsPaused:            c.IsPaused(),
		AddedTimeFirstHalf:  int(c.FirstHalfStoppage / time.Minute),
		AddedTimeSecondHalf: int(c.SecondHalfStoppage / time.Minute),
		ServerTime:          now.UnixMilli(),
	}
}

// NewStateMessage builds a push message for c at now
func NewStateMessage(t MessageType, c clock.MatchClock, now time.Time) StateMessage {
	return StateMessage{
		Type:      t,
		MatchID:   c.MatchID,
		Timestamp: now.UnixMilli(),
		State:     StateOf(c, now),
	}
}

// Encode serializes a message once so it can be fanned out to many sinks
func Encode(msg StateMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses a message produced by Encode
func Decode(data []byte) (StateMessage, error) {
	var msg StateMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}
