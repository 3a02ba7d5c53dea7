package events

import (
	"testing"
	"time"

	"github.com/aakashthirteen/football-stars/go/internal/match/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateOfHalftime(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	c := clock.New("m1", 90*time.Minute)
	require.NoError(t, c.Kickoff(t0))
	require.NoError(t, c.AddStoppage(3*time.Minute))
	require.NoError(t, c.EnterHalftime(t0.Add(48*time.Minute)))

	now := t0.Add(50 * time.Minute)
	st := StateOf(c, now)
	assert.Equal(t, MatchState{
		CurrentMinute:      48,
		Status:             clock.StatusHalftime,
		CurrentHalf:        1,
		IsHalftime:         true,
		AddedTimeFirstHalf: 3,
		ServerTime:         now.UnixMilli(),
	}, st)
}

func TestEncodeWireFields(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	c := clock.New("m1", 90*time.Minute)
	require.NoError(t, c.Kickoff(t0))

	data, err := Encode(NewStateMessage(TypeTimerUpdate, c, t0.Add(61*time.Second)))
	require.NoError(t, err)

	s := string(data)
	for _, field := range []string{
		`"type":"timer_update"`, `"matchId":"m1"`, `"currentMinute":1`, `"currentSecond":1`,
		`"status":"LIVE"`, `"currentHalf":1`, `"isHalftime":false`, `"isPaused":false`,
		`"addedTimeFirstHalf":0`, `"addedTimeSecondHalf":0`, `"serverTime":`,
	} {
		assert.Contains(t, s, field)
	}

	msg, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeTimerUpdate, msg.Type)
}

func TestEventTypeSubject(t *testing.T) {
	assert.Equal(t, "halftime_started", EventHalftimeStarted.Subject())
	assert.Equal(t, "match_completed", EventMatchCompleted.Subject())
	assert.Equal(t, "second_half_started", EventSecondHalfStarted.Subject())
}
