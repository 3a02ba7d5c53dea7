package checkpoint

import (
	"testing"
	"time"

	"github.com/aakashthirteen/football-stars/go/internal/match/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func TestSnapshotAtHalftime(t *testing.T) {
	c := clock.New("m1", 90*time.Minute)
	require.NoError(t, c.Kickoff(t0))
	require.NoError(t, c.AddStoppage(2*time.Minute))
	at := t0.Add(47*time.Minute + 3*time.Second)
	require.NoError(t, c.EnterHalftime(at))

	cp := Snapshot(c, 7, at)
	assert.Equal(t, int64(7), cp.Seq)
	assert.Equal(t, clock.StatusHalftime, cp.Status)
	assert.Equal(t, clock.PhaseHalftimeBreak, cp.Phase)
	assert.Equal(t, 47, cp.Minute)
	assert.Equal(t, 3, cp.Second)
	assert.Equal(t, 47*60+3, cp.ElapsedSeconds)
	assert.Equal(t, 2, cp.AddedTimeFirstHalf)
	assert.Nil(t, cp.PausedAt)
	require.NotNil(t, cp.HalftimeBreakStartedAt)
	assert.Equal(t, at, *cp.HalftimeBreakStartedAt)
}

func TestRestoreSecondHalfFromCheckpoint(t *testing.T) {
	cp := &Checkpoint{
		MatchID:             "m1",
		Status:              clock.StatusLive,
		Phase:               clock.PhaseSecondHalf,
		CurrentHalf:         2,
		Minute:              67,
		Second:              12,
		ElapsedSeconds:      67*60 + 12,
		AddedTimeSecondHalf: 2,
		// the absolute start is deliberately stale
		TimerStartedAt: t0.Add(-6 * time.Hour),
		TakenAt:        t0,
	}
	rec := Record{
		MatchID:             "m1",
		DurationMinutes:     90,
		Status:              clock.StatusLive,
		CurrentHalf:         2,
		TimerStartedAt:      &cp.TimerStartedAt,
		AddedTimeSecondHalf: 2,
		Checkpoint:          cp,
	}

	c, err := Restore(rec, 0, t0)
	require.NoError(t, err)
	assert.Equal(t, clock.PhaseSecondHalf, c.Phase)
	assert.Equal(t, 2, c.CurrentHalf)
	assert.True(t, c.IsActive)
	assert.Equal(t, 2*time.Minute, c.SecondHalfStoppage)

	m, s := clock.Display(c.Elapsed(t0.Add(time.Second)))
	assert.Equal(t, 67, m)
	assert.Equal(t, 13, s)

	evs := clock.Predict(c)
	require.Len(t, evs, 1)
	assert.Equal(t, 92*time.Minute, evs[0].FireAt)
}

func TestRestoreRunningCheckpointContinuesForward(t *testing.T) {
	tests := []struct {
		name    string
		phase   clock.Phase
		status  clock.Status
		half    int
		elapsed time.Duration
		takenAt time.Time
		want    time.Duration
	}{
		{
			name:    "second half kickoff checkpoint",
			phase:   clock.PhaseSecondHalf,
			status:  clock.StatusLive,
			half:    2,
			elapsed: 45 * time.Minute,
			takenAt: t0.Add(-25 * time.Minute),
			want:    70 * time.Minute,
		},
		{
			name:    "first half kickoff checkpoint",
			phase:   clock.PhaseFirstHalf,
			status:  clock.StatusLive,
			half:    1,
			elapsed: 0,
			takenAt: t0.Add(-20*time.Minute - 30*time.Second),
			want:    20*time.Minute + 30*time.Second,
		},
		{
			name:    "checkpoint from the future is not rewound",
			phase:   clock.PhaseFirstHalf,
			status:  clock.StatusLive,
			half:    1,
			elapsed: 10 * time.Minute,
			takenAt: t0.Add(time.Minute),
			want:    10 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := &Checkpoint{Phase: tt.phase, CurrentHalf: tt.half, ElapsedMs: tt.elapsed.Milliseconds(), TakenAt: tt.takenAt}
			rec := Record{MatchID: "m1", DurationMinutes: 90, Status: tt.status, CurrentHalf: tt.half, Checkpoint: cp}

			c, err := Restore(rec, 0, t0)
			require.NoError(t, err)
			assert.True(t, c.IsActive)
			assert.Equal(t, tt.want, c.Elapsed(t0))
			assert.Equal(t, tt.want+time.Second, c.Elapsed(t0.Add(time.Second)))
		})
	}
}

func TestRestorePausedCheckpointHoldsElapsed(t *testing.T) {
	paused := t0.Add(-time.Hour)
	cp := &Checkpoint{
		Phase:     clock.PhaseFirstHalf,
		ElapsedMs: (30 * time.Minute).Milliseconds(),
		PausedAt:  &paused,
		TakenAt:   paused,
	}
	rec := Record{MatchID: "m1", DurationMinutes: 90, Status: clock.StatusLive, CurrentHalf: 1, Checkpoint: cp}

	c, err := Restore(rec, 0, t0)
	require.NoError(t, err)
	assert.True(t, c.IsPaused())
	assert.Equal(t, 30*time.Minute, c.Elapsed(t0.Add(10*time.Minute)))

	require.NoError(t, c.Resume(t0.Add(10*time.Minute)))
	assert.Equal(t, 31*time.Minute, c.Elapsed(t0.Add(11*time.Minute)))
}

func TestRestoreFallsBackToTimerStart(t *testing.T) {
	started := t0.Add(-20 * time.Minute)
	// checkpoint belongs to an earlier phase
	stale := &Checkpoint{Phase: clock.PhaseScheduled, ElapsedSeconds: 0}
	rec := Record{
		MatchID:         "m1",
		DurationMinutes: 90,
		Status:          clock.StatusLive,
		CurrentHalf:     1,
		TimerStartedAt:  &started,
		TotalPaused:     2 * time.Minute,
		Checkpoint:      stale,
	}

	c, err := Restore(rec, 0, t0)
	require.NoError(t, err)
	assert.True(t, c.IsActive)
	assert.Equal(t, 18*time.Minute, c.Elapsed(t0))
}

func TestRestoreHalftimeStaysFrozen(t *testing.T) {
	breakStart := t0.Add(-5 * time.Minute)
	cp := &Checkpoint{Phase: clock.PhaseHalftimeBreak, ElapsedSeconds: 46 * 60, HalftimeBreakStartedAt: &breakStart, TakenAt: breakStart}
	rec := Record{MatchID: "m1", DurationMinutes: 90, Status: clock.StatusHalftime, CurrentHalf: 1, Checkpoint: cp}

	c, err := Restore(rec, 15*time.Minute, t0)
	require.NoError(t, err)
	assert.Equal(t, clock.PhaseHalftimeBreak, c.Phase)
	assert.False(t, c.IsActive)
	assert.Equal(t, 46*time.Minute, c.Elapsed(t0.Add(3*time.Minute)))
	assert.False(t, c.BreakOver(t0.Add(9*time.Minute)))
	assert.True(t, c.BreakOver(t0.Add(10*time.Minute)))
}

func TestRestoreRejectsUnrecoverable(t *testing.T) {
	_, err := Restore(Record{MatchID: "m1", DurationMinutes: 90, Status: clock.StatusLive}, 0, t0)
	require.ErrorIs(t, err, ErrUnrecoverable)

	_, err = Restore(Record{MatchID: "m1", DurationMinutes: 90, Status: clock.StatusCompleted}, 0, t0)
	require.ErrorIs(t, err, ErrUnrecoverable)

	_, err = Restore(Record{MatchID: "m1", Status: clock.StatusLive}, 0, t0)
	require.ErrorIs(t, err, ErrUnrecoverable)
}
