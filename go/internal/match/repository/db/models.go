package db

import (
	"database/sql"
	"time"

	"github.com/sqlc-dev/pqtype"
)

type Match struct {
	ID                     string
	HomeTeam               string
	AwayTeam               string
	DurationMinutes        int32
	Status                 string
	ScheduledAt            sql.NullTime
	CurrentHalf            int16
	CurrentMinute          int32
	CurrentSecond          int32
	ElapsedSeconds         int32
	AddedTimeFirstHalf     int32
	AddedTimeSecondHalf    int32
	TimerStartedAt         sql.NullTime
	PausedAt               sql.NullTime
	TotalPausedMs          int64
	HalftimeBreakStartedAt sql.NullTime
	CheckpointSeq          int64
	Checkpoint             pqtype.NullRawMessage
	UpdatedAt              time.Time
}

type MatchCheckpoint struct {
	MatchID  string
	Seq      int64
	Phase    string
	Snapshot []byte
	TakenAt  time.Time
}
