package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

const matchColumns = `id, home_team, away_team, duration_minutes, status, scheduled_at,
       current_half, current_minute, current_second, elapsed_seconds,
       added_time_first_half, added_time_second_half,
       timer_started_at, paused_at, total_paused_ms, halftime_break_started_at,
       checkpoint_seq, checkpoint, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner) (Match, error) {
	var i Match
	err := row.Scan(
		&i.ID,
		&i.HomeTeam,
		&i.AwayTeam,
		&i.DurationMinutes,
		&i.Status,
		&i.ScheduledAt,
		&i.CurrentHalf,
		&i.CurrentMinute,
		&i.CurrentSecond,
		&i.ElapsedSeconds,
		&i.AddedTimeFirstHalf,
		&i.AddedTimeSecondHalf,
		&i.TimerStartedAt,
		&i.PausedAt,
		&i.TotalPausedMs,
		&i.HalftimeBreakStartedAt,
		&i.CheckpointSeq,
		&i.Checkpoint,
		&i.UpdatedAt,
	)
	return i, err
}

const getMatch = `SELECT ` + matchColumns + `
FROM matches
WHERE id = $1`

func (q *Queries) GetMatch(ctx context.Context, id string) (Match, error) {
	row := q.db.QueryRowContext(ctx, getMatch, id)
	return scanMatch(row)
}

const listMatchesByStatus = `SELECT ` + matchColumns + `
FROM matches
WHERE status = ANY($1::text[])
ORDER BY id`

func (q *Queries) ListMatchesByStatus(ctx context.Context, statuses []string) ([]Match, error) {
	rows, err := q.db.QueryContext(ctx, listMatchesByStatus, pq.Array(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Match
	for rows.Next() {
		i, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateMatchCheckpoint = `UPDATE matches
SET status                    = $3,
    current_half              = $4,
    current_minute            = $5,
    current_second            = $6,
    elapsed_seconds           = $7,
    added_time_first_half     = $8,
    added_time_second_half    = $9,
    timer_started_at          = $10,
    paused_at                 = $11,
    total_paused_ms           = $12,
    halftime_break_started_at = $13,
    checkpoint                = $14,
    checkpoint_seq            = $2,
    updated_at                = now()
WHERE id = $1
  AND checkpoint_seq < $2`

type UpdateMatchCheckpointParams struct {
	ID                     string
	CheckpointSeq          int64
	Status                 string
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
	Checkpoint             pqtype.NullRawMessage
}

// UpdateMatchCheckpoint returns the number of rows updated; zero means the
// match is unknown or already holds a newer checkpoint.
func (q *Queries) UpdateMatchCheckpoint(ctx context.Context, arg UpdateMatchCheckpointParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateMatchCheckpoint,
		arg.ID,
		arg.CheckpointSeq,
		arg.Status,
		arg.CurrentHalf,
		arg.CurrentMinute,
		arg.CurrentSecond,
		arg.ElapsedSeconds,
		arg.AddedTimeFirstHalf,
		arg.AddedTimeSecondHalf,
		arg.TimerStartedAt,
		arg.PausedAt,
		arg.TotalPausedMs,
		arg.HalftimeBreakStartedAt,
		arg.Checkpoint,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const insertCheckpointHistory = `INSERT INTO match_checkpoints (match_id, seq, phase, snapshot, taken_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (match_id, seq) DO NOTHING`

type InsertCheckpointHistoryParams struct {
	MatchID  string
	Seq      int64
	Phase    string
	Snapshot []byte
	TakenAt  time.Time
}

func (q *Queries) InsertCheckpointHistory(ctx context.Context, arg InsertCheckpointHistoryParams) error {
	_, err := q.db.ExecContext(ctx, insertCheckpointHistory,
		arg.MatchID,
		arg.Seq,
		arg.Phase,
		arg.Snapshot,
		arg.TakenAt,
	)
	return err
}
