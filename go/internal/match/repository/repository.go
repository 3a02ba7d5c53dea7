package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/aakashthirteen/football-stars/go/internal/match/checkpoint"
	"github.com/aakashthirteen/football-stars/go/internal/match/clock"
	"github.com/aakashthirteen/football-stars/go/internal/match/repository/db"
	"github.com/aakashthirteen/football-stars/go/internal/sqlutil"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Schema is the DDL for the tables this repository reads and writes
//
//go:embed schema.sql
var Schema string

type Querier interface {
	GetMatch(ctx context.Context, id string) (db.Match, error)
	ListMatchesByStatus(ctx context.Context, statuses []string) ([]db.Match, error)
	UpdateMatchCheckpoint(ctx context.Context, arg db.UpdateMatchCheckpointParams) (int64, error)
	InsertCheckpointHistory(ctx context.Context, arg db.InsertCheckpointHistoryParams) error
}

// Repository is the Postgres-backed checkpoint store
type Repository struct {
	queries Querier
	inTx    func(ctx context.Context, fn func(q Querier) error) error
}

// NewRepository creates a repository over a lib/pq connection pool
func NewRepository(sqlDB *sql.DB) *Repository {
	return &Repository{
		queries: db.New(sqlDB),
		inTx: func(ctx context.Context, fn func(q Querier) error) error {
			return sqlutil.InTx(ctx, sqlDB, func(tx *sql.Tx) Querier { return db.New(tx) }, fn)
		},
	}
}

// GetMatch loads a match record, returning clock.ErrNotFound if it does not exist
func (r *Repository) GetMatch(ctx context.Context, matchID string) (checkpoint.Record, error) {
	m, err := r.queries.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return checkpoint.Record{}, fmt.Errorf("match %s: %w", matchID, clock.ErrNotFound)
		}
		return checkpoint.Record{}, fmt.Errorf("failed to get match: %w", err)
	}
	return dbMatchToRecord(m)
}

// ListLiveMatches returns every match whose status says it should still be running
func (r *Repository) ListLiveMatches(ctx context.Context) ([]checkpoint.Record, error) {
	rows, err := r.queries.ListMatchesByStatus(ctx, []string{string(clock.StatusLive), string(clock.StatusHalftime)})
	if err != nil {
		return nil, fmt.Errorf("failed to list live matches: %w", err)
	}

	recs := make([]checkpoint.Record, 0, len(rows))
	for _, m := range rows {
		rec, err := dbMatchToRecord(m)
		if err != nil {
			log.Warn().Err(err).Str("match_id", m.ID).Msg("ignoring unreadable checkpoint")
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// SaveCheckpoint writes the checkpoint fields onto the match row and appends
// it to the history table. A checkpoint older than the stored one is ignored.
func (r *Repository) SaveCheckpoint(ctx context.Context, cp checkpoint.Checkpoint) error {
	snapshot, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	return r.inTx(ctx, func(q Querier) error {
		n, err := q.UpdateMatchCheckpoint(ctx, db.UpdateMatchCheckpointParams{
			ID:                     cp.MatchID,
			CheckpointSeq:          cp.Seq,
			Status:                 string(cp.Status),
			CurrentHalf:            int16(cp.CurrentHalf),
			CurrentMinute:          int32(cp.Minute),
			CurrentSecond:          int32(cp.Second),
			ElapsedSeconds:         int32(cp.ElapsedSeconds),
			AddedTimeFirstHalf:     int32(cp.AddedTimeFirstHalf),
			AddedTimeSecondHalf:    int32(cp.AddedTimeSecondHalf),
			TimerStartedAt:         sqlutil.ToSqlTimeValue(cp.TimerStartedAt),
			PausedAt:               sqlutil.ToSqlTime(cp.PausedAt),
			TotalPausedMs:          cp.TotalPaused.Milliseconds(),
			HalftimeBreakStartedAt: sqlutil.ToSqlTime(cp.HalftimeBreakStartedAt),
			Checkpoint:             sqlutil.ToNullRawMessage(snapshot),
		})
		if err != nil {
			return fmt.Errorf("failed to update match checkpoint: %w", err)
		}
		if n == 0 {
			log.Debug().
				Str("match_id", cp.MatchID).
				Int64("seq", cp.Seq).
				Msg("checkpoint superseded or match missing, skipping")
			return nil
		}

		if err := q.InsertCheckpointHistory(ctx, db.InsertCheckpointHistoryParams{
			MatchID:  cp.MatchID,
			Seq:      cp.Seq,
			Phase:    string(cp.Phase),
			Snapshot: snapshot,
			TakenAt:  cp.TakenAt,
		}); err != nil {
			return fmt.Errorf("failed to insert checkpoint history: %w", err)
		}
		return nil
	})
}

// dbMatchToRecord converts a row to a record. A corrupt checkpoint blob is
// reported alongside a record that still carries the absolute timer fields.
func dbMatchToRecord(m db.Match) (checkpoint.Record, error) {
	rec := checkpoint.Record{
		MatchID:                m.ID,
		DurationMinutes:        int(m.DurationMinutes),
		Status:                 clock.Status(m.Status),
		CurrentHalf:            int(m.CurrentHalf),
		TimerStartedAt:         sqlutil.FromSqlTime(m.TimerStartedAt),
		PausedAt:               sqlutil.FromSqlTime(m.PausedAt),
		TotalPaused:            time.Duration(m.TotalPausedMs) * time.Millisecond,
		HalftimeBreakStartedAt: sqlutil.FromSqlTime(m.HalftimeBreakStartedAt),
		AddedTimeFirstHalf:     int(m.AddedTimeFirstHalf),
		AddedTimeSecondHalf:    int(m.AddedTimeSecondHalf),
		Seq:                    m.CheckpointSeq,
	}

	raw := sqlutil.FromNullRawMessage(m.Checkpoint)
	if raw == nil {
		return rec, nil
	}
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return rec, fmt.Errorf("failed to decode checkpoint for match %s: %w", m.ID, err)
	}
	rec.Checkpoint = &cp
	return rec, nil
}
