package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aakashthirteen/football-stars/go/internal/dbconfig"
	"github.com/aakashthirteen/football-stars/go/internal/match/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func connectPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg := dbconfig.FromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	pool, err := connectPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, repository.Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	log.Info().Msg("match schema applied")
	return nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	count, err := cmd.Flags().GetInt("count")
	if err != nil {
		return err
	}
	duration, err := cmd.Flags().GetInt("duration")
	if err != nil {
		return err
	}
	if count <= 0 || duration <= 0 {
		return errors.New("count and duration must be positive")
	}

	ctx := cmd.Context()
	pool, err := connectPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	var inserted, errs int
	kickoff := time.Now().UTC().Truncate(time.Hour).Add(time.Hour)
	for i := 0; i < count; i++ {
		id := uuid.New().String()
		cmdTag, err := pool.Exec(ctx, `
            INSERT INTO matches (id, home_team, away_team, duration_minutes, status, scheduled_at)
            VALUES ($1, $2, $3, $4, 'SCHEDULED', $5)
            ON CONFLICT (id) DO NOTHING
        `,
			id, fmt.Sprintf("Home %d", i+1), fmt.Sprintf("Away %d", i+1), duration, kickoff.Add(time.Duration(i)*time.Hour),
		)
		if err != nil {
			log.Error().Err(err).Str("match_id", id).Msg("error inserting match")
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
	}

	log.Info().
		Int("requested", count).
		Int("inserted", inserted).
		Int("errors", errs).
		Msg("seeded scheduled matches")
	if errs > 0 {
		return fmt.Errorf("%d matches failed to insert", errs)
	}
	return nil
}
