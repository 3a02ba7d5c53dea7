package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aakashthirteen/football-stars/go/internal/match/checkpoint"
	"github.com/aakashthirteen/football-stars/go/internal/match/clock"
	"github.com/rs/zerolog/log"
)

// Recover rebuilds clocks for every match the store still believes is live
// and registers them exactly as if they had just started. Records that
// cannot be restored are logged and skipped.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	recs, err := s.store.ListLiveMatches(ctx)
	if err != nil {
		return 0, fmt.Errorf("list live matches: %w", err)
	}

	now := s.clock.Now()
	recovered := 0
	for _, rec := range recs {
		if rec.DurationMinutes <= 0 {
			rec.DurationMinutes = int(s.cfg.DefaultDuration / time.Minute)
		}
		c, err := checkpoint.Restore(rec, s.cfg.HalftimeBreak, now)
		if err != nil {
			log.Warn().Err(err).Str("match_id", rec.MatchID).Msg("skipping unrecoverable match")
			continue
		}

		m := &liveMatch{clock: c, seq: rec.Seq, lastCheckpoint: now}
		m.recompute()

		s.mu.Lock()
		if _, exists := s.matches[rec.MatchID]; exists {
			s.mu.Unlock()
			continue
		}
		s.matches[rec.MatchID] = m
		s.metrics.active.Set(float64(len(s.matches)))
		s.mu.Unlock()

		recovered++
		s.metrics.recovered.Inc()

		fromCheckpoint := rec.Checkpoint != nil && rec.Checkpoint.Phase == c.Phase
		minute, second := clock.Display(c.Elapsed(now))
		log.Info().
			Str("match_id", rec.MatchID).
			Str("phase", string(c.Phase)).
			Bool("from_checkpoint", fromCheckpoint).
			Bool("paused", c.IsPaused()).
			Int("minute", minute).
			Int("second", second).
			Msg("match recovered")
	}

	if recovered > 0 {
		s.ensureLoop()
	}
	log.Info().Int("recovered", recovered).Int("candidates", len(recs)).Msg("recovery complete")
	return recovered, nil
}
