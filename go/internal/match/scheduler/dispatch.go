package scheduler

import (
	"context"
	"hash/fnv"

	"github.com/aakashthirteen/football-stars/go/internal/match/checkpoint"
	"github.com/aakashthirteen/football-stars/go/internal/match/events"
	"github.com/rs/zerolog/log"
)

// job is the I/O that follows a committed change: a checkpoint write and an
// optional bus event. Jobs for one match always land on the same worker.
type job struct {
	matchID    string
	checkpoint *checkpoint.Checkpoint
	event      *events.TransitionEvent
}

func (s *Scheduler) startWorkers() {
	s.work = make([]chan job, s.cfg.DispatchWorkers)
	for i := range s.work {
		s.work[i] = make(chan job, s.cfg.DispatchBuffer)
		s.workerWg.Add(1)
		go s.worker(i, s.work[i])
	}
}

// worker persists checkpoints and publishes events for its shard of matches
func (s *Scheduler) worker(workerID int, ch <-chan job) {
	defer s.workerWg.Done()

	log.Debug().Int("worker_id", workerID).Msg("dispatch worker started")
	for j := range ch {
		s.handle(j)
	}
	log.Debug().Int("worker_id", workerID).Msg("dispatch channel closed, worker shutting down")
}

func (s *Scheduler) handle(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DispatchTimeout)
	defer cancel()

	if j.checkpoint != nil && s.store != nil {
		if err := s.store.SaveCheckpoint(ctx, *j.checkpoint); err != nil {
			// the in-memory transition stands; recovery can re-derive from absolute fields
			s.metrics.checkpointFailures.Inc()
			log.Error().
				Err(err).
				Str("match_id", j.matchID).
				Int64("seq", j.checkpoint.Seq).
				Str("phase", string(j.checkpoint.Phase)).
				Msg("failed to persist checkpoint")
		}
	}

	if j.event != nil && s.publisher != nil {
		if err := s.publisher.Publish(ctx, *j.event); err != nil {
			s.metrics.publishFailures.Inc()
			log.Error().
				Err(err).
				Str("match_id", j.matchID).
				Str("event_type", string(j.event.Type)).
				Msg("failed to publish transition event")
		}
	}
}

func (s *Scheduler) shard(matchID string) chan job {
	h := fnv.New32a()
	h.Write([]byte(matchID))
	return s.work[h.Sum32()%uint32(len(s.work))]
}

// dispatch hands jobs to their workers. It must be called without any match lock held.
func (s *Scheduler) dispatch(jobs []job) {
	if len(jobs) == 0 {
		return
	}
	s.dispatchMu.RLock()
	defer s.dispatchMu.RUnlock()

	if s.dispatchClosed {
		log.Warn().Int("jobs", len(jobs)).Msg("scheduler closed, dropping dispatch jobs")
		return
	}
	for _, j := range jobs {
		ch := s.shard(j.matchID)
		select {
		case ch <- j:
			continue
		default:
		}
		select {
		case ch <- j:
		case <-s.ctx.Done():
			log.Warn().Str("match_id", j.matchID).Msg("scheduler stopping, dropping dispatch job")
		}
	}
}
