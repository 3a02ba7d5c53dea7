package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/aakashthirteen/football-stars/go/internal/match/broadcast"
	"github.com/aakashthirteen/football-stars/go/internal/match/checkpoint"
	"github.com/aakashthirteen/football-stars/go/internal/match/clock"
	"github.com/aakashthirteen/football-stars/go/internal/match/events"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Store is the persistence collaborator. GetMatch returns clock.ErrNotFound
// for unknown ids.
type Store interface {
	GetMatch(ctx context.Context, matchID string) (checkpoint.Record, error)
	SaveCheckpoint(ctx context.Context, cp checkpoint.Checkpoint) error
	ListLiveMatches(ctx context.Context) ([]checkpoint.Record, error)
}

// Publisher receives committed transition events
type Publisher interface {
	Publish(ctx context.Context, evt events.TransitionEvent) error
}

// Broadcaster fans serialized state out to a match's subscribers
type Broadcaster interface {
	Subscribe(matchID string, sink broadcast.Sink)
	Unsubscribe(matchID string, sink broadcast.Sink)
	Broadcast(matchID string, msg []byte) int
	CloseMatch(matchID string)
	Count(matchID string) int
	Total() int
}

// Config tunes the scheduler loop
type Config struct {
	TickInterval       time.Duration `yaml:"tick_interval"`
	BroadcastInterval  time.Duration `yaml:"broadcast_interval"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"` // 0 disables periodic checkpoints
	HalftimeBreak      time.Duration `yaml:"halftime_break"`      // 0 means the second half starts manually
	DefaultDuration    time.Duration `yaml:"default_duration"`
	DispatchWorkers    int           `yaml:"dispatch_workers"`
	DispatchBuffer     int           `yaml:"dispatch_buffer"`
	DispatchTimeout    time.Duration `yaml:"dispatch_timeout"`
	FinishedRetention  time.Duration `yaml:"finished_retention"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		TickInterval:      100 * time.Millisecond,
		BroadcastInterval: time.Second,
		DefaultDuration:   90 * time.Minute,
		DispatchWorkers:   4,
		DispatchBuffer:    256,
		DispatchTimeout:   5 * time.Second,
		FinishedRetention: time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.BroadcastInterval <= 0 {
		c.BroadcastInterval = d.BroadcastInterval
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = d.DefaultDuration
	}
	if c.DispatchWorkers <= 0 {
		c.DispatchWorkers = d.DispatchWorkers
	}
	if c.DispatchBuffer <= 0 {
		c.DispatchBuffer = d.DispatchBuffer
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = d.DispatchTimeout
	}
	if c.FinishedRetention <= 0 {
		c.FinishedRetention = d.FinishedRetention
	}
	return c
}

// Deps are the scheduler's collaborators. Publisher, Clock and Metrics are optional.
type Deps struct {
	Store     Store
	Registry  Broadcaster
	Publisher Publisher
	Clock     clockwork.Clock
	Metrics   prometheus.Registerer
}

// liveMatch is a registered clock. mu guards every field.
type liveMatch struct {
	mu             sync.Mutex
	clock          clock.MatchClock
	events         []clock.PredictedEvent
	seq            int64
	lastCheckpoint time.Time
}

func (m *liveMatch) recompute() {
	m.events = clock.Predict(m.clock)
}

type finishedMatch struct {
	state      events.MatchState
	finishedAt time.Time
}

// Scheduler drives every live match from one shared tick loop
type Scheduler struct {
	cfg       Config
	clock     clockwork.Clock
	store     Store
	registry  Broadcaster
	publisher Publisher
	metrics   *Metrics

	mu          sync.RWMutex
	matches     map[string]*liveMatch
	finished    map[string]finishedMatch
	loopRunning bool
	closed      bool

	// tickMu serializes ticks; lastBroadcast is only touched under it
	tickMu        sync.Mutex
	lastBroadcast time.Time

	ctx    context.Context
	cancel context.CancelFunc
	loopWg sync.WaitGroup

	dispatchMu     sync.RWMutex
	dispatchClosed bool
	work           []chan job
	workerWg       sync.WaitGroup
}

// New creates a scheduler and starts its dispatch workers. The tick loop is
// armed lazily by the first Start or Recover.
func New(cfg Config, deps Deps) *Scheduler {
	cfg = cfg.withDefaults()
	clk := deps.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	registry := deps.Registry
	if registry == nil {
		registry = broadcast.NewRegistry()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:       cfg,
		clock:     clk,
		store:     deps.Store,
		registry:  registry,
		publisher: deps.Publisher,
		matches:   make(map[string]*liveMatch),
		finished:  make(map[string]finishedMatch),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.metrics = NewMetrics(deps.Metrics, func() float64 { return float64(s.registry.Total()) })
	s.startWorkers()
	return s
}

// ActiveMatches returns the number of registered clocks
func (s *Scheduler) ActiveMatches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matches)
}

// LoopRunning reports whether the tick loop is armed
func (s *Scheduler) LoopRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loopRunning
}

// Shutdown stops the loop and drains pending checkpoint and publish work
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.loopWg.Wait()

	s.dispatchMu.Lock()
	s.dispatchClosed = true
	for _, ch := range s.work {
		close(ch)
	}
	s.dispatchMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("scheduler shut down")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ensureLoop arms the tick loop if it is suspended
func (s *Scheduler) ensureLoop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loopRunning || s.closed {
		return
	}
	s.loopRunning = true
	s.loopWg.Add(1)
	go s.run()
}

func (s *Scheduler) run() {
	defer s.loopWg.Done()

	ticker := s.clock.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	log.Info().
		Dur("tick_interval", s.cfg.TickInterval).
		Dur("broadcast_interval", s.cfg.BroadcastInterval).
		Msg("scheduler loop armed")

	for {
		select {
		case <-s.ctx.Done():
			s.mu.Lock()
			s.loopRunning = false
			s.mu.Unlock()
			return
		case <-ticker.Chan():
			if s.suspendIfIdle() {
				log.Info().Msg("no live matches, scheduler loop suspended")
				return
			}
			s.tick()
		}
	}
}

func (s *Scheduler) suspendIfIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.matches) > 0 {
		return false
	}
	s.loopRunning = false
	return true
}

func (s *Scheduler) snapshot() []*liveMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*liveMatch, 0, len(s.matches))
	for _, m := range s.matches {
		out = append(out, m)
	}
	return out
}

// tick evaluates every registered match once
func (s *Scheduler) tick() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := s.clock.Now()
	now := start
	broadcastDue := s.lastBroadcast.IsZero() || now.Sub(s.lastBroadcast) >= s.cfg.BroadcastInterval
	if broadcastDue {
		s.lastBroadcast = now
	}

	for _, m := range s.snapshot() {
		s.tickMatch(m, now, broadcastDue)
	}

	s.metrics.ticks.Inc()
	s.metrics.tickDuration.Observe(s.clock.Since(start).Seconds())
}

func (s *Scheduler) tickMatch(m *liveMatch, now time.Time, broadcastDue bool) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.tickPanics.Inc()
			log.Error().
				Interface("panic", r).
				Msg("recovered from panic while ticking match")
		}
	}()

	id, jobs, done, state := s.advance(m, now, broadcastDue)
	if done {
		s.retire(id, state, now)
	}
	s.dispatch(jobs)
}

// advance fires due events and emits the periodic broadcast for one match
func (s *Scheduler) advance(m *liveMatch, now time.Time, broadcastDue bool) (string, []job, bool, events.MatchState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// a control change may have committed at a later instant while this tick waited for the lock
	if cur := s.clock.Now(); cur.After(now) {
		now = cur
	}

	var jobs []job
	if m.clock.IsActive {
		elapsed := m.clock.Elapsed(now)
		for i := range m.events {
			ev := m.events[i]
			if !ev.Due(elapsed) {
				continue
			}
			m.events[i].Executed = true
			if m.clock.Phase != ev.Kind.From() {
				continue
			}
			fired, err := s.fire(m, ev.Kind, now, triggerPredicted)
			if err != nil {
				log.Error().Err(err).Str("match_id", m.clock.MatchID).Str("event", string(ev.Kind)).Msg("predicted transition failed")
			}
			jobs = append(jobs, fired...)
			break
		}
	}

	if m.clock.BreakOver(now) {
		started, err := s.startSecondHalf(m, now, triggerAuto)
		if err != nil {
			log.Error().Err(err).Str("match_id", m.clock.MatchID).Msg("automatic second half failed")
		}
		jobs = append(jobs, started...)
	}

	if s.cfg.CheckpointInterval > 0 && m.clock.Phase.Running() && now.Sub(m.lastCheckpoint) >= s.cfg.CheckpointInterval {
		jobs = append(jobs, job{matchID: m.clock.MatchID, checkpoint: s.checkpointLocked(m, now)})
	}

	if broadcastDue && m.clock.Phase != clock.PhaseCompleted {
		s.broadcastLocked(m, events.TypeTimerUpdate, now)
	}

	return m.clock.MatchID, jobs, m.clock.Phase == clock.PhaseCompleted, events.StateOf(m.clock, now)
}

// retire removes a completed match from active memory and remembers its final state
func (s *Scheduler) retire(matchID string, final events.MatchState, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.matches, matchID)
	s.finished[matchID] = finishedMatch{state: final, finishedAt: now}
	for id, f := range s.finished {
		if now.Sub(f.finishedAt) > s.cfg.FinishedRetention {
			delete(s.finished, id)
		}
	}
	s.metrics.active.Set(float64(len(s.matches)))

	log.Info().
		Str("match_id", matchID).
		Int("minute", final.CurrentMinute).
		Int("second", final.CurrentSecond).
		Int("live_matches", len(s.matches)).
		Msg("match retired")
}
