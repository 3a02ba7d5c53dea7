package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aakashthirteen/football-stars/go/internal/match/broadcast"
	"github.com/aakashthirteen/football-stars/go/internal/match/checkpoint"
	"github.com/aakashthirteen/football-stars/go/internal/match/clock"
	"github.com/aakashthirteen/football-stars/go/internal/match/events"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var kickoffTime = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu          sync.Mutex
	records     map[string]checkpoint.Record
	checkpoints []checkpoint.Checkpoint
	failSaves   bool

	// afterGet runs once GetMatch has read a record, outside the store lock
	afterGet func(id string)
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]checkpoint.Record)}
}

func (f *fakeStore) addScheduled(id string, minutes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[id] = checkpoint.Record{MatchID: id, DurationMinutes: minutes, Status: clock.StatusScheduled, CurrentHalf: 1}
}

func (f *fakeStore) put(rec checkpoint.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.MatchID] = rec
}

func (f *fakeStore) GetMatch(_ context.Context, id string) (checkpoint.Record, error) {
	f.mu.Lock()
	rec, ok := f.records[id]
	hook := f.afterGet
	f.mu.Unlock()
	if !ok {
		return checkpoint.Record{}, clock.ErrNotFound
	}
	if hook != nil {
		hook(id)
	}
	return rec, nil
}

func (f *fakeStore) SaveCheckpoint(_ context.Context, cp checkpoint.Checkpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaves {
		return errors.New("database unavailable")
	}
	rec := f.records[cp.MatchID]
	if cp.Seq <= rec.Seq {
		return nil
	}
	started := cp.TimerStartedAt
	rec.MatchID = cp.MatchID
	rec.Seq = cp.Seq
	rec.Status = cp.Status
	rec.CurrentHalf = cp.CurrentHalf
	rec.TimerStartedAt = &started
	rec.PausedAt = cp.PausedAt
	rec.TotalPaused = cp.TotalPaused
	rec.HalftimeBreakStartedAt = cp.HalftimeBreakStartedAt
	rec.AddedTimeFirstHalf = cp.AddedTimeFirstHalf
	rec.AddedTimeSecondHalf = cp.AddedTimeSecondHalf
	stored := cp
	rec.Checkpoint = &stored
	f.records[cp.MatchID] = rec
	f.checkpoints = append(f.checkpoints, cp)
	return nil
}

func (f *fakeStore) ListLiveMatches(_ context.Context) ([]checkpoint.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []checkpoint.Record
	for _, rec := range f.records {
		if rec.Status == clock.StatusLive || rec.Status == clock.StatusHalftime {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) saved() []checkpoint.Checkpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]checkpoint.Checkpoint(nil), f.checkpoints...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.TransitionEvent
}

func (p *fakePublisher) Publish(_ context.Context, evt events.TransitionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *fakePublisher) types(matchID string) []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.EventType
	for _, e := range p.events {
		if e.MatchID == matchID {
			out = append(out, e.Type)
		}
	}
	return out
}

type memorySink struct {
	id     string
	mu     sync.Mutex
	msgs   []events.StateMessage
	closed bool
}

func (s *memorySink) ID() string { return s.id }

func (s *memorySink) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return broadcast.ErrSinkClosed
	}
	msg, err := events.Decode(data)
	if err != nil {
		return err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *memorySink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *memorySink) messages() []events.StateMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.StateMessage(nil), s.msgs...)
}

func (s *memorySink) count(t events.MessageType) int {
	n := 0
	for _, m := range s.messages() {
		if m.Type == t {
			n++
		}
	}
	return n
}

func (s *memorySink) last() events.StateMessage {
	msgs := s.messages()
	if len(msgs) == 0 {
		return events.StateMessage{}
	}
	return msgs[len(msgs)-1]
}

func (s *memorySink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type harness struct {
	s     *Scheduler
	fc    *clockwork.FakeClock
	store *fakeStore
	pub   *fakePublisher
	reg   *broadcast.Registry
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	return newHarnessWith(t, cfg, nil)
}

func newHarnessWith(t *testing.T, cfg Config, registry Broadcaster) *harness {
	t.Helper()
	h := &harness{
		fc:    clockwork.NewFakeClockAt(kickoffTime),
		store: newFakeStore(),
		pub:   &fakePublisher{},
		reg:   broadcast.NewRegistry(),
	}
	if registry == nil {
		registry = h.reg
	}
	h.s = New(cfg, Deps{
		Store:     h.store,
		Registry:  registry,
		Publisher: h.pub,
		Clock:     h.fc,
		Metrics:   prometheus.NewRegistry(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, h.s.Shutdown(ctx))
	})
	return h
}

// advance moves the fake clock and runs one tick at the new instant
func (h *harness) advance(d time.Duration) {
	h.fc.Advance(d)
	h.s.tick()
}

func (h *harness) start(t *testing.T, id string) {
	t.Helper()
	h.store.addScheduled(id, 90)
	_, err := h.s.Start(context.Background(), id)
	require.NoError(t, err)
}

func (h *harness) subscribe(t *testing.T, id string) *memorySink {
	t.Helper()
	sink := &memorySink{id: id + "-viewer"}
	require.NoError(t, h.s.Subscribe(context.Background(), id, sink))
	return sink
}

func (h *harness) state(t *testing.T, id string) events.MatchState {
	t.Helper()
	st, err := h.s.GetState(context.Background(), id)
	require.NoError(t, err)
	return st
}
