package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/aakashthirteen/football-stars/go/internal/match/broadcast"
	"github.com/aakashthirteen/football-stars/go/internal/match/clock"
	"github.com/aakashthirteen/football-stars/go/internal/match/events"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMatches serves fixed states and fans out through a real registry
type fakeMatches struct {
	mu       sync.Mutex
	states   map[string]events.MatchState
	failures map[string]error
	registry *broadcast.Registry
}

func newFakeMatches() *fakeMatches {
	return &fakeMatches{
		states:   make(map[string]events.MatchState),
		failures: make(map[string]error),
		registry: broadcast.NewRegistry(),
	}
}

func (f *fakeMatches) set(id string, st events.MatchState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = st
}

func (f *fakeMatches) state(id string) (events.MatchState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[id]; ok {
		return events.MatchState{}, err
	}
	st, ok := f.states[id]
	if !ok {
		return events.MatchState{}, fmt.Errorf("match %s: %w", id, clock.ErrNotFound)
	}
	return st, nil
}

func (f *fakeMatches) transition(id string, status clock.Status) (events.MatchState, error) {
	st, err := f.state(id)
	if err != nil {
		return st, err
	}
	st.Status = status
	f.set(id, st)
	return st, nil
}

func (f *fakeMatches) Start(_ context.Context, id string) (events.MatchState, error) {
	return f.transition(id, clock.StatusLive)
}

func (f *fakeMatches) Pause(_ context.Context, id string) (events.MatchState, error) {
	st, err := f.state(id)
	st.IsPaused = err == nil
	return st, err
}

func (f *fakeMatches) Resume(_ context.Context, id string) (events.MatchState, error) {
	return f.state(id)
}

func (f *fakeMatches) AddStoppageTime(_ context.Context, id string, minutes int) (events.MatchState, error) {
	if minutes <= 0 {
		return events.MatchState{}, fmt.Errorf("stoppage of %d minutes: %w", minutes, clock.ErrInvalidArgument)
	}
	st, err := f.state(id)
	if err != nil {
		return st, err
	}
	st.AddedTimeFirstHalf += minutes
	f.set(id, st)
	return st, nil
}

func (f *fakeMatches) ForceHalftime(_ context.Context, id string) (events.MatchState, error) {
	return f.transition(id, clock.StatusHalftime)
}

func (f *fakeMatches) ForceFulltime(_ context.Context, id string) (events.MatchState, error) {
	return f.transition(id, clock.StatusCompleted)
}

func (f *fakeMatches) StartSecondHalf(_ context.Context, id string) (events.MatchState, error) {
	return f.transition(id, clock.StatusLive)
}

func (f *fakeMatches) EndMatch(_ context.Context, id string) (events.MatchState, error) {
	return f.transition(id, clock.StatusCompleted)
}

func (f *fakeMatches) Checkpoint(_ context.Context, id string) (events.MatchState, error) {
	return f.state(id)
}

func (f *fakeMatches) GetState(_ context.Context, id string) (events.MatchState, error) {
	return f.state(id)
}

func (f *fakeMatches) Subscribe(_ context.Context, id string, sink broadcast.Sink) error {
	st, err := f.state(id)
	if err != nil {
		return err
	}
	f.registry.Subscribe(id, sink)
	data, err := events.Encode(events.StateMessage{Type: events.TypeTimerUpdate, MatchID: id, State: st})
	if err != nil {
		return err
	}
	return sink.Send(data)
}

func (f *fakeMatches) Unsubscribe(id string, sink broadcast.Sink) {
	f.registry.Unsubscribe(id, sink)
}

func (f *fakeMatches) ActiveMatches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}

func (f *fakeMatches) push(t *testing.T, id string, typ events.MessageType, st events.MatchState) {
	data, err := events.Encode(events.StateMessage{Type: typ, MatchID: id, State: st})
	require.NoError(t, err)
	f.registry.Broadcast(id, data)
}

func newTestServer(t *testing.T) (*fakeMatches, *httptest.Server) {
	matches, _, srv := newTestService(t)
	return matches, srv
}

// newTestService runs the gateway on a server that closes viewer streams on shutdown
func newTestService(t *testing.T) (*fakeMatches, *Service, *httptest.Server) {
	matches := newFakeMatches()
	matches.set("m1", events.MatchState{CurrentMinute: 12, CurrentSecond: 30, Status: clock.StatusLive, CurrentHalf: 1})

	svc := NewService(DefaultConfig(), matches, matches.registry, prometheus.NewRegistry())
	srv := httptest.NewUnstartedServer(svc.Handler())
	srv.Config.RegisterOnShutdown(svc.Close)
	srv.Start()
	t.Cleanup(srv.Close)
	return matches, svc, srv
}

// readEvent reads one server-sent event and returns its data payload
func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if data != "" {
				return data
			}
			continue
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStateHandler(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/matches/m1/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msg events.StateMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.Equal(t, "m1", msg.MatchID)
	assert.Equal(t, 12, msg.State.CurrentMinute)
	assert.Equal(t, clock.StatusLive, msg.State.Status)

	missing, err := http.Get(srv.URL + "/matches/nope/state")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestStreamWritesEventFrames(t *testing.T) {
	matches, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/matches/m1/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	first, err := events.Decode([]byte(readEvent(t, r)))
	require.NoError(t, err)
	assert.Equal(t, events.TypeTimerUpdate, first.Type)
	assert.Equal(t, 12, first.State.CurrentMinute)

	matches.push(t, "m1", events.TypeHalftime, events.MatchState{CurrentMinute: 45, Status: clock.StatusHalftime, IsHalftime: true})
	second, err := events.Decode([]byte(readEvent(t, r)))
	require.NoError(t, err)
	assert.Equal(t, events.TypeHalftime, second.Type)
	assert.True(t, second.State.IsHalftime)

	matches.registry.CloseMatch("m1")
	_, err = io.ReadAll(r)
	require.NoError(t, err)
}

func TestStreamUnknownMatch(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/matches/nope/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamDisconnectUnsubscribes(t *testing.T) {
	matches, srv := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/matches/m1/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	readEvent(t, bufio.NewReader(resp.Body))
	require.Equal(t, 1, matches.registry.Count("m1"))

	cancel()
	resp.Body.Close()
	assert.Eventually(t, func() bool {
		return matches.registry.Count("m1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerShutdownEndsOpenStreams(t *testing.T) {
	matches, _, srv := newTestService(t)

	resp, err := http.Get(srv.URL + "/matches/m1/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	r := bufio.NewReader(resp.Body)
	readEvent(t, r)
	require.Equal(t, 1, matches.registry.Count("m1"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Config.Shutdown(ctx))

	_, err = io.ReadAll(r)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return matches.registry.Count("m1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseSendsGoingAwayToWebSockets(t *testing.T) {
	matches, svc, srv := newTestService(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/matches/m1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	svc.Close()
	svc.Close()
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Eventually(t, func() bool {
		return matches.registry.Count("m1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketReceivesStateAndClose(t *testing.T) {
	matches, srv := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/matches/m1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := events.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.MatchID)
	assert.Equal(t, 30, msg.State.CurrentSecond)

	matches.push(t, "m1", events.TypeFulltime, events.MatchState{CurrentMinute: 90, Status: clock.StatusCompleted})
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	msg, err = events.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, events.TypeFulltime, msg.Type)

	matches.registry.CloseMatch("m1")
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWebSocketUnknownMatchIsClosed(t *testing.T) {
	_, srv := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/matches/nope"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestStatsHandler(t *testing.T) {
	matches, srv := newTestServer(t)
	matches.registry.Subscribe("m1", newQueueSink(1))

	resp, err := http.Get(srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.EqualValues(t, 1, stats["total_subscribers"])
	assert.EqualValues(t, 1, stats["live_matches"])
}

func controlClient[Req any](srv *httptest.Server, procedure string) *connect.Client[Req, StateResponse] {
	return connect.NewClient[Req, StateResponse](srv.Client(), srv.URL+procedure, WithJSONCodec())
}

func TestControlService(t *testing.T) {
	matches, srv := newTestServer(t)
	matches.set("m2", events.MatchState{Status: clock.StatusScheduled, CurrentHalf: 1})
	ctx := context.Background()

	res, err := controlClient[MatchRequest](srv, StartProcedure).CallUnary(ctx, connect.NewRequest(&MatchRequest{MatchID: "m2"}))
	require.NoError(t, err)
	assert.Equal(t, "m2", res.Msg.MatchID)
	assert.Equal(t, clock.StatusLive, res.Msg.State.Status)

	stoppage := controlClient[AddStoppageTimeRequest](srv, AddStoppageTimeProcedure)
	res, err = stoppage.CallUnary(ctx, connect.NewRequest(&AddStoppageTimeRequest{MatchID: "m2", Minutes: 3}))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Msg.State.AddedTimeFirstHalf)

	_, err = stoppage.CallUnary(ctx, connect.NewRequest(&AddStoppageTimeRequest{MatchID: "m2", Minutes: 0}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	state := controlClient[MatchRequest](srv, GetStateProcedure)
	_, err = state.CallUnary(ctx, connect.NewRequest(&MatchRequest{MatchID: "nope"}))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = state.CallUnary(ctx, connect.NewRequest(&MatchRequest{}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestControlErrorCodes(t *testing.T) {
	matches, srv := newTestServer(t)
	matches.failures["done"] = fmt.Errorf("match done: %w", clock.ErrAlreadyTerminal)
	matches.failures["early"] = fmt.Errorf("match early has not started: %w", clock.ErrInvalidTransition)
	matches.failures["broken"] = errors.New("store unavailable")

	tests := []struct {
		matchID string
		code    connect.Code
	}{
		{"done", connect.CodeFailedPrecondition},
		{"early", connect.CodeFailedPrecondition},
		{"broken", connect.CodeInternal},
		{"missing", connect.CodeNotFound},
	}

	client := controlClient[MatchRequest](srv, ForceFulltimeProcedure)
	for _, tt := range tests {
		t.Run(tt.matchID, func(t *testing.T) {
			_, err := client.CallUnary(context.Background(), connect.NewRequest(&MatchRequest{MatchID: tt.matchID}))
			assert.Equal(t, tt.code, connect.CodeOf(err))
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(clock.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(clock.ErrAlreadyTerminal))
	assert.Equal(t, http.StatusConflict, statusFor(clock.ErrInvalidTransition))
	assert.Equal(t, http.StatusBadRequest, statusFor(clock.ErrInvalidArgument))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
