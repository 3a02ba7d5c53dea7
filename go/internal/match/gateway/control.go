package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"connectrpc.com/connect"
	"github.com/aakashthirteen/football-stars/go/internal/match/clock"
	"github.com/aakashthirteen/football-stars/go/internal/match/events"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// ServiceName is the fully-qualified name of the match clock control service
const ServiceName = "matchclock.v1.MatchClockService"

const (
	StartProcedure           = "/" + ServiceName + "/Start"
	PauseProcedure           = "/" + ServiceName + "/Pause"
	ResumeProcedure          = "/" + ServiceName + "/Resume"
	AddStoppageTimeProcedure = "/" + ServiceName + "/AddStoppageTime"
	ForceHalftimeProcedure   = "/" + ServiceName + "/ForceHalftime"
	ForceFulltimeProcedure   = "/" + ServiceName + "/ForceFulltime"
	StartSecondHalfProcedure = "/" + ServiceName + "/StartSecondHalf"
	EndMatchProcedure        = "/" + ServiceName + "/EndMatch"
	CheckpointProcedure      = "/" + ServiceName + "/Checkpoint"
	GetStateProcedure        = "/" + ServiceName + "/GetState"
)

type MatchRequest struct {
	MatchID string `json:"matchId"`
}

type AddStoppageTimeRequest struct {
	MatchID string `json:"matchId"`
	Minutes int    `json:"minutes"`
}

type StateResponse struct {
	MatchID string            `json:"matchId"`
	State   events.MatchState `json:"state"`
}

// jsonCodec lets connect carry plain Go request types as JSON
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// WithJSONCodec configures a connect client to talk to the control service
func WithJSONCodec() connect.ClientOption {
	return connect.WithCodec(jsonCodec{})
}

// NewControlHandler builds the connect handler for the control service and
// returns the path to mount it on
func NewControlHandler(matches Controller, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithRecover(recoverControl),
	}, opts...)

	mux := http.NewServeMux()
	simple := map[string]func(context.Context, string) (events.MatchState, error){
		StartProcedure:           matches.Start,
		PauseProcedure:           matches.Pause,
		ResumeProcedure:          matches.Resume,
		ForceHalftimeProcedure:   matches.ForceHalftime,
		ForceFulltimeProcedure:   matches.ForceFulltime,
		StartSecondHalfProcedure: matches.StartSecondHalf,
		EndMatchProcedure:        matches.EndMatch,
		CheckpointProcedure:      matches.Checkpoint,
		GetStateProcedure:        matches.GetState,
	}
	for procedure, op := range simple {
		mux.Handle(procedure, connect.NewUnaryHandler(procedure, matchHandler(op), opts...))
	}
	mux.Handle(AddStoppageTimeProcedure, connect.NewUnaryHandler(AddStoppageTimeProcedure,
		func(ctx context.Context, req *connect.Request[AddStoppageTimeRequest]) (*connect.Response[StateResponse], error) {
			if req.Msg.MatchID == "" {
				return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("matchId is required"))
			}
			state, err := matches.AddStoppageTime(ctx, req.Msg.MatchID, req.Msg.Minutes)
			return respond(req.Msg.MatchID, state, err)
		}, opts...))

	return "/" + ServiceName + "/", mux
}

func matchHandler(op func(context.Context, string) (events.MatchState, error)) func(context.Context, *connect.Request[MatchRequest]) (*connect.Response[StateResponse], error) {
	return func(ctx context.Context, req *connect.Request[MatchRequest]) (*connect.Response[StateResponse], error) {
		if req.Msg.MatchID == "" {
			return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("matchId is required"))
		}
		state, err := op(ctx, req.Msg.MatchID)
		return respond(req.Msg.MatchID, state, err)
	}
}

func respond(matchID string, state events.MatchState, err error) (*connect.Response[StateResponse], error) {
	if err != nil {
		return nil, connectError(matchID, err)
	}
	return connect.NewResponse(&StateResponse{MatchID: matchID, State: state}), nil
}

// connectError maps clock errors onto connect codes
func connectError(matchID string, err error) error {
	switch {
	case errors.Is(err, clock.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, clock.ErrInvalidTransition):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, clock.ErrInvalidArgument):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	}
	log.Error().Err(err).Str("match_id", matchID).Msg("control operation failed")
	return connect.NewError(connect.CodeInternal, err)
}

func recoverControl(_ context.Context, spec connect.Spec, _ http.Header, p any) error {
	log.Error().
		Str("procedure", spec.Procedure).
		Str("panic", fmt.Sprint(p)).
		Bytes("stack", debug.Stack()).
		Msg("recovered from control panic")
	return connect.NewError(connect.CodeInternal, errors.New("internal error"))
}
