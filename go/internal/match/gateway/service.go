package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/aakashthirteen/football-stars/go/internal/match/broadcast"
	"github.com/aakashthirteen/football-stars/go/internal/match/clock"
	"github.com/aakashthirteen/football-stars/go/internal/match/events"
	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Controller is the match clock surface the gateway exposes
type Controller interface {
	Start(ctx context.Context, matchID string) (events.MatchState, error)
	Pause(ctx context.Context, matchID string) (events.MatchState, error)
	Resume(ctx context.Context, matchID string) (events.MatchState, error)
	AddStoppageTime(ctx context.Context, matchID string, minutes int) (events.MatchState, error)
	ForceHalftime(ctx context.Context, matchID string) (events.MatchState, error)
	ForceFulltime(ctx context.Context, matchID string) (events.MatchState, error)
	StartSecondHalf(ctx context.Context, matchID string) (events.MatchState, error)
	EndMatch(ctx context.Context, matchID string) (events.MatchState, error)
	Checkpoint(ctx context.Context, matchID string) (events.MatchState, error)
	GetState(ctx context.Context, matchID string) (events.MatchState, error)
	Subscribe(ctx context.Context, matchID string, sink broadcast.Sink) error
	Unsubscribe(matchID string, sink broadcast.Sink)
	ActiveMatches() int
}

// StatsProvider reports subscriber counts
type StatsProvider interface {
	Stats() map[string]interface{}
}

// Config holds settings for viewer connections
type Config struct {
	SendBuffer        int           `yaml:"send_buffer"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	MaxMessageSize    int64         `yaml:"max_message_size"`
	ReadBufferSize    int           `yaml:"read_buffer_size"`
	WriteBufferSize   int           `yaml:"write_buffer_size"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
}

func DefaultConfig() Config {
	return Config{
		SendBuffer:        64,
		HeartbeatInterval: 15 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    1024,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		AllowedOrigins:    []string{"*"},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.ReadTimeout {
		c.PingInterval = c.ReadTimeout * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = d.AllowedOrigins
	}
	return c
}

// Service serves match clock viewers and the control surface over HTTP
type Service struct {
	config   Config
	matches  Controller
	stats    StatsProvider
	upgrader websocket.Upgrader
	streams  *prometheus.GaugeVec

	done      chan struct{}
	closeOnce sync.Once
}

func NewService(cfg Config, matches Controller, stats StatsProvider, reg prometheus.Registerer) *Service {
	cfg = cfg.withDefaults()
	s := &Service{
		config:  cfg,
		matches: matches,
		stats:   stats,
		done:    make(chan struct{}),
		streams: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "matchclock",
			Name:      "gateway_streams_open",
			Help:      "Open viewer connections by transport.",
		}, []string{"transport"}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Close ends every open viewer stream. SSE responses return and WebSocket
// connections receive a going-away close frame. Safe to call more than once.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		log.Info().Msg("closing viewer streams")
	})
}

// Handler returns the gateway routes wrapped by Wrap
func (s *Service) Handler() http.Handler {
	router := mux.NewRouter()
	s.RegisterRoutes(router)
	return s.Wrap(router)
}

// Wrap adds CORS and panic recovery around h
func (s *Service) Wrap(h http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
	})

	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}))(c.Handler(h))
}

// RegisterRoutes registers viewer, state and control routes on router
func (s *Service) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/matches/{matchID}/stream", s.HandleStream).Methods(http.MethodGet)
	router.HandleFunc("/matches/{matchID}/state", s.HandleState).Methods(http.MethodGet)
	router.HandleFunc("/ws/matches/{matchID}", s.HandleWebSocket)
	router.HandleFunc("/ws/stats", s.HandleStats).Methods(http.MethodGet)

	path, control := NewControlHandler(s.matches)
	router.PathPrefix(path).Handler(control)

	log.Info().Msg("match gateway routes registered")
}

// HandleState handles GET /matches/{matchID}/state
func (s *Service) HandleState(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["matchID"]
	state, err := s.matches.GetState(r.Context(), matchID)
	if err != nil {
		writeError(w, matchID, err)
		return
	}
	writeJSON(w, http.StatusOK, events.StateMessage{
		Type:      events.TypeTimerUpdate,
		MatchID:   matchID,
		Timestamp: state.ServerTime,
		State:     state,
	})
}

// HandleStats returns subscriber statistics
func (s *Service) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.stats.Stats()
	stats["live_matches"] = s.matches.ActiveMatches()
	writeJSON(w, http.StatusOK, stats)
}

func (s *Service) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(s.config.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(s.config.AllowedOrigins, origin)
}

// statusFor maps clock errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, clock.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, clock.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, clock.ErrInvalidArgument):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, matchID string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("match_id", matchID).Msg("match request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	log.Error().Str("panic", fmt.Sprint(v...)).Msg("recovered from handler panic")
}
