package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// HandleStream serves GET /matches/{matchID}/stream as a server-sent event
// stream. Each state message is written as one "data: <json>" event.
func (s *Service) HandleStream(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["matchID"]

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sink := newQueueSink(s.config.SendBuffer)
	if err := s.matches.Subscribe(r.Context(), matchID, sink); err != nil {
		writeError(w, matchID, err)
		return
	}
	defer s.matches.Unsubscribe(matchID, sink)

	s.streams.WithLabelValues("sse").Inc()
	defer s.streams.WithLabelValues("sse").Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.Info().
		Str("match_id", matchID).
		Str("subscriber_id", sink.ID()).
		Msg("SSE stream opened")

	heartbeat := time.NewTicker(s.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Info().
				Str("match_id", matchID).
				Str("subscriber_id", sink.ID()).
				Msg("SSE client disconnected")
			return

		case <-s.done:
			return

		case msg, ok := <-sink.C():
			if !ok {
				// match finished or sink pruned
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				log.Warn().Err(err).Str("subscriber_id", sink.ID()).Msg("failed to write SSE event")
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
