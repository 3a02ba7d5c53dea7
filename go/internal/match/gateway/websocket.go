package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// wsConnection pumps one viewer's match messages onto a WebSocket
type wsConnection struct {
	matchID string
	conn    *websocket.Conn
	sink    *queueSink
	service *Service
}

// HandleWebSocket serves GET /ws/matches/{matchID}
func (s *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["matchID"]

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("match_id", matchID).Msg("failed to upgrade WebSocket connection")
		return
	}

	c := &wsConnection{
		matchID: matchID,
		conn:    conn,
		sink:    newQueueSink(s.config.SendBuffer),
		service: s,
	}

	if err := s.matches.Subscribe(r.Context(), matchID, c.sink); err != nil {
		log.Warn().Err(err).Str("match_id", matchID).Msg("WebSocket subscribe rejected")
		deadline := time.Now().Add(s.config.WriteTimeout)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()), deadline)
		conn.Close()
		return
	}

	s.streams.WithLabelValues("websocket").Inc()

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("match_id", matchID).
		Str("subscriber_id", c.sink.ID()).
		Msg("WebSocket connection established")
}

func (c *wsConnection) release() {
	c.service.matches.Unsubscribe(c.matchID, c.sink)
	c.sink.Close()
}

// writePump drains the sink onto the connection and keeps it alive with pings
func (c *wsConnection) writePump() {
	cfg := c.service.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.release()
		c.service.streams.WithLabelValues("websocket").Dec()
	}()

	for {
		select {
		case message, ok := <-c.sink.C():
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("subscriber_id", c.sink.ID()).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-c.service.done:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("subscriber_id", c.sink.ID()).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump watches for the viewer going away. Viewers never send commands.
func (c *wsConnection) readPump() {
	cfg := c.service.config
	defer c.release()

	c.conn.SetReadLimit(cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("subscriber_id", c.sink.ID()).
					Msg("unexpected WebSocket close error")
			}
			return
		}
	}
}
