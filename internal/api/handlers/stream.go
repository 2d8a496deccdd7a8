package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/clutchfactor/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks are delegated to the CORS middleware
		return true
	},
}

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = 54 * time.Second
)

// StreamHandler serves live game event streams over SSE and WebSocket.
// Both transports replay the cached latest event first so late joiners see
// the current state before any live update.
type StreamHandler struct {
	bus       *events.Bus
	latest    events.LatestCache
	heartbeat time.Duration
	logger    *logrus.Logger
}

func NewStreamHandler(bus *events.Bus, latest events.LatestCache, heartbeat time.Duration, logger *logrus.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &StreamHandler{
		bus:       bus,
		latest:    latest,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

// StreamSSE streams game events as server-sent events.
// GET /api/v1/games/:gameId/stream
func (h *StreamHandler) StreamSSE(c *gin.Context) {
	gameID := c.Param("gameId")

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	sub := h.bus.Subscribe(gameID)
	defer h.bus.Unsubscribe(gameID, sub)

	// Catch the late joiner up before any live event
	if payload, found, err := h.latest.GetLatest(c.Request.Context(), gameID); err != nil {
		h.logger.WithError(err).WithField("game_id", gameID).Warn("Failed to read latest-event cache")
	} else if found {
		fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
		c.Writer.Flush()
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case payload := <-sub.C:
			fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
			c.Writer.Flush()
		case <-heartbeat.C:
			// Comment line keeps intermediaries from timing out the stream
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()
		}
	}
}

// StreamWebSocket streams game events over a WebSocket connection.
// GET /ws/games/:gameId
func (h *StreamHandler) StreamWebSocket(c *gin.Context) {
	gameID := c.Param("gameId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).WithField("game_id", gameID).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe(gameID)
	defer h.bus.Unsubscribe(gameID, sub)

	if payload, found, err := h.latest.GetLatest(c.Request.Context(), gameID); err != nil {
		h.logger.WithError(err).WithField("game_id", gameID).Warn("Failed to read latest-event cache")
	} else if found {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}

	// Reader goroutine: consume control frames and detect client close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingEvery)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case payload := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
