// -----------------------------------------------------------------------
// WebSocket Handler - Streams run progress to connected clients
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/traho/internal/common"
	"github.com/ternarybob/traho/internal/interfaces"
	"github.com/ternarybob/traho/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every message sent to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler fans engine events out to connected clients. Writes to
// a connection are serialized through a per-connection mutex because
// gorilla/websocket allows only one concurrent writer.
type WebSocketHandler struct {
	logger            arbor.ILogger
	clients           map[*websocket.Conn]bool
	clientMutex       map[*websocket.Conn]*sync.Mutex
	mu                sync.RWMutex
	eventService      interfaces.EventService
	progressThrottler *rate.Limiter // Limits progress broadcast frequency for large orders
	minLogLevel       int           // Run-log lines below this level are not broadcast
	serverInstanceID  string        // Unique ID generated on startup - clients use to detect server restart
}

// logLevelRank orders the broadcastable log levels
var logLevelRank = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

// NewWebSocketHandler creates the handler and subscribes it to run events
func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		serverInstanceID: uuid.New().String(),
	}

	// Nil throttler = no throttling
	if config != nil {
		if rank, ok := logLevelRank[strings.ToLower(config.MinLevel)]; ok {
			h.minLogLevel = rank
		}
		if intervalStr, ok := config.ThrottleIntervals["progress"]; ok {
			if duration, err := time.ParseDuration(intervalStr); err == nil {
				h.progressThrottler = rate.NewLimiter(rate.Every(duration), 1)
				logger.Debug().
					Str("event_type", "progress").
					Str("interval", intervalStr).
					Msg("Throttler initialized for progress events")
			} else {
				logger.Warn().
					Err(err).
					Str("interval", intervalStr).
					Msg("Failed to parse progress throttle interval - throttler disabled")
			}
		}
	}

	if eventService != nil {
		h.subscribeToRunEvents()
	}

	return h
}

// subscribeToRunEvents forwards engine events to connected clients
func (h *WebSocketHandler) subscribeToRunEvents() {
	h.eventService.Subscribe(interfaces.EventStatusChange, func(ctx context.Context, event interfaces.Event) error {
		// Status transitions are rare and always delivered
		h.broadcast(WSMessage{Type: string(event.Type), Payload: event.Payload})
		return nil
	})

	h.eventService.Subscribe(interfaces.EventItemProgress, func(ctx context.Context, event interfaces.Event) error {
		if h.progressThrottler != nil && !h.progressThrottler.Allow() {
			return nil // Dropped, the next progress event carries fresher state
		}
		h.broadcast(WSMessage{Type: string(event.Type), Payload: event.Payload})
		return nil
	})

	h.eventService.Subscribe(interfaces.EventRunLog, func(ctx context.Context, event interfaces.Event) error {
		if payload, ok := event.Payload.(models.RunLogPayload); ok && !h.logLevelAllowed(payload.Level) {
			return nil
		}
		h.broadcast(WSMessage{Type: string(event.Type), Payload: event.Payload})
		return nil
	})

	h.logger.Debug().Msg("WebSocket handler subscribed to run events")
}

// HandleWebSocket handles GET /ws connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	// Greet with the server instance so clients can reset stale state
	h.sendTo(conn, WSMessage{
		Type: "hello",
		Payload: map[string]string{
			"server_instance_id": h.serverInstanceID,
			"version":            common.GetVersion(),
		},
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Read loop keeps the connection alive; clients send nothing we act on
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// broadcast sends the message to every connected client
func (h *WebSocketHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range conns {
		mutexes[i].Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutexes[i].Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send WebSocket message")
		}
	}
}

// sendTo sends a message to a single client
func (h *WebSocketHandler) sendTo(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()
	if mutex == nil {
		return
	}

	mutex.Lock()
	defer mutex.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send WebSocket greeting")
	}
}

// logLevelAllowed reports whether a run-log line at level clears the
// configured minimum. Unknown levels are always broadcast.
func (h *WebSocketHandler) logLevelAllowed(level string) bool {
	rank, ok := logLevelRank[strings.ToLower(level)]
	if !ok {
		return true
	}
	return rank >= h.minLogLevel
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
