package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/common"
	"github.com/ternarybob/concilio/internal/interfaces"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const writeTimeout = 10 * time.Second

type wsClient struct {
	conn     *websocket.Conn
	tenantID string
	limiter  *rate.Limiter
	mu       sync.Mutex
}

// WebSocketHandler streams job lifecycle events to connected dashboards.
// Each connection is tenant-scoped: a client only receives events for
// its own tenant.
type WebSocketHandler struct {
	logger        arbor.ILogger
	events        interfaces.EventService
	allowedEvents map[string]bool
	eventsPerSec  rate.Limit
	eventBurst    int
	clients       map[*wsClient]bool
	mu            sync.RWMutex
}

// NewWebSocketHandler creates the websocket handler and subscribes it to
// the job lifecycle events.
func NewWebSocketHandler(events interfaces.EventService, config *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:        logger,
		events:        events,
		allowedEvents: make(map[string]bool),
		eventsPerSec:  rate.Inf,
		clients:       make(map[*wsClient]bool),
	}

	// Empty whitelist allows all events
	if config != nil {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		if config.EventsPerSec > 0 {
			h.eventsPerSec = rate.Limit(config.EventsPerSec)
			h.eventBurst = config.EventBurst
			if h.eventBurst < 1 {
				h.eventBurst = 1
			}
		}
	}

	for _, eventType := range []interfaces.EventType{
		interfaces.EventJobSubmitted,
		interfaces.EventAnalysisCompleted,
		interfaces.EventAnalysisFailed,
		interfaces.EventJobTimeout,
	} {
		events.Subscribe(eventType, h.handleEvent)
	}

	return h
}

// WebSocketHandler upgrades the connection and registers the client
// GET /ws
func (h *WebSocketHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	tenant := TenantID(r)
	if tenant == "" {
		tenant = r.URL.Query().Get("tenant_id")
	}
	if tenant == "" {
		WriteError(w, http.StatusBadRequest, "missing_tenant")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &wsClient{
		conn:     conn,
		tenantID: tenant,
		limiter:  rate.NewLimiter(h.eventsPerSec, h.eventBurst),
	}
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().
		Str("tenant_id", tenant).
		Int("clients", count).
		Msg("WebSocket client connected")

	// Reader loop exists only to detect disconnect
	go func() {
		defer h.remove(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *WebSocketHandler) remove(client *wsClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	client.conn.Close()
}

func (h *WebSocketHandler) handleEvent(ctx context.Context, event interfaces.Event) error {
	if len(h.allowedEvents) > 0 && !h.allowedEvents[string(event.Type)] {
		return nil
	}

	message := map[string]interface{}{
		"type":      string(event.Type),
		"tenant_id": event.TenantID,
		"payload":   event.Payload,
		"timestamp": time.Now().UnixMilli(),
	}

	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		if client.tenantID == event.TenantID {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if !client.limiter.Allow() {
			continue
		}
		client.mu.Lock()
		client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := client.conn.WriteJSON(message)
		client.mu.Unlock()
		if err != nil {
			h.logger.Debug().Err(err).Msg("Dropping unresponsive WebSocket client")
			h.remove(client)
		}
	}
	return nil
}

// Close disconnects all clients.
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.conn.Close()
	}
	h.clients = make(map[*wsClient]bool)
}
