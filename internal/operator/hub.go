// Package operator streams handoff and payment events to connected
// merchant dashboards over websockets.
package operator

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wolfman30/whatsapp-commerce/internal/events"
	httpmiddleware "github.com/wolfman30/whatsapp-commerce/internal/http/middleware"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// Event is the frame written to every subscriber.
type Event struct {
	Type       string    `json:"type"`
	TenantID   string    `json:"tenant_id,omitempty"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

type client struct {
	conn     *websocket.Conn
	tenantID string
	send     chan []byte
}

// Hub fans events out to websocket subscribers. A subscriber bound to a
// tenant only sees that tenant's events.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *logging.Logger
	now      func() time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		clients:  make(map[*client]struct{}),
	}
}

// Clients returns the number of live subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish never blocks; a subscriber whose buffer is full is disconnected.
func (h *Hub) Publish(eventType string, payload any) {
	evt := Event{
		Type:       eventType,
		TenantID:   tenantOf(payload),
		Payload:    payload,
		OccurredAt: h.now(),
	}
	frame, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("operator: marshal event", "error", err, "type", eventType)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.tenantID != "" && c.tenantID != evt.TenantID {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("operator: dropping slow subscriber", "tenant_id", c.tenantID)
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func tenantOf(payload any) string {
	switch p := payload.(type) {
	case events.HandoffV1:
		return p.TenantID
	case events.OrderPaidV1:
		return p.TenantID
	case *events.HandoffV1:
		return p.TenantID
	case *events.OrderPaidV1:
		return p.TenantID
	}
	return ""
}

// ServeWS upgrades the request and streams events until the peer goes away.
// Tenant-scoped admin tokens are pinned to their tenant; operators may pick
// one with ?tenant_id=.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if claims, ok := httpmiddleware.AdminClaimsFromContext(r.Context()); ok && claims.TenantID != "" {
		if tenantID != "" && !claims.CanAccess(tenantID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		tenantID = claims.TenantID
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("operator: websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, tenantID: tenantID, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("operator: subscriber connected", "tenant_id", tenantID)

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readLoop only services control frames.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		h.logger.Debug("operator: subscriber disconnected", "tenant_id", c.tenantID)
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
