package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/velocityiq/velocityiq-engine/pkg/auth"
	"github.com/velocityiq/velocityiq-engine/pkg/notify"
)

const (
	pingInterval = 30 * time.Second
	pingTimeout  = 10 * time.Second

	// Per-client send buffer. A subscriber that falls this far behind
	// starts losing events rather than slowing the publisher down.
	sendBufferSize = 64
)

// Hub fans dashboard events out to websocket subscribers. It implements
// notify.Sink, so the services publish to it like any other sink.
type Hub struct {
	mu             sync.RWMutex
	clients        map[*wsClient]struct{}
	allowAll       bool
	originPatterns []string
	logger         *zap.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

var _ notify.Sink = (*Hub)(nil)

// NewHub creates a websocket hub. allowedOrigins is the same comma-separated
// list the CORS middleware uses; "*" accepts any origin.
func NewHub(allowedOrigins string, logger *zap.Logger) *Hub {
	return &Hub{
		clients:        make(map[*wsClient]struct{}),
		allowAll:       strings.TrimSpace(allowedOrigins) == "*",
		originPatterns: originHostPatterns(allowedOrigins),
		logger:         logger.Named("ws-hub"),
	}
}

// originHostPatterns extracts host[:port] patterns from a comma-separated
// origin list, which is what the websocket accept check matches against.
func originHostPatterns(allowedOrigins string) []string {
	var patterns []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		o = strings.TrimSpace(o)
		if o == "" || o == "*" {
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}

// RegisterRoutes registers the event stream endpoint on the given mux.
func (h *Hub) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/dashboard/events", authMiddleware.RequireAuth(h.HandleWS))
}

// Publish broadcasts one event to every connected subscriber. Subscribers
// with a full send buffer are skipped; Publish never blocks.
func (h *Hub) Publish(ctx context.Context, event notify.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.Error(err), zap.String("type", event.Type))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// client too slow, skip
		}
	}
}

// SubscriberCount reports the number of connected clients.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber. Used during shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// HandleWS handles GET /api/dashboard/events. The connection stays open
// until the client disconnects or the server shuts down; events flow one
// JSON object per message.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.allowAll,
		OriginPatterns:     h.originPatterns,
	})
	if err != nil {
		h.logger.Debug("Websocket accept failed", zap.Error(err))
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	h.register(client)
	h.logger.Debug("Subscriber connected", zap.Int("subscribers", h.SubscriberCount()))

	ctx := r.Context()
	go h.pingLoop(ctx, client)
	go h.writePump(ctx, client)
	h.readPump(ctx, client)

	h.logger.Debug("Subscriber disconnected", zap.Int("subscribers", h.SubscriberCount()))
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// unregister removes the client and closes its send channel exactly once;
// whoever removes the client from the map owns the close.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if present {
		close(c.send)
	}
}

func (h *Hub) pingLoop(ctx context.Context, c *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				_ = c.conn.Close(websocket.StatusPolicyViolation, "ping timeout")
				return
			}
		}
	}
}

// readPump consumes inbound frames until the connection drops. The stream
// is one-way; anything the client sends is discarded, but reading is what
// surfaces disconnects and processes pongs.
func (h *Hub) readPump(ctx context.Context, c *wsClient) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *wsClient) {
	for data := range c.send {
		if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}
}
