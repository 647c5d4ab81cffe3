package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// DashboardHub broadcasts alert payloads to connected operator dashboards
// over websockets. It doubles as the always-on "dashboard" delivery
// channel.
type DashboardHub struct {
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	clients    map[*dashboardClient]struct{}
	bufferSize int
}

type dashboardClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewDashboardHub creates a hub with the given per-client send buffer.
func NewDashboardHub(bufferSize int, logger *slog.Logger) *DashboardHub {
	return &DashboardHub{
		logger:     logger,
		upgrader:   websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		clients:    make(map[*dashboardClient]struct{}),
		bufferSize: bufferSize,
	}
}

func (h *DashboardHub) Name() string { return ChannelDashboard }

// Deliver broadcasts the payload to all connected dashboards. A hub with no
// connected clients still succeeds: the dashboard channel is about
// availability of the feed, not guaranteed observation.
func (h *DashboardHub) Deliver(_ context.Context, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal dashboard payload: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Slow consumer; drop the frame rather than block dispatch.
			h.logger.Warn("Dashboard client buffer full, dropping frame")
		}
	}
	return nil
}

// ClientCount returns the number of connected dashboards, for metrics.
func (h *DashboardHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a websocket subscription.
func (h *DashboardHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade dashboard connection", "error", err)
		return
	}

	client := &dashboardClient{
		conn: conn,
		send: make(chan []byte, h.bufferSize),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("Dashboard client connected", "remote", r.RemoteAddr)

	go h.writeLoop(client)
	go h.readLoop(client)
}

func (h *DashboardHub) writeLoop(client *dashboardClient) {
	defer client.conn.Close()
	for data := range client.send {
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// readLoop drains incoming frames so ping/pong control handling works and
// detects disconnects.
func (h *DashboardHub) readLoop(client *dashboardClient) {
	defer h.drop(client)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *DashboardHub) drop(client *dashboardClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	client.conn.Close()
}
