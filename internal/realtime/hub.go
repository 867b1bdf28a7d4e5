// Package realtime streams scored transactions to WebSocket subscribers.
//
// Dashboards subscribe instead of polling the feed endpoint. Every scored
// transaction is pushed as it happens; clients can narrow the stream to
// fraud verdicts, a risk-score floor, or a set of watched addresses.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chainguard-ml/chainguard/internal/metrics"
)

const (
	// MaxClients is the maximum number of concurrent WebSocket connections.
	MaxClients = 10000

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// normalCloseCodes indicate an expected disconnect.
var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

// sameHostOrigin admits non-browser clients (no Origin header) and browsers
// served from the same host.
func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameHostOrigin,
}

// Subscription filters for a client. The zero value receives everything.
type Subscription struct {
	FraudOnly    bool     `json:"fraud_only"`
	MinRiskScore int      `json:"min_risk_score"`
	Addresses    []string `json:"addresses"`
}

// probe is the subset of the event payload the filters inspect.
type probe struct {
	From      string `json:"from_address"`
	To        string `json:"to_address"`
	RiskScore int    `json:"risk_score"`
	IsFraud   bool   `json:"is_fraud"`
}

type envelope struct {
	raw   []byte
	probe probe
}

// Client is one WebSocket subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	sub  Subscription
}

// wants checks whether the event passes the client's subscription filters.
func (c *Client) wants(p probe) bool {
	c.mu.RLock()
	sub := c.sub
	c.mu.RUnlock()

	if sub.FraudOnly && !p.IsFraud {
		return false
	}
	if p.RiskScore < sub.MinRiskScore {
		return false
	}
	if len(sub.Addresses) > 0 {
		matched := false
		for _, addr := range sub.Addresses {
			if addr == p.From || addr == p.To {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Hub fans scored-transaction events out to connected clients.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	logger     *slog.Logger
	done       chan struct{} // closed when Run exits; prevents upgrade race
	maxClients int

	totalEvents  atomic.Int64
	totalClients atomic.Int64
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan envelope, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
		maxClients: MaxClients,
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("realtime hub stopped")
			return
		case client := <-h.register:
			h.attach(client)
		case client := <-h.unregister:
			h.detach(client)
		case env := <-h.broadcast:
			h.fanout(env)
		}
	}
}

func (h *Hub) attach(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.totalClients.Add(1)
	metrics.ActiveWebSocketClients.Set(float64(n))
	h.logger.Info("feed client connected", "total", n)
}

func (h *Hub) detach(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.ActiveWebSocketClients.Set(float64(n))
	h.logger.Info("feed client disconnected", "total", n)
}

// fanout delivers one event to every matching client. Clients whose send
// buffer is full are evicted rather than allowed to stall the stream.
func (h *Hub) fanout(env envelope) {
	h.totalEvents.Add(1)

	var slow []*Client
	h.mu.RLock()
	for client := range h.clients {
		if !client.wants(env.probe) {
			continue
		}
		select {
		case client.send <- env.raw:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.detach(client)
		h.logger.Warn("evicted slow feed client")
	}
}

func (h *Hub) closeAll() {
	h.logger.Info("realtime hub shutting down, closing client connections")
	h.mu.Lock()
	for client := range h.clients {
		close(client.send) // writePump sends CloseMessage on closed channel
		delete(h.clients, client)
	}
	h.mu.Unlock()
	metrics.ActiveWebSocketClients.Set(0)
}

// Broadcast pushes one scored transaction to all matching clients.
// Fire-and-forget: a full broadcast channel drops the event.
func (h *Hub) Broadcast(event any) {
	raw, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("event serialization failed", "error", err)
		return
	}
	var p probe
	_ = json.Unmarshal(raw, &p)

	select {
	case h.broadcast <- envelope{raw: raw, probe: p}:
	default:
		h.logger.Warn("broadcast channel full, dropping event")
	}
}

// Stats reports connection and delivery counters.
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	connected := len(h.clients)
	h.mu.RUnlock()

	return map[string]any{
		"connected_clients": connected,
		"total_events":      h.totalEvents.Load(),
		"total_clients":     h.totalClients.Load(),
	}
}

// HandleWebSocket upgrades the request and registers the client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Reject upgrades after the hub has stopped to prevent orphaned connections.
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump consumes inbound frames; the only meaningful payload is a JSON
// Subscription update.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var sub Subscription
		if err := json.Unmarshal(message, &sub); err != nil {
			continue
		}
		c.mu.Lock()
		c.sub = sub
		c.mu.Unlock()
	}
}

// writePump drains the send channel and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warn("websocket write error", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}
