package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/erazemk/darilo/internal/model"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 25 * time.Second
	pongWait     = 60 * time.Second
	sendBuffer   = 32
)

var (
	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "darilo_ws_connections",
		Help: "Open websocket notification connections.",
	})
	deliveredCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "darilo_ws_messages_total",
		Help: "Websocket notification writes by result.",
	}, []string{"result"})
)

// client is one websocket connection. Its writeLoop is the only goroutine
// writing to conn.
type client struct {
	userID int64
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func newClient(userID int64, conn *websocket.Conn) *client {
	return &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// enqueue hands msg to the writer without blocking. It reports false when
// the client is closed or its buffer is full.
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writeLoop writes queued events and pings until the client is closed or a
// write fails.
func (c *client) writeLoop() error {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return nil
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				deliveredCounter.WithLabelValues("error").Inc()
				return err
			}
			deliveredCounter.WithLabelValues("ok").Inc()
		case <-t.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// Hub routes events to the websocket connections of each user. A user may
// hold several connections at once.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*client]struct{}
	logger  *slog.Logger
}

// NewHub returns an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[int64]map[*client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.mu.Unlock()
	connectionsGauge.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	set := h.clients[c.userID]
	_, ok := set[c]
	if ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	if ok {
		connectionsGauge.Dec()
	}
	c.close()
}

// Connections returns the number of open connections for userID.
func (h *Hub) Connections(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Serve attaches conn to userID and blocks until the peer goes away or ctx
// is done. Incoming messages are discarded.
func (h *Hub) Serve(ctx context.Context, userID int64, conn *websocket.Conn) {
	c := newClient(userID, conn)
	h.register(c)
	defer h.unregister(c)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		if err := c.writeLoop(); err != nil {
			h.logger.Warn("dropping websocket client", "user_id", userID, "error", err)
		}
		h.unregister(c)
	}()
	go func() {
		select {
		case <-ctx.Done():
			h.unregister(c)
		case <-c.done:
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) targets(userID int64, all bool) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*client
	if all {
		for _, set := range h.clients {
			for c := range set {
				out = append(out, c)
			}
		}
		return out
	}
	for c := range h.clients[userID] {
		out = append(out, c)
	}
	return out
}

func (h *Hub) send(ctx context.Context, targets []*client, ev model.Event) {
	if len(targets) == 0 {
		return
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to encode event", "kind", ev.Kind, "error", err)
		return
	}
	for _, c := range targets {
		if !c.enqueue(msg) {
			deliveredCounter.WithLabelValues("dropped").Inc()
			h.logger.WarnContext(ctx, "dropping slow websocket client", "user_id", c.userID)
			h.unregister(c)
		}
	}
}

// Notify sends ev to every connection of userID.
func (h *Hub) Notify(ctx context.Context, userID int64, ev model.Event) {
	h.send(ctx, h.targets(userID, false), ev)
}

// Broadcast sends ev to every connection.
func (h *Hub) Broadcast(ctx context.Context, ev model.Event) {
	h.send(ctx, h.targets(0, true), ev)
}
