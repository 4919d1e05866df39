// Package wshub streams dispatch lifecycle events to connected operator
// dashboards over WebSocket. It adapts the teacher's single-broadcaster
// MetricsHub from a ticker-polled tenant-metrics push into a push-on-publish
// fan-out subscribed directly to the Event Bus, since this core's "live"
// surface is the event stream itself rather than a periodically recomputed
// dashboard snapshot.
package wshub

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/eventbus"
)

const maxConnections = 200

// Hub manages WebSocket connections and fans out every event published on
// the Event Bus to every connected client. Single broadcaster pattern
// prevents one goroutine per client from each re-reading the event stream.
type Hub struct {
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	events     chan eventbus.Event
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		events:     make(chan eventbus.Event, 256),
	}
}

// HandleEvent is registered with the Event Bus for every event type this
// hub forwards; it must never block the publisher, so a full buffer drops
// the event rather than backing up Publish.
func (h *Hub) HandleEvent(ctx context.Context, e eventbus.Event) error {
	select {
	case h.events <- e:
	default:
		log.Printf("wshub: dropping event type=%s, broadcast channel full", e.Type)
	}
	return nil
}

// Run starts the hub's main loop and blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case conn := <-h.register:
			h.addClient(conn)
		case conn := <-h.unregister:
			h.removeClient(conn)
		case e := <-h.events:
			h.broadcast(e)
		}
	}
}

func (h *Hub) addClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) >= maxConnections {
		conn.Close()
		log.Printf("wshub: connection rejected, max connections (%d) reached", maxConnections)
		return
	}
	h.clients[conn] = struct{}{}
	log.Printf("wshub: client registered, total %d", len(h.clients))
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	log.Printf("wshub: client unregistered, total %d", len(h.clients))
}

func (h *Hub) broadcast(e eventbus.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(e); err != nil {
			log.Printf("wshub: write error: %v", err)
			go h.Unregister(conn)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	log.Printf("wshub: shutting down with %d clients", len(h.clients))
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
}

// Register adds a new client connection to the broadcast set.
func (h *Hub) Register(conn *websocket.Conn) {
	h.register <- conn
}

// Unregister removes a client connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.unregister <- conn
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscribeAll wires h to every event type sub can deliver, by subscribing
// HandleEvent to each name in eventTypes.
func (h *Hub) SubscribeAll(sub eventbus.Subscriber, eventTypes []string) {
	for _, t := range eventTypes {
		sub.Subscribe(t, h.HandleEvent)
	}
}
