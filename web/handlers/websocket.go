package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// writeTimeout bounds a single websocket write to a slow client.
const writeTimeout = 10 * time.Second

// EventHub fans cycle-completed events out to connected websocket clients.
// Slow clients are dropped rather than allowed to stall the broadcast.
type EventHub struct {
	mu      sync.Mutex
	clients map[string]chan []byte
	closed  bool
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[string]chan []byte)}
}

// Broadcast pushes a cycle event to every connected client. Clients whose
// send buffer is full are disconnected.
func (h *EventHub) Broadcast(event CycleEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("ERROR: failed to marshal cycle event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for id, send := range h.clients {
		select {
		case send <- data:
		default:
			close(send)
			delete(h.clients, id)
			log.Printf("WARNING: dropped slow websocket client %s", id)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients and rejects future ones.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, send := range h.clients {
		close(send)
		delete(h.clients, id)
	}
}

func (h *EventHub) register() (string, chan []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", nil, false
	}
	id := uuid.NewString()
	send := make(chan []byte, 64)
	h.clients[id] = send
	return id, send, true
}

func (h *EventHub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if send, ok := h.clients[id]; ok {
		close(send)
		delete(h.clients, id)
	}
}

// ServeHTTP upgrades the request to a websocket and streams cycle events
// until the client disconnects or the hub closes.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("ERROR: websocket upgrade failed: %v", err)
		return
	}

	id, send, ok := h.register()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "hub closed")
		return
	}
	log.Printf("websocket client %s connected", id)

	// Drain reads to notice disconnects; clients never send data we act on.
	go func() {
		defer h.unregister(id)
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}()

	defer conn.Close(websocket.StatusNormalClosure, "")
	for message := range send {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			h.unregister(id)
			log.Printf("WARNING: websocket write to %s failed: %v", id, err)
			return
		}
	}
}
