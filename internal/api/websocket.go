package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventKind names one of the push events the daemon emits over /ws.
type EventKind string

const (
	EventStatus     EventKind = "status"
	EventConnection EventKind = "connection"
	EventShare      EventKind = "share"
	EventAlert      EventKind = "alert"
)

// Event is one message pushed to every subscribed /ws client.
type Event struct {
	Kind EventKind   `json:"event"`
	Data interface{} `json:"data"`
}

// subscribeRequest is the client-initiated message naming which event
// kinds that connection wants to receive; an empty list means all kinds.
type subscribeRequest struct {
	Events []EventKind `json:"events"`
}

type subscriber struct {
	conn   *websocket.Conn
	send   chan Event
	events map[EventKind]bool // nil/empty means subscribed to everything
}

func (s *subscriber) wants(kind EventKind) bool {
	if len(s.events) == 0 {
		return true
	}
	return s.events[kind]
}

// Hub fans events out to every connected WebSocket subscriber, matching
// the register/unregister/broadcast channel pattern used throughout the
// pack's own browser-miner WebSocket hubs.
type Hub struct {
	broadcast  chan Event
	register   chan *subscriber
	unregister chan *subscriber
	done       chan struct{}

	mu   sync.RWMutex
	subs map[*subscriber]bool
}

// NewHub builds an empty, unstarted Hub; call Run to begin serving it.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Event, 256),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		done:       make(chan struct{}),
		subs:       make(map[*subscriber]bool),
	}
}

// Run is the hub's event loop; it blocks and should be started in a
// goroutine once, by NewServer.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for s := range h.subs {
				close(s.send)
				delete(h.subs, s)
			}
			h.mu.Unlock()
			return

		case s := <-h.register:
			h.mu.Lock()
			h.subs[s] = true
			h.mu.Unlock()

		case s := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subs[s]; ok {
				delete(h.subs, s)
				close(s.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.RLock()
			for s := range h.subs {
				if !s.wants(event.Kind) {
					continue
				}
				select {
				case s.send <- event:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop ends the hub's event loop and closes every subscriber's channel.
func (h *Hub) Stop() { close(h.done) }

// Broadcast publishes event to every subscriber whose filter accepts it.
func (h *Hub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
	}
}

// handleWebSocket upgrades the connection and pumps events to the client
// until it disconnects or the hub shuts down.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Debug("api: websocket upgrade failed")
		return
	}

	sub := &subscriber{conn: conn, send: make(chan Event, 64)}
	select {
	case s.hub.register <- sub:
	case <-s.hub.done:
		conn.Close()
		return
	}
	defer func() {
		select {
		case s.hub.unregister <- sub:
		case <-s.hub.done:
		}
	}()

	go sub.readSubscriptions()
	sub.writePump()
}

func (s *subscriber) readSubscriptions() {
	defer s.conn.Close()
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		filter := make(map[EventKind]bool, len(req.Events))
		for _, k := range req.Events {
			filter[k] = true
		}
		s.events = filter
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case event, ok := <-s.send:
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
