package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for local dashboard
	},
}

const writeWait = 5 * time.Second

// Event is the envelope of every message pushed to stream clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types
const (
	EventEvaluation     = "evaluation_complete"
	EventSweepCandidate = "sweep_candidate"
	EventSweepComplete  = "sweep_complete"
	EventSweepFailed    = "sweep_failed"
)

// Hub maintains the set of active websocket clients and broadcasts messages.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
	log       *slog.Logger

	closeMu sync.RWMutex // guards closed and sends on broadcast
	closed  bool
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
		log:       log.With("component", "Hub"),
	}
}

// Run pushes broadcast messages to clients until Close is called.
func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			// Write deadline keeps a blocked client from hanging the hub
			_ = client.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				h.log.Warn("websocket write failed", "error", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Close stops Run and disconnects every client. Messages broadcast after
// Close are dropped. Close is idempotent.
func (h *Hub) Close() {
	h.closeMu.Lock()
	if h.closed {
		h.closeMu.Unlock()
		return
	}
	h.closed = true
	close(h.broadcast)
	h.closeMu.Unlock()

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Subscribe handles incoming websocket connections
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mutex.Unlock()
	h.log.Info("websocket client connected", "clients", total)

	// Only pushes go down, but reading is how disconnects are noticed
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			total := len(h.clients)
			h.mutex.Unlock()
			conn.Close()
			h.log.Info("websocket client disconnected", "clients", total)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.log.Warn("websocket error", "error", err)
				}
				return
			}
		}
	}()
}

// Broadcast queues raw data for every client. A full queue drops the
// message instead of blocking the producer.
func (h *Hub) Broadcast(data []byte) {
	h.closeMu.RLock()
	defer h.closeMu.RUnlock()
	if h.closed {
		h.log.Debug("hub closed, dropping message")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("broadcast queue full, dropping message")
	}
}

// Publish wraps data in an Event envelope and broadcasts it.
func (h *Hub) Publish(eventType string, data any) {
	if h == nil {
		return
	}
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		h.log.Error("event encoding failed", "type", eventType, "error", err)
		return
	}
	h.Broadcast(payload)
}
