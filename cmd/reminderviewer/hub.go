package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// ViewerEvent is one Kafka record forwarded to the browser.
type ViewerEvent struct {
	Topic     string          `json:"topic"`
	EventType string          `json:"eventType"`
	Key       string          `json:"key"`
	Principal string          `json:"principal,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// decodeMessage turns a Kafka message into a ViewerEvent. The event type
// comes from the eventType header, falling back to the payload field.
func decodeMessage(msg kafka.Message) (ViewerEvent, error) {
	var body struct {
		EventType string `json:"eventType"`
	}
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		return ViewerEvent{}, err
	}

	event := ViewerEvent{
		Topic:     msg.Topic,
		EventType: body.EventType,
		Key:       string(msg.Key),
		Timestamp: msg.Time.UnixMilli(),
		Payload:   json.RawMessage(msg.Value),
	}
	for _, h := range msg.Headers {
		switch h.Key {
		case "eventType":
			event.EventType = string(h.Value)
		case "principal":
			event.Principal = string(h.Value)
		}
	}
	if msg.Time.IsZero() {
		event.Timestamp = time.Now().UnixMilli()
	}
	return event, nil
}

// Hub manages WebSocket connections
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan ViewerEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.Mutex
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan ViewerEvent, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// count returns the number of connected browsers.
func (h *Hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Info().Int("clients", total).Msg("Viewer connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Info().Int("clients", total).Msg("Viewer disconnected")

		case event := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(event); err != nil {
					log.Warn().Err(err).Msg("Viewer write failed")
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// stop closes every connection and ends run.
func (h *Hub) stop() {
	close(h.done)
}

// publish queues an event for every connected browser.
func (h *Hub) publish(event ViewerEvent) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Local tool, any origin
	},
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		select {
		case hub.register <- conn:
		case <-hub.done:
			conn.Close()
			return
		}

		// Drain reads to notice disconnects
		go func() {
			defer func() {
				select {
				case hub.unregister <- conn:
				case <-hub.done:
				}
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
