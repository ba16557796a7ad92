package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Hub maintains the set of connected dashboards and fans rendered views out
// to them. Slow clients are dropped rather than blocking the render loop.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	count      chan chan int
	done       chan struct{}
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			if h.logger != nil {
				h.logger.Debug("websocket client registered", "remote", client.conn.RemoteAddr().String())
			}
		case client := <-h.unregister:
			h.remove(client)
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					if h.logger != nil {
						h.logger.Warn("websocket client too slow, dropping", "remote", client.conn.RemoteAddr().String())
					}
					h.remove(client)
				}
			}
		case reply := <-h.count:
			reply <- len(h.clients)
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// Broadcast sends a typed message to every client. It never blocks: when
// the hub is busy the message is dropped, the next render replaces it.
func (h *Hub) Broadcast(kind string, payload any) {
	data, err := json.Marshal(map[string]any{"type": kind, "payload": payload})
	if err != nil {
		if h.logger != nil {
			h.logger.Error("websocket marshal failed", "type", kind, "err", err)
		}
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// clientCount returns the number of registered clients. It blocks until Run
// answers.
func (h *Hub) clientCount(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
	case <-h.done:
		return 0
	case <-ctx.Done():
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-ctx.Done():
		return 0
	}
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("websocket upgrade failed", "err", err)
		}
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 16)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}
