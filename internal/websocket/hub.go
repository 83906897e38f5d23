// Package websocket provides WebSocket connection management, message broadcasting
// and dispatch of client commands.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/trip-planner/planner/internal/logging"
)

// CommandHandler handles one inbound command type.
type CommandHandler func(client *Client, cmd Command) error

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages for every client
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Mutex for thread-safe client access
	mu sync.RWMutex

	handlersMu sync.RWMutex
	handlers   map[MessageType]CommandHandler

	logger *slog.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		handlers:   make(map[MessageType]CommandHandler),
		logger:     logger.With("component", "websocket"),
	}
}

// Run starts the hub's main event loop and returns when ctx is done.
// This should be called in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.closeClient(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("websocket client connected", "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.closeClient(client)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("websocket client disconnected", "total", total)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client send buffer full, close connection
					h.closeClient(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// closeClient drops client and closes its send channel. Must hold h.mu.
func (h *Hub) closeClient(client *Client) {
	delete(h.clients, client)
	if !client.closed {
		client.closed = true
		close(client.send)
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handle installs the handler for a command type, replacing any previous one.
func (h *Hub) Handle(t MessageType, handler CommandHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[t] = handler
}

// Dispatch decodes a raw client message and runs its handler. Failures are
// reported back to the sending client only.
func (h *Hub) Dispatch(client *Client, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		client.Reply(NewMessage(TypeError, ErrorPayload{Code: "BAD_REQUEST", Message: "malformed message"}))
		return
	}

	if cmd.Type == TypePing {
		client.Reply(NewMessage(TypePong, nil))
		return
	}

	h.handlersMu.RLock()
	handler, ok := h.handlers[cmd.Type]
	h.handlersMu.RUnlock()

	if !ok {
		client.Reply(NewMessage(TypeError, ErrorPayload{
			Code:         "UNKNOWN_COMMAND",
			Message:      fmt.Sprintf("unknown command %q", cmd.Type),
			OriginalType: string(cmd.Type),
		}))
		return
	}

	if err := handler(client, cmd); err != nil {
		h.logger.Warn("websocket command failed", "type", cmd.Type, "error", err)
		client.Reply(NewMessage(TypeError, ErrorPayload{
			Code:         "COMMAND_FAILED",
			Message:      err.Error(),
			OriginalType: string(cmd.Type),
		}))
	}
}

// Client represents a WebSocket client connection.
type Client struct {
	hub    *Hub
	send   chan []byte
	closed bool // guarded by hub.mu
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		send: make(chan []byte, 256),
	}
}

// Send returns the send channel for the client.
func (c *Client) Send() chan []byte {
	return c.send
}

// Reply queues a message for this client only. Replies to a closed client
// are dropped.
func (c *Client) Reply(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		c.hub.logger.Error("encoding websocket reply", "type", msg.Type, "error", err)
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("client send buffer full, dropping reply", "type", msg.Type)
	}
}
