package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/trip-planner/planner/internal/mapview"
	"github.com/trip-planner/planner/internal/planner"
	ws "github.com/trip-planner/planner/internal/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 65536
)

// NewUpgrader accepts connections from the listed origins, or from any
// origin when the list is empty.
func NewUpgrader(origins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
}

// WebSocketUpgrade returns a handler that upgrades HTTP connections to
// WebSocket. New clients first receive the map snapshot and the plan.
func WebSocketUpgrade(hub *ws.Hub, upgrader *websocket.Upgrader, surface *mapview.Surface, svc *planner.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		// Register before reading state so no change falls between the
		// snapshot and the first broadcast.
		client := ws.NewClient(hub)
		hub.Register(client)
		client.Reply(ws.NewMessage(ws.TypeSnapshot, surface.Snapshot()))
		client.Reply(ws.NewMessage(ws.TypePlanChanged, svc.View()))

		go writePump(conn, client)
		go readPump(conn, client, hub, logger)
	}
}

// RegisterCommands installs the handlers of browser commands on hub.
func RegisterCommands(hub *ws.Hub, surface *mapview.Surface) {
	hub.Handle(ws.TypeMarkerClick, func(_ *ws.Client, cmd ws.Command) error {
		var payload ws.MarkerClickPayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return fmt.Errorf("decoding marker click: %w", err)
		}
		return surface.Click(payload.MarkerID)
	})

	hub.Handle(ws.TypeSync, func(client *ws.Client, _ ws.Command) error {
		client.Reply(ws.NewMessage(ws.TypeSnapshot, surface.Snapshot()))
		return nil
	})
}

// writePump pumps messages from the hub to the WebSocket connection.
func writePump(conn *websocket.Conn, client *ws.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps commands from the WebSocket connection to the hub.
func readPump(conn *websocket.Conn, client *ws.Client, hub *ws.Hub, logger *slog.Logger) {
	defer func() {
		hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read failed", "error", err)
			}
			break
		}

		hub.Dispatch(client, message)
	}
}
