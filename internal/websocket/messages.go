package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client map artifact events
	TypeMapOpened        MessageType = "map.opened"
	TypeMarkerAdded      MessageType = "map.marker_added"
	TypeMarkerRemoved    MessageType = "map.marker_removed"
	TypeRouteDrawn       MessageType = "map.route_drawn"
	TypeRouteUpdated     MessageType = "map.route_updated"
	TypeRouteRemoved     MessageType = "map.route_removed"
	TypeInfoWindowOpened MessageType = "map.info_window_opened"
	TypeInfoWindowClosed MessageType = "map.info_window_closed"
	TypePanned           MessageType = "map.panned"
	TypeSnapshot         MessageType = "map.snapshot"

	// Server -> Client session events
	TypePlanChanged       MessageType = "plan.changed"
	TypeSearchResults     MessageType = "search.results"
	TypeEditStatusChanged MessageType = "edit.status_changed"
	TypeEditGuard         MessageType = "edit.guard"
	TypeEditLost          MessageType = "edit.lost"
	TypeNotification      MessageType = "notification"

	// Client -> Server command types
	TypeMarkerClick MessageType = "marker.click"
	TypeSync        MessageType = "map.sync"
	TypePing        MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// Command is an inbound client message. Payload is decoded by its handler.
type Command struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarkerClickPayload is the payload of marker.click commands.
type MarkerClickPayload struct {
	MarkerID string `json:"markerId"`
}

// EditGuardPayload tells browsers to install or remove their leave prompt.
type EditGuardPayload struct {
	Armed  bool   `json:"armed"`
	Prompt string `json:"prompt,omitempty"`
}

// EditLostPayload is sent when the lock expired under the user.
type EditLostPayload struct {
	TripID  int64  `json:"tripId"`
	Message string `json:"message"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level       string `json:"level"` // info, warning, error, success
	Title       string `json:"title"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// SearchResultsPayload is the payload for search.results events.
type SearchResultsPayload struct {
	Query   string `json:"query"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
