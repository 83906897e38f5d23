package websocket

import (
	"log/slog"

	"github.com/trip-planner/planner/internal/editlock"
)

// EventBroadcaster handles broadcasting WebSocket events. It also serves as
// the edit session's Guard and Notifier.
type EventBroadcaster struct {
	hub    *Hub
	logger *slog.Logger
}

var (
	_ editlock.Guard    = (*EventBroadcaster)(nil)
	_ editlock.Notifier = (*EventBroadcaster)(nil)
)

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub, logger: hub.logger}
}

// Publish sends an arbitrary message to all clients.
func (b *EventBroadcaster) Publish(msg Message) {
	b.broadcast(msg)
}

// BroadcastPlanChanged sends the current plan view.
func (b *EventBroadcaster) BroadcastPlanChanged(plan any) {
	b.broadcast(NewMessage(TypePlanChanged, plan))
}

// BroadcastSearchResults sends the result set of a search. A failed search
// sends an empty set and the error text.
func (b *EventBroadcaster) BroadcastSearchResults(query string, results any, err error) {
	payload := SearchResultsPayload{Query: query, Results: results}
	if err != nil {
		payload.Error = err.Error()
	}
	b.broadcast(NewMessage(TypeSearchResults, payload))
}

// EditStatusChanged sends the edit session's state.
func (b *EventBroadcaster) EditStatusChanged(status editlock.Status) {
	b.broadcast(NewMessage(TypeEditStatusChanged, status))
}

// EditLost tells browsers the edit lock expired and shows the notice.
func (b *EventBroadcaster) EditLost(tripID int64, message string) {
	b.broadcast(NewMessage(TypeEditLost, EditLostPayload{TripID: tripID, Message: message}))
	b.BroadcastNotification("warning", "편집 권한 만료", message)
	b.logger.Info("edit lost broadcast", "trip_id", tripID)
}

// Arm asks browsers to prompt before leaving.
func (b *EventBroadcaster) Arm() {
	b.broadcast(NewMessage(TypeEditGuard, EditGuardPayload{Armed: true, Prompt: editlock.LeavePromptText}))
}

// Disarm removes the leave prompt.
func (b *EventBroadcaster) Disarm() {
	b.broadcast(NewMessage(TypeEditGuard, EditGuardPayload{Armed: false}))
}

// BroadcastNotification sends a notification to all connected clients.
func (b *EventBroadcaster) BroadcastNotification(level, title, message string) {
	payload := NotificationPayload{
		Level:       level,
		Title:       title,
		Message:     message,
		Dismissible: true,
	}

	msg := NewMessage(TypeNotification, payload)
	b.broadcast(msg)
}

// broadcast sends a message to all connected clients.
func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		b.logger.Error("encoding websocket message", "type", msg.Type, "error", err)
		return
	}

	b.hub.Broadcast(data)
}
