package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trip-planner/planner/internal/editlock"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func receive(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case raw, ok := <-c.Send():
		require.True(t, ok, "client channel closed")
		var msg map[string]any
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	hub := startHub(t)
	a, b := NewClient(hub), NewClient(hub)
	hub.Register(a)
	hub.Register(b)

	NewEventBroadcaster(hub).BroadcastNotification("info", "title", "hello")

	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		assert.Equal(t, string(TypeNotification), msg["type"])
		assert.Equal(t, "hello", msg["payload"].(map[string]any)["message"])
	}
	assert.Equal(t, 2, hub.ClientCount())
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub)
	hub.Register(c)
	hub.Unregister(c)

	_, ok := <-c.Send()
	assert.False(t, ok)

	// Replies to a closed client are dropped instead of panicking.
	c.Reply(NewMessage(TypePong, nil))
}

func TestHub_Dispatch(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub)
	hub.Register(c)

	var clicked string
	hub.Handle(TypeMarkerClick, func(_ *Client, cmd Command) error {
		var p MarkerClickPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		clicked = p.MarkerID
		return nil
	})
	hub.Handle(TypeSync, func(*Client, Command) error { return errors.New("not ready") })

	hub.Dispatch(c, []byte(`{"type":"ping"}`))
	assert.Equal(t, string(TypePong), receive(t, c)["type"])

	hub.Dispatch(c, []byte(`{"type":"marker.click","payload":{"markerId":"m-1"}}`))
	assert.Equal(t, "m-1", clicked)

	hub.Dispatch(c, []byte(`{"type":"map.sync"}`))
	msg := receive(t, c)
	assert.Equal(t, string(TypeError), msg["type"])
	assert.Equal(t, "COMMAND_FAILED", msg["payload"].(map[string]any)["code"])

	hub.Dispatch(c, []byte(`{"type":"nope"}`))
	assert.Equal(t, "UNKNOWN_COMMAND", receive(t, c)["payload"].(map[string]any)["code"])

	hub.Dispatch(c, []byte(`not json`))
	assert.Equal(t, "BAD_REQUEST", receive(t, c)["payload"].(map[string]any)["code"])
}

func TestEventBroadcaster_EditEvents(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub)
	hub.Register(c)
	b := NewEventBroadcaster(hub)

	b.Arm()
	msg := receive(t, c)
	assert.Equal(t, string(TypeEditGuard), msg["type"])
	assert.Equal(t, true, msg["payload"].(map[string]any)["armed"])

	owner := int64(7)
	b.EditStatusChanged(editlock.Status{State: "idle", CurrentOwner: &owner})
	msg = receive(t, c)
	assert.Equal(t, string(TypeEditStatusChanged), msg["type"])
	assert.Equal(t, float64(7), msg["payload"].(map[string]any)["currentOwner"])

	b.EditLost(42, editlock.LostNoticeText)
	msg = receive(t, c)
	assert.Equal(t, string(TypeEditLost), msg["type"])
	assert.Equal(t, float64(42), msg["payload"].(map[string]any)["tripId"])
	msg = receive(t, c)
	assert.Equal(t, string(TypeNotification), msg["type"])
	assert.Equal(t, "warning", msg["payload"].(map[string]any)["level"])
}

func TestHub_StoppedHubDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	c := NewClient(hub)
	hub.Register(c)
	hub.Unregister(c)
}
