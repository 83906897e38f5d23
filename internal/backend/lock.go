package backend

import (
	"context"
	"fmt"
	"net/http"
)

// LockGrant is the response to a lock acquisition.
type LockGrant struct {
	Success           bool   `json:"success"`
	HeartbeatInterval int    `json:"heartbeatInterval,omitempty"` // seconds; 0 keeps the client default
	CurrentOwner      *int64 `json:"currentOwner,omitempty"`
}

// HeartbeatAck is the response to a lock renewal.
type HeartbeatAck struct {
	Success       bool `json:"success"`
	NextHeartbeat int  `json:"nextHeartbeat,omitempty"` // seconds
	ShouldRestart bool `json:"shouldRestart,omitempty"`
}

// LockStatus is the read-only view of a trip's edit lock.
type LockStatus struct {
	Locked        bool   `json:"locked"`
	CurrentOwner  *int64 `json:"currentOwner,omitempty"`
	TimeRemaining int    `json:"timeRemaining,omitempty"` // seconds
}

// AcquireLock requests the edit lock of a trip.
func (c *Client) AcquireLock(ctx context.Context, tripID int64) (*LockGrant, error) {
	var grant LockGrant
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/trips/%d/lock", tripID), nil, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// Heartbeat renews the edit lock of a trip.
func (c *Client) Heartbeat(ctx context.Context, tripID int64) (*HeartbeatAck, error) {
	var ack HeartbeatAck
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/trips/%d/heartbeat", tripID), nil, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// ReleaseLock gives up the edit lock of a trip.
func (c *Client) ReleaseLock(ctx context.Context, tripID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/trips/%d/lock", tripID), nil, nil)
}

// LockStatus reads the current state of a trip's edit lock.
func (c *Client) LockStatus(ctx context.Context, tripID int64) (*LockStatus, error) {
	var status LockStatus
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/trips/%d/lock/status", tripID), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
