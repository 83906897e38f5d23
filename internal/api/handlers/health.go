// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"context"
	"net/http"

	"github.com/trip-planner/planner/internal/api/middleware"
	"github.com/trip-planner/planner/internal/editlock"
	"github.com/trip-planner/planner/internal/planner"
	"github.com/trip-planner/planner/internal/storage"
	"github.com/trip-planner/planner/internal/websocket"
)

// Prober reports whether the trip backend answers.
type Prober interface {
	Reachable(ctx context.Context) bool
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status           string `json:"status"`
	DBConnected      bool   `json:"db_connected"`
	BackendReachable bool   `json:"backend_reachable"`
}

// HealthCheck returns a handler that performs a health check. An
// unreachable backend degrades the planner but does not fail it.
func HealthCheck(db *storage.DB, backend Prober) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil
		reachable := backend.Reachable(r.Context())

		status := "healthy"
		if !reachable {
			status = "degraded"
		}

		code := http.StatusOK
		if !dbConnected {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}

		middleware.WriteJSON(w, code, HealthResponse{
			Status:           status,
			DBConnected:      dbConnected,
			BackendReachable: reachable,
		})
	}
}

// StatusResponse represents the planner status response.
type StatusResponse struct {
	Clients  int             `json:"clients"`
	TripID   int64           `json:"trip_id,omitempty"`
	Edit     editlock.Status `json:"edit"`
	Days     int             `json:"days"`
	Markers  int             `json:"markers"`
	ReadOnly bool            `json:"read_only"`
}

// Status returns a handler that provides planner status information.
func Status(hub *websocket.Hub, svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := svc.View()
		middleware.WriteJSON(w, http.StatusOK, StatusResponse{
			Clients:  hub.ClientCount(),
			TripID:   view.TripID,
			Edit:     view.Edit,
			Days:     len(view.Days),
			Markers:  len(view.Markers),
			ReadOnly: view.ReadOnly,
		})
	}
}
