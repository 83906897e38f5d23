package handlers

import (
	"net/http"

	"github.com/trip-planner/planner/internal/api/middleware"
	"github.com/trip-planner/planner/internal/backend"
	"github.com/trip-planner/planner/internal/editlock"
	"github.com/trip-planner/planner/internal/planner"
)

// EditStatusResponse combines the server's view of the lock with the local one.
type EditStatusResponse struct {
	Server *backend.LockStatus `json:"server"`
	Local  editlock.Status     `json:"local"`
}

// EditTrip loads an existing trip's plan (the submission body) and starts
// editing it.
func EditTrip(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tripID, ok := int64Var(w, r, "tripId")
		if !ok {
			return
		}
		var plan backend.PlanRequest
		if !decode(w, r, &plan) {
			return
		}
		if err := svc.EditTrip(r.Context(), tripID, plan); err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, svc.View())
	}
}

// StartEditing acquires the edit lock of the loaded trip.
func StartEditing(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.StartEditing(r.Context()); err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, svc.View())
	}
}

// StopEditing releases the edit lock.
func StopEditing(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.StopEditing(r.Context()); err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, svc.View())
	}
}

// EditStatus polls the lock of the loaded trip.
func EditStatus(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.EditStatus(r.Context())
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, EditStatusResponse{Server: status, Local: svc.View().Edit})
	}
}
