package handlers

import (
	"context"
	"net/http"

	"github.com/trip-planner/planner/internal/api/middleware"
	"github.com/trip-planner/planner/internal/apperr"
	"github.com/trip-planner/planner/internal/backend"
)

// TripLister reads the user's trip records from the backend.
type TripLister interface {
	ListTrips(ctx context.Context) ([]backend.TripRecord, error)
}

// TripListResponse lists the user's trips as display stories.
type TripListResponse struct {
	Trips []backend.TripStory `json:"trips"`
}

// ListTrips returns every trip record of the session user.
func ListTrips(trips TripLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := trips.ListTrips(r.Context())
		if err != nil {
			if backend.StatusOf(err) == http.StatusUnauthorized {
				middleware.WriteError(w, apperr.Unauthorized("login is required to list trips"))
				return
			}
			middleware.WriteError(w, apperr.Unavailable("trip records", err))
			return
		}
		stories := make([]backend.TripStory, len(records))
		for i, rec := range records {
			stories[i] = rec.Story(i)
		}
		middleware.WriteJSON(w, http.StatusOK, TripListResponse{Trips: stories})
	}
}
