package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/trip-planner/planner/internal/api/middleware"
	"github.com/trip-planner/planner/internal/apperr"
	"github.com/trip-planner/planner/internal/itinerary"
	"github.com/trip-planner/planner/internal/mapsync"
	"github.com/trip-planner/planner/internal/planner"
)

// DateRangeRequest sets the travel dates (YYYY-MM-DD).
type DateRangeRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// AddPlaceRequest adds a search result to a day.
type AddPlaceRequest struct {
	PlaceID   string `json:"placeId"`
	PlaceType int    `json:"placeType"`
}

// MovePlaceRequest moves a stop within or across days.
type MovePlaceRequest struct {
	ToDay   int `json:"toDay"`
	ToIndex int `json:"toIndex"`
}

// PopupRequest selects the marker popup variant.
type PopupRequest struct {
	Variant string `json:"variant"`
}

// SubmitResponse carries the id of the saved trip.
type SubmitResponse struct {
	TripID int64 `json:"tripId"`
}

// GetPlan returns the current plan.
func GetPlan(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, svc.View())
	}
}

// UpdateDetails sets title, city and friends.
func UpdateDetails(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req planner.Details
		if !decode(w, r, &req) {
			return
		}
		if err := svc.SetDetails(r.Context(), req); err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, svc.View())
	}
}

// SetDates sizes the itinerary to a date range.
func SetDates(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DateRangeRequest
		if !decode(w, r, &req) {
			return
		}

		start, err := time.Parse(time.DateOnly, req.StartDate)
		if err != nil {
			middleware.WriteError(w, apperr.Validation("startDate must be YYYY-MM-DD", map[string]any{"startDate": req.StartDate}))
			return
		}
		end, err := time.Parse(time.DateOnly, req.EndDate)
		if err != nil {
			middleware.WriteError(w, apperr.Validation("endDate must be YYYY-MM-DD", map[string]any{"endDate": req.EndDate}))
			return
		}

		if err := svc.SetDateRange(r.Context(), start, end); err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, svc.View())
	}
}

// AddDay appends an empty day.
func AddDay(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := svc.AddDay(r.Context()); err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusCreated, svc.View())
	}
}

// ClearDay empties a day.
func ClearDay(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day, ok := dayVar(w, r)
		if !ok {
			return
		}
		if err := svc.ClearDay(r.Context(), day); err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, svc.View())
	}
}

// AddPlace adds a search result to a day as accommodation (placeType 1)
// or stop (placeType 2).
func AddPlace(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day, ok := dayVar(w, r)
		if !ok {
			return
		}
		var req AddPlaceRequest
		if !decode(w, r, &req) {
			return
		}
		if req.PlaceID == "" {
			middleware.WriteError(w, apperr.Validation("placeId is required", map[string]any{"placeId": "required"}))
			return
		}

		if err := svc.AddPlace(r.Context(), day, itinerary.Kind(req.PlaceType), req.PlaceID); err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusCreated, svc.View())
	}
}

// RemovePlace removes a place from a day.
func RemovePlace(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day, ok := dayVar(w, r)
		if !ok {
			return
		}
		if err := svc.RemovePlace(r.Context(), day, mux.Vars(r)["placeId"]); err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, svc.View())
	}
}

// MovePlace reorders a stop.
func MovePlace(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MovePlaceRequest
		if !decode(w, r, &req) {
			return
		}
		if err := svc.MovePlace(r.Context(), mux.Vars(r)["placeId"], req.ToDay, req.ToIndex); err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, svc.View())
	}
}

// OpenPlace opens an itinerary place's popup on the map.
func OpenPlace(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.OpenPlace(r.Context(), mux.Vars(r)["placeId"]); err != nil {
			middleware.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SetPopup selects the popup variant used for marker clicks.
func SetPopup(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PopupRequest
		if !decode(w, r, &req) {
			return
		}
		svc.SetPopupVariant(mapsync.ParsePopupVariant(req.Variant))
		middleware.WriteJSON(w, http.StatusOK, svc.View())
	}
}

// SubmitPlan sends the plan to the backend.
func SubmitPlan(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tripID, err := svc.Submit(r.Context())
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, SubmitResponse{TripID: tripID})
	}
}

// ResetPlan discards the session.
func ResetPlan(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.Reset(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, apperr.BadRequest("Invalid request body"))
		return false
	}
	return true
}

func dayVar(w http.ResponseWriter, r *http.Request) (int, bool) {
	day, err := strconv.Atoi(mux.Vars(r)["day"])
	if err != nil || day < 1 {
		middleware.WriteError(w, apperr.BadRequest("day must be a positive number"))
		return 0, false
	}
	return day, true
}

func int64Var(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || v < 1 {
		middleware.WriteError(w, apperr.BadRequest(name+" must be a positive number"))
		return 0, false
	}
	return v, true
}
