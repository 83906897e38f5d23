package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/trip-planner/planner/internal/api/middleware"
	"github.com/trip-planner/planner/internal/itinerary"
	"github.com/trip-planner/planner/internal/planner"
)

// SearchResponse is a place search result set.
type SearchResponse struct {
	Query   string            `json:"query"`
	Results []itinerary.Place `json:"results"`
}

// Search runs a place search (?q=).
func Search(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		results, err := svc.Search(r.Context(), query)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, SearchResponse{Query: query, Results: results})
	}
}

// SearchResults returns the latest result set.
func SearchResults(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, results := svc.Results()
		middleware.WriteJSON(w, http.StatusOK, SearchResponse{Query: query, Results: results})
	}
}

// SelectResult shows a search result on the map.
func SelectResult(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.SelectResult(r.Context(), mux.Vars(r)["placeId"]); err != nil {
			middleware.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
