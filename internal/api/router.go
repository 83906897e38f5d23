// Package api provides HTTP routing and handlers for the planner's local API.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/trip-planner/planner/internal/api/handlers"
	"github.com/trip-planner/planner/internal/api/middleware"
	"github.com/trip-planner/planner/internal/auth"
	"github.com/trip-planner/planner/internal/mapview"
	"github.com/trip-planner/planner/internal/planner"
	"github.com/trip-planner/planner/internal/profile"
	"github.com/trip-planner/planner/internal/storage"
	"github.com/trip-planner/planner/internal/websocket"
)

// Deps are the services the router exposes.
type Deps struct {
	DB        *storage.DB
	Hub       *websocket.Hub
	Surface   *mapview.Surface
	Planner   *planner.Service
	Profile   *profile.Service
	Tokens    *auth.Store
	Backend   handlers.Prober
	Trips     handlers.TripLister
	Origins   []string
	StaticDir string
	Logger    *slog.Logger
}

// NewRouter creates and configures the HTTP router with all API routes and
// installs the websocket command handlers on the hub.
func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging(d.Logger))
	r.Use(middleware.ErrorRecovery(d.Logger))

	handlers.RegisterCommands(d.Hub, d.Surface)

	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(d.DB, d.Backend)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(d.Hub, d.Planner)).Methods("GET")

	// WebSocket endpoint
	upgrader := handlers.NewUpgrader(d.Origins)
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(d.Hub, upgrader, d.Surface, d.Planner, d.Logger)).Methods("GET")

	// Session endpoints
	api.HandleFunc("/session", handlers.GetSession(d.Tokens)).Methods("GET")
	api.HandleFunc("/session", handlers.SetSession(d.Tokens)).Methods("PUT")
	api.HandleFunc("/session", handlers.ClearSession(d.Tokens)).Methods("DELETE")
	api.HandleFunc("/nickname/check", handlers.CheckNickname(d.Profile)).Methods("GET")

	// Plan endpoints
	api.HandleFunc("/plan", handlers.GetPlan(d.Planner)).Methods("GET")
	api.HandleFunc("/plan", handlers.ResetPlan(d.Planner)).Methods("DELETE")
	api.HandleFunc("/plan/details", handlers.UpdateDetails(d.Planner)).Methods("PUT")
	api.HandleFunc("/plan/dates", handlers.SetDates(d.Planner)).Methods("PUT")
	api.HandleFunc("/plan/popup", handlers.SetPopup(d.Planner)).Methods("PUT")
	api.HandleFunc("/plan/submit", handlers.SubmitPlan(d.Planner)).Methods("POST")
	api.HandleFunc("/plan/days", handlers.AddDay(d.Planner)).Methods("POST")
	api.HandleFunc("/plan/days/{day:[0-9]+}", handlers.ClearDay(d.Planner)).Methods("DELETE")
	api.HandleFunc("/plan/days/{day:[0-9]+}/places", handlers.AddPlace(d.Planner)).Methods("POST")
	api.HandleFunc("/plan/days/{day:[0-9]+}/places/{placeId}", handlers.RemovePlace(d.Planner)).Methods("DELETE")
	api.HandleFunc("/plan/places/{placeId}/move", handlers.MovePlace(d.Planner)).Methods("POST")
	api.HandleFunc("/plan/places/{placeId}/open", handlers.OpenPlace(d.Planner)).Methods("POST")

	// Search endpoints
	api.HandleFunc("/search", handlers.Search(d.Planner)).Methods("GET")
	api.HandleFunc("/search/results", handlers.SearchResults(d.Planner)).Methods("GET")
	api.HandleFunc("/search/results/{placeId}/select", handlers.SelectResult(d.Planner)).Methods("POST")

	// Trip records
	api.HandleFunc("/trips", handlers.ListTrips(d.Trips)).Methods("GET")

	// Edit lock endpoints
	api.HandleFunc("/trips/{tripId:[0-9]+}/edit", handlers.EditTrip(d.Planner)).Methods("POST")
	api.HandleFunc("/edit", handlers.StartEditing(d.Planner)).Methods("POST")
	api.HandleFunc("/edit", handlers.StopEditing(d.Planner)).Methods("DELETE")
	api.HandleFunc("/edit/status", handlers.EditStatus(d.Planner)).Methods("GET")

	// Serve static frontend files
	if d.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(d.StaticDir)))
	}

	return r
}
