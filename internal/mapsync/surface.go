package mapsync

import (
	"context"

	"github.com/trip-planner/planner/internal/itinerary"
)

// MarkerStyle selects a marker's glyph.
type MarkerStyle string

const (
	StyleAccommodation MarkerStyle = "accommodation"
	StylePlace         MarkerStyle = "place"
	StyleSearch        MarkerStyle = "search"
)

// MapOptions configures a new map surface.
type MapOptions struct {
	Center itinerary.LatLng `json:"center"`
	Zoom   int              `json:"zoom"`
	MapID  string           `json:"mapId,omitempty"`
}

// MarkerOptions describes a marker to create.
type MarkerOptions struct {
	Position itinerary.LatLng `json:"position"`
	Title    string           `json:"title"`
	Label    string           `json:"label,omitempty"`
	Style    MarkerStyle      `json:"style"`
	PlaceID  string           `json:"placeId"`
	Day      int              `json:"day,omitempty"`
}

// PolylineOptions describes a route to create.
type PolylineOptions struct {
	Day  int                `json:"day"`
	Path []itinerary.LatLng `json:"path"`
}

// MapsLibrary is the handle of CapabilityMaps.
type MapsLibrary interface {
	NewMap(ctx context.Context, opts MapOptions) (Map, error)
}

// MarkerLibrary is the handle of CapabilityMarker.
type MarkerLibrary interface {
	NewMarker(m Map, opts MarkerOptions) Marker
}

// Map is a live map surface. Calls are fire-and-forget against a loaded map.
type Map interface {
	PanTo(pos itinerary.LatLng)
	OpenInfoWindow(anchor Marker, html string)
	CloseInfoWindow()
	NewPolyline(opts PolylineOptions) Polyline
}

// Marker is a live marker.
type Marker interface {
	ID() string
	Position() itinerary.LatLng
	OnClick(fn func())
	Remove()
}

// Polyline is a live route.
type Polyline interface {
	SetPath(path []itinerary.LatLng)
	Remove()
}
