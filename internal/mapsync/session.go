// Package mapsync keeps map artifacts (markers, routes, info windows) in step
// with an itinerary. It talks to the map through the capability interfaces in
// surface.go; the concrete provider is chosen by whoever builds the Registry.
package mapsync

import (
	"context"
	"log/slog"

	"github.com/trip-planner/planner/internal/apperr"
	"github.com/trip-planner/planner/internal/logging"
)

// MapSession owns one loaded map and the marker library that draws on it.
type MapSession struct {
	Map     Map
	Markers MarkerLibrary
	logger  *slog.Logger
}

// Open loads the maps and marker capabilities and creates a map. Any load
// failure is returned as is; the caller decides whether to try again.
func Open(ctx context.Context, p Provider, opts MapOptions, logger *slog.Logger) (*MapSession, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	maps, err := LoadAs[MapsLibrary](ctx, p, CapabilityMaps)
	if err != nil {
		return nil, err
	}
	markers, err := LoadAs[MarkerLibrary](ctx, p, CapabilityMarker)
	if err != nil {
		return nil, err
	}

	m, err := maps.NewMap(ctx, opts)
	if err != nil {
		return nil, apperr.ProviderLoad(string(CapabilityMaps), err)
	}

	return &MapSession{Map: m, Markers: markers, logger: logger}, nil
}
