package mapsync

import (
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/trip-planner/planner/internal/itinerary"
	"github.com/trip-planner/planner/internal/logging"
)

// ErrNoMarker is returned when a place has no itinerary marker.
var ErrNoMarker = errors.New("no marker for place")

// Locator answers whether a place is part of the itinerary.
type Locator interface {
	Contains(placeID string) bool
}

// MarkerInfo describes a live itinerary marker.
type MarkerInfo struct {
	PlaceID  string           `json:"placeId"`
	MarkerID string           `json:"markerId"`
	Day      int              `json:"day"`
	Kind     itinerary.Kind   `json:"kind"`
	Label    string           `json:"label,omitempty"`
	Position itinerary.LatLng `json:"position"`
}

type markerEntry struct {
	marker Marker
	place  itinerary.Place
	day    int
	kind   itinerary.Kind
	label  string
}

// Sync renders itinerary days onto a MapSession. Itinerary markers are keyed
// by place id, so a place has at most one marker. Each day's markers are
// rebuilt from scratch on every render; labels derive from position and a
// full rebuild is what keeps them right after reorders.
type Sync struct {
	session *MapSession
	logger  *slog.Logger

	mu      sync.Mutex
	markers map[string]*markerEntry
	routes  map[int]Polyline
	paths   map[int][]itinerary.LatLng
	search  *markerEntry
	variant PopupVariant
}

// NewSync creates an engine drawing on session.
func NewSync(session *MapSession, logger *slog.Logger) *Sync {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sync{
		session: session,
		logger:  logger.With("component", "mapsync"),
		markers: make(map[string]*markerEntry),
		routes:  make(map[int]Polyline),
		paths:   make(map[int][]itinerary.LatLng),
	}
}

// SetPopupVariant sets the popup used when a marker is clicked.
func (s *Sync) SetPopupVariant(v PopupVariant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variant = v
}

// PopupVariant returns the click popup variant.
func (s *Sync) PopupVariant() PopupVariant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.variant
}

// RenderDay replaces every marker of day with fresh ones for plan and
// recomputes the day's route.
func (s *Sync) RenderDay(day int, plan itinerary.DayPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeDayMarkersLocked(day)

	if plan.Accommodation != nil {
		s.addMarkerLocked(day, *plan.Accommodation, itinerary.KindAccommodation, "")
	}
	for i, p := range plan.Places {
		s.addMarkerLocked(day, p, itinerary.KindPlace, strconv.Itoa(i+1))
	}

	s.updateRouteLocked(day, RoutePath(plan))
}

// RemoveDay removes the markers and route of day.
func (s *Sync) RemoveDay(day int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeDayMarkersLocked(day)
	s.updateRouteLocked(day, nil)
}

// RemoveMarker removes the itinerary marker of placeID, reporting whether one existed.
func (s *Sync) RemoveMarker(placeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeMarkerLocked(placeID)
}

// HasMarkerForPlace reports whether placeID has an itinerary marker.
// Callers check it before creating a marker outside RenderDay.
func (s *Sync) HasMarkerForPlace(placeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.markers[placeID]
	return ok
}

// ShowSearchResult focuses a clicked search result. A place already in the
// itinerary gets its existing marker opened; anything else gets the single
// transient search marker.
func (s *Sync) ShowSearchResult(place itinerary.Place, it Locator, variant PopupVariant) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearSearchLocked()

	if it != nil && it.Contains(place.PlaceID) {
		if entry, ok := s.markers[place.PlaceID]; ok {
			s.openPopupLocked(entry.marker, place, variant)
			s.session.Map.PanTo(entry.marker.Position())
			return
		}
		s.logger.Warn("itinerary place has no marker", "place_id", place.PlaceID)
	}

	marker := s.session.Markers.NewMarker(s.session.Map, MarkerOptions{
		Position: place.Location,
		Title:    place.Name,
		Style:    StyleSearch,
		PlaceID:  place.PlaceID,
	})
	entry := &markerEntry{marker: marker, place: place}
	s.search = entry
	marker.OnClick(func() { s.clicked(entry) })

	s.openPopupLocked(marker, place, variant)
	s.session.Map.PanTo(place.Location)
}

// ClearSearchMarker removes the transient search marker, if any.
func (s *Sync) ClearSearchMarker() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearSearchLocked()
}

// SearchMarker returns the place shown by the transient search marker.
func (s *Sync) SearchMarker() (itinerary.Place, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.search == nil {
		return itinerary.Place{}, false
	}
	return s.search.place, true
}

// OpenPlace opens and pans to the itinerary marker of placeID.
func (s *Sync) OpenPlace(placeID string, variant PopupVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.markers[placeID]
	if !ok {
		return ErrNoMarker
	}
	s.openPopupLocked(entry.marker, entry.place, variant)
	s.session.Map.PanTo(entry.marker.Position())
	return nil
}

// ClearAll removes every marker, route and the search marker.
func (s *Sync) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.markers {
		s.removeMarkerLocked(id)
	}
	for day := range s.routes {
		s.updateRouteLocked(day, nil)
	}
	s.clearSearchLocked()
	s.session.Map.CloseInfoWindow()
}

// Markers lists the itinerary markers of day ordered by kind then label.
// A day of 0 lists all days.
func (s *Sync) Markers(day int) []MarkerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]MarkerInfo, 0, len(s.markers))
	for id, e := range s.markers {
		if day != 0 && e.day != day {
			continue
		}
		out = append(out, MarkerInfo{
			PlaceID:  id,
			MarkerID: e.marker.ID(),
			Day:      e.day,
			Kind:     e.kind,
			Label:    e.label,
			Position: e.marker.Position(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		ai, _ := strconv.Atoi(a.Label)
		bi, _ := strconv.Atoi(b.Label)
		return ai < bi
	})
	return out
}

// Route returns the drawn path of day.
func (s *Sync) Route(day int) ([]itinerary.LatLng, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.paths[day]
	if !ok {
		return nil, false
	}
	out := make([]itinerary.LatLng, len(path))
	copy(out, path)
	return out, true
}

// RoutePath computes a day's route: a loop from the accommodation through
// every stop and back. Without an accommodation there is no route.
func RoutePath(plan itinerary.DayPlan) []itinerary.LatLng {
	if plan.Accommodation == nil {
		return nil
	}
	path := make([]itinerary.LatLng, 0, len(plan.Places)+2)
	path = append(path, plan.Accommodation.Location)
	for _, p := range plan.Places {
		path = append(path, p.Location)
	}
	if len(plan.Places) > 0 {
		path = append(path, plan.Accommodation.Location)
	}
	return path
}

func (s *Sync) addMarkerLocked(day int, p itinerary.Place, kind itinerary.Kind, label string) {
	// A place moved between days may still be drawn on its old day.
	s.removeMarkerLocked(p.PlaceID)
	if s.search != nil && s.search.place.PlaceID == p.PlaceID {
		s.clearSearchLocked()
	}

	style := StylePlace
	if kind == itinerary.KindAccommodation {
		style = StyleAccommodation
	}
	marker := s.session.Markers.NewMarker(s.session.Map, MarkerOptions{
		Position: p.Location,
		Title:    p.Name,
		Label:    label,
		Style:    style,
		PlaceID:  p.PlaceID,
		Day:      day,
	})
	entry := &markerEntry{marker: marker, place: p, day: day, kind: kind, label: label}
	s.markers[p.PlaceID] = entry
	marker.OnClick(func() { s.clicked(entry) })
}

func (s *Sync) removeMarkerLocked(placeID string) bool {
	entry, ok := s.markers[placeID]
	if !ok {
		return false
	}
	entry.marker.Remove()
	delete(s.markers, placeID)
	return true
}

func (s *Sync) removeDayMarkersLocked(day int) {
	for id, e := range s.markers {
		if e.day == day {
			s.removeMarkerLocked(id)
		}
	}
}

func (s *Sync) clearSearchLocked() {
	if s.search == nil {
		return
	}
	s.search.marker.Remove()
	s.search = nil
}

// updateRouteLocked draws path for day, reusing the existing polyline. Paths
// shorter than two points remove the route.
func (s *Sync) updateRouteLocked(day int, path []itinerary.LatLng) {
	line, exists := s.routes[day]
	if len(path) < 2 {
		if exists {
			line.Remove()
			delete(s.routes, day)
			delete(s.paths, day)
		}
		return
	}

	if exists {
		line.SetPath(path)
	} else {
		s.routes[day] = s.session.Map.NewPolyline(PolylineOptions{Day: day, Path: path})
	}
	s.paths[day] = path
}

func (s *Sync) openPopupLocked(anchor Marker, p itinerary.Place, variant PopupVariant) {
	html, err := RenderPopup(p, variant)
	if err != nil {
		s.logger.Error("popup render failed", "place_id", p.PlaceID, "error", err)
		return
	}
	s.session.Map.OpenInfoWindow(anchor, html)
}

// clicked opens the popup of a marker the user clicked. Clicks on markers
// that have since been replaced are ignored.
func (s *Sync) clicked(entry *markerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.markers[entry.place.PlaceID]
	if current != entry && s.search != entry {
		return
	}
	s.openPopupLocked(entry.marker, entry.place, s.variant)
}
