// Package mapview implements the maps and marker capabilities by streaming
// artifact events to connected browsers, which draw them with the Google Maps
// JavaScript API. The Go side keeps the authoritative artifact set so that a
// browser joining late can be sent a snapshot.
package mapview

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/trip-planner/planner/internal/itinerary"
	"github.com/trip-planner/planner/internal/logging"
	"github.com/trip-planner/planner/internal/mapsync"
	"github.com/trip-planner/planner/internal/websocket"
)

// ErrUnknownMarker is returned for clicks on markers that no longer exist.
var ErrUnknownMarker = errors.New("unknown marker")

// Publisher delivers messages to browsers.
type Publisher interface {
	Publish(msg websocket.Message)
}

// Config carries what browsers need to load the Maps JavaScript API.
type Config struct {
	APIKey string
	MapID  string
}

// MarkerState is a live marker as sent to browsers.
type MarkerState struct {
	ID string `json:"id"`
	mapsync.MarkerOptions
}

// RouteState is a live route as sent to browsers.
type RouteState struct {
	ID   string             `json:"id"`
	Day  int                `json:"day"`
	Path []itinerary.LatLng `json:"path"`
}

// InfoWindowState is the open info window.
type InfoWindowState struct {
	MarkerID string `json:"markerId"`
	HTML     string `json:"html"`
}

// MapState describes the map itself.
type MapState struct {
	APIKey string `json:"apiKey,omitempty"`
	mapsync.MapOptions
}

// Snapshot is the full artifact set.
type Snapshot struct {
	Map        *MapState         `json:"map,omitempty"`
	Center     *itinerary.LatLng `json:"center,omitempty"`
	Markers    []MarkerState     `json:"markers"`
	Routes     []RouteState      `json:"routes"`
	InfoWindow *InfoWindowState  `json:"infoWindow,omitempty"`
}

type removedPayload struct {
	ID string `json:"id"`
}

type pannedPayload struct {
	Position itinerary.LatLng `json:"position"`
}

// Surface is a browser-rendered map. It implements mapsync.MapsLibrary,
// mapsync.MarkerLibrary and mapsync.Map.
type Surface struct {
	cfg    Config
	pub    Publisher
	logger *slog.Logger

	mu      sync.Mutex
	state   *MapState
	center  *itinerary.LatLng
	markers map[string]*marker
	routes  map[string]*polyline
	info    *InfoWindowState
}

var (
	_ mapsync.MapsLibrary   = (*Surface)(nil)
	_ mapsync.MarkerLibrary = (*Surface)(nil)
	_ mapsync.Map           = (*Surface)(nil)
)

// New creates a surface publishing through pub.
func New(cfg Config, pub Publisher, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Surface{
		cfg:     cfg,
		pub:     pub,
		logger:  logger.With("component", "mapview"),
		markers: make(map[string]*marker),
		routes:  make(map[string]*polyline),
	}
}

// Register installs the surface as the maps and marker capabilities.
// Loading fails when no Maps API key is configured.
func (s *Surface) Register(r *mapsync.Registry) {
	loader := func(context.Context) (mapsync.Handle, error) {
		if s.cfg.APIKey == "" {
			return nil, errors.New("google maps api key not configured")
		}
		return s, nil
	}
	r.Register(mapsync.CapabilityMaps, loader)
	r.Register(mapsync.CapabilityMarker, loader)
}

// NewMap opens the map with opts. A surface hosts one map; opening again
// replaces its options.
func (s *Surface) NewMap(_ context.Context, opts mapsync.MapOptions) (mapsync.Map, error) {
	if opts.MapID == "" {
		opts.MapID = s.cfg.MapID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = &MapState{APIKey: s.cfg.APIKey, MapOptions: opts}
	center := opts.Center
	s.center = &center
	s.publish(websocket.TypeMapOpened, *s.state)
	return s, nil
}

// NewMarker creates a marker and announces it.
func (s *Surface) NewMarker(_ mapsync.Map, opts mapsync.MarkerOptions) mapsync.Marker {
	m := &marker{surface: s, state: MarkerState{ID: uuid.NewString(), MarkerOptions: opts}}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[m.state.ID] = m
	s.publish(websocket.TypeMarkerAdded, m.state)
	return m
}

// PanTo moves the viewport.
func (s *Surface) PanTo(pos itinerary.LatLng) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.center = &pos
	s.publish(websocket.TypePanned, pannedPayload{Position: pos})
}

// OpenInfoWindow shows html anchored at a marker.
func (s *Surface) OpenInfoWindow(anchor mapsync.Marker, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = &InfoWindowState{MarkerID: anchor.ID(), HTML: html}
	s.publish(websocket.TypeInfoWindowOpened, *s.info)
}

// CloseInfoWindow hides the info window.
func (s *Surface) CloseInfoWindow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return
	}
	s.info = nil
	s.publish(websocket.TypeInfoWindowClosed, nil)
}

// NewPolyline draws a route.
func (s *Surface) NewPolyline(opts mapsync.PolylineOptions) mapsync.Polyline {
	p := &polyline{surface: s, state: RouteState{ID: uuid.NewString(), Day: opts.Day, Path: clonePath(opts.Path)}}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[p.state.ID] = p
	s.publish(websocket.TypeRouteDrawn, p.state)
	return p
}

// Click runs the click handler of a marker. The handler runs without the
// surface lock held since it usually draws.
func (s *Surface) Click(markerID string) error {
	s.mu.Lock()
	m, ok := s.markers[markerID]
	var fn func()
	if ok {
		fn = m.onClick
	}
	s.mu.Unlock()

	if !ok {
		return ErrUnknownMarker
	}
	if fn != nil {
		fn()
	}
	return nil
}

// Snapshot returns every live artifact.
func (s *Surface) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Markers: make([]MarkerState, 0, len(s.markers)),
		Routes:  make([]RouteState, 0, len(s.routes)),
	}
	if s.state != nil {
		st := *s.state
		snap.Map = &st
	}
	if s.center != nil {
		c := *s.center
		snap.Center = &c
	}
	for _, m := range s.markers {
		snap.Markers = append(snap.Markers, m.state)
	}
	for _, p := range s.routes {
		r := p.state
		r.Path = clonePath(r.Path)
		snap.Routes = append(snap.Routes, r)
	}
	if s.info != nil {
		info := *s.info
		snap.InfoWindow = &info
	}

	sort.Slice(snap.Markers, func(i, j int) bool {
		a, b := snap.Markers[i], snap.Markers[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		return a.ID < b.ID
	})
	sort.Slice(snap.Routes, func(i, j int) bool { return snap.Routes[i].Day < snap.Routes[j].Day })
	return snap
}

// publish must be called with mu held so events follow artifact order.
func (s *Surface) publish(t websocket.MessageType, payload any) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(websocket.NewMessage(t, payload))
}

type marker struct {
	surface *Surface
	state   MarkerState
	onClick func() // guarded by surface.mu
}

func (m *marker) ID() string { return m.state.ID }

func (m *marker) Position() itinerary.LatLng { return m.state.Position }

func (m *marker) OnClick(fn func()) {
	m.surface.mu.Lock()
	defer m.surface.mu.Unlock()
	m.onClick = fn
}

func (m *marker) Remove() {
	s := m.surface
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markers[m.state.ID]; !ok {
		return
	}
	delete(s.markers, m.state.ID)
	s.publish(websocket.TypeMarkerRemoved, removedPayload{ID: m.state.ID})
	if s.info != nil && s.info.MarkerID == m.state.ID {
		s.info = nil
		s.publish(websocket.TypeInfoWindowClosed, nil)
	}
}

type polyline struct {
	surface *Surface
	state   RouteState
}

func (p *polyline) SetPath(path []itinerary.LatLng) {
	s := p.surface
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routes[p.state.ID]; !ok {
		return
	}
	p.state.Path = clonePath(path)
	s.publish(websocket.TypeRouteUpdated, p.state)
}

func (p *polyline) Remove() {
	s := p.surface
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routes[p.state.ID]; !ok {
		return
	}
	delete(s.routes, p.state.ID)
	s.publish(websocket.TypeRouteRemoved, removedPayload{ID: p.state.ID})
}

func clonePath(path []itinerary.LatLng) []itinerary.LatLng {
	out := make([]itinerary.LatLng, len(path))
	copy(out, path)
	return out
}
