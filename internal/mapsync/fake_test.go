package mapsync

import (
	"context"
	"strconv"
	"sync"

	"github.com/trip-planner/planner/internal/itinerary"
)

// fakeSurface records every artifact call in memory.
type fakeSurface struct {
	mu        sync.Mutex
	next      int
	markers   map[string]*fakeMarker
	polylines []*fakePolyline
	pans      []itinerary.LatLng
	infoOpen  string
	infoHTML  string
	created   int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{markers: make(map[string]*fakeMarker)}
}

func (f *fakeSurface) NewMap(context.Context, MapOptions) (Map, error) { return f, nil }

func (f *fakeSurface) NewMarker(_ Map, opts MarkerOptions) Marker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.created++
	m := &fakeMarker{surface: f, id: "m" + strconv.Itoa(f.next), opts: opts}
	f.markers[m.id] = m
	return m
}

func (f *fakeSurface) PanTo(pos itinerary.LatLng) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pans = append(f.pans, pos)
}

func (f *fakeSurface) OpenInfoWindow(anchor Marker, html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoOpen = anchor.ID()
	f.infoHTML = html
}

func (f *fakeSurface) CloseInfoWindow() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoOpen, f.infoHTML = "", ""
}

func (f *fakeSurface) NewPolyline(opts PolylineOptions) Polyline {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePolyline{day: opts.Day, path: opts.Path}
	f.polylines = append(f.polylines, p)
	return p
}

// live returns the markers not yet removed.
func (f *fakeSurface) live() []*fakeMarker {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeMarker, 0, len(f.markers))
	for _, m := range f.markers {
		out = append(out, m)
	}
	return out
}

func (f *fakeSurface) liveFor(placeID string) []*fakeMarker {
	var out []*fakeMarker
	for _, m := range f.live() {
		if m.opts.PlaceID == placeID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSurface) livePolylines(day int) []*fakePolyline {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakePolyline
	for _, p := range f.polylines {
		if !p.removed && p.day == day {
			out = append(out, p)
		}
	}
	return out
}

type fakeMarker struct {
	surface *fakeSurface
	id      string
	opts    MarkerOptions
	onClick func()
}

func (m *fakeMarker) ID() string                 { return m.id }
func (m *fakeMarker) Position() itinerary.LatLng { return m.opts.Position }
func (m *fakeMarker) OnClick(fn func())          { m.onClick = fn }
func (m *fakeMarker) Remove() {
	m.surface.mu.Lock()
	defer m.surface.mu.Unlock()
	delete(m.surface.markers, m.id)
}

type fakePolyline struct {
	day     int
	path    []itinerary.LatLng
	sets    int
	removed bool
}

func (p *fakePolyline) SetPath(path []itinerary.LatLng) {
	p.path = path
	p.sets++
}

func (p *fakePolyline) Remove() { p.removed = true }

func newTestSync() (*Sync, *fakeSurface) {
	surface := newFakeSurface()
	return NewSync(&MapSession{Map: surface, Markers: surface}, nil), surface
}

func place(id string, lat float64) itinerary.Place {
	return itinerary.Place{PlaceID: id, Name: "Place " + id, Location: itinerary.LatLng{Lat: lat, Lng: 127}}
}

func accommodation(id string) *itinerary.Place {
	p := place(id, 37.0)
	p.Types = []string{"lodging"}
	return &p
}
