package mapview

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trip-planner/planner/internal/apperr"
	"github.com/trip-planner/planner/internal/itinerary"
	"github.com/trip-planner/planner/internal/mapsync"
	"github.com/trip-planner/planner/internal/websocket"
)

type recorder struct {
	mu   sync.Mutex
	msgs []websocket.Message
}

func (r *recorder) Publish(msg websocket.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) types() []websocket.MessageType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]websocket.MessageType, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Type
	}
	return out
}

func openSession(t *testing.T, cfg Config) (*Surface, *recorder, *mapsync.MapSession) {
	t.Helper()
	rec := &recorder{}
	surface := New(cfg, rec, nil)
	registry := mapsync.NewRegistry(nil)
	surface.Register(registry)

	session, err := mapsync.Open(context.Background(), registry, mapsync.MapOptions{Zoom: 12}, nil)
	require.NoError(t, err)
	return surface, rec, session
}

func TestRegister_RequiresAPIKey(t *testing.T) {
	registry := mapsync.NewRegistry(nil)
	New(Config{}, &recorder{}, nil).Register(registry)

	_, err := mapsync.Open(context.Background(), registry, mapsync.MapOptions{}, nil)
	assert.True(t, apperr.HasCode(err, apperr.CodeProviderLoad))
}

func TestSurface_PublishesArtifacts(t *testing.T) {
	surface, rec, session := openSession(t, Config{APIKey: "key", MapID: "map-1"})
	engine := mapsync.NewSync(session, nil)

	hotel := itinerary.Place{PlaceID: "h", Name: "Hotel", Location: itinerary.LatLng{Lat: 37.5, Lng: 127}}
	engine.RenderDay(1, itinerary.DayPlan{
		Accommodation: &hotel,
		Places:        []itinerary.Place{{PlaceID: "a", Name: "A", Location: itinerary.LatLng{Lat: 37.6, Lng: 127}}},
	})

	assert.Equal(t, []websocket.MessageType{
		websocket.TypeMapOpened,
		websocket.TypeMarkerAdded,
		websocket.TypeMarkerAdded,
		websocket.TypeRouteDrawn,
	}, rec.types())

	snap := surface.Snapshot()
	require.NotNil(t, snap.Map)
	assert.Equal(t, "key", snap.Map.APIKey)
	assert.Equal(t, "map-1", snap.Map.MapID)
	assert.Len(t, snap.Markers, 2)
	require.Len(t, snap.Routes, 1)
	assert.Len(t, snap.Routes[0].Path, 3)

	engine.RenderDay(1, itinerary.DayPlan{})
	snap = surface.Snapshot()
	assert.Empty(t, snap.Markers)
	assert.Empty(t, snap.Routes)
	assert.Contains(t, rec.types(), websocket.TypeRouteRemoved)
	assert.Contains(t, rec.types(), websocket.TypeMarkerRemoved)
}

func TestSurface_ClickOpensPopup(t *testing.T) {
	surface, rec, session := openSession(t, Config{APIKey: "key"})
	engine := mapsync.NewSync(session, nil)
	engine.RenderDay(1, itinerary.DayPlan{Places: []itinerary.Place{{PlaceID: "a", Name: "Gyeongbokgung"}}})

	markers := engine.Markers(1)
	require.Len(t, markers, 1)

	require.NoError(t, surface.Click(markers[0].MarkerID))

	snap := surface.Snapshot()
	require.NotNil(t, snap.InfoWindow)
	assert.Equal(t, markers[0].MarkerID, snap.InfoWindow.MarkerID)
	assert.Contains(t, snap.InfoWindow.HTML, "Gyeongbokgung")
	assert.Contains(t, rec.types(), websocket.TypeInfoWindowOpened)

	assert.ErrorIs(t, surface.Click("missing"), ErrUnknownMarker)
}

func TestSurface_PanAndClose(t *testing.T) {
	surface, rec, session := openSession(t, Config{APIKey: "key"})

	pos := itinerary.LatLng{Lat: 35.1, Lng: 129}
	session.Map.PanTo(pos)
	session.Map.CloseInfoWindow()

	snap := surface.Snapshot()
	require.NotNil(t, snap.Center)
	assert.Equal(t, pos, *snap.Center)
	assert.NotContains(t, rec.types(), websocket.TypeInfoWindowClosed)
}

func TestSurface_RemovingAnchorClosesInfoWindow(t *testing.T) {
	surface, rec, session := openSession(t, Config{APIKey: "key"})
	m := session.Markers.NewMarker(session.Map, mapsync.MarkerOptions{PlaceID: "x"})
	other := session.Markers.NewMarker(session.Map, mapsync.MarkerOptions{PlaceID: "y"})
	session.Map.OpenInfoWindow(m, "<p>x</p>")

	other.Remove()
	require.NotNil(t, surface.Snapshot().InfoWindow)
	before := len(rec.types())

	m.Remove()
	m.Remove()

	assert.Nil(t, surface.Snapshot().InfoWindow)
	assert.Equal(t, []websocket.MessageType{websocket.TypeMarkerRemoved, websocket.TypeInfoWindowClosed}, rec.types()[before:])
}
