package mapsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trip-planner/planner/internal/itinerary"
)

func TestRenderDay_NumbersPlacesInOrder(t *testing.T) {
	s, surface := newTestSync()

	s.RenderDay(1, itinerary.DayPlan{
		Accommodation: accommodation("h"),
		Places:        []itinerary.Place{place("a", 37.1), place("b", 37.2)},
	})

	markers := s.Markers(1)
	require.Len(t, markers, 3)
	assert.Equal(t, "h", markers[0].PlaceID)
	assert.Equal(t, itinerary.KindAccommodation, markers[0].Kind)
	assert.Equal(t, MarkerInfo{PlaceID: "a", MarkerID: markers[1].MarkerID, Day: 1, Kind: itinerary.KindPlace, Label: "1", Position: place("a", 37.1).Location}, markers[1])
	assert.Equal(t, "2", markers[2].Label)
	assert.Len(t, surface.live(), 3)

	for _, m := range surface.live() {
		switch m.opts.PlaceID {
		case "h":
			assert.Equal(t, StyleAccommodation, m.opts.Style)
		default:
			assert.Equal(t, StylePlace, m.opts.Style)
		}
	}
}

func TestRenderDay_ReorderRebuildsLabels(t *testing.T) {
	s, surface := newTestSync()
	s.RenderDay(1, itinerary.DayPlan{Places: []itinerary.Place{place("a", 1), place("b", 2), place("c", 3)}})

	s.RenderDay(1, itinerary.DayPlan{Places: []itinerary.Place{place("c", 3), place("a", 1)}})

	markers := s.Markers(1)
	require.Len(t, markers, 2)
	assert.Equal(t, "c", markers[0].PlaceID)
	assert.Equal(t, "1", markers[0].Label)
	assert.Equal(t, "a", markers[1].PlaceID)
	assert.Equal(t, "2", markers[1].Label)
	assert.False(t, s.HasMarkerForPlace("b"))
	assert.Len(t, surface.live(), 2)
}

func TestRenderDay_LeavesOtherDaysAlone(t *testing.T) {
	s, _ := newTestSync()
	s.RenderDay(1, itinerary.DayPlan{Places: []itinerary.Place{place("a", 1)}})
	s.RenderDay(2, itinerary.DayPlan{Places: []itinerary.Place{place("b", 2)}})

	s.RenderDay(1, itinerary.DayPlan{})

	assert.Empty(t, s.Markers(1))
	assert.Len(t, s.Markers(2), 1)
}

func TestRenderDay_MovedPlaceDrawnOnce(t *testing.T) {
	s, surface := newTestSync()
	s.RenderDay(1, itinerary.DayPlan{Places: []itinerary.Place{place("a", 1)}})

	s.RenderDay(2, itinerary.DayPlan{Places: []itinerary.Place{place("a", 1)}})

	assert.Len(t, surface.liveFor("a"), 1)
	assert.Empty(t, s.Markers(1))
	require.Len(t, s.Markers(2), 1)
}

func TestRoute(t *testing.T) {
	s, surface := newTestSync()
	h := accommodation("h")

	t.Run("no accommodation means no route", func(t *testing.T) {
		s.RenderDay(1, itinerary.DayPlan{Places: []itinerary.Place{place("a", 1), place("b", 2)}})
		_, ok := s.Route(1)
		assert.False(t, ok)
		assert.Empty(t, surface.livePolylines(1))
	})

	t.Run("accommodation alone is a single point", func(t *testing.T) {
		s.RenderDay(2, itinerary.DayPlan{Accommodation: h})
		_, ok := s.Route(2)
		assert.False(t, ok)
	})

	t.Run("loop through stops", func(t *testing.T) {
		plan := itinerary.DayPlan{Accommodation: h, Places: []itinerary.Place{place("c", 3)}}
		s.RenderDay(2, plan)

		path, ok := s.Route(2)
		require.True(t, ok)
		assert.Equal(t, []itinerary.LatLng{h.Location, place("c", 3).Location, h.Location}, path)
		require.Len(t, surface.livePolylines(2), 1)
	})

	t.Run("update reuses the polyline", func(t *testing.T) {
		before := surface.livePolylines(2)[0]
		s.RenderDay(2, itinerary.DayPlan{Accommodation: h, Places: []itinerary.Place{place("c", 3), place("d", 4)}})

		lines := surface.livePolylines(2)
		require.Len(t, lines, 1)
		assert.Same(t, before, lines[0])
		assert.Equal(t, 1, before.sets)
		assert.Len(t, before.path, 4)
	})

	t.Run("dropping below two points removes it", func(t *testing.T) {
		s.RenderDay(2, itinerary.DayPlan{Accommodation: h})
		assert.Empty(t, surface.livePolylines(2))
		_, ok := s.Route(2)
		assert.False(t, ok)
	})
}

// Searching and clicking a place that is day 2's accommodation focuses the
// existing marker instead of adding another.
func TestShowSearchResult_ExistingPlace(t *testing.T) {
	it := itinerary.New()
	it.Resize(2)
	h := accommodation("hotel")
	require.NoError(t, it.SetAccommodation(2, *h))

	s, surface := newTestSync()
	for day, plan := range it.Days() {
		s.RenderDay(day, plan)
	}
	existing := surface.liveFor("hotel")
	require.Len(t, existing, 1)

	s.ShowSearchResult(*h, it, PopupRich)

	assert.True(t, s.HasMarkerForPlace("hotel"))
	assert.Len(t, surface.liveFor("hotel"), 1)
	assert.Equal(t, existing[0].id, surface.infoOpen)
	assert.Equal(t, []itinerary.LatLng{h.Location}, surface.pans)
	_, ok := s.SearchMarker()
	assert.False(t, ok)
}

func TestShowSearchResult_TransientMarker(t *testing.T) {
	it := itinerary.New()
	it.Resize(1)
	s, surface := newTestSync()

	s.ShowSearchResult(place("x", 1), it, PopupRich)
	s.ShowSearchResult(place("y", 2), it, PopupRich)

	live := surface.live()
	require.Len(t, live, 1)
	assert.Equal(t, "y", live[0].opts.PlaceID)
	assert.Equal(t, StyleSearch, live[0].opts.Style)
	assert.Equal(t, live[0].id, surface.infoOpen)
	assert.False(t, s.HasMarkerForPlace("y"))

	got, ok := s.SearchMarker()
	require.True(t, ok)
	assert.Equal(t, "y", got.PlaceID)

	// Adding the place replaces the transient marker with an itinerary marker.
	require.NoError(t, it.AddPlace(1, place("y", 2)))
	day, _ := it.Day(1)
	s.RenderDay(1, day)

	_, ok = s.SearchMarker()
	assert.False(t, ok)
	live = surface.liveFor("y")
	require.Len(t, live, 1)
	assert.Equal(t, StylePlace, live[0].opts.Style)
}

func TestOpenPlace(t *testing.T) {
	s, surface := newTestSync()
	s.RenderDay(1, itinerary.DayPlan{Places: []itinerary.Place{place("a", 1)}})

	require.NoError(t, s.OpenPlace("a", PopupSimple))
	assert.Contains(t, surface.infoHTML, "popup-simple")
	assert.ErrorIs(t, s.OpenPlace("zzz", PopupSimple), ErrNoMarker)
}

func TestMarkerClickUsesSessionVariant(t *testing.T) {
	s, surface := newTestSync()
	s.RenderDay(1, itinerary.DayPlan{Places: []itinerary.Place{place("a", 1)}})
	marker := surface.liveFor("a")[0]

	marker.onClick()
	assert.Contains(t, surface.infoHTML, "popup-rich")

	s.SetPopupVariant(PopupSimple)
	marker.onClick()
	assert.Contains(t, surface.infoHTML, "popup-simple")
}

func TestMarkerClickAfterRebuildIgnored(t *testing.T) {
	s, surface := newTestSync()
	s.RenderDay(1, itinerary.DayPlan{Places: []itinerary.Place{place("a", 1)}})
	stale := surface.liveFor("a")[0]
	s.RenderDay(1, itinerary.DayPlan{Places: []itinerary.Place{place("a", 1)}})

	stale.onClick()
	assert.Empty(t, surface.infoOpen)
}

func TestRemoveDayAndMarker(t *testing.T) {
	s, surface := newTestSync()
	s.RenderDay(1, itinerary.DayPlan{Accommodation: accommodation("h"), Places: []itinerary.Place{place("a", 1)}})
	s.RenderDay(2, itinerary.DayPlan{Places: []itinerary.Place{place("b", 2)}})

	assert.True(t, s.RemoveMarker("b"))
	assert.False(t, s.RemoveMarker("b"))

	s.RemoveDay(1)
	assert.Empty(t, surface.live())
	assert.Empty(t, surface.livePolylines(1))
}

func TestClearAll(t *testing.T) {
	s, surface := newTestSync()
	s.RenderDay(1, itinerary.DayPlan{Accommodation: accommodation("h"), Places: []itinerary.Place{place("a", 1)}})
	s.ShowSearchResult(place("x", 5), nil, PopupRich)

	s.ClearAll()

	assert.Empty(t, surface.live())
	assert.Empty(t, surface.livePolylines(1))
	assert.Empty(t, s.Markers(0))
	assert.Empty(t, surface.infoOpen)
	_, ok := s.SearchMarker()
	assert.False(t, ok)
}
