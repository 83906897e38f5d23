package planner

import (
	"time"

	"github.com/trip-planner/planner/internal/editlock"
	"github.com/trip-planner/planner/internal/itinerary"
	"github.com/trip-planner/planner/internal/mapsync"
)

// DayView is one day of the plan as shown to the browser.
type DayView struct {
	Day           int                `json:"day"`
	Accommodation *itinerary.Place   `json:"accommodation,omitempty"`
	Places        []itinerary.Place  `json:"places"`
	Route         []itinerary.LatLng `json:"route,omitempty"`
}

// View is a snapshot of the whole session.
type View struct {
	TripID        int64                `json:"tripId,omitempty"`
	Title         string               `json:"title"`
	CityID        int64                `json:"cityId"`
	FriendUserIDs []int64              `json:"friendUserIds"`
	StartDate     *time.Time           `json:"startDate,omitempty"`
	EndDate       *time.Time           `json:"endDate,omitempty"`
	Days          []DayView            `json:"days"`
	Markers       []mapsync.MarkerInfo `json:"markers"`
	Popup         string               `json:"popup"`
	ReadOnly      bool                 `json:"readOnly"`
	Edit          editlock.Status      `json:"edit"`
}

// View returns the current session snapshot.
func (s *Service) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Service) viewLocked() View {
	v := View{
		TripID:        s.tripID,
		Title:         s.details.Title,
		CityID:        s.details.CityID,
		FriendUserIDs: append([]int64{}, s.details.FriendUserIDs...),
		StartDate:     s.startDate,
		EndDate:       s.endDate,
		Days:          make([]DayView, 0, s.it.Len()),
		Markers:       s.maps.Markers(0),
		Popup:         s.maps.PopupVariant().String(),
		ReadOnly:      s.requireLockLocked() != nil,
		Edit:          s.lock.Status(),
	}

	for day := 1; day <= s.it.Len(); day++ {
		plan, ok := s.it.Day(day)
		if !ok {
			continue
		}
		dv := DayView{Day: day, Accommodation: plan.Accommodation, Places: plan.Places}
		if route, ok := s.maps.Route(day); ok {
			dv.Route = route
		}
		v.Days = append(v.Days, dv)
	}
	return v
}
