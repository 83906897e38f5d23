package planner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/trip-planner/planner/internal/apperr"
	"github.com/trip-planner/planner/internal/backend"
	"github.com/trip-planner/planner/internal/itinerary"
	"github.com/trip-planner/planner/internal/mapsync"
	"github.com/trip-planner/planner/internal/storage/models"
)

// persistLocked saves the session as the current draft. Failures are logged;
// the in-memory session stays authoritative.
func (s *Service) persistLocked(ctx context.Context) {
	if s.drafts == nil {
		return
	}

	draft := &models.Draft{
		ID:            s.draftID,
		Title:         s.details.Title,
		CityID:        s.details.CityID,
		StartDate:     s.startDate,
		EndDate:       s.endDate,
		FriendUserIDs: s.details.FriendUserIDs,
		Length:        s.it.Len(),
		Days:          s.it.Days(),
	}
	if s.tripID != 0 {
		tripID := s.tripID
		draft.TripID = &tripID
	}

	if err := s.drafts.Save(ctx, draft); err != nil {
		s.logger.Warn("saving draft failed", "trip_id", s.tripID, "error", err)
		return
	}
	s.draftID = draft.ID
}

// RestoreDraft loads the last saved draft, if any. A restored existing trip
// stays read-only until StartEditing succeeds.
func (s *Service) RestoreDraft(ctx context.Context) error {
	if s.drafts == nil {
		return nil
	}

	draft, err := s.drafts.Latest(ctx)
	if err != nil {
		return fmt.Errorf("loading draft: %w", err)
	}
	if draft == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.IsEmpty() && draft.TripID == nil {
		return nil
	}
	if err := s.it.Restore(draft.Length, draft.Days); err != nil {
		return fmt.Errorf("restoring draft %s: %w", draft.ID, err)
	}

	s.draftID = draft.ID
	s.details = Details{Title: draft.Title, CityID: draft.CityID, FriendUserIDs: draft.FriendUserIDs}
	s.startDate, s.endDate = draft.StartDate, draft.EndDate
	s.tripID = 0
	if draft.TripID != nil {
		s.tripID = *draft.TripID
		s.maps.SetPopupVariant(mapsync.PopupSimple)
	}

	s.logger.Info("draft restored", "draft_id", draft.ID, "trip_id", s.tripID, "days", draft.Length)
	s.broadcastLocked()
	return nil
}

type loadedPlan struct {
	details Details
	start   time.Time
	end     time.Time
	length  int
	days    map[int]itinerary.DayPlan
}

// loadPlan rebuilds an itinerary from a submitted plan body. Places are
// ordered by their global order; the trip length is the larger of the date
// range and the highest day used. A body that could not be restored is
// rejected here, before anything is drawn or locked.
func loadPlan(req backend.PlanRequest) (loadedPlan, error) {
	start, err := parsePlanDate(req.StartDate)
	if err != nil {
		return loadedPlan{}, apperr.Validation("invalid start date", map[string]any{"startDate": req.StartDate})
	}
	end, err := parsePlanDate(req.EndDate)
	if err != nil {
		return loadedPlan{}, apperr.Validation("invalid end date", map[string]any{"endDate": req.EndDate})
	}
	length, err := itinerary.TravelDays(start, end)
	if err != nil {
		return loadedPlan{}, apperr.Validation(err.Error(), nil)
	}

	places := make([]backend.PlanPlace, len(req.Places))
	copy(places, req.Places)
	sort.SliceStable(places, func(i, j int) bool { return places[i].Order < places[j].Order })

	days := make(map[int]itinerary.DayPlan)
	for _, p := range places {
		if p.Day < 1 {
			return loadedPlan{}, apperr.Validation("invalid day", map[string]any{"placeId": p.PlaceID, "day": p.Day})
		}
		if p.Day > length {
			length = p.Day
		}

		place := itinerary.Place{
			PlaceID:  p.PlaceID,
			Name:     p.Name,
			Location: itinerary.LatLng{Lat: p.Latitude, Lng: p.Longitude},
		}
		d := days[p.Day]
		switch itinerary.Kind(p.PlaceType) {
		case itinerary.KindAccommodation:
			if d.Accommodation != nil {
				return loadedPlan{}, apperr.Validation(
					fmt.Sprintf("day %d has more than one accommodation", p.Day),
					map[string]any{"day": p.Day, "placeId": p.PlaceID},
				)
			}
			d.Accommodation = &place
		default:
			d.Places = append(d.Places, place)
		}
		days[p.Day] = d
	}
	if err := itinerary.Validate(length, days); err != nil {
		return loadedPlan{}, apperr.Validation(err.Error(), nil)
	}

	return loadedPlan{
		details: Details{Title: req.Title, CityID: req.CityID, FriendUserIDs: req.FriendUserIDs},
		start:   start,
		end:     end,
		length:  length,
		days:    days,
	}, nil
}

func parsePlanDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
