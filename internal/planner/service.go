// Package planner ties one planning session together: the itinerary, its map
// rendering, the edit lock of an existing trip, place search, drafts and
// submission.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/trip-planner/planner/internal/apperr"
	"github.com/trip-planner/planner/internal/backend"
	"github.com/trip-planner/planner/internal/editlock"
	"github.com/trip-planner/planner/internal/itinerary"
	"github.com/trip-planner/planner/internal/logging"
	"github.com/trip-planner/planner/internal/mapsync"
	"github.com/trip-planner/planner/internal/storage/models"
)

// EditLock is the edit lock session of the trip being edited.
type EditLock interface {
	StartEdit(ctx context.Context, tripID int64) error
	EndEdit(ctx context.Context, tripID int64) error
	CheckEditStatus(ctx context.Context, tripID int64) (*backend.LockStatus, error)
	IsEditing() bool
	TripID() int64
	Status() editlock.Status
}

// Plans submits finished itineraries.
type Plans interface {
	CreatePlan(ctx context.Context, req backend.PlanRequest) (int64, error)
	UpdatePlan(ctx context.Context, tripID int64, req backend.PlanRequest) (int64, error)
}

// Searcher is the handle of the places capability.
type Searcher interface {
	Search(ctx context.Context, query string) ([]itinerary.Place, error)
}

// DraftStore persists the session between restarts.
type DraftStore interface {
	Save(ctx context.Context, draft *models.Draft) error
	Latest(ctx context.Context) (*models.Draft, error)
	Delete(ctx context.Context, id string) error
}

// Events receives session updates for connected browsers.
type Events interface {
	BroadcastPlanChanged(plan any)
	BroadcastSearchResults(query string, results any, err error)
	BroadcastNotification(level, title, message string)
}

// Details is the non-itinerary part of a plan.
type Details struct {
	Title         string  `json:"title"`
	CityID        int64   `json:"cityId"`
	FriendUserIDs []int64 `json:"friendUserIds"`
}

// Deps are the collaborators of a Service. Drafts and Events may be nil.
type Deps struct {
	Map      *mapsync.Sync
	Lock     EditLock
	Plans    Plans
	Provider mapsync.Provider
	Drafts   DraftStore
	Events   Events
	Logger   *slog.Logger
}

// Service is the planning session. All methods are safe for concurrent use.
type Service struct {
	maps     *mapsync.Sync
	lock     EditLock
	plans    Plans
	provider mapsync.Provider
	drafts   DraftStore
	events   Events
	logger   *slog.Logger

	mu        sync.Mutex
	it        *itinerary.Itinerary
	details   Details
	startDate *time.Time
	endDate   *time.Time
	tripID    int64
	draftID   string
	query     string
	results   []itinerary.Place
}

// New creates an empty session and starts mirroring itinerary changes onto the map.
func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	s := &Service{
		maps:     deps.Map,
		lock:     deps.Lock,
		plans:    deps.Plans,
		provider: deps.Provider,
		drafts:   deps.Drafts,
		events:   deps.Events,
		logger:   deps.Logger.With("component", "planner"),
		it:       itinerary.New(),
	}
	s.it.Subscribe(s.render)
	return s
}

// render runs inside itinerary mutations, so s.mu is already held.
func (s *Service) render(c itinerary.Change) {
	for _, day := range c.Removed {
		s.maps.RemoveDay(day)
	}
	for _, day := range c.Days {
		plan, ok := s.it.Day(day)
		if !ok {
			continue
		}
		s.maps.RenderDay(day, plan)
	}
}

// redrawLocked renders every day of the itinerary again.
func (s *Service) redrawLocked() {
	for day := 1; day <= s.it.Len(); day++ {
		if plan, ok := s.it.Day(day); ok {
			s.maps.RenderDay(day, plan)
		}
	}
}

// requireLockLocked rejects mutations of an existing trip unless this
// session holds its edit lock. New plans need no lock.
func (s *Service) requireLockLocked() error {
	if s.tripID == 0 {
		return nil
	}
	if s.lock.IsEditing() && s.lock.TripID() == s.tripID {
		return nil
	}
	return apperr.LockRequired(fmt.Sprintf("trip %d is not being edited", s.tripID))
}

// SetDetails sets title, city and friends.
func (s *Service) SetDetails(ctx context.Context, d Details) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLockLocked(); err != nil {
		return err
	}
	friends := make([]int64, len(d.FriendUserIDs))
	copy(friends, d.FriendUserIDs)
	d.FriendUserIDs = friends
	s.details = d
	s.changedLocked(ctx)
	return nil
}

// SetDateRange sizes the itinerary to the trip's days. Narrowing discards
// the days beyond the new end together with their places.
func (s *Service) SetDateRange(ctx context.Context, start, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLockLocked(); err != nil {
		return err
	}
	if err := s.it.SetDateRange(start, end); err != nil {
		return translate(err)
	}
	s.startDate, s.endDate = &start, &end
	s.changedLocked(ctx)
	return nil
}

// AddDay appends an empty day and returns its number.
func (s *Service) AddDay(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLockLocked(); err != nil {
		return 0, err
	}
	day := s.it.AddDay()
	if s.endDate != nil {
		end := s.endDate.AddDate(0, 0, 1)
		s.endDate = &end
	}
	s.changedLocked(ctx)
	return day, nil
}

// AddPlace adds a place from the latest search results to day, as the
// day's accommodation or as its next stop.
func (s *Service) AddPlace(ctx context.Context, day int, kind itinerary.Kind, placeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLockLocked(); err != nil {
		return err
	}
	place, ok := s.resultLocked(placeID)
	if !ok {
		return apperr.NotFound("search result " + placeID)
	}

	var err error
	switch kind {
	case itinerary.KindAccommodation:
		err = s.it.SetAccommodation(day, place)
	case itinerary.KindPlace:
		err = s.it.AddPlace(day, place)
	default:
		return apperr.BadRequest(fmt.Sprintf("unknown place type %d", kind))
	}
	if err != nil {
		return translate(err)
	}

	s.maps.ClearSearchMarker()
	s.changedLocked(ctx)
	return nil
}

// RemovePlace removes placeID from day.
func (s *Service) RemovePlace(ctx context.Context, day int, placeID string) error {
	return s.mutate(ctx, func() error { return s.it.RemovePlace(day, placeID) })
}

// MovePlace moves a stop to toIndex of toDay.
func (s *Service) MovePlace(ctx context.Context, placeID string, toDay, toIndex int) error {
	return s.mutate(ctx, func() error { return s.it.MovePlace(placeID, toDay, toIndex) })
}

// ClearDay empties day.
func (s *Service) ClearDay(ctx context.Context, day int) error {
	return s.mutate(ctx, func() error { return s.it.ClearDay(day) })
}

func (s *Service) mutate(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLockLocked(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return translate(err)
	}
	s.changedLocked(ctx)
	return nil
}

// Search runs a place search and keeps its results for AddPlace and
// SelectResult. A failed search clears the results.
func (s *Service) Search(ctx context.Context, query string) ([]itinerary.Place, error) {
	searcher, err := mapsync.LoadAs[Searcher](ctx, s.provider, mapsync.CapabilityPlaces)
	if err != nil {
		s.setResults(query, nil, err)
		return nil, err
	}

	results, err := searcher.Search(ctx, query)
	if err != nil {
		err = apperr.Unavailable("place search", err)
		s.setResults(query, nil, err)
		return nil, err
	}

	s.setResults(query, results, nil)
	return results, nil
}

func (s *Service) setResults(query string, results []itinerary.Place, err error) {
	if results == nil {
		results = []itinerary.Place{}
	}

	s.mu.Lock()
	s.query = query
	s.results = results
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("search failed", "query", query, "error", err)
	}
	if s.events != nil {
		s.events.BroadcastSearchResults(query, results, err)
	}
}

// Results returns the latest search query and results.
func (s *Service) Results() (string, []itinerary.Place) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]itinerary.Place, len(s.results))
	copy(out, s.results)
	return s.query, out
}

// SelectResult focuses a search result on the map. A result already in the
// itinerary opens its existing marker instead of adding a second one.
func (s *Service) SelectResult(_ context.Context, placeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	place, ok := s.resultLocked(placeID)
	if !ok {
		return apperr.NotFound("search result " + placeID)
	}
	s.maps.ShowSearchResult(place, s.it, s.maps.PopupVariant())
	return nil
}

// OpenPlace opens and pans to the marker of an itinerary place.
func (s *Service) OpenPlace(_ context.Context, placeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.maps.OpenPlace(placeID, s.maps.PopupVariant()); err != nil {
		if errors.Is(err, mapsync.ErrNoMarker) {
			return apperr.NotFound("place " + placeID)
		}
		return err
	}
	return nil
}

// SetPopupVariant selects the popup shown when a marker is clicked.
func (s *Service) SetPopupVariant(v mapsync.PopupVariant) {
	s.maps.SetPopupVariant(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked()
}

func (s *Service) resultLocked(placeID string) (itinerary.Place, bool) {
	for _, p := range s.results {
		if p.PlaceID == placeID {
			return p, true
		}
	}
	return itinerary.Place{}, false
}

// Submit sends the plan to the backend: a new plan is created, a loaded
// trip is updated under its edit lock. On success the session is reset and
// the trip id returned.
func (s *Service) Submit(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLockLocked(); err != nil {
		return 0, err
	}
	if s.startDate == nil || s.endDate == nil {
		return 0, apperr.Validation("travel dates are required", map[string]any{"startDate": "required"})
	}

	req := backend.NewPlanRequest(backend.PlanMeta{
		Title:         s.details.Title,
		CityID:        s.details.CityID,
		StartDate:     *s.startDate,
		EndDate:       *s.endDate,
		FriendUserIDs: s.details.FriendUserIDs,
	}, s.it.Entries())

	var (
		tripID int64
		err    error
	)
	if s.tripID == 0 {
		tripID, err = s.plans.CreatePlan(ctx, req)
	} else {
		tripID, err = s.plans.UpdatePlan(ctx, s.tripID, req)
	}
	if err != nil {
		s.logger.Error("plan submission failed", "trip_id", s.tripID, "error", err)
		if apperr.HasCode(err, apperr.CodeValidation) {
			return 0, err
		}
		if backend.StatusOf(err) == 0 {
			return 0, apperr.Unavailable("trip backend", err)
		}
		return 0, err
	}

	s.logger.Info("plan submitted", "trip_id", tripID, "places", len(req.Places))
	s.endEditLocked(ctx)
	s.resetLocked(ctx)
	if s.events != nil {
		s.events.BroadcastNotification("success", "저장 완료", "여행 계획이 저장되었습니다.")
	}
	return tripID, nil
}

// Reset discards the session, releasing the edit lock if held.
func (s *Service) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endEditLocked(ctx)
	s.resetLocked(ctx)
}

func (s *Service) resetLocked(ctx context.Context) {
	s.it.Reset()
	s.maps.ClearAll()
	s.maps.SetPopupVariant(mapsync.PopupRich)
	s.details = Details{}
	s.startDate, s.endDate = nil, nil
	s.tripID = 0
	s.query, s.results = "", nil

	if s.drafts != nil && s.draftID != "" {
		if err := s.drafts.Delete(ctx, s.draftID); err != nil {
			s.logger.Warn("deleting draft failed", "draft_id", s.draftID, "error", err)
		}
	}
	s.draftID = ""
	s.broadcastLocked()
}

func (s *Service) endEditLocked(ctx context.Context) {
	if s.tripID == 0 || !s.lock.IsEditing() {
		return
	}
	if err := s.lock.EndEdit(ctx, s.lock.TripID()); err != nil {
		s.logger.Warn("ending edit failed", "trip_id", s.tripID, "error", err)
	}
}

// EditTrip loads an existing trip's plan and acquires its edit lock. The
// current session is left untouched when the lock cannot be acquired.
func (s *Service) EditTrip(ctx context.Context, tripID int64, plan backend.PlanRequest) error {
	if tripID <= 0 {
		return apperr.BadRequest("trip id is required")
	}
	loaded, err := loadPlan(plan)
	if err != nil {
		return err
	}

	if err := s.lock.StartEdit(ctx, tripID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Switching trips: nothing drawn for the previous itinerary may survive.
	s.maps.ClearAll()
	s.maps.SetPopupVariant(mapsync.PopupSimple)
	if err := s.it.Restore(loaded.length, loaded.days); err != nil {
		s.redrawLocked()
		s.releaseAfterFailedLoad(ctx, tripID)
		return translate(err)
	}
	s.tripID = tripID
	s.details = loaded.details
	s.startDate, s.endDate = &loaded.start, &loaded.end
	s.query, s.results = "", nil
	s.changedLocked(ctx)
	return nil
}

func (s *Service) releaseAfterFailedLoad(ctx context.Context, tripID int64) {
	if err := s.lock.EndEdit(ctx, tripID); err != nil {
		s.logger.Warn("releasing lock after failed load", "trip_id", tripID, "error", err)
	}
}

// StartEditing acquires the edit lock of the loaded trip, for instance
// after a restart or after the lock was lost.
func (s *Service) StartEditing(ctx context.Context) error {
	tripID := s.TripID()
	if tripID == 0 {
		return apperr.BadRequest("no trip loaded")
	}
	return s.lock.StartEdit(ctx, tripID)
}

// StopEditing releases the edit lock. The plan stays loaded read-only.
func (s *Service) StopEditing(ctx context.Context) error {
	tripID := s.TripID()
	if tripID == 0 {
		return nil
	}
	return s.lock.EndEdit(ctx, tripID)
}

// EditStatus polls the server for the loaded trip's lock.
func (s *Service) EditStatus(ctx context.Context) (*backend.LockStatus, error) {
	tripID := s.TripID()
	if tripID == 0 {
		return nil, apperr.BadRequest("no trip loaded")
	}
	return s.lock.CheckEditStatus(ctx, tripID)
}

// TripID returns the loaded trip, or 0 for a new plan.
func (s *Service) TripID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tripID
}

// Close ends editing on shutdown.
func (s *Service) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endEditLocked(ctx)
}

func (s *Service) changedLocked(ctx context.Context) {
	s.persistLocked(ctx)
	s.broadcastLocked()
}

func (s *Service) broadcastLocked() {
	if s.events == nil {
		return
	}
	s.events.BroadcastPlanChanged(s.viewLocked())
}

func translate(err error) error {
	switch {
	case errors.Is(err, itinerary.ErrDuplicatePlace):
		return apperr.Wrap(err, apperr.CodeConflict, "place is already in the itinerary", http.StatusConflict)
	case errors.Is(err, itinerary.ErrDayOutOfRange),
		errors.Is(err, itinerary.ErrInvalidRange),
		errors.Is(err, itinerary.ErrInvalidPlace),
		errors.Is(err, itinerary.ErrNotMovable):
		return apperr.Validation(err.Error(), nil)
	case errors.Is(err, itinerary.ErrPlaceNotFound):
		return apperr.Wrap(err, apperr.CodeNotFound, err.Error(), http.StatusNotFound)
	default:
		return err
	}
}
