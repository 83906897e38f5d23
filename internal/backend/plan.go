package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/trip-planner/planner/internal/apperr"
	"github.com/trip-planner/planner/internal/itinerary"
)

// isoLayout matches the millisecond UTC form browsers produce for dates.
const isoLayout = "2006-01-02T15:04:05.000Z"

// PlanPlace is one itinerary slot in a submission.
type PlanPlace struct {
	PlaceID   string  `json:"placeId" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
	Day       int     `json:"day" validate:"gte=1"`
	Order     int     `json:"order" validate:"gte=1"`
	PlaceType int     `json:"placeType" validate:"oneof=1 2"`
}

// PlanRequest is the body of plan creation and update.
type PlanRequest struct {
	FriendUserIDs []int64     `json:"friendUserIds"`
	CityID        int64       `json:"cityId" validate:"gt=0"`
	StartDate     string      `json:"startDate" validate:"required"`
	EndDate       string      `json:"endDate" validate:"required"`
	Title         string      `json:"title" validate:"required,max=100"`
	Places        []PlanPlace `json:"places" validate:"dive"`
}

// PlanMeta is the non-itinerary part of a submission.
type PlanMeta struct {
	Title         string
	CityID        int64
	StartDate     time.Time
	EndDate       time.Time
	FriendUserIDs []int64
}

// NewPlanRequest builds a submission body from meta and the itinerary's entries.
func NewPlanRequest(meta PlanMeta, entries []itinerary.Entry) PlanRequest {
	friends := make([]int64, len(meta.FriendUserIDs))
	copy(friends, meta.FriendUserIDs)

	places := make([]PlanPlace, 0, len(entries))
	for _, e := range entries {
		places = append(places, PlanPlace{
			PlaceID:   e.Place.PlaceID,
			Name:      e.Place.Name,
			Latitude:  e.Place.Location.Lat,
			Longitude: e.Place.Location.Lng,
			Day:       e.Day,
			Order:     e.Order,
			PlaceType: int(e.Kind),
		})
	}

	return PlanRequest{
		FriendUserIDs: friends,
		CityID:        meta.CityID,
		StartDate:     meta.StartDate.UTC().Format(isoLayout),
		EndDate:       meta.EndDate.UTC().Format(isoLayout),
		Title:         meta.Title,
		Places:        places,
	}
}

type planResponse struct {
	TripID int64 `json:"tripId"`
}

// CreatePlan submits a new trip plan and returns its trip id.
func (c *Client) CreatePlan(ctx context.Context, req PlanRequest) (int64, error) {
	return c.submitPlan(ctx, http.MethodPost, "/api/trips/plan", req)
}

// UpdatePlan replaces the plan of an existing trip.
func (c *Client) UpdatePlan(ctx context.Context, tripID int64, req PlanRequest) (int64, error) {
	return c.submitPlan(ctx, http.MethodPut, fmt.Sprintf("/api/trips/%d/plan", tripID), req)
}

func (c *Client) submitPlan(ctx context.Context, method, path string, req PlanRequest) (int64, error) {
	if err := c.validate.StructCtx(ctx, req); err != nil {
		return 0, validationError(err)
	}

	var resp planResponse
	if err := c.do(ctx, method, path, req, &resp); err != nil {
		return 0, err
	}
	return resp.TripID, nil
}

// CheckNickname asks whether nickname is free. A 409 means it is taken.
func (c *Client) CheckNickname(ctx context.Context, nickname string) (bool, error) {
	path := "/api/auth/check-name?nickname=" + url.QueryEscape(nickname)
	err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err == nil {
		return true, nil
	}
	if StatusOf(err) == http.StatusConflict {
		return false, nil
	}
	return false, err
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("invalid plan", map[string]any{"error": err.Error()})
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Namespace()] = fe.Tag()
	}
	return apperr.Validation("invalid plan", fields)
}
