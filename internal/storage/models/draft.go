// Package models contains the persisted forms of planner state.
package models

import (
	"time"

	"github.com/trip-planner/planner/internal/itinerary"
)

// Draft is a saved planning session. TripID is nil until the plan has been
// submitted once or when it was opened for editing an existing trip.
type Draft struct {
	ID            string                    `json:"id"`
	TripID        *int64                    `json:"trip_id,omitempty"`
	Title         string                    `json:"title"`
	CityID        int64                     `json:"city_id"`
	StartDate     *time.Time                `json:"start_date,omitempty"`
	EndDate       *time.Time                `json:"end_date,omitempty"`
	FriendUserIDs []int64                   `json:"friend_user_ids"`
	Length        int                       `json:"length"`
	Days          map[int]itinerary.DayPlan `json:"days"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// IsEmpty reports whether the draft carries nothing worth restoring.
func (d *Draft) IsEmpty() bool {
	if d.Title != "" || d.CityID != 0 || d.StartDate != nil || len(d.FriendUserIDs) > 0 {
		return false
	}
	for _, day := range d.Days {
		if !day.IsEmpty() {
			return false
		}
	}
	return true
}
