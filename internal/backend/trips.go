package backend

import (
	"context"
	"net/http"
	"time"
)

// TripSummary is the trip part of a trip record. TripID is zero when the
// backend omits it.
type TripSummary struct {
	TripID    int64  `json:"tripId,omitempty"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// TripRecord is one entry of the user's trip history.
type TripRecord struct {
	Trip         TripSummary `json:"trip"`
	Participants []int64     `json:"tripParticipant"`
	HasStep1     bool        `json:"hasStep1"`
	HasStep2     bool        `json:"hasStep2"`
}

type tripRecordList struct {
	Trips []TripRecord `json:"trips"`
}

// ListTrips returns the authenticated user's trip records.
func (c *Client) ListTrips(ctx context.Context) ([]TripRecord, error) {
	var out tripRecordList
	if err := c.do(ctx, http.MethodGet, "/api/trips/record", nil, &out); err != nil {
		return nil, err
	}
	if out.Trips == nil {
		return []TripRecord{}, nil
	}
	return out.Trips, nil
}

// TripStory is a trip record shaped for the history list.
type TripStory struct {
	ID             int64   `json:"id"`
	Title          string  `json:"title"`
	Period         string  `json:"content"`
	CreatedAt      string  `json:"createdAt"`
	StartDate      string  `json:"startDate"`
	EndDate        string  `json:"endDate"`
	Step1Completed bool    `json:"isStep1Completed"`
	Step2Completed bool    `json:"isStep2Completed"`
	Participants   []int64 `json:"participants"`
	Editable       bool    `json:"editable"`
}

// Story converts the record at position index of a listing. The id is the
// trip id when known, otherwise index+1; only stories with a trip id can be
// opened for editing.
func (r TripRecord) Story(index int) TripStory {
	start := storyDate(r.Trip.StartDate)
	end := storyDate(r.Trip.EndDate)

	id := r.Trip.TripID
	if id == 0 {
		id = int64(index + 1)
	}
	participants := r.Participants
	if participants == nil {
		participants = []int64{}
	}

	return TripStory{
		ID:             id,
		Title:          r.Trip.Title,
		Period:         start + " ~ " + end,
		CreatedAt:      storyDate(r.Trip.CreatedAt),
		StartDate:      start,
		EndDate:        end,
		Step1Completed: r.HasStep1,
		Step2Completed: r.HasStep2,
		Participants:   participants,
		Editable:       r.Trip.TripID != 0,
	}
}

// storyDate reduces a backend timestamp to YYYY-MM-DD. Zone-less
// timestamps are read as UTC; unreadable values are returned unchanged.
func storyDate(s string) string {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.DateOnly)
		}
	}
	return s
}
