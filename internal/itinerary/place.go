// Package itinerary models a multi-day trip plan: days, their accommodation and ordered stops.
package itinerary

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is a point of interest as returned by the search provider.
// Places are immutable once fetched and are copied by value into day plans.
type Place struct {
	PlaceID      string   `json:"placeId"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Location     LatLng   `json:"location"`
	Rating       *float64 `json:"rating,omitempty"`
	PriceLevel   *int     `json:"priceLevel,omitempty"`
	Types        []string `json:"types,omitempty"`
	PhotoURL     string   `json:"photoUrl,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Website      string   `json:"website,omitempty"`
	Description  string   `json:"description,omitempty"`
	OpeningHours []string `json:"openingHours,omitempty"`
}

// PrimaryType returns the first provider type, or "".
func (p Place) PrimaryType() string {
	if len(p.Types) == 0 {
		return ""
	}
	return p.Types[0]
}

// Kind distinguishes the two slot types of a day. The values match the
// backend's placeType field.
type Kind int

const (
	KindAccommodation Kind = 1
	KindPlace         Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindAccommodation:
		return "accommodation"
	case KindPlace:
		return "place"
	default:
		return "unknown"
	}
}

// DayPlan is one calendar day of the trip.
type DayPlan struct {
	Accommodation *Place  `json:"accommodation,omitempty"`
	Places        []Place `json:"places"`
}

// Contains reports whether placeID is this day's accommodation or one of its stops.
func (d DayPlan) Contains(placeID string) bool {
	if d.Accommodation != nil && d.Accommodation.PlaceID == placeID {
		return true
	}
	return d.indexOf(placeID) >= 0
}

// IsEmpty reports whether the day has neither accommodation nor stops.
func (d DayPlan) IsEmpty() bool {
	return d.Accommodation == nil && len(d.Places) == 0
}

func (d DayPlan) indexOf(placeID string) int {
	for i, p := range d.Places {
		if p.PlaceID == placeID {
			return i
		}
	}
	return -1
}

func (d DayPlan) clone() DayPlan {
	out := DayPlan{Places: make([]Place, len(d.Places))}
	copy(out.Places, d.Places)
	if d.Accommodation != nil {
		acc := *d.Accommodation
		out.Accommodation = &acc
	}
	return out
}
