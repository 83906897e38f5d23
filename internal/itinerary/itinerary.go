package itinerary

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrDuplicatePlace = errors.New("place is already in the itinerary")
	ErrDayOutOfRange  = errors.New("day is outside the trip")
	ErrPlaceNotFound  = errors.New("place not found in day")
	ErrInvalidPlace   = errors.New("place has no id")
	ErrInvalidRange   = errors.New("end date is before start date")
	ErrNotMovable     = errors.New("accommodations cannot be reordered")
)

// Change describes the days touched by a mutation. Days lists days whose
// content changed and still exist; Removed lists days that were discarded.
type Change struct {
	Days    []int
	Removed []int
}

// Slot locates a place inside the itinerary.
type Slot struct {
	Day   int
	Kind  Kind
	Index int // position within Places; 0 for accommodations
}

// Itinerary maps day numbers 1..Len() to day plans.
//
// A place id appears at most once across the whole itinerary, whether as an
// accommodation or as a stop. Itinerary is not safe for concurrent use; the
// planning session serializes access.
type Itinerary struct {
	days      map[int]*DayPlan
	length    int
	observers []func(Change)
}

// New returns an empty itinerary with no days.
func New() *Itinerary {
	return &Itinerary{days: make(map[int]*DayPlan)}
}

// Subscribe registers fn to be called after every mutation.
func (it *Itinerary) Subscribe(fn func(Change)) {
	it.observers = append(it.observers, fn)
}

func (it *Itinerary) notify(c Change) {
	if len(c.Days) == 0 && len(c.Removed) == 0 {
		return
	}
	for _, fn := range it.observers {
		fn(c)
	}
}

// TravelDays returns the number of calendar days from start to end inclusive.
func TravelDays(start, end time.Time) (int, error) {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	if e.Before(s) {
		return 0, ErrInvalidRange
	}
	return int(e.Sub(s).Hours()/24) + 1, nil
}

// SetDateRange sizes the itinerary to the trip length of [start, end].
func (it *Itinerary) SetDateRange(start, end time.Time) error {
	n, err := TravelDays(start, end)
	if err != nil {
		return err
	}
	it.Resize(n)
	return nil
}

// Resize creates empty days up to n and discards every day beyond n together
// with its places.
func (it *Itinerary) Resize(n int) {
	if n < 0 {
		n = 0
	}

	var change Change
	for day := 1; day <= n; day++ {
		if _, ok := it.days[day]; !ok {
			it.days[day] = &DayPlan{Places: []Place{}}
			change.Days = append(change.Days, day)
		}
	}
	for day := range it.days {
		if day > n {
			delete(it.days, day)
			change.Removed = append(change.Removed, day)
		}
	}
	sort.Ints(change.Removed)

	it.length = n
	it.notify(change)
}

// AddDay appends an empty day and returns its number.
func (it *Itinerary) AddDay() int {
	it.Resize(it.length + 1)
	return it.length
}

// Len returns the number of days.
func (it *Itinerary) Len() int {
	return it.length
}

// Day returns a copy of the given day.
func (it *Itinerary) Day(day int) (DayPlan, bool) {
	d, ok := it.days[day]
	if !ok {
		return DayPlan{}, false
	}
	return d.clone(), true
}

// Days returns a copy of every day keyed by day number.
func (it *Itinerary) Days() map[int]DayPlan {
	out := make(map[int]DayPlan, len(it.days))
	for day, d := range it.days {
		out[day] = d.clone()
	}
	return out
}

// Contains reports whether placeID is planned anywhere.
func (it *Itinerary) Contains(placeID string) bool {
	_, ok := it.Locate(placeID)
	return ok
}

// Locate finds the slot holding placeID.
func (it *Itinerary) Locate(placeID string) (Slot, bool) {
	for day, d := range it.days {
		if d.Accommodation != nil && d.Accommodation.PlaceID == placeID {
			return Slot{Day: day, Kind: KindAccommodation}, true
		}
		if i := d.indexOf(placeID); i >= 0 {
			return Slot{Day: day, Kind: KindPlace, Index: i}, true
		}
	}
	return Slot{}, false
}

// HasAccommodation reports whether day has an accommodation.
func (it *Itinerary) HasAccommodation(day int) bool {
	d, ok := it.days[day]
	return ok && d.Accommodation != nil
}

func (it *Itinerary) day(day int) (*DayPlan, error) {
	d, ok := it.days[day]
	if !ok {
		return nil, fmt.Errorf("%w: day %d of %d", ErrDayOutOfRange, day, it.length)
	}
	return d, nil
}

// SetAccommodation sets or replaces the accommodation of day.
func (it *Itinerary) SetAccommodation(day int, p Place) error {
	if p.PlaceID == "" {
		return ErrInvalidPlace
	}
	d, err := it.day(day)
	if err != nil {
		return err
	}
	if slot, ok := it.Locate(p.PlaceID); ok {
		if slot.Day == day && slot.Kind == KindAccommodation {
			return nil
		}
		return fmt.Errorf("%w: %s (day %d)", ErrDuplicatePlace, p.PlaceID, slot.Day)
	}

	d.Accommodation = &p
	it.notify(Change{Days: []int{day}})
	return nil
}

// AddPlace appends p to the stops of day.
func (it *Itinerary) AddPlace(day int, p Place) error {
	if p.PlaceID == "" {
		return ErrInvalidPlace
	}
	d, err := it.day(day)
	if err != nil {
		return err
	}
	if slot, ok := it.Locate(p.PlaceID); ok {
		return fmt.Errorf("%w: %s (day %d)", ErrDuplicatePlace, p.PlaceID, slot.Day)
	}

	d.Places = append(d.Places, p)
	it.notify(Change{Days: []int{day}})
	return nil
}

// RemovePlace removes placeID from day, whether accommodation or stop.
func (it *Itinerary) RemovePlace(day int, placeID string) error {
	d, err := it.day(day)
	if err != nil {
		return err
	}

	if d.Accommodation != nil && d.Accommodation.PlaceID == placeID {
		d.Accommodation = nil
	} else if i := d.indexOf(placeID); i >= 0 {
		d.Places = append(d.Places[:i], d.Places[i+1:]...)
	} else {
		return fmt.Errorf("%w: %s (day %d)", ErrPlaceNotFound, placeID, day)
	}

	it.notify(Change{Days: []int{day}})
	return nil
}

// MovePlace moves a stop to position toIndex of toDay. The index is clamped
// to the target day's bounds; moves may stay within a day or cross days.
func (it *Itinerary) MovePlace(placeID string, toDay, toIndex int) error {
	slot, ok := it.Locate(placeID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlaceNotFound, placeID)
	}
	if slot.Kind == KindAccommodation {
		return ErrNotMovable
	}
	target, err := it.day(toDay)
	if err != nil {
		return err
	}

	source := it.days[slot.Day]
	p := source.Places[slot.Index]
	source.Places = append(source.Places[:slot.Index], source.Places[slot.Index+1:]...)

	if toIndex < 0 {
		toIndex = 0
	}
	if toIndex > len(target.Places) {
		toIndex = len(target.Places)
	}
	target.Places = append(target.Places, Place{})
	copy(target.Places[toIndex+1:], target.Places[toIndex:])
	target.Places[toIndex] = p

	change := Change{Days: []int{slot.Day}}
	if toDay != slot.Day {
		change.Days = append(change.Days, toDay)
	}
	it.notify(change)
	return nil
}

// ClearDay empties day without removing it.
func (it *Itinerary) ClearDay(day int) error {
	d, err := it.day(day)
	if err != nil {
		return err
	}
	d.Accommodation = nil
	d.Places = []Place{}
	it.notify(Change{Days: []int{day}})
	return nil
}

// Reset discards every day.
func (it *Itinerary) Reset() {
	it.Resize(0)
}

// Validate checks that days 1..length hold only places with ids and that no
// place appears twice.
func Validate(length int, days map[int]DayPlan) error {
	seen := make(map[string]int)
	check := func(day int, p Place) error {
		if p.PlaceID == "" {
			return ErrInvalidPlace
		}
		if prev, dup := seen[p.PlaceID]; dup {
			return fmt.Errorf("%w: %s (days %d and %d)", ErrDuplicatePlace, p.PlaceID, prev, day)
		}
		seen[p.PlaceID] = day
		return nil
	}
	for day := 1; day <= length; day++ {
		d := days[day]
		if d.Accommodation != nil {
			if err := check(day, *d.Accommodation); err != nil {
				return err
			}
		}
		for _, p := range d.Places {
			if err := check(day, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// Restore replaces the whole itinerary with days, sized to length. Days
// beyond length are ignored. It fails without modifying the itinerary when
// days would break the one-slot-per-place rule.
func (it *Itinerary) Restore(length int, days map[int]DayPlan) error {
	if err := Validate(length, days); err != nil {
		return err
	}

	it.Reset()
	var change Change
	for day := 1; day <= length; day++ {
		d := days[day].clone()
		it.days[day] = &d
		change.Days = append(change.Days, day)
	}
	it.length = length
	it.notify(change)
	return nil
}

// Entry is one slot in submission order.
type Entry struct {
	Day   int
	Order int
	Kind  Kind
	Place Place
}

// Entries flattens the itinerary day by day: the accommodation first, then
// the stops in order. Order starts at 1 and increases across all days.
func (it *Itinerary) Entries() []Entry {
	var out []Entry
	order := 0
	for day := 1; day <= it.length; day++ {
		d, ok := it.days[day]
		if !ok {
			continue
		}
		if d.Accommodation != nil {
			order++
			out = append(out, Entry{Day: day, Order: order, Kind: KindAccommodation, Place: *d.Accommodation})
		}
		for _, p := range d.Places {
			order++
			out = append(out, Entry{Day: day, Order: order, Kind: KindPlace, Place: p})
		}
	}
	return out
}
