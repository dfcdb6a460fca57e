package calendar

import (
	"slices"
	"time"

	"calview/internal/datemath"
	"calview/internal/model"
)

// EventsOnDate returns the events whose start falls on date's calendar day
// (in date's location), ordered by start time. Events sharing a start keep
// their input order. Unplaced events are never returned. The input slice is
// not modified.
func EventsOnDate(events []model.Event, date time.Time) []model.Event {
	key := datemath.DateKey(date)
	loc := date.Location()

	out := make([]model.Event, 0)
	for _, ev := range events {
		if !ev.Placed() {
			continue
		}
		if datemath.DateKey(ev.Start.In(loc)) == key {
			out = append(out, ev)
		}
	}
	sortByStart(out)
	return out
}

// dayIndex buckets a snapshot once so a 42-cell grid does not rescan the
// whole collection per cell. Lookups give the same result as EventsOnDate.
type dayIndex map[string][]model.Event

func newDayIndex(events []model.Event, loc *time.Location) dayIndex {
	idx := make(dayIndex)
	for _, ev := range events {
		if !ev.Placed() {
			continue
		}
		key := datemath.DateKey(ev.Start.In(loc))
		idx[key] = append(idx[key], ev)
	}
	for _, bucket := range idx {
		sortByStart(bucket)
	}
	return idx
}

func (idx dayIndex) on(date time.Time) []model.Event {
	bucket := idx[datemath.DateKey(date)]
	out := make([]model.Event, len(bucket))
	copy(out, bucket)
	return out
}

func sortByStart(events []model.Event) {
	slices.SortStableFunc(events, func(a, b model.Event) int {
		return a.Start.Compare(b.Start)
	})
}
