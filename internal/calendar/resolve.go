package calendar

import (
	"time"

	"calview/internal/datemath"
	"calview/internal/model"
)

// MonthGridCells is the fixed size of the month view: six full weeks.
const MonthGridCells = 42

// DateCell is one day of the rendered range.
type DateCell struct {
	Date time.Time // midnight in the view location

	// InFocusMonth is false only for month-view padding borrowed from the
	// previous or next month. Day and week cells are always in focus.
	InFocusMonth bool

	// Today is computed against the clock at resolve time.
	Today bool

	Events []model.Event
}

// Resolve computes the cells for mode around anchor and buckets events into
// them. An invalid mode resolves as model.DefaultViewMode. now is only used
// for the Today flag; it is converted to anchor's location first.
func Resolve(mode model.ViewMode, anchor time.Time, events []model.Event, now time.Time) []DateCell {
	anchor = datemath.Midnight(anchor)
	idx := newDayIndex(events, anchor.Location())
	todayKey := datemath.DateKey(now.In(anchor.Location()))

	first, count := span(mode, anchor)
	cells := make([]DateCell, 0, count)
	for i := 0; i < count; i++ {
		day := first.AddDate(0, 0, i)
		cells = append(cells, DateCell{
			Date:         day,
			InFocusMonth: mode != model.ViewMonth || day.Month() == anchor.Month(),
			Today:        datemath.DateKey(day) == todayKey,
			Events:       idx.on(day),
		})
	}
	return cells
}

// Span returns the first day and the number of days covered by mode for
// anchor. Event sources can use it to limit what they request.
func Span(mode model.ViewMode, anchor time.Time) (time.Time, int) {
	return span(mode, datemath.Midnight(anchor))
}

func span(mode model.ViewMode, anchor time.Time) (time.Time, int) {
	switch mode {
	case model.ViewDay:
		return anchor, 1
	case model.ViewMonth:
		return datemath.WeekStart(datemath.FirstOfMonth(anchor)), MonthGridCells
	default:
		return datemath.WeekStart(anchor), 7
	}
}
