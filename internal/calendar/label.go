package calendar

import (
	"time"

	"calview/internal/datemath"
	"calview/internal/model"
)

// RangeLabel is the heading for the range shown by mode around anchor:
//
//	Day view: 2024-02-29 (Thu)
//	Week view: Mon 02-26 – Sun 03-03
//	Month view: 2024-02
func RangeLabel(mode model.ViewMode, anchor time.Time) string {
	anchor = datemath.Midnight(anchor)
	switch mode {
	case model.ViewDay:
		return "Day view: " + anchor.Format("2006-01-02 (Mon)")
	case model.ViewMonth:
		return "Month view: " + anchor.Format("2006-01")
	default:
		ws := datemath.WeekStart(anchor)
		return "Week view: Mon " + ws.Format("01-02") + " – Sun " + ws.AddDate(0, 0, 6).Format("01-02")
	}
}
