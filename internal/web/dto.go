package web

import (
	"time"

	"calview/internal/calendar"
	"calview/internal/datemath"
	"calview/internal/model"
	"calview/internal/recurrence"
)

// frameResponse is the JSON shape of /api/view and the navigation routes.
type frameResponse struct {
	Mode   model.ViewMode `json:"mode"`
	Anchor string         `json:"anchor"`
	Label  string         `json:"label"`
	Cells  []cellDTO      `json:"cells"`
	// Events is the flattened day/week list; omitted in month mode.
	Events []eventDTO `json:"events,omitempty"`
}

type cellDTO struct {
	Date         string     `json:"date"`
	InFocusMonth bool       `json:"in_focus_month"`
	Today        bool       `json:"today"`
	Events       []eventDTO `json:"events"`
}

type recurrenceDTO struct {
	Frequency model.Frequency `json:"frequency"`
	EndType   model.EndType   `json:"end_type"`
	Until     string          `json:"until,omitempty"`
	Count     int             `json:"count,omitempty"`
}

type eventDTO struct {
	SourceID       string        `json:"source_id,omitempty"`
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Location       string        `json:"location,omitempty"`
	Description    string        `json:"description,omitempty"`
	Start          string        `json:"start"`
	End            string        `json:"end"`
	Recurrence     recurrenceDTO `json:"recurrence"`
	RecurrenceText string        `json:"recurrence_text"`
}

func newFrameResponse(f calendar.Frame) frameResponse {
	loc := f.Anchor.Location()
	out := frameResponse{
		Mode:   f.Mode,
		Anchor: datemath.DateKey(f.Anchor),
		Label:  f.Label,
		Cells:  make([]cellDTO, 0, len(f.Cells)),
	}
	for _, c := range f.Cells {
		out.Cells = append(out.Cells, cellDTO{
			Date:         datemath.DateKey(c.Date),
			InFocusMonth: c.InFocusMonth,
			Today:        c.Today,
			Events:       newEventDTOs(c.Events, loc),
		})
	}
	if f.Events != nil {
		out.Events = newEventDTOs(f.Events, loc)
	}
	return out
}

func newEventDTOs(events []model.Event, loc *time.Location) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		out = append(out, newEventDTO(ev, loc))
	}
	return out
}

func newEventDTO(ev model.Event, loc *time.Location) eventDTO {
	dto := eventDTO{
		SourceID:    ev.SourceID,
		ID:          ev.ID,
		Title:       ev.Title,
		Location:    ev.Location,
		Description: ev.Description,
		Recurrence: recurrenceDTO{
			Frequency: ev.Recurrence.Frequency,
			EndType:   ev.Recurrence.EndType,
			Count:     ev.Recurrence.Count,
		},
		RecurrenceText: recurrence.Describe(ev.Recurrence),
	}
	if ev.Placed() {
		dto.Start = ev.Start.In(loc).Format(time.RFC3339)
		dto.End = ev.DisplayEnd().In(loc).Format(time.RFC3339)
	}
	if !ev.Recurrence.Until.IsZero() {
		dto.Recurrence.Until = ev.Recurrence.Until.Format(recurrence.UntilLayout)
	}
	return dto
}
