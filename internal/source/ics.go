package source

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "calview/internal/log"
	"calview/internal/model"
	"calview/internal/recurrence"
)

// ICSOptions configures an iCalendar source. Exactly one of Path or URL
// is used; Path wins when both are set.
type ICSOptions struct {
	ID       string
	Path     string
	URL      string
	Location *time.Location
	Client   *http.Client
	CacheDir string
}

// ICS reads VEVENTs from a local file or a remote subscription. Recurrence
// rules are kept as descriptors; occurrences are never expanded.
type ICS struct {
	id      string
	path    string
	url     string
	loc     *time.Location
	fetcher *fetcher
}

func NewICS(opts ICSOptions) *ICS {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	id := opts.ID
	if id == "" {
		id = opts.Path
		if id == "" {
			id = opts.URL
		}
	}
	s := &ICS{id: id, path: opts.Path, url: opts.URL, loc: loc}
	if s.path == "" {
		s.fetcher = newFetcher(opts.Client, opts.CacheDir)
	}
	return s
}

func (s *ICS) ID() string { return s.id }

// Path is the watched local file, or "" for remote subscriptions.
func (s *ICS) Path() string { return s.path }

func (s *ICS) Fetch(ctx context.Context) ([]model.Event, error) {
	var body []byte
	if s.path != "" {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return nil, err
		}
		body = data
	} else {
		req, err := http.NewRequest(http.MethodGet, s.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/calendar")
		data, _, err := s.fetcher.get(ctx, s.id, s.url, req)
		if err != nil {
			return nil, err
		}
		body = data
	}
	return ParseICS(s.id, body, s.loc)
}

// ParseICS converts every VEVENT in body to an Event. VEVENTs with an
// unreadable DTSTART are kept unplaced rather than dropped.
func ParseICS(sourceID string, body []byte, loc *time.Location) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("source: empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", sourceID)
		return nil, err
	}

	events := make([]model.Event, 0)
	for _, ve := range cal.Events() {
		events = append(events, parseVEvent(sourceID, ve, loc))
	}
	appLog.Info("ics source loaded", "id", sourceID, "events", len(events))
	return events, nil
}

func parseVEvent(sourceID string, ve *ical.VEvent, loc *time.Location) model.Event {
	ev := model.Event{SourceID: sourceID}

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		ev.ID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Location = p.Value
	}

	allDay := false
	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			allDay = true
		}
		if !strings.Contains(p.Value, "T") {
			allDay = true
		}
	}

	if allDay {
		// Floating dates belong to the display zone, not UTC.
		if start, err := ve.GetAllDayStartAt(); err == nil {
			ev.Start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
		}
		if end, err := ve.GetAllDayEndAt(); err == nil {
			ev.End = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
		}
	} else {
		if start, err := ve.GetStartAt(); err == nil {
			ev.Start = start
		}
		if end, err := ve.GetEndAt(); err == nil {
			ev.End = end
		}
	}
	if ev.Start.IsZero() {
		appLog.Warn("ics vevent without usable DTSTART", "id", sourceID, "uid", ev.ID)
	}

	ev.Recurrence = model.Recurrence{Frequency: model.FrequencyNone, EndType: model.EndNever}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		rec, err := recurrence.FromRRule(p.Value, loc)
		if err != nil {
			appLog.Warn("ics rrule unreadable", "id", sourceID, "uid", ev.ID, "rrule", p.Value)
			rec = model.Recurrence{Frequency: "unknown", EndType: model.EndNever}
		}
		ev.Recurrence = rec
	}
	return ev
}

// EncodeICS serializes placed events as a VCALENDAR. Recurrence
// descriptors become RRULEs; stamp is written as DTSTAMP.
func EncodeICS(events []model.Event, loc *time.Location, stamp time.Time) []byte {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//calview//calendar view//EN")

	seen := make(map[string]int)
	for _, ev := range events {
		if !ev.Placed() {
			continue
		}
		uid := ev.ID
		if uid == "" {
			uid = "event"
		}
		if ev.SourceID != "" {
			uid += "@" + ev.SourceID
		}
		// Expanded occurrences share their series ID.
		if n := seen[uid]; n > 0 {
			seen[uid] = n + 1
			uid += "-" + strconv.Itoa(n)
		} else {
			seen[uid] = 1
		}

		ve := cal.AddEvent(uid)
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.DisplayEnd())
		ve.SetSummary(ev.Title)
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if rule, err := recurrence.ToRRule(ev.Recurrence, loc); err == nil {
			ve.AddProperty(ical.ComponentPropertyRrule, rule)
		}
	}
	return []byte(cal.Serialize())
}
