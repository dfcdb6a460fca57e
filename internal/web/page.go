package web

import (
	"html/template"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"calview/internal/calendar"
	"calview/internal/model"
	"calview/internal/recurrence"
)

// calendarPage is the server-rendered /calendar view. The root element
// carries data-ready="true" so headless captures know rendering is done.
var calendarPage = template.Must(template.New("calendar").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Label}}</title>
<style>
body { font-family: sans-serif; margin: 16px; color: #111; }
header { display: flex; justify-content: space-between; align-items: baseline; }
nav span { margin-left: 12px; color: #888; }
nav span.active { color: #111; font-weight: bold; }
table { border-collapse: collapse; width: 100%; table-layout: fixed; }
th, td { border: 1px solid #ccc; vertical-align: top; padding: 4px; height: 96px; }
th { height: auto; }
td.outside { color: #aaa; }
td.today, section.today h2 { background: #fff4c2; }
.ev { font-size: 12px; white-space: nowrap; overflow: hidden; text-overflow: ellipsis; }
.rec { color: #666; font-size: 11px; }
.empty { color: #888; }
</style>
</head>
<body>
<div class="calendar {{.Mode}}" data-ready="true">
<header>
<h1>{{.Label}}</h1>
<nav>{{range .Modes}}<span{{if .Active}} class="active"{{end}}>{{.Name}}</span>{{end}}</nav>
</header>
{{if .Month}}
<table>
<tr>{{range .Weekdays}}<th>{{.}}</th>{{end}}</tr>
{{range .Weeks}}<tr>{{range .}}
<td class="{{.Class}}"><div>{{.Day}}</div>{{range .Events}}<div class="ev">{{.Time}} {{.Title}}</div>{{end}}</td>{{end}}
</tr>
{{end}}</table>
{{else}}
{{range .Days}}<section class="{{.Class}}">
<h2>{{.Heading}}</h2>
{{range .Events}}<div class="ev">{{.Time}} {{.Title}}{{if .Location}} @ {{.Location}}{{end}}{{if .Recurrence}} <span class="rec">{{.Recurrence}}</span>{{end}}</div>
{{else}}<p class="empty">No events</p>
{{end}}</section>
{{end}}
{{end}}
</div>
</body>
</html>
`))

type pageData struct {
	Label    string
	Mode     model.ViewMode
	Month    bool
	Modes    []pageMode
	Weekdays []string
	Weeks    [][]pageCell
	Days     []pageCell
}

type pageMode struct {
	Name   string
	Active bool
}

type pageCell struct {
	Day     int
	Heading string
	Class   string
	Events  []pageEvent
}

type pageEvent struct {
	Time       string
	Title      string
	Location   string
	Recurrence string
}

var pageModes = []model.ViewMode{model.ViewDay, model.ViewWeek, model.ViewMonth}

func newPageData(f calendar.Frame) pageData {
	title := cases.Title(language.English)
	loc := f.Anchor.Location()

	data := pageData{
		Label:    f.Label,
		Mode:     f.Mode,
		Month:    f.Mode == model.ViewMonth,
		Weekdays: []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"},
	}
	for _, m := range pageModes {
		data.Modes = append(data.Modes, pageMode{Name: title.String(string(m)), Active: m == f.Mode})
	}

	var week []pageCell
	for _, c := range f.Cells {
		pc := pageCell{
			Day:     c.Date.Day(),
			Heading: c.Date.Format("Monday, January 2"),
			Events:  make([]pageEvent, 0, len(c.Events)),
		}
		var classes []string
		if !c.InFocusMonth {
			classes = append(classes, "outside")
		}
		if c.Today {
			classes = append(classes, "today")
		}
		pc.Class = strings.Join(classes, " ")
		for _, ev := range c.Events {
			pc.Events = append(pc.Events, newPageEvent(ev, loc))
		}

		if !data.Month {
			data.Days = append(data.Days, pc)
			continue
		}
		week = append(week, pc)
		if len(week) == 7 {
			data.Weeks = append(data.Weeks, week)
			week = nil
		}
	}
	return data
}

func newPageEvent(ev model.Event, loc *time.Location) pageEvent {
	pe := pageEvent{
		Time:     ev.Start.In(loc).Format("15:04"),
		Title:    ev.Title,
		Location: ev.Location,
	}
	if pe.Title == "" {
		pe.Title = "(untitled)"
	}
	if f := model.ParseFrequency(string(ev.Recurrence.Frequency)); f != model.FrequencyNone {
		pe.Recurrence = recurrence.Describe(ev.Recurrence)
	}
	return pe
}
