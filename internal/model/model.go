package model

import (
	"strings"
	"time"
)

// Event is a read-only calendar entry as delivered by an event source.
type Event struct {
	SourceID string // config source ID the event came from
	ID       string // server-assigned identifier, opaque to the client

	Title       string
	Location    string
	Description string

	// Start is zero when the source record carried no parseable start time.
	// Such events are kept in the snapshot but never placed in a date cell.
	Start time.Time
	// End is optional; the zero value means "same as Start".
	End time.Time

	Recurrence Recurrence
}

// Placed reports whether the event has a usable start time.
func (e Event) Placed() bool {
	return !e.Start.IsZero()
}

// DisplayEnd returns End, or Start when End is absent.
func (e Event) DisplayEnd() time.Time {
	if e.End.IsZero() {
		return e.Start
	}
	return e.End
}

// Frequency is how often a recurring event repeats.
type Frequency string

const (
	FrequencyNone    Frequency = "none"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// ParseFrequency lowercases and trims s. An empty value means no recurrence;
// unknown values are returned as-is so formatters can degrade gracefully.
func ParseFrequency(s string) Frequency {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FrequencyNone
	}
	return Frequency(s)
}

// Known reports whether f is one of the enumerated frequencies.
func (f Frequency) Known() bool {
	switch f {
	case FrequencyNone, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// EndType selects how a recurrence terminates.
type EndType string

const (
	EndNever EndType = "never"
	EndUntil EndType = "until"
	EndCount EndType = "count"
)

func ParseEndType(s string) EndType {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return EndNever
	}
	return EndType(s)
}

// Recurrence describes how an event repeats. It is never expanded on the
// client; only formatted or converted to an RRULE.
type Recurrence struct {
	Frequency Frequency
	EndType   EndType
	Until     time.Time // date only, meaningful when EndType == EndUntil
	Count     int       // meaningful when EndType == EndCount
}

// ViewMode is the calendar presentation selected by the user.
type ViewMode string

const (
	ViewDay   ViewMode = "day"
	ViewWeek  ViewMode = "week"
	ViewMonth ViewMode = "month"

	DefaultViewMode = ViewWeek
)

// Valid reports whether m is day, week or month.
func (m ViewMode) Valid() bool {
	switch m {
	case ViewDay, ViewWeek, ViewMonth:
		return true
	}
	return false
}

// ParseViewMode accepts case-insensitive input and reports whether it named
// a valid mode.
func ParseViewMode(s string) (ViewMode, bool) {
	m := ViewMode(strings.ToLower(strings.TrimSpace(s)))
	return m, m.Valid()
}

// ViewModeOr parses s and substitutes fallback when it is not a valid mode.
func ViewModeOr(s string, fallback ViewMode) ViewMode {
	if m, ok := ParseViewMode(s); ok {
		return m
	}
	return fallback
}
