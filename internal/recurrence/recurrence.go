package recurrence

import (
	"errors"
	"strconv"
	"time"

	"github.com/teambition/rrule-go"

	"calview/internal/model"
)

// UntilLayout is how until-dates appear in descriptions and on the wire.
const UntilLayout = "2006-01-02"

const (
	textNone        = "does not repeat"
	textUnknownFreq = "repeats"
)

// Describe renders a one-line summary of r, e.g. "weekly, for 5 occurrences".
// It never fails: unknown frequencies or end conditions degrade to the
// "no end date" phrasing.
func Describe(r model.Recurrence) string {
	freq := model.ParseFrequency(string(r.Frequency))
	if freq == model.FrequencyNone {
		return textNone
	}
	if !freq.Known() {
		return textUnknownFreq + ", no end date"
	}

	label := string(freq)
	switch model.ParseEndType(string(r.EndType)) {
	case model.EndUntil:
		if !r.Until.IsZero() {
			return label + ", ending on " + r.Until.Format(UntilLayout)
		}
	case model.EndCount:
		if r.Count > 0 {
			return label + ", for " + strconv.Itoa(r.Count) + " occurrences"
		}
	}
	return label + ", no end date"
}

var errNoRule = errors.New("recurrence: event does not repeat")

// FromRRule parses an RFC 5545 RRULE value ("FREQ=WEEKLY;COUNT=5") into a
// descriptor. Only frequency and the end condition are kept; BYxxx parts and
// intervals have no place in the descriptor. Sub-daily frequencies map to
// their lowercase name and are therefore treated as unknown by Describe.
//
// UNTIL is read as a date in loc, so "20240701T035900Z" is June 30 in New
// York. Floating and date-only UNTIL values are parsed in loc directly.
func FromRRule(value string, loc *time.Location) (model.Recurrence, error) {
	if loc == nil {
		loc = time.Local
	}
	opt, err := rrule.StrToROptionInLocation(value, loc)
	if err != nil {
		return model.Recurrence{}, err
	}

	out := model.Recurrence{
		Frequency: frequencyFromRRule(opt.Freq),
		EndType:   model.EndNever,
	}
	switch {
	case opt.Count > 0:
		out.EndType = model.EndCount
		out.Count = opt.Count
	case !opt.Until.IsZero():
		out.EndType = model.EndUntil
		u := opt.Until.In(loc)
		out.Until = time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, loc)
	}
	return out, nil
}

// ToRRule is the inverse of FromRRule for the enumerated frequencies. It
// returns errNoRule for FrequencyNone and an error for unknown frequencies.
// Until-dates are widened to the end of that day in loc, matching how the
// event server interprets them.
func ToRRule(r model.Recurrence, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.Local
	}
	freq := model.ParseFrequency(string(r.Frequency))
	opt := rrule.ROption{}
	switch freq {
	case model.FrequencyNone:
		return "", errNoRule
	case model.FrequencyDaily:
		opt.Freq = rrule.DAILY
	case model.FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
	case model.FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
	case model.FrequencyYearly:
		opt.Freq = rrule.YEARLY
	default:
		return "", errors.New("recurrence: unsupported frequency " + strconv.Quote(string(freq)))
	}

	switch model.ParseEndType(string(r.EndType)) {
	case model.EndCount:
		if r.Count > 0 {
			opt.Count = r.Count
		}
	case model.EndUntil:
		if !r.Until.IsZero() {
			opt.Until = time.Date(r.Until.Year(), r.Until.Month(), r.Until.Day(), 23, 59, 0, 0, loc).UTC()
		}
	}
	return opt.RRuleString(), nil
}

// IsNoRule reports whether err came from ToRRule on a non-repeating event.
func IsNoRule(err error) bool {
	return errors.Is(err, errNoRule)
}

func frequencyFromRRule(f rrule.Frequency) model.Frequency {
	switch f {
	case rrule.YEARLY:
		return model.FrequencyYearly
	case rrule.MONTHLY:
		return model.FrequencyMonthly
	case rrule.WEEKLY:
		return model.FrequencyWeekly
	case rrule.DAILY:
		return model.FrequencyDaily
	case rrule.HOURLY:
		return "hourly"
	case rrule.MINUTELY:
		return "minutely"
	default:
		return "secondly"
	}
}
