package recurrence

import (
	"strings"
	"testing"
	"time"

	"calview/internal/model"
)

func TestDescribe(t *testing.T) {
	until := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   model.Recurrence
		want string
	}{
		{"zero value", model.Recurrence{}, "does not repeat"},
		{"explicit none", model.Recurrence{Frequency: model.FrequencyNone, EndType: model.EndCount, Count: 3}, "does not repeat"},
		{"weekly count", model.Recurrence{Frequency: model.FrequencyWeekly, EndType: model.EndCount, Count: 5}, "weekly, for 5 occurrences"},
		{"daily until", model.Recurrence{Frequency: model.FrequencyDaily, EndType: model.EndUntil, Until: until}, "daily, ending on 2024-06-30"},
		{"monthly never", model.Recurrence{Frequency: model.FrequencyMonthly, EndType: model.EndNever}, "monthly, no end date"},
		{"yearly missing end", model.Recurrence{Frequency: model.FrequencyYearly}, "yearly, no end date"},
		{"unknown end type", model.Recurrence{Frequency: model.FrequencyWeekly, EndType: "forever"}, "weekly, no end date"},
		{"until without date", model.Recurrence{Frequency: model.FrequencyDaily, EndType: model.EndUntil}, "daily, no end date"},
		{"non-positive count", model.Recurrence{Frequency: model.FrequencyDaily, EndType: model.EndCount, Count: 0}, "daily, no end date"},
		{"unknown frequency", model.Recurrence{Frequency: "fortnightly", EndType: model.EndCount, Count: 2}, "repeats, no end date"},
		{"uppercase input", model.Recurrence{Frequency: "WEEKLY", EndType: "COUNT", Count: 1}, "weekly, for 1 occurrences"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.in); got != tt.want {
				t.Fatalf("Describe = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromRRule(t *testing.T) {
	tests := []struct {
		rule string
		want string
	}{
		{"FREQ=WEEKLY;COUNT=5", "weekly, for 5 occurrences"},
		{"FREQ=DAILY;UNTIL=20240630T000000Z", "daily, ending on 2024-06-30"},
		{"FREQ=MONTHLY;BYMONTHDAY=15", "monthly, no end date"},
		{"FREQ=YEARLY;INTERVAL=2", "yearly, no end date"},
		{"FREQ=HOURLY;COUNT=3", "repeats, no end date"},
	}
	for _, tt := range tests {
		r, err := FromRRule(tt.rule, time.UTC)
		if err != nil {
			t.Fatalf("FromRRule(%q): %v", tt.rule, err)
		}
		if got := Describe(r); got != tt.want {
			t.Errorf("Describe(FromRRule(%q)) = %q, want %q", tt.rule, got, tt.want)
		}
	}
}

func TestFromRRuleRejectsGarbage(t *testing.T) {
	if _, err := FromRRule("NOT-A-RULE", time.UTC); err == nil {
		t.Fatalf("expected error for malformed rule")
	}
}

func TestToRRule(t *testing.T) {
	r := model.Recurrence{Frequency: model.FrequencyWeekly, EndType: model.EndCount, Count: 5}
	s, err := ToRRule(r, time.UTC)
	if err != nil {
		t.Fatalf("ToRRule: %v", err)
	}
	if !strings.Contains(s, "FREQ=WEEKLY") || !strings.Contains(s, "COUNT=5") {
		t.Fatalf("ToRRule = %q", s)
	}

	back, err := FromRRule(s, time.UTC)
	if err != nil {
		t.Fatalf("FromRRule(%q): %v", s, err)
	}
	if back.Frequency != model.FrequencyWeekly || back.EndType != model.EndCount || back.Count != 5 {
		t.Fatalf("round trip = %+v", back)
	}
}

func TestToRRuleUntil(t *testing.T) {
	r := model.Recurrence{
		Frequency: model.FrequencyDaily,
		EndType:   model.EndUntil,
		Until:     time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	s, err := ToRRule(r, time.UTC)
	if err != nil {
		t.Fatalf("ToRRule: %v", err)
	}
	if !strings.Contains(s, "UNTIL=20240630T235900Z") {
		t.Fatalf("ToRRule = %q", s)
	}
}

func TestUntilRoundTripInZone(t *testing.T) {
	for _, name := range []string{"America/New_York", "America/Los_Angeles", "Asia/Seoul", "Pacific/Auckland"} {
		t.Run(name, func(t *testing.T) {
			loc, err := time.LoadLocation(name)
			if err != nil {
				t.Skipf("tzdata unavailable: %v", err)
			}
			r := model.Recurrence{
				Frequency: model.FrequencyWeekly,
				EndType:   model.EndUntil,
				Until:     time.Date(2024, 6, 30, 0, 0, 0, 0, loc),
			}
			s, err := ToRRule(r, loc)
			if err != nil {
				t.Fatalf("ToRRule: %v", err)
			}
			back, err := FromRRule(s, loc)
			if err != nil {
				t.Fatalf("FromRRule(%q): %v", s, err)
			}
			if got := Describe(back); got != "weekly, ending on 2024-06-30" {
				t.Fatalf("Describe(%q) = %q", s, got)
			}
		})
	}
}

func TestFromRRuleUntilForms(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tests := []struct {
		rule string
		want string
	}{
		// A US feed ending at local midnight writes the next UTC day.
		{"FREQ=DAILY;UNTIL=20240701T035959Z", "daily, ending on 2024-06-30"},
		{"FREQ=DAILY;UNTIL=20240630", "daily, ending on 2024-06-30"},
		{"FREQ=DAILY;UNTIL=20240630T235900", "daily, ending on 2024-06-30"},
	}
	for _, tt := range tests {
		r, err := FromRRule(tt.rule, ny)
		if err != nil {
			t.Fatalf("FromRRule(%q): %v", tt.rule, err)
		}
		if got := Describe(r); got != tt.want {
			t.Errorf("Describe(FromRRule(%q)) = %q, want %q", tt.rule, got, tt.want)
		}
	}
}

func TestToRRuleNoneAndUnknown(t *testing.T) {
	if _, err := ToRRule(model.Recurrence{}, time.UTC); !IsNoRule(err) {
		t.Fatalf("expected no-rule error, got %v", err)
	}
	if _, err := ToRRule(model.Recurrence{Frequency: "fortnightly"}, time.UTC); err == nil || IsNoRule(err) {
		t.Fatalf("expected unsupported frequency error, got %v", err)
	}
}
