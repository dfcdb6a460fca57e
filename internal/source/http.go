package source

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	appLog "calview/internal/log"
	"calview/internal/model"
	"calview/internal/recurrence"
)

// HTTPOptions configures an event server source.
type HTTPOptions struct {
	ID     string
	URL    string // e.g. http://localhost:5000/api/events
	APIKey string // sent as X-API-Key when set
	// Expand requests server-expanded occurrences (?expand=1); each item
	// then carries occurrence_time, which is used as its start.
	Expand bool
	// Window is how far either side of today expanded occurrences are
	// requested. Without start/end the server stops never-ending series
	// a year after their first occurrence.
	Window   time.Duration
	Location *time.Location // zone for timestamps without an offset
	Client   *http.Client
	CacheDir string
	Now      func() time.Time
}

// DefaultExpandWindow covers roughly a year each way from today.
const DefaultExpandWindow = 366 * 24 * time.Hour

// expandLayout is the server's zone-less timestamp form.
const expandLayout = "2006-01-02T15:04"

// HTTP reads the event collection from the scheduling server's JSON API.
type HTTP struct {
	id      string
	url     string
	apiKey  string
	expand  bool
	window  time.Duration
	loc     *time.Location
	now     func() time.Time
	fetcher *fetcher
}

func NewHTTP(opts HTTPOptions) *HTTP {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	id := opts.ID
	if id == "" {
		id = opts.URL
	}
	window := opts.Window
	if window <= 0 {
		window = DefaultExpandWindow
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &HTTP{
		id:      id,
		url:     opts.URL,
		apiKey:  opts.APIKey,
		expand:  opts.Expand,
		window:  window,
		loc:     loc,
		now:     now,
		fetcher: newFetcher(opts.Client, opts.CacheDir),
	}
}

func (s *HTTP) ID() string { return s.id }

// Fetch returns the full collection in server order.
func (s *HTTP) Fetch(ctx context.Context) ([]model.Event, error) {
	target, cacheURL := s.url, s.url
	if s.expand {
		u, err := url.Parse(s.url)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("expand", "1")
		u.RawQuery = q.Encode()
		cacheURL = u.String()

		// The window moves daily; the cache entry must not.
		now := s.now().In(s.loc)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
		q.Set("start", today.Add(-s.window).Format(expandLayout))
		q.Set("end", today.Add(s.window).Format(expandLayout))
		u.RawQuery = q.Encode()
		target = u.String()
	}

	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	body, fromCache, err := s.fetcher.get(ctx, s.id, cacheURL, req)
	if err != nil {
		return nil, err
	}
	events, err := DecodeEvents(s.id, body, s.loc)
	if err != nil {
		return nil, err
	}
	appLog.Info("http source loaded", "id", s.id, "events", len(events), "from_cache", fromCache)
	return events, nil
}

var errPayload = errors.New("source: event payload is not a JSON array or {\"items\": [...]}")

// DecodeEvents decodes the server's event list. Records are decoded one by
// one so a corrupt record cannot drop the rest: a record without a usable
// start is kept but unplaced, and a record that is not an object is
// skipped.
func DecodeEvents(sourceID string, body []byte, loc *time.Location) ([]model.Event, error) {
	if !gjson.ValidBytes(body) {
		return nil, errPayload
	}
	root := gjson.ParseBytes(body)
	items := root.Get("items")
	if !items.Exists() && root.IsArray() {
		items = root
	}
	if !items.IsArray() {
		return nil, errPayload
	}

	out := make([]model.Event, 0)
	unplaced := 0
	items.ForEach(func(key, item gjson.Result) bool {
		if !item.IsObject() {
			appLog.Warn("skipping non-object event record", "id", sourceID, "index", key.Int())
			return true
		}
		ev := decodeEvent(sourceID, item, loc)
		if !ev.Placed() {
			unplaced++
		}
		out = append(out, ev)
		return true
	})
	if unplaced > 0 {
		appLog.Warn("events without a usable start", "id", sourceID, "count", unplaced)
	}
	return out, nil
}

func decodeEvent(sourceID string, item gjson.Result, loc *time.Location) model.Event {
	ev := model.Event{
		SourceID:    sourceID,
		ID:          item.Get("id").String(),
		Title:       item.Get("title").String(),
		Location:    item.Get("location").String(),
		Description: item.Get("description").String(),
	}

	base := parseTimestamp(firstString(item, "start", "time"), loc)
	end := parseTimestamp(firstString(item, "end", "end_time"), loc)
	ev.Start = base
	ev.End = end

	if occ := parseTimestamp(item.Get("occurrence_time").String(), loc); !occ.IsZero() {
		ev.Start = occ
		// Occurrences keep the base event's duration.
		if !base.IsZero() && !end.IsZero() {
			ev.End = occ.Add(end.Sub(base))
		} else {
			ev.End = time.Time{}
		}
	}

	if rec := item.Get("recurrence"); rec.IsObject() {
		ev.Recurrence = model.Recurrence{
			Frequency: model.ParseFrequency(rec.Get("frequency").String()),
			EndType:   model.ParseEndType(rec.Get("end_type").String()),
			Count:     int(rec.Get("count").Int()),
		}
		if u := rec.Get("until").String(); u != "" {
			if t, err := time.ParseInLocation(recurrence.UntilLayout, u, loc); err == nil {
				ev.Recurrence.Until = t
			}
		}
	} else {
		ev.Recurrence = model.Recurrence{Frequency: model.FrequencyNone, EndType: model.EndNever}
	}
	return ev
}

func firstString(item gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := item.Get(k); v.Exists() && v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimestamp accepts RFC 3339 and the server's zone-less
// "YYYY-MM-DDTHH:MM" form (read in loc). Anything else yields zero.
func parseTimestamp(s string, loc *time.Location) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}
