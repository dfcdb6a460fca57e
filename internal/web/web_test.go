package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"calview/internal/calendar"
	"calview/internal/config"
	"calview/internal/model"
	"calview/internal/prefs"
	"calview/internal/refresh"
)

var testNow = time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC)

func testEvents() []model.Event {
	return []model.Event{
		{
			ID: "1", SourceID: "srv", Title: "Standup", Location: "Room 1",
			Start:      time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC),
			End:        time.Date(2024, 2, 29, 9, 15, 0, 0, time.UTC),
			Recurrence: model.Recurrence{Frequency: model.FrequencyWeekly, EndType: model.EndCount, Count: 5},
		},
		{ID: "2", SourceID: "srv", Title: "Review", Start: time.Date(2024, 3, 12, 15, 0, 0, 0, time.UTC)},
	}
}

func newTestSession(t *testing.T, store calendar.Store) *Session {
	t.Helper()
	if store == nil {
		store = prefs.NewMemory()
	}
	s := NewSession(store, nil,
		calendar.WithClock(func() time.Time { return testNow }),
		calendar.WithLocation(time.UTC),
	)
	s.LoadEvents(testEvents())
	return s
}

type stubRefresher struct {
	res refresh.Result
	err error
}

func (s stubRefresher) Refresh(context.Context) (refresh.Result, error) { return s.res, s.err }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeFrame(t *testing.T, rec *httptest.ResponseRecorder) frameResponse {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var f frameResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return f
}

func TestViewAndNavigation(t *testing.T) {
	h := NewServer(newTestSession(t, nil), Options{}).Handler()

	f := decodeFrame(t, do(t, h, http.MethodGet, "/api/view", ""))
	if f.Mode != model.ViewWeek || f.Anchor != "2024-02-29" || len(f.Cells) != 7 {
		t.Fatalf("frame = %+v", f)
	}
	if f.Cells[0].Date != "2024-02-26" || !f.Cells[3].Today {
		t.Fatalf("cells = %+v", f.Cells)
	}
	if len(f.Events) != 1 || f.Events[0].RecurrenceText != "weekly, for 5 occurrences" {
		t.Fatalf("events = %+v", f.Events)
	}

	f = decodeFrame(t, do(t, h, http.MethodPost, "/api/view/next", ""))
	if f.Anchor != "2024-03-07" || len(f.Events) != 0 {
		t.Fatalf("after next = %s %d events", f.Anchor, len(f.Events))
	}
	f = decodeFrame(t, do(t, h, http.MethodPost, "/api/view/next", ""))
	if len(f.Events) != 1 || f.Events[0].ID != "2" {
		t.Fatalf("second week events = %+v", f.Events)
	}
	f = decodeFrame(t, do(t, h, http.MethodPost, "/api/view/previous", ""))
	if f.Anchor != "2024-03-07" {
		t.Fatalf("after previous = %s", f.Anchor)
	}
	f = decodeFrame(t, do(t, h, http.MethodPost, "/api/view/today", ""))
	if f.Anchor != "2024-02-29" {
		t.Fatalf("after today = %s", f.Anchor)
	}

	if rec := do(t, h, http.MethodGet, "/api/view/next", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET next = %d", rec.Code)
	}
}

func TestSwitchModePersists(t *testing.T) {
	store := prefs.NewMemory()
	h := NewServer(newTestSession(t, store), Options{}).Handler()

	f := decodeFrame(t, do(t, h, http.MethodPut, "/api/view/mode", `{"mode":"Month"}`))
	if f.Mode != model.ViewMonth || len(f.Cells) != calendar.MonthGridCells {
		t.Fatalf("frame = %s with %d cells", f.Mode, len(f.Cells))
	}
	if f.Events != nil {
		t.Fatalf("month frame should omit flat events")
	}
	if v, ok, _ := store.Get(calendar.ViewModeKey); !ok || v != "month" {
		t.Fatalf("stored = %q %v", v, ok)
	}

	// A new session on the same store starts in month view.
	f = decodeFrame(t, do(t, NewServer(newTestSession(t, store), Options{}).Handler(), http.MethodGet, "/api/view", ""))
	if f.Mode != model.ViewMonth {
		t.Fatalf("restored mode = %s", f.Mode)
	}

	for _, body := range []string{`{"mode":"agenda"}`, `not json`, `{}`} {
		if rec := do(t, h, http.MethodPut, "/api/view/mode", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d", body, rec.Code)
		}
	}
	if v, _, _ := store.Get(calendar.ViewModeKey); v != "month" {
		t.Fatalf("invalid switch changed stored mode to %q", v)
	}
}

func TestRefreshRoute(t *testing.T) {
	sess := newTestSession(t, nil)

	if rec := do(t, NewServer(sess, Options{}).Handler(), http.MethodPost, "/api/refresh", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured refresh = %d", rec.Code)
	}

	ok := stubRefresher{res: refresh.Result{Events: 4, Sources: 2, Failed: 1}}
	rec := do(t, NewServer(sess, Options{Refresher: ok}).Handler(), http.MethodPost, "/api/refresh", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"failed":1`) {
		t.Fatalf("refresh = %d %s", rec.Code, rec.Body.String())
	}

	bad := stubRefresher{err: errors.New("all down")}
	if rec := do(t, NewServer(sess, Options{Refresher: bad}).Handler(), http.MethodPost, "/api/refresh", ""); rec.Code != http.StatusBadGateway {
		t.Fatalf("failed refresh = %d", rec.Code)
	}
}

func TestCalendarPage(t *testing.T) {
	h := NewServer(newTestSession(t, nil), Options{}).Handler()
	rec := do(t, h, http.MethodGet, "/calendar", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`data-ready="true"`, "Week view: Mon 02-26", "Standup", "weekly, for 5 occurrences", `class="active">Week<`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}

	do(t, h, http.MethodPut, "/api/view/mode", `{"mode":"month"}`)
	body = do(t, h, http.MethodGet, "/calendar", "").Body.String()
	if strings.Count(body, "<tr>") != 7 {
		t.Errorf("month page should have header plus six week rows")
	}
	if !strings.Contains(body, `<td class="today">`) {
		t.Errorf("february page should mark today in focus")
	}

	// March's grid opens on Mon Feb 26, so today sits in the padding.
	do(t, h, http.MethodPost, "/api/view/next", "")
	body = do(t, h, http.MethodGet, "/calendar", "").Body.String()
	if !strings.Contains(body, `<td class="outside today">`) {
		t.Errorf("today in padding should keep both classes")
	}
}

func TestCalendarICS(t *testing.T) {
	h := NewServer(newTestSession(t, nil), Options{Now: func() time.Time { return testNow }}).Handler()
	rec := do(t, h, http.MethodGet, "/calendar.ics", "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar") {
		t.Fatalf("status = %d type = %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	body := rec.Body.String()
	for _, want := range []string{"BEGIN:VCALENDAR", "SUMMARY:Standup", "SUMMARY:Review", "RRULE:"} {
		if !strings.Contains(body, want) {
			t.Errorf("ics missing %q", want)
		}
	}
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name string
		auth *config.BasicAuthConfig
	}{
		{"plain", &config.BasicAuthConfig{Username: "admin", Password: "s3cret"}},
		{"hash", &config.BasicAuthConfig{Username: "admin", PasswordHash: string(hash)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewServer(newTestSession(t, nil), Options{BasicAuth: tc.auth}).Handler()

			if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
				t.Fatalf("health = %d", rec.Code)
			}
			if rec := do(t, h, http.MethodGet, "/api/view", ""); rec.Code != http.StatusUnauthorized {
				t.Fatalf("anonymous = %d", rec.Code)
			}

			req := httptest.NewRequest(http.MethodGet, "/api/view", nil)
			req.SetBasicAuth("admin", "wrong")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("wrong password = %d", rec.Code)
			}

			req = httptest.NewRequest(http.MethodGet, "/api/view", nil)
			req.SetBasicAuth("admin", "s3cret")
			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("valid credentials = %d", rec.Code)
			}
		})
	}
}

func TestSessionConcurrentUse(t *testing.T) {
	var frames int
	sink := calendar.SinkFunc(func(calendar.Frame) { frames++ })
	sess := NewSession(prefs.NewMemory(), sink,
		calendar.WithClock(func() time.Time { return testNow }),
		calendar.WithLocation(time.UTC),
	)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sess.Next()
			sess.Previous()
		}()
		go func() {
			defer wg.Done()
			sess.LoadEvents(testEvents())
		}()
	}
	wg.Wait()

	if frames != 24 {
		t.Fatalf("sink saw %d frames, want 24", frames)
	}
	if got := sess.Frame().Anchor; !got.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("anchor = %v", got)
	}
	if len(sess.Events()) != 2 {
		t.Fatalf("events = %d", len(sess.Events()))
	}
}

func TestRunShutsDown(t *testing.T) {
	srv := NewServer(newTestSession(t, nil), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not stop")
	}
}
