package refresh

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"calview/internal/model"
	"calview/internal/source"
)

type stubSource struct {
	id     string
	events []model.Event
	err    error
}

func (s *stubSource) ID() string { return s.id }

func (s *stubSource) Fetch(context.Context) ([]model.Event, error) {
	return s.events, s.err
}

type captureTarget struct {
	loads [][]model.Event
}

func (c *captureTarget) LoadEvents(events []model.Event) {
	c.loads = append(c.loads, events)
}

func TestRefreshMergesSources(t *testing.T) {
	a := &stubSource{id: "a", events: []model.Event{{ID: "a1"}}}
	b := &stubSource{id: "b", err: errors.New("timeout")}
	c := &stubSource{id: "c", events: []model.Event{{ID: "c1"}, {ID: "c2"}}}
	target := &captureTarget{}

	res, err := New([]source.Source{a, b, c}, target).Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Events != 3 || res.Failed != 1 || res.Sources != 3 {
		t.Fatalf("result = %+v", res)
	}
	if len(target.loads) != 1 || len(target.loads[0]) != 3 || target.loads[0][2].ID != "c2" {
		t.Fatalf("loads = %+v", target.loads)
	}
}

func TestRefreshAllFailedKeepsSnapshot(t *testing.T) {
	a := &stubSource{id: "a", events: []model.Event{{ID: "a1"}}}
	target := &captureTarget{}
	r := New([]source.Source{a}, target)

	if _, err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	a.err = errors.New("down")
	_, err := r.Refresh(context.Background())
	if !errors.Is(err, ErrAllSourcesFailed) {
		t.Fatalf("err = %v", err)
	}
	if len(target.loads) != 1 {
		t.Fatalf("target reloaded after total failure: %d loads", len(target.loads))
	}
}

func TestRefreshNoSourcesLoadsEmpty(t *testing.T) {
	target := &captureTarget{}
	if _, err := New(nil, target).Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(target.loads) != 1 || len(target.loads[0]) != 0 {
		t.Fatalf("loads = %+v", target.loads)
	}
}

func TestPaths(t *testing.T) {
	ics := source.NewICS(source.ICSOptions{ID: "team", Path: "/tmp/team.ics"})
	remote := source.NewHTTP(source.HTTPOptions{ID: "srv", URL: "http://localhost/api/events"})
	got := New([]source.Source{ics, remote}, &captureTarget{}).Paths()
	if len(got) != 1 || got[0] != "/tmp/team.ics" {
		t.Fatalf("Paths = %v", got)
	}
}

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	if _, err := NewScheduler("every tuesday", time.UTC, New(nil, &captureTarget{})); err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
}

func TestSchedulerRunStopsWithContext(t *testing.T) {
	s, err := NewScheduler("*/15 * * * *", time.UTC, New(nil, &captureTarget{}))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Next().IsZero() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if next := s.Next(); next.IsZero() || next.Minute()%15 != 0 {
		t.Errorf("next = %v", next)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "team.ics")
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("v0"), 0o600); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	w := NewWatcher([]string{path}, 200*time.Millisecond, func() { calls.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	select {
	case <-w.ready:
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher not ready")
	}

	if err := os.WriteFile(other, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("v1"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(400 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("onChange called %d times, want 1", got)
	}
}

func TestWatcherWithoutPathsReturns(t *testing.T) {
	w := NewWatcher(nil, 0, func() {})
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case <-w.ready:
	default:
		t.Fatalf("ready left open after early return")
	}
}

func TestWatcherRunTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team.ics")
	w := NewWatcher([]string{path}, 0, func() {})

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := w.Run(ctx); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
}
