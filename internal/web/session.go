package web

import (
	"sync"

	"calview/internal/calendar"
	"calview/internal/model"
)

// Session serializes access to a calendar.View shared by HTTP handlers and
// the background refresher. Every mutating call returns the frame the view
// rendered for it.
type Session struct {
	mu    sync.Mutex
	view  *calendar.View
	last  calendar.Frame
	extra calendar.Sink
}

// NewSession builds the view. sink, if non-nil, additionally receives
// every rendered frame while the session lock is held.
func NewSession(store calendar.Store, sink calendar.Sink, opts ...calendar.Option) *Session {
	s := &Session{extra: sink}
	opts = append(opts, calendar.WithSink(calendar.SinkFunc(s.record)))
	s.view = calendar.New(store, opts...)
	s.last = s.view.Frame()
	return s
}

func (s *Session) record(f calendar.Frame) {
	s.last = f
	if s.extra != nil {
		s.extra.Render(f)
	}
}

// Frame returns the current frame, recomputed so the Today flag follows
// the clock.
func (s *Session) Frame() calendar.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = s.view.Frame()
	return s.last
}

func (s *Session) Next() calendar.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Next()
	return s.last
}

func (s *Session) Previous() calendar.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Previous()
	return s.last
}

func (s *Session) Today() calendar.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Today()
	return s.last
}

func (s *Session) SwitchView(mode model.ViewMode) (calendar.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.view.SwitchView(mode); err != nil {
		return s.last, err
	}
	return s.last, nil
}

// LoadEvents implements refresh.Target.
func (s *Session) LoadEvents(events []model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.LoadEvents(events)
}

// Events returns a copy of the whole snapshot.
func (s *Session) Events() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Events()
}
