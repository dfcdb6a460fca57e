package calendar

import (
	"errors"
	"time"

	"calview/internal/datemath"
	appLog "calview/internal/log"
	"calview/internal/model"
)

// ViewModeKey is the persistence key for the selected view mode. The
// version suffix changes whenever the stored value's format does.
const ViewModeKey = "calview.view.v1"

// ErrInvalidViewMode is returned by SwitchView for anything other than
// day, week or month. The view is left untouched.
var ErrInvalidViewMode = errors.New("calendar: invalid view mode")

// Store persists small string values across process restarts.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Frame is everything a render sink needs after a state change.
type Frame struct {
	Mode   model.ViewMode
	Anchor time.Time
	Label  string
	Cells  []DateCell

	// Events is the day/week list presentation: every cell's events
	// concatenated in cell order. Nil in month mode.
	Events []model.Event
}

// Sink receives a Frame after every state change.
type Sink interface {
	Render(Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Frame)

func (f SinkFunc) Render(fr Frame) { f(fr) }

// View is the navigation state machine: view mode, anchor date and the
// current event snapshot. It is not safe for concurrent use; every method
// runs synchronously and re-renders before returning.
//
// A snapshot loaded after the user navigated is rendered against the view
// as it is now, not as it was when the fetch started. The displayed range
// is never adjusted to match the fetch.
type View struct {
	mode   model.ViewMode
	anchor time.Time
	events []model.Event

	store       Store
	sink        Sink
	now         func() time.Time
	loc         *time.Location
	defaultMode model.ViewMode
}

type Option func(*View)

// WithClock overrides time.Now, used for "today" and the Today flag.
func WithClock(now func() time.Time) Option {
	return func(v *View) { v.now = now }
}

// WithLocation sets the zone whose calendar days are displayed.
func WithLocation(loc *time.Location) Option {
	return func(v *View) {
		if loc != nil {
			v.loc = loc
		}
	}
}

// WithDefaultMode sets the mode used when nothing valid is stored.
func WithDefaultMode(m model.ViewMode) Option {
	return func(v *View) {
		if m.Valid() {
			v.defaultMode = m
		}
	}
}

func WithSink(s Sink) Option {
	return func(v *View) { v.sink = s }
}

// New builds a View anchored on today with an empty snapshot. The view mode
// is read once from store; a missing, unreadable or invalid value yields the
// default mode. store may be nil, in which case nothing is persisted.
func New(store Store, opts ...Option) *View {
	v := &View{
		store:       store,
		now:         time.Now,
		loc:         time.Local,
		defaultMode: model.DefaultViewMode,
	}
	for _, opt := range opts {
		opt(v)
	}

	v.mode = v.loadMode()
	v.anchor = v.today()
	return v
}

func (v *View) loadMode() model.ViewMode {
	if v.store == nil {
		return v.defaultMode
	}
	raw, ok, err := v.store.Get(ViewModeKey)
	if err != nil {
		appLog.Error("view mode load failed; using default", err, "default", v.defaultMode)
		return v.defaultMode
	}
	if !ok {
		return v.defaultMode
	}
	m, valid := model.ParseViewMode(raw)
	if !valid {
		appLog.Warn("stored view mode invalid; using default", "stored", raw, "default", v.defaultMode)
		return v.defaultMode
	}
	return m
}

func (v *View) saveMode() {
	if v.store == nil {
		return
	}
	if err := v.store.Set(ViewModeKey, string(v.mode)); err != nil {
		appLog.Error("view mode save failed", err, "mode", v.mode)
	}
}

func (v *View) today() time.Time {
	return datemath.Midnight(v.now().In(v.loc))
}

func (v *View) Mode() model.ViewMode { return v.mode }

func (v *View) Anchor() time.Time { return v.anchor }

func (v *View) Location() *time.Location { return v.loc }

// Events returns a copy of the current snapshot in source order.
func (v *View) Events() []model.Event {
	out := make([]model.Event, len(v.events))
	copy(out, v.events)
	return out
}

// Frame computes the current frame without notifying the sink.
func (v *View) Frame() Frame {
	cells := Resolve(v.mode, v.anchor, v.events, v.now())
	f := Frame{
		Mode:   v.mode,
		Anchor: v.anchor,
		Label:  RangeLabel(v.mode, v.anchor),
		Cells:  cells,
	}
	if v.mode != model.ViewMonth {
		f.Events = make([]model.Event, 0)
		for _, c := range cells {
			f.Events = append(f.Events, c.Events...)
		}
	}
	return f
}

func (v *View) render() {
	if v.sink != nil {
		v.sink.Render(v.Frame())
	}
}

// SwitchView selects mode, persists it and re-renders with the anchor
// unchanged. Invalid modes return ErrInvalidViewMode and change nothing.
func (v *View) SwitchView(mode model.ViewMode) error {
	if !mode.Valid() {
		return ErrInvalidViewMode
	}
	v.mode = mode
	v.saveMode()
	v.render()
	return nil
}

// Advance moves the anchor one period forward (direction > 0) or back
// (direction < 0): a day, a week, or a calendar month. Month steps clamp
// the day of month to the target month's length. Zero is a no-op.
func (v *View) Advance(direction int) {
	switch {
	case direction > 0:
		direction = 1
	case direction < 0:
		direction = -1
	default:
		return
	}

	switch v.mode {
	case model.ViewDay:
		v.anchor = datemath.AddDays(v.anchor, direction)
	case model.ViewMonth:
		v.anchor = datemath.AddMonths(v.anchor, direction)
	default:
		v.anchor = datemath.AddDays(v.anchor, 7*direction)
	}
	v.render()
}

func (v *View) Next() { v.Advance(1) }

func (v *View) Previous() { v.Advance(-1) }

// Today moves the anchor to the current date; the mode is unchanged.
func (v *View) Today() {
	v.anchor = v.today()
	v.render()
}

// LoadEvents replaces the snapshot wholesale and re-renders the current
// range. The slice is copied; later changes by the caller are not seen.
func (v *View) LoadEvents(events []model.Event) {
	v.events = make([]model.Event, len(events))
	copy(v.events, events)
	v.render()
}
