// Package render turns calendar frames into plain text for terminals and
// logs. Day and week frames print as agenda lists, month frames as a 6x7
// grid with per-day event counts.
package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"calview/internal/calendar"
	appLog "calview/internal/log"
	"calview/internal/model"
	"calview/internal/recurrence"
)

var weekdayHeader = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Text is a calendar.Sink writing each frame to an io.Writer.
type Text struct {
	mu    sync.Mutex
	w     io.Writer
	title cases.Caser
}

func NewText(w io.Writer) *Text {
	return &Text{w: w, title: cases.Title(language.English)}
}

// Render writes f; write errors are logged, never returned.
func (t *Text) Render(f calendar.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bw := bufio.NewWriter(t.w)
	t.write(bw, f)
	if err := bw.Flush(); err != nil {
		appLog.Error("text render failed", err, "mode", f.Mode)
	}
}

func (t *Text) write(w *bufio.Writer, f calendar.Frame) {
	fmt.Fprintln(w, f.Label)
	fmt.Fprintln(w, strings.Repeat("=", len([]rune(f.Label))))

	if f.Mode == model.ViewMonth {
		writeMonth(w, f.Cells)
		return
	}

	for _, c := range f.Cells {
		marker := ""
		if c.Today {
			marker = "  (today)"
		}
		fmt.Fprintf(w, "%s %s%s\n", c.Date.Format("Mon"), c.Date.Format("01-02"), marker)
		if len(c.Events) == 0 {
			fmt.Fprintln(w, "  no events")
			continue
		}
		for _, ev := range c.Events {
			fmt.Fprintln(w, "  "+t.eventLine(ev, c.Date.Location()))
		}
	}
}

func (t *Text) eventLine(ev model.Event, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(ev.Start.In(loc).Format("15:04"))
	if end := ev.DisplayEnd(); !end.Equal(ev.Start) {
		b.WriteString("-" + end.In(loc).Format("15:04"))
	}
	b.WriteString("  ")
	title := ev.Title
	if title == "" {
		title = "(untitled)"
	}
	b.WriteString(title)
	if ev.Location != "" {
		b.WriteString(" @ " + ev.Location)
	}
	if ev.Recurrence.Frequency != "" && ev.Recurrence.Frequency != model.FrequencyNone {
		b.WriteString(" [" + t.capitalize(recurrence.Describe(ev.Recurrence)) + "]")
	}
	return b.String()
}

// capitalize title-cases the first word only.
func (t *Text) capitalize(s string) string {
	i := strings.IndexAny(s, " ,")
	if i < 0 {
		return t.title.String(s)
	}
	return t.title.String(s[:i]) + s[i:]
}

// writeMonth prints the grid. Days outside the focus month are wrapped in
// parentheses, today is starred, and "+n" is the day's event count.
func writeMonth(w *bufio.Writer, cells []calendar.DateCell) {
	for _, h := range weekdayHeader {
		fmt.Fprintf(w, "%-7s", h)
	}
	fmt.Fprintln(w)

	for i, c := range cells {
		day := fmt.Sprintf("%2d", c.Date.Day())
		if !c.InFocusMonth {
			day = "(" + strings.TrimSpace(day) + ")"
		}
		if c.Today {
			day += "*"
		}
		if n := len(c.Events); n > 0 {
			day += fmt.Sprintf("+%d", n)
		}
		fmt.Fprintf(w, "%-7s", day)
		if i%7 == 6 {
			fmt.Fprintln(w)
		}
	}
}
