// Package reconcile keeps tasks and the remote calendar in agreement.
// Reconciliation is bidirectional and non-destructive: local dated
// tasks are pushed out as events, remote events nobody knows about are
// imported as tasks, and nothing remote is ever deleted.
package reconcile

import (
	"time"

	"github.com/eduplay1216-alt/myjarvis/internal/calendar"
	"github.com/eduplay1216-alt/myjarvis/internal/store"
)

// Window bounds for one pass, relative to now.
const (
	windowPast   = 180 * 24 * time.Hour
	windowFuture = 365 * 24 * time.Hour
)

const defaultEventMinutes = 60

// Link records one task-to-event mapping established during a pass.
type Link struct {
	TaskID  int64  `json:"task_id"`
	EventID string `json:"event_id"`
}

// Result summarizes one reconciliation pass. Failed counts per-item
// errors that did not stop the pass. Links and NewTasks carry the full
// diff the pass applied: every link recorded and every task imported
// from an orphan remote event.
type Result struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Imported int `json:"imported"`
	Failed   int `json:"failed"`

	Links    []Link        `json:"links"`
	NewTasks []*store.Task `json:"new_tasks"`
}

// window returns the reconciliation time range for a pass.
func window(now time.Time) (from, to time.Time) {
	return now.Add(-windowPast), now.Add(windowFuture)
}

// inWindow reports whether a task's due time falls inside the range.
func inWindow(t *store.Task, from, to time.Time) bool {
	if t.DueAt == nil {
		return false
	}
	return !t.DueAt.Before(from) && t.DueAt.Before(to)
}

// desiredEvent is the calendar event a task should be represented by.
func desiredEvent(t *store.Task) calendar.Event {
	minutes := defaultEventMinutes
	if t.Duration != nil && *t.Duration > 0 {
		minutes = *t.Duration
	}
	return calendar.Event{
		ID:      t.CalendarEventID,
		Summary: t.Description,
		Start:   t.DueAt.UTC(),
		End:     t.DueAt.UTC().Add(time.Duration(minutes) * time.Minute),
	}
}

// eventMatches reports whether the remote event already reflects the
// task, making an update unnecessary.
func eventMatches(ev calendar.Event, want calendar.Event) bool {
	return ev.Summary == want.Summary &&
		ev.Start.Equal(want.Start) &&
		ev.End.Equal(want.End)
}

// importedTask is the local task created for an orphan remote event.
func importedTask(owner string, ev calendar.Event) *store.Task {
	due := ev.Start.UTC()
	minutes := int(ev.End.Sub(ev.Start).Minutes())
	if minutes <= 0 {
		minutes = defaultEventMinutes
	}
	return &store.Task{
		Owner:           owner,
		Description:     ev.Summary,
		DueAt:           &due,
		Duration:        &minutes,
		CalendarEventID: ev.ID,
	}
}
