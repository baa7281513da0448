package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eduplay1216-alt/myjarvis/internal/calendar"
	"github.com/eduplay1216-alt/myjarvis/internal/logging"
	"github.com/eduplay1216-alt/myjarvis/internal/store"
)

// Service runs reconciliation passes. Passes for the same user are
// serialized; a pass that cannot list the remote calendar fails whole,
// everything after that is per-item.
type Service struct {
	store *store.Store
	cal   calendar.Service
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a reconciliation service.
func NewService(st *store.Store, cal calendar.Service) *Service {
	return &Service{
		store: st,
		cal:   cal,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) userLock(owner string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[owner]
	if !ok {
		l = &sync.Mutex{}
		s.locks[owner] = l
	}
	return l
}

// Sync runs one reconciliation pass for the owner.
func (s *Service) Sync(ctx context.Context, owner string) (*Result, error) {
	if s.cal == nil {
		return nil, fmt.Errorf("calendar integration is not configured")
	}

	lock := s.userLock(owner)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	from, to := window(now)

	events, err := s.cal.ListEvents(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list remote events: %w", err)
	}
	tasks, err := s.store.GetTasks(owner)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	byID := make(map[string]calendar.Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	// Every event any task points at is spoken for, in or out of the
	// completed state, so it is never re-imported.
	linked := make(map[string]bool)
	for _, t := range tasks {
		if t.CalendarEventID != "" {
			linked[t.CalendarEventID] = true
		}
	}

	var res Result

	for _, task := range tasks {
		if task.IsCompleted || !inWindow(task, from, to) {
			continue
		}
		want := desiredEvent(task)

		if task.CalendarEventID != "" {
			remote, present := byID[task.CalendarEventID]
			if !present {
				// The linked event vanished remotely. Recreate it and
				// relink rather than losing the appointment.
				if err := s.createFor(ctx, owner, task, want, &res); err != nil {
					res.Failed++
					logging.Warn("reconcile", "recreate event for task %d: %v", task.ID, err)
				}
				continue
			}
			if eventMatches(remote, want) {
				continue
			}
			if _, err := s.cal.UpdateEvent(ctx, want); err != nil {
				res.Failed++
				logging.Warn("reconcile", "update event %s for task %d: %v", task.CalendarEventID, task.ID, err)
				continue
			}
			res.Updated++
			continue
		}

		if err := s.createFor(ctx, owner, task, want, &res); err != nil {
			res.Failed++
			logging.Warn("reconcile", "create event for task %d: %v", task.ID, err)
		}
	}

	// Orphan remote events become local tasks. Remote state is never
	// deleted from here.
	for _, ev := range events {
		if linked[ev.ID] || ev.Status == "cancelled" || ev.Summary == "" {
			continue
		}
		t := importedTask(owner, ev)
		if err := s.store.AddTask(t); err != nil {
			res.Failed++
			logging.Warn("reconcile", "import event %s: %v", ev.ID, err)
			continue
		}
		res.Imported++
		res.NewTasks = append(res.NewTasks, t)
	}

	logging.Info("reconcile", "pass for %s: created=%d updated=%d imported=%d failed=%d",
		owner, res.Created, res.Updated, res.Imported, res.Failed)
	return &res, nil
}

// createFor pushes a task out as a new event and records the link only
// after the remote create is confirmed.
func (s *Service) createFor(ctx context.Context, owner string, task *store.Task, want calendar.Event, res *Result) error {
	want.ID = ""
	created, err := s.cal.CreateEvent(ctx, want)
	if err != nil {
		return err
	}
	if err := s.store.SetTaskEventRef(owner, task.ID, created.ID); err != nil {
		return fmt.Errorf("record link to %s: %w", created.ID, err)
	}
	res.Created++
	res.Links = append(res.Links, Link{TaskID: task.ID, EventID: created.ID})
	return nil
}
