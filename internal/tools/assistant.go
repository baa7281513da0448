package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eduplay1216-alt/myjarvis/internal/calendar"
	"github.com/eduplay1216-alt/myjarvis/internal/logging"
	"github.com/eduplay1216-alt/myjarvis/internal/store"
)

// Deps carries the dependencies the assistant toolset needs. Calendar
// may be nil, in which case calendar tools report the integration as
// unconfigured and scheduling falls back to the current time.
type Deps struct {
	Store    *store.Store
	Calendar calendar.Service
	Location *time.Location

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) location() *time.Location {
	if d.Location != nil {
		return d.Location
	}
	return time.UTC
}

// RegisterAssistantTools registers the full toolset on the registry.
func RegisterAssistantTools(r *Registry, deps *Deps) {
	r.Register(addTransactionTool(deps))
	r.Register(getFinancialSummaryTool(deps))
	r.Register(addTaskTool(deps))
	r.Register(getTasksTool(deps))
	r.Register(updateTaskTool(deps))
	r.Register(deleteTaskTool(deps))
	r.Register(batchUpdateTasksTool(deps))
	r.Register(listCalendarEventsTool(deps))
	r.Register(addCalendarEventTool(deps))
	r.Register(updateCalendarEventTool(deps))
	r.Register(deleteCalendarEventTool(deps))
}

func addTransactionTool(deps *Deps) Tool {
	return Tool{
		Decl: gemFunc("addTransaction",
			"Records a financial transaction (income or expense). Amounts are normalized: expenses are stored negative.",
			&schemaObj{
				props: map[string]*schemaProp{
					"description": {typ: "string", desc: "What the transaction was for"},
					"amount":      {typ: "number", desc: "Transaction amount; sign is normalized by type"},
					"type":        {typ: "string", desc: "Transaction type", enum: []string{store.TypeIncome, store.TypeExpense}},
				},
				required: []string{"description", "amount", "type"},
			}),
		Handler: func(ctx context.Context, owner string, args map[string]any) Result {
			desc, _ := argString(args, "description")
			amount, ok := argFloat(args, "amount")
			if !ok {
				return Fail("amount must be a number")
			}
			typ, _ := argString(args, "type")
			if typ != store.TypeIncome && typ != store.TypeExpense {
				return Fail("type must be %q or %q", store.TypeIncome, store.TypeExpense)
			}

			tx := &store.Transaction{Owner: owner, Description: desc, Amount: amount, Type: typ}
			if err := deps.Store.AddTransaction(tx); err != nil {
				return storeFail(err)
			}
			return OK(map[string]any{"transaction": tx})
		},
	}
}

func getFinancialSummaryTool(deps *Deps) Tool {
	return Tool{
		Decl: gemFunc("getFinancialSummary",
			"Returns total income, total expenses and current balance.", nil),
		Handler: func(ctx context.Context, owner string, args map[string]any) Result {
			sum, err := deps.Store.GetSummary(owner)
			if err != nil {
				return storeFail(err)
			}
			return OK(map[string]any{"summary": sum})
		},
	}
}

func addTaskTool(deps *Deps) Tool {
	return Tool{
		Decl: gemFunc("addTask",
			"Creates a task. If due_at is omitted the task is scheduled into the next free calendar slot, with a duration estimated from the description.",
			&schemaObj{
				props: map[string]*schemaProp{
					"description": {typ: "string", desc: "What needs to be done"},
					"due_at":      {typ: "string", desc: "Due date/time in RFC 3339; omit to auto-schedule"},
					"duration":    {typ: "number", desc: "Expected duration in minutes"},
					"schedule":    {typ: "boolean", desc: "Set false to keep the task undated when due_at is omitted"},
				},
				required: []string{"description"},
			}),
		Handler: func(ctx context.Context, owner string, args map[string]any) Result {
			desc, _ := argString(args, "description")

			var durPtr *int
			if d, ok := argInt64(args, "duration"); ok && d > 0 {
				dd := int(d)
				durPtr = &dd
			}

			task := &store.Task{Owner: owner, Description: desc, Duration: durPtr}

			if due, ok := argTime(args, "due_at", deps.location()); ok {
				due = due.UTC()
				task.DueAt = &due
			} else if sched, ok := argBool(args, "schedule"); !ok || sched {
				minutes := defaultDurationMin
				if durPtr != nil {
					minutes = *durPtr
				} else {
					minutes = estimateDuration(desc)
					task.Duration = &minutes
				}
				slot := nextFreeSlot(ctx, deps.Calendar, deps.now(), time.Duration(minutes)*time.Minute).UTC()
				task.DueAt = &slot
				logging.Info("tools", "auto-scheduled %q at %s (%d min)", logging.Truncate(desc, 60), slot.Format(time.RFC3339), minutes)
			}

			if err := deps.Store.AddTask(task); err != nil {
				return storeFail(err)
			}
			return OK(map[string]any{"task": task})
		},
	}
}

func getTasksTool(deps *Deps) Tool {
	return Tool{
		Decl: gemFunc("getTasks", "Lists all tasks, dated ones first in due order.", nil),
		Handler: func(ctx context.Context, owner string, args map[string]any) Result {
			tasks, err := deps.Store.GetTasks(owner)
			if err != nil {
				return storeFail(err)
			}
			if tasks == nil {
				tasks = []*store.Task{}
			}
			return OK(map[string]any{"tasks": tasks})
		},
	}
}

func updateTaskTool(deps *Deps) Tool {
	return Tool{
		Decl: gemFunc("updateTask",
			"Updates fields of one task. Only the provided fields change.",
			&schemaObj{
				props: map[string]*schemaProp{
					"task_id":      {typ: "number", desc: "Task ID"},
					"description":  {typ: "string", desc: "New description"},
					"due_at":       {typ: "string", desc: "New due date/time in RFC 3339"},
					"duration":     {typ: "number", desc: "New duration in minutes"},
					"is_completed": {typ: "boolean", desc: "Completion state"},
				},
				required: []string{"task_id"},
			}),
		Handler: func(ctx context.Context, owner string, args map[string]any) Result {
			id, ok := argInt64(args, "task_id")
			if !ok {
				return Fail("task_id must be an integer")
			}
			patch, err := patchFromArgs(args, deps.location())
			if err != nil {
				return Fail("%v", err)
			}
			if err := deps.Store.UpdateTask(owner, id, patch); err != nil {
				return storeFail(err)
			}
			task, err := deps.Store.GetTask(owner, id)
			if err != nil {
				return storeFail(err)
			}
			return OK(map[string]any{"task": task})
		},
	}
}

func deleteTaskTool(deps *Deps) Tool {
	return Tool{
		Decl: gemFunc("deleteTask", "Deletes one task.",
			&schemaObj{
				props:    map[string]*schemaProp{"task_id": {typ: "number", desc: "Task ID"}},
				required: []string{"task_id"},
			}),
		Handler: func(ctx context.Context, owner string, args map[string]any) Result {
			id, ok := argInt64(args, "task_id")
			if !ok {
				return Fail("task_id must be an integer")
			}
			if err := deps.Store.DeleteTask(owner, id); err != nil {
				return storeFail(err)
			}
			return OK(map[string]any{"deleted": id})
		},
	}
}

func batchUpdateTasksTool(deps *Deps) Tool {
	return Tool{
		Decl: gemFunc("batchUpdateTasks",
			"Deletes and adds many tasks in one call. The delete half and the add half run independently; the call succeeds only if both halves fully succeed.",
			&schemaObj{
				props: map[string]*schemaProp{
					"tasks_to_delete": {typ: "array", desc: "IDs of tasks to delete",
						items: &schemaObj{scalar: "number"}},
					"tasks_to_add": {typ: "array", desc: "Tasks to create",
						items: &schemaObj{
							props: map[string]*schemaProp{
								"description": {typ: "string", desc: "What needs to be done"},
								"due_at":      {typ: "string", desc: "Due date/time in RFC 3339"},
								"duration":    {typ: "number", desc: "Duration in minutes"},
							},
							required: []string{"description"},
						}},
				},
			}),
		Handler: func(ctx context.Context, owner string, args map[string]any) Result {
			var deleteErr, addErr string

			deleted := int64(0)
			if raw, ok := args["tasks_to_delete"].([]any); ok && len(raw) > 0 {
				ids := make([]int64, 0, len(raw))
				for _, item := range raw {
					if f, ok := item.(float64); ok && f == float64(int64(f)) {
						ids = append(ids, int64(f))
					} else {
						deleteErr = "malformed task id in tasks_to_delete"
					}
				}
				n, err := deps.Store.DeleteTasks(owner, ids)
				deleted = n
				if err != nil {
					deleteErr = err.Error()
				} else if n != int64(len(ids)) && deleteErr == "" {
					deleteErr = fmt.Sprintf("%d of %d tasks not found", int64(len(ids))-n, len(ids))
				}
			}

			added := 0
			if raw, ok := args["tasks_to_add"].([]any); ok && len(raw) > 0 {
				var batch []*store.Task
				for _, item := range raw {
					entry, ok := item.(map[string]any)
					if !ok {
						addErr = "malformed entry in tasks_to_add"
						break
					}
					desc, ok := argString(entry, "description")
					if !ok {
						addErr = "entry in tasks_to_add missing description"
						break
					}
					task := &store.Task{Description: desc}
					if due, ok := argTime(entry, "due_at", deps.location()); ok {
						due = due.UTC()
						task.DueAt = &due
					}
					if d, ok := argInt64(entry, "duration"); ok && d > 0 {
						dd := int(d)
						task.Duration = &dd
					}
					batch = append(batch, task)
				}
				if addErr == "" {
					if err := deps.Store.AddTasks(owner, batch); err != nil {
						addErr = err.Error()
					} else {
						added = len(batch)
					}
				}
			}

			if deleteErr != "" || addErr != "" {
				var parts []string
				if deleteErr != "" {
					parts = append(parts, "delete: "+deleteErr)
				}
				if addErr != "" {
					parts = append(parts, "add: "+addErr)
				}
				r := Fail("%s", strings.Join(parts, "; "))
				r["deleted"] = deleted
				r["added"] = added
				return r
			}
			return OK(map[string]any{"deleted": deleted, "added": added})
		},
	}
}

func listCalendarEventsTool(deps *Deps) Tool {
	return Tool{
		Decl: gemFunc("listCalendarEvents",
			"Lists upcoming calendar events. Defaults to the next 7 days.",
			&schemaObj{
				props: map[string]*schemaProp{
					"days": {typ: "number", desc: "How many days ahead to list"},
				},
			}),
		Handler: func(ctx context.Context, owner string, args map[string]any) Result {
			if deps.Calendar == nil {
				return Fail("calendar integration is not configured")
			}
			days := int64(7)
			if d, ok := argInt64(args, "days"); ok && d > 0 {
				days = d
			}
			from := deps.now()
			to := from.Add(time.Duration(days) * 24 * time.Hour)
			events, err := deps.Calendar.ListEvents(ctx, from, to)
			if err != nil {
				return Fail("list events: %v", err)
			}
			if events == nil {
				events = []calendar.Event{}
			}
			return OK(map[string]any{"events": events})
		},
	}
}

func addCalendarEventTool(deps *Deps) Tool {
	return Tool{
		Decl: gemFunc("addCalendarEvent",
			"Creates a calendar event directly, without a linked task.",
			&schemaObj{
				props: map[string]*schemaProp{
					"title":       {typ: "string", desc: "Event title"},
					"start":       {typ: "string", desc: "Start time in RFC 3339"},
					"duration":    {typ: "number", desc: "Duration in minutes, default 60"},
					"description": {typ: "string", desc: "Event body text"},
				},
				required: []string{"title", "start"},
			}),
		Handler: func(ctx context.Context, owner string, args map[string]any) Result {
			if deps.Calendar == nil {
				return Fail("calendar integration is not configured")
			}
			title, _ := argString(args, "title")
			start, ok := argTime(args, "start", deps.location())
			if !ok {
				return Fail("start must be a valid timestamp")
			}
			desc, _ := argString(args, "description")

			created, err := deps.Calendar.CreateEvent(ctx, calendar.Event{
				Summary:     title,
				Description: desc,
				Start:       start,
				End:         start.Add(argDuration(args)),
			})
			if err != nil {
				return Fail("create event: %v", err)
			}
			return OK(map[string]any{"event": created})
		},
	}
}

// argDuration reads the optional duration argument in minutes.
func argDuration(args map[string]any) time.Duration {
	minutes := int64(defaultDurationMin)
	if d, ok := argInt64(args, "duration"); ok && d > 0 {
		minutes = d
	}
	return time.Duration(minutes) * time.Minute
}

func updateCalendarEventTool(deps *Deps) Tool {
	return Tool{
		Decl: gemFunc("updateCalendarEvent",
			"Rewrites an existing calendar event.",
			&schemaObj{
				props: map[string]*schemaProp{
					"event_id":    {typ: "string", desc: "Remote event ID"},
					"title":       {typ: "string", desc: "Event title"},
					"start":       {typ: "string", desc: "Start time in RFC 3339"},
					"duration":    {typ: "number", desc: "Duration in minutes, default 60"},
					"description": {typ: "string", desc: "Event body text"},
				},
				required: []string{"event_id", "title", "start"},
			}),
		Handler: func(ctx context.Context, owner string, args map[string]any) Result {
			if deps.Calendar == nil {
				return Fail("calendar integration is not configured")
			}
			id, _ := argString(args, "event_id")
			title, _ := argString(args, "title")
			start, ok := argTime(args, "start", deps.location())
			if !ok {
				return Fail("start must be a valid timestamp")
			}
			desc, _ := argString(args, "description")

			updated, err := deps.Calendar.UpdateEvent(ctx, calendar.Event{
				ID:          id,
				Summary:     title,
				Description: desc,
				Start:       start,
				End:         start.Add(argDuration(args)),
			})
			if err != nil {
				return Fail("update event: %v", err)
			}
			return OK(map[string]any{"event": updated})
		},
	}
}

func deleteCalendarEventTool(deps *Deps) Tool {
	return Tool{
		Decl: gemFunc("deleteCalendarEvent",
			"Deletes a calendar event. Any task linked to it is unlinked, not deleted.",
			&schemaObj{
				props:    map[string]*schemaProp{"event_id": {typ: "string", desc: "Remote event ID"}},
				required: []string{"event_id"},
			}),
		Handler: func(ctx context.Context, owner string, args map[string]any) Result {
			if deps.Calendar == nil {
				return Fail("calendar integration is not configured")
			}
			id, _ := argString(args, "event_id")
			if err := deps.Calendar.DeleteEvent(ctx, id); err != nil {
				return Fail("delete event: %v", err)
			}
			if err := deps.Store.UnlinkTasksByEvent(owner, id); err != nil {
				logging.Warn("tools", "unlink tasks for event %s: %v", id, err)
			}
			return OK(map[string]any{"deleted": id})
		},
	}
}

// patchFromArgs builds a TaskPatch from the optional update fields.
func patchFromArgs(args map[string]any, loc *time.Location) (store.TaskPatch, error) {
	var patch store.TaskPatch
	if desc, ok := argString(args, "description"); ok {
		patch.Description = &desc
	}
	if raw, present := args["due_at"]; present {
		s, ok := raw.(string)
		if !ok {
			return patch, fmt.Errorf("due_at must be a string timestamp")
		}
		t, ok := parseTime(s, loc)
		if !ok {
			return patch, fmt.Errorf("due_at %q is not a valid timestamp", s)
		}
		t = t.UTC()
		patch.DueAt = &t
	}
	if d, ok := argInt64(args, "duration"); ok {
		dd := int(d)
		patch.Duration = &dd
	}
	if b, ok := argBool(args, "is_completed"); ok {
		patch.IsCompleted = &b
	}
	return patch, nil
}

// storeFail maps store errors into the envelope, keeping schema
// mismatches distinguishable for the API layer.
func storeFail(err error) Result {
	if ce, ok := store.AsConfigError(err); ok {
		r := Fail("%v", ce)
		r["config_error"] = true
		return r
	}
	return Fail("%v", err)
}
