package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AddTask inserts a task and fills in its assigned ID and creation time.
func (s *Store) AddTask(t *Task) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO tasks (owner, description, due_at, duration, is_completed, calendar_event_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Owner, t.Description, nullTime(t.DueAt), nullInt(t.Duration), t.IsCompleted, nullString(t.CalendarEventID), now,
	)
	if err != nil {
		return classifyErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	t.CreatedAt = now
	return nil
}

// AddTasks inserts a batch of tasks for one owner, filling in IDs.
// The insert is transactional: either all tasks land or none do.
func (s *Store) AddTasks(owner string, tasks []*Task) error {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, t := range tasks {
		t.Owner = owner
		res, err := tx.Exec(
			`INSERT INTO tasks (owner, description, due_at, duration, is_completed, calendar_event_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.Owner, t.Description, nullTime(t.DueAt), nullInt(t.Duration), t.IsCompleted, nullString(t.CalendarEventID), now,
		)
		if err != nil {
			return classifyErr(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		t.ID = id
		t.CreatedAt = now
	}
	return tx.Commit()
}

// GetTask returns a single task by ID, scoped to owner.
func (s *Store) GetTask(owner string, id int64) (*Task, error) {
	row := s.db.QueryRow(
		`SELECT id, owner, description, due_at, duration, is_completed, calendar_event_id, completed_at, created_at
		 FROM tasks WHERE owner = ? AND id = ?`, owner, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyErr(err)
	}
	return t, nil
}

// GetTasks returns all of an owner's tasks, dated tasks first in due
// order, then undated tasks newest-first.
func (s *Store) GetTasks(owner string) ([]*Task, error) {
	rows, err := s.db.Query(
		`SELECT id, owner, description, due_at, duration, is_completed, calendar_event_id, completed_at, created_at
		 FROM tasks WHERE owner = ?
		 ORDER BY due_at IS NULL, due_at ASC, created_at DESC`, owner)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask applies the non-nil fields of patch to a task.
func (s *Store) UpdateTask(owner string, id int64, patch TaskPatch) error {
	var sets []string
	var args []any

	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.DueAt != nil {
		sets = append(sets, "due_at = ?")
		args = append(args, patch.DueAt.UTC())
	}
	if patch.Duration != nil {
		sets = append(sets, "duration = ?")
		args = append(args, *patch.Duration)
	}
	if patch.IsCompleted != nil {
		sets = append(sets, "is_completed = ?")
		args = append(args, *patch.IsCompleted)
		if *patch.IsCompleted {
			sets = append(sets, "completed_at = ?")
			args = append(args, time.Now().UTC())
		} else {
			sets = append(sets, "completed_at = NULL")
		}
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, owner, id)
	res, err := s.db.Exec(
		fmt.Sprintf("UPDATE tasks SET %s WHERE owner = ? AND id = ?", strings.Join(sets, ", ")), args...)
	if err != nil {
		return classifyErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTaskEventRef records the remote calendar event linked to a task.
// Called only after the remote create has been confirmed.
func (s *Store) SetTaskEventRef(owner string, id int64, eventID string) error {
	res, err := s.db.Exec(
		`UPDATE tasks SET calendar_event_id = ? WHERE owner = ? AND id = ?`,
		nullString(eventID), owner, id)
	if err != nil {
		return classifyErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UnlinkTasksByEvent clears the calendar link on any task pointing at
// the given remote event. Used when the event is deleted remotely so
// the task survives unlinked.
func (s *Store) UnlinkTasksByEvent(owner, eventID string) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET calendar_event_id = NULL WHERE owner = ? AND calendar_event_id = ?`,
		owner, eventID)
	return classifyErr(err)
}

// DeleteTask removes a single task.
func (s *Store) DeleteTask(owner string, id int64) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return classifyErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTasks removes a set of tasks by ID and returns how many rows
// were actually deleted. Callers compare the count against len(ids) to
// detect partially-missing sets.
func (s *Store) DeleteTasks(owner string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+1)
	args = append(args, owner)
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := s.db.Exec(
		fmt.Sprintf("DELETE FROM tasks WHERE owner = ? AND id IN (%s)", placeholders), args...)
	if err != nil {
		return 0, classifyErr(err)
	}
	return res.RowsAffected()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (*Task, error) {
	var t Task
	var due, completed sql.NullTime
	var duration sql.NullInt64
	var eventID sql.NullString

	err := sc.Scan(&t.ID, &t.Owner, &t.Description, &due, &duration, &t.IsCompleted, &eventID, &completed, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if due.Valid {
		d := due.Time.UTC()
		t.DueAt = &d
	}
	if duration.Valid {
		d := int(duration.Int64)
		t.Duration = &d
	}
	if eventID.Valid {
		t.CalendarEventID = eventID.String
	}
	if completed.Valid {
		c := completed.Time.UTC()
		t.CompletedAt = &c
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
