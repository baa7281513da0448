package store

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNotFound is returned when a row does not exist for the given owner.
var ErrNotFound = errors.New("not found")

// ConfigError indicates the database schema does not match what the
// application expects (missing table or column). It carries remediation
// text so the UI can show a persistent configuration banner instead of
// treating this as a conversational error.
type ConfigError struct {
	Table       string
	Column      string
	Remediation string
}

func (e *ConfigError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema mismatch: column %q missing from table %q (%s)", e.Column, e.Table, e.Remediation)
	}
	return fmt.Sprintf("schema mismatch: table %q missing (%s)", e.Table, e.Remediation)
}

var (
	noTableRe  = regexp.MustCompile(`no such table:?\s+(\w+)`)
	noColumnRe = regexp.MustCompile(`(?:no such column:?\s+|has no column named\s+)(\w+)`)
)

// remediations maps known missing columns to the SQL that repairs them,
// mirroring the migration history of the tasks table.
var remediations = map[string]string{
	"due_at":            "run: ALTER TABLE tasks ADD COLUMN due_at DATETIME",
	"duration":          "run: ALTER TABLE tasks ADD COLUMN duration INTEGER",
	"calendar_event_id": "run: ALTER TABLE tasks ADD COLUMN calendar_event_id TEXT",
	"completed_at":      "run: ALTER TABLE tasks ADD COLUMN completed_at DATETIME",
}

// classifyErr wraps raw SQLite errors. Schema mismatches become
// *ConfigError so callers can distinguish deployment problems from
// ordinary store failures; everything else passes through unchanged.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()

	if m := noTableRe.FindStringSubmatch(msg); m != nil {
		return &ConfigError{
			Table:       m[1],
			Remediation: "recreate the database or re-run migrations",
		}
	}

	if m := noColumnRe.FindStringSubmatch(msg); m != nil {
		col := m[1]
		remedy, ok := remediations[col]
		if !ok {
			remedy = "re-run migrations"
		}
		table := ""
		if strings.Contains(msg, "tasks") || remediations[col] != "" {
			table = "tasks"
		}
		return &ConfigError{Table: table, Column: col, Remediation: remedy}
	}

	return err
}

// AsConfigError reports whether err is (or wraps) a schema mismatch.
func AsConfigError(err error) (*ConfigError, bool) {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
