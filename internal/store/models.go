package store

import "time"

// Transaction types. Amount sign always matches the type: income is
// stored positive, expenses negative.
const (
	TypeIncome  = "receita"
	TypeExpense = "despesa"
)

// Message roles in the conversation log.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Task is a to-do item. A task with no DueAt is undated and never
// participates in calendar sync. CalendarEventID links the task to at
// most one remote calendar event; empty means unlinked.
type Task struct {
	ID              int64      `json:"id"`
	Owner           string     `json:"-"`
	Description     string     `json:"description"`
	DueAt           *time.Time `json:"due_at,omitempty"`
	Duration        *int       `json:"duration,omitempty"` // minutes
	IsCompleted     bool       `json:"is_completed"`
	CalendarEventID string     `json:"calendar_event_id,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Transaction is a financial entry. Positive amounts are income,
// negative amounts are expenses.
type Transaction struct {
	ID          int64     `json:"id"`
	Owner       string    `json:"-"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Type        string    `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message is one entry in the append-only conversation log.
type Message struct {
	ID        int64     `json:"id"`
	Owner     string    `json:"-"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskPatch holds optional field updates for a task. Nil fields are
// left unchanged.
type TaskPatch struct {
	Description *string
	DueAt       *time.Time
	Duration    *int
	IsCompleted *bool
}

// Summary aggregates a user's transactions.
type Summary struct {
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"` // absolute value
	Balance  float64 `json:"balance"`
}
