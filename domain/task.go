package domain

import "time"

// Task statuses as stored in the tasks table.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Task priorities recognised by the admin board.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Task represents a single item on the admin board.
type Task struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	Priority   string    `json:"priority"`
	CreatedBy  string    `json:"createdBy"`
	AssignedTo string    `json:"assignedTo,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TaskUpdate carries a partial update for a task. Nil fields are untouched.
type TaskUpdate struct {
	Title      *string
	Status     *string
	Priority   *string
	AssignedTo *string
}

// Subtask is a checklist item owned by exactly one task. It is destroyed
// together with its task.
type Subtask struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"taskId"`
	Title      string    `json:"title"`
	Done       bool      `json:"done"`
	AssignedTo string    `json:"assignedTo,omitempty"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Progress is the derived completion state over a task's subtasks. It is
// recomputed on every read; nothing stores these counters.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// ProgressOf counts completed subtasks in the given slice.
func ProgressOf(subs []Subtask) Progress {
	p := Progress{Total: len(subs)}
	for _, s := range subs {
		if s.Done {
			p.Done++
		}
	}
	return p
}
