package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store defines the persistence operations the workflow engine needs. The
// hosted table storage implements it; tests use an in-memory fake.
type Store interface {
	GetTask(ctx context.Context, taskID string) (*Task, error)
	InsertTask(ctx context.Context, t Task) error
	UpdateTask(ctx context.Context, taskID string, upd TaskUpdate) error
	DeleteTask(ctx context.Context, taskID string) error
	ListTasks(ctx context.Context) ([]Task, error)

	ListSubtasks(ctx context.Context, taskID string) ([]Subtask, error)
	GetSubtask(ctx context.Context, taskID, subtaskID string) (*Subtask, error)
	InsertSubtask(ctx context.Context, s Subtask) error
	UpdateSubtask(ctx context.Context, taskID, subtaskID string, upd SubtaskUpdate) error
	DeleteSubtask(ctx context.Context, taskID, subtaskID string) error
}

// SubtaskUpdate carries a partial update for a subtask. Nil fields are
// untouched. Done is a blind set: the caller supplies the target state, the
// store never reads before writing.
type SubtaskUpdate struct {
	Title      *string
	Done       *bool
	AssignedTo *string
}

// Workflow validates task and subtask mutations and decides when a mutation
// produces an assignment notification. It holds no state of its own.
type Workflow struct{ st Store }

// NewWorkflow creates a workflow engine over the given store.
func NewWorkflow(st Store) Workflow { return Workflow{st: st} }

// CreateTask adds a task to the board. Title is required; status and
// priority fall back to pending/medium.
func (w Workflow) CreateTask(ctx context.Context, title, createdBy, priority string) (*Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if priority == "" {
		priority = PriorityMedium
	}
	now := time.Now().UTC()
	t := Task{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    StatusPending,
		Priority:  priority,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := w.st.InsertTask(ctx, t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask applies a partial update. When the update assigns the task to a
// user it also returns the notification request for that assignee; the caller
// dispatches it separately and its outcome never affects this result.
func (w Workflow) UpdateTask(ctx context.Context, taskID string, upd TaskUpdate) (*Task, *AssignmentNotification, error) {
	t, err := w.st.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if t == nil {
		return nil, nil, ErrTaskNotFound
	}
	if upd.AssignedTo != nil {
		cleared := normalizeAssignee(*upd.AssignedTo)
		upd.AssignedTo = &cleared
	}
	if err := w.st.UpdateTask(ctx, taskID, upd); err != nil {
		return nil, nil, err
	}
	t, err = w.st.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if t == nil {
		return nil, nil, ErrTaskNotFound
	}
	var n *AssignmentNotification
	if upd.AssignedTo != nil && *upd.AssignedTo != "" {
		n = &AssignmentNotification{
			Kind:       KindTask,
			AssigneeID: t.AssignedTo,
			Title:      t.Title,
			Identifier: t.ID,
			Priority:   t.Priority,
		}
	}
	return t, n, nil
}

// DeleteTask removes a task together with its subtasks. Deleting a task that
// is already gone is not an error.
func (w Workflow) DeleteTask(ctx context.Context, taskID string) error {
	subs, err := w.st.ListSubtasks(ctx, taskID)
	if err != nil {
		return err
	}
	for _, s := range subs {
		if err := w.st.DeleteSubtask(ctx, taskID, s.ID); err != nil {
			return err
		}
	}
	return w.st.DeleteTask(ctx, taskID)
}

// ListTasks returns every task on the board.
func (w Workflow) ListTasks(ctx context.Context) ([]Task, error) {
	return w.st.ListTasks(ctx)
}

// ListSubtasks returns the task's subtasks in board order.
func (w Workflow) ListSubtasks(ctx context.Context, taskID string) ([]Subtask, error) {
	return w.st.ListSubtasks(ctx, taskID)
}

// TaskProgress recomputes the completion counters for a task.
func (w Workflow) TaskProgress(ctx context.Context, taskID string) (Progress, error) {
	subs, err := w.st.ListSubtasks(ctx, taskID)
	if err != nil {
		return Progress{}, err
	}
	return ProgressOf(subs), nil
}

// AddSubtask appends a new, uncompleted, unassigned subtask to the task.
func (w Workflow) AddSubtask(ctx context.Context, taskID, title string) (*Subtask, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	t, err := w.st.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTaskNotFound
	}
	subs, err := w.st.ListSubtasks(ctx, taskID)
	if err != nil {
		return nil, err
	}
	position := 0
	for _, s := range subs {
		if s.Position >= position {
			position = s.Position + 1
		}
	}
	sub := Subtask{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Title:     title,
		Done:      false,
		Position:  position,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.st.InsertSubtask(ctx, sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ToggleSubtask sets the completion flag to the caller-supplied target state.
// The caller computes "not current state" before calling; two concurrent
// toggles from stale reads can lose an update, which the design accepts.
func (w Workflow) ToggleSubtask(ctx context.Context, taskID, subtaskID string, done bool) (*Subtask, error) {
	if err := w.st.UpdateSubtask(ctx, taskID, subtaskID, SubtaskUpdate{Done: &done}); err != nil {
		return nil, err
	}
	sub, err := w.st.GetSubtask(ctx, taskID, subtaskID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubtaskNotFound
	}
	return sub, nil
}

// DeleteSubtask removes the subtask. Removing one that is already absent is
// not an error.
func (w Workflow) DeleteSubtask(ctx context.Context, taskID, subtaskID string) error {
	return w.st.DeleteSubtask(ctx, taskID, subtaskID)
}

// ReassignSubtask sets or clears the subtask's assignee. When the new
// assignee is non-null the returned notification request carries the parent
// task's priority; dispatching it is the caller's responsibility and its
// failure never fails the reassignment.
func (w Workflow) ReassignSubtask(ctx context.Context, taskID, subtaskID, assigneeID string) (*Subtask, *AssignmentNotification, error) {
	sub, err := w.st.GetSubtask(ctx, taskID, subtaskID)
	if err != nil {
		return nil, nil, err
	}
	if sub == nil {
		return nil, nil, ErrSubtaskNotFound
	}
	assignee := normalizeAssignee(assigneeID)
	if err := w.st.UpdateSubtask(ctx, taskID, subtaskID, SubtaskUpdate{AssignedTo: &assignee}); err != nil {
		return nil, nil, err
	}
	sub.AssignedTo = assignee
	if assignee == "" {
		return sub, nil, nil
	}
	n := &AssignmentNotification{
		Kind:       KindTask,
		AssigneeID: assignee,
		Title:      sub.Title,
		Identifier: taskID,
	}
	if t, err := w.st.GetTask(ctx, taskID); err == nil && t != nil {
		n.Priority = t.Priority
	}
	return sub, n, nil
}

func normalizeAssignee(id string) string {
	id = strings.TrimSpace(id)
	if id == Unassigned {
		return ""
	}
	return id
}
