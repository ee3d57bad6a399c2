package domain

import (
	"context"
	"sort"
)

type fakeStore struct {
	tasks    map[string]Task
	subtasks map[string]map[string]Subtask

	insertedTask    Task
	insertedSubtask Subtask
	deletedSubtasks []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:    map[string]Task{},
		subtasks: map[string]map[string]Subtask{},
	}
}

func (f *fakeStore) GetTask(ctx context.Context, taskID string) (*Task, error) {
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) InsertTask(ctx context.Context, t Task) error {
	f.tasks[t.ID] = t
	f.insertedTask = t
	return nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, taskID string, upd TaskUpdate) error {
	t, ok := f.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	if upd.AssignedTo != nil {
		t.AssignedTo = *upd.AssignedTo
	}
	f.tasks[taskID] = t
	return nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, taskID string) error {
	delete(f.tasks, taskID)
	return nil
}

func (f *fakeStore) ListTasks(ctx context.Context) ([]Task, error) {
	out := make([]Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListSubtasks(ctx context.Context, taskID string) ([]Subtask, error) {
	out := make([]Subtask, 0, len(f.subtasks[taskID]))
	for _, s := range f.subtasks[taskID] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeStore) GetSubtask(ctx context.Context, taskID, subtaskID string) (*Subtask, error) {
	s, ok := f.subtasks[taskID][subtaskID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeStore) InsertSubtask(ctx context.Context, s Subtask) error {
	if f.subtasks[s.TaskID] == nil {
		f.subtasks[s.TaskID] = map[string]Subtask{}
	}
	f.subtasks[s.TaskID][s.ID] = s
	f.insertedSubtask = s
	return nil
}

func (f *fakeStore) UpdateSubtask(ctx context.Context, taskID, subtaskID string, upd SubtaskUpdate) error {
	s, ok := f.subtasks[taskID][subtaskID]
	if !ok {
		return ErrSubtaskNotFound
	}
	if upd.Title != nil {
		s.Title = *upd.Title
	}
	if upd.Done != nil {
		s.Done = *upd.Done
	}
	if upd.AssignedTo != nil {
		s.AssignedTo = *upd.AssignedTo
	}
	f.subtasks[taskID][subtaskID] = s
	return nil
}

func (f *fakeStore) DeleteSubtask(ctx context.Context, taskID, subtaskID string) error {
	delete(f.subtasks[taskID], subtaskID)
	f.deletedSubtasks = append(f.deletedSubtasks, subtaskID)
	return nil
}
