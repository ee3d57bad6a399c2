package domain

import "errors"

// ErrEmptyTitle rejects a create with a title that is empty after trimming.
var ErrEmptyTitle = errors.New("title must not be empty")

// ErrTaskNotFound indicates the referenced task does not exist.
var ErrTaskNotFound = errors.New("task not found")

// ErrSubtaskNotFound indicates the referenced subtask does not exist.
var ErrSubtaskNotFound = errors.New("subtask not found")
