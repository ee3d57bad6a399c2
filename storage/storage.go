package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"portal-api/domain"
)

// All tasks share one board partition; the admin task list is global, not
// per user.
const taskPartition = "tasks"

const settingsPartition = "settings"

// Storage provides access to the hosted table storage backing the portal.
type Storage struct {
	taskTable     *aztables.Client
	subtaskTable  *aztables.Client
	userTable     *aztables.Client
	settingsTable *aztables.Client
	notifyQueue   *azqueue.QueueClient
}

// Config names the tables and queue a Storage instance operates on.
type Config struct {
	TasksTable        string
	SubtasksTable     string
	UsersTable        string
	SettingsTable     string
	NotificationQueue string
}

// New creates a Storage instance from the given connection string.
func New(connStr string, cfg Config) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	nq, err := azqueue.NewQueueClientFromConnectionString(connStr, cfg.NotificationQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:     svc.NewClient(cfg.TasksTable),
		subtaskTable:  svc.NewClient(cfg.SubtasksTable),
		userTable:     svc.NewClient(cfg.UsersTable),
		settingsTable: svc.NewClient(cfg.SettingsTable),
		notifyQueue:   nq,
	}, nil
}

type taskEntity struct {
	aztables.Entity
	Title      string `json:"Title"`
	Status     string `json:"Status"`
	Priority   string `json:"Priority"`
	CreatedBy  string `json:"CreatedBy"`
	AssignedTo string `json:"AssignedTo"`
	CreatedAt  string `json:"CreatedAt"`
	UpdatedAt  string `json:"UpdatedAt"`
}

type subtaskEntity struct {
	aztables.Entity
	Title      string `json:"Title"`
	Done       bool   `json:"Done"`
	AssignedTo string `json:"AssignedTo"`
	Position   int    `json:"Position"`
	CreatedAt  string `json:"CreatedAt"`
}

func taskFromEntity(ent taskEntity) domain.Task {
	return domain.Task{
		ID:         ent.RowKey,
		Title:      ent.Title,
		Status:     ent.Status,
		Priority:   ent.Priority,
		CreatedBy:  ent.CreatedBy,
		AssignedTo: ent.AssignedTo,
		CreatedAt:  parseTime(ent.CreatedAt),
		UpdatedAt:  parseTime(ent.UpdatedAt),
	}
}

func subtaskFromEntity(ent subtaskEntity) domain.Subtask {
	return domain.Subtask{
		ID:         ent.RowKey,
		TaskID:     ent.PartitionKey,
		Title:      ent.Title,
		Done:       ent.Done,
		AssignedTo: ent.AssignedTo,
		Position:   ent.Position,
		CreatedAt:  parseTime(ent.CreatedAt),
	}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// GetTask fetches a task by id. A missing task is (nil, nil).
func (s *Storage) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, taskPartition, taskID, nil)
	if err != nil {
		if isStatus(err, 404) {
			return nil, nil
		}
		return nil, err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	t := taskFromEntity(ent)
	return &t, nil
}

// InsertTask persists a new task row.
func (s *Storage) InsertTask(ctx context.Context, t domain.Task) error {
	ent := taskEntity{
		Entity:     aztables.Entity{PartitionKey: taskPartition, RowKey: t.ID},
		Title:      t.Title,
		Status:     t.Status,
		Priority:   t.Priority,
		CreatedBy:  t.CreatedBy,
		AssignedTo: t.AssignedTo,
		CreatedAt:  formatTime(t.CreatedAt),
		UpdatedAt:  formatTime(t.UpdatedAt),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, payload, nil)
	return err
}

// UpdateTask merges a partial update into a task row.
func (s *Storage) UpdateTask(ctx context.Context, taskID string, upd domain.TaskUpdate) error {
	fields := map[string]any{
		"PartitionKey": taskPartition,
		"RowKey":       taskID,
		"UpdatedAt":    formatTime(time.Now()),
	}
	if upd.Title != nil {
		fields["Title"] = *upd.Title
	}
	if upd.Status != nil {
		fields["Status"] = *upd.Status
	}
	if upd.Priority != nil {
		fields["Priority"] = *upd.Priority
	}
	if upd.AssignedTo != nil {
		fields["AssignedTo"] = *upd.AssignedTo
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if isStatus(err, 404) {
		return domain.ErrTaskNotFound
	}
	return err
}

// DeleteTask removes a task row. Deleting an absent row is not an error.
func (s *Storage) DeleteTask(ctx context.Context, taskID string) error {
	_, err := s.taskTable.DeleteEntity(ctx, taskPartition, taskID, nil)
	if isStatus(err, 404) {
		return nil
	}
	return err
}

// ListTasks returns every task on the board.
func (s *Storage) ListTasks(ctx context.Context) ([]domain.Task, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s'", taskPartition)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, taskFromEntity(ent))
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks, nil
}

// ListSubtasks returns a task's subtasks in creation order.
func (s *Storage) ListSubtasks(ctx context.Context, taskID string) ([]domain.Subtask, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s'", taskID)
	pager := s.subtaskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	subs := []domain.Subtask{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent subtaskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			subs = append(subs, subtaskFromEntity(ent))
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Position < subs[j].Position })
	return subs, nil
}

// GetSubtask fetches one subtask. A missing subtask is (nil, nil).
func (s *Storage) GetSubtask(ctx context.Context, taskID, subtaskID string) (*domain.Subtask, error) {
	resp, err := s.subtaskTable.GetEntity(ctx, taskID, subtaskID, nil)
	if err != nil {
		if isStatus(err, 404) {
			return nil, nil
		}
		return nil, err
	}
	var ent subtaskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	sub := subtaskFromEntity(ent)
	return &sub, nil
}

// InsertSubtask persists a new subtask row under its task's partition.
func (s *Storage) InsertSubtask(ctx context.Context, sub domain.Subtask) error {
	ent := subtaskEntity{
		Entity:     aztables.Entity{PartitionKey: sub.TaskID, RowKey: sub.ID},
		Title:      sub.Title,
		Done:       sub.Done,
		AssignedTo: sub.AssignedTo,
		Position:   sub.Position,
		CreatedAt:  formatTime(sub.CreatedAt),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.subtaskTable.AddEntity(ctx, payload, nil)
	return err
}

// UpdateSubtask merges a partial update into a subtask row. The Done flag is
// written blindly with whatever target state the caller computed.
func (s *Storage) UpdateSubtask(ctx context.Context, taskID, subtaskID string, upd domain.SubtaskUpdate) error {
	fields := map[string]any{
		"PartitionKey": taskID,
		"RowKey":       subtaskID,
	}
	if upd.Title != nil {
		fields["Title"] = *upd.Title
	}
	if upd.Done != nil {
		fields["Done"] = *upd.Done
	}
	if upd.AssignedTo != nil {
		fields["AssignedTo"] = *upd.AssignedTo
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.subtaskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if isStatus(err, 404) {
		return domain.ErrSubtaskNotFound
	}
	return err
}

// DeleteSubtask removes a subtask row. Deleting an absent row is not an
// error.
func (s *Storage) DeleteSubtask(ctx context.Context, taskID, subtaskID string) error {
	_, err := s.subtaskTable.DeleteEntity(ctx, taskID, subtaskID, nil)
	if isStatus(err, 404) {
		return nil
	}
	return err
}

func isStatus(err error, code int) bool {
	if err == nil {
		return false
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}
