package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"portal-api/domain"
)

// Cache wraps a store with Redis-backed caching for the list reads the admin
// board issues on every paint. Any Redis failure falls back to the backing
// store without surfacing an error.
type Cache struct {
	base  domain.Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper around base using the provided Redis
// client and TTL.
func NewCache(base domain.Store, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	return c.base.GetTask(ctx, taskID)
}

func (c *Cache) InsertTask(ctx context.Context, t domain.Task) error {
	if err := c.base.InsertTask(ctx, t); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey())
	return nil
}

func (c *Cache) UpdateTask(ctx context.Context, taskID string, upd domain.TaskUpdate) error {
	if err := c.base.UpdateTask(ctx, taskID, upd); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey())
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, taskID string) error {
	if err := c.base.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey(), subtasksCacheKey(taskID))
	return nil
}

func (c *Cache) ListTasks(ctx context.Context) ([]domain.Task, error) {
	key := tasksCacheKey()
	var cached []domain.Task
	if c.loadFromCache(ctx, key, &cached) {
		return cached, nil
	}
	tasks, err := c.base.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, tasks)
	return tasks, nil
}

func (c *Cache) ListSubtasks(ctx context.Context, taskID string) ([]domain.Subtask, error) {
	key := subtasksCacheKey(taskID)
	var cached []domain.Subtask
	if c.loadFromCache(ctx, key, &cached) {
		return cached, nil
	}
	subs, err := c.base.ListSubtasks(ctx, taskID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, subs)
	return subs, nil
}

func (c *Cache) GetSubtask(ctx context.Context, taskID, subtaskID string) (*domain.Subtask, error) {
	return c.base.GetSubtask(ctx, taskID, subtaskID)
}

func (c *Cache) InsertSubtask(ctx context.Context, sub domain.Subtask) error {
	if err := c.base.InsertSubtask(ctx, sub); err != nil {
		return err
	}
	c.evict(ctx, subtasksCacheKey(sub.TaskID))
	return nil
}

func (c *Cache) UpdateSubtask(ctx context.Context, taskID, subtaskID string, upd domain.SubtaskUpdate) error {
	if err := c.base.UpdateSubtask(ctx, taskID, subtaskID, upd); err != nil {
		return err
	}
	c.evict(ctx, subtasksCacheKey(taskID))
	return nil
}

func (c *Cache) DeleteSubtask(ctx context.Context, taskID, subtaskID string) error {
	if err := c.base.DeleteSubtask(ctx, taskID, subtaskID); err != nil {
		return err
	}
	c.evict(ctx, subtasksCacheKey(taskID))
	return nil
}

func (c *Cache) loadFromCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, value any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func tasksCacheKey() string {
	return "tasks:board"
}

func subtasksCacheKey(taskID string) string {
	return "subtasks:" + taskID
}
