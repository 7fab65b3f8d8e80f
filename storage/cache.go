package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"board-api/domain"
)

type backend interface {
	FetchTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	InsertTask(ctx context.Context, ownerID, text string, status domain.Status, order int) (domain.Task, error)
	UpdateTask(ctx context.Context, ownerID, taskID string, upd domain.TaskUpdate) error
	DeleteTask(ctx context.Context, ownerID, taskID string) error
	DeleteTasks(ctx context.Context, ownerID string) error
}

// Cache wraps a Storage instance with Redis-backed caching of per-user task
// lists. Every write path evicts the owner's cached list.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client
// and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) FetchTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx, ownerID); ok {
		return tasks, nil
	}

	tasks, err := c.base.FetchTasks(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	c.storeTasks(ctx, ownerID, tasks)
	return tasks, nil
}

func (c *Cache) InsertTask(ctx context.Context, ownerID, text string, status domain.Status, order int) (domain.Task, error) {
	t, err := c.base.InsertTask(ctx, ownerID, text, status, order)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, ownerID)
	return t, nil
}

func (c *Cache) UpdateTask(ctx context.Context, ownerID, taskID string, upd domain.TaskUpdate) error {
	if err := c.base.UpdateTask(ctx, ownerID, taskID, upd); err != nil {
		return err
	}
	c.evict(ctx, ownerID)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	if err := c.base.DeleteTask(ctx, ownerID, taskID); err != nil {
		return err
	}
	c.evict(ctx, ownerID)
	return nil
}

func (c *Cache) DeleteTasks(ctx context.Context, ownerID string) error {
	if err := c.base.DeleteTasks(ctx, ownerID); err != nil {
		return err
	}
	c.evict(ctx, ownerID)
	return nil
}

func (c *Cache) loadTasksFromCache(ctx context.Context, ownerID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(ownerID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(ownerID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(ownerID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) storeTasks(ctx context.Context, ownerID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(ownerID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, ownerID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(ownerID)).Result()
}

func tasksCacheKey(ownerID string) string {
	return "tasks:" + ownerID
}
