package board

import (
	"context"
	"errors"
	"strings"
	"sync"

	"board-api/domain"
)

// ErrTaskNotFound is returned when a mutation names a task the board does not
// hold.
var ErrTaskNotFound = errors.New("task not found")

// ErrInvalidStatus is returned when a mutation names a column outside the
// three fixed ones.
var ErrInvalidStatus = errors.New("invalid status")

// Store is the slice of the remote store the board needs.
type Store interface {
	FetchTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	InsertTask(ctx context.Context, ownerID, text string, status domain.Status, order int) (domain.Task, error)
	UpdateTask(ctx context.Context, ownerID, taskID string, upd domain.TaskUpdate) error
	DeleteTask(ctx context.Context, ownerID, taskID string) error
	EnqueueReconcile(ctx context.Context, ownerID string) error
}

// Board owns the in-memory task collection for one account and keeps it
// synchronized with the remote store. Local state is updated optimistically;
// a failed batch write schedules a reconcile instead of leaving local and
// remote silently divergent.
type Board struct {
	owner  domain.Account
	store  Store
	syncer *Syncer

	mu     sync.Mutex
	tasks  []domain.Task
	loaded bool
}

func newBoard(owner domain.Account, store Store, syncer *Syncer) *Board {
	return &Board{owner: owner, store: store, syncer: syncer}
}

// Owner returns the account this board belongs to.
func (b *Board) Owner() domain.Account { return b.owner }

// Load fetches all tasks owned by the account and replaces local state
// wholesale.
func (b *Board) Load(ctx context.Context) error {
	tasks, err := b.store.FetchTasks(ctx, b.owner.ID)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.tasks = tasks
	b.loaded = true
	b.mu.Unlock()
	return nil
}

// Ensure loads the board once; later calls are no-ops.
func (b *Board) Ensure(ctx context.Context) error {
	b.mu.Lock()
	loaded := b.loaded
	b.mu.Unlock()
	if loaded {
		return nil
	}
	return b.Load(ctx)
}

// Snapshot returns a copy of the current task collection.
func (b *Board) Snapshot() []domain.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Task, len(b.tasks))
	copy(out, b.tasks)
	return out
}

// Column returns the ordered tasks of one column.
func (b *Board) Column(status domain.Status) []domain.Task {
	return domain.Column(b.Snapshot(), status)
}

// Add creates a task in the todo column. Empty text (after trimming) is a
// silent no-op returning (nil, nil). The remote insert happens first; local
// state changes only once the store has assigned an id.
func (b *Board) Add(ctx context.Context, text string) (*domain.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	b.mu.Lock()
	order := domain.NextOrder(b.tasks, domain.StatusTodo)
	b.mu.Unlock()

	task, err := b.store.InsertTask(ctx, b.owner.ID, text, domain.StatusTodo, order)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.tasks = append(b.tasks, task)
	b.mu.Unlock()
	return &task, nil
}

// Delete removes a task. The remote delete happens first; on failure local
// state is untouched. The vacated column is not renumbered: ordering is
// relative, gaps are harmless.
func (b *Board) Delete(ctx context.Context, taskID string) error {
	if !b.has(taskID) {
		return ErrTaskNotFound
	}
	if err := b.store.DeleteTask(ctx, b.owner.ID, taskID); err != nil {
		return err
	}
	b.mu.Lock()
	for i, t := range b.tasks {
		if t.ID == taskID {
			b.tasks = append(b.tasks[:i], b.tasks[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	return nil
}

// Move changes a task's column via the simple click path. Order is left
// unchanged, so the task may land between the destination column's existing
// order values until the user reorders it.
func (b *Board) Move(ctx context.Context, taskID string, status domain.Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	if !b.has(taskID) {
		return ErrTaskNotFound
	}
	if err := b.store.UpdateTask(ctx, b.owner.ID, taskID, domain.TaskUpdate{Status: &status}); err != nil {
		return err
	}
	b.mu.Lock()
	for i := range b.tasks {
		if b.tasks[i].ID == taskID {
			b.tasks[i].Status = status
			break
		}
	}
	b.mu.Unlock()
	return nil
}

// Reorder applies a drag gesture: same-column repositioning or a cross-column
// move with position. Local state updates synchronously and optimistically;
// the destination column's (status, order) pairs are then persisted as a
// batch of concurrent updates. Tasks in the batch stay flagged pending until
// their write is confirmed; any failure schedules a reconcile for the
// account and the error is returned to the caller.
func (b *Board) Reorder(ctx context.Context, src domain.Status, srcIdx int, dst domain.Status, dstIdx int, taskID string) error {
	if !src.Valid() || !dst.Valid() {
		return ErrInvalidStatus
	}

	b.mu.Lock()
	placements := domain.Reorder(b.tasks, src, srcIdx, dst, dstIdx, taskID)
	if placements == nil {
		b.mu.Unlock()
		return nil
	}

	byID := make(map[string]domain.Placement, len(placements))
	for _, p := range placements {
		byID[p.ID] = p
	}
	batch := make([]domain.Placement, 0, len(placements))
	for i := range b.tasks {
		p, ok := byID[b.tasks[i].ID]
		if !ok {
			continue
		}
		b.tasks[i].Status = p.Status
		b.tasks[i].Order = p.Order
		if p.Status == dst {
			b.tasks[i].Pending = true
			batch = append(batch, p)
		}
	}
	b.mu.Unlock()

	return b.syncer.Flush(ctx, b.owner.ID, batch, b.confirm)
}

// Replace swaps in a reconciled task collection fetched from remote truth.
func (b *Board) Replace(tasks []domain.Task) {
	b.mu.Lock()
	b.tasks = tasks
	b.loaded = true
	b.mu.Unlock()
}

func (b *Board) confirm(taskID string) {
	b.mu.Lock()
	for i := range b.tasks {
		if b.tasks[i].ID == taskID {
			b.tasks[i].Pending = false
			break
		}
	}
	b.mu.Unlock()
}

func (b *Board) has(taskID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.tasks {
		if t.ID == taskID {
			return true
		}
	}
	return false
}
