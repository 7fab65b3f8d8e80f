package reconcile

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"board-api/board"
	"board-api/domain"
	"board-api/storage"
)

// Store is the slice of the remote store the worker needs.
type Store interface {
	FetchTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	UpdateTask(ctx context.Context, ownerID, taskID string, upd domain.TaskUpdate) error
	DequeueReconcile(ctx context.Context) (*azqueue.DequeuedMessage, error)
	DeleteReconcile(ctx context.Context, id, receipt string) error
}

// Worker drains the reconcile queue: for each job it refetches remote truth,
// normalizes column ordering, and replaces the account's board state.
type Worker struct {
	store    Store
	boards   *board.Registry
	log      *log.Logger
	interval time.Duration
}

// NewWorker creates a reconcile worker polling at the given interval.
func NewWorker(store Store, boards *board.Registry, logger *log.Logger, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{store: store, boards: boards, log: logger, interval: interval}
}

// Run processes reconcile messages until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := w.store.DequeueReconcile(ctx)
		if err != nil {
			w.log.WithField("error", err).Error("dequeue reconcile")
			w.sleep(ctx)
			continue
		}
		if msg == nil {
			w.sleep(ctx)
			continue
		}

		var job storage.ReconcileJob
		if msg.MessageText != nil {
			if err := sonic.UnmarshalString(*msg.MessageText, &job); err != nil {
				w.log.WithField("error", err).Error("malformed reconcile message")
			}
		}
		if job.UserID != "" {
			if err := w.Repair(ctx, job.UserID); err != nil {
				w.log.WithFields(log.Fields{"owner": job.UserID, "error": err}).Error("reconcile failed")
				// Leave the message for redelivery.
				continue
			}
		}

		if msg.MessageID != nil && msg.PopReceipt != nil {
			if err := w.store.DeleteReconcile(ctx, *msg.MessageID, *msg.PopReceipt); err != nil {
				w.log.WithField("error", err).Error("delete reconcile message")
			}
		}
	}
}

// Repair refetches the account's tasks, renumbers every column to consecutive
// 1..N positions (restoring order uniqueness after failed partial batch
// writes), writes back rows whose order changed, and replaces the in-memory
// board when one is live.
func (w *Worker) Repair(ctx context.Context, ownerID string) error {
	tasks, err := w.store.FetchTasks(ctx, ownerID)
	if err != nil {
		return err
	}

	byID := make(map[string]int, len(tasks))
	for i, t := range tasks {
		byID[t.ID] = i
	}

	for _, status := range domain.Statuses {
		col := domain.Column(tasks, status)
		for i, t := range col {
			want := i + 1
			if t.Order == want {
				continue
			}
			order := want
			if err := w.store.UpdateTask(ctx, ownerID, t.ID, domain.TaskUpdate{Order: &order}); err != nil {
				return err
			}
			tasks[byID[t.ID]].Order = want
		}
	}

	if b, ok := w.boards.Lookup(ownerID); ok {
		b.Replace(tasks)
	}
	w.log.WithFields(log.Fields{"owner": ownerID, "tasks": len(tasks)}).Info("board reconciled")
	return nil
}

func (w *Worker) sleep(ctx context.Context) {
	t := time.NewTimer(w.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
