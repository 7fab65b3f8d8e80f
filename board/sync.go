package board

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// ErrSyncIncomplete is returned when one or more writes of a batch failed;
// a reconcile for the account has been scheduled.
var ErrSyncIncomplete = errors.New("batch sync incomplete")

// SyncerConfig tunes the reconcile handoff machinery.
type SyncerConfig struct {
	Workers        int
	Buffer         int
	WriteTimeout   time.Duration
	HandoffTimeout time.Duration
}

func (c SyncerConfig) withDefaults() SyncerConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.HandoffTimeout < 0 {
		c.HandoffTimeout = 0
	}
	return c
}

// Syncer persists batches of (status, order) placements concurrently and
// routes failures to the reconcile queue. Reconcile requests are handed off
// to a bounded worker pool with a short timed wait; when the buffer is
// saturated the enqueue happens inline.
type Syncer struct {
	store Store
	log   *log.Logger
	cfg   SyncerConfig

	jobs chan string
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewSyncer starts the reconcile workers.
func NewSyncer(store Store, logger *log.Logger, cfg SyncerConfig) *Syncer {
	if store == nil {
		panic("board.NewSyncer: store is nil")
	}
	if logger == nil {
		panic("board.NewSyncer: logger is nil")
	}
	cfg = cfg.withDefaults()
	s := &Syncer{
		store: store,
		log:   logger,
		cfg:   cfg,
		jobs:  make(chan string, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	logger.Infof("board syncer started, workers: %d, buffer: %d", cfg.Workers, cfg.Buffer)
	return s
}

// Close stops the workers after draining queued reconcile requests.
func (s *Syncer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	s.wg.Wait()
}

// Flush writes every placement of a batch concurrently and awaits the group.
// confirm is invoked for each placement whose write landed. When any write
// fails, a reconcile is scheduled for the account and ErrSyncIncomplete is
// returned; successful writes of the same batch are kept.
func (s *Syncer) Flush(ctx context.Context, ownerID string, batch []domain.Placement, confirm func(taskID string)) error {
	if len(batch) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	failures := make([]error, len(batch))
	for i, p := range batch {
		wg.Add(1)
		go func(i int, p domain.Placement) {
			defer wg.Done()
			writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			defer cancel()
			status := p.Status
			order := p.Order
			err := s.store.UpdateTask(writeCtx, ownerID, p.ID, domain.TaskUpdate{Status: &status, Order: &order})
			if err != nil {
				failures[i] = err
				return
			}
			if confirm != nil {
				confirm(p.ID)
			}
		}(i, p)
	}
	wg.Wait()

	var failed int
	for _, err := range failures {
		if err != nil {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}

	s.log.WithFields(log.Fields{"owner": ownerID, "failed": failed, "batch": len(batch)}).Error("batch sync incomplete; scheduling reconcile")
	s.requestReconcile(ownerID)
	return ErrSyncIncomplete
}

// requestReconcile hands the account to a worker; on a saturated buffer it
// waits briefly, then enqueues inline.
func (s *Syncer) requestReconcile(ownerID string) {
	if s.trySend(ownerID) {
		return
	}

	s.log.Warn("reconcile buffer saturated; enqueueing inline")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	if err := s.store.EnqueueReconcile(ctx, ownerID); err != nil {
		s.log.WithFields(log.Fields{"owner": ownerID, "error": err}).Error("inline reconcile enqueue failed")
	}
}

func (s *Syncer) trySend(ownerID string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	select {
	case s.jobs <- ownerID:
		return true
	default:
	}

	if s.cfg.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(s.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case s.jobs <- ownerID:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Syncer) worker() {
	defer s.wg.Done()
	for ownerID := range s.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		err := s.store.EnqueueReconcile(ctx, ownerID)
		cancel()
		if err != nil {
			s.log.WithFields(log.Fields{"owner": ownerID, "error": err}).Error("reconcile enqueue failed")
		}
	}
}
