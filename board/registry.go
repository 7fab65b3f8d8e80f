package board

import (
	"sync"

	"board-api/domain"
)

// Registry hands out the board object for each account. Boards are created
// lazily and dropped on logout or profile deletion; there is no ambient
// global state, the registry is injected wherever boards are needed.
type Registry struct {
	store  Store
	syncer *Syncer

	mu     sync.Mutex
	boards map[string]*Board
}

// NewRegistry creates a board registry backed by the given store and syncer.
func NewRegistry(store Store, syncer *Syncer) *Registry {
	if store == nil {
		panic("board.NewRegistry: store is nil")
	}
	if syncer == nil {
		panic("board.NewRegistry: syncer is nil")
	}
	return &Registry{store: store, syncer: syncer, boards: make(map[string]*Board)}
}

// Board returns the account's board, creating it on first use.
func (r *Registry) Board(acct domain.Account) *Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.boards[acct.ID]; ok {
		return b
	}
	b := newBoard(acct, r.store, r.syncer)
	r.boards[acct.ID] = b
	return b
}

// Lookup returns the account's board if one exists.
func (r *Registry) Lookup(accountID string) (*Board, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.boards[accountID]
	return b, ok
}

// Drop forgets the account's board. Used on logout and profile deletion.
func (r *Registry) Drop(accountID string) {
	r.mu.Lock()
	delete(r.boards, accountID)
	r.mu.Unlock()
}
