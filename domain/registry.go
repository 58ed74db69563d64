package domain

import (
	"context"
	"sync"
)

// Workspaces opens one Workspace per user and keeps it for the life of
// the process, so a user's collection is loaded once.
type Workspaces struct {
	slots Slots
	opts  []Option

	mu   sync.Mutex
	open map[string]*Workspace
}

func NewWorkspaces(slots Slots, opts ...Option) *Workspaces {
	return &Workspaces{slots: slots, opts: opts, open: make(map[string]*Workspace)}
}

// Open returns the workspace of userID, loading it on first use.
func (r *Workspaces) Open(ctx context.Context, userID string) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.open[userID]; ok {
		return w
	}
	w := OpenWorkspace(ctx, r.slots, userID, r.opts...)
	r.open[userID] = w
	return w
}

// Close drops the cached workspace of userID; the next Open reloads it.
func (r *Workspaces) Close(userID string) {
	r.mu.Lock()
	delete(r.open, userID)
	r.mu.Unlock()
}
