package account

import (
	"context"
	"sync"
)

// runGuard allows one in-flight run per account.
type runGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newRunGuard() *runGuard {
	return &runGuard{active: make(map[string]struct{})}
}

// acquire marks userID busy. The returned release must be called exactly once.
func (g *runGuard) acquire(userID string) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[userID]; busy {
		return nil, false
	}
	g.active[userID] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.active, userID)
		g.mu.Unlock()
	}, true
}

// RunLocker admits at most one in-flight run per account across processes.
// TryLock reports ok=false when another run holds the account.
type RunLocker interface {
	TryLock(ctx context.Context, userID string) (unlock func(), ok bool, err error)
}
