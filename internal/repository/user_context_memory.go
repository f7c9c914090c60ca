package repository

import (
	"context"
	"sync"

	"damdam/internal/model"
)

// MemoryUserContextProvider serves profile snapshots from memory. Used
// in tests and when no user database is configured; unknown users get
// an empty context, same as the Mongo provider.
type MemoryUserContextProvider struct {
	mu       sync.RWMutex
	contexts map[string]model.UserContext
}

// NewMemoryUserContextProvider creates an empty provider.
func NewMemoryUserContextProvider() *MemoryUserContextProvider {
	return &MemoryUserContextProvider{
		contexts: make(map[string]model.UserContext),
	}
}

// Put stores a user's context snapshot.
func (p *MemoryUserContextProvider) Put(userID string, userCtx model.UserContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contexts[userID] = userCtx
}

// Lookup returns the stored context, normalized. Missing users yield
// an empty context rather than an error.
func (p *MemoryUserContextProvider) Lookup(_ context.Context, userID string) (model.UserContext, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	userCtx, ok := p.contexts[userID]
	if !ok {
		return model.UserContext{}, nil
	}
	return userCtx.Normalize(), nil
}
