package memory

import (
	"context"
	"sync"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
)

// AuditStore keeps the audit trail in a slice, append-only.
type AuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	nextID  int64
}

// NewAuditStore creates an empty audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

func (a *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, domain.AuditEntry{
		ID:        a.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	a.nextID++
	return nil
}

// List returns entries newest first.
func (a *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.RLock()
	all := make([]domain.AuditEntry, 0, len(a.entries))
	for i := len(a.entries) - 1; i >= 0; i-- {
		e := a.entries[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		all = append(all, e)
	}
	a.mu.RUnlock()
	return page(all, opts), nil
}
