package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
)

// Registry is an in-memory domain.OwnershipOracle for standalone mode and
// tests. It tracks token ownership and ERC-721 style approvals without a
// chain behind it.
type Registry struct {
	mu          sync.RWMutex
	owners      map[int64]common.Address
	approved    map[int64]common.Address
	operatorAll map[common.Address]map[common.Address]bool
}

// NewRegistry creates an empty in-memory ownership registry.
func NewRegistry() *Registry {
	return &Registry{
		owners:      make(map[int64]common.Address),
		approved:    make(map[int64]common.Address),
		operatorAll: make(map[common.Address]map[common.Address]bool),
	}
}

// Mint records owner as the holder of assetID and, when operator is nonzero,
// approves the operator for all of the owner's assets. Existing ownership is
// overwritten, which keeps local seeding scripts simple.
func (r *Registry) Mint(assetID int64, owner, operator common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[assetID] = owner
	if operator != (common.Address{}) {
		m := r.operatorAll[owner]
		if m == nil {
			m = make(map[common.Address]bool)
			r.operatorAll[owner] = m
		}
		m[operator] = true
	}
}

// Approve grants a per-token approval, mirroring ERC-721 approve().
func (r *Registry) Approve(assetID int64, to common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approved[assetID] = to
}

// SetApprovalForAll grants or revokes an operator over every asset of owner.
func (r *Registry) SetApprovalForAll(owner, operator common.Address, approved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.operatorAll[owner]
	if m == nil {
		m = make(map[common.Address]bool)
		r.operatorAll[owner] = m
	}
	m[operator] = approved
}

// OwnerOf returns the holder of assetID.
func (r *Registry) OwnerOf(ctx context.Context, assetID int64) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[assetID]
	if !ok {
		return common.Address{}, fmt.Errorf("oracle: asset %d: %w", assetID, domain.ErrNotFound)
	}
	return owner, nil
}

// GetApproved returns the per-token approval, or the zero address.
func (r *Registry) GetApproved(ctx context.Context, assetID int64) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.approved[assetID], nil
}

// IsApprovedForAll reports whether operator may move every asset of owner.
func (r *Registry) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operatorAll[owner][operator], nil
}

// TransferFrom moves assetID from -> to, enforcing the same authorization an
// ERC-721 contract would: the caller side here is always the marketplace
// operator, so the transfer succeeds only when from holds the asset.
func (r *Registry) TransferFrom(ctx context.Context, from, to common.Address, assetID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[assetID]
	if !ok {
		return fmt.Errorf("oracle: asset %d: %w", assetID, domain.ErrNotFound)
	}
	if owner != from {
		return fmt.Errorf("oracle: asset %d not held by %s", assetID, from.Hex())
	}

	r.owners[assetID] = to
	delete(r.approved, assetID)
	return nil
}

var _ domain.OwnershipOracle = (*Registry)(nil)
