package services

import (
	"context"
	"sync"
	"time"

	"github.com/pobtrack/pob-backend/internal/loctree"
	"github.com/pobtrack/pob-backend/internal/models"
)

// LocationIndex caches the LocationTree built from the location master data
type LocationIndex struct {
	store LocationStore
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	tree     *loctree.Tree
	loadedAt time.Time
}

// NewLocationIndex creates a LocationIndex that rebuilds the tree at most once per ttl
func NewLocationIndex(store LocationStore, ttl time.Duration) *LocationIndex {
	return &LocationIndex{store: store, ttl: ttl, now: time.Now}
}

// Tree returns the cached tree, rebuilding it when stale
func (i *LocationIndex) Tree(ctx context.Context) (*loctree.Tree, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.tree != nil && i.now().Sub(i.loadedAt) < i.ttl {
		return i.tree, nil
	}
	return i.reload(ctx)
}

// Invalidate drops the cached tree
func (i *LocationIndex) Invalidate() {
	i.mu.Lock()
	i.tree = nil
	i.mu.Unlock()
}

// Resolve returns the location with id. A miss on a cached tree triggers one rebuild so a
// location created a moment ago is found. Unknown ids return nil.
func (i *LocationIndex) Resolve(ctx context.Context, id int64) (*models.Location, *loctree.Tree, error) {
	tree, err := i.Tree(ctx)
	if err != nil {
		return nil, nil, err
	}
	if loc, ok := tree.Get(id); ok {
		return loc, tree, nil
	}

	i.mu.Lock()
	tree, err = i.reload(ctx)
	i.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	loc, _ := tree.Get(id)
	return loc, tree, nil
}

func (i *LocationIndex) reload(ctx context.Context) (*loctree.Tree, error) {
	locations, err := i.store.ListAll(ctx)
	if err != nil {
		return nil, storageError("failed to load locations", err)
	}
	i.tree = loctree.Build(locations)
	i.loadedAt = i.now()
	return i.tree, nil
}
