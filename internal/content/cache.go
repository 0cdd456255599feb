package content

import (
	"context"
	"errors"
	"sync"
	"time"
)

// timeNow is swapped in tests.
var timeNow = time.Now

// snapshot is an immutable view of one collection. Readers share it; a
// refresh builds a new one and swaps the pointer under the write lock.
type snapshot struct {
	entities  []Entity
	byID      map[string]Entity
	fetchedAt time.Time
}

// Cache is a TTL read-through cache over a Repository.
//
// GetAll serves the whole collection from the snapshot while it is fresh and
// refetches wholesale when it expires. GetByID serves from the snapshot
// index; a miss fetches the single entity and inserts it into the index
// without resetting the snapshot clock, so a hot item does not keep a stale
// snapshot alive.
type Cache struct {
	repo Repository
	ttl  time.Duration

	mu        sync.RWMutex
	snapshots map[string]*snapshot
}

// NewCache creates a cache with the given TTL.
func NewCache(repo Repository, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		repo:      repo,
		ttl:       ttl,
		snapshots: make(map[string]*snapshot),
	}
}

// GetAll returns every entity in the collection. The returned slice is
// shared with other readers and must not be mutated.
func (c *Cache) GetAll(ctx context.Context, collection string) ([]Entity, error) {
	c.mu.RLock()
	snap, ok := c.snapshots[collection]
	c.mu.RUnlock()
	if ok && timeNow().Sub(snap.fetchedAt) < c.ttl {
		return snap.entities, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if snap, ok := c.snapshots[collection]; ok && timeNow().Sub(snap.fetchedAt) < c.ttl {
		return snap.entities, nil
	}

	entities, err := c.repo.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}
	c.snapshots[collection] = &snapshot{
		entities:  entities,
		byID:      byID,
		fetchedAt: timeNow(),
	}
	return entities, nil
}

// GetByID returns a single entity, fetching it on a snapshot miss.
func (c *Cache) GetByID(ctx context.Context, collection, id string) (Entity, error) {
	c.mu.RLock()
	snap, ok := c.snapshots[collection]
	if ok && timeNow().Sub(snap.fetchedAt) < c.ttl {
		if e, hit := snap.byID[id]; hit {
			c.mu.RUnlock()
			return e, nil
		}
	}
	c.mu.RUnlock()

	e, err := c.repo.Get(ctx, collection, id)
	if err != nil {
		return Entity{}, err
	}

	// Opportunistic insert into the live index, keeping fetchedAt so the
	// full snapshot still expires on schedule. The entity list is rebuilt
	// rather than appended in place because readers hold the old slice.
	c.mu.Lock()
	if snap, ok := c.snapshots[collection]; ok && timeNow().Sub(snap.fetchedAt) < c.ttl {
		if _, hit := snap.byID[id]; !hit {
			byID := make(map[string]Entity, len(snap.byID)+1)
			for k, v := range snap.byID {
				byID[k] = v
			}
			byID[id] = e
			entities := make([]Entity, len(snap.entities), len(snap.entities)+1)
			copy(entities, snap.entities)
			entities = append(entities, e)
			c.snapshots[collection] = &snapshot{
				entities:  entities,
				byID:      byID,
				fetchedAt: snap.fetchedAt,
			}
		}
	}
	c.mu.Unlock()

	return e, nil
}

// Invalidate drops the collection's snapshot so the next read refetches.
func (c *Cache) Invalidate(collection string) {
	c.mu.Lock()
	delete(c.snapshots, collection)
	c.mu.Unlock()
}

// InvalidateAll drops every snapshot.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.snapshots = make(map[string]*snapshot)
	c.mu.Unlock()
}

// Warm prefetches every known collection. Failures are collected so one
// unavailable collection does not block the rest.
func (c *Cache) Warm(ctx context.Context) error {
	var errs []error
	for _, collection := range Collections {
		if _, err := c.GetAll(ctx, collection); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
