package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ChangeHook is invoked after every successful repository write, before the
// write call returns. removed is true for deletes.
type ChangeHook func(ctx context.Context, collection string, id string, removed bool)

// Repository is the persistent store for portfolio entities.
type Repository interface {
	// List returns every entity in the collection, newest first.
	List(ctx context.Context, collection string) ([]Entity, error)

	// Get returns a single entity or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Entity, error)

	// Put inserts or replaces an entity.
	Put(ctx context.Context, collection string, entity Entity) error

	// Delete removes an entity. Deleting a missing entity is not an error.
	Delete(ctx context.Context, collection, id string) error
}

// SQLiteRepository implements Repository on the foliod SQLite database.
type SQLiteRepository struct {
	db    *sql.DB
	hooks []ChangeHook
}

// NewSQLiteRepository creates a repository over an opened database.
func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &SQLiteRepository{db: db}, nil
}

// OnChange registers a hook called after every successful write. Hooks run
// synchronously in registration order.
func (r *SQLiteRepository) OnChange(hook ChangeHook) {
	r.hooks = append(r.hooks, hook)
}

func (r *SQLiteRepository) notify(ctx context.Context, collection, id string, removed bool) {
	for _, hook := range r.hooks {
		hook(ctx, collection, id, removed)
	}
}

// List returns every entity in the collection ordered by updated_at
// descending, ties by ID for stable output.
func (r *SQLiteRepository) List(ctx context.Context, collection string) ([]Entity, error) {
	if collection == "" {
		return nil, fmt.Errorf("%w: collection is required", ErrInvalidInput)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, body, updated_at FROM entities
		 WHERE collection = ? ORDER BY updated_at DESC, id ASC`, collection)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", ErrStorageUnavailable, collection, err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Title, &e.Body, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning %s row: %v", ErrStorageUnavailable, collection, err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating %s rows: %v", ErrStorageUnavailable, collection, err)
	}
	return entities, nil
}

// Get returns a single entity.
func (r *SQLiteRepository) Get(ctx context.Context, collection, id string) (Entity, error) {
	if collection == "" || id == "" {
		return Entity{}, fmt.Errorf("%w: collection and id are required", ErrInvalidInput)
	}

	var e Entity
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, body, updated_at FROM entities
		 WHERE collection = ? AND id = ?`, collection, id).
		Scan(&e.ID, &e.Title, &e.Body, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entity{}, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if err != nil {
		return Entity{}, fmt.Errorf("%w: getting %s/%s: %v", ErrStorageUnavailable, collection, id, err)
	}
	return e, nil
}

// Put inserts or replaces an entity. A zero UpdatedAt is stamped with the
// current time.
func (r *SQLiteRepository) Put(ctx context.Context, collection string, entity Entity) error {
	if collection == "" || entity.ID == "" {
		return fmt.Errorf("%w: collection and id are required", ErrInvalidInput)
	}
	if entity.UpdatedAt.IsZero() {
		entity.UpdatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO entities (collection, id, title, body, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			updated_at = excluded.updated_at`,
		collection, entity.ID, entity.Title, entity.Body, entity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: storing %s/%s: %v", ErrStorageUnavailable, collection, entity.ID, err)
	}

	r.notify(ctx, collection, entity.ID, false)
	return nil
}

// Delete removes an entity. Hooks fire even when the row was already gone so
// downstream indexes converge.
func (r *SQLiteRepository) Delete(ctx context.Context, collection, id string) error {
	if collection == "" || id == "" {
		return fmt.Errorf("%w: collection and id are required", ErrInvalidInput)
	}

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM entities WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("%w: deleting %s/%s: %v", ErrStorageUnavailable, collection, id, err)
	}

	r.notify(ctx, collection, id, true)
	return nil
}

// Ensure SQLiteRepository implements Repository.
var _ Repository = (*SQLiteRepository)(nil)
