// Package indexer keeps the vector store in step with the content
// repository. Every entity gets a numeric vector ID allocated exactly once;
// the (collection, external ID) to vector ID map lives in SQLite so
// reindexing an updated entity overwrites its existing point instead of
// growing the collection.
package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/foliolabs/foliod/internal/content"
	"github.com/foliolabs/foliod/internal/counter"
	"github.com/foliolabs/foliod/internal/logging"
	"github.com/foliolabs/foliod/internal/vectorstore"
)

// ErrStorageUnavailable indicates the mapping table could not be read or
// written.
var ErrStorageUnavailable = errors.New("index storage unavailable")

// Embedder generates document embeddings.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer indexes and removes content entities.
type Indexer struct {
	db       *sql.DB
	counter  *counter.Service
	embedder Embedder
	store    vectorstore.Store
	logger   *logging.Logger
}

// New creates an indexer.
func New(db *sql.DB, ctr *counter.Service, embedder Embedder, store vectorstore.Store, logger *logging.Logger) (*Indexer, error) {
	if db == nil || ctr == nil || embedder == nil || store == nil {
		return nil, errors.New("db, counter, embedder and store are required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Indexer{db: db, counter: ctr, embedder: embedder, store: store, logger: logger}, nil
}

// sequenceName returns the counter sequence for a collection's vector IDs.
func sequenceName(collection string) string {
	return "vec_" + collection
}

// Index embeds an entity and upserts its point. The vector ID is looked up
// in the mapping table and allocated on first index only.
func (ix *Indexer) Index(ctx context.Context, collection string, entity content.Entity) error {
	if collection == "" || entity.ID == "" {
		return errors.New("collection and entity ID are required")
	}

	vectorID, err := ix.vectorID(ctx, collection, entity.ID)
	if err != nil {
		return err
	}

	vectors, err := ix.embedder.EmbedDocuments(ctx, []string{entity.Title + "\n\n" + entity.Body})
	if err != nil {
		return fmt.Errorf("embedding %s/%s: %w", collection, entity.ID, err)
	}

	payload := map[string]interface{}{
		"id":         entity.ID,
		"title":      entity.Title,
		"snippet":    entity.Snippet(200),
		"updated_at": entity.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if err := ix.store.Upsert(ctx, collection, vectorID, vectors[0], payload); err != nil {
		return fmt.Errorf("upserting %s/%s: %w", collection, entity.ID, err)
	}

	ix.logger.Debug(ctx, "indexed entity",
		zap.String("collection", collection),
		zap.String("id", entity.ID),
		zap.Int64("vector_id", vectorID),
	)
	return nil
}

// Remove deletes an entity's point and its mapping row. Removing an entity
// that was never indexed is a no-op.
func (ix *Indexer) Remove(ctx context.Context, collection, externalID string) error {
	var vectorID int64
	err := ix.db.QueryRowContext(ctx,
		`SELECT vector_id FROM indexed_documents WHERE collection = ? AND external_id = ?`,
		collection, externalID).Scan(&vectorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: looking up %s/%s: %v", ErrStorageUnavailable, collection, externalID, err)
	}

	// Vector store first so a failure leaves the mapping row behind and a
	// retry still finds the point.
	if err := ix.store.Delete(ctx, collection, vectorID); err != nil {
		return fmt.Errorf("deleting point for %s/%s: %w", collection, externalID, err)
	}

	if _, err := ix.db.ExecContext(ctx,
		`DELETE FROM indexed_documents WHERE collection = ? AND external_id = ?`,
		collection, externalID); err != nil {
		return fmt.Errorf("%w: deleting mapping for %s/%s: %v", ErrStorageUnavailable, collection, externalID, err)
	}

	ix.logger.Debug(ctx, "removed entity from index",
		zap.String("collection", collection),
		zap.String("id", externalID),
		zap.Int64("vector_id", vectorID),
	)
	return nil
}

// vectorID returns the entity's vector ID, allocating one on first index.
func (ix *Indexer) vectorID(ctx context.Context, collection, externalID string) (int64, error) {
	var id int64
	err := ix.db.QueryRowContext(ctx,
		`SELECT vector_id FROM indexed_documents WHERE collection = ? AND external_id = ?`,
		collection, externalID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: looking up %s/%s: %v", ErrStorageUnavailable, collection, externalID, err)
	}

	id, err = ix.counter.Next(ctx, sequenceName(collection))
	if err != nil {
		return 0, fmt.Errorf("allocating vector ID for %s/%s: %w", collection, externalID, err)
	}

	if _, err := ix.db.ExecContext(ctx,
		`INSERT INTO indexed_documents (collection, external_id, vector_id) VALUES (?, ?, ?)`,
		collection, externalID, id); err != nil {
		return 0, fmt.Errorf("%w: recording mapping for %s/%s: %v", ErrStorageUnavailable, collection, externalID, err)
	}
	return id, nil
}

// Sync reindexes every entity in the repository and removes points whose
// entities are gone. Intended for startup after out-of-band content edits.
func (ix *Indexer) Sync(ctx context.Context, repo content.Repository) error {
	for _, collection := range content.Collections {
		entities, err := repo.List(ctx, collection)
		if err != nil {
			return fmt.Errorf("listing %s: %w", collection, err)
		}

		live := make(map[string]bool, len(entities))
		for _, entity := range entities {
			live[entity.ID] = true
			if err := ix.Index(ctx, collection, entity); err != nil {
				return err
			}
		}

		stale, err := ix.indexedIDs(ctx, collection)
		if err != nil {
			return err
		}
		for _, id := range stale {
			if live[id] {
				continue
			}
			if err := ix.Remove(ctx, collection, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ix *Indexer) indexedIDs(ctx context.Context, collection string) ([]string, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT external_id FROM indexed_documents WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("%w: listing indexed %s: %v", ErrStorageUnavailable, collection, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scanning indexed %s: %v", ErrStorageUnavailable, collection, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating indexed %s: %v", ErrStorageUnavailable, collection, err)
	}
	return ids, nil
}
