// Package vectorstore defines the interface for vector storage operations.
package vectorstore

import (
	"context"
	"errors"
	"sort"
)

// Sentinel errors for vector store operations.
var (
	// ErrProviderUnavailable indicates the vector store could not be
	// reached. Operations never return an empty success on transport
	// failure.
	ErrProviderUnavailable = errors.New("vector store unavailable")

	// ErrTimeout indicates the operation exceeded its deadline.
	ErrTimeout = errors.New("vector store request timed out")

	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ScoredPoint is a single similarity search hit.
type ScoredPoint struct {
	// ID is the numeric point ID, allocated once by the counter service.
	ID int64

	// Score is the similarity score in [0,1], higher is more similar.
	Score float32

	// Payload carries the indexed document's metadata (id, title, snippet,
	// updated_at).
	Payload map[string]interface{}
}

// Store is the interface for vector storage operations.
//
// The interface is transport-agnostic; implementations exist for an
// external Qdrant server (gRPC) and for the embedded chromem-go database.
// Point IDs are int64 values allocated by the counter service, unique
// within a collection and assigned exactly once.
type Store interface {
	// Upsert inserts or replaces the vector and payload stored under id.
	// Re-upserting the same id is idempotent.
	Upsert(ctx context.Context, collection string, id int64, vector []float32, payload map[string]interface{}) error

	// Search returns up to limit points ordered by score descending, ties
	// broken by ascending ID. Points scoring below scoreThreshold are
	// excluded.
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]ScoredPoint, error)

	// Delete removes the point stored under id. Deleting a missing point
	// is not an error.
	Delete(ctx context.Context, collection string, id int64) error

	// InitCollection creates the collection if it does not exist.
	InitCollection(ctx context.Context, collection string, vectorSize int) error

	// DropCollection deletes a collection and all its points.
	DropCollection(ctx context.Context, collection string) error

	// Close releases the store's resources.
	Close() error
}

// sortPoints orders hits score descending with ascending-ID tie-break and
// drops entries below the threshold. Applied client-side by every
// implementation so result ordering is deterministic across providers.
func sortPoints(points []ScoredPoint, limit int, scoreThreshold float32) []ScoredPoint {
	kept := points[:0]
	for _, p := range points {
		if p.Score >= scoreThreshold {
			kept = append(kept, p)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].ID < kept[j].ID
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
