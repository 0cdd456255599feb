package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/foliolabs/foliod/internal/logging"
)

// ChromemConfig holds configuration for the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// VectorSize is the expected embedding dimension. Must match the
	// embedder's output dimension.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/foliod/vectorstore"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go, an embeddable pure-Go
// vector database with gob persistence. No external service is needed,
// which makes it the default provider for single-node deployments.
//
// Vectors are always supplied by the caller, so the collection embedding
// function is a stub that rejects accidental text queries.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *logging.Logger

	mu sync.Mutex
}

// NewChromemStore creates a persistent chromem-backed store.
func NewChromemStore(cfg ChromemConfig, logger *logging.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem db: %v", ErrProviderUnavailable, err)
	}

	logger.Info(context.Background(), "chromem store initialized",
		zap.String("path", path),
		zap.Int("vector_size", cfg.VectorSize),
	)

	return &ChromemStore{db: db, config: cfg, logger: logger}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// rejectTextQueries is the embedding func handed to chromem. All call
// sites pass precomputed vectors; reaching this is a programming error.
func rejectTextQueries(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("chromem store expects precomputed vectors")
}

func (s *ChromemStore) getOrCreate(collection string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.db.GetOrCreateCollection(collection, nil, rejectTextQueries)
	if err != nil {
		return nil, fmt.Errorf("%w: collection %s: %v", ErrProviderUnavailable, collection, err)
	}
	return c, nil
}

// Upsert inserts or replaces the point stored under id. The payload is
// serialized as JSON into the document content because chromem metadata
// only holds strings.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, id int64, vector []float32, payload map[string]interface{}) error {
	c, err := s.getOrCreate(collection)
	if err != nil {
		return err
	}

	content, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	doc := chromem.Document{
		ID:        strconv.FormatInt(id, 10),
		Embedding: vector,
		Content:   string(content),
	}
	if err := c.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("%w: adding document: %v", ErrProviderUnavailable, err)
	}
	return nil
}

// Search performs similarity search ordered score desc, ties by ascending ID.
func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]ScoredPoint, error) {
	c := s.db.GetCollection(collection, rejectTextQueries)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	// chromem requires nResults <= document count.
	count := c.Count()
	if count == 0 {
		return []ScoredPoint{}, nil
	}
	n := limit
	if n <= 0 || n > count {
		n = count
	}

	results, err := c.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: querying collection %s: %v", ErrProviderUnavailable, collection, err)
	}

	points := make([]ScoredPoint, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			s.logger.Warn(ctx, "skipping point with non-numeric id",
				zap.String("collection", collection),
				zap.String("id", r.ID),
			)
			continue
		}
		var payload map[string]interface{}
		if r.Content != "" {
			if err := json.Unmarshal([]byte(r.Content), &payload); err != nil {
				s.logger.Warn(ctx, "skipping point with malformed payload",
					zap.String("collection", collection),
					zap.Int64("id", id),
					zap.Error(err),
				)
				continue
			}
		}
		points = append(points, ScoredPoint{
			ID:      id,
			Score:   r.Similarity,
			Payload: payload,
		})
	}
	return sortPoints(points, limit, scoreThreshold), nil
}

// Delete removes the point stored under id. Missing points are not an error.
func (s *ChromemStore) Delete(ctx context.Context, collection string, id int64) error {
	c := s.db.GetCollection(collection, rejectTextQueries)
	if c == nil {
		return nil
	}
	if err := c.Delete(ctx, nil, nil, strconv.FormatInt(id, 10)); err != nil {
		return fmt.Errorf("%w: deleting document: %v", ErrProviderUnavailable, err)
	}
	return nil
}

// InitCollection creates the collection if it does not exist.
func (s *ChromemStore) InitCollection(ctx context.Context, collection string, vectorSize int) error {
	if vectorSize != 0 && vectorSize != s.config.VectorSize {
		return fmt.Errorf("%w: vector size %d does not match configured size %d", ErrInvalidConfig, vectorSize, s.config.VectorSize)
	}
	_, err := s.getOrCreate(collection)
	return err
}

// DropCollection deletes a collection and all its points.
func (s *ChromemStore) DropCollection(ctx context.Context, collection string) error {
	if err := s.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("%w: deleting collection %s: %v", ErrProviderUnavailable, collection, err)
	}
	return nil
}

// Close releases the store. chromem persists on write, so this is a no-op.
func (s *ChromemStore) Close() error {
	return nil
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
