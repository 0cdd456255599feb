package indexer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliolabs/foliod/internal/content"
	"github.com/foliolabs/foliod/internal/counter"
	"github.com/foliolabs/foliod/internal/storage"
	"github.com/foliolabs/foliod/internal/vectorstore"
)

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

// recordingStore tracks upserts and deletes keyed by collection/vector ID.
type recordingStore struct {
	vectorstore.Store
	mu       sync.Mutex
	upserts  map[string][]int64
	payloads map[int64]map[string]interface{}
	deletes  map[string][]int64
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		upserts:  make(map[string][]int64),
		payloads: make(map[int64]map[string]interface{}),
		deletes:  make(map[string][]int64),
	}
}

func (r *recordingStore) Upsert(ctx context.Context, collection string, id int64, vector []float32, payload map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts[collection] = append(r.upserts[collection], id)
	r.payloads[id] = payload
	return nil
}

func (r *recordingStore) Delete(ctx context.Context, collection string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes[collection] = append(r.deletes[collection], id)
	return nil
}

func newTestIndexer(t *testing.T) (*Indexer, *recordingStore) {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctr, err := counter.NewService(db)
	require.NoError(t, err)

	store := newRecordingStore()
	ix, err := New(db, ctr, fakeEmbedder{}, store, nil)
	require.NoError(t, err)
	return ix, store
}

func TestIndexAllocatesVectorIDOnce(t *testing.T) {
	ix, store := newTestIndexer(t)
	ctx := context.Background()

	entity := content.Entity{ID: "p-1", Title: "Raytracer", UpdatedAt: time.Now()}
	require.NoError(t, ix.Index(ctx, "projects", entity))

	entity.Title = "Raytracer v2"
	require.NoError(t, ix.Index(ctx, "projects", entity))

	require.Len(t, store.upserts["projects"], 2)
	assert.Equal(t, store.upserts["projects"][0], store.upserts["projects"][1],
		"reindex must reuse the allocated vector ID")
}

func TestIndexPayload(t *testing.T) {
	ix, store := newTestIndexer(t)
	ctx := context.Background()

	updated := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, ix.Index(ctx, "blogs", content.Entity{
		ID:        "b-1",
		Title:     "Devlog",
		Body:      "Week one notes.",
		UpdatedAt: updated,
	}))

	require.Len(t, store.upserts["blogs"], 1)
	payload := store.payloads[store.upserts["blogs"][0]]
	assert.Equal(t, "b-1", payload["id"])
	assert.Equal(t, "Devlog", payload["title"])
	assert.Equal(t, "Week one notes.", payload["snippet"])
	assert.Equal(t, "2026-08-01T12:00:00Z", payload["updated_at"])
}

func TestIndexSeparateSequencesPerCollection(t *testing.T) {
	ix, store := newTestIndexer(t)
	ctx := context.Background()

	require.NoError(t, ix.Index(ctx, "projects", content.Entity{ID: "p-1"}))
	require.NoError(t, ix.Index(ctx, "blogs", content.Entity{ID: "b-1"}))

	assert.Equal(t, []int64{1}, store.upserts["projects"])
	assert.Equal(t, []int64{1}, store.upserts["blogs"], "collections keep independent ID sequences")
}

func TestRemoveCascades(t *testing.T) {
	ix, store := newTestIndexer(t)
	ctx := context.Background()

	require.NoError(t, ix.Index(ctx, "projects", content.Entity{ID: "p-1"}))
	require.NoError(t, ix.Remove(ctx, "projects", "p-1"))

	assert.Equal(t, []int64{1}, store.deletes["projects"])

	// Reindexing after removal allocates a fresh ID.
	require.NoError(t, ix.Index(ctx, "projects", content.Entity{ID: "p-1"}))
	assert.Equal(t, []int64{1, 2}, store.upserts["projects"])
}

func TestRemoveUnindexedIsNoop(t *testing.T) {
	ix, store := newTestIndexer(t)

	require.NoError(t, ix.Remove(context.Background(), "projects", "never-indexed"))
	assert.Empty(t, store.deletes["projects"])
}

func TestSync(t *testing.T) {
	ix, store := newTestIndexer(t)
	ctx := context.Background()

	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo, err := content.NewSQLiteRepository(db)
	require.NoError(t, err)

	require.NoError(t, repo.Put(ctx, "projects", content.Entity{ID: "p-1", Title: "Kept"}))

	// An entity indexed earlier but since deleted from the repository.
	require.NoError(t, ix.Index(ctx, "projects", content.Entity{ID: "p-gone"}))

	require.NoError(t, ix.Sync(ctx, repo))

	assert.Contains(t, store.deletes["projects"], int64(1), "orphaned point must be removed")
	require.NotEmpty(t, store.upserts["projects"])
	last := store.payloads[store.upserts["projects"][len(store.upserts["projects"])-1]]
	assert.Equal(t, "p-1", last["id"])
}
