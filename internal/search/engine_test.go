package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliolabs/foliod/internal/content"
	"github.com/foliolabs/foliod/internal/vectorstore"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

type fakeStore struct {
	vectorstore.Store
	points map[string][]vectorstore.ScoredPoint
	err    error
}

func (f *fakeStore) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]vectorstore.ScoredPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.points[collection], nil
}

type fakeSource struct {
	entities map[string][]content.Entity
	err      error
}

func (f *fakeSource) GetAll(ctx context.Context, collection string) ([]content.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entities[collection], nil
}

func point(id string, score float32) vectorstore.ScoredPoint {
	return vectorstore.ScoredPoint{
		Score:   score,
		Payload: map[string]interface{}{"id": id},
	}
}

func newTestEngine(embedder Embedder, store vectorstore.Store, source ContentSource) *Engine {
	return NewEngine(embedder, store, source, Options{Alpha: 0.7}, nil)
}

func TestSearchWeightedSumMerge(t *testing.T) {
	// Vector 0.9, keyword 0.4 (2 of 5 query terms) must merge to 0.75.
	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	store := &fakeStore{points: map[string][]vectorstore.ScoredPoint{
		"projects": {point("p-1", 0.9)},
	}}
	source := &fakeSource{entities: map[string][]content.Entity{
		"projects": {{
			ID:    "p-1",
			Title: "raytracer renderer",
			Body:  "",
		}},
	}}
	engine := newTestEngine(embedder, store, source)

	set, err := engine.Search(context.Background(), "projects",
		"raytracer renderer pipeline shadows reflections", 10)
	require.NoError(t, err)
	require.Len(t, set.Results, 1)
	assert.False(t, set.Partial)
	assert.InDelta(t, 0.9, set.Results[0].VectorScore, 1e-9)
	assert.InDelta(t, 0.4, set.Results[0].KeywordScore, 1e-9)
	assert.InDelta(t, 0.75, set.Results[0].Score, 1e-9)
}

func TestSearchDeterministicOrdering(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	embedder := &fakeEmbedder{vector: []float32{1}}
	store := &fakeStore{points: map[string][]vectorstore.ScoredPoint{
		"blogs": {point("b-a", 0.5), point("b-b", 0.5), point("b-c", 0.5)},
	}}
	source := &fakeSource{entities: map[string][]content.Entity{
		"blogs": {
			{ID: "b-b", UpdatedAt: now},
			{ID: "b-a", UpdatedAt: now},
			{ID: "b-c", UpdatedAt: now.Add(time.Hour)},
		},
	}}
	engine := newTestEngine(embedder, store, source)

	for i := 0; i < 3; i++ {
		set, err := engine.Search(context.Background(), "blogs", "zzzz", 10)
		require.NoError(t, err)
		require.Len(t, set.Results, 3)
		assert.Equal(t, "b-c", set.Results[0].ID, "newer entity wins the score tie")
		assert.Equal(t, "b-a", set.Results[1].ID, "remaining tie breaks by ID")
		assert.Equal(t, "b-b", set.Results[2].ID)
	}
}

func TestSearchVectorPathFailureDegrades(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1}}
	store := &fakeStore{err: errors.New("connection refused")}
	source := &fakeSource{entities: map[string][]content.Entity{
		"projects": {{ID: "p-1", Title: "raytracer", Body: "path tracing"}},
	}}
	engine := newTestEngine(embedder, store, source)

	set, err := engine.Search(context.Background(), "projects", "raytracer", 10)
	require.NoError(t, err, "degradation must not surface as an error")
	assert.True(t, set.Partial)
	require.Len(t, set.Results, 1)
	assert.Equal(t, "p-1", set.Results[0].ID)
	assert.Zero(t, set.Results[0].VectorScore)
}

func TestSearchEmbeddingFailureDegrades(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("provider down")}
	store := &fakeStore{points: map[string][]vectorstore.ScoredPoint{
		"projects": {point("p-1", 0.9)},
	}}
	source := &fakeSource{entities: map[string][]content.Entity{
		"projects": {{ID: "p-1", Title: "raytracer"}},
	}}
	engine := newTestEngine(embedder, store, source)

	set, err := engine.Search(context.Background(), "projects", "raytracer", 10)
	require.NoError(t, err)
	assert.True(t, set.Partial)
	require.Len(t, set.Results, 1)
	assert.Zero(t, set.Results[0].VectorScore, "store must not be queried without a vector")
}

func TestSearchBothPathsFail(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1}}
	store := &fakeStore{err: errors.New("down")}
	source := &fakeSource{err: errors.New("also down")}
	engine := newTestEngine(embedder, store, source)

	set, err := engine.Search(context.Background(), "projects", "raytracer", 10)
	require.NoError(t, err)
	assert.True(t, set.Partial)
	assert.Empty(t, set.Results)
}

func TestSearchKeywordPathFailureUsesPayloads(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1}}
	store := &fakeStore{points: map[string][]vectorstore.ScoredPoint{
		"pages": {{
			Score: 0.8,
			Payload: map[string]interface{}{
				"id":      "about",
				"title":   "About",
				"snippet": "Hi there",
			},
		}},
	}}
	source := &fakeSource{err: errors.New("cache down")}
	engine := newTestEngine(embedder, store, source)

	set, err := engine.Search(context.Background(), "pages", "about", 10)
	require.NoError(t, err)
	assert.True(t, set.Partial)
	require.Len(t, set.Results, 1)
	assert.Equal(t, "About", set.Results[0].Title)
	assert.Equal(t, "Hi there", set.Results[0].Snippet)
}

func TestSearchLimitTruncates(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1}}
	store := &fakeStore{}
	source := &fakeSource{entities: map[string][]content.Entity{
		"blogs": {
			{ID: "b-1", Title: "golang concurrency"},
			{ID: "b-2", Title: "golang generics"},
			{ID: "b-3", Title: "golang profiling"},
		},
	}}
	engine := newTestEngine(embedder, store, source)

	set, err := engine.Search(context.Background(), "blogs", "golang", 2)
	require.NoError(t, err)
	assert.Len(t, set.Results, 2)
}

func TestSearchMany(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1}}
	store := &fakeStore{points: map[string][]vectorstore.ScoredPoint{
		"projects": {point("p-1", 0.9)},
	}}
	source := &fakeSource{entities: map[string][]content.Entity{
		"projects": {{ID: "p-1", Title: "raytracer"}},
		"blogs":    {{ID: "b-1", Title: "raytracer devlog"}},
	}}
	engine := newTestEngine(embedder, store, source)

	sets, err := engine.SearchMany(context.Background(), "raytracer", map[string]int{
		"projects": 3,
		"blogs":    3,
		"pages":    2,
	})
	require.NoError(t, err)
	require.Len(t, sets, 3)
	assert.Len(t, sets["projects"].Results, 1)
	assert.Len(t, sets["blogs"].Results, 1)
	assert.Empty(t, sets["pages"].Results)
}

func TestTermOverlap(t *testing.T) {
	tokens := tokenize("the raytracer renderer pipeline")
	require.Equal(t, []string{"raytracer", "renderer", "pipeline"}, tokens, "stopwords and short tokens filtered")

	assert.InDelta(t, 1.0, termOverlap(tokens, "Raytracer renderer pipeline notes"), 1e-9)
	assert.InDelta(t, 1.0/3.0, termOverlap(tokens, "a raytracer story"), 1e-9)
	assert.Zero(t, termOverlap(tokens, "unrelated text"))
	assert.Zero(t, termOverlap(nil, "anything"))
}

func TestTermOverlapDuplicateQueryTerms(t *testing.T) {
	tokens := tokenize("raytracer raytracer shadows")
	assert.InDelta(t, 0.5, termOverlap(tokens, "raytracer"), 1e-9, "duplicates count once")
}
