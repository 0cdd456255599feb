// Package search implements hybrid retrieval over the portfolio content:
// vector similarity from the vector store merged with keyword term overlap
// from the content cache.
package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/foliolabs/foliod/internal/content"
	"github.com/foliolabs/foliod/internal/logging"
	"github.com/foliolabs/foliod/internal/vectorstore"
)

// snippetRunes is the body prefix carried in search results.
const snippetRunes = 200

// errNoVector marks the vector path as skipped when embedding failed.
var errNoVector = errors.New("no query vector")

// Embedder generates query embeddings.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ContentSource serves entity snapshots for the keyword path and for
// hydrating vector hits.
type ContentSource interface {
	GetAll(ctx context.Context, collection string) ([]content.Entity, error)
}

// Result is a single hybrid search hit.
type Result struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Snippet      string    `json:"snippet"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Score        float64   `json:"score"`
	VectorScore  float64   `json:"vectorScore"`
	KeywordScore float64   `json:"keywordScore"`
}

// ResultSet is the outcome of one collection's hybrid search. Partial is
// set when a retrieval path failed and the results cover only the
// surviving signal. Degradation is never reported as an error.
type ResultSet struct {
	Results []Result `json:"results"`
	Partial bool     `json:"partial"`
}

// Options tunes the hybrid merge.
type Options struct {
	// Alpha is the vector-score weight; the keyword weight is 1-Alpha.
	Alpha float64

	// ScoreThreshold excludes weak vector hits before the merge.
	ScoreThreshold float64
}

// Engine runs hybrid searches. Both retrieval paths run concurrently; the
// vector path embeds the query and hits the vector store, the keyword path
// scores the cached entities by term overlap.
type Engine struct {
	embedder Embedder
	store    vectorstore.Store
	source   ContentSource
	opts     Options
	logger   *logging.Logger
}

// NewEngine creates a hybrid search engine.
func NewEngine(embedder Embedder, store vectorstore.Store, source ContentSource, opts Options, logger *logging.Logger) *Engine {
	if opts.Alpha <= 0 || opts.Alpha > 1 {
		opts.Alpha = 0.7
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		embedder: embedder,
		store:    store,
		source:   source,
		opts:     opts,
		logger:   logger,
	}
}

// Search runs a hybrid search over one collection. The query is embedded
// internally; use SearchMany to share one embedding across collections.
func (e *Engine) Search(ctx context.Context, collection, query string, limit int) (ResultSet, error) {
	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		e.logger.Warn(ctx, "query embedding failed, keyword-only search",
			zap.String("collection", collection),
			zap.Error(err),
		)
		vector = nil
	}
	return e.search(ctx, collection, query, vector, limit), nil
}

// SearchMany embeds the query once and fans out one hybrid search per
// collection. The returned map has an entry for every requested collection.
func (e *Engine) SearchMany(ctx context.Context, query string, limits map[string]int) (map[string]ResultSet, error) {
	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		e.logger.Warn(ctx, "query embedding failed, keyword-only search", zap.Error(err))
		vector = nil
	}

	var mu sync.Mutex
	sets := make(map[string]ResultSet, len(limits))
	g, gctx := errgroup.WithContext(ctx)
	for collection, limit := range limits {
		g.Go(func() error {
			set := e.search(gctx, collection, query, vector, limit)
			mu.Lock()
			sets[collection] = set
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; degradation is carried in the sets.
	_ = g.Wait()
	return sets, nil
}

// search merges the vector and keyword paths for one collection. A nil
// vector means the embedding already failed and only keywords can score.
func (e *Engine) search(ctx context.Context, collection, query string, vector []float32, limit int) ResultSet {
	start := time.Now()
	defer func() {
		searchDuration.WithLabelValues(collection).Observe(time.Since(start).Seconds())
	}()

	if limit <= 0 {
		limit = 10
	}

	var (
		points     []vectorstore.ScoredPoint
		entities   []content.Entity
		vectorErr  error
		keywordErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if vector == nil {
			vectorErr = errNoVector
			return nil
		}
		// Overfetch so keyword boosts can pull hits past the cut.
		points, vectorErr = e.store.Search(gctx, collection, vector, limit*2, float32(e.opts.ScoreThreshold))
		return nil
	})
	g.Go(func() error {
		entities, keywordErr = e.source.GetAll(gctx, collection)
		return nil
	})
	_ = g.Wait()

	switch {
	case vectorErr != nil && keywordErr != nil:
		e.logger.Error(ctx, "both retrieval paths failed",
			zap.String("collection", collection),
			zap.NamedError("vector", vectorErr),
			zap.NamedError("keyword", keywordErr),
		)
		searchesTotal.WithLabelValues(collection, "failed").Inc()
		return ResultSet{Results: []Result{}, Partial: true}

	case keywordErr != nil:
		e.logger.Warn(ctx, "keyword path failed, vector-only results",
			zap.String("collection", collection),
			zap.Error(keywordErr),
		)
		searchesTotal.WithLabelValues(collection, "degraded").Inc()
		return ResultSet{Results: resultsFromPoints(points, e.opts.Alpha, limit), Partial: true}

	case vectorErr != nil:
		if vector != nil {
			e.logger.Warn(ctx, "vector path failed, keyword-only results",
				zap.String("collection", collection),
				zap.Error(vectorErr),
			)
		}
		searchesTotal.WithLabelValues(collection, "degraded").Inc()
		return ResultSet{Results: e.keywordOnly(query, entities, limit), Partial: true}
	}

	searchesTotal.WithLabelValues(collection, "ok").Inc()
	return ResultSet{Results: e.merge(query, points, entities, limit)}
}

// merge combines both signals per entity with a weighted sum and orders the
// result deterministically: combined score desc, then updatedAt desc, then
// ID asc.
func (e *Engine) merge(query string, points []vectorstore.ScoredPoint, entities []content.Entity, limit int) []Result {
	vectorScores := make(map[string]float64, len(points))
	for _, p := range points {
		if id, ok := p.Payload["id"].(string); ok {
			vectorScores[id] = float64(p.Score)
		}
	}

	queryTokens := tokenize(query)
	results := make([]Result, 0, len(entities))
	for _, entity := range entities {
		vecScore, inVector := vectorScores[entity.ID]
		kwScore := termOverlap(queryTokens, entity.Title+" "+entity.Body)
		if !inVector && kwScore == 0 {
			continue
		}
		results = append(results, Result{
			ID:           entity.ID,
			Title:        entity.Title,
			Snippet:      entity.Snippet(snippetRunes),
			UpdatedAt:    entity.UpdatedAt,
			Score:        e.opts.Alpha*vecScore + (1-e.opts.Alpha)*kwScore,
			VectorScore:  vecScore,
			KeywordScore: kwScore,
		})
	}

	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// keywordOnly scores cached entities by term overlap alone. Scores are not
// rescaled; a keyword-only hit competes on its raw overlap.
func (e *Engine) keywordOnly(query string, entities []content.Entity, limit int) []Result {
	queryTokens := tokenize(query)
	results := make([]Result, 0, len(entities))
	for _, entity := range entities {
		kwScore := termOverlap(queryTokens, entity.Title+" "+entity.Body)
		if kwScore == 0 {
			continue
		}
		results = append(results, Result{
			ID:           entity.ID,
			Title:        entity.Title,
			Snippet:      entity.Snippet(snippetRunes),
			UpdatedAt:    entity.UpdatedAt,
			Score:        kwScore,
			KeywordScore: kwScore,
		})
	}

	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// resultsFromPoints hydrates results from vector payloads when the content
// snapshot is unavailable.
func resultsFromPoints(points []vectorstore.ScoredPoint, alpha float64, limit int) []Result {
	results := make([]Result, 0, len(points))
	for _, p := range points {
		id, _ := p.Payload["id"].(string)
		if id == "" {
			continue
		}
		title, _ := p.Payload["title"].(string)
		snippet, _ := p.Payload["snippet"].(string)
		var updatedAt time.Time
		if raw, ok := p.Payload["updated_at"].(string); ok {
			updatedAt, _ = time.Parse(time.RFC3339, raw)
		}
		results = append(results, Result{
			ID:          id,
			Title:       title,
			Snippet:     snippet,
			UpdatedAt:   updatedAt,
			Score:       alpha * float64(p.Score),
			VectorScore: float64(p.Score),
		})
	}

	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].UpdatedAt.Equal(results[j].UpdatedAt) {
			return results[i].UpdatedAt.After(results[j].UpdatedAt)
		}
		return strings.Compare(results[i].ID, results[j].ID) < 0
	})
}
