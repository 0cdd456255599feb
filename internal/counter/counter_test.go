package counter

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliolabs/foliod/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "counter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc, err := NewService(db)
	require.NoError(t, err)
	return svc
}

func TestNextStartsAtOne(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.Next(ctx, "vec_projects")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = svc.Next(ctx, "vec_projects")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestNextIndependentSequences(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Next(ctx, "vec_projects")
		require.NoError(t, err)
	}

	v, err := svc.Next(ctx, "vec_blogs")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v, "sequences must not share state")
}

func TestNextConcurrentNoDuplicatesNoGaps(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	const n = 50
	results := make([]int64, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := svc.Next(ctx, "vec_pages")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, v := range results {
		assert.Equal(t, int64(i+1), v, "expected the exact set {1..%d}", n)
	}
}

func TestNextEmptyName(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Next(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestCurrent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.Current(ctx, "vec_projects")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	_, err = svc.Next(ctx, "vec_projects")
	require.NoError(t, err)

	v, err = svc.Current(ctx, "vec_projects")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}
