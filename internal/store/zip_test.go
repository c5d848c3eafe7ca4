package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenleaf/compliance-engine/internal/apierr"
	"github.com/greenleaf/compliance-engine/internal/models"
)

type recordingObserver struct {
	mu      sync.Mutex
	results []string
}

func (o *recordingObserver) IncZipCache(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

func TestCachedZipResolver_WithoutRedisPassesThrough(t *testing.T) {
	backing := NewMemoryZipStore(models.ZipCode{Zip: "84101", State: "UT", City: "Salt Lake City", County: "Salt Lake"})
	resolver := NewCachedZipResolver(backing, nil, time.Hour, nil)

	row, err := resolver.ResolveZip(context.Background(), "84101")

	require.NoError(t, err)
	assert.Equal(t, "UT", row.State)
	assert.Equal(t, 1, backing.Calls())
}

func TestCachedZipResolver_RedisDownFallsThrough(t *testing.T) {
	backing := NewMemoryZipStore(models.ZipCode{Zip: "84101", State: "UT"})
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	observer := &recordingObserver{}
	resolver := NewCachedZipResolver(backing, rdb, time.Hour, observer)

	row, err := resolver.ResolveZip(context.Background(), "84101")
	require.NoError(t, err)
	assert.Equal(t, "UT", row.State)

	_, err = resolver.ResolveZip(context.Background(), "99999")
	assert.ErrorIs(t, err, apierr.ErrZipNotFound)

	assert.Equal(t, 2, backing.Calls())
	assert.Contains(t, observer.results, "error")
}
