// Package memory fetches long-term facts about a user from an external
// memory service and renders them for the system prompt. Results are cached
// briefly per user and query.
package memory

import (
	"context"

	"github.com/aatumaykin/tradiecrm/internal/cache"
	"github.com/aatumaykin/tradiecrm/internal/logger"
)

// CacheName labels the memory cache in metrics.
const CacheName = "memory_search"

// Item is a single remembered fact.
type Item struct {
	ID     string  `json:"id"`
	Memory string  `json:"memory"`
	Score  float64 `json:"score,omitempty"`
}

// Searcher finds memories relevant to a query.
type Searcher interface {
	Search(ctx context.Context, userID, query string) ([]Item, error)
}

// Fetcher returns the rendered memory block for a user query.
type Fetcher struct {
	searcher Searcher
	cache    *cache.TTL[string]
	logger   *logger.Logger
}

// NewFetcher creates a fetcher. A nil searcher disables memory entirely.
func NewFetcher(searcher Searcher, c *cache.TTL[string], log *logger.Logger) *Fetcher {
	if log == nil {
		log = logger.Discard()
	}
	return &Fetcher{searcher: searcher, cache: c, logger: log}
}

// CacheKey is the cache key for a user query.
func CacheKey(userID, query string) string {
	return userID + "|" + NormalizeQuery(query)
}

// Fetch returns the memory block, or "" when memory is disabled, the query
// is empty or the search fails. Failures are not cached.
func (f *Fetcher) Fetch(ctx context.Context, userID, query string) string {
	if f == nil || f.searcher == nil || NormalizeQuery(query) == "" {
		return ""
	}

	key := CacheKey(userID, query)
	if f.cache != nil {
		if block, ok := f.cache.Get(key); ok {
			return block
		}
	}

	items, err := f.searcher.Search(ctx, userID, query)
	if err != nil {
		f.logger.WarnCtx(ctx, "memory search failed",
			logger.Field{Key: "user_id", Value: userID},
			logger.Field{Key: "source", Value: "memory"},
			logger.Field{Key: "error", Value: err.Error()})
		return ""
	}

	block := RenderBlock(items)
	f.logger.DebugCtx(ctx, "memory search completed",
		logger.Field{Key: "user_id", Value: userID},
		logger.Field{Key: "results", Value: len(items)})
	if f.cache != nil {
		f.cache.Set(key, block)
	}
	return block
}
