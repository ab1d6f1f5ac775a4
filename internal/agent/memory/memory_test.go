package memory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/tradiecrm/internal/cache"
)

type fakeSearcher struct {
	calls atomic.Int64
	items []Item
	err   error
}

func (f *fakeSearcher) Search(context.Context, string, string) ([]Item, error) {
	f.calls.Add(1)
	return f.items, f.err
}

func newTestCache(clock cache.Clock) *cache.TTL[string] {
	return cache.New[string](cache.Options{Name: CacheName, TTL: 20 * time.Second, MaxEntries: 100, Clock: clock})
}

func TestRenderBlock(t *testing.T) {
	got := RenderBlock([]Item{{Memory: "Prefers morning jobs"}, {Memory: "  "}, {Memory: "Has a dog"}})
	assert.Equal(t,
		"\n\n[[RELEVANT MEMORY CONTEXT]]\nThe following facts are retrieved from previous conversations with this user:\n- Prefers morning jobs\n- Has a dog\n[[END MEMORY CONTEXT]]\n\nUse these facts to personalize your response.",
		got)

	assert.Equal(t,
		"\n\n[[RELEVANT MEMORY CONTEXT]]\nNo previous context found for this query.\n[[END MEMORY CONTEXT]]",
		RenderBlock(nil))
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "book sharon in", NormalizeQuery("  Book   SHARON\tin \n"))
	// Decomposed "é" composes under NFC.
	assert.Equal(t, "caf\u00e9", NormalizeQuery("Cafe\u0301"))
	assert.Equal(t, "", NormalizeQuery(" \t "))
}

func TestFetchCachesWithinTTL(t *testing.T) {
	s := &fakeSearcher{items: []Item{{Memory: "Owns a ute"}}}
	clock := cache.NewManualClock(time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))
	f := NewFetcher(s, newTestCache(clock), nil)
	ctx := context.Background()

	first := f.Fetch(ctx, "u1", "Who is Bob?")
	assert.Contains(t, first, "- Owns a ute")
	assert.Equal(t, first, f.Fetch(ctx, "u1", "  who IS   bob? "))
	assert.Equal(t, int64(1), s.calls.Load())

	f.Fetch(ctx, "u2", "who is bob?")
	assert.Equal(t, int64(2), s.calls.Load())

	clock.Advance(20 * time.Second)
	f.Fetch(ctx, "u1", "who is bob?")
	assert.Equal(t, int64(3), s.calls.Load())
}

func TestFetchErrorDegradesAndIsNotCached(t *testing.T) {
	s := &fakeSearcher{err: errors.New("connection refused")}
	f := NewFetcher(s, newTestCache(cache.SystemClock{}), nil)

	assert.Equal(t, "", f.Fetch(context.Background(), "u1", "hello"))
	assert.Equal(t, "", f.Fetch(context.Background(), "u1", "hello"))
	assert.Equal(t, int64(2), s.calls.Load())
}

func TestFetchDisabledOrEmptyQuery(t *testing.T) {
	assert.Equal(t, "", NewFetcher(nil, nil, nil).Fetch(context.Background(), "u1", "hello"))

	var nilFetcher *Fetcher
	assert.Equal(t, "", nilFetcher.Fetch(context.Background(), "u1", "hello"))

	s := &fakeSearcher{}
	f := NewFetcher(s, nil, nil)
	assert.Equal(t, "", f.Fetch(context.Background(), "u1", "   "))
	assert.Equal(t, int64(0), s.calls.Load())

	assert.Contains(t, f.Fetch(context.Background(), "u1", "hi"), "No previous context found")
}

func TestMem0ClientSearch(t *testing.T) {
	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/memories/search/", r.URL.Path)
		assert.Equal(t, "Token m0-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`[{"id":"m1","memory":"Prefers SMS","score":0.9}]`))
	}))
	defer srv.Close()

	c := NewMem0Client(Mem0Config{APIKey: "m0-key", BaseURL: srv.URL + "/"}, nil)
	items, err := c.Search(context.Background(), "u1", "contact preference")
	require.NoError(t, err)

	assert.Equal(t, searchRequest{Query: "contact preference", UserID: "u1", Limit: DefaultLimit}, got)
	assert.Equal(t, []Item{{ID: "m1", Memory: "Prefers SMS", Score: 0.9}}, items)
}

func TestMem0ClientWrappedResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"id":"m2","memory":"Lives in Newtown"}]}`))
	}))
	defer srv.Close()

	items, err := NewMem0Client(Mem0Config{BaseURL: srv.URL}, nil).Search(context.Background(), "u1", "q")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Lives in Newtown", items[0].Memory)
}

func TestMem0ClientUnauthorizedIsNotRetried(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"bad token"}`))
	}))
	defer srv.Close()

	_, err := NewMem0Client(Mem0Config{BaseURL: srv.URL, MaxRetries: 3}, nil).Search(context.Background(), "u1", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int64(1), hits.Load())
}

func TestMem0ClientRetriesServerErrors(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	items, err := NewMem0Client(Mem0Config{BaseURL: srv.URL, MaxRetries: 1}, nil).Search(context.Background(), "u1", "q")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int64(2), hits.Load())
}
