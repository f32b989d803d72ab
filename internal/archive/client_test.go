package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torro-zz/pvre/internal/common"
	"github.com/torro-zz/pvre/internal/model"
	"github.com/torro-zz/pvre/internal/ratelimit"
)

func testLimiter(t *testing.T) *ratelimit.Limiter {
	t.Helper()
	l := ratelimit.New(ratelimit.Config{
		MaxConcurrent:  20,
		MinSpacing:     time.Microsecond,
		Reservoir:      10000,
		RefillAmount:   10000,
		RefillInterval: 10 * time.Millisecond,
	}, nil)
	t.Cleanup(l.Close)
	return l
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:        baseURL,
		MaxRetries:     3,
		InitialBackoff: 5 * time.Millisecond,
		BusyBackoff:    []time.Duration{30 * time.Millisecond, 50 * time.Millisecond, 70 * time.Millisecond},
	}, testLimiter(t), nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func postsPayload(items ...map[string]any) []byte {
	b, _ := json.Marshal(map[string]any{"data": items})
	return b
}

func post(id string, createdUTC int64) map[string]any {
	return map[string]any{
		"id":          id,
		"title":       "title " + id,
		"selftext":    "body " + id,
		"subreddit":   "SaaS",
		"author":      "u" + id,
		"permalink":   "/r/saas/" + id,
		"created_utc": createdUTC,
		"score":       42,
	}
}

func TestSearchPosts(t *testing.T) {
	t.Run("normalizes parameters", func(t *testing.T) {
		var got url.Values
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.URL.Query()
			_, _ = w.Write(postsPayload(post("a", 1700000000)))
		}))
		defer srv.Close()

		c := testClient(t, srv.URL)
		items, err := c.SearchPosts(context.Background(), SearchParams{
			Community: "r/Startups",
			Query:     "  churn  ",
			Limit:     500,
			Sort:      "desc",
		})
		require.NoError(t, err)
		require.Len(t, items, 1)

		assert.Equal(t, "startups", got.Get("subreddit"))
		assert.Equal(t, "churn", got.Get("q"))
		assert.Equal(t, "100", got.Get("limit"), "limit must clamp to the archive maximum")
		assert.Equal(t, "desc", got.Get("sort"))
		assert.Empty(t, got.Get("before"), "empty optionals must be dropped")
		assert.Empty(t, got.Get("after"))

		assert.Equal(t, model.KindPost, items[0].Kind)
		assert.Equal(t, "saas", items[0].Community)
		assert.Equal(t, 42, items[0].Engagement)
	})

	t.Run("auto limit sentinel", func(t *testing.T) {
		var got url.Values
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.URL.Query()
			_, _ = w.Write(postsPayload())
		}))
		defer srv.Close()

		c := testClient(t, srv.URL)
		_, err := c.SearchPosts(context.Background(), SearchParams{Community: "saas", Limit: LimitAuto})
		require.NoError(t, err)
		assert.Equal(t, "auto", got.Get("limit"))
	})

	t.Run("equivalent queries share a cache entry", func(t *testing.T) {
		var hits int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt64(&hits, 1)
			_, _ = w.Write(postsPayload(post("a", 1700000000)))
		}))
		defer srv.Close()

		c := testClient(t, srv.URL)
		ctx := context.Background()

		first, err := c.SearchPosts(ctx, SearchParams{Community: "r/SaaS", Query: "churn", Limit: 50})
		require.NoError(t, err)

		// Same query after normalization, so the second call must be
		// answered from cache with zero network requests.
		second, err := c.SearchPosts(ctx, SearchParams{Community: "saas", Query: "churn", Limit: 50})
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, int64(1), atomic.LoadInt64(&hits))
		assert.Equal(t, 1, c.CacheSize())
	})

	t.Run("feeds quota headers back to the limiter", func(t *testing.T) {
		reset := time.Now().Add(time.Minute).Truncate(time.Second)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("X-RateLimit-Remaining", "77")
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))
			_, _ = w.Write(postsPayload())
		}))
		defer srv.Close()

		limiter := testLimiter(t)
		c, err := NewClient(Config{BaseURL: srv.URL}, limiter, nil)
		require.NoError(t, err)
		defer c.Close()

		_, err = c.SearchPosts(context.Background(), SearchParams{Community: "saas"})
		require.NoError(t, err)

		rem, at := limiter.State()
		assert.Equal(t, 77, rem)
		assert.Equal(t, reset.Unix(), at.Unix())
	})
}

func TestClientCloseIsIdempotent(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://localhost"}, testLimiter(t), nil)
	require.NoError(t, err)

	c.Close()
	assert.NotPanics(t, func() { c.Close() })
}

func TestRetryBehavior(t *testing.T) {
	t.Run("server busy uses the dedicated flat backoff", func(t *testing.T) {
		var attempts int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			n := atomic.AddInt64(&attempts, 1)
			if n <= 2 {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(`{"error":"Query Timeout"}`))
				return
			}
			_, _ = w.Write(postsPayload(post("ok", 1700000000)))
		}))
		defer srv.Close()

		c := testClient(t, srv.URL)

		start := time.Now()
		items, err := c.SearchPosts(context.Background(), SearchParams{Community: "saas"})
		elapsed := time.Since(start)

		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "ok", items[0].ID)
		assert.Equal(t, int64(3), atomic.LoadInt64(&attempts))
		// First two waits come from the busy schedule (30ms then 50ms).
		assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
	})

	t.Run("generic errors exhaust into ErrFetchExhausted", func(t *testing.T) {
		var attempts int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt64(&attempts, 1)
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
		}))
		defer srv.Close()

		c := testClient(t, srv.URL)
		_, err := c.SearchPosts(context.Background(), SearchParams{Community: "saas"})

		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrFetchExhausted)
		assert.Equal(t, int64(3), atomic.LoadInt64(&attempts))
	})

	t.Run("422 without timeout keyword is a generic error", func(t *testing.T) {
		var attempts int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt64(&attempts, 1)
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"invalid parameter"}`))
		}))
		defer srv.Close()

		c := testClient(t, srv.URL)
		_, err := c.SearchPosts(context.Background(), SearchParams{Community: "saas"})

		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrFetchExhausted)
		assert.Equal(t, int64(3), atomic.LoadInt64(&attempts))
	})
}

func TestSearchSubreddits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, endpointSubreddits, r.URL.Path)
		assert.Equal(t, "project management", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"data":[
			{"display_name":"ProjectManagement","public_description":"PM talk","subscribers":120000},
			{"display_name":"productivity","public_description":"","subscribers":900000}
		]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	subs, err := c.SearchSubreddits(context.Background(), "project management", 10)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "projectmanagement", subs[0].Name)
	assert.Equal(t, 120000, subs[0].Subscribers)
}

func TestCacheKey(t *testing.T) {
	a := SearchParams{Community: "r/SaaS", Query: "churn", Limit: 50, Sort: "desc"}
	b := SearchParams{Sort: "desc", Limit: 50, Query: "churn", Community: "saas"}

	assert.Equal(t,
		cacheKey(endpointPosts, a.sanitize()),
		cacheKey(endpointPosts, b.sanitize()),
		"equivalent parameter sets must produce the same key")

	cOther := SearchParams{Community: "saas", Query: "pricing", Limit: 50, Sort: "desc"}
	assert.NotEqual(t,
		cacheKey(endpointPosts, a.sanitize()),
		cacheKey(endpointPosts, cOther.sanitize()))

	assert.NotEqual(t,
		cacheKey(endpointPosts, a.sanitize()),
		cacheKey(endpointComments, a.sanitize()),
		"same parameters against different endpoints must not collide")
}
