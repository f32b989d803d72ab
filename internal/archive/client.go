package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/torro-zz/pvre/internal/common"
	"github.com/torro-zz/pvre/internal/model"
	"github.com/torro-zz/pvre/internal/ratelimit"
)

// Archive endpoints.
const (
	endpointPosts      = "/posts/search"
	endpointComments   = "/comments/search"
	endpointSubreddits = "/subreddits/search"
)

// Config holds archive client configuration.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int             // Generic retry attempts (default 3)
	InitialBackoff time.Duration   // First generic backoff delay (default 1s)
	BusyBackoff    []time.Duration // Server-busy schedule (default 10s/15s/20s)
	CacheTTL       time.Duration   // Query cache TTL (default 24h)
}

// Client is the archive HTTP client. Every outbound call goes through the
// shared rate limiter; quota headers from every completed response are fed
// back into it.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	cache      *queryCache
	logger     *slog.Logger
	cfg        Config
}

// Subreddit is one community returned by the subreddit search endpoint.
type Subreddit struct {
	Name        string
	Description string
	Subscribers int
}

// NewClient creates an archive client. The limiter is required; it is the
// process-wide throughput budget shared with every other caller.
func NewClient(cfg Config, limiter *ratelimit.Limiter, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: archive base URL is required", common.ErrMissingConfig)
	}
	if limiter == nil {
		return nil, fmt.Errorf("%w: rate limiter is required", common.ErrMissingConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if len(cfg.BusyBackoff) == 0 {
		cfg.BusyBackoff = []time.Duration{10 * time.Second, 15 * time.Second, 20 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:     cfg,
		limiter: limiter,
		cache:   newQueryCache(cfg.CacheTTL),
		logger:  logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// SearchPosts fetches one page of posts matching the parameters.
func (c *Client) SearchPosts(ctx context.Context, params SearchParams) ([]model.RawItem, error) {
	return c.search(ctx, endpointPosts, params, model.KindPost)
}

// SearchComments fetches one page of comments matching the parameters.
func (c *Client) SearchComments(ctx context.Context, params SearchParams) ([]model.RawItem, error) {
	return c.search(ctx, endpointComments, params, model.KindComment)
}

// search performs a cached, retried fetch against one endpoint.
func (c *Client) search(ctx context.Context, endpoint string, params SearchParams, kind model.ItemKind) ([]model.RawItem, error) {
	qv := params.sanitize()
	key := cacheKey(endpoint, qv)

	if items, ok := c.cache.get(key); ok {
		c.logger.Debug("archive cache hit",
			"endpoint", endpoint,
			"items", len(items))
		return items, nil
	}

	items, err := c.fetchWithRetry(ctx, endpoint, qv, kind)
	if err != nil {
		return nil, err
	}

	// Best effort; a failed cache write must never fail the caller.
	c.cache.set(key, items)

	return items, nil
}

// fetchWithRetry retries a fetch with two distinct failure classes: the
// archive's "server busy" timeout status gets the longer flat schedule and is
// tried before consuming any generic retry attempts; everything else gets
// standard exponential backoff.
func (c *Client) fetchWithRetry(ctx context.Context, endpoint string, qv url.Values, kind model.ItemKind) ([]model.RawItem, error) {
	busyAttempt := 0
	attempt := 0
	delay := c.cfg.InitialBackoff

	for {
		items, err := c.fetchOnce(ctx, endpoint, qv, kind)
		if err == nil {
			return items, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if errors.Is(err, common.ErrServerBusy) && busyAttempt < len(c.cfg.BusyBackoff) {
			wait := c.cfg.BusyBackoff[busyAttempt]
			busyAttempt++
			c.logger.Warn("archive server busy, backing off",
				"endpoint", endpoint,
				"busy_attempt", busyAttempt,
				"delay", wait)
			if sleepErr := sleep(ctx, wait); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		attempt++
		if attempt >= c.cfg.MaxRetries {
			return nil, fmt.Errorf("%w: %v", common.ErrFetchExhausted, err)
		}

		c.logger.Warn("archive fetch failed, retrying",
			"endpoint", endpoint,
			"attempt", attempt,
			"delay", delay,
			"error", err)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
		delay *= 2
	}
}

// fetchOnce performs a single scheduled request against the archive.
func (c *Client) fetchOnce(ctx context.Context, endpoint string, qv url.Values, kind model.ItemKind) ([]model.RawItem, error) {
	var items []model.RawItem

	err := c.limiter.Schedule(ctx, ratelimit.PriorityNormal, "", func(ctx context.Context) error {
		reqURL := strings.TrimSuffix(c.cfg.BaseURL, "/") + endpoint + "?" + qv.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		// Quota headers are fed back on every completed response, not
		// just successful ones.
		c.limiter.UpdateFromHeaders(resp.Header)

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusUnprocessableEntity &&
			strings.Contains(strings.ToLower(string(body)), "timeout") {
			return fmt.Errorf("%w (status %d): %s", common.ErrServerBusy, resp.StatusCode, string(body))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("archive API error (status %d): %s", resp.StatusCode, string(body))
		}

		var response struct {
			Data []archiveItem `json:"data"`
		}
		if err := json.Unmarshal(body, &response); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		items = make([]model.RawItem, 0, len(response.Data))
		for _, raw := range response.Data {
			items = append(items, raw.toRawItem(kind))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// SearchSubreddits searches for communities matching the query.
func (c *Client) SearchSubreddits(ctx context.Context, query string, limit int) ([]Subreddit, error) {
	qv := url.Values{}
	if q := strings.TrimSpace(query); q != "" {
		qv.Set("q", q)
	}
	if limit > 0 {
		if limit > maxPageSize {
			limit = maxPageSize
		}
		qv.Set("limit", fmt.Sprintf("%d", limit))
	}

	var subs []Subreddit

	op := func() error {
		return c.limiter.Schedule(ctx, ratelimit.PriorityNormal, "", func(ctx context.Context) error {
			reqURL := strings.TrimSuffix(c.cfg.BaseURL, "/") + endpointSubreddits + "?" + qv.Encode()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return &common.RetryableError{Err: err, Retryable: true}
			}
			defer func() { _ = resp.Body.Close() }()

			c.limiter.UpdateFromHeaders(resp.Header)

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to read response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return &common.RetryableError{
					Err:       fmt.Errorf("archive API error (status %d): %s", resp.StatusCode, string(body)),
					Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusUnprocessableEntity,
				}
			}

			var response struct {
				Data []struct {
					DisplayName string `json:"display_name"`
					Description string `json:"public_description"`
					Subscribers int    `json:"subscribers"`
				} `json:"data"`
			}
			if err := json.Unmarshal(body, &response); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			subs = make([]Subreddit, 0, len(response.Data))
			for _, s := range response.Data {
				subs = append(subs, Subreddit{
					Name:        strings.ToLower(s.DisplayName),
					Description: s.Description,
					Subscribers: s.Subscribers,
				})
			}
			return nil
		})
	}

	err := common.WithRetry(ctx, op, common.RetryOptions{
		MaxAttempts:  c.cfg.MaxRetries,
		InitialDelay: c.cfg.InitialBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrFetchExhausted, err)
	}

	return subs, nil
}

// CacheSize returns the number of live query cache entries.
func (c *Client) CacheSize() int {
	return c.cache.size()
}

// Close releases the client's background resources.
func (c *Client) Close() {
	c.cache.Close()
}

// archiveItem is the wire shape of one archive search result.
type archiveItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Body       string  `json:"body"`
	Subreddit  string  `json:"subreddit"`
	Author     string  `json:"author"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
	Score      int     `json:"score"`
}

// toRawItem normalizes the wire item into the domain model.
func (a archiveItem) toRawItem(kind model.ItemKind) model.RawItem {
	body := a.Body
	if kind == model.KindPost {
		body = a.Selftext
	}
	return model.RawItem{
		ID:         a.ID,
		Kind:       kind,
		Title:      a.Title,
		Body:       body,
		Community:  strings.ToLower(a.Subreddit),
		Author:     a.Author,
		Permalink:  a.Permalink,
		CreatedAt:  time.Unix(int64(a.CreatedUTC), 0).UTC(),
		Engagement: a.Score,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
