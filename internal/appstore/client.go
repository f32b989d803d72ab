// Package appstore fetches iTunes customer reviews as a secondary item
// source. Reviews are normalized into the same raw-item shape as archive
// posts so they join the pre-filter and classification path unchanged.
package appstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/torro-zz/pvre/internal/common"
	"github.com/torro-zz/pvre/internal/model"
	"github.com/torro-zz/pvre/internal/ratelimit"
)

// Config holds app-store client settings.
type Config struct {
	BaseURL string        // Default https://itunes.apple.com
	Country string        // Storefront country code (default "us")
	Timeout time.Duration // Per-request timeout (default 30s)
}

// Client fetches the customer-review RSS JSON feed for an app. All calls go
// through the shared rate limiter.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
	cfg        Config
}

// NewClient creates an app-store review client.
func NewClient(cfg Config, limiter *ratelimit.Limiter, logger *slog.Logger) (*Client, error) {
	if limiter == nil {
		return nil, fmt.Errorf("%w: rate limiter", common.ErrMissingConfig)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://itunes.apple.com"
	}
	if cfg.Country == "" {
		cfg.Country = "us"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:        cfg,
		limiter:    limiter,
		logger:     logger,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// FetchReviews retrieves up to pages feed pages of customer reviews for an
// app. A failure on a later page returns the reviews collected so far; only
// a first-page failure is an error.
func (c *Client) FetchReviews(ctx context.Context, appID string, pages int) ([]model.RawItem, error) {
	if strings.TrimSpace(appID) == "" {
		return nil, fmt.Errorf("%w: app id", common.ErrMissingConfig)
	}
	if pages <= 0 {
		pages = 1
	}

	community := "appstore:" + appID
	seen := make(map[string]bool)
	var items []model.RawItem

	for page := 1; page <= pages; page++ {
		entries, err := c.fetchPage(ctx, appID, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			c.logger.Warn("Review page fetch failed, returning partial results",
				"app_id", appID,
				"page", page,
				"error", err)
			break
		}
		if len(entries) == 0 {
			break
		}

		added := 0
		for _, entry := range entries {
			item, ok := entry.toRawItem(community)
			if !ok || seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			items = append(items, item)
			added++
		}
		if added == 0 {
			break
		}
	}

	return items, nil
}

func (c *Client) fetchPage(ctx context.Context, appID string, page int) ([]feedEntry, error) {
	reqURL := fmt.Sprintf("%s/%s/rss/customerreviews/page=%d/id=%s/sortby=mostrecent/json",
		c.cfg.BaseURL, c.cfg.Country, page, appID)

	var entries []feedEntry
	err := c.limiter.Schedule(ctx, ratelimit.PriorityNormal, appID, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("review feed request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return fmt.Errorf("failed to read review feed: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("review feed returned status %d", resp.StatusCode)
		}

		var doc feedDocument
		if err := json.Unmarshal(body, &doc); err != nil {
			return fmt.Errorf("failed to decode review feed: %w", err)
		}
		entries = doc.Feed.Entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// label is the {"label": "..."} wrapper every feed value sits in.
type label struct {
	Label string `json:"label"`
}

type feedEntry struct {
	ID      label `json:"id"`
	Title   label `json:"title"`
	Content label `json:"content"`
	Rating  label `json:"im:rating"`
	Votes   label `json:"im:voteCount"`
	Updated label `json:"updated"`
	Author  struct {
		Name label `json:"name"`
	} `json:"author"`
	Link struct {
		Attributes struct {
			Href string `json:"href"`
		} `json:"attributes"`
	} `json:"link"`
}

type feedDocument struct {
	Feed struct {
		Entry []feedEntry `json:"entry"`
	} `json:"feed"`
}

// toRawItem converts one feed entry. Entries without a rating are the app
// metadata header Apple prepends to some feeds and are skipped.
func (e feedEntry) toRawItem(community string) (model.RawItem, bool) {
	if e.Rating.Label == "" || e.ID.Label == "" {
		return model.RawItem{}, false
	}

	votes, _ := strconv.Atoi(e.Votes.Label)
	created, _ := time.Parse(time.RFC3339, e.Updated.Label)

	return model.RawItem{
		ID:         e.ID.Label,
		Title:      e.Title.Label,
		Body:       e.Content.Label,
		Community:  community,
		Author:     e.Author.Name.Label,
		Permalink:  e.Link.Attributes.Href,
		Kind:       model.KindReview,
		Engagement: votes,
		CreatedAt:  created,
	}, true
}
