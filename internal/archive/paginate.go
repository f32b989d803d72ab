package archive

import (
	"context"
	"log/slog"

	"github.com/torro-zz/pvre/internal/model"
)

// SearchPostsPaginated fetches posts until targetCount unique items are
// collected or the archive is exhausted.
func (c *Client) SearchPostsPaginated(ctx context.Context, params SearchParams, targetCount int) ([]model.RawItem, error) {
	return c.paginate(ctx, params, targetCount, c.SearchPosts)
}

// SearchCommentsPaginated fetches comments until targetCount unique items
// are collected or the archive is exhausted.
func (c *Client) SearchCommentsPaginated(ctx context.Context, params SearchParams, targetCount int) ([]model.RawItem, error) {
	return c.paginate(ctx, params, targetCount, c.SearchComments)
}

// paginate repeatedly requests pages using a timestamp cursor taken from the
// oldest item of the previous page (descending-time ordering), deduplicating
// by item id across pages. Items sharing an exact timestamp can straddle a
// page boundary, so the id set is the real progress guard: a page that adds
// no new ids ends the loop. Errors after the first page yield the partial
// result rather than failing the run.
func (c *Client) paginate(ctx context.Context, params SearchParams, targetCount int, fetch func(context.Context, SearchParams) ([]model.RawItem, error)) ([]model.RawItem, error) {
	if targetCount <= 0 {
		return nil, nil
	}

	params.Limit = maxPageSize
	if params.Sort == "" {
		params.Sort = "desc"
	}

	seen := make(map[string]struct{}, targetCount)
	collected := make([]model.RawItem, 0, targetCount)

	for len(collected) < targetCount {
		if ctx.Err() != nil {
			return collected, ctx.Err()
		}

		page, err := fetch(ctx, params)
		if err != nil {
			if len(collected) == 0 {
				return nil, err
			}
			// Partial results beat total failure.
			slog.Warn("pagination stopped early after fetch error",
				"collected", len(collected),
				"target", targetCount,
				"error", err)
			return collected, nil
		}
		if len(page) == 0 {
			break // Archive exhausted
		}

		added := 0
		oldest := page[0].CreatedAt
		for _, item := range page {
			if item.CreatedAt.Before(oldest) {
				oldest = item.CreatedAt
			}
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			collected = append(collected, item)
			added++
			if len(collected) == targetCount {
				return collected, nil
			}
		}
		if added == 0 {
			break // Cursor is no longer making progress
		}

		params.Before = oldest
	}

	return collected, nil
}
