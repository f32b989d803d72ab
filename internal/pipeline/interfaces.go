package pipeline

import (
	"context"

	"github.com/torro-zz/pvre/internal/archive"
	"github.com/torro-zz/pvre/internal/classify"
	"github.com/torro-zz/pvre/internal/model"
)

// Archive is the subset of the archive client the pipeline drives.
type Archive interface {
	SearchPostsPaginated(ctx context.Context, params archive.SearchParams, targetCount int) ([]model.RawItem, error)
	SearchCommentsPaginated(ctx context.Context, params archive.SearchParams, targetCount int) ([]model.RawItem, error)
	SearchSubreddits(ctx context.Context, query string, limit int) ([]archive.Subreddit, error)
}

// Relevance classifies fetched items against the run hypothesis.
type Relevance interface {
	Classify(ctx context.Context, items []model.RawItem, hypothesis, jobID string, progress classify.ProgressFunc) (classify.Result, error)
}

// ReviewSource fetches app-store reviews as a secondary item source.
type ReviewSource interface {
	FetchReviews(ctx context.Context, appID string, pages int) ([]model.RawItem, error)
}
