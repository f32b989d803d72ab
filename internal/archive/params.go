// Package archive provides the retrying, caching HTTP client for the
// third-party data archive. All outbound calls are routed through the shared
// rate limiter and response quota headers are fed back into it.
package archive

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// LimitAuto asks the server to decide the page size (up to its own maximum).
const LimitAuto = -1

// maxPageSize is the largest page size the archive accepts.
const maxPageSize = 100

// SearchParams describes one archive search. Zero-valued optional fields are
// omitted from the request entirely; the archive rejects empty query values.
type SearchParams struct {
	Before    time.Time
	After     time.Time
	Community string // Subreddit name; "r/" prefix and case are normalized away
	Query     string // Free-text body filter
	Sort      string // "desc" (default) or "asc"
	Limit     int    // 1..100, or LimitAuto
}

// sanitize normalizes the parameters into the query values the archive
// accepts: community prefix stripped and lowercased, limit clamped into the
// accepted range, empty optionals dropped.
func (p SearchParams) sanitize() url.Values {
	v := url.Values{}

	community := strings.TrimSpace(p.Community)
	community = strings.TrimPrefix(community, "r/")
	community = strings.TrimPrefix(community, "/r/")
	community = strings.ToLower(community)
	if community != "" {
		v.Set("subreddit", community)
	}

	if q := strings.TrimSpace(p.Query); q != "" {
		v.Set("q", q)
	}

	switch {
	case p.Limit == LimitAuto:
		v.Set("limit", "auto")
	case p.Limit > 0:
		limit := p.Limit
		if limit > maxPageSize {
			limit = maxPageSize
		}
		v.Set("limit", strconv.Itoa(limit))
	}

	if !p.Before.IsZero() {
		v.Set("before", strconv.FormatInt(p.Before.Unix(), 10))
	}
	if !p.After.IsZero() {
		v.Set("after", strconv.FormatInt(p.After.Unix(), 10))
	}

	if s := strings.TrimSpace(p.Sort); s != "" {
		v.Set("sort", s)
	}

	return v
}

// cacheKey derives a stable key from the endpoint and the sanitized,
// alphabetically-sorted parameter set, so equivalent queries with reordered
// parameters share an entry.
func cacheKey(endpoint string, v url.Values) string {
	// url.Values.Encode sorts keys alphabetically.
	sum := sha256.Sum256([]byte(endpoint + "?" + v.Encode()))
	return fmt.Sprintf("%x", sum)
}
