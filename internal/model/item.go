// Package model defines the core domain models used throughout the application.
package model

import (
	"strings"
	"time"
)

// ItemKind distinguishes the origin shape of a raw item.
type ItemKind string

// Item kind constants.
const (
	KindPost    ItemKind = "post"
	KindComment ItemKind = "comment"
	KindReview  ItemKind = "review"
)

// RawItem represents a single external text unit (post, comment, or review)
// exactly as fetched. Identity is ID scoped to the source archive; items are
// never mutated after fetch.
type RawItem struct {
	CreatedAt  time.Time
	ID         string
	Title      string // Posts only; empty for comments
	Body       string
	Community  string // Normalized lowercase community identifier
	Author     string
	Permalink  string
	Kind       ItemKind
	Engagement int // Source-defined engagement score (upvotes, helpfulness)
}

// Text returns the searchable text of the item: title and body joined.
func (i RawItem) Text() string {
	if i.Title == "" {
		return i.Body
	}
	if i.Body == "" {
		return i.Title
	}
	return i.Title + "\n" + i.Body
}

// IsEmpty reports whether the item carries no usable text, e.g. a removed or
// deleted post body.
func (i RawItem) IsEmpty() bool {
	body := strings.TrimSpace(i.Body)
	return strings.TrimSpace(i.Title) == "" &&
		(body == "" || body == "[removed]" || body == "[deleted]")
}
