package prefilter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/torro-zz/pvre/internal/model"
)

func item(id, title, body string) model.RawItem {
	return model.RawItem{ID: id, Kind: model.KindPost, Title: title, Body: body}
}

func TestExcludeByKeywords(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		items    []model.RawItem
		wantIDs  []string
	}{
		{
			name:     "no keywords keeps everything",
			keywords: nil,
			items:    []model.RawItem{item("a", "t", "b"), item("b", "t", "b")},
			wantIDs:  []string{"a", "b"},
		},
		{
			name:     "case-insensitive match in body",
			keywords: []string{"hiring"},
			items: []model.RawItem{
				item("a", "Weekly thread", "We are HIRING a designer"),
				item("b", "My invoicing workflow is painful", ""),
			},
			wantIDs: []string{"b"},
		},
		{
			name:     "match in title",
			keywords: []string{"meme"},
			items: []model.RawItem{
				item("a", "Best meme of the week", ""),
				item("b", "Billing tools comparison", ""),
			},
			wantIDs: []string{"b"},
		},
		{
			name:     "single word requires word boundary",
			keywords: []string{"ad"},
			items: []model.RawItem{
				item("a", "", "this is an ad for a course"),
				item("b", "", "we had to adapt our pricing"),
			},
			wantIDs: []string{"b"},
		},
		{
			name:     "multi-word keywords match as substring",
			keywords: []string{"for hire"},
			items: []model.RawItem{
				item("a", "", "[For Hire] full-stack dev"),
				item("b", "", "hired a contractor last year"),
			},
			wantIDs: []string{"b"},
		},
		{
			name:     "blank keywords are ignored",
			keywords: []string{"", "  "},
			items:    []model.RawItem{item("a", "t", "b")},
			wantIDs:  []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExcludeByKeywords(tt.items, tt.keywords)
			ids := make([]string, len(got))
			for i, it := range got {
				ids[i] = it.ID
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestExcludeByKeywordsCounts(t *testing.T) {
	// 120 posts, 10 of which match an exclude keyword.
	items := make([]model.RawItem, 0, 120)
	for i := 0; i < 110; i++ {
		items = append(items, item(fmt.Sprintf("keep%d", i), "title", "struggling with spreadsheets"))
	}
	for i := 0; i < 10; i++ {
		items = append(items, item(fmt.Sprintf("drop%d", i), "title", "this giveaway ends friday"))
	}

	got := ExcludeByKeywords(items, []string{"giveaway"})
	assert.Len(t, got, 110)
}
