// Package prefilter implements the cheap keyword exclusion pass that runs
// before classification. It only ever removes items; a survivor is not
// thereby "relevant", just not obviously off-topic.
package prefilter

import (
	"strings"
	"unicode"

	"github.com/torro-zz/pvre/internal/model"
)

// ExcludeByKeywords returns the items whose title+body contains none of the
// exclude keywords. Matching is case-insensitive; multi-word keywords match
// as substrings, single words on word boundaries.
func ExcludeByKeywords(items []model.RawItem, excludeKeywords []string) []model.RawItem {
	if len(excludeKeywords) == 0 {
		return items
	}

	keywords := make([]string, 0, len(excludeKeywords))
	for _, kw := range excludeKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		return items
	}

	kept := make([]model.RawItem, 0, len(items))
	for _, item := range items {
		if !matchesAny(strings.ToLower(item.Text()), keywords) {
			kept = append(kept, item)
		}
	}
	return kept
}

// matchesAny reports whether the text contains any keyword.
func matchesAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.ContainsRune(kw, ' ') {
			if strings.Contains(text, kw) {
				return true
			}
			continue
		}
		if containsWord(text, kw) {
			return true
		}
	}
	return false
}

// containsWord reports whether word occurs in text delimited by non-letter,
// non-digit runes, so "ad" does not match inside "adapt".
func containsWord(text, word string) bool {
	for start := 0; ; {
		idx := strings.Index(text[start:], word)
		if idx < 0 {
			return false
		}
		idx += start

		before := idx == 0 || isBoundary(rune(text[idx-1]))
		afterIdx := idx + len(word)
		after := afterIdx >= len(text) || isBoundary(rune(text[afterIdx]))
		if before && after {
			return true
		}

		start = idx + 1
		if start >= len(text) {
			return false
		}
	}
}

func isBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
