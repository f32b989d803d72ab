package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const keywordSystemPrompt = "You extract search keywords from business hypotheses. " +
	"Respond ONLY with a JSON array of short lowercase keyword strings."

// extractKeywords asks the oracle for search keywords derived from the
// hypothesis. Oracle failure or unusable output degrades to a local
// heuristic instead of failing the run.
func (o *Orchestrator) extractKeywords(ctx context.Context, hypothesis string) []string {
	prompt := fmt.Sprintf("Extract up to %d search keywords or short phrases that people "+
		"experiencing this problem would use when posting about it.\n\nHypothesis: %s",
		o.cfg.MaxKeywords, hypothesis)

	resp, err := o.oracle.Complete(ctx, keywordSystemPrompt, prompt)
	if err == nil {
		if keywords := parseKeywordArray(resp.Text, o.cfg.MaxKeywords); len(keywords) > 0 {
			return keywords
		}
		o.logger.Warn("Unusable keyword response, falling back to heuristic extraction")
	} else {
		o.logger.Warn("Keyword extraction oracle call failed, falling back to heuristic extraction",
			"error", err)
	}

	return heuristicKeywords(hypothesis, o.cfg.MaxKeywords)
}

// parseKeywordArray pulls a JSON string array out of free-form oracle text.
func parseKeywordArray(text string, limit int) []string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end <= start {
		return nil
	}

	var raw []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil
	}

	seen := make(map[string]bool, len(raw))
	keywords := make([]string, 0, len(raw))
	for _, kw := range raw {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
		if len(keywords) == limit {
			break
		}
	}
	return keywords
}

// stopwords are skipped by the heuristic keyword fallback.
var stopwords = map[string]bool{
	"about": true, "after": true, "because": true, "being": true, "could": true,
	"doing": true, "every": true, "having": true, "people": true, "really": true,
	"should": true, "that": true, "their": true, "there": true, "these": true,
	"thing": true, "think": true, "this": true, "those": true, "through": true,
	"trying": true, "using": true,
	"want": true, "when": true, "where": true, "which": true, "while": true,
	"will": true, "with": true, "would": true, "your": true,
}

// heuristicKeywords derives keywords locally: significant words of the
// hypothesis in order of appearance.
func heuristicKeywords(hypothesis string, limit int) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, field := range strings.Fields(strings.ToLower(hypothesis)) {
		word := strings.Trim(field, ".,;:!?\"'()")
		if len(word) < 4 || stopwords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
		if len(keywords) == limit {
			break
		}
	}
	return keywords
}

// discoverCommunities builds the community list for the run: configured seed
// communities first, then subreddits discovered through the archive for each
// keyword. Seeds carry a configurable score weight; discovered communities
// are unweighted. Discovery failures for individual keywords are logged and
// skipped.
func (o *Orchestrator) discoverCommunities(ctx context.Context, keywords, seeds []string) ([]string, map[string]float64) {
	weights := make(map[string]float64)
	var ordered []string

	add := func(name string, weight float64) {
		name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "r/"))
		if name == "" {
			return
		}
		if _, ok := weights[name]; ok {
			return
		}
		weights[name] = weight
		ordered = append(ordered, name)
	}

	for _, seed := range seeds {
		add(seed, o.cfg.SeedWeight)
	}

	for _, keyword := range keywords {
		if len(ordered) >= o.cfg.MaxCommunities {
			break
		}
		subs, err := o.archive.SearchSubreddits(ctx, keyword, o.cfg.SubredditLimit)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			o.logger.Warn("Subreddit discovery failed for keyword",
				"keyword", keyword,
				"error", err)
			continue
		}
		for _, sub := range subs {
			add(sub.Name, 1.0)
		}
	}

	if len(ordered) > o.cfg.MaxCommunities {
		ordered = ordered[:o.cfg.MaxCommunities]
	}
	return ordered, weights
}
