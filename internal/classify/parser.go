package classify

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/torro-zz/pvre/internal/model"
)

// The oracle is asked for a JSON array of single-letter tier tokens:
// C (core), R (related), X (rejected). In practice the response may be clean
// JSON, JSON inside a markdown fence, a fragment buried in prose, or a bare
// unquoted token list. parseTierTokens tries each shape in order and reports
// failure only when all of them miss.

var (
	fenceRe     = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	bareTokenRe = regexp.MustCompile(`(?i)\b[CRX]\b(?:\s*,\s*\b[CRX]\b)+`)
)

// parseTierTokens extracts an ordered list of tier tokens from free-form
// oracle output. ok is false when no strategy produced at least one token.
func parseTierTokens(text string) (tokens []model.Tier, ok bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}

	// Strategy 1: the whole response is the array.
	if tokens, ok = parseJSONArray(trimmed); ok {
		return tokens, true
	}

	// Strategy 2: array inside a fenced code block.
	if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
		if tokens, ok = parseJSONArray(strings.TrimSpace(m[1])); ok {
			return tokens, true
		}
	}

	// Strategy 3: first '[' to last ']' of the full text, robust to a
	// preamble/postamble around the array.
	if start := strings.Index(trimmed, "["); start >= 0 {
		if end := strings.LastIndex(trimmed, "]"); end > start {
			if tokens, ok = parseJSONArray(trimmed[start : end+1]); ok {
				return tokens, true
			}
		}
	}

	// Strategy 4: a bare comma-separated run of tier letters, covering
	// degenerate output like [C, R, X] without quotes.
	if m := bareTokenRe.FindString(trimmed); m != "" {
		parts := strings.Split(m, ",")
		tokens = make([]model.Tier, 0, len(parts))
		for _, p := range parts {
			tier, valid := tierFromToken(p)
			if !valid {
				return nil, false
			}
			tokens = append(tokens, tier)
		}
		return tokens, true
	}

	return nil, false
}

// parseJSONArray parses a JSON array of token strings into tiers.
func parseJSONArray(s string) ([]model.Tier, bool) {
	var raw []string
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}
	if len(raw) == 0 {
		return nil, false
	}

	tokens := make([]model.Tier, 0, len(raw))
	for _, r := range raw {
		tier, ok := tierFromToken(r)
		if !ok {
			return nil, false
		}
		tokens = append(tokens, tier)
	}
	return tokens, true
}

// tierFromToken maps a single token to a tier, accepting both the short and
// spelled-out forms.
func tierFromToken(s string) (model.Tier, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", "CORE":
		return model.TierCore, true
	case "R", "RELATED":
		return model.TierRelated, true
	case "X", "N", "REJECTED":
		return model.TierRejected, true
	}
	return "", false
}
