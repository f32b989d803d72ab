package model

// Tier is the relevance verdict assigned to a classified item.
type Tier string

// Tier constants.
const (
	TierCore     Tier = "CORE"
	TierRelated  Tier = "RELATED"
	TierRejected Tier = "REJECTED"
)

// Valid reports whether the tier is one of the known values.
func (t Tier) Valid() bool {
	switch t {
	case TierCore, TierRelated, TierRejected:
		return true
	}
	return false
}

// Relevant reports whether the tier survives filtering.
func (t Tier) Relevant() bool {
	return t == TierCore || t == TierRelated
}

// ClassificationDecision is the per-item verdict produced by the relevance
// classifier. Every item that enters classification receives exactly one
// decision; on oracle failure the fallback policy fires instead of omission.
type ClassificationDecision struct {
	ItemID    string
	Tier      Tier
	Rationale string // Optional, for audit
}
