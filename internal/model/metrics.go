package model

// FilterMetrics tracks item counts across one filtering stage or a whole
// run. The invariant Before == After + FilteredOut holds at every stage
// boundary.
type FilterMetrics struct {
	Before           int
	After            int
	FilteredOut      int
	PreFilterSkipped int
	CoreSignals      int
	RelatedSignals   int
	ParseFailures    int // Oracle batches whose output could not be decoded
}

// FilterRate returns the percentage of items removed, in [0,100].
func (m FilterMetrics) FilterRate() float64 {
	if m.Before == 0 {
		return 0
	}
	return float64(m.FilteredOut) / float64(m.Before) * 100
}

// Consistent reports whether the stage invariant holds.
func (m FilterMetrics) Consistent() bool {
	return m.Before == m.After+m.FilteredOut
}
