package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterMetrics(t *testing.T) {
	t.Run("filter rate", func(t *testing.T) {
		m := FilterMetrics{Before: 110, After: 30, FilteredOut: 80}
		assert.InDelta(t, 72.7, m.FilterRate(), 0.1)
		assert.True(t, m.Consistent())
	})

	t.Run("empty stage has zero rate", func(t *testing.T) {
		var m FilterMetrics
		assert.Zero(t, m.FilterRate())
		assert.True(t, m.Consistent())
	})

	t.Run("inconsistent counts detected", func(t *testing.T) {
		m := FilterMetrics{Before: 10, After: 3, FilteredOut: 5}
		assert.False(t, m.Consistent())
	})
}
