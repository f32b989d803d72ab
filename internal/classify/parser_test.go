package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/torro-zz/pvre/internal/model"
)

func TestParseTierTokens(t *testing.T) {
	core := model.TierCore
	related := model.TierRelated
	rejected := model.TierRejected

	tests := []struct {
		name   string
		input  string
		want   []model.Tier
		wantOK bool
	}{
		{
			name:   "clean JSON array",
			input:  `["C","R","X"]`,
			want:   []model.Tier{core, related, rejected},
			wantOK: true,
		},
		{
			name:   "lowercase tokens",
			input:  `["c","x"]`,
			want:   []model.Tier{core, rejected},
			wantOK: true,
		},
		{
			name:   "spelled-out tokens",
			input:  `["CORE","RELATED","REJECTED"]`,
			want:   []model.Tier{core, related, rejected},
			wantOK: true,
		},
		{
			name:   "markdown fenced block",
			input:  "Here is the classification:\n```json\n[\"C\",\"C\",\"X\"]\n```\n",
			want:   []model.Tier{core, core, rejected},
			wantOK: true,
		},
		{
			name:   "fence without language tag",
			input:  "```\n[\"R\",\"X\"]\n```",
			want:   []model.Tier{related, rejected},
			wantOK: true,
		},
		{
			name:   "array embedded in prose",
			input:  `Sure! Based on my analysis the answer is ["C","X","R"] — let me know if you need more.`,
			want:   []model.Tier{core, rejected, related},
			wantOK: true,
		},
		{
			name:   "bare unquoted token list",
			input:  `[C, R, X]`,
			want:   []model.Tier{core, related, rejected},
			wantOK: true,
		},
		{
			name:   "bare tokens without brackets",
			input:  `C, X, X, R`,
			want:   []model.Tier{core, rejected, rejected, related},
			wantOK: true,
		},
		{
			name:   "N accepted as rejected",
			input:  `["C","N"]`,
			want:   []model.Tier{core, rejected},
			wantOK: true,
		},
		{
			name:   "single item array",
			input:  `["X"]`,
			want:   []model.Tier{rejected},
			wantOK: true,
		},
		{
			name:   "pure prose fails",
			input:  `I could not determine the relevance of these items.`,
			wantOK: false,
		},
		{
			name:   "empty input fails",
			input:  "",
			wantOK: false,
		},
		{
			name:   "unknown token fails",
			input:  `["C","Q"]`,
			wantOK: false,
		},
		{
			name:   "empty array fails",
			input:  `[]`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseTierTokens(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
