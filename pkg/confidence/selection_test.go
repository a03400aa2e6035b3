package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBestOfN(t *testing.T) {
	tests := []struct {
		name    string
		outputs []string
		want    int
	}{
		{"empty", nil, -1},
		{"single", []string{"anything"}, 0},
		{"two disjoint ties to first", []string{"alpha beta", "gamma delta"}, 0},
		{
			// index 1 and 2 share {a,b}; index 0 shares nothing
			"majority support wins",
			[]string{"x y z", "a b c", "a b d"},
			1,
		},
		{
			// 0 and 2 both score 5 supported tokens; tie goes to index 0
			"tie breaks to lowest index",
			[]string{
				"the fix is in parser",
				"the fix is in lexer",
				"the fix is in parser today",
			},
			0,
		},
		{
			// the outlier shares only majority tokens, full agreement wins
			"outlier loses",
			[]string{"use channels here", "use channels here", "rewrite everything"},
			0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BestOfN(tt.outputs))
		})
	}
}
