// ABOUTME: Tests for constrained word selection.
// ABOUTME: Verifies every predicate composes with AND and that choice is spread across candidates.

package words

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDict(t *testing.T, list ...string) *Dictionary {
	t.Helper()
	d, err := New(list)
	require.NoError(t, err)
	return d
}

func TestEligible(t *testing.T) {
	d := mustDict(t, "cat", "car", "cart", "dog", "ca", "carton", "scat")

	tests := []struct {
		name string
		c    Constraints
		want []string
	}{
		{
			name: "multi-letter prefix with default min length",
			c:    Constraints{StartPrefix: "ca"},
			want: []string{"cat", "car", "cart", "carton"},
		},
		{
			name: "include letter",
			c:    Constraints{StartPrefix: "c", Include: "t"},
			want: []string{"cat", "cart", "carton"},
		},
		{
			name: "banned single letter",
			c:    Constraints{StartPrefix: "c", Banned: []string{"t"}},
			want: []string{"car"},
		},
		{
			name: "banned multi-character substring",
			c:    Constraints{StartPrefix: "c", Banned: []string{"rt"}},
			want: []string{"cat", "car"},
		},
		{
			name: "min length",
			c:    Constraints{StartPrefix: "c", MinLength: 4},
			want: []string{"cart", "carton"},
		},
		{
			name: "case-insensitive constraints",
			c:    Constraints{StartPrefix: "CA", Include: "R", Banned: []string{"T"}},
			want: []string{"car"},
		},
		{
			name: "exclude already played",
			c:    Constraints{StartPrefix: "ca", Exclude: map[string]struct{}{"cat": {}, "carton": {}}},
			want: []string{"car", "cart"},
		},
		{
			name: "empty prefix never matches",
			c:    Constraints{},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eligibleIn(d, tt.c))
		})
	}
}

// eligibleIn lists every word of d satisfying c, in dictionary order.
func eligibleIn(d *Dictionary, c Constraints) []string {
	c = c.normalized()
	var out []string
	for _, w := range d.words {
		if c.eligible(w) {
			out = append(out, w)
		}
	}
	return out
}

func TestPick_OnlyEligibleAndUniform(t *testing.T) {
	d := mustDict(t, "cat", "car", "cart", "dog")
	s := NewSelector(d, rand.New(rand.NewPCG(1, 2)))

	counts := map[string]int{}
	const trials = 3000
	for range trials {
		w, ok := s.Pick(Constraints{StartPrefix: "ca", MinLength: 3})
		require.True(t, ok)
		counts[w]++
	}

	assert.Len(t, counts, 3)
	assert.NotContains(t, counts, "dog")
	for w, n := range counts {
		// Each of three words expects ~1000 hits.
		assert.InDelta(t, trials/3, n, 150, "word %q picked %d times", w, n)
	}
}

func TestPick_BannedAndPrefixComposeWithAnd(t *testing.T) {
	d := mustDict(t, "fox", "cat")
	s := NewSelector(d, nil)

	w, ok := s.Pick(Constraints{StartPrefix: "f", Banned: []string{"x"}})
	assert.False(t, ok)
	assert.Empty(t, w)
}

func TestPick_NoCandidateIsDeterministic(t *testing.T) {
	d := mustDict(t, "alpha", "beta")
	s := NewSelector(d, nil)

	for range 10 {
		_, ok := s.Pick(Constraints{StartPrefix: "z"})
		assert.False(t, ok)
	}
}
