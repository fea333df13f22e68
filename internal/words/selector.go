// ABOUTME: Constrained random word selection over a Dictionary.
// ABOUTME: A word is eligible only when every constraint holds; choice among eligible words is uniform.

package words

import (
	"math/rand/v2"
	"strings"
	"unicode/utf8"
)

// DefaultMinLength applies when a prompt does not state a minimum length.
const DefaultMinLength = 3

// Constraints is the rule set a chosen word must satisfy.
type Constraints struct {
	// StartPrefix is required; a word must begin with it.
	StartPrefix string
	// Include, when non-empty, must appear somewhere in the word.
	Include string
	// Banned entries are forbidden substrings, not only single letters.
	Banned []string
	// MinLength counts runes. Zero means DefaultMinLength.
	MinLength int
	// Exclude lists whole words that must not be chosen (already played).
	Exclude map[string]struct{}
}

// normalized returns a lowercase copy with defaults applied.
func (c Constraints) normalized() Constraints {
	n := Constraints{
		StartPrefix: strings.ToLower(c.StartPrefix),
		Include:     strings.ToLower(c.Include),
		MinLength:   c.MinLength,
		Exclude:     c.Exclude,
	}
	if n.MinLength <= 0 {
		n.MinLength = DefaultMinLength
	}
	for _, b := range c.Banned {
		b = strings.ToLower(strings.TrimSpace(b))
		if b != "" {
			n.Banned = append(n.Banned, b)
		}
	}
	return n
}

// eligible reports whether w satisfies every constraint. c must be normalized.
func (c Constraints) eligible(w string) bool {
	if c.StartPrefix == "" || !strings.HasPrefix(w, c.StartPrefix) {
		return false
	}
	if c.Include != "" && !strings.Contains(w, c.Include) {
		return false
	}
	for _, b := range c.Banned {
		if strings.Contains(w, b) {
			return false
		}
	}
	if utf8.RuneCountInString(w) < c.MinLength {
		return false
	}
	if _, used := c.Exclude[w]; used {
		return false
	}
	return true
}

// Selector picks words from a shared Dictionary using its own random source.
// A Selector is not safe for concurrent use; each agent session owns one.
type Selector struct {
	dict *Dictionary
	rng  *rand.Rand
}

// NewSelector creates a Selector. A nil rng gets a freshly seeded source.
func NewSelector(d *Dictionary, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{dict: d, rng: rng}
}

// Pick returns a uniformly random eligible word. ok is false when no word
// satisfies c, which is an expected outcome rather than a failure.
func (s *Selector) Pick(c Constraints) (word string, ok bool) {
	c = c.normalized()

	// Reservoir sampling: one pass, no allocation, uniform over eligible words.
	seen := 0
	for _, w := range s.dict.words {
		if !c.eligible(w) {
			continue
		}
		seen++
		if s.rng.IntN(seen) == 0 {
			word = w
		}
	}
	return word, seen > 0
}
