// ABOUTME: Regular expressions used to read game state out of chat text.
// ABOUTME: Defaults can be overridden per key from a TOML file as the game host's wording changes.

package game

import (
	"fmt"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Patterns is the set of expressions the parser matches against raw chat text.
// Patterns marked "capturing" must contain at least one capture group.
type Patterns struct {
	NewRound  string `toml:"new_round"`
	Skip      string `toml:"skip"`
	Turn      string `toml:"turn"`       // capturing: turn owner
	StartWith string `toml:"start_with"` // capturing: first required letter(s)
	Include   string `toml:"include"`    // capturing: required letter
	Banned    string `toml:"banned"`     // capturing: rest of the banned-letters line
	MinLength string `toml:"min_length"` // capturing: integer
}

// DefaultPatterns returns the built-in expressions.
func DefaultPatterns() Patterns {
	return Patterns{
		NewRound:  `(?i)(won the game|new round|starting a new game|game (?:is )?restarting)`,
		Skip:      `(?i)(skipped due to afk|no word given)`,
		Turn:      `(?i)turn:[ \t]*([^\n]*)`,
		StartWith: `(?i)start\w*[^\p{L}]*with[^\p{L}]*(?:the[^\p{L}]+)?(?:letter[^\p{L}]+)?(\p{L})`,
		Include:   `(?i)include[^\p{L}]*(?:the[^\p{L}]+)?(?:letter[^\p{L}]+)?(\p{L})(?:[^\p{L}]|$)`,
		Banned:    `(?i)banned letters?[ \t]*:[ \t]*([^\n]*)`,
		MinLength: `(?i)at least\s*(\d+)\s*letters`,
	}
}

// LoadPatterns reads overrides from a TOML file on top of the defaults.
// Keys absent from the file keep their default expression.
func LoadPatterns(path string) (Patterns, error) {
	p := DefaultPatterns()
	if path == "" {
		return p, nil
	}
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return Patterns{}, fmt.Errorf("decoding patterns file: %w", err)
	}
	return p, nil
}

type compiledPatterns struct {
	newRound  *regexp.Regexp
	skip      *regexp.Regexp
	turn      *regexp.Regexp
	startWith *regexp.Regexp
	include   *regexp.Regexp
	banned    *regexp.Regexp
	minLength *regexp.Regexp
}

func (p Patterns) compile() (*compiledPatterns, error) {
	var c compiledPatterns
	specs := []struct {
		name      string
		expr      string
		capturing bool
		dst       **regexp.Regexp
	}{
		{"new_round", p.NewRound, false, &c.newRound},
		{"skip", p.Skip, false, &c.skip},
		{"turn", p.Turn, true, &c.turn},
		{"start_with", p.StartWith, true, &c.startWith},
		{"include", p.Include, true, &c.include},
		{"banned", p.Banned, true, &c.banned},
		{"min_length", p.MinLength, true, &c.minLength},
	}

	for _, s := range specs {
		if s.expr == "" {
			return nil, fmt.Errorf("pattern %s is empty", s.name)
		}
		re, err := regexp.Compile(s.expr)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %s: %w", s.name, err)
		}
		if s.capturing && re.NumSubexp() < 1 {
			return nil, fmt.Errorf("pattern %s needs a capture group", s.name)
		}
		*s.dst = re
	}
	return &c, nil
}
